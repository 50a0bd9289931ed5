package seftctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/consumer/config"
	"github.com/dmitrijs2005/seftconsumer/internal/consumer/repositories/repomanager"
	"github.com/dmitrijs2005/seftconsumer/internal/cryptox"
	"github.com/dmitrijs2005/seftconsumer/internal/keystore"
	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"github.com/dmitrijs2005/seftconsumer/internal/queue"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// openDB is a test seam for connecting to the consumer database.
var openDB = repomanager.Open

// openQueue is a test seam for connecting to the queue database.
var openQueue = func(ctx context.Context, dsn, name, quarantine string) (Queue, io.Closer, error) {
	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return queue.New(db, name, quarantine), db, nil
}


// CLI holds the streams and defaults shared by every command.
type CLI struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  *os.File
}

type command struct {
	summary string
	run     func(ctx context.Context, c *CLI, args []string) error
}

var commands = map[string]command{
	"decrypt-quarantine": {"write the file from one quarantined message to a directory", runDecryptQuarantine},
	"reprocess":          {"move one quarantined message back to the inbound queue", runReprocess},
	"reports":            {"list the scan reports stored for a case", runReports},
	"seal":               {"seal a JSON claim file into a token", runSeal},
}

// Run dispatches args[0] and returns the process exit code.
func (c *CLI) Run(ctx context.Context, args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		c.usage()
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(c.Stderr, "unknown command %q\n", args[0])
		c.usage()
		return 2
	}
	if err := cmd.run(ctx, c, args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(c.Stderr, "%s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func (c *CLI) usage() {
	fmt.Fprintln(c.Stderr, "Usage: seftctl <command> [flags]")
	fmt.Fprintln(c.Stderr, "\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.Stderr, "  %-20s %s\n", name, commands[name].summary)
	}
}

// common holds the flags shared by the queue commands. Defaults come from
// the consumer's environment.
type common struct {
	dsn        string
	queue      string
	quarantine string
	keys       string
	purpose    string
	prompt     bool
	logLevel   string
}

func (o *common) register(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&o.dsn, "dsn", cfg.DatabaseDSN, "queue database DSN")
	fs.StringVar(&o.queue, "queue", cfg.QueueName, "inbound queue name")
	fs.StringVar(&o.quarantine, "quarantine", cfg.QuarantineQueueName, "quarantine queue name")
	fs.StringVar(&o.keys, "keys", cfg.KeysFile, "YAML key file")
	fs.StringVar(&o.purpose, "purpose", cfg.KeyPurpose, "key purpose")
	fs.BoolVar(&o.prompt, "prompt-password", false, "prompt for passwords of encrypted keys")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level")
}

func (o *common) logger(c *CLI) logging.Logger {
	return logging.NewJSONLogger(c.Stderr, o.logLevel)
}

func (o *common) loadKeys(c *CLI) (*keystore.Store, error) {
	var opts []keystore.Option
	if o.prompt {
		opts = append(opts, keystore.WithPasswordPrompt(c.passwordPrompt))
	}
	materials, err := keystore.LoadFile(o.keys, opts...)
	if err != nil {
		return nil, err
	}
	return keystore.New(materials, o.purpose)
}

func (c *CLI) passwordPrompt(purpose string) ([]byte, error) {
	fmt.Fprintf(c.Stderr, "Password for %q key: ", purpose)
	pw, err := readPassword(int(c.Stdin.Fd()))
	fmt.Fprintln(c.Stderr)
	return pw, err
}

func newFlagSet(name string, c *CLI) (*pflag.FlagSet, *common, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, nil, err
	}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	o := &common{}
	o.register(fs, cfg)
	return fs, o, nil
}

func runDecryptQuarantine(ctx context.Context, c *CLI, args []string) error {
	fs, o, err := newFlagSet("decrypt-quarantine", c)
	if err != nil {
		return err
	}
	out := fs.String("out", ".", "directory to write the recovered file into")
	if err := fs.Parse(args); err != nil {
		return err
	}

	keys, err := o.loadKeys(c)
	if err != nil {
		return err
	}
	q, closer, err := openQueue(ctx, o.dsn, o.queue, o.quarantine)
	if err != nil {
		return err
	}
	defer closer.Close()

	log := o.logger(c)
	rec, err := NewTool(q, o.purpose, log).DecryptQuarantine(ctx, cryptox.NewUnsealer(keys, log), *out)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Stdout, "message %d (tx_id %s, reason %q) written to %s\n", rec.MessageID, rec.TxID, rec.Reason, rec.Path)
	return nil
}

func runReprocess(ctx context.Context, c *CLI, args []string) error {
	fs, o, err := newFlagSet("reprocess", c)
	if err != nil {
		return err
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	q, closer, err := openQueue(ctx, o.dsn, o.queue, o.quarantine)
	if err != nil {
		return err
	}
	defer closer.Close()

	id, err := NewTool(q, o.purpose, o.logger(c)).Reprocess(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Stdout, "message %d moved to %s\n", id, o.queue)
	return nil
}

func runSeal(ctx context.Context, c *CLI, args []string) error {
	fs, o, err := newFlagSet("seal", c)
	if err != nil {
		return err
	}
	claimsPath := fs.String("claims", "", "JSON file with the claims to seal")
	kid := fs.String("kid", cryptox.DefaultKeyID, "key id placed in the signature header")
	send := fs.Bool("send", false, "enqueue the token on the inbound queue instead of printing it")
	txID := fs.String("tx-id", "", "transaction id for --send (generated when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *claimsPath == "" {
		return errors.New("--claims is required")
	}

	data, err := os.ReadFile(*claimsPath)
	if err != nil {
		return err
	}
	var claims map[string]any
	if err := json.Unmarshal(data, &claims); err != nil {
		return fmt.Errorf("parsing claims: %w", err)
	}

	keys, err := o.loadKeys(c)
	if err != nil {
		return err
	}
	raw, err := Seal(keys, o.purpose, *kid, claims)
	if err != nil {
		return err
	}

	if !*send {
		fmt.Fprintln(c.Stdout, raw)
		return nil
	}

	q, closer, err := openQueue(ctx, o.dsn, o.queue, o.quarantine)
	if err != nil {
		return err
	}
	defer closer.Close()

	if *txID == "" {
		*txID = uuid.NewString()
	}
	id, err := NewTool(q, o.purpose, o.logger(c)).Submit(ctx, *txID, raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Stdout, "message %d sent to %s (tx_id %s)\n", id, o.queue, *txID)
	return nil
}

func runReports(ctx context.Context, c *CLI, args []string) error {
	fs, o, err := newFlagSet("reports", c)
	if err != nil {
		return err
	}
	caseID := fs.String("case-id", "", "case to list reports for")
	asJSON := fs.Bool("json", false, "print full reports as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *caseID == "" {
		return errors.New("--case-id is required")
	}

	db, err := openDB(ctx, o.dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	reports, err := repomanager.NewPostgresRepositoryManager().ScanReports(db).FindByCase(ctx, *caseID)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(c.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	if len(reports) == 0 {
		fmt.Fprintf(c.Stdout, "no scan reports for case %s\n", *caseID)
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(c.Stdout, "%s  %-6s  %s  tx_id=%s data_id=%s\n",
			r.CreatedAt.Format(time.RFC3339), r.Verdict, r.Report.FileName, r.Report.TxID, r.Report.DataID)
	}
	return nil
}
