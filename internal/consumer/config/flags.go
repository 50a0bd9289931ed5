package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/seftconsumer/internal/flagx"
)

// parseFlags overlays command-line flags onto c.
//
// Supported flags:
//
//	-d string   PostgreSQL DSN (queue and scan reports)
//	-k string   keys file
//	-w int      number of workers
//	-l string   log level
//	-f string   delivery root folder
//	-b string   delivery backend (ftp or s3)
//	-g string   gRPC health address
//	-a string   HTTP health/metrics address
//
// Arguments are filtered with flagx.FilterArgs first so -c/-config and
// unrelated flags do not break parsing.
func parseFlags(c *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-d", "-k", "-w", "-l", "-f", "-b", "-g", "-a"})

	fs := flag.NewFlagSet("consumer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "database DSN")
	fs.StringVar(&c.KeysFile, "k", c.KeysFile, "keys file")
	fs.IntVar(&c.Workers, "w", c.Workers, "number of workers")
	fs.StringVar(&c.LogLevel, "l", c.LogLevel, "log level")
	fs.StringVar(&c.DeliveryRoot, "f", c.DeliveryRoot, "delivery root folder")
	fs.StringVar(&c.DeliveryBackend, "b", c.DeliveryBackend, "delivery backend (ftp or s3)")
	fs.StringVar(&c.HealthAddrGRPC, "g", c.HealthAddrGRPC, "gRPC health address")
	fs.StringVar(&c.HealthAddrHTTP, "a", c.HealthAddrHTTP, "HTTP health address")

	return fs.Parse(args)
}
