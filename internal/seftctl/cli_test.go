package seftctl

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/seftconsumer/internal/queue"
	"github.com/dmitrijs2005/seftconsumer/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func withQueue(t *testing.T, q Queue) {
	t.Helper()
	orig := openQueue
	openQueue = func(context.Context, string, string, string) (Queue, io.Closer, error) {
		return q, nopCloser{}, nil
	}
	t.Cleanup(func() { openQueue = orig })
}

func newCLI() (*CLI, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &CLI{Stdout: &out, Stderr: &errOut, Stdin: os.Stdin}, &out, &errOut
}

// keyFiles writes a sender key file and a consumer key file for the same
// submission purpose.
func keyFiles(t *testing.T, senderPassword string) (sender, consumer string) {
	t.Helper()
	senderKey := testutil.RSAKey(t, "sender")
	recipientKey := testutil.RSAKey(t, "recipient")
	dir := t.TempDir()

	write := func(name string, data []byte) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
	}
	if senderPassword != "" {
		write("sender.pem", testutil.EncryptedPrivatePEM(t, senderKey, senderPassword))
	} else {
		write("sender.pem", testutil.PrivatePEM(t, senderKey))
	}
	write("sender-pub.pem", testutil.PublicPEM(t, senderKey))
	write("recipient.pem", testutil.PrivatePEM(t, recipientKey))
	write("recipient-pub.pem", testutil.PublicPEM(t, recipientKey))

	write("sender.yml", []byte("keys:\n  submission:\n    private_key_path: sender.pem\n    public_key_path: recipient-pub.pem\n"))
	write("consumer.yml", []byte("keys:\n  submission:\n    private_key_path: recipient.pem\n    public_key_path: sender-pub.pem\n"))
	return filepath.Join(dir, "sender.yml"), filepath.Join(dir, "consumer.yml")
}

func claimsFile(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(goodClaims())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "claims.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRun_Usage(t *testing.T) {
	c, _, errOut := newCLI()

	assert.Equal(t, 2, c.Run(context.Background(), nil))
	assert.Contains(t, errOut.String(), "decrypt-quarantine")
	assert.Contains(t, errOut.String(), "reprocess")
	assert.Contains(t, errOut.String(), "seal")
}

func TestRun_UnknownCommand(t *testing.T) {
	c, _, errOut := newCLI()

	assert.Equal(t, 2, c.Run(context.Background(), []string{"frobnicate"}))
	assert.Contains(t, errOut.String(), `unknown command "frobnicate"`)
}

func TestRun_SealRequiresClaims(t *testing.T) {
	c, _, errOut := newCLI()

	assert.Equal(t, 1, c.Run(context.Background(), []string{"seal"}))
	assert.Contains(t, errOut.String(), "--claims is required")
}

func TestRun_SealThenDecryptQuarantine(t *testing.T) {
	senderKeys, consumerKeys := keyFiles(t, "")
	ctx := context.Background()

	c, out, errOut := newCLI()
	code := c.Run(ctx, []string{"seal", "--keys", senderKeys, "--purpose", "submission", "--claims", claimsFile(t)})
	require.Equal(t, 0, code, errOut.String())
	raw := strings.TrimSpace(out.String())
	assert.Len(t, strings.Split(raw, "."), 5)

	q := newFakeQueue()
	body, err := queue.Envelope{TxID: "tx-1", Token: raw, Reason: "receipt service error"}.Encode()
	require.NoError(t, err)
	id := quarantined(t, q, string(body))
	withQueue(t, q)

	dir := t.TempDir()
	c, out, errOut = newCLI()
	code = c.Run(ctx, []string{"decrypt-quarantine", "--keys", consumerKeys, "--purpose", "submission", "--out", dir})
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), fmt.Sprintf("message %d", id))

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRun_SealSend(t *testing.T) {
	senderKeys, _ := keyFiles(t, "")
	q := newFakeQueue()
	withQueue(t, q)

	c, out, errOut := newCLI()
	code := c.Run(context.Background(), []string{"seal", "--keys", senderKeys, "--purpose", "submission",
		"--claims", claimsFile(t), "--send", "--tx-id", "tx-7", "--queue", "inbound"})

	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "tx_id tx-7")
	require.Len(t, q.messages[q.Name()], 1)

	env, err := queue.DecodeEnvelope(q.messages[q.Name()][0].Body)
	require.NoError(t, err)
	assert.Equal(t, "tx-7", env.TxID)
}

func TestRun_SealPromptsForPassword(t *testing.T) {
	senderKeys, _ := keyFiles(t, "s3cret")

	orig := readPassword
	var prompted int
	readPassword = func(int) ([]byte, error) {
		prompted++
		return []byte("s3cret"), nil
	}
	t.Cleanup(func() { readPassword = orig })

	c, out, errOut := newCLI()
	code := c.Run(context.Background(), []string{"seal", "--keys", senderKeys, "--purpose", "submission",
		"--claims", claimsFile(t), "--prompt-password"})

	require.Equal(t, 0, code, errOut.String())
	assert.Equal(t, 1, prompted)
	assert.Contains(t, errOut.String(), `Password for "submission" key`)
	assert.NotEmpty(t, strings.TrimSpace(out.String()))
}

func TestRun_Reprocess(t *testing.T) {
	q := newFakeQueue()
	id := quarantined(t, q, `{"tx_id":"tx-1","token":"t","reason":"scan timeout"}`)
	withQueue(t, q)

	c, out, errOut := newCLI()
	code := c.Run(context.Background(), []string{"reprocess", "--queue", "inbound"})

	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), fmt.Sprintf("message %d moved to inbound", id))
	assert.Len(t, q.messages[q.Name()], 1)
}

func TestRun_DecryptQuarantineEmpty(t *testing.T) {
	_, consumerKeys := keyFiles(t, "")
	withQueue(t, newFakeQueue())

	c, _, errOut := newCLI()
	code := c.Run(context.Background(), []string{"decrypt-quarantine", "--keys", consumerKeys, "--purpose", "submission", "--out", t.TempDir()})

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), ErrEmpty.Error())
}

func withDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	orig := openDB
	openDB = func(context.Context, string) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { openDB = orig })
	return mock
}

func TestRun_Reports(t *testing.T) {
	mock := withDB(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "data_id", "file_name", "case_id", "survey_id", "tx_id", "verdict", "report", "created_at"}).
		AddRow("r1", "d1", "a.txt", "C1", "S1", "tx-1", "unsafe", []byte(`{"result":"Blocked"}`), created)
	mock.ExpectQuery(`FROM\s+scan_reports`).WithArgs("C1").WillReturnRows(rows)
	mock.ExpectClose()

	c, out, errOut := newCLI()
	code := c.Run(context.Background(), []string{"reports", "--case-id", "C1"})

	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "2024-05-01T12:00:00Z  unsafe  a.txt  tx_id=tx-1 data_id=d1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ReportsEmpty(t *testing.T) {
	mock := withDB(t)
	mock.ExpectQuery(`FROM\s+scan_reports`).WithArgs("C2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data_id", "file_name", "case_id", "survey_id", "tx_id", "verdict", "report", "created_at"}))

	c, out, _ := newCLI()
	code := c.Run(context.Background(), []string{"reports", "--case-id", "C2"})

	require.Equal(t, 0, code)
	assert.Contains(t, out.String(), "no scan reports for case C2")
}

func TestRun_ReportsRequiresCase(t *testing.T) {
	c, _, errOut := newCLI()

	assert.Equal(t, 1, c.Run(context.Background(), []string{"reports"}))
	assert.Contains(t, errOut.String(), "--case-id is required")
}
