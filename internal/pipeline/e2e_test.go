package pipeline

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/cryptox"
	"github.com/dmitrijs2005/seftconsumer/internal/keystore"
	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"github.com/dmitrijs2005/seftconsumer/internal/receipt"
	"github.com/dmitrijs2005/seftconsumer/internal/scan"
	"github.com/dmitrijs2005/seftconsumer/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryReports struct {
	reports []scan.Report
}

func (m *memoryReports) Record(_ context.Context, r scan.Report) error {
	m.reports = append(m.reports, r)
	return nil
}

type e2e struct {
	controller *Controller
	deliverer  *recordingDeliverer
	reports    *memoryReports
	receipts   *atomic.Int32
	token      string
}

func newE2E(t *testing.T, verdict string) *e2e {
	t.Helper()
	sender, recipient := testutil.RSAKey(t, "sender"), testutil.RSAKey(t, "recipient")

	sealKeys, err := keystore.New(map[string]keystore.KeyMaterial{
		"submission": {PrivateKey: sender, PublicKey: &recipient.PublicKey},
	})
	require.NoError(t, err)
	openKeys, err := keystore.New(map[string]keystore.KeyMaterial{
		"submission": {PrivateKey: recipient, PublicKey: &sender.PublicKey},
	}, "submission")
	require.NoError(t, err)

	tok, err := cryptox.NewSealer(sealKeys, "").Encrypt(map[string]any{
		"file":      base64.StdEncoding.EncodeToString([]byte("hello")),
		"filename":  "a.txt",
		"case_id":   "C1",
		"survey_id": "S1",
	}, "submission")
	require.NoError(t, err)

	var receipts atomic.Int32
	receiptSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receipts.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(receiptSrv.Close)

	scanSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"data_id":"d1"}`))
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/d1") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"process_info":{"progress_percentage":100,"result":"` + verdict + `"}}`))
	}))
	t.Cleanup(scanSrv.Close)

	log := logging.Discard()
	noWait := scan.WaitFunc(func(context.Context, time.Duration) error { return nil })
	reports := &memoryReports{}
	scanClient := scan.NewHTTPClient(scan.HTTPConfig{BaseURL: scanSrv.URL + "/file", UserAgent: "sdc"}, scanSrv.Client(), noWait, log)
	coordinator := scan.NewCoordinator(scan.Config{WaitInterval: time.Second, MaxAttempts: 3}, scanClient, reports, log, scan.WithWaiter(noWait))

	deliverer := &recordingDeliverer{}
	c := NewController(
		Config{Purpose: "submission", ScanEnabled: true, DeliveryRoot: "/root"},
		Deps{
			Unsealer:  cryptox.NewUnsealer(openKeys, log),
			Receipts:  receipt.NewGateway(receipt.Config{URL: receiptSrv.URL}, receiptSrv.Client(), log),
			Scanner:   coordinator,
			Deliverer: deliverer,
		},
		log,
	)

	return &e2e{controller: c, deliverer: deliverer, reports: reports, receipts: &receipts, token: tok}
}

func TestEndToEnd_SafeFileIsDelivered(t *testing.T) {
	env := newE2E(t, "Allowed")

	got, err := env.controller.Process(context.Background(), env.token, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, Accept(), got)

	require.Len(t, env.deliverer.files, 1)
	assert.Equal(t, delivered{"/root/S1/unchecked", "a.txt", []byte("hello")}, env.deliverer.files[0])
	assert.Equal(t, int32(1), env.receipts.Load())
	assert.Empty(t, env.reports.reports)
}

func TestEndToEnd_UnsafeFileIsQuarantined(t *testing.T) {
	env := newE2E(t, "Blocked")

	got, err := env.controller.Process(context.Background(), env.token, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, Quarantine(ReasonUnsafeFile), got)

	assert.Empty(t, env.deliverer.files)
	require.Len(t, env.reports.reports, 1)
	assert.Equal(t, "d1", env.reports.reports[0].DataID)
	assert.Equal(t, "C1", env.reports.reports[0].CaseID)
}

func TestEndToEnd_TamperedTokenIsQuarantined(t *testing.T) {
	env := newE2E(t, "Allowed")

	parts := strings.Split(env.token, ".")
	parts[3] = "A" + parts[3][1:]
	if parts[3] == strings.Split(env.token, ".")[3] {
		parts[3] = "B" + parts[3][1:]
	}

	got, err := env.controller.Process(context.Background(), strings.Join(parts, "."), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, Quarantine(ReasonBadDecrypt), got)
	assert.Equal(t, int32(0), env.receipts.Load())
}
