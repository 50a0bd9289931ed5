// Package receipt notifies the receipt gateway that a case has been
// received.
package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/seftconsumer/internal/logging"
)

// Status buckets the gateway's HTTP status.
type Status int

const (
	Success Status = iota
	ClientError
	ServerError
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case ClientError:
		return "client error"
	case ServerError:
		return "server error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Notifier is what the pipeline needs from a receipt gateway.
type Notifier interface {
	Notify(ctx context.Context, caseID string) (Status, error)
}

type Config struct {
	URL      string
	User     string
	Password string
}

// Gateway is the HTTP receipt gateway client.
type Gateway struct {
	cfg    Config
	hc     *http.Client
	logger logging.Logger
}

func NewGateway(cfg Config, hc *http.Client, logger logging.Logger) *Gateway {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Gateway{cfg: cfg, hc: hc, logger: logger.With("module", "receipt")}
}

type receiptRequest struct {
	CaseID string `json:"caseId"`
}

// Notify posts {"caseId": caseID}. A transport failure is returned as an
// error; any HTTP response is classified into a Status.
func (g *Gateway) Notify(ctx context.Context, caseID string) (Status, error) {
	body, err := json.Marshal(receiptRequest{CaseID: caseID})
	if err != nil {
		return ServerError, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return ServerError, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.User != "" {
		req.SetBasicAuth(g.cfg.User, g.cfg.Password)
	}

	resp, err := g.hc.Do(req)
	if err != nil {
		return ServerError, fmt.Errorf("receipt request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	status := Classify(resp.StatusCode)
	g.logger.Info(ctx, "receipt gateway responded", "case_id", caseID, "status_code", resp.StatusCode, "status", status.String())
	return status, nil
}

// Classify maps an HTTP status code to a Status. Anything that is neither
// 2xx nor 4xx counts as a server error.
func Classify(code int) Status {
	switch {
	case code >= 200 && code < 300:
		return Success
	case code >= 400 && code < 500:
		return ClientError
	default:
		return ServerError
	}
}
