package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/logging"
)

// HTTPConfig configures a MetaDefender-style scan service.
type HTTPConfig struct {
	// BaseURL is the file endpoint, e.g. https://scan.metadefender.com/v2/file.
	BaseURL   string
	APIKey    string
	Rule      string
	UserAgent string
	// WaitInterval is slept before reporting a busy service.
	WaitInterval time.Duration
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	cfg    HTTPConfig
	hc     *http.Client
	waiter Waiter
	logger logging.Logger
}

// NewHTTPClient returns a client using hc, or http.DefaultClient when nil.
func NewHTTPClient(cfg HTTPConfig, hc *http.Client, waiter Waiter, logger logging.Logger) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	if waiter == nil {
		waiter = TimerWaiter{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPClient{cfg: cfg, hc: hc, waiter: waiter, logger: logger.With("module", "scan-http")}
}

type submitResponse struct {
	DataID string `json:"data_id"`
	Err    any    `json:"err"`
}

type pollResponse struct {
	ProcessInfo *struct {
		ProgressPercentage any    `json:"progress_percentage"`
		Result             string `json:"result"`
	} `json:"process_info"`
}

// Submit posts contents to the service.
func (c *HTTPClient) Submit(ctx context.Context, fileName string, contents []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(contents))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("filename", fileName)
	req.Header.Set("rule", c.cfg.Rule)
	c.setCommonHeaders(req)

	body, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}

	var out submitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: decoding submit response: %v", ErrServiceUnavailable, err)
	}
	if out.Err != nil && out.Err != "" {
		c.logger.Error(ctx, "unable to send file for scan", "error", out.Err)
		c.wait(ctx)
		return "", fmt.Errorf("%w: service error %v", ErrServiceUnavailable, out.Err)
	}
	if out.DataID == "" {
		return "", fmt.Errorf("%w: submit response carries no data_id", ErrServiceUnavailable)
	}
	return out.DataID, nil
}

// Poll fetches the state of a scan. The whole response body is kept as
// the report.
func (c *HTTPClient) Poll(ctx context.Context, dataID string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+url.PathEscape(dataID), nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	c.setCommonHeaders(req)

	body, err := c.do(ctx, req)
	if err != nil {
		return Result{}, err
	}

	var out pollResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, fmt.Errorf("%w: decoding poll response: %v", ErrServiceUnavailable, err)
	}

	res := Result{Report: json.RawMessage(body)}
	if out.ProcessInfo == nil {
		return res, nil
	}

	progress, err := percentage(out.ProcessInfo.ProgressPercentage)
	if err != nil {
		return Result{}, fmt.Errorf("%w: progress_percentage: %v", ErrServiceUnavailable, err)
	}
	if progress == 100 {
		res.Ready = true
		res.Safe = out.ProcessInfo.Result == "Allowed"
	}
	return res, nil
}

func (c *HTTPClient) setCommonHeaders(req *http.Request) {
	req.Header.Set("user_agent", c.cfg.UserAgent)
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
	}
}

// do executes req and maps every failure to ErrServiceUnavailable. A busy
// service (503) is waited on before the error is returned.
func (c *HTTPClient) do(ctx context.Context, req *http.Request) ([]byte, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		c.logger.Error(ctx, "invalid scan service API key", "status_code", resp.StatusCode)
	case http.StatusForbidden:
		c.logger.Warn(ctx, "scan service rejected request, usage limit may be reached", "status_code", resp.StatusCode)
	case http.StatusNotFound:
		c.logger.Error(ctx, "scan service does not know this scan", "status_code", resp.StatusCode)
		return nil, ErrScanNotFound
	case http.StatusServiceUnavailable:
		c.logger.Warn(ctx, "scan service busy, waiting before retrying", "status_code", resp.StatusCode)
		c.wait(ctx)
	default:
		c.logger.Error(ctx, "unexpected response from scan service", "status_code", resp.StatusCode)
	}
	return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
}

func (c *HTTPClient) wait(ctx context.Context) {
	_ = c.waiter.Wait(ctx, c.cfg.WaitInterval)
}

// percentage accepts an integral JSON number or a decimal string.
func percentage(v any) (int, error) {
	switch p := v.(type) {
	case float64:
		if p != math.Trunc(p) {
			return 0, fmt.Errorf("not an integer: %v", p)
		}
		return int(p), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(p))
	default:
		return 0, fmt.Errorf("unexpected value %v", v)
	}
}
