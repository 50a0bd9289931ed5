// Package scan coordinates virus scanning of submitted files.
//
// A scan session is submitted once, then polled at a fixed interval for a
// bounded number of attempts. The session ends Safe, Unsafe or Exhausted.
// Sessions are independent: each is addressed by the handle the scan
// service returned, and the coordinator keeps no per-session state of its
// own beyond the resumable HandleStore entry.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsafe means the service finished scanning and rejected the file.
	ErrUnsafe = errors.New("scan: file is not safe")
	// ErrTimeout means the scan did not finish within the attempt budget.
	ErrTimeout = errors.New("scan: attempts exhausted before result was ready")
	// ErrServiceUnavailable covers every transport or service fault. The
	// message should be retried later.
	ErrServiceUnavailable = errors.New("scan: service unavailable")
	// ErrScanNotFound is returned when the service no longer knows a handle,
	// e.g. after failing over to a standby node.
	ErrScanNotFound = fmt.Errorf("%w: unknown scan handle", ErrServiceUnavailable)
)

// Result is the state of a scan as reported by one poll.
type Result struct {
	Ready  bool
	Safe   bool
	Report json.RawMessage
}

// Client talks to the scan service.
type Client interface {
	// Submit uploads contents and returns the service's handle for the scan.
	Submit(ctx context.Context, fileName string, contents []byte) (string, error)
	// Poll returns the current state of the scan identified by dataID.
	Poll(ctx context.Context, dataID string) (Result, error)
}

// Report is the audit record kept for an unsafe file.
type Report struct {
	DataID   string
	TxID     string
	FileName string
	CaseID   string
	SurveyID string
	Safe     bool
	Body     json.RawMessage
}

// ReportRecorder persists scan reports.
type ReportRecorder interface {
	Record(ctx context.Context, r Report) error
}

// Waiter suspends the caller for d or until ctx is done.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

// WaitFunc adapts a function to Waiter.
type WaitFunc func(ctx context.Context, d time.Duration) error

func (f WaitFunc) Wait(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerWaiter waits on a timer and returns early with ctx.Err() on
// cancellation.
type TimerWaiter struct{}

func (TimerWaiter) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
