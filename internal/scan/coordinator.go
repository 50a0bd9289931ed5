package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/logging"
)

// Config bounds a scan session.
type Config struct {
	// WaitInterval is slept between two polls.
	WaitInterval time.Duration
	// MaxAttempts is the number of polls before giving up.
	MaxAttempts int
}

// Request describes the file to scan.
type Request struct {
	TxID     string
	FileName string
	CaseID   string
	SurveyID string
	Contents []byte
}

// Poll outcomes passed to a poll observer.
const (
	PollPending = "pending"
	PollSafe    = "safe"
	PollUnsafe  = "unsafe"
	PollError   = "error"
)

type Option func(*Coordinator)

// WithWaiter replaces the timer-based waiter.
func WithWaiter(w Waiter) Option {
	return func(c *Coordinator) { c.waiter = w }
}

// WithHandleStore enables resumption through store.
func WithHandleStore(store HandleStore) Option {
	return func(c *Coordinator) { c.handles = store }
}

// WithPollObserver registers fn to be told the outcome of every poll.
func WithPollObserver(fn func(outcome string)) Option {
	return func(c *Coordinator) { c.observe = fn }
}

// Coordinator runs scan sessions. It is safe for concurrent use; each call
// to Scan is an independent session.
type Coordinator struct {
	cfg     Config
	client  Client
	reports ReportRecorder
	handles HandleStore
	waiter  Waiter
	observe func(string)
	logger  logging.Logger
}

func NewCoordinator(cfg Config, client Client, reports ReportRecorder, logger logging.Logger, opts ...Option) *Coordinator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	c := &Coordinator{
		cfg:     cfg,
		client:  client,
		reports: reports,
		handles: NewMemoryHandleStore(),
		waiter:  TimerWaiter{},
		observe: func(string) {},
		logger:  logger.With("module", "scan"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Scan submits req (or resumes an earlier submission of the same contents)
// and polls until a verdict is available.
//
// It returns nil for a safe file, ErrUnsafe once the report has been
// recorded, ErrTimeout after MaxAttempts polls without a verdict, and an
// error wrapping ErrServiceUnavailable or the context error otherwise.
func (c *Coordinator) Scan(ctx context.Context, req Request) error {
	log := c.logger.With("tx_id", req.TxID, "case_id", req.CaseID, "filename", req.FileName)
	key := HandleKey(req.Contents)

	dataID, err := c.handle(ctx, key, req, log)
	if err != nil {
		return err
	}
	log = log.With("data_id", dataID)

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.waiter.Wait(ctx, c.cfg.WaitInterval); err != nil {
				return err
			}
		}

		res, err := c.client.Poll(ctx, dataID)
		if err != nil {
			c.observe(PollError)
			if errors.Is(err, ErrScanNotFound) {
				c.forget(ctx, key, log)
			}
			return err
		}

		if !res.Ready {
			c.observe(PollPending)
			log.Info(ctx, "scan results not ready", "attempt", attempt)
			continue
		}

		if res.Safe {
			c.observe(PollSafe)
			c.forget(ctx, key, log)
			log.Info(ctx, "file has been virus checked and confirmed safe")
			return nil
		}

		c.observe(PollUnsafe)
		report := Report{
			DataID:   dataID,
			TxID:     req.TxID,
			FileName: req.FileName,
			CaseID:   req.CaseID,
			SurveyID: req.SurveyID,
			Safe:     false,
			Body:     res.Report,
		}
		if err := c.reports.Record(ctx, report); err != nil {
			log.Error(ctx, "failed to record scan report", "error", err)
			return fmt.Errorf("%w: recording scan report: %v", ErrServiceUnavailable, err)
		}
		c.forget(ctx, key, log)
		log.Error(ctx, "unsafe file detected")
		return ErrUnsafe
	}

	log.Error(ctx, "unable to get results of scan", "attempts", c.cfg.MaxAttempts)
	return ErrTimeout
}

// handle returns the stored handle for key or submits the file. Store
// failures only cost a resubmission, so they are logged and ignored.
func (c *Coordinator) handle(ctx context.Context, key string, req Request, log logging.Logger) (string, error) {
	id, ok, err := c.handles.Get(ctx, key)
	if err != nil {
		log.Warn(ctx, "scan handle lookup failed", "error", err)
	}
	if ok {
		log.Info(ctx, "resuming scan", "data_id", id)
		return id, nil
	}

	log.Info(ctx, "sending file for scan")
	id, err = c.client.Submit(ctx, req.FileName, req.Contents)
	if err != nil {
		return "", err
	}
	if err := c.handles.Put(ctx, key, id); err != nil {
		log.Warn(ctx, "failed to store scan handle", "error", err)
	}
	return id, nil
}

func (c *Coordinator) forget(ctx context.Context, key string, log logging.Logger) {
	if err := c.handles.Delete(ctx, key); err != nil {
		log.Warn(ctx, "failed to drop scan handle", "error", err)
	}
}
