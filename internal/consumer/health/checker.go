// Package health reports whether the consumer's dependencies are reachable.
// A Checker pings them on an interval and publishes the result to the gRPC
// health service and the HTTP /healthcheck route.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name registered with the gRPC health service.
const ServiceName = "seft.consumer"

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// DefaultInterval is used when the checker is built with a zero interval.
const DefaultInterval = 5 * time.Second

// Pinger is satisfied by *sql.DB and delivery.Deliverer.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Report is a snapshot of the last check.
type Report struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	CheckedAt    time.Time         `json:"checked_at"`
}

func (r Report) Healthy() bool { return r.Status == StatusOK }

type Checker struct {
	deps     map[string]Pinger
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger
	server   *health.Server

	mu   sync.RWMutex
	last Report
}

// NewChecker builds a checker over the named dependencies. The gRPC health
// server starts in NOT_SERVING until the first check passes.
func NewChecker(deps map[string]Pinger, interval time.Duration, logger logging.Logger) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := &Checker{
		deps:     deps,
		interval: interval,
		timeout:  interval,
		logger:   logger.With("module", "health"),
		server:   health.NewServer(),
	}
	c.setServing(false)

	statuses := make(map[string]string, len(deps))
	for name := range deps {
		statuses[name] = StatusFailed
	}
	c.last = Report{Status: StatusFailed, Dependencies: statuses}
	return c
}

// Server returns the gRPC health service fed by this checker.
func (c *Checker) Server() *health.Server { return c.server }

// Report returns the last result.
func (c *Checker) Report() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	deps := make(map[string]string, len(c.last.Dependencies))
	for k, v := range c.last.Dependencies {
		deps[k] = v
	}
	r := c.last
	r.Dependencies = deps
	return r
}

// Check pings every dependency once and publishes the result.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	r := Report{Status: StatusOK, Dependencies: make(map[string]string, len(c.deps)), CheckedAt: time.Now().UTC()}
	for name, p := range c.deps {
		if err := p.Ping(ctx); err != nil {
			c.logger.Warn(ctx, "dependency unhealthy", "dependency", name, "error", err)
			r.Dependencies[name] = StatusFailed
			r.Status = StatusFailed
			continue
		}
		r.Dependencies[name] = StatusOK
	}

	c.mu.Lock()
	c.last = r
	c.mu.Unlock()

	c.setServing(r.Healthy())
	return r
}

// Run checks immediately and then on every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.Check(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

func (c *Checker) setServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	c.server.SetServingStatus("", st)
	c.server.SetServingStatus(ServiceName, st)
}
