package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"github.com/dmitrijs2005/seftconsumer/internal/pipeline"
	"github.com/google/uuid"
)

// ReasonUndecodable marks a quarantined message whose body could not be
// parsed as an Envelope.
const ReasonUndecodable = "undecodable message"

// Processor classifies one token. *pipeline.Controller implements it.
type Processor interface {
	Process(ctx context.Context, raw, txID string) (pipeline.Outcome, error)
}

type ConsumerConfig struct {
	Workers int
	// PollInterval is slept when the queue is empty.
	PollInterval time.Duration
	// VisibilityTimeout hides a message while it is processed. It must
	// exceed the worst-case scan time.
	VisibilityTimeout time.Duration
	// RetryDelay is how long a Retryable message stays hidden.
	RetryDelay time.Duration
}

// Consumer runs workers that feed inbound messages to a Processor and settle
// them according to the outcome.
type Consumer struct {
	cfg       ConsumerConfig
	queue     *Queue
	processor Processor
	logger    logging.Logger
}

func NewConsumer(cfg ConsumerConfig, q *Queue, p Processor, logger logging.Logger) *Consumer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Consumer{cfg: cfg, queue: q, processor: p, logger: logger.With("module", "consumer", "queue", q.Name())}
}

// Run blocks until ctx is cancelled or a worker hits a fatal error, which is
// returned after every worker has stopped.
func (c *Consumer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		fatalErr error
	)

	for i := 1; i <= c.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := c.worker(ctx, id); err != nil {
				once.Do(func() {
					fatalErr = err
					cancel()
				})
			}
		}(i)
	}

	c.logger.Info(ctx, "consumer started", "workers", c.cfg.Workers)
	wg.Wait()
	c.logger.Info(context.Background(), "consumer stopped")
	return fatalErr
}

func (c *Consumer) worker(ctx context.Context, id int) error {
	log := c.logger.With("worker", id)
	for {
		if ctx.Err() != nil {
			return nil
		}

		handled, err := c.processNext(ctx, log)
		if err != nil {
			return err
		}
		if handled {
			continue
		}

		t := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// ProcessNext reads and settles at most one message. It reports whether a
// message was read; the error is non-nil only for fatal faults.
func (c *Consumer) ProcessNext(ctx context.Context) (bool, error) {
	return c.processNext(ctx, c.logger)
}

func (c *Consumer) processNext(ctx context.Context, log logging.Logger) (bool, error) {
	msg, err := c.queue.Read(ctx, c.queue.Name(), c.cfg.VisibilityTimeout)
	if err != nil {
		if ctx.Err() == nil {
			log.Error(ctx, "failed to read from queue", "error", err)
		}
		return false, nil
	}
	if msg == nil {
		return false, nil
	}

	// Settle even if shutdown starts mid-message.
	settleCtx := context.WithoutCancel(ctx)
	log = log.With("msg_id", msg.ID, "delivery_count", msg.ReadCount)

	env, err := DecodeEnvelope(msg.Body)
	if err != nil {
		log.Error(ctx, "undecodable message, quarantining", "error", err)
		body, _ := json.Marshal(struct {
			Reason string `json:"reason"`
			Raw    string `json:"raw"`
		}{ReasonUndecodable, string(msg.Body)})
		c.settle(settleCtx, log, msg, pipeline.Quarantine(ReasonUndecodable), body)
		return true, nil
	}
	if env.TxID == "" {
		env.TxID = uuid.NewString()
		log.Info(ctx, "message has no tx_id, generated one", "tx_id", env.TxID)
	}
	log = log.With("tx_id", env.TxID)
	log.Info(ctx, "received message")

	out, err := c.processor.Process(ctx, env.Token, env.TxID)
	if err != nil {
		if rerr := c.queue.Retry(settleCtx, msg.ID, 0); rerr != nil {
			log.Error(ctx, "failed to release message", "error", rerr)
		}
		return true, fmt.Errorf("processing message %d: %w", msg.ID, err)
	}

	env.Reason = out.Reason
	body, err := env.Encode()
	if err != nil {
		body = msg.Body
	}
	c.settle(settleCtx, log, msg, out, body)
	return true, nil
}

// settle acknowledges msg according to out. Failures leave the message to
// reappear after its visibility timeout.
func (c *Consumer) settle(ctx context.Context, log logging.Logger, msg *Message, out pipeline.Outcome, body []byte) {
	var err error
	switch out.Disposition {
	case pipeline.Accepted:
		err = c.queue.Archive(ctx, msg.ID)
	case pipeline.Quarantined:
		err = c.queue.Quarantine(ctx, msg.ID, body)
	case pipeline.Retryable:
		err = c.queue.Retry(ctx, msg.ID, c.cfg.RetryDelay)
	}
	if err != nil {
		log.Error(ctx, "failed to settle message", "outcome", out.String(), "error", err)
		return
	}
	log.Info(ctx, "message settled", "outcome", out.String())
}
