// Package pipeline classifies every inbound message as Accepted,
// Quarantined or Retryable.
//
// Process runs unseal, validate, receipt, scan and delivery in that order and
// stops at the first step that fails. Quarantine is reserved for messages
// that can never succeed; anything caused by a dependency is Retryable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/common"
	"github.com/dmitrijs2005/seftconsumer/internal/delivery"
	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"github.com/dmitrijs2005/seftconsumer/internal/payload"
	"github.com/dmitrijs2005/seftconsumer/internal/receipt"
	"github.com/dmitrijs2005/seftconsumer/internal/scan"
)

// Unsealer decrypts a compact token. *cryptox.Unsealer implements it.
type Unsealer interface {
	Decrypt(ctx context.Context, raw, purpose string) (map[string]any, error)
}

// Scanner runs a scan session. *scan.Coordinator implements it.
type Scanner interface {
	Scan(ctx context.Context, req scan.Request) error
}

type Config struct {
	// Purpose selects the key material used to unseal messages.
	Purpose      string
	ScanEnabled  bool
	DeliveryRoot string
}

type Deps struct {
	Unsealer  Unsealer
	Receipts  receipt.Notifier
	Scanner   Scanner
	Deliverer delivery.Deliverer
	Metrics   *Metrics
}

// Controller is stateless between messages and safe for concurrent use as
// long as its dependencies are.
type Controller struct {
	cfg    Config
	deps   Deps
	logger logging.Logger
}

func NewController(cfg Config, deps Deps, logger logging.Logger) *Controller {
	return &Controller{cfg: cfg, deps: deps, logger: logger.With("module", "pipeline")}
}

// Process classifies one message. The returned error is non-nil only for
// configuration faults, in which case the message must be left for another
// attempt and consumption should stop.
func (c *Controller) Process(ctx context.Context, raw, txID string) (Outcome, error) {
	if err := c.check(); err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	log := c.logger.With("tx_id", txID)

	out, err := c.process(ctx, raw, txID, log)
	if err != nil {
		log.Error(ctx, "configuration fault while processing message", "error", err)
		return Outcome{}, err
	}

	c.deps.Metrics.observe(out, time.Since(start))
	switch out.Disposition {
	case Accepted:
		log.Info(ctx, "message accepted")
	default:
		log.Warn(ctx, "message not accepted", "disposition", out.Disposition.String(), "reason", out.Reason)
	}
	return out, nil
}

func (c *Controller) process(ctx context.Context, raw, txID string, log logging.Logger) (Outcome, error) {
	claims, err := c.deps.Unsealer.Decrypt(ctx, raw, c.cfg.Purpose)
	if err != nil {
		switch {
		case common.IsFatal(err):
			return Outcome{}, err
		case errors.Is(err, common.ErrDecrypt),
			errors.Is(err, common.ErrMalformedToken),
			errors.Is(err, common.ErrEncoding):
			log.Warn(ctx, "failed to decrypt message", "error", err)
			return Quarantine(ReasonBadDecrypt), nil
		default:
			log.Error(ctx, "unexpected failure while unsealing message", "error", err)
			return Quarantine(ReasonUnexpectedUnseal), nil
		}
	}

	p, err := payload.ExtractFile(claims)
	if err != nil {
		log.Warn(ctx, "invalid payload", "error", err)
		return Quarantine(ReasonMissingField), nil
	}
	log = log.With("case_id", p.CaseID, "survey_id", p.SurveyID, "filename", p.FileName)
	log.Info(ctx, "decrypted message")

	status, err := c.deps.Receipts.Notify(ctx, p.CaseID)
	switch {
	case err != nil:
		log.Error(ctx, "receipt gateway unreachable", "error", err)
		return Retry(ReasonReceiptService), nil
	case status == receipt.ServerError:
		log.Error(ctx, "receipt gateway server error")
		return Retry(ReasonReceiptService), nil
	case status == receipt.ClientError:
		log.Warn(ctx, "receipt gateway rejected case, continuing")
	}

	if c.cfg.ScanEnabled {
		err := c.deps.Scanner.Scan(ctx, scan.Request{
			TxID:     txID,
			FileName: p.FileName,
			CaseID:   p.CaseID,
			SurveyID: p.SurveyID,
			Contents: p.DecodedContents,
		})
		switch {
		case err == nil:
		case errors.Is(err, scan.ErrUnsafe):
			return Quarantine(ReasonUnsafeFile), nil
		case errors.Is(err, scan.ErrTimeout):
			return Retry(ReasonScanTimeout), nil
		default:
			log.Error(ctx, "scan failed", "error", err)
			return Retry(ReasonScanService), nil
		}
	}

	dir := delivery.Path(c.cfg.DeliveryRoot, p.SurveyID)
	if err := c.deps.Deliverer.Deliver(ctx, dir, p.FileName, p.DecodedContents); err != nil {
		log.Error(ctx, "delivery failed", "path", dir, "error", err)
		return Retry(ReasonDeliveryFailed), nil
	}

	return Accept(), nil
}

func (c *Controller) check() error {
	switch {
	case c.deps.Unsealer == nil:
		return fmt.Errorf("%w: pipeline has no unsealer", common.ErrConfiguration)
	case c.deps.Receipts == nil:
		return fmt.Errorf("%w: pipeline has no receipt notifier", common.ErrConfiguration)
	case c.deps.Deliverer == nil:
		return fmt.Errorf("%w: pipeline has no deliverer", common.ErrConfiguration)
	case c.cfg.ScanEnabled && c.deps.Scanner == nil:
		return fmt.Errorf("%w: scanning enabled without a scanner", common.ErrConfiguration)
	}
	return nil
}
