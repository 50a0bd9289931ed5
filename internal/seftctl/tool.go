// Package seftctl implements operator commands for the SEFT consumer:
// recovering quarantined files, sending them back for processing and sealing
// test submissions.
package seftctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/cryptox"
	"github.com/dmitrijs2005/seftconsumer/internal/filex"
	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"github.com/dmitrijs2005/seftconsumer/internal/payload"
	"github.com/dmitrijs2005/seftconsumer/internal/queue"
)

// ErrEmpty is returned when the quarantine queue has nothing to read.
var ErrEmpty = errors.New("quarantine queue is empty")

// readTimeout hides a quarantined message while an operator command works on it.
const readTimeout = time.Minute

// Queue is the part of *queue.Queue the tool uses.
type Queue interface {
	Name() string
	QuarantineName() string
	Read(ctx context.Context, queue string, vt time.Duration) (*queue.Message, error)
	Delete(ctx context.Context, queue string, id int64) error
	SetVisibility(ctx context.Context, queue string, id int64, delay time.Duration) error
	Send(ctx context.Context, queue string, body []byte) (int64, error)
	Move(ctx context.Context, from string, id int64, to string, body []byte) error
}

// Decrypter unseals a token. *cryptox.Unsealer implements it.
type Decrypter interface {
	Decrypt(ctx context.Context, raw, purpose string) (map[string]any, error)
}

type Tool struct {
	queue   Queue
	logger  logging.Logger
	purpose string
}

func NewTool(q Queue, purpose string, logger logging.Logger) *Tool {
	return &Tool{queue: q, purpose: purpose, logger: logger.With("module", "seftctl")}
}

// Recovered describes a file written by DecryptQuarantine.
type Recovered struct {
	MessageID int64
	TxID      string
	Reason    string
	Path      string
	CaseID    string
	SurveyID  string
}

// DecryptQuarantine reads one quarantined message, unseals it and writes the
// file into outDir. The message is deleted once the file is written and
// released for another attempt otherwise.
func (t *Tool) DecryptQuarantine(ctx context.Context, dec Decrypter, outDir string) (*Recovered, error) {
	dir, err := filex.EnsureDir(outDir)
	if err != nil {
		return nil, err
	}

	msg, err := t.read(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := t.recover(ctx, dec, msg, dir)
	if err != nil {
		t.release(ctx, msg.ID)
		return nil, err
	}

	if err := t.queue.Delete(ctx, t.queue.QuarantineName(), msg.ID); err != nil {
		return rec, fmt.Errorf("file written to %s but message %d was not deleted: %w", rec.Path, msg.ID, err)
	}
	t.logger.Info(ctx, "quarantined file recovered", "msg_id", msg.ID, "tx_id", rec.TxID, "path", rec.Path)
	return rec, nil
}

func (t *Tool) recover(ctx context.Context, dec Decrypter, msg *queue.Message, dir string) (*Recovered, error) {
	env, err := queue.DecodeEnvelope(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("message %d: %w", msg.ID, err)
	}
	claims, err := dec.Decrypt(ctx, env.Token, t.purpose)
	if err != nil {
		return nil, fmt.Errorf("message %d: %w", msg.ID, err)
	}
	p, err := payload.ExtractFile(claims)
	if err != nil {
		return nil, fmt.Errorf("message %d: %w", msg.ID, err)
	}
	path, err := filex.WriteFile(dir, p.FileName, p.DecodedContents)
	if err != nil {
		return nil, err
	}
	return &Recovered{
		MessageID: msg.ID,
		TxID:      env.TxID,
		Reason:    env.Reason,
		Path:      path,
		CaseID:    p.CaseID,
		SurveyID:  p.SurveyID,
	}, nil
}

// Reprocess moves one quarantined message back to the inbound queue with its
// quarantine reason cleared, and returns the new message id.
func (t *Tool) Reprocess(ctx context.Context) (int64, error) {
	msg, err := t.read(ctx)
	if err != nil {
		return 0, err
	}

	env, err := queue.DecodeEnvelope(msg.Body)
	if err != nil {
		t.release(ctx, msg.ID)
		return 0, fmt.Errorf("message %d cannot be reprocessed: %w", msg.ID, err)
	}
	env.Reason = ""
	body, err := env.Encode()
	if err != nil {
		t.release(ctx, msg.ID)
		return 0, err
	}

	if err := t.queue.Move(ctx, t.queue.QuarantineName(), msg.ID, t.queue.Name(), body); err != nil {
		t.release(ctx, msg.ID)
		return 0, fmt.Errorf("moving message %d: %w", msg.ID, err)
	}
	t.logger.Info(ctx, "quarantined message requeued", "msg_id", msg.ID, "tx_id", env.TxID)
	return msg.ID, nil
}

// Submit wraps token in an envelope and sends it to the inbound queue.
func (t *Tool) Submit(ctx context.Context, txID, token string) (int64, error) {
	body, err := queue.Envelope{TxID: txID, Token: token}.Encode()
	if err != nil {
		return 0, err
	}
	return t.queue.Send(ctx, t.queue.Name(), body)
}

// Seal signs and encrypts claims with sender-side key material.
func Seal(keys cryptox.KeyGetter, purpose, kid string, claims map[string]any) (string, error) {
	return cryptox.NewSealer(keys, kid).Encrypt(claims, purpose)
}

func (t *Tool) read(ctx context.Context) (*queue.Message, error) {
	msg, err := t.queue.Read(ctx, t.queue.QuarantineName(), readTimeout)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrEmpty
	}
	return msg, nil
}

func (t *Tool) release(ctx context.Context, id int64) {
	if err := t.queue.SetVisibility(context.WithoutCancel(ctx), t.queue.QuarantineName(), id, 0); err != nil {
		t.logger.Warn(ctx, "failed to release message", "msg_id", id, "error", err)
	}
}
