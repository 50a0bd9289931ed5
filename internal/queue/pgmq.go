// Package queue moves messages between pgmq queues and the pipeline.
//
// pgmq keeps each queue in Postgres. A read hides a message for a
// visibility timeout; the message reappears unless it is archived, deleted
// or its timeout is moved.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/dbx"
)

// Message is one row returned by pgmq.read.
type Message struct {
	ID        int64
	ReadCount int
	Body      []byte
}

// Queue wraps a pgmq inbound queue and its quarantine queue.
type Queue struct {
	db         *sql.DB
	name       string
	quarantine string
}

func New(db *sql.DB, name, quarantine string) *Queue {
	return &Queue{db: db, name: name, quarantine: quarantine}
}

func (q *Queue) Name() string           { return q.name }
func (q *Queue) QuarantineName() string { return q.quarantine }

// Ensure installs the pgmq extension when possible and creates both queues
// if they are missing.
func (q *Queue) Ensure(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS pgmq CASCADE`); err != nil {
		return fmt.Errorf("pgmq extension not available: %w", err)
	}
	for _, name := range []string{q.name, q.quarantine} {
		var exists bool
		err := q.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM pgmq.meta WHERE queue_name = $1)`, name).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check queue %s: %w", name, err)
		}
		if exists {
			continue
		}
		if _, err := q.db.ExecContext(ctx, `SELECT pgmq.create($1)`, name); err != nil {
			return fmt.Errorf("create queue %s: %w", name, err)
		}
	}
	return nil
}

// Read takes the next visible message from queue, hiding it for vt. It
// returns nil when the queue is empty.
func (q *Queue) Read(ctx context.Context, queue string, vt time.Duration) (*Message, error) {
	var m Message
	err := q.db.QueryRowContext(ctx,
		`SELECT msg_id, read_ct, message FROM pgmq.read($1, $2, 1)`,
		queue, seconds(vt),
	).Scan(&m.ID, &m.ReadCount, &m.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", queue, err)
	}
	return &m, nil
}

// Archive moves an inbound message to the archive table.
func (q *Queue) Archive(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `SELECT pgmq.archive($1::text, $2::bigint)`, q.name, id)
	if err != nil {
		return fmt.Errorf("archive %d: %w", id, err)
	}
	return nil
}

// Delete removes a message from queue.
func (q *Queue) Delete(ctx context.Context, queue string, id int64) error {
	return deleteMessage(ctx, q.db, queue, id)
}

// Retry makes an inbound message visible again after delay.
func (q *Queue) Retry(ctx context.Context, id int64, delay time.Duration) error {
	return q.SetVisibility(ctx, q.name, id, delay)
}

// SetVisibility moves the visibility timeout of a message in queue.
func (q *Queue) SetVisibility(ctx context.Context, queue string, id int64, delay time.Duration) error {
	_, err := q.db.ExecContext(ctx, `SELECT pgmq.set_vt($1::text, $2::bigint, $3::integer)`, queue, id, seconds(delay))
	if err != nil {
		return fmt.Errorf("set_vt %d: %w", id, err)
	}
	return nil
}

// Send enqueues body on queue and returns the new message id.
func (q *Queue) Send(ctx context.Context, queue string, body []byte) (int64, error) {
	return send(ctx, q.db, queue, body)
}

// Quarantine sends body to the quarantine queue and removes message id from
// the inbound queue in one transaction.
func (q *Queue) Quarantine(ctx context.Context, id int64, body []byte) error {
	return q.Move(ctx, q.name, id, q.quarantine, body)
}

// Move sends body to queue to and deletes message id from queue from, in
// one transaction.
func (q *Queue) Move(ctx context.Context, from string, id int64, to string, body []byte) error {
	return dbx.WithTx(ctx, q.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := send(ctx, tx, to, body); err != nil {
			return err
		}
		return deleteMessage(ctx, tx, from, id)
	})
}

func send(ctx context.Context, db dbx.DBTX, queue string, body []byte) (int64, error) {
	var id int64
	if err := db.QueryRowContext(ctx, `SELECT pgmq.send($1, $2::jsonb)`, queue, string(body)).Scan(&id); err != nil {
		return 0, fmt.Errorf("send to %s: %w", queue, err)
	}
	return id, nil
}

func deleteMessage(ctx context.Context, db dbx.DBTX, queue string, id int64) error {
	if _, err := db.ExecContext(ctx, `SELECT pgmq.delete($1::text, $2::bigint)`, queue, id); err != nil {
		return fmt.Errorf("delete %d from %s: %w", id, queue, err)
	}
	return nil
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
