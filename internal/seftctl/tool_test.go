package seftctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	commonerr "github.com/dmitrijs2005/seftconsumer/internal/common"
	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"github.com/dmitrijs2005/seftconsumer/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueue keeps messages per queue name in memory. Read hands out the
// first visible message and hides it until released.
type fakeQueue struct {
	messages map[string][]*queue.Message
	hidden   map[int64]bool
	nextID   int64
	moveErr  error
	deleted  []int64
	released []int64
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{messages: map[string][]*queue.Message{}, hidden: map[int64]bool{}, nextID: 100}
}

func (f *fakeQueue) Name() string           { return "inbound" }
func (f *fakeQueue) QuarantineName() string { return "quarantine" }

func (f *fakeQueue) Read(_ context.Context, q string, _ time.Duration) (*queue.Message, error) {
	for _, m := range f.messages[q] {
		if !f.hidden[m.ID] {
			f.hidden[m.ID] = true
			m.ReadCount++
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeQueue) Delete(_ context.Context, q string, id int64) error {
	msgs := f.messages[q]
	for i, m := range msgs {
		if m.ID == id {
			f.messages[q] = append(msgs[:i], msgs[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return errors.New("no such message")
}

func (f *fakeQueue) SetVisibility(_ context.Context, _ string, id int64, _ time.Duration) error {
	f.hidden[id] = false
	f.released = append(f.released, id)
	return nil
}

func (f *fakeQueue) Send(_ context.Context, q string, body []byte) (int64, error) {
	f.nextID++
	f.messages[q] = append(f.messages[q], &queue.Message{ID: f.nextID, Body: body})
	return f.nextID, nil
}

func (f *fakeQueue) Move(ctx context.Context, from string, id int64, to string, body []byte) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	if _, err := f.Send(ctx, to, body); err != nil {
		return err
	}
	return f.Delete(ctx, from, id)
}

type stubDecrypter struct {
	claims map[string]any
	err    error
}

func (s stubDecrypter) Decrypt(context.Context, string, string) (map[string]any, error) {
	return s.claims, s.err
}

func goodClaims() map[string]any {
	return map[string]any{"file": "aGVsbG8=", "filename": "a.txt", "case_id": "C1", "survey_id": "S1"}
}

func quarantined(t *testing.T, q *fakeQueue, body string) int64 {
	t.Helper()
	id, err := q.Send(context.Background(), q.QuarantineName(), []byte(body))
	require.NoError(t, err)
	return id
}

func TestDecryptQuarantine_WritesFileAndDeletes(t *testing.T) {
	q := newFakeQueue()
	id := quarantined(t, q, `{"tx_id":"tx-1","token":"a.b.c.d.e","reason":"unsafe file"}`)
	dir := filepath.Join(t.TempDir(), "out")

	rec, err := NewTool(q, "submission", logging.Discard()).
		DecryptQuarantine(context.Background(), stubDecrypter{claims: goodClaims()}, dir)

	require.NoError(t, err)
	assert.Equal(t, id, rec.MessageID)
	assert.Equal(t, "tx-1", rec.TxID)
	assert.Equal(t, "unsafe file", rec.Reason)
	assert.Equal(t, "C1", rec.CaseID)
	assert.Equal(t, filepath.Join(dir, "a.txt"), rec.Path)

	data, err := os.ReadFile(rec.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, []int64{id}, q.deleted)
	assert.Empty(t, q.messages[q.QuarantineName()])
}

func TestDecryptQuarantine_FailureReleases(t *testing.T) {
	cases := []struct {
		name string
		body string
		dec  stubDecrypter
	}{
		{"undecodable", `not json`, stubDecrypter{claims: goodClaims()}},
		{"decrypt error", `{"token":"x"}`, stubDecrypter{err: commonerr.ErrDecrypt}},
		{"invalid claims", `{"token":"x"}`, stubDecrypter{claims: map[string]any{"file": "aGVsbG8="}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := newFakeQueue()
			id := quarantined(t, q, tc.body)

			_, err := NewTool(q, "submission", logging.Discard()).
				DecryptQuarantine(context.Background(), tc.dec, t.TempDir())

			require.Error(t, err)
			assert.Equal(t, []int64{id}, q.released)
			assert.Empty(t, q.deleted)
			assert.Len(t, q.messages[q.QuarantineName()], 1)
		})
	}
}

func TestDecryptQuarantine_Empty(t *testing.T) {
	q := newFakeQueue()

	_, err := NewTool(q, "submission", logging.Discard()).
		DecryptQuarantine(context.Background(), stubDecrypter{}, t.TempDir())

	assert.ErrorIs(t, err, ErrEmpty)
}

func TestReprocess_MovesAndClearsReason(t *testing.T) {
	q := newFakeQueue()
	id := quarantined(t, q, `{"tx_id":"tx-1","token":"a.b.c.d.e","reason":"receipt service error"}`)

	got, err := NewTool(q, "submission", logging.Discard()).Reprocess(context.Background())

	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Empty(t, q.messages[q.QuarantineName()])
	require.Len(t, q.messages[q.Name()], 1)
	assert.JSONEq(t, `{"tx_id":"tx-1","token":"a.b.c.d.e"}`, string(q.messages[q.Name()][0].Body))
}

func TestReprocess_UndecodableStays(t *testing.T) {
	q := newFakeQueue()
	id := quarantined(t, q, `{"reason":"undecodable message","raw":"junk"}`)

	_, err := NewTool(q, "submission", logging.Discard()).Reprocess(context.Background())

	require.Error(t, err)
	assert.Equal(t, []int64{id}, q.released)
	assert.Empty(t, q.messages[q.Name()])
}

func TestReprocess_MoveErrorReleases(t *testing.T) {
	q := newFakeQueue()
	q.moveErr = errors.New("tx failed")
	id := quarantined(t, q, `{"tx_id":"tx-1","token":"t"}`)

	_, err := NewTool(q, "submission", logging.Discard()).Reprocess(context.Background())

	require.Error(t, err)
	assert.Equal(t, []int64{id}, q.released)
}

func TestSubmit(t *testing.T) {
	q := newFakeQueue()

	id, err := NewTool(q, "submission", logging.Discard()).Submit(context.Background(), "tx-9", "a.b.c.d.e")

	require.NoError(t, err)
	require.Len(t, q.messages[q.Name()], 1)
	assert.Equal(t, id, q.messages[q.Name()][0].ID)
	assert.JSONEq(t, `{"tx_id":"tx-9","token":"a.b.c.d.e"}`, string(q.messages[q.Name()][0].Body))
}
