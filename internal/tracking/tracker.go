// Package tracking turns detected replies into response events and moves them
// from the write buffer into the durable store.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reply-tracker/internal/buffer"
	"reply-tracker/internal/clock"
	"reply-tracker/internal/metrics"
	"reply-tracker/internal/storage"
)

// ErrBackupFailed aborts a cleanup: data is never deleted without a fresh backup.
var ErrBackupFailed = errors.New("backup creation failed")

// IncomingReply is what the chat layer knows about a reply when it arrives.
type IncomingReply struct {
	ResponderID        int64
	ResponderName      string
	ResponseText       string
	ChatID             int64
	ResponseTime       time.Time
	OriginalMessageID  int
	OriginalSenderID   *int64
	OriginalSenderName *string
	QuestionText       *string
	QuestionTime       time.Time
}

// Backupper creates an on-demand snapshot of the persisted files.
type Backupper interface {
	Create(ctx context.Context) bool
}

type CleanupResult struct {
	Removed int
	Kept    int
}

type Tracker struct {
	clock   *clock.Clock
	buf     *buffer.Buffer[storage.ResponseEvent]
	store   storage.Store
	backups Backupper
	log     zerolog.Logger
	metrics *metrics.Metrics

	// flushMu keeps flushes in capture order: a later drain may not commit
	// before an earlier one.
	flushMu sync.Mutex

	// stateMu orders captures against Close: a capture either lands before
	// the final drain or is refused.
	stateMu sync.Mutex
	closed  bool
}

type Option func(*Tracker)

func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithBufferCapacity(n int) Option {
	return func(t *Tracker) { t.buf = buffer.New[storage.ResponseEvent](n) }
}

func New(c *clock.Clock, store storage.Store, backups Backupper, opts ...Option) *Tracker {
	t := &Tracker{
		clock:   c,
		store:   store,
		backups: backups,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.buf == nil {
		t.buf = buffer.New[storage.ResponseEvent](buffer.DefaultCapacity)
	}
	return t
}

// Capture converts a reply into a ResponseEvent and queues it. It never
// touches the disk. After Close the event is built but not queued.
func (t *Tracker) Capture(in IncomingReply) storage.ResponseEvent {
	ev := t.newEvent(in)
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if t.closed {
		t.metrics.RecordDropped(1)
		t.log.Warn().Int64("user_id", ev.ResponderID).Int("msg_id", ev.OriginalMessageID).Msg("tracker closed, response not recorded")
		return ev
	}
	if t.buf.Append(ev) {
		t.metrics.RecordDropped(1)
		t.log.Warn().Int("capacity", t.buf.Cap()).Msg("write buffer full, dropped oldest unflushed response")
	}
	t.metrics.RecordCaptured()
	t.metrics.SetBufferSize(t.buf.Len())
	t.log.Debug().Int64("user_id", ev.ResponderID).Int("msg_id", ev.OriginalMessageID).Msg("response tracked")
	return ev
}

func (t *Tracker) newEvent(in IncomingReply) storage.ResponseEvent {
	name := in.ResponderName
	if name == "" {
		name = "Unknown"
	}
	responseTime := t.clock.In(in.ResponseTime)
	questionTime := t.clock.In(in.QuestionTime)
	return storage.ResponseEvent{
		ResponderID:          in.ResponderID,
		ResponderName:        name,
		ResponseTimestamp:    responseTime,
		ResponseText:         in.ResponseText,
		ChatID:               in.ChatID,
		QuestionTimestamp:    questionTime,
		QuestionText:         in.QuestionText,
		OriginalMessageID:    in.OriginalMessageID,
		OriginalSenderID:     in.OriginalSenderID,
		OriginalSenderName:   in.OriginalSenderName,
		ResponseDelaySeconds: responseTime.Sub(questionTime).Seconds(),
	}
}

// Pending is the number of captured events not yet persisted.
func (t *Tracker) Pending() int { return t.buf.Len() }

// Flush drains the buffer into the store. On failure the drained events are put
// back at the head of the buffer for the next attempt.
func (t *Tracker) Flush(ctx context.Context) (int, error) {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()
	return t.flushLocked(ctx)
}

func (t *Tracker) flushLocked(ctx context.Context) (int, error) {
	staged := t.buf.Drain()
	if len(staged) == 0 {
		return 0, nil
	}
	start := time.Now()
	batch := uuid.NewString()
	t.log.Debug().Str("batch", batch).Int("staged", len(staged)).Msg("flushing responses")
	var total int
	err := t.store.Update(ctx, func(current storage.EventLog) (storage.EventLog, error) {
		next := append(current, staged...)
		total = len(next)
		return next, nil
	})
	if err != nil {
		if dropped := t.buf.Requeue(staged); dropped > 0 {
			t.metrics.RecordDropped(dropped)
		}
		t.metrics.SetBufferSize(t.buf.Len())
		t.metrics.RecordFlush(metrics.ResultError, time.Since(start))
		t.log.Warn().Err(err).Str("batch", batch).Int("requeued", len(staged)).Msg("batch not saved, responses requeued")
		return 0, fmt.Errorf("flush batch %s of %d responses: %w", batch, len(staged), err)
	}
	t.metrics.SetBufferSize(t.buf.Len())
	t.metrics.RecordFlush(metrics.ResultOK, time.Since(start))
	t.log.Info().Str("batch", batch).Int("flushed", len(staged)).Int("total", total).Msg("batch saved responses")
	return len(staged), nil
}

// FlushAndLoad forces a flush and returns the persisted log, so readers never
// miss events that only live in memory.
func (t *Tracker) FlushAndLoad(ctx context.Context) (storage.EventLog, error) {
	if _, err := t.Flush(ctx); err != nil {
		return nil, err
	}
	return t.store.Load(ctx)
}

// Cleanup removes events whose response time is at or before now minus days.
// A backup of the current log is taken first; if it fails nothing is deleted.
func (t *Tracker) Cleanup(ctx context.Context, days int) (CleanupResult, error) {
	if days < 0 {
		return CleanupResult{}, fmt.Errorf("cleanup window must not be negative, got %d", days)
	}
	t.flushMu.Lock()
	defer t.flushMu.Unlock()
	if _, err := t.flushLocked(ctx); err != nil {
		return CleanupResult{}, err
	}

	cutoff := t.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	var res CleanupResult
	err := t.store.Update(ctx, func(current storage.EventLog) (storage.EventLog, error) {
		kept := make(storage.EventLog, 0, len(current))
		for _, ev := range current {
			if ev.ResponseTimestamp.After(cutoff) {
				kept = append(kept, ev)
			}
		}
		if !t.backups.Create(ctx) {
			return nil, ErrBackupFailed
		}
		res = CleanupResult{Removed: len(current) - len(kept), Kept: len(kept)}
		return kept, nil
	})
	if err != nil {
		return CleanupResult{}, err
	}
	t.log.Info().Int("removed", res.Removed).Int("kept", res.Kept).Int("days", days).Msg("cleanup complete")
	return res, nil
}

// Close performs the final flush on shutdown. Later calls are no-ops.
func (t *Tracker) Close(ctx context.Context) error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()
	t.stateMu.Lock()
	already := t.closed
	t.closed = true
	t.stateMu.Unlock()
	if already {
		return nil
	}
	n, err := t.flushLocked(ctx)
	if err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	t.log.Info().Int("flushed", n).Msg("tracker closed")
	return nil
}
