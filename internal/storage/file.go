package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"reply-tracker/internal/metrics"
)

// FileStore keeps the whole event log in one pretty-printed JSON array.
//
// Every read and write happens under an exclusive FileLock on <path>.lock.
// The parsed log is memoized until the next successful write; the memo is
// guarded by mu, which is always taken before the file lock.
type FileStore struct {
	path           string
	lock           *FileLock
	lockTimeout    time.Duration
	backupInterval int
	snapshotter    Snapshotter
	log            zerolog.Logger
	metrics        *metrics.Metrics

	mu     sync.Mutex
	cache  EventLog
	cached bool
}

type Option func(*FileStore)

// WithBackupInterval triggers the snapshotter whenever a saved log length is a
// multiple of n. Zero disables periodic snapshots.
func WithBackupInterval(n int) Option {
	return func(s *FileStore) { s.backupInterval = n }
}

func WithSnapshotter(sn Snapshotter) Option {
	return func(s *FileStore) { s.snapshotter = sn }
}

func WithLockTimeout(d time.Duration) Option {
	return func(s *FileStore) { s.lockTimeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *FileStore) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *FileStore) { s.metrics = m }
}

// NewFileStore prepares the directory and creates an empty log file if needed.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	s := &FileStore{path: path, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure store dir: %w", err)
	}
	created, err := EnsureJSONFile(path, EventLog{})
	if err != nil {
		return nil, fmt.Errorf("failed to init store file: %w", err)
	}
	if created {
		s.log.Debug().Str("path", path).Msg("created missing store file")
	}
	s.lock = NewFileLock(path, s.lockTimeout)
	return s, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (EventLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached {
		return s.cache.Clone(), nil
	}
	unlock, err := s.lock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	log, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	return log.Clone(), nil
}

func (s *FileStore) Save(ctx context.Context, log EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return s.writeLocked(ctx, log)
}

func (s *FileStore) Update(ctx context.Context, fn func(EventLog) (EventLog, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	// The memo may predate a write by another process; mutations always
	// start from the file.
	current, err := s.read()
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.writeLocked(ctx, next)
}

// loadLocked reads the file and memoizes it. Callers hold mu and the file lock.
func (s *FileStore) loadLocked() (EventLog, error) {
	log, err := s.read()
	if err != nil {
		return nil, err
	}
	s.cache = log
	s.cached = true
	s.metrics.SetStoreEvents(len(log))
	return log, nil
}

func (s *FileStore) read() (EventLog, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return EventLog{}, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return EventLog{}, nil
	}
	var log EventLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, &CorruptStoreError{Path: s.path, Err: err}
	}
	if err := checkRequired(data); err != nil {
		return nil, &CorruptStoreError{Path: s.path, Err: err}
	}
	if log == nil {
		log = EventLog{}
	}
	return log, nil
}

// requiredFields must be present and non-null in every persisted event;
// decoding alone would turn a missing one into a zero value.
var requiredFields = []string{
	"responder_id",
	"response_timestamp",
	"chat_id",
	"question_timestamp",
	"original_message_id",
	"response_delay_seconds",
}

func checkRequired(data []byte) error {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	for i, rec := range records {
		for _, key := range requiredFields {
			raw, ok := rec[key]
			if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				return fmt.Errorf("event %d: missing %s", i, key)
			}
		}
	}
	return nil
}

func (s *FileStore) writeLocked(ctx context.Context, log EventLog) error {
	if log == nil {
		log = EventLog{}
	}
	if err := WriteJSONAtomic(s.path, log); err != nil {
		s.metrics.RecordStoreSave(false)
		return fmt.Errorf("save store: %w", err)
	}
	s.cache = nil
	s.cached = false
	s.metrics.RecordStoreSave(true)
	s.metrics.SetStoreEvents(len(log))

	if s.backupInterval > 0 && len(log)%s.backupInterval == 0 && s.snapshotter != nil {
		if s.snapshotter.Create(ctx) {
			s.log.Info().Int("total_responses", len(log)).Msg("created periodic backup")
		} else {
			s.log.Warn().Int("total_responses", len(log)).Msg("periodic backup failed")
		}
		return nil
	}
	s.log.Debug().Int("count", len(log)).Msg("saved responses to file")
	return nil
}
