// Package backup snapshots persisted files into a backup directory and prunes
// old snapshots.
//
// Retention has two thresholds: the newest MinKeep snapshots of an extension
// always survive, and older ones survive only while younger than
// RetentionDays.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reply-tracker/internal/clock"
	"reply-tracker/internal/metrics"
)

// Locker guards a target file while it is copied.
type Locker interface {
	Lock(ctx context.Context) (func(), error)
}

type Target struct {
	Path string
	// Lock is taken around the copy. Nil means the caller already holds
	// whatever lock protects Path.
	Lock Locker
	// Optional targets are skipped while the file does not exist.
	Optional bool
}

func (t Target) ext() string { return filepath.Ext(t.Path) }

func (t Target) base() string {
	return strings.TrimSuffix(filepath.Base(t.Path), t.ext())
}

// Snapshot is one backup file. Snapshots are never modified, only deleted.
type Snapshot struct {
	Name    string
	Path    string
	Ext     string
	ModTime time.Time
	Size    int64
}

type Manager struct {
	dir           string
	targets       []Target
	retentionDays int
	minKeep       int
	now           func() time.Time
	stamp         func(time.Time) string
	log           zerolog.Logger
	metrics       *metrics.Metrics
}

type Option func(*Manager)

func WithRetentionDays(days int) Option {
	return func(m *Manager) { m.retentionDays = days }
}

func WithMinKeep(n int) Option {
	return func(m *Manager) { m.minKeep = n }
}

// WithClock takes the current time and snapshot name stamps from c.
func WithClock(c *clock.Clock) Option {
	return func(m *Manager) {
		m.now = c.Now
		m.stamp = c.BackupStamp
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func New(dir string, targets []Target, opts ...Option) (*Manager, error) {
	m := &Manager{
		dir:           dir,
		targets:       targets,
		retentionDays: 30,
		minKeep:       50,
		now:           time.Now,
		stamp:         func(t time.Time) string { return t.Format(clock.BackupLayout) },
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure backup dir: %w", err)
	}
	return m, nil
}

func (m *Manager) Dir() string { return m.dir }

// Extensions lists the distinct extensions of the tracked files, each of which
// gets its own retention sweep.
func (m *Manager) Extensions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range m.targets {
		ext := t.ext()
		if !seen[ext] {
			seen[ext] = true
			out = append(out, ext)
		}
	}
	return out
}

// Create copies every target into the backup directory and then prunes each
// tracked extension. It reports false when any required copy fails.
func (m *Manager) Create(ctx context.Context) bool {
	now := m.now()
	stamp := m.stamp(now)
	for _, t := range m.targets {
		if t.Optional {
			if _, err := os.Stat(t.Path); os.IsNotExist(err) {
				continue
			}
		}
		if err := m.copyTarget(ctx, t, stamp); err != nil {
			m.log.Error().Err(err).Str("file", t.Path).Msg("backup failed")
			m.metrics.RecordBackup(false, now)
			return false
		}
	}
	for _, ext := range m.Extensions() {
		m.Prune(ext)
	}
	m.metrics.RecordBackup(true, now)
	m.log.Info().Str("stamp", stamp).Msg("created backup")
	return true
}

func (m *Manager) copyTarget(ctx context.Context, t Target, stamp string) error {
	if t.Lock != nil {
		unlock, err := t.Lock.Lock(ctx)
		if err != nil {
			return err
		}
		defer unlock()
	}
	name, err := copyFile(t.Path, m.dir, fmt.Sprintf("%s_%s", t.base(), stamp), t.ext())
	if err != nil {
		return err
	}
	m.log.Debug().Str("file", name).Msg("snapshot written")
	return nil
}

// maxSameStamp bounds the "_N" suffixes tried for snapshots sharing a stamp.
const maxSameStamp = 100

// copyFile streams src into a temporary file in dir and links it under
// <name><ext>, or <name>_N<ext> when that name is taken. Existing snapshots are
// never replaced and a half-written one is never listed.
func copyFile(src, dir, name, ext string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer func(in *os.File) {
		_ = in.Close()
	}(in)

	out, err := os.CreateTemp(dir, name+"_*.tmp")
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	tmp := out.Name()
	defer func() {
		_ = os.Remove(tmp)
	}()
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	for n := 0; n < maxSameStamp; n++ {
		dst := name + ext
		if n > 0 {
			dst = fmt.Sprintf("%s_%d%s", name, n, ext)
		}
		err := os.Link(tmp, filepath.Join(dir, dst))
		if err == nil {
			return dst, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("publish snapshot: %w", err)
		}
	}
	return "", fmt.Errorf("publish snapshot: %d snapshots already named %s", maxSameStamp, name)
}

// List returns the snapshots with the given extension, newest first by
// modification time.
func (m *Manager) List(ext string) ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	var out []Snapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, Snapshot{
			Name:    e.Name(),
			Path:    filepath.Join(m.dir, e.Name()),
			Ext:     ext,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Name > out[j].Name
		}
		return out[i].ModTime.After(out[j].ModTime)
	})
	return out, nil
}

// Prune applies the retention policy to one extension and returns how many
// snapshots were deleted. Deletion failures are logged and skipped.
func (m *Manager) Prune(ext string) int {
	snaps, err := m.List(ext)
	if err != nil {
		m.log.Warn().Err(err).Str("ext", ext).Msg("failed to list backups")
		return 0
	}
	keep := m.minKeep
	if keep > len(snaps) {
		keep = len(snaps)
	}
	cutoff := m.now().Add(-time.Duration(m.retentionDays) * 24 * time.Hour)
	kept, deleted := keep, 0
	for _, s := range snaps[keep:] {
		if !s.ModTime.Before(cutoff) {
			kept++
			continue
		}
		if err := os.Remove(s.Path); err != nil {
			m.log.Warn().Err(err).Str("file", s.Name).Msg("failed to remove old backup")
			continue
		}
		deleted++
		m.log.Debug().Str("file", s.Name).Msg("removed old backup")
	}
	m.metrics.RecordPruned(deleted)
	m.log.Debug().Int("kept", kept).Str("ext", ext).Msg("retention sweep done")
	return deleted
}
