// Package access decides who may run which command. Admins and workers are two
// small JSON files that are re-read on every check, so a role change applies
// to the very next command.
package access

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

const (
	AdminKey  = "admin_users"
	WorkerKey = "target_users"
)

// Outcome describes what a role mutation did.
type Outcome int

const (
	Changed Outcome = iota
	AlreadyAdmin
	AlreadyWorker
	NotAdmin
	NotWorker
)

func (o Outcome) String() string {
	switch o {
	case Changed:
		return "changed"
	case AlreadyAdmin:
		return "already_admin"
	case AlreadyWorker:
		return "already_worker"
	case NotAdmin:
		return "not_admin"
	case NotWorker:
		return "not_worker"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type Gate struct {
	admins  *FileRoleSet
	workers *FileRoleSet
	log     zerolog.Logger

	// mu serializes read-modify-write of the two files.
	mu sync.Mutex
}

func NewGate(admins, workers *FileRoleSet, log zerolog.Logger) *Gate {
	return &Gate{admins: admins, workers: workers, log: log}
}

// Open creates the role files when missing and returns a Gate over them.
func Open(adminPath, workerPath string, log zerolog.Logger) (*Gate, error) {
	admins, err := NewFileRoleSet(adminPath, AdminKey)
	if err != nil {
		return nil, err
	}
	workers, err := NewFileRoleSet(workerPath, WorkerKey)
	if err != nil {
		return nil, err
	}
	return NewGate(admins, workers, log), nil
}

// IsAdmin fails closed: an unreadable admin file means nobody is an admin.
func (g *Gate) IsAdmin(id int64) bool {
	admins, err := g.admins.Load()
	if err != nil {
		g.log.Error().Err(err).Msg("failed to load admin users")
		return false
	}
	return admins.Has(id)
}

// IsWorker reports whether id may use worker commands. Admins always can.
func (g *Gate) IsWorker(id int64) bool {
	if g.IsAdmin(id) {
		return true
	}
	return g.IsTracked(id)
}

// IsTracked reports whether replies from id are measured. Only the workers set
// counts here; admin replies are not tracked.
func (g *Gate) IsTracked(id int64) bool {
	workers, err := g.workers.Load()
	if err != nil {
		g.log.Error().Err(err).Msg("failed to load target users")
		return false
	}
	return workers.Has(id)
}

// Promote makes id an admin and drops it from the workers set.
func (g *Gate) Promote(id int64) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.promoteLocked(id)
}

func (g *Gate) promoteLocked(id int64) (Outcome, error) {
	admins, err := g.admins.Load()
	if err != nil {
		return 0, err
	}
	if admins.Has(id) {
		return AlreadyAdmin, nil
	}
	workers, err := g.workers.Load()
	if err != nil {
		return 0, err
	}
	// Admins first, so a failed second write leaves the user in both sets.
	admins.Add(id)
	if err := g.admins.Save(admins); err != nil {
		return 0, err
	}
	g.log.Info().Int64("user_id", id).Msg("added admin")
	if workers.Has(id) {
		workers.Remove(id)
		if err := g.workers.Save(workers); err != nil {
			return 0, err
		}
		g.log.Info().Int64("user_id", id).Msg("removed from workers (promoted to admin)")
	}
	return Changed, nil
}

// Demote removes id from admins. Worker membership is not restored.
func (g *Gate) Demote(id int64) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	admins, err := g.admins.Load()
	if err != nil {
		return 0, err
	}
	if !admins.Has(id) {
		return NotAdmin, nil
	}
	admins.Remove(id)
	if err := g.admins.Save(admins); err != nil {
		return 0, err
	}
	g.log.Info().Int64("user_id", id).Msg("removed admin")
	return Changed, nil
}

func (g *Gate) AddWorker(id int64) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	admins, err := g.admins.Load()
	if err != nil {
		return 0, err
	}
	if admins.Has(id) {
		return AlreadyAdmin, nil
	}
	workers, err := g.workers.Load()
	if err != nil {
		return 0, err
	}
	if workers.Has(id) {
		return AlreadyWorker, nil
	}
	workers.Add(id)
	if err := g.workers.Save(workers); err != nil {
		return 0, err
	}
	g.log.Info().Int64("user_id", id).Msg("added user to tracking list")
	return Changed, nil
}

func (g *Gate) RemoveWorker(id int64) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	workers, err := g.workers.Load()
	if err != nil {
		return 0, err
	}
	if !workers.Has(id) {
		return NotWorker, nil
	}
	workers.Remove(id)
	if err := g.workers.Save(workers); err != nil {
		return 0, err
	}
	g.log.Info().Int64("user_id", id).Msg("removed user from tracking list")
	return Changed, nil
}

func (g *Gate) Admins() ([]int64, error) {
	s, err := g.admins.Load()
	if err != nil {
		return nil, err
	}
	return s.Sorted(), nil
}

func (g *Gate) Workers() ([]int64, error) {
	s, err := g.workers.Load()
	if err != nil {
		return nil, err
	}
	return s.Sorted(), nil
}

// Permissions lists what id may do, for display.
func (g *Gate) Permissions(id int64) []string {
	perms := []string{"View own stats"}
	admin := g.IsAdmin(id)
	if admin {
		perms = append(perms, "Manage users", "Export data", "View all stats", "Manage admins")
	}
	if admin || g.IsTracked(id) {
		perms = append(perms, "Debug access", "Response tracking")
	}
	return perms
}

// Seed promotes the bootstrap admins from configuration. It returns how many
// were newly added.
func (g *Gate) Seed(ids []int64) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	added := 0
	for _, id := range ids {
		out, err := g.promoteLocked(id)
		if err != nil {
			return added, fmt.Errorf("seed admin %d: %w", id, err)
		}
		if out == Changed {
			added++
		}
	}
	return added, nil
}
