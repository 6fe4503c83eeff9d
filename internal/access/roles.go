package access

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"reply-tracker/internal/storage"
)

// RoleSet is a set of Telegram user IDs.
type RoleSet map[int64]struct{}

func NewRoleSet(ids ...int64) RoleSet {
	s := make(RoleSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s RoleSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s RoleSet) Add(id int64) { s[id] = struct{}{} }

func (s RoleSet) Remove(id int64) { delete(s, id) }

// Sorted returns the IDs in ascending order.
func (s RoleSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FileRoleSet persists one RoleSet as {"<key>": [ids]}. A bare [ids] array is
// accepted on read.
type FileRoleSet struct {
	path string
	key  string
	mu   sync.Mutex
}

func NewFileRoleSet(path, key string) (*FileRoleSet, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	if _, err := storage.EnsureJSONFile(path, map[string][]int64{key: {}}); err != nil {
		return nil, fmt.Errorf("init role file: %w", err)
	}
	return &FileRoleSet{path: path, key: key}, nil
}

func (r *FileRoleSet) Path() string { return r.path }

func (r *FileRoleSet) Load() (RoleSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *FileRoleSet) Save(s RoleSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveUnlocked(s)
}

func (r *FileRoleSet) loadUnlocked() (RoleSet, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return RoleSet{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return RoleSet{}, nil
	}
	if data[0] == '[' {
		var ids []int64
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, fmt.Errorf("parse %s: %w", r.path, err)
		}
		return NewRoleSet(ids...), nil
	}
	var doc map[string][]int64
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.path, err)
	}
	return NewRoleSet(doc[r.key]...), nil
}

func (r *FileRoleSet) saveUnlocked(s RoleSet) error {
	if err := storage.WriteJSONAtomic(r.path, map[string][]int64{r.key: s.Sorted()}); err != nil {
		return fmt.Errorf("save %s: %w", r.key, err)
	}
	return nil
}
