// Package msgcache keeps the message cache file: a JSON object of cached chat
// messages keyed by message ID.
package msgcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"reply-tracker/internal/storage"
)

type Entries map[string]json.RawMessage

type Repository interface {
	LoadAll() (Entries, error)
	Save(entries Entries) error
}

type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	if _, err := storage.EnsureJSONFile(path, Entries{}); err != nil {
		return nil, fmt.Errorf("init cache file: %w", err)
	}
	return &FileRepository{path: path}, nil
}

// LoadAll returns the cached entries. A missing or empty file is an empty cache.
func (r *FileRepository) LoadAll() (Entries, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entries{}, nil
		}
		return nil, fmt.Errorf("open: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Entries{}, nil
	}
	entries := Entries{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	return entries, nil
}

func (r *FileRepository) Save(entries Entries) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entries == nil {
		entries = Entries{}
	}
	return storage.WriteJSONAtomic(r.path, entries)
}
