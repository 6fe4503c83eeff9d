package msgcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestMessageCacheFileRepo(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "data", "message_cache.json")
	repo, err := NewFileRepository(p)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	data, err := os.ReadFile(p)
	if err != nil || string(data) != "{}\n" {
		t.Fatalf("initial content %q (%v)", data, err)
	}
	items, err := repo.LoadAll()
	if err != nil || len(items) != 0 {
		t.Fatalf("fresh cache: %v %v", items, err)
	}

	in := Entries{
		"11": json.RawMessage(`{"text":"hello"}`),
		"12": json.RawMessage(`{"text":"world"}`),
	}
	if err := repo.Save(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	items, err = repo.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want 2, got %d", len(items))
	}
	var msg struct{ Text string }
	if err := json.Unmarshal(items["12"], &msg); err != nil || msg.Text != "world" {
		t.Fatalf("unexpected entry: %s (%v)", items["12"], err)
	}
}

func TestMessageCacheFileRepo_Malformed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "message_cache.json")
	repo, err := NewFileRepository(p)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := os.WriteFile(p, []byte("[1,2"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := repo.LoadAll(); err == nil {
		t.Fatalf("expected decode error")
	}
}
