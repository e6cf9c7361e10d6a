package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"groupwarden/internal/platform"

	"go.uber.org/zap"
)

func newTestConfigs(t *testing.T) *Configs {
	t.Helper()
	s, err := NewConfigs(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewConfigs: %v", err)
	}
	return s
}

func TestConfigsGetCreatesDefaults(t *testing.T) {
	s := newTestConfigs(t)
	group := platform.Normalize("123@g.us")

	cfg, err := s.Get(group, "My Group")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.Name != "My Group" {
		t.Fatalf("expected subject to be stored, got %q", cfg.Name)
	}
	if cfg.AntiLink || cfg.AntiPromote || cfg.BotOff {
		t.Fatalf("expected default flags off, got %+v", cfg)
	}
	if cfg.Blacklist == nil || len(cfg.Blacklist) != 0 {
		t.Fatalf("expected empty blacklist, got %v", cfg.Blacklist)
	}
	if _, err := os.Stat(s.path(group)); err != nil {
		t.Fatalf("expected document on disk: %v", err)
	}
}

func TestConfigsRoundTrip(t *testing.T) {
	s := newTestConfigs(t)
	group := platform.Normalize("123@g.us")

	cfg, err := s.Get(group, "g")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	cfg.AntiLink = true
	cfg.AddBlacklist(platform.Normalize("5511@s.whatsapp.net"))
	if err := s.Set(group, cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.Get(group, "")
	if err != nil {
		t.Fatalf("Get after Set: %v", err)
	}
	if !got.AntiLink {
		t.Fatalf("expected antilink to persist")
	}
	if !got.Blacklisted(platform.Normalize("5511:3@s.whatsapp.net")) {
		t.Fatalf("expected blacklist match across device suffix")
	}
	if got.Name != "g" {
		t.Fatalf("expected empty subject to keep stored name, got %q", got.Name)
	}
}

func TestConfigsBackfillsMissingFields(t *testing.T) {
	s := newTestConfigs(t)
	group := platform.Normalize("123@g.us")

	// Document written by an older build with only one key.
	if err := os.WriteFile(s.path(group), []byte(`{"antilink":true}`), 0o644); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	cfg, err := s.Get(group, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !cfg.AntiLink {
		t.Fatalf("expected antilink preserved")
	}
	if cfg.Blacklist == nil {
		t.Fatalf("expected blacklist backfilled")
	}

	raw, err := os.ReadFile(s.path(group))
	if err != nil {
		t.Fatalf("read healed document: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse healed document: %v", err)
	}
	for _, key := range []string{"antilink", "antipromote", "botoff", "blacklist"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("expected key %q healed on disk", key)
		}
	}
}

func TestConfigsMalformedDocumentResets(t *testing.T) {
	s := newTestConfigs(t)
	group := platform.Normalize("123@g.us")

	if err := os.WriteFile(s.path(group), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	cfg, err := s.Get(group, "fresh")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.AntiLink || len(cfg.Blacklist) != 0 {
		t.Fatalf("expected defaults after malformed document, got %+v", cfg)
	}
	if cfg.Name != "fresh" {
		t.Fatalf("expected subject applied, got %q", cfg.Name)
	}
}

func TestConfigCacheWriteThrough(t *testing.T) {
	s := newTestConfigs(t)
	cache := NewConfigCache(s)
	group := platform.Normalize("123@g.us")

	cfg, err := cache.Get(group, "g")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	cfg.AntiPromote = true
	if err := cache.Set(group, cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Cache hit must reflect the write.
	got, err := cache.Get(group, "")
	if err != nil {
		t.Fatalf("cached Get: %v", err)
	}
	if !got.AntiPromote {
		t.Fatalf("expected cached entry updated")
	}

	// Disk must reflect it too.
	fromDisk, err := s.Get(group, "")
	if err != nil {
		t.Fatalf("disk Get: %v", err)
	}
	if !fromDisk.AntiPromote {
		t.Fatalf("expected write-through to disk")
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	if err := writeJSON(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "doc.json" {
		t.Fatalf("expected only the final document, got %v", entries)
	}
}
