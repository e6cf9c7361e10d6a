package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"groupwarden/internal/platform"

	"go.uber.org/zap"
)

// GroupConfig is the per-group moderation document. All fields are always
// present after a load; missing keys are backfilled from defaults and the
// document is resaved.
type GroupConfig struct {
	Name        string         `json:"name"`
	AntiLink    bool           `json:"antilink"`
	AntiPorn    bool           `json:"antiporn"`
	AntiPromote bool           `json:"antipromote"`
	Welcome     bool           `json:"welcome"`
	BotOff      bool           `json:"botoff"`
	AutoView    bool           `json:"autoview"`
	Blacklist   []platform.JID `json:"blacklist"`
}

func DefaultGroupConfig() GroupConfig {
	return GroupConfig{Blacklist: []platform.JID{}}
}

func (c *GroupConfig) Blacklisted(user platform.JID) bool {
	for _, entry := range c.Blacklist {
		if entry.Equal(user) {
			return true
		}
	}
	return false
}

// AddBlacklist appends the user when absent; reports whether it was added.
func (c *GroupConfig) AddBlacklist(user platform.JID) bool {
	if c.Blacklisted(user) {
		return false
	}
	c.Blacklist = append(c.Blacklist, user)
	return true
}

// RemoveBlacklist drops the user when present; reports whether it was removed.
func (c *GroupConfig) RemoveBlacklist(user platform.JID) bool {
	kept := c.Blacklist[:0]
	removed := false
	for _, entry := range c.Blacklist {
		if entry.Equal(user) {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	c.Blacklist = kept
	return removed
}

// Configs is the durable per-group config store: one JSON document per group
// under <dir>, replaced atomically on every save.
type Configs struct {
	dir    string
	logger *zap.Logger
}

func NewConfigs(dir string, logger *zap.Logger) (*Configs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return &Configs{dir: dir, logger: logger}, nil
}

func (s *Configs) path(group platform.JID) string {
	return filepath.Join(s.dir, group.User()+".json")
}

// Get loads the group's document, creating it with defaults when absent. A
// malformed document is treated as absent. The document is resaved after
// every load so missing fields are healed on disk. A non-empty subject
// refreshes the stored group name.
func (s *Configs) Get(group platform.JID, subject string) (GroupConfig, error) {
	cfg := DefaultGroupConfig()

	raw, err := os.ReadFile(s.path(group))
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			s.logger.Warn("malformed group config, using defaults",
				zap.String("group_id", group.String()), zap.Error(err))
			cfg = DefaultGroupConfig()
		}
	case os.IsNotExist(err):
	default:
		return GroupConfig{}, fmt.Errorf("read group config: %w", err)
	}

	if cfg.Blacklist == nil {
		cfg.Blacklist = []platform.JID{}
	}
	if subject != "" && cfg.Name != subject {
		cfg.Name = subject
	}

	if err := s.Set(group, cfg); err != nil {
		return GroupConfig{}, err
	}
	return cfg, nil
}

// Set replaces the group's document atomically.
func (s *Configs) Set(group platform.JID, cfg GroupConfig) error {
	if cfg.Blacklist == nil {
		cfg.Blacklist = []platform.JID{}
	}
	return writeJSON(s.path(group), cfg)
}

// ConfigCache is the fill-on-miss in-memory front for Configs used on the
// event hot path. Set writes through to disk before updating the cache.
type ConfigCache struct {
	store   *Configs
	mu      sync.Mutex
	entries map[platform.JID]GroupConfig
}

func NewConfigCache(store *Configs) *ConfigCache {
	return &ConfigCache{store: store, entries: make(map[platform.JID]GroupConfig)}
}

func (c *ConfigCache) Get(group platform.JID, subject string) (GroupConfig, error) {
	c.mu.Lock()
	if cfg, ok := c.entries[group]; ok {
		c.mu.Unlock()
		return cfg, nil
	}
	c.mu.Unlock()

	cfg, err := c.store.Get(group, subject)
	if err != nil {
		return GroupConfig{}, err
	}

	c.mu.Lock()
	c.entries[group] = cfg
	c.mu.Unlock()
	return cfg, nil
}

func (c *ConfigCache) Set(group platform.JID, cfg GroupConfig) error {
	if err := c.store.Set(group, cfg); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[group] = cfg
	c.mu.Unlock()
	return nil
}

// writeJSON writes the document to a temp file and renames it into place so
// readers never observe a partial write.
func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", filepath.Base(path), err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
