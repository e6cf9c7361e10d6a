package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"groupwarden/internal/platform"
)

// OwnerRecord holds the bot owner and the bot's own account identity.
type OwnerRecord struct {
	Owner platform.JID `json:"owner"`
	Bot   platform.JID `json:"bot"`
}

// Identity is the durable owner.json store. The record is kept in memory and
// reloaded after every save.
type Identity struct {
	path string

	mu     sync.Mutex
	record OwnerRecord
}

func NewIdentity(path string) (*Identity, error) {
	s := &Identity{path: path}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &s.record); err != nil {
			return nil, fmt.Errorf("parse owner record: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read owner record: %w", err)
	}
	return s, nil
}

func (s *Identity) Record() OwnerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

func (s *Identity) IsOwner(user platform.JID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Owner.Equal(user)
}

// SetOwner persists a new owner and keeps the in-memory record in sync.
func (s *Identity) SetOwner(owner platform.JID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.record
	record.Owner = owner
	if err := writeJSON(s.path, record); err != nil {
		return err
	}
	s.record = record
	return nil
}

// SetBot records the bot's own account identity, written once at startup.
func (s *Identity) SetBot(bot platform.JID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.record
	record.Bot = bot
	if err := writeJSON(s.path, record); err != nil {
		return err
	}
	s.record = record
	return nil
}
