package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"groupwarden/internal/platform"
)

// AdminSnapshots persists the last known admin set per group in a single
// admins.json document. Snapshots back the promote-reversal protocol, so a
// write replaces the whole document atomically.
type AdminSnapshots struct {
	path string

	mu     sync.Mutex
	groups map[platform.JID][]platform.JID
}

func NewAdminSnapshots(path string) (*AdminSnapshots, error) {
	s := &AdminSnapshots{path: path, groups: make(map[platform.JID][]platform.JID)}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &s.groups); err != nil {
			return nil, fmt.Errorf("parse admin snapshots: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read admin snapshots: %w", err)
	}
	return s, nil
}

// Get returns the stored snapshot for the group and whether one exists.
func (s *AdminSnapshots) Get(group platform.JID) ([]platform.JID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	admins, ok := s.groups[group]
	if !ok {
		return nil, false
	}
	out := make([]platform.JID, len(admins))
	copy(out, admins)
	return out, true
}

// Set replaces the group's snapshot and persists the whole document.
func (s *AdminSnapshots) Set(group platform.JID, admins []platform.JID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]platform.JID, len(admins))
	copy(stored, admins)
	s.groups[group] = stored
	return writeJSON(s.path, s.groups)
}

// Contains reports whether the user appears in the group's snapshot.
func (s *AdminSnapshots) Contains(group, user platform.JID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, admin := range s.groups[group] {
		if admin.Equal(user) {
			return true
		}
	}
	return false
}
