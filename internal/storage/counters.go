package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"groupwarden/internal/platform"
)

// CounterRecord counts messages per kind for one user in one group.
type CounterRecord struct {
	Messages int `json:"messages"`
	Audios   int `json:"audios"`
	Photos   int `json:"photos"`
	Videos   int `json:"videos"`
	Stickers int `json:"stickers"`
}

func (r CounterRecord) Total() int {
	return r.Messages + r.Audios + r.Photos + r.Videos + r.Stickers
}

// Add merges another record into this one.
func (r *CounterRecord) Add(other CounterRecord) {
	r.Messages += other.Messages
	r.Audios += other.Audios
	r.Photos += other.Photos
	r.Videos += other.Videos
	r.Stickers += other.Stickers
}

// CounterTotals is the durable group -> user -> record document. The flush
// loop merges interval buffers into it; command handlers read it.
type CounterTotals struct {
	path string

	mu     sync.Mutex
	groups map[platform.JID]map[platform.JID]CounterRecord
}

func NewCounterTotals(path string) (*CounterTotals, error) {
	s := &CounterTotals{
		path:   path,
		groups: make(map[platform.JID]map[platform.JID]CounterRecord),
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &s.groups); err != nil {
			return nil, fmt.Errorf("parse counter totals: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read counter totals: %w", err)
	}
	return s, nil
}

// Merge adds an interval buffer into the totals and persists the document.
// The merge is staged on a copy and committed only once the write succeeds,
// so a failed flush can be retried without counting the buffer twice.
func (s *CounterTotals) Merge(buffer map[platform.JID]map[platform.JID]CounterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := make(map[platform.JID]map[platform.JID]CounterRecord, len(s.groups))
	for group, users := range s.groups {
		staged[group] = users
	}
	for group, users := range buffer {
		dst := make(map[platform.JID]CounterRecord, len(staged[group])+len(users))
		for user, rec := range staged[group] {
			dst[user] = rec
		}
		for user, rec := range users {
			total := dst[user]
			total.Add(rec)
			dst[user] = total
		}
		staged[group] = dst
	}
	if err := writeJSON(s.path, staged); err != nil {
		return err
	}
	s.groups = staged
	return nil
}

// Get returns the stored record for one user in one group.
func (s *CounterTotals) Get(group, user platform.JID) CounterRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[group][user]
}

// Group returns a copy of all records for one group.
func (s *CounterTotals) Group(group platform.JID) map[platform.JID]CounterRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[platform.JID]CounterRecord, len(s.groups[group]))
	for user, rec := range s.groups[group] {
		out[user] = rec
	}
	return out
}

// ResetUser clears one user's record in one group and persists.
func (s *CounterTotals) ResetUser(group, user platform.JID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := s.groups[group]
	if users == nil {
		return nil
	}
	delete(users, user)
	return writeJSON(s.path, s.groups)
}

// RemoveUsers drops records for users no longer in the group and persists.
func (s *CounterTotals) RemoveUsers(group platform.JID, users []platform.JID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.groups[group]
	if stored == nil {
		return nil
	}
	for _, user := range users {
		delete(stored, user)
	}
	return writeJSON(s.path, s.groups)
}
