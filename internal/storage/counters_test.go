package storage

import (
	"path/filepath"
	"testing"

	"groupwarden/internal/platform"
)

func TestCounterTotalsMergeAccumulates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	s, err := NewCounterTotals(path)
	if err != nil {
		t.Fatalf("NewCounterTotals: %v", err)
	}

	group := platform.Normalize("123@g.us")
	user := platform.Normalize("5511@s.whatsapp.net")

	buf := map[platform.JID]map[platform.JID]CounterRecord{
		group: {user: {Messages: 2, Photos: 1}},
	}
	if err := s.Merge(buf); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := s.Merge(buf); err != nil {
		t.Fatalf("second Merge: %v", err)
	}

	rec := s.Get(group, user)
	if rec.Messages != 4 || rec.Photos != 2 {
		t.Fatalf("unexpected totals: %+v", rec)
	}
	if rec.Total() != 6 {
		t.Fatalf("expected total 6, got %d", rec.Total())
	}

	// Reload from disk.
	reloaded, err := NewCounterTotals(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Get(group, user); got != rec {
		t.Fatalf("reload mismatch: %+v vs %+v", got, rec)
	}
}

func TestCounterTotalsResetUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	s, err := NewCounterTotals(path)
	if err != nil {
		t.Fatalf("NewCounterTotals: %v", err)
	}

	group := platform.Normalize("123@g.us")
	a := platform.Normalize("1@s.whatsapp.net")
	b := platform.Normalize("2@s.whatsapp.net")

	if err := s.Merge(map[platform.JID]map[platform.JID]CounterRecord{
		group: {a: {Messages: 3}, b: {Stickers: 1}},
	}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := s.ResetUser(group, a); err != nil {
		t.Fatalf("ResetUser: %v", err)
	}
	if got := s.Get(group, a); got.Total() != 0 {
		t.Fatalf("expected reset record, got %+v", got)
	}
	if got := s.Get(group, b); got.Stickers != 1 {
		t.Fatalf("expected other user untouched, got %+v", got)
	}
}

func TestCounterTotalsRemoveUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	s, err := NewCounterTotals(path)
	if err != nil {
		t.Fatalf("NewCounterTotals: %v", err)
	}

	group := platform.Normalize("123@g.us")
	a := platform.Normalize("1@s.whatsapp.net")
	b := platform.Normalize("2@s.whatsapp.net")

	if err := s.Merge(map[platform.JID]map[platform.JID]CounterRecord{
		group: {a: {Messages: 1}, b: {Messages: 1}},
	}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := s.RemoveUsers(group, []platform.JID{a}); err != nil {
		t.Fatalf("RemoveUsers: %v", err)
	}
	all := s.Group(group)
	if len(all) != 1 {
		t.Fatalf("expected one remaining record, got %v", all)
	}
	if _, ok := all[b]; !ok {
		t.Fatalf("expected %s to remain", b)
	}
}

func TestCounterTotalsFailedMergeLeavesTotalsUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counters.json")
	s, err := NewCounterTotals(path)
	if err != nil {
		t.Fatalf("NewCounterTotals: %v", err)
	}

	group := platform.Normalize("123@g.us")
	user := platform.Normalize("5511@s.whatsapp.net")
	buf := map[platform.JID]map[platform.JID]CounterRecord{
		group: {user: {Messages: 2}},
	}
	if err := s.Merge(buf); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// Point the store at a missing directory so the write fails.
	s.path = filepath.Join(dir, "missing", "counters.json")
	if err := s.Merge(buf); err == nil {
		t.Fatal("expected merge failure")
	}
	if got := s.Get(group, user); got.Messages != 2 {
		t.Fatalf("failed merge must not change totals, got %+v", got)
	}

	// Once the write succeeds again the retried buffer lands exactly once.
	s.path = path
	if err := s.Merge(buf); err != nil {
		t.Fatalf("retried Merge: %v", err)
	}
	if got := s.Get(group, user); got.Messages != 4 {
		t.Fatalf("expected retried buffer counted once, got %+v", got)
	}
}
