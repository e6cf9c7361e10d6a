package blacklist

import (
	"context"
	"testing"

	"groupwarden/internal/modules/audit"
	"groupwarden/internal/platform"
	"groupwarden/internal/platform/platformtest"
	"groupwarden/internal/storage"

	"go.uber.org/zap"
)

func newTestModule(t *testing.T, session *platformtest.Session) (*Module, *storage.ConfigCache) {
	t.Helper()
	configs, err := storage.NewConfigs(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewConfigs: %v", err)
	}
	cache := storage.NewConfigCache(configs)
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return New(session, cache, audit.NewLogger(store, zap.NewNop()), zap.NewNop()), cache
}

func TestBlacklistedJoinIsRemoved(t *testing.T) {
	session := &platformtest.Session{}
	m, cache := newTestModule(t, session)
	group := platform.Normalize("1@g.us")
	banned := platform.Normalize("55@s.whatsapp.net")
	clean := platform.Normalize("66@s.whatsapp.net")

	cfg, err := cache.Get(group, "g")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	cfg.AddBlacklist(banned)
	if err := cache.Set(group, cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}

	m.HandleJoin(context.Background(), platform.MemberUpdate{
		Group:   group,
		Targets: []platform.JID{banned, clean},
		Action:  platform.ActionAdd,
	})

	if len(session.Participants) != 1 {
		t.Fatalf("expected one removal, got %d", len(session.Participants))
	}
	call := session.Participants[0]
	if call.Action != platform.ActionRemove || !call.Users[0].Equal(banned) {
		t.Fatalf("unexpected removal: %+v", call)
	}
	if _, ok := session.LastSent(); !ok {
		t.Fatalf("expected removal notice")
	}
}

func TestNonAddActionsIgnored(t *testing.T) {
	session := &platformtest.Session{}
	m, _ := newTestModule(t, session)

	m.HandleJoin(context.Background(), platform.MemberUpdate{
		Group:   platform.Normalize("1@g.us"),
		Targets: []platform.JID{platform.Normalize("55@s.whatsapp.net")},
		Action:  platform.ActionRemove,
	})
	if len(session.Participants) != 0 {
		t.Fatalf("expected no action, got %v", session.Participants)
	}
}
