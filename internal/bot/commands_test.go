package bot

import (
	"context"
	"strings"
	"testing"

	"groupwarden/internal/platform"
	"groupwarden/internal/storage"
)

func TestStatusShowsToggles(t *testing.T) {
	f := newFixture(t)
	f.setConfig(t, func(cfg *storage.GroupConfig) { cfg.AntiLink = true })

	f.bot.handleMessage(context.Background(), textMessage(testUser, "status"))
	sent, ok := f.session.LastSent()
	if !ok {
		t.Fatalf("expected status reply")
	}
	if !strings.Contains(sent.Msg.Text, "antilink: on") {
		t.Fatalf("status must show antilink on, got %q", sent.Msg.Text)
	}
	if !strings.Contains(sent.Msg.Text, "antipromote: off") {
		t.Fatalf("status must show antipromote off, got %q", sent.Msg.Text)
	}
}

func TestToggleFlipsAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, textMessage(testAdmin, "antilink"))
	cfg, err := f.configs.Get(testGroup, "")
	if err != nil {
		t.Fatalf("Get config: %v", err)
	}
	if !cfg.AntiLink {
		t.Fatalf("expected antilink enabled")
	}

	f.bot.handleMessage(ctx, textMessage(testAdmin, "antilink"))
	cfg, err = f.configs.Get(testGroup, "")
	if err != nil {
		t.Fatalf("Get config: %v", err)
	}
	if cfg.AntiLink {
		t.Fatalf("expected antilink disabled again")
	}
}

func TestToggleRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.bot.handleMessage(context.Background(), textMessage(testUser, "antilink"))

	cfg, err := f.configs.Get(testGroup, "")
	if err != nil {
		t.Fatalf("Get config: %v", err)
	}
	if cfg.AntiLink {
		t.Fatalf("non-admin must not toggle settings")
	}
	sent, ok := f.session.LastSent()
	if !ok || !strings.Contains(sent.Msg.Text, "Admins only") {
		t.Fatalf("expected rejection, got %+v", sent)
	}
}

func TestRankReportsStoredCounters(t *testing.T) {
	f := newFixture(t)
	if err := f.totals.Merge(map[platform.JID]map[platform.JID]storage.CounterRecord{
		testGroup: {testUser: {Messages: 5, Stickers: 2}},
	}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	f.bot.handleMessage(context.Background(), textMessage(testUser, "rank"))
	sent, ok := f.session.LastSent()
	if !ok {
		t.Fatalf("expected rank reply")
	}
	if !strings.Contains(sent.Msg.Text, "messages: 5") || !strings.Contains(sent.Msg.Text, "total: 7") {
		t.Fatalf("unexpected rank text: %q", sent.Msg.Text)
	}
}

func TestCheckRequiresTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, textMessage(testUser, "check"))
	sent, _ := f.session.LastSent()
	if !strings.Contains(sent.Msg.Text, "Mention or quote") {
		t.Fatalf("expected usage hint, got %q", sent.Msg.Text)
	}

	msg := textMessage(testUser, "check")
	msg.Mentions = []platform.JID{testAdmin}
	f.bot.handleMessage(ctx, msg)
	sent, _ = f.session.LastSent()
	if len(sent.Msg.Mentions) != 1 || !sent.Msg.Mentions[0].Equal(testAdmin) {
		t.Fatalf("expected mentioned target in reply, got %+v", sent.Msg)
	}
}

func TestBanRemovesTarget(t *testing.T) {
	f := newFixture(t)
	msg := textMessage(testAdmin, "ban")
	msg.Mentions = []platform.JID{testUser}

	f.bot.handleMessage(context.Background(), msg)
	if len(f.session.Participants) != 1 {
		t.Fatalf("expected one removal, got %d", len(f.session.Participants))
	}
	call := f.session.Participants[0]
	if call.Action != platform.ActionRemove || !call.Users[0].Equal(testUser) {
		t.Fatalf("unexpected call: %+v", call)
	}
}

func TestBanProtectsOwnerAndBot(t *testing.T) {
	f := newFixture(t)
	for _, target := range []platform.JID{testOwner, testSelf} {
		msg := textMessage(testAdmin, "ban")
		msg.Mentions = []platform.JID{target}
		f.bot.handleMessage(context.Background(), msg)
	}
	if len(f.session.Participants) != 0 {
		t.Fatalf("owner and bot must never be removable, got %v", f.session.Participants)
	}
}

func TestOpenAndCloseToggleAnnouncement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, textMessage(testAdmin, "close"))
	f.bot.handleMessage(ctx, textMessage(testAdmin, "open"))
	if len(f.session.Settings) != 2 || !f.session.Settings[0] || f.session.Settings[1] {
		t.Fatalf("expected close then open, got %v", f.session.Settings)
	}
}

func TestBlacklistAddListRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	banned := platform.Normalize("99@s.whatsapp.net")

	msg := textMessage(testAdmin, "blacklist")
	msg.Mentions = []platform.JID{banned}
	f.bot.handleMessage(ctx, msg)

	cfg, err := f.configs.Get(testGroup, "")
	if err != nil {
		t.Fatalf("Get config: %v", err)
	}
	if !cfg.Blacklisted(banned) {
		t.Fatalf("expected blacklist entry")
	}

	f.bot.handleMessage(ctx, textMessage(testAdmin, "blacklist"))
	sent, _ := f.session.LastSent()
	if !strings.Contains(sent.Msg.Text, "Blacklist:") {
		t.Fatalf("expected listing, got %q", sent.Msg.Text)
	}

	unmsg := textMessage(testAdmin, "unblacklist")
	unmsg.Mentions = []platform.JID{banned}
	f.bot.handleMessage(ctx, unmsg)
	cfg, err = f.configs.Get(testGroup, "")
	if err != nil {
		t.Fatalf("Get config: %v", err)
	}
	if cfg.Blacklisted(banned) {
		t.Fatalf("expected blacklist entry removed")
	}
}

func TestSetOwnerIsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg := textMessage(testUser, "setowner")
	msg.Mentions = []platform.JID{testUser}
	f.bot.handleMessage(ctx, msg)

	sent, _ := f.session.LastSent()
	if !strings.Contains(sent.Msg.Text, "Only the current owner") {
		t.Fatalf("expected rejection, got %q", sent.Msg.Text)
	}

	msg = textMessage(testOwner, "setowner")
	msg.Mentions = []platform.JID{testAdmin}
	f.bot.handleMessage(ctx, msg)
	f.bot.handleMessage(ctx, textMessage(testUser, "owner"))
	sent, _ = f.session.LastSent()
	if len(sent.Msg.Mentions) != 1 || !sent.Msg.Mentions[0].Equal(testAdmin) {
		t.Fatalf("expected new owner mentioned, got %+v", sent.Msg)
	}
}

func TestPurgeRemovesGhostsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// testAdmin is an admin and testOwner the owner: only testUser is a
	// candidate, and only while it has no recorded activity.
	f.bot.handleMessage(ctx, textMessage(testAdmin, "purge"))
	if len(f.session.Participants) != 0 {
		t.Fatalf("purge must be owner-only")
	}

	f.bot.handleMessage(ctx, textMessage(testOwner, "purge"))
	if len(f.session.Participants) != 1 {
		t.Fatalf("expected one purge call, got %d", len(f.session.Participants))
	}
	call := f.session.Participants[0]
	if len(call.Users) != 1 || !call.Users[0].Equal(testUser) {
		t.Fatalf("expected only the silent member purged, got %v", call.Users)
	}
}

func TestEveryoneMentionsAllMembers(t *testing.T) {
	f := newFixture(t)
	f.bot.handleMessage(context.Background(), textMessage(testAdmin, "everyone meeting at nine"))
	sent, _ := f.session.LastSent()
	if sent.Msg.Text != "meeting at nine" {
		t.Fatalf("expected announcement text, got %q", sent.Msg.Text)
	}
	if len(sent.Msg.Mentions) != 4 {
		t.Fatalf("expected all members mentioned, got %d", len(sent.Msg.Mentions))
	}
}

func TestReportSummarizesAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setConfig(t, func(cfg *storage.GroupConfig) { cfg.AntiLink = true })

	f.bot.handleMessage(ctx, textMessage(testUser, "spam https://bad.example"))
	f.bot.handleMessage(ctx, textMessage(testAdmin, "report"))

	sent, _ := f.session.LastSent()
	if !strings.Contains(sent.Msg.Text, "1 events") || !strings.Contains(sent.Msg.Text, "antilink_warn: 1") {
		t.Fatalf("unexpected report: %q", sent.Msg.Text)
	}
	if !strings.Contains(sent.Msg.Text, "WARN: 1") {
		t.Fatalf("expected level breakdown in report: %q", sent.Msg.Text)
	}
}

func TestRankChangeInvalidatesMetadataCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, textMessage(testAdmin, "admins"))
	before := f.session.MetaCalls

	msg := textMessage(testAdmin, "promote")
	msg.Mentions = []platform.JID{testUser}
	f.bot.handleMessage(ctx, msg)

	f.bot.handleMessage(ctx, textMessage(testOwner, "admins"))
	if f.session.MetaCalls != before+1 {
		t.Fatalf("expected one refetch after the rank change, got %d calls (was %d)", f.session.MetaCalls, before)
	}
}
