package antipromote

import (
	"context"
	"strings"
	"time"

	"groupwarden/internal/modules/audit"
	"groupwarden/internal/platform"
	"groupwarden/internal/storage"

	"go.uber.org/zap"
)

// Clock abstracts the snapshot settle delay for tests.
type Clock interface {
	AfterFunc(d time.Duration, f func())
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Fetcher resolves fresh group metadata when the admin set must be resnapped.
type Fetcher interface {
	Get(ctx context.Context, group platform.JID, force bool) (platform.Metadata, error)
}

// Module reverses rank changes not performed by the owner or the bot. Any
// promote or demote from another account demotes both the target and the
// actor; a removal of a previously-known admin demotes the actor and re-adds
// the victim.
type Module struct {
	session     platform.Session
	snapshots   *storage.AdminSnapshots
	identity    *storage.Identity
	metadata    Fetcher
	audit       *audit.Logger
	logger      *zap.Logger
	clock       Clock
	settleDelay time.Duration
}

type Option func(*Module)

func WithClock(clock Clock) Option {
	return func(m *Module) { m.clock = clock }
}

func New(session platform.Session, snapshots *storage.AdminSnapshots, identity *storage.Identity, metadata Fetcher, auditLogger *audit.Logger, settleDelay time.Duration, logger *zap.Logger, opts ...Option) *Module {
	m := &Module{
		session:     session,
		snapshots:   snapshots,
		identity:    identity,
		metadata:    metadata,
		audit:       auditLogger,
		logger:      logger,
		clock:       realClock{},
		settleDelay: settleDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) trusted(user platform.JID) bool {
	record := m.identity.Record()
	return record.Owner.Equal(user) || record.Bot.Equal(user) || m.session.SelfID().Equal(user)
}

// HandleMemberUpdate applies the reversal policy to one rank or removal
// event. It returns true when a punishment was issued.
func (m *Module) HandleMemberUpdate(ctx context.Context, ev platform.MemberUpdate) bool {
	switch ev.Action {
	case platform.ActionPromote, platform.ActionDemote:
		return m.handleRankChange(ctx, ev)
	case platform.ActionRemove:
		return m.handleRemoval(ctx, ev)
	default:
		return false
	}
}

func (m *Module) handleRankChange(ctx context.Context, ev platform.MemberUpdate) bool {
	var demote []platform.JID
	for _, target := range ev.Targets {
		if m.trusted(target) {
			continue
		}
		if ev.Action == platform.ActionPromote || m.snapshots.Contains(ev.Group, target) {
			demote = append(demote, target)
		}
	}
	if !m.trusted(ev.Actor) && !contains(demote, ev.Actor) {
		demote = append(demote, ev.Actor)
	}
	if len(demote) == 0 {
		return false
	}

	if err := m.session.UpdateParticipants(ctx, ev.Group, demote, platform.ActionDemote); err != nil {
		m.logger.Warn("demotion batch failed",
			zap.String("group_id", ev.Group.String()), zap.Error(err))
		return false
	}
	m.announce(ctx, ev.Group, demote, "Unauthorized rank change reversed.")
	m.audit.Log(ctx, audit.LevelCrit, ev.Group, ev.Actor, "antipromote_demote",
		"action="+string(ev.Action)+" demoted="+joinJIDs(demote))
	m.scheduleSnapshotRefresh(ev.Group)
	return true
}

func (m *Module) handleRemoval(ctx context.Context, ev platform.MemberUpdate) bool {
	var restore []platform.JID
	for _, target := range ev.Targets {
		if m.snapshots.Contains(ev.Group, target) {
			restore = append(restore, target)
		}
	}
	if len(restore) == 0 {
		return false
	}

	punished := false
	if !m.trusted(ev.Actor) {
		if err := m.session.UpdateParticipants(ctx, ev.Group, []platform.JID{ev.Actor}, platform.ActionDemote); err != nil {
			m.logger.Warn("actor demotion failed",
				zap.String("group_id", ev.Group.String()), zap.Error(err))
		} else {
			punished = true
		}
	}
	if err := m.session.UpdateParticipants(ctx, ev.Group, restore, platform.ActionAdd); err != nil {
		m.logger.Warn("admin restore failed",
			zap.String("group_id", ev.Group.String()), zap.Error(err))
	}
	m.announce(ctx, ev.Group, append(restore, ev.Actor), "Removed admin restored.")
	m.audit.Log(ctx, audit.LevelCrit, ev.Group, ev.Actor, "antipromote_restore",
		"restored="+joinJIDs(restore))
	m.scheduleSnapshotRefresh(ev.Group)
	return punished || len(restore) > 0
}

func (m *Module) announce(ctx context.Context, group platform.JID, mentions []platform.JID, text string) {
	tags := make([]string, len(mentions))
	for i, jid := range mentions {
		tags[i] = jid.MentionTag()
	}
	_, _ = m.session.Send(ctx, group, platform.Outgoing{
		Text:     text + " " + strings.Join(tags, " "),
		Mentions: mentions,
	})
}

// scheduleSnapshotRefresh rereads the admin set after the platform's own
// state settles and persists it only when the composition changed.
func (m *Module) scheduleSnapshotRefresh(group platform.JID) {
	m.clock.AfterFunc(m.settleDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		meta, err := m.metadata.Get(ctx, group, true)
		if err != nil {
			m.logger.Warn("snapshot refresh fetch failed",
				zap.String("group_id", group.String()), zap.Error(err))
			return
		}
		admins := meta.Admins()
		current, ok := m.snapshots.Get(group)
		if ok && sameSet(current, admins) {
			return
		}
		if err := m.snapshots.Set(group, admins); err != nil {
			m.logger.Error("snapshot persist failed",
				zap.String("group_id", group.String()), zap.Error(err))
		}
	})
}

// Seed stores the group's admin set when no snapshot exists yet.
func (m *Module) Seed(group platform.JID, meta platform.Metadata) error {
	if _, ok := m.snapshots.Get(group); ok {
		return nil
	}
	return m.snapshots.Set(group, meta.Admins())
}

func contains(list []platform.JID, user platform.JID) bool {
	for _, jid := range list {
		if jid.Equal(user) {
			return true
		}
	}
	return false
}

func sameSet(a, b []platform.JID) bool {
	if len(a) != len(b) {
		return false
	}
	for _, jid := range a {
		if !contains(b, jid) {
			return false
		}
	}
	return true
}

func joinJIDs(list []platform.JID) string {
	parts := make([]string, len(list))
	for i, jid := range list {
		parts[i] = jid.String()
	}
	return strings.Join(parts, ",")
}
