package blacklist

import (
	"context"

	"groupwarden/internal/modules/audit"
	"groupwarden/internal/platform"
	"groupwarden/internal/storage"

	"go.uber.org/zap"
)

// Module removes blacklisted accounts the moment they are added to a group.
type Module struct {
	session platform.Session
	configs *storage.ConfigCache
	audit   *audit.Logger
	logger  *zap.Logger
}

func New(session platform.Session, configs *storage.ConfigCache, auditLogger *audit.Logger, logger *zap.Logger) *Module {
	return &Module{session: session, configs: configs, audit: auditLogger, logger: logger}
}

// HandleJoin checks every added member against the group blacklist and
// removes matches with a notice. Blocked joins are never counted.
func (m *Module) HandleJoin(ctx context.Context, ev platform.MemberUpdate) {
	if ev.Action != platform.ActionAdd {
		return
	}
	cfg, err := m.configs.Get(ev.Group, "")
	if err != nil {
		m.logger.Warn("config load failed on join",
			zap.String("group_id", ev.Group.String()), zap.Error(err))
		return
	}
	for _, target := range ev.Targets {
		if !cfg.Blacklisted(target) {
			continue
		}
		if err := m.session.UpdateParticipants(ctx, ev.Group, []platform.JID{target}, platform.ActionRemove); err != nil {
			m.logger.Warn("blacklist removal failed",
				zap.String("group_id", ev.Group.String()),
				zap.String("user_id", target.String()),
				zap.Error(err))
			continue
		}
		_, _ = m.session.Send(ctx, ev.Group, platform.Outgoing{
			Text:     target.MentionTag() + " is blacklisted and was removed.",
			Mentions: []platform.JID{target},
		})
		m.audit.Log(ctx, audit.LevelWarn, ev.Group, target, "blacklist_block", "join rejected")
	}
}
