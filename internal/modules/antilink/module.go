package antilink

import (
	"context"
	"fmt"
	"sync"

	"groupwarden/internal/modules/audit"
	"groupwarden/internal/platform"
	"groupwarden/internal/utils"

	"go.uber.org/zap"
)

// Module enforces the link and mass-mention policy with a warn-then-remove
// escalation per (group, user).
type Module struct {
	session platform.Session
	audit   *audit.Logger
	logger  *zap.Logger
	maxWarn int

	mu    sync.Mutex
	warns map[string]int
}

func New(session platform.Session, auditLogger *audit.Logger, maxWarn int, logger *zap.Logger) *Module {
	return &Module{
		session: session,
		audit:   auditLogger,
		logger:  logger,
		maxWarn: maxWarn,
		warns:   make(map[string]int),
	}
}

// Violates reports whether the message qualifies under the policy: a link, a
// mass-mention marker, or a payment request.
func Violates(msg platform.Message) bool {
	if msg.Kind == platform.KindPayment {
		return true
	}
	if msg.Kind != platform.KindText && msg.Text == "" {
		return false
	}
	return utils.HasLink(msg.Text) || utils.HasMassTag(msg.Text)
}

// HandleViolation advances the sender's warn state. Warnings up to the
// threshold delete the message and reply with the running count; past the
// threshold the sender is removed from the group. A failed removal resets the
// count so the sender is not stuck over the threshold with no enforcement
// possible.
func (m *Module) HandleViolation(ctx context.Context, msg platform.Message) {
	key := msg.Chat.User() + ":" + msg.Sender.User()

	m.mu.Lock()
	m.warns[key]++
	count := m.warns[key]
	m.mu.Unlock()

	// Deletion is a courtesy; ignore failures.
	_ = m.session.Delete(ctx, msg.Chat, msg.ID, msg.Sender)

	if count <= m.maxWarn {
		text := fmt.Sprintf("%s forbidden content removed. Warning %d/%d.", msg.Sender.MentionTag(), count, m.maxWarn)
		_, _ = m.session.Send(ctx, msg.Chat, platform.Outgoing{Text: text, Mentions: []platform.JID{msg.Sender}})
		m.audit.Log(ctx, audit.LevelWarn, msg.Chat, msg.Sender, "antilink_warn",
			fmt.Sprintf("count=%d max=%d%s", count, m.maxWarn, detail(msg.Text)))
		return
	}

	if err := m.session.UpdateParticipants(ctx, msg.Chat, []platform.JID{msg.Sender}, platform.ActionRemove); err != nil {
		m.logger.Warn("removal failed, resetting warn count",
			zap.String("group_id", msg.Chat.String()),
			zap.String("user_id", msg.Sender.String()),
			zap.Error(err))
		m.reset(key)
		return
	}

	text := fmt.Sprintf("%s was removed after repeated violations.", msg.Sender.MentionTag())
	_, _ = m.session.Send(ctx, msg.Chat, platform.Outgoing{Text: text, Mentions: []platform.JID{msg.Sender}})
	m.audit.Log(ctx, audit.LevelCrit, msg.Chat, msg.Sender, "antilink_remove",
		fmt.Sprintf("count=%d max=%d", count, m.maxWarn))
	m.reset(key)
}

// Warnings returns the current warn count for (group, user).
func (m *Module) Warnings(group, user platform.JID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warns[group.User()+":"+user.User()]
}

// detail renders the first offending URL in normalized form for the audit
// trail, or nothing when the violation was not link-based.
func detail(text string) string {
	for _, raw := range utils.ExtractURLs(text) {
		if normalized, _, err := utils.NormalizeURL(raw); err == nil {
			return " url=" + normalized
		}
	}
	return ""
}

func (m *Module) reset(key string) {
	m.mu.Lock()
	delete(m.warns, key)
	m.mu.Unlock()
}
