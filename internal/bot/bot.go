package bot

import (
	"context"
	"strings"
	"time"

	"groupwarden/internal/analytics"
	"groupwarden/internal/config"
	"groupwarden/internal/counter"
	"groupwarden/internal/media"
	"groupwarden/internal/metacache"
	"groupwarden/internal/modules/antilink"
	"groupwarden/internal/modules/antipromote"
	"groupwarden/internal/modules/audit"
	"groupwarden/internal/modules/blacklist"
	"groupwarden/internal/platform"
	"groupwarden/internal/ratelimit"
	"groupwarden/internal/storage"

	"go.uber.org/zap"
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	session   platform.Session
	configs   *storage.ConfigCache
	identity  *storage.Identity
	totals    *storage.CounterTotals
	metadata  *metacache.Cache
	counter   *counter.Aggregator
	gate      *ratelimit.Gate
	antilink  *antilink.Module
	promote   *antipromote.Module
	blacklist *blacklist.Module
	audit     *audit.Logger
	analytics *analytics.Service
	media     *media.Converter
	startedAt time.Time
}

type Deps struct {
	Config    config.Config
	Logger    *zap.Logger
	Session   platform.Session
	Configs   *storage.ConfigCache
	Identity  *storage.Identity
	Totals    *storage.CounterTotals
	Metadata  *metacache.Cache
	Counter   *counter.Aggregator
	Gate      *ratelimit.Gate
	AntiLink  *antilink.Module
	Promote   *antipromote.Module
	Blacklist *blacklist.Module
	Audit     *audit.Logger
	Analytics *analytics.Service
	Media     *media.Converter
}

func New(deps Deps) *Bot {
	return &Bot{
		cfg:       deps.Config,
		logger:    deps.Logger,
		session:   deps.Session,
		configs:   deps.Configs,
		identity:  deps.Identity,
		totals:    deps.Totals,
		metadata:  deps.Metadata,
		counter:   deps.Counter,
		gate:      deps.Gate,
		antilink:  deps.AntiLink,
		promote:   deps.Promote,
		blacklist: deps.Blacklist,
		audit:     deps.Audit,
		analytics: deps.Analytics,
		media:     deps.Media,
		startedAt: time.Now(),
	}
}

// Run consumes the transport's event stream until ctx is cancelled or the
// stream closes. Each event is handled on its own goroutine so a slow
// network call never stalls the stream.
func (b *Bot) Run(ctx context.Context) error {
	events := b.session.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			go b.Dispatch(ctx, ev)
		}
	}
}

// Dispatch routes one inbound event.
func (b *Bot) Dispatch(ctx context.Context, ev platform.Event) {
	switch e := ev.(type) {
	case *platform.Message:
		b.handleMessage(ctx, *e)
	case *platform.MemberUpdate:
		b.handleMemberUpdate(ctx, *e)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg platform.Message) {
	if msg.Kind == platform.KindControl || msg.Kind == platform.KindNone {
		return
	}
	if msg.FromMe || b.session.SelfID().Equal(msg.Sender) {
		return
	}
	if !msg.Chat.IsGroup() {
		return
	}

	// Counting happens before anything can suppress the event.
	b.counter.Record(msg.Chat, msg.Sender, msg.Kind)

	// Command routing bypasses the rate limiter so bursts of commands are
	// still answered. Captioned media counts: "sticker" on an image works.
	if msg.Text != "" {
		token := firstToken(msg.Text)
		if _, ok := commandNames[token]; ok {
			b.handleCommand(ctx, token, msg)
			return
		}
	}

	if b.gate.ShouldSuppress(msg.Chat, msg.Sender, time.Now()) {
		return
	}

	meta, cfg, err := b.groupState(ctx, msg.Chat)
	if err != nil {
		b.logger.Warn("group state unavailable",
			zap.String("group_id", msg.Chat.String()), zap.Error(err))
		return
	}

	if cfg.BotOff && !b.identity.IsOwner(msg.Sender) {
		return
	}

	if cfg.AntiLink && antilink.Violates(msg) && !b.exempt(meta, msg.Sender) {
		b.antilink.HandleViolation(ctx, msg)
	}
}

func (b *Bot) handleMemberUpdate(ctx context.Context, ev platform.MemberUpdate) {
	meta, cfg, err := b.groupState(ctx, ev.Group)
	if err != nil {
		b.logger.Warn("group state unavailable",
			zap.String("group_id", ev.Group.String()), zap.Error(err))
		return
	}

	switch ev.Action {
	case platform.ActionAdd:
		b.blacklist.HandleJoin(ctx, ev)
		if cfg.Welcome {
			b.welcome(ctx, ev, meta)
		}
	case platform.ActionPromote, platform.ActionDemote, platform.ActionRemove:
		if err := b.promote.Seed(ev.Group, meta); err != nil {
			b.logger.Warn("admin snapshot seed failed",
				zap.String("group_id", ev.Group.String()), zap.Error(err))
		}
		if cfg.AntiPromote {
			b.promote.HandleMemberUpdate(ctx, ev)
		}
	}
}

func (b *Bot) welcome(ctx context.Context, ev platform.MemberUpdate, meta platform.Metadata) {
	for _, target := range ev.Targets {
		if b.session.SelfID().Equal(target) {
			continue
		}
		_, _ = b.session.Send(ctx, ev.Group, platform.Outgoing{
			Text:     "Welcome to " + meta.Subject + ", " + target.MentionTag() + "!",
			Mentions: []platform.JID{target},
		})
	}
}

// groupState fetches cached metadata and the group config, keeping the stored
// group name in sync with the current subject.
func (b *Bot) groupState(ctx context.Context, group platform.JID) (platform.Metadata, storage.GroupConfig, error) {
	meta, err := b.metadata.Get(ctx, group, false)
	if err != nil {
		return platform.Metadata{}, storage.GroupConfig{}, err
	}
	cfg, err := b.configs.Get(group, meta.Subject)
	if err != nil {
		return platform.Metadata{}, storage.GroupConfig{}, err
	}
	return meta, cfg, nil
}

// exempt reports whether the sender is outside moderation: group admins, the
// owner and the bot itself never accumulate warnings.
func (b *Bot) exempt(meta platform.Metadata, sender platform.JID) bool {
	if b.identity.IsOwner(sender) || b.session.SelfID().Equal(sender) {
		return true
	}
	return meta.IsAdmin(sender)
}

func firstToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
