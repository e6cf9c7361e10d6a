package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"groupwarden/internal/modules/audit"
	"groupwarden/internal/platform"
	"groupwarden/internal/storage"

	"go.uber.org/zap"
)

// commandNames is the first-token command table. Lookup is case-insensitive;
// unknown tokens fall through to moderation without any reply.
var commandNames = map[string]struct{}{
	"ping": {}, "menu": {}, "status": {}, "rank": {}, "check": {},
	"profile": {}, "resetrank": {}, "inactive": {}, "admins": {},
	"ban": {}, "del": {}, "open": {}, "close": {}, "promote": {},
	"demote": {}, "everyone": {}, "setowner": {}, "owner": {}, "bot": {},
	"report": {}, "sticker": {}, "toaudio": {}, "antilink": {},
	"antipromote": {}, "antiporn": {}, "autoview": {}, "welcome": {},
	"boton": {}, "botoff": {}, "blacklist": {}, "unblacklist": {},
	"purge": {},
}

type cmdContext struct {
	msg     platform.Message
	args    []string
	meta    platform.Metadata
	cfg     storage.GroupConfig
	isAdmin bool
	isOwner bool
}

func (b *Bot) handleCommand(ctx context.Context, token string, msg platform.Message) {
	meta, cfg, err := b.groupState(ctx, msg.Chat)
	if err != nil {
		b.logger.Warn("command dropped, group state unavailable",
			zap.String("command", token),
			zap.String("group_id", msg.Chat.String()),
			zap.Error(err))
		return
	}

	isOwner := b.identity.IsOwner(msg.Sender)
	if cfg.BotOff && !isOwner {
		return
	}

	c := cmdContext{
		msg:     msg,
		args:    strings.Fields(msg.Text)[1:],
		meta:    meta,
		cfg:     cfg,
		isAdmin: isOwner || meta.IsAdmin(msg.Sender),
		isOwner: isOwner,
	}

	switch token {
	case "ping":
		b.reply(ctx, msg.Chat, "pong")
	case "menu":
		b.cmdMenu(ctx, c)
	case "status":
		b.cmdStatus(ctx, c)
	case "rank":
		b.cmdRank(ctx, c, msg.Sender)
	case "check":
		b.cmdCheck(ctx, c)
	case "profile":
		b.cmdProfile(ctx, c)
	case "resetrank":
		b.cmdResetRank(ctx, c)
	case "inactive":
		b.cmdInactive(ctx, c)
	case "admins":
		b.cmdAdmins(ctx, c)
	case "ban":
		b.cmdBan(ctx, c)
	case "del":
		b.cmdDel(ctx, c)
	case "open":
		b.cmdAnnouncement(ctx, c, false)
	case "close":
		b.cmdAnnouncement(ctx, c, true)
	case "promote":
		b.cmdRankChange(ctx, c, platform.ActionPromote)
	case "demote":
		b.cmdRankChange(ctx, c, platform.ActionDemote)
	case "everyone":
		b.cmdEveryone(ctx, c)
	case "setowner":
		b.cmdSetOwner(ctx, c)
	case "owner":
		b.cmdOwner(ctx, c)
	case "bot":
		b.cmdBot(ctx, c)
	case "report":
		b.cmdReport(ctx, c)
	case "sticker":
		b.cmdSticker(ctx, c)
	case "toaudio":
		b.cmdToAudio(ctx, c)
	case "antilink":
		b.cmdToggle(ctx, c, token, func(cfg *storage.GroupConfig) *bool { return &cfg.AntiLink })
	case "antipromote":
		b.cmdToggle(ctx, c, token, func(cfg *storage.GroupConfig) *bool { return &cfg.AntiPromote })
	case "antiporn":
		b.cmdToggle(ctx, c, token, func(cfg *storage.GroupConfig) *bool { return &cfg.AntiPorn })
	case "autoview":
		b.cmdToggle(ctx, c, token, func(cfg *storage.GroupConfig) *bool { return &cfg.AutoView })
	case "welcome":
		b.cmdToggle(ctx, c, token, func(cfg *storage.GroupConfig) *bool { return &cfg.Welcome })
	case "boton":
		b.cmdBotMode(ctx, c, false)
	case "botoff":
		b.cmdBotMode(ctx, c, true)
	case "blacklist":
		b.cmdBlacklist(ctx, c)
	case "unblacklist":
		b.cmdUnblacklist(ctx, c)
	case "purge":
		b.cmdPurge(ctx, c)
	}
}

func (b *Bot) reply(ctx context.Context, chat platform.JID, text string, mentions ...platform.JID) {
	_, err := b.session.Send(ctx, chat, platform.Outgoing{Text: text, Mentions: mentions})
	if err != nil {
		b.logger.Warn("send failed", zap.String("chat", chat.String()), zap.Error(err))
	}
}

func (b *Bot) cmdMenu(ctx context.Context, c cmdContext) {
	names := make([]string, 0, len(commandNames))
	for name := range commandNames {
		names = append(names, name)
	}
	sort.Strings(names)
	b.reply(ctx, c.msg.Chat, "Commands: "+strings.Join(names, ", "))
}

func (b *Bot) cmdStatus(ctx context.Context, c cmdContext) {
	onOff := func(v bool) string {
		if v {
			return "on"
		}
		return "off"
	}
	text := fmt.Sprintf("%s\nantilink: %s\nantipromote: %s\nantiporn: %s\nautoview: %s\nwelcome: %s\nbot: %s\nblacklisted: %d",
		c.meta.Subject,
		onOff(c.cfg.AntiLink), onOff(c.cfg.AntiPromote), onOff(c.cfg.AntiPorn),
		onOff(c.cfg.AutoView), onOff(c.cfg.Welcome), onOff(!c.cfg.BotOff),
		len(c.cfg.Blacklist))
	b.reply(ctx, c.msg.Chat, text)
}

func (b *Bot) cmdRank(ctx context.Context, c cmdContext, target platform.JID) {
	rec := b.totals.Get(c.msg.Chat, target)
	text := fmt.Sprintf("%s activity\nmessages: %d\naudios: %d\nphotos: %d\nvideos: %d\nstickers: %d\ntotal: %d",
		target.MentionTag(), rec.Messages, rec.Audios, rec.Photos, rec.Videos, rec.Stickers, rec.Total())
	b.reply(ctx, c.msg.Chat, text, target)
}

func (b *Bot) cmdCheck(ctx context.Context, c cmdContext) {
	target, ok := c.target()
	if !ok {
		b.reply(ctx, c.msg.Chat, "Mention or quote someone to check.")
		return
	}
	b.cmdRank(ctx, c, target)
}

func (b *Bot) cmdProfile(ctx context.Context, c cmdContext) {
	rec := b.totals.Get(c.msg.Chat, c.msg.Sender)
	role := "member"
	if c.isOwner {
		role = "owner"
	} else if c.isAdmin {
		role = "admin"
	}
	text := fmt.Sprintf("%s\nrole: %s\ntotal messages: %d\nwarnings: %d",
		c.msg.Sender.MentionTag(), role, rec.Total(),
		b.antilink.Warnings(c.msg.Chat, c.msg.Sender))
	b.reply(ctx, c.msg.Chat, text, c.msg.Sender)
}

func (b *Bot) cmdResetRank(ctx context.Context, c cmdContext) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	target, ok := c.target()
	if !ok {
		target = c.msg.Sender
	}
	if err := b.totals.ResetUser(c.msg.Chat, target); err != nil {
		b.logger.Error("rank reset failed", zap.Error(err))
		b.reply(ctx, c.msg.Chat, "Could not reset the rank, try again.")
		return
	}
	b.reply(ctx, c.msg.Chat, "Activity reset for "+target.MentionTag()+".", target)
}

func (b *Bot) cmdInactive(ctx context.Context, c cmdContext) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	ghosts := b.ghostMembers(c)
	if len(ghosts) == 0 {
		b.reply(ctx, c.msg.Chat, "No inactive members.")
		return
	}
	tags := make([]string, len(ghosts))
	for i, jid := range ghosts {
		tags[i] = jid.MentionTag()
	}
	b.reply(ctx, c.msg.Chat, fmt.Sprintf("%d inactive members:\n%s", len(ghosts), strings.Join(tags, " ")), ghosts...)
}

func (b *Bot) cmdAdmins(ctx context.Context, c cmdContext) {
	admins := c.meta.Admins()
	if len(admins) == 0 {
		b.reply(ctx, c.msg.Chat, "No admins found.")
		return
	}
	tags := make([]string, len(admins))
	for i, jid := range admins {
		tags[i] = jid.MentionTag()
	}
	b.reply(ctx, c.msg.Chat, "Admins: "+strings.Join(tags, " "), admins...)
}

func (b *Bot) cmdBan(ctx context.Context, c cmdContext) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	target, ok := c.target()
	if !ok {
		b.reply(ctx, c.msg.Chat, "Mention or quote the member to remove.")
		return
	}
	if b.identity.IsOwner(target) || b.session.SelfID().Equal(target) {
		b.reply(ctx, c.msg.Chat, "That member cannot be removed.")
		return
	}
	if err := b.session.UpdateParticipants(ctx, c.msg.Chat, []platform.JID{target}, platform.ActionRemove); err != nil {
		b.reply(ctx, c.msg.Chat, "Removal failed, am I an admin here?")
		return
	}
	b.metadata.Invalidate(c.msg.Chat)
	b.audit.Log(ctx, audit.LevelWarn, c.msg.Chat, target, "manual_ban", "by="+c.msg.Sender.String())
	b.reply(ctx, c.msg.Chat, target.MentionTag()+" was removed.", target)
}

func (b *Bot) cmdDel(ctx context.Context, c cmdContext) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	if c.msg.Quoted == nil {
		b.reply(ctx, c.msg.Chat, "Quote the message to delete.")
		return
	}
	if err := b.session.Delete(ctx, c.msg.Chat, c.msg.Quoted.ID, c.msg.Quoted.Sender); err != nil {
		b.reply(ctx, c.msg.Chat, "Could not delete that message.")
	}
}

func (b *Bot) cmdAnnouncement(ctx context.Context, c cmdContext, announceOnly bool) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	if err := b.session.SetAnnouncement(ctx, c.msg.Chat, announceOnly); err != nil {
		b.reply(ctx, c.msg.Chat, "Could not change the group setting.")
		return
	}
	if announceOnly {
		b.reply(ctx, c.msg.Chat, "Group closed: only admins can send messages.")
	} else {
		b.reply(ctx, c.msg.Chat, "Group open: everyone can send messages.")
	}
}

func (b *Bot) cmdRankChange(ctx context.Context, c cmdContext, action platform.MemberAction) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	target, ok := c.target()
	if !ok {
		b.reply(ctx, c.msg.Chat, "Mention or quote the member.")
		return
	}
	if err := b.session.UpdateParticipants(ctx, c.msg.Chat, []platform.JID{target}, action); err != nil {
		b.reply(ctx, c.msg.Chat, "Rank change failed, am I an admin here?")
		return
	}
	// The cached admin list is out of date now.
	b.metadata.Invalidate(c.msg.Chat)
	verb := "promoted"
	if action == platform.ActionDemote {
		verb = "demoted"
	}
	b.reply(ctx, c.msg.Chat, target.MentionTag()+" was "+verb+".", target)
}

func (b *Bot) cmdEveryone(ctx context.Context, c cmdContext) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	text := strings.Join(c.args, " ")
	if text == "" {
		text = "Attention everyone!"
	}
	members := c.meta.MemberJIDs()
	b.reply(ctx, c.msg.Chat, text, members...)
}

func (b *Bot) cmdSetOwner(ctx context.Context, c cmdContext) {
	record := b.identity.Record()
	allowed := c.isOwner || b.session.SelfID().Equal(c.msg.Sender) || record.Owner == ""
	if !allowed {
		b.reply(ctx, c.msg.Chat, "Only the current owner can do that.")
		return
	}
	target, ok := c.target()
	if !ok {
		target = c.msg.Sender
	}
	if err := b.identity.SetOwner(target); err != nil {
		b.logger.Error("owner update failed", zap.Error(err))
		b.reply(ctx, c.msg.Chat, "Could not persist the new owner.")
		return
	}
	b.reply(ctx, c.msg.Chat, target.MentionTag()+" is now the bot owner.", target)
}

func (b *Bot) cmdOwner(ctx context.Context, c cmdContext) {
	record := b.identity.Record()
	if record.Owner == "" {
		b.reply(ctx, c.msg.Chat, "No owner configured.")
		return
	}
	b.reply(ctx, c.msg.Chat, "Owner: "+record.Owner.MentionTag(), record.Owner)
}

func (b *Bot) cmdBot(ctx context.Context, c cmdContext) {
	uptime := time.Since(b.startedAt).Round(time.Second)
	b.reply(ctx, c.msg.Chat, fmt.Sprintf("Online for %s.", uptime))
}

func (b *Bot) cmdReport(ctx context.Context, c cmdContext) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	report, err := b.analytics.Report(ctx, c.msg.Chat, time.Now().Add(-24*time.Hour))
	if err != nil {
		b.logger.Error("report failed", zap.Error(err))
		b.reply(ctx, c.msg.Chat, "Could not build the report.")
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Moderation in the last 24h: %d events", report.Total)
	for _, level := range []string{audit.LevelCrit, audit.LevelWarn, audit.LevelInfo} {
		if n := report.ByLevel[level]; n > 0 {
			fmt.Fprintf(&sb, "\n%s: %d", level, n)
		}
	}
	events := make([]string, 0, len(report.ByEvent))
	for event := range report.ByEvent {
		events = append(events, event)
	}
	sort.Strings(events)
	for _, event := range events {
		fmt.Fprintf(&sb, "\n%s: %d", event, report.ByEvent[event])
	}
	b.reply(ctx, c.msg.Chat, sb.String())
}

func (b *Bot) cmdToggle(ctx context.Context, c cmdContext, name string, field func(*storage.GroupConfig) *bool) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	cfg := c.cfg
	flag := field(&cfg)
	*flag = !*flag
	if err := b.configs.Set(c.msg.Chat, cfg); err != nil {
		b.logger.Error("config save failed", zap.Error(err))
		b.reply(ctx, c.msg.Chat, "Could not save the setting.")
		return
	}
	state := "disabled"
	if *flag {
		state = "enabled"
	}
	b.audit.Log(ctx, audit.LevelInfo, c.msg.Chat, c.msg.Sender, "toggle_"+name, state)
	b.reply(ctx, c.msg.Chat, name+" "+state+".")
}

func (b *Bot) cmdBotMode(ctx context.Context, c cmdContext, off bool) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	cfg := c.cfg
	cfg.BotOff = off
	if err := b.configs.Set(c.msg.Chat, cfg); err != nil {
		b.logger.Error("config save failed", zap.Error(err))
		b.reply(ctx, c.msg.Chat, "Could not save the setting.")
		return
	}
	if off {
		b.reply(ctx, c.msg.Chat, "Bot disabled in this group.")
	} else {
		b.reply(ctx, c.msg.Chat, "Bot enabled in this group.")
	}
}

func (b *Bot) cmdBlacklist(ctx context.Context, c cmdContext) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	target, ok := c.target()
	if !ok {
		if len(c.cfg.Blacklist) == 0 {
			b.reply(ctx, c.msg.Chat, "The blacklist is empty.")
			return
		}
		tags := make([]string, len(c.cfg.Blacklist))
		for i, jid := range c.cfg.Blacklist {
			tags[i] = jid.MentionTag()
		}
		b.reply(ctx, c.msg.Chat, "Blacklist: "+strings.Join(tags, " "), c.cfg.Blacklist...)
		return
	}
	cfg := c.cfg
	if !cfg.AddBlacklist(target) {
		b.reply(ctx, c.msg.Chat, "Already blacklisted.")
		return
	}
	if err := b.configs.Set(c.msg.Chat, cfg); err != nil {
		b.logger.Error("config save failed", zap.Error(err))
		b.reply(ctx, c.msg.Chat, "Could not save the blacklist.")
		return
	}
	b.audit.Log(ctx, audit.LevelWarn, c.msg.Chat, target, "blacklist_add", "by="+c.msg.Sender.String())
	b.reply(ctx, c.msg.Chat, target.MentionTag()+" blacklisted.", target)
}

func (b *Bot) cmdUnblacklist(ctx context.Context, c cmdContext) {
	if !c.requireAdmin(ctx, b) {
		return
	}
	target, ok := c.target()
	if !ok {
		b.reply(ctx, c.msg.Chat, "Mention the member to unblacklist.")
		return
	}
	cfg := c.cfg
	if !cfg.RemoveBlacklist(target) {
		b.reply(ctx, c.msg.Chat, "Not on the blacklist.")
		return
	}
	if err := b.configs.Set(c.msg.Chat, cfg); err != nil {
		b.logger.Error("config save failed", zap.Error(err))
		b.reply(ctx, c.msg.Chat, "Could not save the blacklist.")
		return
	}
	b.reply(ctx, c.msg.Chat, target.MentionTag()+" removed from the blacklist.", target)
}

func (b *Bot) cmdPurge(ctx context.Context, c cmdContext) {
	if !c.isOwner {
		b.reply(ctx, c.msg.Chat, "Only the owner can purge inactive members.")
		return
	}
	ghosts := b.ghostMembers(c)
	if len(ghosts) == 0 {
		b.reply(ctx, c.msg.Chat, "No inactive members to remove.")
		return
	}
	if err := b.session.UpdateParticipants(ctx, c.msg.Chat, ghosts, platform.ActionRemove); err != nil {
		b.reply(ctx, c.msg.Chat, "Purge failed, am I an admin here?")
		return
	}
	if err := b.totals.RemoveUsers(c.msg.Chat, ghosts); err != nil {
		b.logger.Warn("counter cleanup after purge failed", zap.Error(err))
	}
	b.audit.Log(ctx, audit.LevelCrit, c.msg.Chat, c.msg.Sender, "ghost_purge", fmt.Sprintf("removed=%d", len(ghosts)))
	b.reply(ctx, c.msg.Chat, fmt.Sprintf("Removed %d inactive members.", len(ghosts)))
}

func (b *Bot) cmdSticker(ctx context.Context, c cmdContext) {
	ref, mimetype, kind, ok := c.mediaSource(platform.KindImage, platform.KindVideo)
	if !ok {
		b.reply(ctx, c.msg.Chat, "Send or quote an image or a short video.")
		return
	}
	input, err := b.session.Download(ctx, ref)
	if err != nil {
		b.reply(ctx, c.msg.Chat, "Could not download the media.")
		return
	}
	out, err := b.media.Sticker(ctx, input, kind == platform.KindVideo)
	if err != nil {
		b.logger.Warn("sticker conversion failed", zap.String("mimetype", mimetype), zap.Error(err))
		b.reply(ctx, c.msg.Chat, "Conversion failed, try a different file.")
		return
	}
	_, _ = b.session.Send(ctx, c.msg.Chat, platform.Outgoing{Sticker: out, Mimetype: "image/webp"})
}

func (b *Bot) cmdToAudio(ctx context.Context, c cmdContext) {
	ref, _, _, ok := c.mediaSource(platform.KindVideo)
	if !ok {
		b.reply(ctx, c.msg.Chat, "Send or quote a video.")
		return
	}
	if seconds := c.mediaSeconds(); seconds > 600 {
		b.reply(ctx, c.msg.Chat, "Video too long, ten minutes at most.")
		return
	}
	input, err := b.session.Download(ctx, ref)
	if err != nil {
		b.reply(ctx, c.msg.Chat, "Could not download the media.")
		return
	}
	out, err := b.media.ExtractAudio(ctx, input)
	if err != nil {
		b.logger.Warn("audio extraction failed", zap.Error(err))
		b.reply(ctx, c.msg.Chat, "Conversion failed, try a different file.")
		return
	}
	_, _ = b.session.Send(ctx, c.msg.Chat, platform.Outgoing{Audio: out, Mimetype: "audio/mpeg"})
}

// ghostMembers lists non-admin members with no recorded activity.
func (b *Bot) ghostMembers(c cmdContext) []platform.JID {
	records := b.totals.Group(c.msg.Chat)
	var ghosts []platform.JID
	for _, p := range c.meta.Participants {
		if p.IsAdmin() || b.session.SelfID().Equal(p.JID) || b.identity.IsOwner(p.JID) {
			continue
		}
		if records[p.JID].Total() == 0 {
			ghosts = append(ghosts, p.JID)
		}
	}
	return ghosts
}

// target resolves the command's subject: first mention, else the quoted
// message's author.
func (c *cmdContext) target() (platform.JID, bool) {
	if len(c.msg.Mentions) > 0 {
		return c.msg.Mentions[0], true
	}
	if c.msg.Quoted != nil && c.msg.Quoted.Sender != "" {
		return c.msg.Quoted.Sender, true
	}
	return "", false
}

// mediaSource finds an attachment of one of the wanted kinds on the message
// itself or on the quoted message.
func (c *cmdContext) mediaSource(kinds ...platform.Kind) (ref, mimetype string, kind platform.Kind, ok bool) {
	for _, k := range kinds {
		if c.msg.Kind == k && c.msg.MediaRef != "" {
			return c.msg.MediaRef, c.msg.MediaMimetype, k, true
		}
		if c.msg.Quoted != nil && c.msg.Quoted.Kind == k && c.msg.Quoted.MediaRef != "" {
			return c.msg.Quoted.MediaRef, c.msg.Quoted.MediaMimetype, k, true
		}
	}
	return "", "", platform.KindNone, false
}

func (c *cmdContext) mediaSeconds() int {
	if c.msg.MediaSeconds > 0 {
		return c.msg.MediaSeconds
	}
	if c.msg.Quoted != nil {
		return c.msg.Quoted.MediaSeconds
	}
	return 0
}

func (c *cmdContext) requireAdmin(ctx context.Context, b *Bot) bool {
	if c.isAdmin {
		return true
	}
	b.reply(ctx, c.msg.Chat, "Admins only.")
	return false
}
