package platform

import "context"

// LinkPreview is an optional rich-preview attach for an outbound message.
type LinkPreview struct {
	Title        string `json:"title"`
	Body         string `json:"body,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	SourceURL    string `json:"source_url,omitempty"`
}

// Outgoing is one outbound message. Exactly one of Text, Sticker, Audio or
// Reaction should be set.
type Outgoing struct {
	Text     string       `json:"text,omitempty"`
	Mentions []JID        `json:"mentions,omitempty"`
	QuoteID  string       `json:"quote_id,omitempty"`
	Sticker  []byte       `json:"sticker,omitempty"`
	Audio    []byte       `json:"audio,omitempty"`
	Mimetype string       `json:"mimetype,omitempty"`
	Reaction string       `json:"reaction,omitempty"`
	ReactTo  string       `json:"react_to,omitempty"`
	Preview  *LinkPreview `json:"preview,omitempty"`
}

// Session is the boundary to the messaging transport. The underlying
// connection (pairing, encryption, reconnects) lives outside the core; the
// core only issues these calls and consumes Events.
type Session interface {
	// Send delivers a message to a chat and returns the message id.
	Send(ctx context.Context, to JID, msg Outgoing) (string, error)
	// Delete removes a specific message from a chat.
	Delete(ctx context.Context, chat JID, messageID string, sender JID) error
	// GroupMetadata fetches a fresh membership snapshot for a group.
	GroupMetadata(ctx context.Context, group JID) (Metadata, error)
	// UpdateParticipants applies add/remove/promote/demote to users in a group.
	UpdateParticipants(ctx context.Context, group JID, users []JID, action MemberAction) error
	// SetAnnouncement toggles the group's announcement-only setting.
	SetAnnouncement(ctx context.Context, group JID, announceOnly bool) error
	// Download fetches the media payload behind a MediaRef.
	Download(ctx context.Context, mediaRef string) ([]byte, error)
	// SelfID is the bot's own identity on the transport.
	SelfID() JID
	// Events is the inbound event stream, closed when the transport ends.
	Events() <-chan Event
}
