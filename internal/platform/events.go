package platform

// Kind classifies the renderable content of a message event.
type Kind string

const (
	KindText     Kind = "text"
	KindAudio    Kind = "audio"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindSticker  Kind = "sticker"
	KindDocument Kind = "document"
	KindPayment  Kind = "payment"
	KindControl  Kind = "control"
	KindNone     Kind = ""
)

// MemberAction is the verb of a membership or rank change.
type MemberAction string

const (
	ActionAdd     MemberAction = "add"
	ActionRemove  MemberAction = "remove"
	ActionPromote MemberAction = "promote"
	ActionDemote  MemberAction = "demote"
)

// Event is one inbound item from the messaging transport.
type Event interface{ event() }

// Message is an inbound message event.
type Message struct {
	ID            string  `json:"id"`
	Chat          JID     `json:"chat"`
	Sender        JID     `json:"sender"`
	FromMe        bool    `json:"from_me"`
	Kind          Kind    `json:"kind"`
	Text          string  `json:"text,omitempty"`
	Mentions      []JID   `json:"mentions,omitempty"`
	Quoted        *Quoted `json:"quoted,omitempty"`
	MediaRef      string  `json:"media_ref,omitempty"`
	MediaSeconds  int     `json:"media_seconds,omitempty"`
	MediaMimetype string  `json:"media_mimetype,omitempty"`
}

// Quoted carries the context of a replied-to message.
type Quoted struct {
	ID            string `json:"id"`
	Sender        JID    `json:"sender"`
	Kind          Kind   `json:"kind"`
	Text          string `json:"text,omitempty"`
	MediaRef      string `json:"media_ref,omitempty"`
	MediaSeconds  int    `json:"media_seconds,omitempty"`
	MediaMimetype string `json:"media_mimetype,omitempty"`
}

// MemberUpdate is an inbound membership or rank change event.
type MemberUpdate struct {
	Group   JID          `json:"group"`
	Actor   JID          `json:"actor"`
	Targets []JID        `json:"targets"`
	Action  MemberAction `json:"action"`
}

func (*Message) event()      {}
func (*MemberUpdate) event() {}

// Rank is a participant's standing within a group.
type Rank string

const (
	RankMember     Rank = ""
	RankAdmin      Rank = "admin"
	RankSuperAdmin Rank = "superadmin"
)

// Participant is one member of a group with its rank.
type Participant struct {
	JID  JID  `json:"jid"`
	Rank Rank `json:"rank"`
}

// IsAdmin reports whether the participant holds any admin rank.
func (p Participant) IsAdmin() bool {
	return p.Rank == RankAdmin || p.Rank == RankSuperAdmin
}

// Metadata is a snapshot of a group's membership and descriptive state.
type Metadata struct {
	ID           JID           `json:"id"`
	Subject      string        `json:"subject"`
	Description  string        `json:"description,omitempty"`
	Participants []Participant `json:"participants"`
}

// Participant looks up a member by identity, or nil when absent.
func (m *Metadata) Participant(j JID) *Participant {
	for i := range m.Participants {
		if m.Participants[i].JID.Equal(j) {
			return &m.Participants[i]
		}
	}
	return nil
}

// IsAdmin reports whether the given identity holds admin rank in the group.
func (m *Metadata) IsAdmin(j JID) bool {
	p := m.Participant(j)
	return p != nil && p.IsAdmin()
}

// Admins returns the identities currently holding admin rank.
func (m *Metadata) Admins() []JID {
	var admins []JID
	for _, p := range m.Participants {
		if p.IsAdmin() {
			admins = append(admins, p.JID)
		}
	}
	return admins
}

// MemberJIDs returns all participant identities.
func (m *Metadata) MemberJIDs() []JID {
	jids := make([]JID, 0, len(m.Participants))
	for _, p := range m.Participants {
		jids = append(jids, p.JID)
	}
	return jids
}
