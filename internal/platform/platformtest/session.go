// Package platformtest provides a recording Session fake for module tests.
package platformtest

import (
	"context"
	"sync"

	"groupwarden/internal/platform"
)

type SentMessage struct {
	To  platform.JID
	Msg platform.Outgoing
}

type ParticipantCall struct {
	Group  platform.JID
	Users  []platform.JID
	Action platform.MemberAction
}

type DeleteCall struct {
	Chat      platform.JID
	MessageID string
	Sender    platform.JID
}

// Session records every outbound call and returns configurable results.
type Session struct {
	mu sync.Mutex

	Self      platform.JID
	Meta      platform.Metadata
	MetaErr   error
	SendErr   error
	DeleteErr error
	UpdateErr error
	Media     []byte

	Sent         []SentMessage
	Deletes      []DeleteCall
	Participants []ParticipantCall
	Settings     []bool
	MetaCalls    int
}

func (s *Session) Send(ctx context.Context, to platform.JID, msg platform.Outgoing) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return "", s.SendErr
	}
	s.Sent = append(s.Sent, SentMessage{To: to, Msg: msg})
	return "sent", nil
}

func (s *Session) Delete(ctx context.Context, chat platform.JID, messageID string, sender platform.JID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.Deletes = append(s.Deletes, DeleteCall{Chat: chat, MessageID: messageID, Sender: sender})
	return nil
}

func (s *Session) GroupMetadata(ctx context.Context, group platform.JID) (platform.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MetaCalls++
	if s.MetaErr != nil {
		return platform.Metadata{}, s.MetaErr
	}
	return s.Meta, nil
}

func (s *Session) UpdateParticipants(ctx context.Context, group platform.JID, users []platform.JID, action platform.MemberAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	copied := make([]platform.JID, len(users))
	copy(copied, users)
	s.Participants = append(s.Participants, ParticipantCall{Group: group, Users: copied, Action: action})
	return nil
}

func (s *Session) SetAnnouncement(ctx context.Context, group platform.JID, announceOnly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Settings = append(s.Settings, announceOnly)
	return nil
}

func (s *Session) Download(ctx context.Context, mediaRef string) ([]byte, error) {
	return s.Media, nil
}

func (s *Session) SelfID() platform.JID { return s.Self }

func (s *Session) Events() <-chan platform.Event { return nil }

// LastSent returns the most recent outbound message.
func (s *Session) LastSent() (SentMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Sent) == 0 {
		return SentMessage{}, false
	}
	return s.Sent[len(s.Sent)-1], true
}
