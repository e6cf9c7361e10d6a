// Package natsbridge implements platform.Session against an external gateway
// process over NATS. The gateway owns the messaging-platform connection;
// inbound events arrive as JSON on a subject, outbound calls are
// request/reply JSON.
package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"groupwarden/internal/platform"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const defaultCallTimeout = 15 * time.Second

type Session struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	prefix  string
	self    platform.JID
	events  chan platform.Event
	logger  *zap.Logger
	timeout time.Duration
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type reply struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Dial connects to NATS, subscribes to the gateway's event subject and
// resolves the bot's own identity from the gateway.
func Dial(url, prefix, eventsSubject string, logger *zap.Logger) (*Session, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	s := &Session{
		conn:    conn,
		prefix:  prefix,
		events:  make(chan platform.Event, 256),
		logger:  logger,
		timeout: defaultCallTimeout,
	}

	sub, err := conn.Subscribe(eventsSubject, s.onEvent)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", eventsSubject, err)
	}
	s.sub = sub

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	var who struct {
		ID string `json:"id"`
	}
	if err := s.call(ctx, "self", nil, &who); err != nil {
		_ = sub.Unsubscribe()
		conn.Close()
		return nil, fmt.Errorf("resolve self identity: %w", err)
	}
	s.self = platform.Normalize(who.ID)

	return s, nil
}

func (s *Session) onEvent(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		s.logger.Warn("undecodable event", zap.Error(err))
		return
	}

	var ev platform.Event
	switch env.Type {
	case "message":
		var m platform.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			s.logger.Warn("undecodable message event", zap.Error(err))
			return
		}
		m.Chat = platform.Normalize(string(m.Chat))
		m.Sender = platform.Normalize(string(m.Sender))
		for i, mention := range m.Mentions {
			m.Mentions[i] = platform.Normalize(string(mention))
		}
		if m.Quoted != nil {
			m.Quoted.Sender = platform.Normalize(string(m.Quoted.Sender))
		}
		ev = &m
	case "member_update":
		var u platform.MemberUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			s.logger.Warn("undecodable member event", zap.Error(err))
			return
		}
		u.Group = platform.Normalize(string(u.Group))
		u.Actor = platform.Normalize(string(u.Actor))
		for i, t := range u.Targets {
			u.Targets[i] = platform.Normalize(string(t))
		}
		ev = &u
	default:
		return
	}

	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event buffer full, dropping event", zap.String("type", env.Type))
	}
}

func (s *Session) call(ctx context.Context, op string, req, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}
	msg, err := s.conn.RequestWithContext(ctx, s.prefix+"."+op, payload)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", op, err)
	}
	var rep reply
	if err := json.Unmarshal(msg.Data, &rep); err != nil {
		return fmt.Errorf("decode %s reply: %w", op, err)
	}
	if !rep.OK {
		if rep.Error == "" {
			rep.Error = "unknown gateway error"
		}
		return errors.New(rep.Error)
	}
	if out != nil && len(rep.Data) > 0 {
		if err := json.Unmarshal(rep.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", op, err)
		}
	}
	return nil
}

func (s *Session) Send(ctx context.Context, to platform.JID, msg platform.Outgoing) (string, error) {
	req := struct {
		To  platform.JID      `json:"to"`
		Msg platform.Outgoing `json:"msg"`
	}{To: to, Msg: msg}
	var resp struct {
		ID string `json:"id"`
	}
	if err := s.call(ctx, "send", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (s *Session) Delete(ctx context.Context, chat platform.JID, messageID string, sender platform.JID) error {
	req := struct {
		Chat   platform.JID `json:"chat"`
		ID     string       `json:"id"`
		Sender platform.JID `json:"sender"`
	}{Chat: chat, ID: messageID, Sender: sender}
	return s.call(ctx, "delete", req, nil)
}

func (s *Session) GroupMetadata(ctx context.Context, group platform.JID) (platform.Metadata, error) {
	req := struct {
		Group platform.JID `json:"group"`
	}{Group: group}
	var meta platform.Metadata
	if err := s.call(ctx, "metadata", req, &meta); err != nil {
		return platform.Metadata{}, err
	}
	meta.ID = platform.Normalize(string(meta.ID))
	for i := range meta.Participants {
		meta.Participants[i].JID = platform.Normalize(string(meta.Participants[i].JID))
	}
	return meta, nil
}

func (s *Session) UpdateParticipants(ctx context.Context, group platform.JID, users []platform.JID, action platform.MemberAction) error {
	req := struct {
		Group  platform.JID          `json:"group"`
		Users  []platform.JID        `json:"users"`
		Action platform.MemberAction `json:"action"`
	}{Group: group, Users: users, Action: action}
	return s.call(ctx, "participants", req, nil)
}

func (s *Session) SetAnnouncement(ctx context.Context, group platform.JID, announceOnly bool) error {
	req := struct {
		Group    platform.JID `json:"group"`
		Announce bool         `json:"announce"`
	}{Group: group, Announce: announceOnly}
	return s.call(ctx, "setting", req, nil)
}

func (s *Session) Download(ctx context.Context, mediaRef string) ([]byte, error) {
	req := struct {
		Ref string `json:"ref"`
	}{Ref: mediaRef}
	var resp struct {
		Media []byte `json:"media"`
	}
	if err := s.call(ctx, "download", req, &resp); err != nil {
		return nil, err
	}
	return resp.Media, nil
}

func (s *Session) SelfID() platform.JID { return s.self }

func (s *Session) Events() <-chan platform.Event { return s.events }

// Close stops the event subscription and the NATS connection.
func (s *Session) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	close(s.events)
}
