package platform

import "strings"

// JID is a platform identity in its normalized form: user@server with any
// device suffix stripped. The zero value means "no identity".
type JID string

// Normalize strips the device part of a raw identifier ("123:4@server"
// becomes "123@server") and lowercases the server. All identity values
// entering the core must pass through here so that comparisons are uniform.
func Normalize(raw string) JID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	user, server, found := strings.Cut(raw, "@")
	if idx := strings.IndexByte(user, ':'); idx >= 0 {
		user = user[:idx]
	}
	if !found {
		return JID(user)
	}
	return JID(user + "@" + strings.ToLower(server))
}

// User returns the part before the @. A device suffix that slipped past
// Normalize is stripped here as well, so identity comparisons stay total.
func (j JID) User() string {
	user, _, _ := strings.Cut(string(j), "@")
	if idx := strings.IndexByte(user, ':'); idx >= 0 {
		user = user[:idx]
	}
	return user
}

// Server returns the part after the @, or "" for a bare identifier.
func (j JID) Server() string {
	_, server, _ := strings.Cut(string(j), "@")
	return server
}

// IsGroup reports whether the JID names a group conversation.
func (j JID) IsGroup() bool {
	return j.Server() == "g.us"
}

// Equal is the canonical identity comparison: the same user part means the
// same logical identity even when it appears under different server
// encodings. Empty identities are never equal to anything.
func (j JID) Equal(other JID) bool {
	u := j.User()
	return u != "" && u == other.User()
}

func (j JID) String() string { return string(j) }

// MentionTag is the user-visible @-tag for this identity.
func (j JID) MentionTag() string { return "@" + j.User() }
