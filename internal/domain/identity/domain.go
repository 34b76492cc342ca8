// Package identity holds the types shared between the token codec, the auth
// resolver and the key-value stores: signed claims, session records and
// anonymous sessions.
package identity

import "time"

// Claims is the signed payload of a gateway token. Immutable once signed.
type Claims struct {
	Sub      string `json:"sub"`
	Role     string `json:"role,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Iat      int64  `json:"iat"`
	Exp      int64  `json:"exp"`
	JTI      string `json:"jti"`
	Type     string `json:"type,omitempty"` // "refresh" on refresh tokens, empty on access
}

const TypeRefresh = "refresh"

// SessionRecord is advisory activity tracking, never authoritative for
// identity. Keyed by session:<token> in the KV store.
type SessionRecord struct {
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// AnonymousSession is a tracked but unauthenticated client. Keyed by its own
// 16-char alphanumeric hash; TTL slides on read.
type AnonymousSession struct {
	CreatedAt      time.Time         `json:"createdAt"`
	LastAccessedAt time.Time         `json:"lastAccessedAt"`
	Data           map[string]string `json:"data,omitempty"`
}
