package identity

import (
	"context"
	"time"
)

type SessionStore interface {
	Save(ctx context.Context, token string, rec *SessionRecord, ttl time.Duration) error
	Get(ctx context.Context, token string) (*SessionRecord, error)
	Touch(ctx context.Context, token string, at time.Time) error
	Delete(ctx context.Context, token string) error
}

// RevocationList marks tokens that must be rejected before natural expiry.
type RevocationList interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type AnonymousStore interface {
	Create(ctx context.Context, hash string, sess *AnonymousSession, ttl time.Duration) error
	// Get returns the session and slides its TTL.
	Get(ctx context.Context, hash string, ttl time.Duration) (*AnonymousSession, error)
}
