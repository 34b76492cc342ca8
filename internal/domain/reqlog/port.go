package reqlog

import (
	"context"
	"time"
)

type Store interface {
	PutEntry(ctx context.Context, e Entry, ttl time.Duration) error
	// GetAggregate returns the stored aggregate for the date, or a fresh one.
	GetAggregate(ctx context.Context, date string) (*Aggregate, error)
	PutAggregate(ctx context.Context, a *Aggregate, ttl time.Duration) error
	// IncrCounters is the atomic-mode alternative for the flat counter
	// fields; means still go through Get/Put.
	IncrCounters(ctx context.Context, date string, e Entry, uaBucket string, ttl time.Duration) error
}

// Publisher streams request events to an external sink (optional).
type Publisher interface {
	Publish(ctx context.Context, key string, e Entry) error
}
