package user

import (
	"context"
	"time"
)

type Repo interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// AuthLog records one credential-check outcome. Writes are best-effort:
// callers log failures and move on.
type AuthLog struct {
	ID        int64
	UserID    string
	Email     string
	Success   bool
	IP        string
	UserAgent string
	CreatedAt time.Time
}

type AuthLogRepo interface {
	Insert(ctx context.Context, e *AuthLog) error
	CountRecentFailures(ctx context.Context, email string, since time.Time) (int, error)
}
