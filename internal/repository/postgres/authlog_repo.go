package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/omnicore/gateway/internal/domain/user"
)

var _ user.AuthLogRepo = (*AuthLogRepo)(nil)

type AuthLogRepo struct {
	db *DB
}

func NewAuthLogRepo(db *DB) *AuthLogRepo { return &AuthLogRepo{db: db} }

const (
	qAuthLogInsert = `
INSERT INTO auth_logs (user_id, email, success, ip, user_agent)
VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5)
RETURNING id;`

	qAuthLogRecentFailures = `
SELECT COUNT(*)
FROM auth_logs
WHERE email = $1 AND success = FALSE AND created_at >= $2;`
)

func (r *AuthLogRepo) Insert(ctx context.Context, e *user.AuthLog) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.Pool.QueryRow(ctx, qAuthLogInsert,
		e.UserID, e.Email, e.Success, e.IP, e.UserAgent).Scan(&e.ID); err != nil {
		return fmt.Errorf("auth log insert: %w", err)
	}
	return nil
}

func (r *AuthLogRepo) CountRecentFailures(ctx context.Context, email string, since time.Time) (int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n int
	if err := r.db.Pool.QueryRow(ctx, qAuthLogRecentFailures, email, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("auth log count: %w", err)
	}
	return n, nil
}
