package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omnicore/gateway/internal/domain/identity"
)

var ErrNotFound = errors.New("not found")

var _ identity.SessionStore = (*SessionStore)(nil)

type SessionStore struct {
	kv *KV
}

func NewSessionStore(kv *KV) *SessionStore { return &SessionStore{kv: kv} }

func sessionKey(token string) string { return "session:" + token }

func (s *SessionStore) Save(ctx context.Context, token string, rec *identity.SessionRecord, ttl time.Duration) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.kv.Client.Set(ctx, sessionKey(token), blob, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, token string) (*identity.SessionRecord, error) {
	blob, err := s.kv.Client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	var rec identity.SessionRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

// Touch refreshes lastActivity without extending the session TTL.
func (s *SessionStore) Touch(ctx context.Context, token string, at time.Time) error {
	rec, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	rec.LastActivity = at

	ttl, err := s.kv.Client.TTL(ctx, sessionKey(token)).Result()
	if err != nil || ttl <= 0 {
		return fmt.Errorf("session ttl: %w", err)
	}
	return s.Save(ctx, token, rec, ttl)
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if err := s.kv.Client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
