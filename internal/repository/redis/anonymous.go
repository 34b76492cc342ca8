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

var _ identity.AnonymousStore = (*AnonymousStore)(nil)

// AnonymousStore keys sessions by the raw 16-char hash. Hash shape is
// validated by the caller before any lookup reaches this store.
type AnonymousStore struct {
	kv *KV
}

func NewAnonymousStore(kv *KV) *AnonymousStore { return &AnonymousStore{kv: kv} }

func (s *AnonymousStore) Create(ctx context.Context, hash string, sess *identity.AnonymousSession, ttl time.Duration) error {
	blob, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal anonymous session: %w", err)
	}
	if err := s.kv.Client.Set(ctx, hash, blob, ttl).Err(); err != nil {
		return fmt.Errorf("save anonymous session: %w", err)
	}
	return nil
}

func (s *AnonymousStore) Get(ctx context.Context, hash string, ttl time.Duration) (*identity.AnonymousSession, error) {
	blob, err := s.kv.Client.Get(ctx, hash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get anonymous session: %w", err)
	}
	var sess identity.AnonymousSession
	if err := json.Unmarshal(blob, &sess); err != nil {
		return nil, fmt.Errorf("decode anonymous session: %w", err)
	}

	sess.LastAccessedAt = time.Now().UTC()
	if refreshed, err := json.Marshal(&sess); err == nil {
		// Sliding TTL: every read re-arms the window.
		_ = s.kv.Client.Set(ctx, hash, refreshed, ttl).Err()
	}
	return &sess, nil
}
