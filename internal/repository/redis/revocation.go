package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/omnicore/gateway/internal/domain/identity"
)

var _ identity.RevocationList = (*RevocationList)(nil)

// RevocationList keeps presence-only blacklist:<token> markers. Presence
// beats any otherwise-valid signature.
type RevocationList struct {
	kv *KV
}

func NewRevocationList(kv *KV) *RevocationList { return &RevocationList{kv: kv} }

func blacklistKey(token string) string { return "blacklist:" + token }

func (r *RevocationList) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if err := r.kv.Client.Set(ctx, blacklistKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *RevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.kv.Client.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}
