// Package token implements the stateless token codec: three base64url
// segments (header, payload, HMAC-SHA256 signature) joined by dots, plus the
// password key derivation used by the auth backend.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnicore/gateway/internal/domain/identity"
)

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

const (
	AccessTTL  = time.Hour
	RefreshTTL = 7 * 24 * time.Hour
)

// tokenHeader is fixed; the codec never negotiates algorithms.
const tokenHeader = `{"alg":"HS256","typ":"JWT"}`

type Codec struct {
	Secret []byte
	Now    func() time.Time
}

func NewCodec(secret []byte) *Codec {
	return &Codec{Secret: secret, Now: func() time.Time { return time.Now().UTC() }}
}

// Issue stamps iat, exp and a random jti onto the claims and signs them.
// A non-positive ttl yields an already-expired token; Verify will reject it.
func (c *Codec) Issue(cl identity.Claims, ttl time.Duration) (string, error) {
	now := c.Now()
	cl.Iat = now.Unix()
	cl.Exp = now.Add(ttl).Unix()
	cl.JTI = uuid.NewString()

	payloadJSON, err := json.Marshal(cl)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	header := base64.RawURLEncoding.EncodeToString([]byte(tokenHeader))
	payload := base64.RawURLEncoding.EncodeToString(payloadJSON)
	signingInput := header + "." + payload
	sig := hmacSHA256(c.Secret, []byte(signingInput))

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify recomputes the signature, compares in constant time and checks
// expiry. It does not consult the revocation list; that is the resolver's job.
func (c *Codec) Verify(raw string) (*identity.Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, ErrTokenInvalid
	}

	signingInput := parts[0] + "." + parts[1]
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if !hmac.Equal(sig, hmacSHA256(c.Secret, []byte(signingInput))) {
		return nil, ErrTokenInvalid
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrTokenInvalid
	}
	var cl identity.Claims
	if err := json.Unmarshal(payloadJSON, &cl); err != nil {
		return nil, ErrTokenInvalid
	}

	if cl.Exp < c.Now().Unix() {
		return nil, ErrTokenExpired
	}
	return &cl, nil
}

func hmacSHA256(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}
