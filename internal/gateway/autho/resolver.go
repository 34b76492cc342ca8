// Package autho resolves the caller identity for each request: bearer token
// verification against the codec and revocation list, with an anonymous
// session bridge for callers presenting only a client-generated hash.
package autho

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omnicore/gateway/internal/domain/identity"
	"github.com/omnicore/gateway/internal/domain/user"
	"github.com/omnicore/gateway/internal/gateway/gwerr"
	"github.com/omnicore/gateway/internal/repository/postgres"
	redisrepo "github.com/omnicore/gateway/internal/repository/redis"
	"github.com/omnicore/gateway/internal/token"
)

const (
	anonymousHeader = "X-Anonymous-Session"
	// anonymousTTL bounds how long an idle anonymous session survives; each
	// successful resolution slides it.
	anonymousTTL = 24 * time.Hour
)

// anonHashRe gates the header before any store lookup. Anything that does not
// match is rejected without touching Redis.
var anonHashRe = regexp.MustCompile(`^[a-zA-Z0-9]{16}$`)

type Resolver struct {
	codec       *token.Codec
	users       user.Repo
	sessions    identity.SessionStore
	revocations identity.RevocationList
	anon        identity.AnonymousStore
	log         *zap.Logger
}

func NewResolver(
	codec *token.Codec,
	users user.Repo,
	sessions identity.SessionStore,
	revocations identity.RevocationList,
	anon identity.AnonymousStore,
	log *zap.Logger,
) *Resolver {
	return &Resolver{
		codec:       codec,
		users:       users,
		sessions:    sessions,
		revocations: revocations,
		anon:        anon,
		log:         log,
	}
}

// Resolve runs the identity state machine for one request. Outcomes:
//
//   - a valid bearer token resolves to the backing user;
//   - no Authorization header but a well-formed anonymous hash with a live
//     session resolves to a synthetic read-only viewer;
//   - everything else is rejected with a taxonomy error.
//
// A present Authorization header that is not Bearer-shaped is rejected
// outright; it never falls through to the anonymous bridge. Revocation takes
// precedence over signature validity: a revoked token is reported as revoked
// even while cryptographically sound.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*identity.Identity, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return r.resolveAnonymous(ctx, req)
	}
	raw, ok := bearerToken(header)
	if !ok {
		return nil, gwerr.AuthInvalid("malformed authorization header")
	}

	revoked, err := r.revocations.IsRevoked(ctx, raw)
	if err != nil {
		return nil, gwerr.From(err)
	}
	if revoked {
		return nil, gwerr.AuthRevoked()
	}

	cl, err := r.codec.Verify(raw)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, gwerr.AuthInvalid("token expired")
		}
		return nil, gwerr.AuthInvalid("token verification failed")
	}

	u, err := r.users.GetByID(ctx, cl.Sub)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, gwerr.AuthInvalid("unknown subject")
		}
		return nil, gwerr.From(err)
	}
	if !u.IsActive {
		return nil, gwerr.AuthInvalid("account disabled")
	}

	// Session activity tracking happens off the request path; a dead session
	// record does not invalidate a valid token.
	go r.touchSession(raw)

	return &identity.Identity{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		Token:    raw,
		Claims:   cl,
	}, nil
}

func (r *Resolver) resolveAnonymous(ctx context.Context, req *http.Request) (*identity.Identity, error) {
	hash := req.Header.Get(anonymousHeader)
	if hash == "" {
		return nil, gwerr.AuthRequired()
	}
	if !anonHashRe.MatchString(hash) {
		return nil, gwerr.AuthInvalid("malformed anonymous session id")
	}

	if _, err := r.anon.Get(ctx, hash, anonymousTTL); err != nil {
		if errors.Is(err, redisrepo.ErrNotFound) {
			return nil, gwerr.AuthInvalid("anonymous session not found")
		}
		return nil, gwerr.From(err)
	}
	return identity.AnonymousIdentity(hash), nil
}

func (r *Resolver) touchSession(raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.sessions.Touch(ctx, raw, time.Now().UTC()); err != nil {
		r.log.Debug("session touch failed", zap.Error(err))
	}
}

// bearerToken extracts the credential from a non-empty Authorization header
// value. The scheme comparison is case-insensitive.
func bearerToken(h string) (string, bool) {
	scheme, rest, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(rest)
	return raw, raw != ""
}
