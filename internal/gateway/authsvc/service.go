// Package authsvc is the locally hosted auth backend: credential login,
// registration, token refresh, logout and the anonymous hash handshake. It is
// registered with the dispatcher under the "auth" backend name and takes over
// whenever no remote binding claims it.
package authsvc

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnicore/gateway/internal/domain/identity"
	"github.com/omnicore/gateway/internal/domain/user"
	"github.com/omnicore/gateway/internal/gateway/gwerr"
	"github.com/omnicore/gateway/internal/gateway/pipeline"
	"github.com/omnicore/gateway/internal/repository/postgres"
	redisrepo "github.com/omnicore/gateway/internal/repository/redis"
	"github.com/omnicore/gateway/internal/token"
)

const (
	// SessionTTL bounds both activity records and blacklist markers. A token
	// already expires after token.AccessTTL; the extra margin covers clock
	// skew on revocation.
	SessionTTL = 24 * time.Hour

	minPasswordLen = 8
	anonHashLen    = 16

	// Per-email credential throttle, layered on the pipeline's per-IP
	// window. A failed count read never blocks a login.
	maxLoginFailures = 10
	failureWindow    = 15 * time.Minute
)

type Service struct {
	codec       *token.Codec
	users       user.Repo
	authLogs    user.AuthLogRepo
	sessions    identity.SessionStore
	revocations identity.RevocationList
	anon        identity.AnonymousStore
	log         *zap.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration
	sessionTTL time.Duration
}

func New(
	codec *token.Codec,
	users user.Repo,
	authLogs user.AuthLogRepo,
	sessions identity.SessionStore,
	revocations identity.RevocationList,
	anon identity.AnonymousStore,
	log *zap.Logger,
) *Service {
	return &Service{
		codec:       codec,
		users:       users,
		authLogs:    authLogs,
		sessions:    sessions,
		revocations: revocations,
		anon:        anon,
		log:         log,
		accessTTL:   token.AccessTTL,
		refreshTTL:  token.RefreshTTL,
		sessionTTL:  SessionTTL,
	}
}

// WithTTLs overrides the token and session lifetimes; zero values keep the
// defaults.
func (s *Service) WithTTLs(access, refresh, session time.Duration) *Service {
	if access > 0 {
		s.accessTTL = access
	}
	if refresh > 0 {
		s.refreshTTL = refresh
	}
	if session > 0 {
		s.sessionTTL = session
	}
	return s
}

// Handler routes auth sub-paths. Unknown sub-paths fall through to the
// endpoint-not-found taxonomy like any other unbound route.
func (s *Service) Handler() pipeline.Handler {
	return func(ctx context.Context, rc *pipeline.Request) *pipeline.Response {
		op := strings.TrimPrefix(rc.HTTP.URL.Path, "/api/v1/auth")
		op = strings.Trim(op, "/")

		switch {
		case op == "login" && rc.HTTP.Method == http.MethodPost:
			return s.login(ctx, rc)
		case op == "register" && rc.HTTP.Method == http.MethodPost:
			return s.register(ctx, rc)
		case op == "refresh" && rc.HTTP.Method == http.MethodPost:
			return s.refresh(ctx, rc)
		case op == "logout" && rc.HTTP.Method == http.MethodPost:
			return s.logout(ctx, rc)
		case op == "me" && rc.HTTP.Method == http.MethodGet:
			return s.me(ctx, rc)
		case op == "hash" && rc.HTTP.Method == http.MethodPost:
			return s.hash(ctx, rc)
		}
		return fail(rc, gwerr.EndpointNotFound(rc.HTTP.URL.Path))
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) login(ctx context.Context, rc *pipeline.Request) *pipeline.Response {
	var in loginRequest
	if ge := decode(rc, &in); ge != nil {
		return fail(rc, ge)
	}
	if fields := requireFields(map[string]string{"email": in.Email, "password": in.Password}); fields != nil {
		return fail(rc, gwerr.Validation(fields))
	}

	email := strings.ToLower(in.Email)
	if n, err := s.authLogs.CountRecentFailures(ctx, email, time.Now().UTC().Add(-failureWindow)); err != nil {
		s.log.Warn("failure count lookup failed", zap.Error(err))
	} else if n >= maxLoginFailures {
		return fail(rc, gwerr.RateLimited(int(failureWindow/time.Second)))
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			s.recordAttempt(ctx, rc, "", email, false)
			return fail(rc, gwerr.InvalidCredentials())
		}
		return fail(rc, gwerr.From(err))
	}

	if !u.IsActive || !token.VerifyPassword(in.Password, u.PasswordHash) {
		s.recordAttempt(ctx, rc, u.ID, email, false)
		return fail(rc, gwerr.InvalidCredentials())
	}
	s.recordAttempt(ctx, rc, u.ID, email, true)

	return s.issuePair(ctx, rc, u)
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Service) register(ctx context.Context, rc *pipeline.Request) *pipeline.Response {
	var in registerRequest
	if ge := decode(rc, &in); ge != nil {
		return fail(rc, ge)
	}

	fields := map[string]string{}
	if !strings.Contains(in.Email, "@") {
		fields["email"] = "must be a valid email address"
	}
	if in.Username == "" {
		fields["username"] = "is required"
	}
	if len(in.Password) < minPasswordLen {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		return fail(rc, gwerr.Validation(fields))
	}

	hash, err := token.HashPassword(in.Password)
	if err != nil {
		return fail(rc, gwerr.Internal(err))
	}

	now := time.Now().UTC()
	u := &user.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(in.Email),
		Username:     in.Username,
		PasswordHash: hash,
		Role:         user.RoleViewer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, postgres.ErrConflict) {
			return fail(rc, gwerr.Conflict("email already registered"))
		}
		return fail(rc, gwerr.From(err))
	}

	resp := s.issuePair(ctx, rc, u)
	if resp.Status == http.StatusOK {
		resp.Status = http.StatusCreated
	}
	return resp
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Service) refresh(ctx context.Context, rc *pipeline.Request) *pipeline.Response {
	var in refreshRequest
	if ge := decode(rc, &in); ge != nil {
		return fail(rc, ge)
	}
	if in.RefreshToken == "" {
		return fail(rc, gwerr.Validation(map[string]string{"refresh_token": "is required"}))
	}

	revoked, err := s.revocations.IsRevoked(ctx, in.RefreshToken)
	if err != nil {
		return fail(rc, gwerr.From(err))
	}
	if revoked {
		return fail(rc, gwerr.AuthRevoked())
	}

	cl, err := s.codec.Verify(in.RefreshToken)
	if err != nil {
		return fail(rc, gwerr.AuthInvalid("invalid refresh token"))
	}
	if cl.Type != identity.TypeRefresh {
		return fail(rc, gwerr.AuthInvalid("not a refresh token"))
	}

	u, err := s.users.GetByID(ctx, cl.Sub)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return fail(rc, gwerr.AuthInvalid("unknown subject"))
		}
		return fail(rc, gwerr.From(err))
	}
	if !u.IsActive {
		return fail(rc, gwerr.AuthInvalid("account disabled"))
	}

	// Rotation: the presented refresh token is single-use.
	if err := s.revocations.Revoke(ctx, in.RefreshToken, s.refreshTTL); err != nil {
		s.log.Warn("refresh token revoke failed", zap.Error(err))
	}

	return s.issuePair(ctx, rc, u)
}

func (s *Service) logout(ctx context.Context, rc *pipeline.Request) *pipeline.Response {
	if rc.Identity == nil || rc.Identity.Token == "" {
		return fail(rc, gwerr.AuthRequired())
	}
	raw := rc.Identity.Token

	if err := s.revocations.Revoke(ctx, raw, s.sessionTTL); err != nil {
		return fail(rc, gwerr.From(err))
	}
	if err := s.sessions.Delete(ctx, raw); err != nil && !errors.Is(err, redisrepo.ErrNotFound) {
		s.log.Warn("session delete failed", zap.Error(err))
	}
	return pipeline.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Service) me(ctx context.Context, rc *pipeline.Request) *pipeline.Response {
	if rc.Identity == nil {
		return fail(rc, gwerr.AuthRequired())
	}
	if rc.Identity.Anonymous {
		return pipeline.JSON(http.StatusOK, map[string]any{
			"id":        rc.Identity.UserID,
			"username":  rc.Identity.Username,
			"role":      rc.Identity.Role,
			"anonymous": true,
		})
	}
	u, err := s.users.GetByID(ctx, rc.Identity.UserID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return fail(rc, gwerr.NotFound("user not found"))
		}
		return fail(rc, gwerr.From(err))
	}
	return pipeline.JSON(http.StatusOK, u.Public())
}

type hashRequest struct {
	Hash string `json:"hash"`
}

// hash creates or touches an anonymous session. Clients may bring their own
// 16-char hash; the server mints one otherwise.
func (s *Service) hash(ctx context.Context, rc *pipeline.Request) *pipeline.Response {
	var in hashRequest
	if rc.HTTP.Body != nil && rc.HTTP.ContentLength != 0 {
		if ge := decode(rc, &in); ge != nil {
			return fail(rc, ge)
		}
	}

	h := in.Hash
	if h == "" {
		h = newAnonHash()
	} else if !validAnonHash(h) {
		return fail(rc, gwerr.Validation(map[string]string{"hash": "must be 16 alphanumeric characters"}))
	}

	now := time.Now().UTC()
	sess, err := s.anon.Get(ctx, h, s.sessionTTL)
	if err != nil {
		if !errors.Is(err, redisrepo.ErrNotFound) {
			return fail(rc, gwerr.From(err))
		}
		sess = &identity.AnonymousSession{CreatedAt: now, LastAccessedAt: now}
		if err := s.anon.Create(ctx, h, sess, s.sessionTTL); err != nil {
			return fail(rc, gwerr.From(err))
		}
	}

	id := identity.AnonymousIdentity(h)
	return pipeline.JSON(http.StatusOK, map[string]any{
		"hash":      h,
		"user_id":   id.UserID,
		"username":  id.Username,
		"role":      id.Role,
		"createdAt": sess.CreatedAt,
	})
}

// issuePair signs an access/refresh token pair and saves the session record.
// Session persistence failures are logged but do not fail the login; identity
// remains token-backed.
func (s *Service) issuePair(ctx context.Context, rc *pipeline.Request, u *user.User) *pipeline.Response {
	access, err := s.codec.Issue(identity.Claims{
		Sub:      u.ID,
		Role:     u.Role,
		Email:    u.Email,
		Username: u.Username,
	}, s.accessTTL)
	if err != nil {
		return fail(rc, gwerr.Internal(err))
	}
	refresh, err := s.codec.Issue(identity.Claims{
		Sub:  u.ID,
		Type: identity.TypeRefresh,
	}, s.refreshTTL)
	if err != nil {
		return fail(rc, gwerr.Internal(err))
	}

	now := time.Now().UTC()
	rec := &identity.SessionRecord{
		UserID:       u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.sessions.Save(ctx, access, rec, s.sessionTTL); err != nil {
		s.log.Warn("session save failed", zap.String("user_id", u.ID), zap.Error(err))
	}

	return pipeline.JSON(http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
		"expires_in":    int(s.accessTTL.Seconds()),
		"user":          u.Public(),
	})
}

func (s *Service) recordAttempt(ctx context.Context, rc *pipeline.Request, userID, email string, success bool) {
	e := &user.AuthLog{
		UserID:    userID,
		Email:     email,
		Success:   success,
		IP:        rc.ClientIP,
		UserAgent: rc.HTTP.UserAgent(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.authLogs.Insert(ctx, e); err != nil {
		s.log.Warn("auth log insert failed", zap.Error(err))
	}
}

func decode(rc *pipeline.Request, dst any) *gwerr.Error {
	if rc.HTTP.Body == nil {
		return gwerr.MalformedJSON()
	}
	if err := json.NewDecoder(rc.HTTP.Body).Decode(dst); err != nil {
		return gwerr.MalformedJSON()
	}
	return nil
}

func requireFields(fields map[string]string) map[string]string {
	missing := map[string]string{}
	for name, v := range fields {
		if v == "" {
			missing[name] = "is required"
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return missing
}

func fail(rc *pipeline.Request, ge *gwerr.Error) *pipeline.Response {
	if ge.Err != nil {
		rc.Log.Error("auth operation failed", zap.String("code", ge.Code), zap.Error(ge.Err))
	}
	return pipeline.JSON(ge.Status, ge.Envelope(rc.ID))
}

const anonAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func newAnonHash() string {
	buf := make([]byte, anonHashLen)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = anonAlphabet[int(b)%len(anonAlphabet)]
	}
	return string(buf)
}

func validAnonHash(h string) bool {
	if len(h) != anonHashLen {
		return false
	}
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
