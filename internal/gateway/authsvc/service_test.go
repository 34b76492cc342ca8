package authsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omnicore/gateway/internal/domain/identity"
	"github.com/omnicore/gateway/internal/domain/user"
	"github.com/omnicore/gateway/internal/gateway/gwerr"
	"github.com/omnicore/gateway/internal/gateway/pipeline"
	"github.com/omnicore/gateway/internal/repository/postgres"
	rd "github.com/omnicore/gateway/internal/repository/redis"
	"github.com/omnicore/gateway/internal/token"
)

type memUsers struct {
	byID map[string]*user.User
}

func (m *memUsers) Create(ctx context.Context, u *user.User) error {
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return postgres.ErrConflict
		}
	}
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, postgres.ErrNotFound
}

type memAuthLogs struct {
	entries []*user.AuthLog
}

func (m *memAuthLogs) Insert(ctx context.Context, e *user.AuthLog) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAuthLogs) CountRecentFailures(ctx context.Context, email string, since time.Time) (int, error) {
	n := 0
	for _, e := range m.entries {
		if e.Email == email && !e.Success && e.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

type svcHarness struct {
	svc   *Service
	users *memUsers
	logs  *memAuthLogs
	kv    *rd.KV
	codec *token.Codec
}

func newSvcHarness(t *testing.T) *svcHarness {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	kv := rd.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	codec := token.NewCodec([]byte("authsvc-test-secret"))
	users := &memUsers{byID: map[string]*user.User{}}
	logs := &memAuthLogs{}

	svc := New(codec, users, logs,
		rd.NewSessionStore(kv), rd.NewRevocationList(kv), rd.NewAnonymousStore(kv),
		zap.NewNop())
	return &svcHarness{svc: svc, users: users, logs: logs, kv: kv, codec: codec}
}

func (h *svcHarness) seedUser(t *testing.T, email, password string) *user.User {
	t.Helper()
	hash, err := token.HashPassword(password)
	require.NoError(t, err)
	u := &user.User{
		ID:           "seed-" + email,
		Email:        email,
		Username:     strings.Split(email, "@")[0],
		PasswordHash: hash,
		Role:         user.RoleAnalyst,
		IsActive:     true,
	}
	h.users.byID[u.ID] = u
	return u
}

func call(t *testing.T, h pipeline.Handler, method, path, body string, ident *identity.Identity) *pipeline.Response {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rc := &pipeline.Request{HTTP: r, ID: "req-1", ClientIP: "10.0.0.1", Identity: ident, Log: zap.NewNop()}
	return h(context.Background(), rc)
}

func envelopeOf(t *testing.T, resp *pipeline.Response) gwerr.Envelope {
	t.Helper()
	raw, err := json.Marshal(resp.Body)
	require.NoError(t, err)
	var env gwerr.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func bodyOf(t *testing.T, resp *pipeline.Response) map[string]any {
	t.Helper()
	raw, err := json.Marshal(resp.Body)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestLoginSuccess(t *testing.T) {
	h := newSvcHarness(t)
	u := h.seedUser(t, "alice@example.com", "good password 1")

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"good password 1"}`, nil)
	require.Equal(t, http.StatusOK, resp.Status)

	body := bodyOf(t, resp)
	require.NotEmpty(t, body["access_token"])
	require.NotEmpty(t, body["refresh_token"])
	require.Equal(t, "bearer", body["token_type"])
	require.EqualValues(t, 3600, body["expires_in"])

	// access token verifies and names the user
	cl, err := h.codec.Verify(body["access_token"].(string))
	require.NoError(t, err)
	require.Equal(t, u.ID, cl.Sub)
	require.Empty(t, cl.Type)

	// session record saved under the access token
	rec, err := rd.NewSessionStore(h.kv).Get(context.Background(), body["access_token"].(string))
	require.NoError(t, err)
	require.Equal(t, u.ID, rec.UserID)

	require.Len(t, h.logs.entries, 1)
	require.True(t, h.logs.entries[0].Success)
	require.Equal(t, "10.0.0.1", h.logs.entries[0].IP)
}

func TestLoginWrongPassword(t *testing.T) {
	h := newSvcHarness(t)
	h.seedUser(t, "alice@example.com", "good password 1")

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"wrong"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.Equal(t, gwerr.CodeInvalidCredentials, envelopeOf(t, resp).Code)

	require.Len(t, h.logs.entries, 1)
	require.False(t, h.logs.entries[0].Success)
}

func TestLoginThrottledAfterRepeatedFailures(t *testing.T) {
	h := newSvcHarness(t)
	h.seedUser(t, "alice@example.com", "good password 1")

	for i := 0; i < 10; i++ {
		h.logs.entries = append(h.logs.entries, &user.AuthLog{
			Email:     "alice@example.com",
			Success:   false,
			CreatedAt: time.Now().UTC(),
		})
	}

	// even the correct password waits out a hot window
	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"good password 1"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.Status)
	require.Equal(t, gwerr.CodeRateLimited, envelopeOf(t, resp).Code)

	// stale failures age out of the count
	for _, e := range h.logs.entries {
		e.CreatedAt = time.Now().UTC().Add(-time.Hour)
	}
	resp = call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"good password 1"}`, nil)
	require.Equal(t, http.StatusOK, resp.Status)
}

func TestLoginUnknownEmailSameCode(t *testing.T) {
	h := newSvcHarness(t)

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/login",
		`{"email":"nobody@example.com","password":"whatever1"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.Equal(t, gwerr.CodeInvalidCredentials, envelopeOf(t, resp).Code)
}

func TestLoginMalformedBody(t *testing.T) {
	h := newSvcHarness(t)

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/login", `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Status)
	require.Equal(t, gwerr.CodeMalformedJSON, envelopeOf(t, resp).Code)
}

func TestRegisterCreatesAndIssues(t *testing.T) {
	h := newSvcHarness(t)

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/register",
		`{"email":"New@Example.com","username":"newbie","password":"long enough pw"}`, nil)
	require.Equal(t, http.StatusCreated, resp.Status)

	body := bodyOf(t, resp)
	require.NotEmpty(t, body["access_token"])
	userBody := body["user"].(map[string]any)
	require.Equal(t, "new@example.com", userBody["email"])
	require.Equal(t, user.RoleViewer, userBody["role"])
	require.NotContains(t, userBody, "password_hash")
}

func TestRegisterWeakPassword(t *testing.T) {
	h := newSvcHarness(t)

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/register",
		`{"email":"a@example.com","username":"a","password":"short"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Status)

	env := envelopeOf(t, resp)
	require.Equal(t, gwerr.CodeValidationFailed, env.Code)
	details := env.Details.(map[string]any)
	require.Contains(t, details, "password")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newSvcHarness(t)
	h.seedUser(t, "taken@example.com", "some password")

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/register",
		`{"email":"taken@example.com","username":"other","password":"long enough pw"}`, nil)
	require.Equal(t, http.StatusConflict, resp.Status)
	require.Equal(t, gwerr.CodeConflict, envelopeOf(t, resp).Code)
}

func TestRefreshRotates(t *testing.T) {
	h := newSvcHarness(t)
	u := h.seedUser(t, "alice@example.com", "good password 1")

	refresh, err := h.codec.Issue(identity.Claims{Sub: u.ID, Type: identity.TypeRefresh}, token.RefreshTTL)
	require.NoError(t, err)

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/refresh",
		`{"refresh_token":"`+refresh+`"}`, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.NotEmpty(t, bodyOf(t, resp)["access_token"])

	// the presented refresh token is now blacklisted
	resp = call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/refresh",
		`{"refresh_token":"`+refresh+`"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.Equal(t, gwerr.CodeAuthRevoked, envelopeOf(t, resp).Code)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	h := newSvcHarness(t)
	u := h.seedUser(t, "alice@example.com", "good password 1")

	access, err := h.codec.Issue(identity.Claims{Sub: u.ID}, token.AccessTTL)
	require.NoError(t, err)

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/refresh",
		`{"refresh_token":"`+access+`"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.Equal(t, gwerr.CodeAuthInvalid, envelopeOf(t, resp).Code)
}

func TestLogoutRevokes(t *testing.T) {
	h := newSvcHarness(t)
	u := h.seedUser(t, "alice@example.com", "good password 1")

	access, err := h.codec.Issue(identity.Claims{Sub: u.ID}, token.AccessTTL)
	require.NoError(t, err)

	ident := &identity.Identity{UserID: u.ID, Token: access}
	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/logout", "", ident)
	require.Equal(t, http.StatusOK, resp.Status)

	revoked, err := rd.NewRevocationList(h.kv).IsRevoked(context.Background(), access)
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestMeReturnsPublicUser(t *testing.T) {
	h := newSvcHarness(t)
	u := h.seedUser(t, "alice@example.com", "good password 1")

	resp := call(t, h.svc.Handler(), http.MethodGet, "/api/v1/auth/me", "", &identity.Identity{UserID: u.ID})
	require.Equal(t, http.StatusOK, resp.Status)

	body := bodyOf(t, resp)
	require.Equal(t, u.Email, body["email"])
	require.NotContains(t, body, "password_hash")
}

func TestHashCreatesAnonymousSession(t *testing.T) {
	h := newSvcHarness(t)

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/hash", "", nil)
	require.Equal(t, http.StatusOK, resp.Status)

	body := bodyOf(t, resp)
	hash := body["hash"].(string)
	require.Len(t, hash, 16)
	require.Equal(t, "viewer", body["role"])
	require.Equal(t, "anon:"+hash, body["user_id"])

	// same hash round-trips to the same session
	resp = call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/hash",
		`{"hash":"`+hash+`"}`, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, hash, bodyOf(t, resp)["hash"])
}

func TestHashRejectsMalformed(t *testing.T) {
	h := newSvcHarness(t)

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/hash",
		`{"hash":"not!valid"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Status)
	require.Equal(t, gwerr.CodeValidationFailed, envelopeOf(t, resp).Code)
}

func TestUnknownAuthOp(t *testing.T) {
	h := newSvcHarness(t)

	resp := call(t, h.svc.Handler(), http.MethodPost, "/api/v1/auth/frobnicate", "", nil)
	require.Equal(t, http.StatusNotFound, resp.Status)
	require.Equal(t, gwerr.CodeEndpointNotFound, envelopeOf(t, resp).Code)
}
