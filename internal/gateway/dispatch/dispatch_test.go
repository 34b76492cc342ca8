package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omnicore/gateway/internal/domain/identity"
	"github.com/omnicore/gateway/internal/gateway/gwerr"
	"github.com/omnicore/gateway/internal/gateway/pipeline"
)

func testRequest(method, path string) *pipeline.Request {
	r := httptest.NewRequest(method, path, nil)
	return &pipeline.Request{HTTP: r, ID: "req-1", ClientIP: "10.0.0.1", Log: zap.NewNop()}
}

func TestBackendForRouting(t *testing.T) {
	cases := []struct {
		path string
		want string
		ok   bool
	}{
		{"/api/v1/auth/login", "auth", true},
		{"/api/v1/users/42", "users", true},
		{"/api/v1/frameworks", "frameworks", true},
		{"/api/v1/frameworks/swot/analyses", "swot", true},
		{"/api/v1/frameworks/pmesii-pt", "pmesii-pt", true},
		{"/api/v1/frameworks/unknown-kind", "frameworks", true},
		{"/api/v1/ai/generate", "ai", true},
		{"/api/v1/health", "health", true},
		{"/api/v1/", "", false},
		{"/other/path", "", false},
	}
	for _, tc := range cases {
		got, ok := backendFor(tc.path)
		require.Equal(t, tc.ok, ok, tc.path)
		require.Equal(t, tc.want, got, tc.path)
	}
}

func TestDispatchRemoteBinding(t *testing.T) {
	var gotPath, gotUserID, gotRole, gotReqID, gotAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUserID = r.Header.Get("X-User-ID")
		gotRole = r.Header.Get("X-User-Role")
		gotReqID = r.Header.Get("X-Request-ID")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"from":"backend"}`))
	}))
	defer backend.Close()

	d := New(map[string]string{"users": backend.URL}, zap.NewNop())
	h := d.Handler()

	rc := testRequest(http.MethodGet, "/api/v1/users/42?limit=5")
	rc.HTTP.Header.Set("Authorization", "Bearer secret-token")
	rc.Identity = &identity.Identity{UserID: "u7", Role: "analyst"}

	resp := h(context.Background(), rc)
	require.Equal(t, http.StatusTeapot, resp.Status)
	require.JSONEq(t, `{"from":"backend"}`, string(resp.Raw))
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	require.Equal(t, "/api/v1/users/42", gotPath)
	require.Equal(t, "u7", gotUserID)
	require.Equal(t, "analyst", gotRole)
	require.Equal(t, "req-1", gotReqID)
	require.Empty(t, gotAuth, "bearer token must not leak to backends")
}

func TestDispatchForwardsBody(t *testing.T) {
	var gotBody []byte
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer backend.Close()

	d := New(map[string]string{"frameworks": backend.URL}, zap.NewNop())
	h := d.Handler()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/frameworks", strings.NewReader(`{"name":"swot"}`))
	rc := &pipeline.Request{HTTP: r, ID: "req-2", Log: zap.NewNop()}

	resp := h(context.Background(), rc)
	require.Equal(t, http.StatusCreated, resp.Status)
	require.JSONEq(t, `{"name":"swot"}`, string(gotBody))
}

func TestDispatchLocalFallback(t *testing.T) {
	d := New(nil, zap.NewNop())
	d.Register("health", func(ctx context.Context, rc *pipeline.Request) *pipeline.Response {
		return pipeline.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	h := d.Handler()

	resp := h(context.Background(), testRequest(http.MethodGet, "/api/v1/health"))
	require.Equal(t, http.StatusOK, resp.Status)
}

func TestDispatchBindingWinsOverLocal(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer backend.Close()

	d := New(map[string]string{"auth": backend.URL}, zap.NewNop())
	d.Register("auth", func(ctx context.Context, rc *pipeline.Request) *pipeline.Response {
		return pipeline.JSON(http.StatusOK, nil)
	})
	h := d.Handler()

	resp := h(context.Background(), testRequest(http.MethodPost, "/api/v1/auth/login"))
	require.Equal(t, http.StatusAccepted, resp.Status)
}

func TestDispatchReadOnlyGuard(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	d := New(map[string]string{"frameworks": backend.URL}, zap.NewNop())
	h := d.Handler()

	anon := identity.AnonymousIdentity("abcDEF1234567890")

	rc := testRequest(http.MethodGet, "/api/v1/frameworks")
	rc.Identity = anon
	resp := h(context.Background(), rc)
	require.Equal(t, http.StatusOK, resp.Status)

	rc = testRequest(http.MethodPost, "/api/v1/frameworks")
	rc.Identity = anon
	resp = h(context.Background(), rc)
	require.Equal(t, http.StatusForbidden, resp.Status)

	body, err := json.Marshal(resp.Body)
	require.NoError(t, err)
	var env gwerr.Envelope
	require.NoError(t, json.Unmarshal(body, &env))
	require.Equal(t, gwerr.CodeRoleInsufficient, env.Code)
}

func TestDispatchUnknownBackend(t *testing.T) {
	d := New(nil, zap.NewNop())
	h := d.Handler()

	resp := h(context.Background(), testRequest(http.MethodGet, "/api/v1/nonexistent"))
	require.Equal(t, http.StatusNotFound, resp.Status)

	body, err := json.Marshal(resp.Body)
	require.NoError(t, err)
	var env gwerr.Envelope
	require.NoError(t, json.Unmarshal(body, &env))
	require.Equal(t, gwerr.CodeEndpointNotFound, env.Code)
	require.Equal(t, "req-1", env.RequestID)
}

func TestDispatchUnreachableBackend(t *testing.T) {
	d := New(map[string]string{"users": "http://127.0.0.1:1"}, zap.NewNop())
	h := d.Handler()

	resp := h(context.Background(), testRequest(http.MethodGet, "/api/v1/users"))
	require.Equal(t, http.StatusBadGateway, resp.Status)
}

