// Package dispatch routes authenticated requests to service backends. A
// backend is either a remote HTTP binding or a locally registered handler;
// remote bindings win when both exist for a name.
package dispatch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omnicore/gateway/internal/domain/user"
	"github.com/omnicore/gateway/internal/gateway/autho"
	"github.com/omnicore/gateway/internal/gateway/gwerr"
	"github.com/omnicore/gateway/internal/gateway/pipeline"
)

const apiPrefix = "/api/v1/"

// frameworkKinds are analysis frameworks served by the frameworks backend.
// Their path segment is routable on its own so deployments can bind a single
// framework to a dedicated service.
var frameworkKinds = map[string]bool{
	"swot":         true,
	"ach":          true,
	"cog":          true,
	"pmesii-pt":    true,
	"dotmlpf":      true,
	"deception":    true,
	"behavioral":   true,
	"starbursting": true,
	"causeway":     true,
	"dime":         true,
}

// hop-by-hop headers are never forwarded either direction.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

type Dispatcher struct {
	bindings map[string]string
	local    map[string]pipeline.Handler
	client   *http.Client
	log      *zap.Logger
}

// New builds a dispatcher over the configured remote bindings. Local handlers
// are added with Register before serving starts.
func New(bindings map[string]string, log *zap.Logger) *Dispatcher {
	b := make(map[string]string, len(bindings))
	for name, base := range bindings {
		b[strings.ToLower(name)] = strings.TrimRight(base, "/")
	}
	return &Dispatcher{
		bindings: b,
		local:    make(map[string]pipeline.Handler),
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
}

func (d *Dispatcher) Register(name string, h pipeline.Handler) {
	d.local[strings.ToLower(name)] = h
}

// Handler is the terminal stage of the pipeline chain.
func (d *Dispatcher) Handler() pipeline.Handler {
	return func(ctx context.Context, rc *pipeline.Request) *pipeline.Response {
		name, ok := backendFor(rc.HTTP.URL.Path)
		if !ok {
			ge := gwerr.EndpointNotFound(rc.HTTP.URL.Path)
			return pipeline.JSON(ge.Status, ge.Envelope(rc.ID))
		}
		if resp := guardReadOnly(rc); resp != nil {
			return resp
		}

		if base, ok := d.bindings[name]; ok {
			return d.forward(ctx, rc, base)
		}
		if h, ok := d.local[name]; ok {
			return h(ctx, rc)
		}

		ge := gwerr.EndpointNotFound(rc.HTTP.URL.Path)
		return pipeline.JSON(ge.Status, ge.Envelope(rc.ID))
	}
}

var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// guardReadOnly blocks mutating verbs from read-only anonymous sessions.
// Anything above browsing needs a real account.
func guardReadOnly(rc *pipeline.Request) *pipeline.Response {
	if rc.Identity == nil || !rc.Identity.ReadOnly || safeMethods[rc.HTTP.Method] {
		return nil
	}
	if err := autho.RequireRole(rc.Identity, user.RoleResearcher); err != nil {
		ge := gwerr.From(err)
		return pipeline.JSON(ge.Status, ge.Envelope(rc.ID))
	}
	return nil
}

// backendFor maps a request path to a backend name. Framework sub-paths
// resolve to the framework kind first so a dedicated binding can claim them;
// the dispatcher falls back to the generic frameworks backend otherwise.
func backendFor(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, apiPrefix)
	if !ok || rest == "" {
		return "", false
	}
	seg, tail, _ := strings.Cut(rest, "/")
	seg = strings.ToLower(seg)

	if seg == "frameworks" {
		kind, _, _ := strings.Cut(tail, "/")
		if frameworkKinds[strings.ToLower(kind)] {
			return strings.ToLower(kind), true
		}
	}
	return seg, true
}

// forward proxies the request to a remote backend and returns its response
// verbatim. Identity travels on trusted headers; the bearer token does not.
func (d *Dispatcher) forward(ctx context.Context, rc *pipeline.Request, base string) *pipeline.Response {
	target := base + rc.HTTP.URL.Path
	if q := rc.HTTP.URL.RawQuery; q != "" {
		target += "?" + q
	}

	var body io.Reader
	if rc.HTTP.Body != nil {
		raw, err := io.ReadAll(rc.HTTP.Body)
		if err != nil {
			ge := gwerr.Internal(err)
			return pipeline.JSON(ge.Status, ge.Envelope(rc.ID))
		}
		body = bytes.NewReader(raw)
	}

	out, err := http.NewRequestWithContext(ctx, rc.HTTP.Method, target, body)
	if err != nil {
		ge := gwerr.Internal(err)
		return pipeline.JSON(ge.Status, ge.Envelope(rc.ID))
	}
	copyHeaders(out.Header, rc.HTTP.Header)
	out.Header.Del("Authorization")
	out.Header.Set("X-Request-ID", rc.ID)
	if rc.Identity != nil {
		out.Header.Set("X-User-ID", rc.Identity.UserID)
		out.Header.Set("X-User-Role", rc.Identity.Role)
	}

	resp, err := d.client.Do(out)
	if err != nil {
		d.log.Error("backend call failed",
			zap.String("target", target),
			zap.Error(err),
		)
		ge := gwerr.From(err)
		if ge.Code == gwerr.CodeInternal {
			ge = &gwerr.Error{
				Status:  http.StatusBadGateway,
				Code:    gwerr.CodeStoreUnavailable,
				Message: "upstream service unavailable",
				Err:     err,
			}
		}
		return pipeline.JSON(ge.Status, ge.Envelope(rc.ID))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		ge := gwerr.Internal(err)
		return pipeline.JSON(ge.Status, ge.Envelope(rc.ID))
	}

	header := http.Header{}
	copyHeaders(header, resp.Header)
	return &pipeline.Response{Status: resp.StatusCode, Header: header, Raw: raw}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
