// Package pipeline is the per-request middleware chain of the gateway:
// request-id stamping, CORS, rate limiting, auth resolution, dispatch and
// uniform response assembly. Each request runs the chain independently; the
// only shared state lives in the external stores.
package pipeline

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omnicore/gateway/internal/domain/identity"
)

// Request carries one invocation's state through the chain. Never persisted,
// never shared across requests.
type Request struct {
	HTTP     *http.Request
	ID       string
	Start    time.Time
	ClientIP string
	Identity *identity.Identity
	Rate     *RateInfo
	Log      *zap.Logger
}

type RateInfo struct {
	Limit      int
	Remaining  int
	ResetAtMS  int64
	RetryAfter int
}

// Response is what handlers return; the composer turns it into the wire
// response. Raw passes a downstream body through untouched.
type Response struct {
	Status int
	Header http.Header
	Body   any
	Raw    []byte
}

func JSON(status int, body any) *Response {
	return &Response{Status: status, Header: http.Header{}, Body: body}
}

func NoContent(status int) *Response {
	return &Response{Status: status, Header: http.Header{}}
}

func (r *Response) WithHeader(key, value string) *Response {
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Set(key, value)
	return r
}

type Handler func(ctx context.Context, rc *Request) *Response

// Middleware wraps a handler; returning without calling next short-circuits
// the chain. No exceptions-as-control-flow anywhere in the pipeline.
type Middleware func(ctx context.Context, rc *Request, next Handler) *Response

// Chain composes middlewares in declaration order around the final handler.
func Chain(final Handler, mws ...Middleware) Handler {
	h := final
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		next := h
		h = func(ctx context.Context, rc *Request) *Response {
			return mw(ctx, rc, next)
		}
	}
	return h
}

// ClientIP resolves the caller address behind reverse proxies.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
