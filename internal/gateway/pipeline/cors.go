package pipeline

import (
	"context"
	"net/http"
)

const (
	corsMethods = "GET, POST, PUT, DELETE, PATCH, OPTIONS"
	corsHeaders = "Content-Type, Authorization, X-Anonymous-Session, X-Request-ID"
	corsMaxAge  = "86400"
)

var devOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://localhost:5173",
	"http://localhost:8080",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// CORSResolver computes the allow-origin for the active environment. Dev
// allows the localhost set plus configured extras; staging and production
// allow configured origins only.
type CORSResolver struct {
	production bool
	origins    []string
	configured []string
}

func NewCORSResolver(env string, configured []string) *CORSResolver {
	production := env == "production" || env == "staging"
	origins := make([]string, 0, len(devOrigins)+len(configured))
	if !production {
		origins = append(origins, devOrigins...)
	}
	origins = append(origins, configured...)
	return &CORSResolver{production: production, origins: origins, configured: configured}
}

// Resolve returns the Access-Control-Allow-Origin value for a request
// origin, or "" when none may be sent. The dev fallback prefers the first
// configured origin over the built-in localhost set.
func (c *CORSResolver) Resolve(origin string) string {
	for _, o := range c.origins {
		if o == origin {
			return origin
		}
	}
	if !c.production {
		if len(c.configured) > 0 {
			return c.configured[0]
		}
		if len(c.origins) > 0 {
			return c.origins[0]
		}
	}
	return ""
}

// Apply overlays the CORS headers onto an outgoing response.
func (c *CORSResolver) Apply(h http.Header, origin string) {
	allow := c.Resolve(origin)
	if allow == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Allow-Methods", corsMethods)
	h.Set("Access-Control-Allow-Headers", corsHeaders)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Max-Age", corsMaxAge)
}

// Preflight short-circuits OPTIONS before rate limiting or auth: 204, empty
// body, CORS headers only.
func Preflight() Middleware {
	return func(ctx context.Context, rc *Request, next Handler) *Response {
		if rc.HTTP.Method == http.MethodOptions {
			return NoContent(http.StatusNoContent)
		}
		return next(ctx, rc)
	}
}
