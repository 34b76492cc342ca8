package pipeline

import (
	"context"
	"net/http"
	"strings"

	"github.com/omnicore/gateway/internal/domain/identity"
	"github.com/omnicore/gateway/internal/gateway/gwerr"
)

// publicPrefixes bypass identity resolution entirely.
var publicPrefixes = []string{
	"/api/v1/health",
	"/api/v1/auth/login",
	"/api/v1/auth/register",
	"/api/v1/auth/refresh",
	"/api/v1/auth/hash",
}

func PublicRoute(path string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Resolver is the auth seam; implemented by the autho package.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (*identity.Identity, error)
}

// Auth resolves the caller for non-public routes. Rejections carry a
// challenge header and never reach the top-level recover.
func Auth(resolver Resolver) Middleware {
	return func(ctx context.Context, rc *Request, next Handler) *Response {
		if PublicRoute(rc.HTTP.URL.Path) {
			return next(ctx, rc)
		}

		ident, err := resolver.Resolve(ctx, rc.HTTP)
		if err != nil {
			ge := gwerr.From(err)
			resp := JSON(ge.Status, ge.Envelope(rc.ID))
			if ge.Status == http.StatusUnauthorized {
				resp.Header.Set("WWW-Authenticate", `Bearer realm="omnicore"`)
			}
			return resp
		}

		rc.Identity = ident
		return next(ctx, rc)
	}
}
