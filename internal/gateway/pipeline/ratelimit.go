package pipeline

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omnicore/gateway/internal/gateway/gwerr"
)

// Policy is a fixed-window budget for a path prefix. Fixed-window means a
// burst can straddle a window boundary and see up to ~2x the nominal limit;
// accepted approximation, precise quota enforcement is a non-goal.
type Policy struct {
	Prefix      string
	MaxRequests int
	Window      time.Duration
}

// Policies returns the route-class table, most specific prefix first. The
// catch-all budget depends on the environment.
func Policies(production bool) []Policy {
	defaultMax := 1000
	if production {
		defaultMax = 100
	}
	p := []Policy{
		{Prefix: "/api/v1/auth/login", MaxRequests: 5, Window: 15 * time.Minute},
		{Prefix: "/api/v1/auth/register", MaxRequests: 3, Window: time.Hour},
		{Prefix: "/api/v1/ai", MaxRequests: 10, Window: time.Minute},
		{Prefix: "/api/v1/export", MaxRequests: 5, Window: time.Minute},
		{Prefix: "/", MaxRequests: defaultMax, Window: time.Minute},
	}
	sort.Slice(p, func(i, j int) bool { return len(p[i].Prefix) > len(p[j].Prefix) })
	return p
}

func matchPolicy(policies []Policy, path string) Policy {
	for _, pol := range policies {
		if strings.HasPrefix(path, pol.Prefix) {
			return pol
		}
	}
	return policies[len(policies)-1]
}

// Counters is the store seam; implemented by the redis counter store.
type Counters interface {
	Peek(ctx context.Context, key string) (int64, time.Duration, error)
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RateLimiter struct {
	counters   Counters
	policies   []Policy
	healthPath string
}

func NewRateLimiter(counters Counters, production bool) *RateLimiter {
	return &RateLimiter{
		counters:   counters,
		policies:   Policies(production),
		healthPath: "/api/v1/health",
	}
}

// Key builds rate_limit:<path>:<ip>[:<userId>]. Identity is appended only
// once resolved, which at the pipeline stage it is not.
func Key(path, ip, userID string) string {
	k := "rate_limit:" + path + ":" + ip
	if userID != "" {
		k += ":" + userID
	}
	return k
}

// Middleware checks and advances the counter. The health path is exempt.
// Store failures fail open: the gateway must not take the platform down.
func (l *RateLimiter) Middleware() Middleware {
	return func(ctx context.Context, rc *Request, next Handler) *Response {
		path := rc.HTTP.URL.Path
		if strings.HasPrefix(path, l.healthPath) {
			return next(ctx, rc)
		}

		pol := matchPolicy(l.policies, path)
		key := Key(path, rc.ClientIP, "")

		count, ttl, err := l.counters.Peek(ctx, key)
		if err != nil {
			rc.Log.Warn("rate limit peek failed, allowing request", zap.Error(err))
			return next(ctx, rc)
		}
		if count >= int64(pol.MaxRequests) {
			if ttl <= 0 {
				ttl = pol.Window
			}
			retry := int(ttl / time.Second)
			if retry < 1 {
				retry = 1
			}
			rc.Rate = &RateInfo{
				Limit:      pol.MaxRequests,
				Remaining:  0,
				ResetAtMS:  time.Now().Add(ttl).UnixMilli(),
				RetryAfter: retry,
			}
			ge := gwerr.RateLimited(retry)
			resp := JSON(ge.Status, ge.Envelope(rc.ID))
			resp.Header.Set("Retry-After", strconv.Itoa(retry))
			resp.Header.Set("X-RateLimit-Limit", strconv.Itoa(pol.MaxRequests))
			resp.Header.Set("X-RateLimit-Remaining", "0")
			resp.Header.Set("X-RateLimit-Reset", strconv.FormatInt(rc.Rate.ResetAtMS, 10))
			return resp
		}

		if _, err := l.counters.Incr(ctx, key, pol.Window); err != nil {
			rc.Log.Warn("rate limit increment failed, allowing request", zap.Error(err))
		}
		return next(ctx, rc)
	}
}
