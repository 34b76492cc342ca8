package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnicore/gateway/internal/domain/reqlog"
	"github.com/omnicore/gateway/internal/gateway/gwerr"
	"github.com/omnicore/gateway/internal/obs"
)

// Recorder is the fire-and-forget seam for request logging; Record must
// never block.
type Recorder interface {
	Record(e reqlog.Entry)
}

type Pipeline struct {
	log      *zap.Logger
	cors     *CORSResolver
	chain    Handler
	recorder Recorder
}

// New wires the chain: preflight, rate limiting, auth, dispatch. Order
// matters and mirrors the request flow in the package doc.
func New(log *zap.Logger, cors *CORSResolver, limiter *RateLimiter, resolver Resolver, dispatch Handler, rec Recorder) *Pipeline {
	return &Pipeline{
		log:      log,
		cors:     cors,
		chain:    Chain(dispatch, Preflight(), limiter.Middleware(), Auth(resolver)),
		recorder: rec,
	}
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}

	rc := &Request{
		HTTP:     r,
		ID:       reqID,
		Start:    start,
		ClientIP: ClientIP(r),
		Log:      obs.WithTrace(r.Context(), p.log).With(zap.String("request_id", reqID)),
	}

	resp := p.run(r.Context(), rc)
	p.compose(rc, resp)
	p.write(w, rc, resp)
	p.record(rc, resp, time.Since(start))
}

// run executes the chain under the single top-level recover. Everything a
// handler or store client throws unexpectedly lands here exactly once.
func (p *Pipeline) run(ctx context.Context, rc *Request) (resp *Response) {
	defer func() {
		if v := recover(); v != nil {
			rc.Log.Error("request panicked",
				zap.Any("panic", v),
				zap.ByteString("stack", debug.Stack()),
			)
			ge := gwerr.FromPanic(v)
			resp = JSON(ge.Status, ge.Envelope(rc.ID))
		}
	}()

	resp = p.chain(ctx, rc)
	if resp == nil {
		resp = JSON(http.StatusInternalServerError, gwerr.Internal(nil).Envelope(rc.ID))
	}
	return resp
}

// compose overlays the uniform headers: CORS for the resolved origin,
// request id and processing time. Downstream bodies pass through unchanged.
func (p *Pipeline) compose(rc *Request, resp *Response) {
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	p.cors.Apply(resp.Header, rc.HTTP.Header.Get("Origin"))
	resp.Header.Set("X-Request-ID", rc.ID)
	resp.Header.Set("X-Processing-Time", fmt.Sprintf("%dms", time.Since(rc.Start).Milliseconds()))
}

func (p *Pipeline) write(w http.ResponseWriter, rc *Request, resp *Response) {
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	if resp.Raw != nil {
		w.WriteHeader(resp.Status)
		_, _ = w.Write(resp.Raw)
		return
	}
	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	if err := json.NewEncoder(w).Encode(resp.Body); err != nil {
		rc.Log.Warn("response encode failed", zap.Error(err))
	}
}

// record hands the outcome to the aggregator after the response is written;
// the client never waits on it.
func (p *Pipeline) record(rc *Request, resp *Response, took time.Duration) {
	if p.recorder == nil {
		return
	}
	e := reqlog.Entry{
		RequestID:  rc.ID,
		Method:     rc.HTTP.Method,
		Path:       rc.HTTP.URL.Path,
		Status:     resp.Status,
		DurationMS: float64(took.Microseconds()) / 1000.0,
		IP:         rc.ClientIP,
		UserAgent:  rc.HTTP.UserAgent(),
		Timestamp:  rc.Start.UTC(),
	}
	if rc.Identity != nil {
		e.UserID = rc.Identity.UserID
	}
	p.recorder.Record(e)
}
