// Package healthsvc serves the liveness endpoint. It is deliberately outside
// the auth and rate-limit paths so probes keep working while the stores burn.
package healthsvc

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/omnicore/gateway/internal/gateway/pipeline"
)

const probeTimeout = 3 * time.Second

// Pinger is any dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	db        Pinger
	kv        Pinger
	storeURL  string
	client    *http.Client
	version   string
	startedAt time.Time
	log       *zap.Logger
}

// New builds the probe. storeURL is optional; empty disables the object-store
// check.
func New(db, kv Pinger, storeURL, version string, log *zap.Logger) *Service {
	return &Service{
		db:        db,
		kv:        kv,
		storeURL:  storeURL,
		client:    &http.Client{Timeout: probeTimeout},
		version:   version,
		startedAt: time.Now().UTC(),
		log:       log,
	}
}

func (s *Service) Handler() pipeline.Handler {
	return func(ctx context.Context, rc *pipeline.Request) *pipeline.Response {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()

		deps := map[string]string{
			"database": s.probe(ctx, s.db),
			"cache":    s.probe(ctx, s.kv),
		}
		if s.storeURL != "" {
			deps["object_store"] = s.probeStore(ctx)
		}

		status := "healthy"
		for _, st := range deps {
			if st != "ok" {
				status = "degraded"
				break
			}
		}

		// Only a full store outage makes the probe fail: one live store still
		// means the gateway can serve something.
		code := http.StatusOK
		if deps["database"] != "ok" && deps["cache"] != "ok" {
			code = http.StatusServiceUnavailable
			status = "unhealthy"
		}

		return pipeline.JSON(code, map[string]any{
			"status":       status,
			"version":      s.version,
			"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
			"dependencies": deps,
		})
	}
}

func (s *Service) probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		s.log.Warn("dependency probe failed", zap.Error(err))
		return "unavailable"
	}
	return "ok"
}

func (s *Service) probeStore(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.storeURL, nil)
	if err != nil {
		return "unavailable"
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("object store probe failed", zap.Error(err))
		return "unavailable"
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return "unavailable"
	}
	return "ok"
}
