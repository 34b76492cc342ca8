package obs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Probe reports reachability of one dependency.
type Probe func(context.Context) error

// BootstrapMetricsServer serves prometheus metrics plus a healthz that runs
// every named probe; any failing probe makes healthz a 503 naming the
// dependency.
func BootstrapMetricsServer(addr string, probes map[string]Probe, l *zap.Logger) *http.Server {
	ms := createMetricsServer(addr, probes)

	go func() {
		l.Info("metrics listening", zap.String("addr", addr))
		if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics server error", zap.Error(err))
		}
	}()

	return ms
}

func createMetricsServer(addr string, probes map[string]Probe) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		for name, probe := range probes {
			if err := probe(ctx); err != nil {
				http.Error(w, fmt.Sprintf("%s unhealthy", name), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}
