package main

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	config "github.com/omnicore/gateway/internal/config/gateway"
	"github.com/omnicore/gateway/internal/gateway/autho"
	"github.com/omnicore/gateway/internal/gateway/authsvc"
	"github.com/omnicore/gateway/internal/gateway/dispatch"
	"github.com/omnicore/gateway/internal/gateway/healthsvc"
	"github.com/omnicore/gateway/internal/gateway/pipeline"
	gwreqlog "github.com/omnicore/gateway/internal/gateway/reqlog"
	"github.com/omnicore/gateway/internal/repository/kafka"
	pg "github.com/omnicore/gateway/internal/repository/postgres"
	rd "github.com/omnicore/gateway/internal/repository/redis"
	"github.com/omnicore/gateway/internal/token"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, db *pg.DB, kv *rd.KV) (*http.Server, *gwreqlog.Recorder, error) {
	users := pg.NewUserRepo(db)
	authLogs := pg.NewAuthLogRepo(db)

	sessions := rd.NewSessionStore(kv)
	revocations := rd.NewRevocationList(kv)
	anon := rd.NewAnonymousStore(kv)
	counters := rd.NewCounterStore(kv)
	metrics := rd.NewMetricsStore(kv)

	codec := token.NewCodec([]byte(cfg.Auth.TokenSecret))

	var pub *kafka.Producer
	if cfg.Kafka.Enable {
		pub = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(logger)
	}
	recorder := newRecorder(cfg, metrics, pub, logger)

	resolver := autho.NewResolver(codec, users, sessions, revocations, anon, logger)
	limiter := pipeline.NewRateLimiter(counters, cfg.App.Production())
	cors := pipeline.NewCORSResolver(cfg.App.Env, cfg.CORS.Origins)

	auth := authsvc.New(codec, users, authLogs, sessions, revocations, anon, logger).
		WithTTLs(cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, cfg.Auth.SessionTTL)
	health := healthsvc.New(db, kv, cfg.ObjectStore.Endpoint, cfg.App.Version, logger)

	d := dispatch.New(cfg.Bindings, logger)
	d.Register("auth", auth.Handler())
	d.Register("health", health.Handler())

	p := pipeline.New(logger, cors, limiter, resolver, d.Handler(), recorder)
	handler := otelhttp.NewHandler(p, "gateway")

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return srv, recorder, nil
}

func newRecorder(cfg *config.Config, store *rd.MetricsStore, pub *kafka.Producer, logger *zap.Logger) *gwreqlog.Recorder {
	if pub != nil {
		return gwreqlog.NewRecorder(store, pub, cfg.Reqlog.Buffer, cfg.Reqlog.Atomic, logger)
	}
	return gwreqlog.NewRecorder(store, nil, cfg.Reqlog.Buffer, cfg.Reqlog.Atomic, logger)
}
