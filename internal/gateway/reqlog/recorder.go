// Package reqlog records request outcomes off the response path. A bounded
// channel feeds a single worker; when the channel is full the entry is
// dropped and counted, never blocking a client.
package reqlog

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/omnicore/gateway/internal/domain/reqlog"
)

const (
	entryTTL     = 24 * time.Hour
	aggregateTTL = 7 * 24 * time.Hour
	writeTimeout = 5 * time.Second
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Requests processed, by method and status class.",
	}, []string{"method", "class"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_ms",
		Help:    "Request duration in milliseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	recordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_reqlog_dropped_total",
		Help: "Request log entries dropped because the buffer was full.",
	})
)

type Recorder struct {
	store reqlog.Store
	pub   reqlog.Publisher
	log   *zap.Logger

	// atomicCounters switches the flat counter fields to HINCRBY updates;
	// mean latency always goes through read-modify-write.
	atomicCounters bool

	ch      chan reqlog.Entry
	done    chan struct{}
	dropped atomic.Uint64
}

// NewRecorder starts the worker. pub may be nil.
func NewRecorder(store reqlog.Store, pub reqlog.Publisher, buffer int, atomicCounters bool, log *zap.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	r := &Recorder{
		store:          store,
		pub:            pub,
		log:            log,
		atomicCounters: atomicCounters,
		ch:             make(chan reqlog.Entry, buffer),
		done:           make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues the entry without ever blocking.
func (r *Recorder) Record(e reqlog.Entry) {
	select {
	case r.ch <- e:
	default:
		r.dropped.Add(1)
		recordsDropped.Inc()
	}
}

// Dropped reports how many entries were discarded since start.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close drains the buffer and stops the worker.
func (r *Recorder) Close() {
	close(r.ch)
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		r.process(e)
	}
}

func (r *Recorder) process(e reqlog.Entry) {
	requestsTotal.WithLabelValues(e.Method, statusClass(e.Status)).Inc()
	requestDuration.Observe(e.DurationMS)

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.PutEntry(ctx, e, entryTTL); err != nil {
		r.log.Warn("log entry write failed", zap.String("request_id", e.RequestID), zap.Error(err))
	}

	date := e.Timestamp.UTC().Format("2006-01-02")
	bucket := UABucket(e.UserAgent)

	if r.atomicCounters {
		if err := r.store.IncrCounters(ctx, date, e, bucket, aggregateTTL); err != nil {
			r.log.Warn("counter update failed", zap.Error(err))
		}
	}
	r.updateAggregate(ctx, date, e, bucket)

	// The event stream is independent of the aggregate bookkeeping; a failed
	// aggregate read never holds back the publish.
	r.publish(ctx, e)
}

// updateAggregate folds the entry into the daily aggregate read-modify-write.
// In atomic-counter mode the flat counters inside it are shadowed by the
// counter hash and ignored by readers; only the means matter.
func (r *Recorder) updateAggregate(ctx context.Context, date string, e reqlog.Entry, bucket string) {
	agg, err := r.store.GetAggregate(ctx, date)
	if err != nil {
		r.log.Warn("aggregate read failed", zap.Error(err))
		return
	}
	agg.Observe(e, bucket)
	if err := r.store.PutAggregate(ctx, agg, aggregateTTL); err != nil {
		r.log.Warn("aggregate write failed", zap.Error(err))
	}
}

func (r *Recorder) publish(ctx context.Context, e reqlog.Entry) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(ctx, e.RequestID, e); err != nil {
		r.log.Warn("event publish failed", zap.Error(err))
	}
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// UABucket coarsely classifies a user agent for the daily histogram.
func UABucket(ua string) string {
	s := strings.ToLower(ua)
	switch {
	case s == "":
		return "other"
	case strings.Contains(s, "bot") || strings.Contains(s, "crawler") || strings.Contains(s, "spider"):
		return "bot"
	case strings.Contains(s, "curl") || strings.Contains(s, "wget") || strings.Contains(s, "httpie") || strings.Contains(s, "python-requests") || strings.Contains(s, "go-http-client"):
		return "cli"
	case strings.Contains(s, "mobile") || strings.Contains(s, "android") || strings.Contains(s, "iphone") || strings.Contains(s, "ipad"):
		return "mobile"
	case strings.Contains(s, "mozilla") || strings.Contains(s, "chrome") || strings.Contains(s, "safari") || strings.Contains(s, "firefox") || strings.Contains(s, "edge"):
		return "browser"
	default:
		return "other"
	}
}
