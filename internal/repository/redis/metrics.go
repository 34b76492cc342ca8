package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omnicore/gateway/internal/domain/reqlog"
)

var _ reqlog.Store = (*MetricsStore)(nil)

// MetricsStore persists log:<requestId> entries and metrics:<date>
// aggregates. The aggregate update is get/modify/set without CAS; accepted
// loss under concurrency is documented on the domain type.
type MetricsStore struct {
	kv *KV
}

func NewMetricsStore(kv *KV) *MetricsStore { return &MetricsStore{kv: kv} }

func logKey(requestID string) string { return "log:" + requestID }

func metricsKey(date string) string { return "metrics:" + date }

func (s *MetricsStore) PutEntry(ctx context.Context, e reqlog.Entry, ttl time.Duration) error {
	blob, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	if err := s.kv.Client.Set(ctx, logKey(e.RequestID), blob, ttl).Err(); err != nil {
		return fmt.Errorf("save log entry: %w", err)
	}
	return nil
}

func (s *MetricsStore) GetAggregate(ctx context.Context, date string) (*reqlog.Aggregate, error) {
	blob, err := s.kv.Client.Get(ctx, metricsKey(date)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return reqlog.NewAggregate(date), nil
		}
		return nil, fmt.Errorf("get aggregate: %w", err)
	}
	var agg reqlog.Aggregate
	if err := json.Unmarshal(blob, &agg); err != nil {
		// A corrupt aggregate is not worth failing a request over.
		return reqlog.NewAggregate(date), nil
	}
	return &agg, nil
}

func (s *MetricsStore) PutAggregate(ctx context.Context, a *reqlog.Aggregate, ttl time.Duration) error {
	blob, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal aggregate: %w", err)
	}
	if err := s.kv.Client.Set(ctx, metricsKey(a.Date), blob, ttl).Err(); err != nil {
		return fmt.Errorf("save aggregate: %w", err)
	}
	return nil
}

// IncrCounters uses HINCRBY on metrics:<date>:counters so concurrent workers
// never lose a count. Means remain in the JSON aggregate.
func (s *MetricsStore) IncrCounters(ctx context.Context, date string, e reqlog.Entry, uaBucket string, ttl time.Duration) error {
	key := metricsKey(date) + ":counters"
	pipe := s.kv.Client.TxPipeline()
	pipe.HIncrBy(ctx, key, "total", 1)
	if e.Success() {
		pipe.HIncrBy(ctx, key, "success", 1)
	} else {
		pipe.HIncrBy(ctx, key, "failure", 1)
	}
	pipe.HIncrBy(ctx, key, "status:"+strconv.Itoa(e.Status), 1)
	pipe.HIncrBy(ctx, key, "ua:"+uaBucket, 1)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incr counters: %w", err)
	}
	return nil
}
