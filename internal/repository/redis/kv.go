// Package redis implements the gateway's durable key-value stores: session
// records, token revocation markers, anonymous sessions, rate-limit counters,
// request logs and daily metric aggregates.
//
// Key namespace:
//
//	session:<token>          session record, TTL 24h
//	blacklist:<token>        revocation marker, TTL 24h
//	<16-char-hash>           anonymous session, TTL 24h sliding
//	rate_limit:<path>:<ip>   fixed-window counter, TTL = window
//	log:<requestId>          request log entry, TTL 24h
//	metrics:<YYYY-MM-DD>     daily aggregate, TTL 7d
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KV struct {
	Client *redis.Client
}

func New(ctx context.Context, cfg Config) (*KV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(hctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &KV{Client: client}, nil
}

// NewFromClient wraps an existing client; used by tests with miniredis.
func NewFromClient(client *redis.Client) *KV { return &KV{Client: client} }

func (kv *KV) Close() error { return kv.Client.Close() }

func (kv *KV) Ping(ctx context.Context) error { return kv.Client.Ping(ctx).Err() }
