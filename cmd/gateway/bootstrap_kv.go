package main

import (
	"context"

	config "github.com/omnicore/gateway/internal/config/gateway"
	rd "github.com/omnicore/gateway/internal/repository/redis"
)

func initKV(ctx context.Context, cfg *config.Config) (*rd.KV, error) {
	return rd.New(ctx, cfg.Redis)
}
