package main

import (
	"context"

	config "github.com/omnicore/gateway/internal/config/gateway"
	pg "github.com/omnicore/gateway/internal/repository/postgres"
)

func initDB(ctx context.Context, cfg *config.Config) (*pg.DB, error) {
	return pg.New(ctx, cfg.DB)
}
