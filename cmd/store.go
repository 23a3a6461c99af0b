package main

import (
	"context"

	"github.com/okishio-lab/profitrate-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if cfg.Store.Driver == "sqlite" && dsn == "" {
		dsn = "profitrate.db"
	}
	return store.New(ctx, cfg.Store.Driver, dsn)
}
