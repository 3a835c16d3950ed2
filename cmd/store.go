package main

import (
	"context"

	"github.com/sells-group/opportunity-cli/internal/config"
	"github.com/sells-group/opportunity-cli/internal/store"
)

// initStore opens the configured run store and applies its schema.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	return store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, c.Store.PoolConfig())
}
