package database

import (
	"context"
	"fmt"

	"eeg-backend/pkg/config"
)

// Open connects the store selected by cfg.StoreBackend
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "clickhouse":
		return NewClickHouseDB(cfg.ClickHouseAddr, cfg.ClickHouseDB, cfg.ClickHouseUser, cfg.ClickHousePass)
	case "postgres":
		return NewPostgresDB(ctx, cfg.PostgresDSN)
	case "memory":
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
