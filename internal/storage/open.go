package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"kaspa-price-alerts/internal/config"
)

// Open builds the Store selected by storage.driver.
func Open(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverFile, "":
		return NewFileStore(FileOptions{
			SamplesPath:  cfg.SamplesPath,
			ATHPath:      cfg.ATHPath,
			ChannelsPath: cfg.ChannelsPath,
			Logger:       logger.With().Str("component", "file_store").Logger(),
		}), nil
	case config.DriverBunt:
		return NewBuntStore(cfg.BuntDBPath)
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store := NewPGStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
