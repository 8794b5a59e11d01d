package repository

import (
	"context"
	"fmt"

	"github.com/Ryuzii/FerraEura/internal/config"
	"github.com/Ryuzii/FerraEura/internal/datalayer"
)

// Open builds the configured state store, nil for StoreNone. The returned
// cleanup releases its connections.
func Open(ctx context.Context, cfg *config.PersistenceConfig) (StateStore, func(), error) {
	nop := func() {}
	switch cfg.Store {
	case config.StoreFile:
		return NewFileStateStore(cfg.File), nop, nil
	case config.StoreRedis:
		redisCfg, err := config.NewRedisConfigFromEnv()
		if err != nil {
			return nil, nop, fmt.Errorf("failed to load redis config: %w", err)
		}
		client, err := datalayer.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, nop, err
		}
		return NewRedisStateStore(client, redisCfg.StateKey), func() { _ = client.Close() }, nil
	case config.StorePostgres:
		pgCfg, err := config.NewPostgresConfigFromEnv()
		if err != nil {
			return nil, nop, fmt.Errorf("failed to load postgres config: %w", err)
		}
		pool, err := datalayer.NewPostgresPool(ctx, pgCfg)
		if err != nil {
			return nil, nop, err
		}
		if err := datalayer.MigratePostgres(pool); err != nil {
			pool.Close()
			return nil, nop, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		return NewPostgresStateStore(pool), pool.Close, nil
	case config.StoreMinio:
		minioCfg, err := config.NewMinioConfigFromEnv()
		if err != nil {
			return nil, nop, fmt.Errorf("failed to load minio config: %w", err)
		}
		storage, err := datalayer.NewMinioStorage(minioCfg)
		if err != nil {
			return nil, nop, err
		}
		if err := storage.EnsureBucket(ctx); err != nil {
			return nil, nop, fmt.Errorf("failed to ensure minio bucket: %w", err)
		}
		return NewBlobStateStore(storage, minioCfg.StateKey), nop, nil
	default:
		return nil, nop, nil
	}
}
