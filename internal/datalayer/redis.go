package datalayer

import (
	"context"
	"fmt"

	"github.com/Ryuzii/FerraEura/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to redis and checks the connection with a ping.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
