package config

import (
	"fmt"

	"github.com/Ryuzii/FerraEura/internal/schedule"
)

type StoreKind string

const (
	StoreNone     StoreKind = "none"
	StoreFile     StoreKind = "file"
	StoreRedis    StoreKind = "redis"
	StorePostgres StoreKind = "postgres"
	StoreMinio    StoreKind = "minio"
)

// PersistenceConfig picks where session state is saved across restarts.
// The backend specific settings come from their own configs.
type PersistenceConfig struct {
	Store StoreKind `env:"STATE_STORE, default=none"`
	File  string    `env:"STATE_FILE, default=sessions.json"`
	// SaveCron is the cadence of periodic saves, in cron syntax.
	SaveCron string `env:"STATE_SAVE_CRON, default=*/5 * * * *"`
}

func NewPersistenceConfigFromEnv() (*PersistenceConfig, error) {
	return fromEnv[PersistenceConfig]()
}

func (c *PersistenceConfig) validate() error {
	switch c.Store {
	case StoreNone, StoreFile, StoreRedis, StorePostgres, StoreMinio:
	default:
		return fmt.Errorf("unknown STATE_STORE %q", c.Store)
	}
	if err := schedule.ValidateCron(c.SaveCron); err != nil {
		return fmt.Errorf("invalid STATE_SAVE_CRON: %w", err)
	}
	return nil
}
