package config

import (
	"fmt"
	"time"

	"github.com/Ryuzii/FerraEura/internal/registry"
)

// ScoreWeights mirrors registry.Weights so operators can retune routing.
type ScoreWeights struct {
	Penalty float64 `env:"PENALTY, default=10"`
	CPU     float64 `env:"CPU, default=100"`
	Memory  float64 `env:"MEMORY, default=0.5"`
	Ping    float64 `env:"PING, default=0.1"`
	Players float64 `env:"PLAYERS, default=2"`
	Playing float64 `env:"PLAYING, default=5"`
}

func (w ScoreWeights) Registry() registry.Weights {
	return registry.Weights{
		Penalty: w.Penalty,
		CPU:     w.CPU,
		Memory:  w.Memory,
		Ping:    w.Ping,
		Players: w.Players,
		Playing: w.Playing,
	}
}

type LavalinkConfig struct {
	ClientName string `env:"LAVALINK_CLIENT_NAME, default=FerraEura"`
	NodesFile  string `env:"LAVALINK_NODES_FILE, default=nodes.yaml"`

	DynamicSwitching      bool   `env:"LAVALINK_DYNAMIC_SWITCHING, default=true"`
	AutoResume            bool   `env:"LAVALINK_AUTO_RESUME, default=true"`
	DefaultSearchPlatform string `env:"LAVALINK_SEARCH_PLATFORM, default=ytmsearch"`

	HealthTTL        time.Duration `env:"LAVALINK_HEALTH_TTL, default=30s"`
	ResolveCacheSize int           `env:"LAVALINK_RESOLVE_CACHE_SIZE, default=200"`
	ResolveCacheTTL  time.Duration `env:"LAVALINK_RESOLVE_CACHE_TTL, default=5m"`
	BatchDelay       time.Duration `env:"LAVALINK_BATCH_DELAY, default=25ms"`

	Weights ScoreWeights `env:", prefix=SCORE_WEIGHT_"`
}

func NewLavalinkConfigFromEnv() (*LavalinkConfig, error) {
	return fromEnv[LavalinkConfig]()
}

func (c *LavalinkConfig) validate() error {
	if c.ResolveCacheSize < 0 {
		return fmt.Errorf("LAVALINK_RESOLVE_CACHE_SIZE must not be negative")
	}
	return nil
}
