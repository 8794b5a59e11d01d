package config

import "fmt"

// PostgresConfig points the postgres state store at its database.
type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST, required"`
	Port     string `env:"POSTGRES_PORT, default=5432"`
	Username string `env:"POSTGRES_USERNAME, required"`
	Password string `env:"POSTGRES_PASSWORD, required"`
	Database string `env:"POSTGRES_DATABASE, required"`
	SSLMode  string `env:"POSTGRES_SSLMODE, default=disable"`
	MaxConns int    `env:"POSTGRES_MAX_CONNS, default=4"`
}

func NewPostgresConfigFromEnv() (*PostgresConfig, error) {
	return fromEnv[PostgresConfig]()
}

func (c *PostgresConfig) validate() error {
	if c.MaxConns < 1 {
		return fmt.Errorf("POSTGRES_MAX_CONNS must be at least 1")
	}
	return nil
}

// DSN is a pgxpool connection string, pool size included.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.MaxConns,
	)
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, required"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
	// StateKey is the hash holding the saved sessions.
	StateKey string `env:"REDIS_STATE_KEY, default=ferraeura:sessions"`
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	return fromEnv[RedisConfig]()
}

func (c *RedisConfig) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.StateKey == "" {
		return fmt.Errorf("REDIS_STATE_KEY must not be empty")
	}
	return nil
}

// MinioConfig holds the object store for the blob state store.
type MinioConfig struct {
	Endpoint string `env:"MINIO_ENDPOINT, required"`
	Username string `env:"MINIO_USERNAME, required"`
	Password string `env:"MINIO_PASSWORD, required"`
	Bucket   string `env:"MINIO_BUCKET, default=ferraeura"`
	Secure   bool   `env:"MINIO_SECURE, default=false"`
	// StateKey is the object holding the saved sessions.
	StateKey string `env:"MINIO_STATE_KEY, default=sessions/state.json"`
}

func NewMinioConfigFromEnv() (*MinioConfig, error) {
	return fromEnv[MinioConfig]()
}

func (c *MinioConfig) validate() error {
	if c.StateKey == "" {
		return fmt.Errorf("MINIO_STATE_KEY must not be empty")
	}
	return nil
}
