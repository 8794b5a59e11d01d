// Package config loads settings from the environment and the node list
// from YAML.
package config

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// LoadEnv loads a .env file from the working directory into the process
// environment. Variables already set win. The returned error satisfies
// os.IsNotExist when there is no file.
func LoadEnv(files ...string) error {
	return godotenv.Load(files...)
}

type validator interface {
	validate() error
}

// fromEnv fills a T from the environment and runs its checks.
func fromEnv[T any, PT interface {
	*T
	validator
}]() (*T, error) {
	var cfg T
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if err := PT(&cfg).validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
