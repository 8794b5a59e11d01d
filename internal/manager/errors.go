package manager

import (
	"errors"
	"fmt"

	"github.com/Ryuzii/FerraEura/internal/protocol"
)

var (
	ErrNoStore   = errors.New("no state store configured")
	ErrNoMatches = errors.New("no matching tracks")
	ErrDestroyed = errors.New("manager destroyed")

	ErrUnknownNode = errors.New("unknown node")
)

// ConfigError reports invalid manager options.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid manager config: %s: %s", e.Field, e.Reason)
}

var _ error = (*ConfigError)(nil)

// LoadError is a load result the node answered with an error.
type LoadError struct {
	Identifier string
	Exception  protocol.Exception
}

func (e *LoadError) Error() string {
	if e.Exception.Message == "" {
		return fmt.Sprintf("failed to load %q", e.Identifier)
	}
	return fmt.Sprintf("failed to load %q: %s", e.Identifier, e.Exception.Message)
}

var _ error = (*LoadError)(nil)
