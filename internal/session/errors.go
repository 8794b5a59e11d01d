package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotConnected   = errors.New("session is not connected to a voice channel")
	ErrDestroyed      = errors.New("session destroyed")
	ErrUnbound        = errors.New("session is not bound to a node")
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrNoVoiceGateway = errors.New("no voice gateway configured")
)

// RangeError reports an out of range setting.
type RangeError struct {
	Field    string
	Value    int
	Min, Max int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

var _ error = (*RangeError)(nil)

// retryablePatterns match transient transport failures by message, the
// way they surface from the HTTP stack.
var retryablePatterns = []string{
	"timeout",
	"deadline exceeded",
	"network",
	"connection reset",
	"econnreset",
	"no such host",
	"enotfound",
	"etimedout",
	"socket hang up",
}

// IsRetryable reports whether err looks like a transient transport failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
