package session

import "fmt"

type LoopMode string

const (
	LoopNone  LoopMode = "none"
	LoopTrack LoopMode = "track"
	LoopQueue LoopMode = "queue"
)

func (m LoopMode) Valid() bool {
	switch m {
	case LoopNone, LoopTrack, LoopQueue:
		return true
	}
	return false
}

type LoopModeError struct {
	Mode string
}

func (e *LoopModeError) Error() string {
	return fmt.Sprintf("invalid loop mode %q, expected none, track or queue", e.Mode)
}

var _ error = (*LoopModeError)(nil)
