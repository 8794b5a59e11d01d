package handler

import (
	"errors"
	"fmt"

	"github.com/Ryuzii/FerraEura/internal/manager"
	"github.com/Ryuzii/FerraEura/internal/registry"
	"github.com/Ryuzii/FerraEura/internal/session"
	"github.com/Ryuzii/FerraEura/internal/voice"
)

// UserError is an error type that is used to represent
// an error that should be displayed to the user.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

var _ error = (*UserError)(nil)

// userMessage turns an error into something fit to show in a reply.
func userMessage(err error) string {
	var (
		userErr  *UserError
		rangeErr *session.RangeError
		loopErr  *session.LoopModeError
		loadErr  *manager.LoadError
	)
	switch {
	case errors.As(err, &userErr):
		return userErr.Message
	case errors.Is(err, voice.ErrNotInVoice):
		return "Join a voice channel first."
	case errors.Is(err, session.ErrNotConnected):
		return "I couldn't connect to your voice channel."
	case errors.Is(err, session.ErrNothingPlaying):
		return "Nothing is playing."
	case errors.Is(err, registry.ErrNoNodeAvailable):
		return "No audio node is available right now, try again shortly."
	case errors.Is(err, manager.ErrNoMatches):
		return "No tracks found"
	case errors.As(err, &rangeErr):
		return fmt.Sprintf("Pick a %s between %d and %d.", rangeErr.Field, rangeErr.Min, rangeErr.Max)
	case errors.As(err, &loopErr):
		return "Loop mode must be none, track or queue."
	case errors.As(err, &loadErr):
		return "Couldn't load that: " + loadErr.Exception.Message
	default:
		return "Something went wrong."
	}
}
