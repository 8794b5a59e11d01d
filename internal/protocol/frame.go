package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Op string

const (
	OpReady        Op = "ready"
	OpStats        Op = "stats"
	OpEvent        Op = "event"
	OpPlayerUpdate Op = "playerUpdate"
)

type EventType string

const (
	TrackStartEvent      EventType = "TrackStartEvent"
	TrackEndEvent        EventType = "TrackEndEvent"
	TrackExceptionEvent  EventType = "TrackExceptionEvent"
	TrackStuckEvent      EventType = "TrackStuckEvent"
	WebSocketClosedEvent EventType = "WebSocketClosedEvent"
)

// ErrMalformedFrame is returned by DecodeFrame for payloads that are not a
// JSON object with an op.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one inbound socket message. The raw payload is kept so the frame
// can be forwarded and decoded by whoever owns the guild.
type Frame struct {
	Op      Op        `json:"op"`
	GuildID string    `json:"guildId,omitempty"`
	Type    EventType `json:"type,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func DecodeFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Op == "" {
		return Frame{}, fmt.Errorf("%w: missing op", ErrMalformedFrame)
	}
	frame.Raw = append(json.RawMessage(nil), data...)
	return frame, nil
}

// Decode unmarshals the raw payload into v.
func (f Frame) Decode(v any) error {
	if err := json.Unmarshal(f.Raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

type Ready struct {
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`
}

type PlayerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int   `json:"ping"`
}

type PlayerUpdate struct {
	GuildID string      `json:"guildId"`
	State   PlayerState `json:"state"`
}

type TrackEndReason string

const (
	ReasonFinished   TrackEndReason = "finished"
	ReasonLoadFailed TrackEndReason = "loadFailed"
	ReasonStopped    TrackEndReason = "stopped"
	ReasonReplaced   TrackEndReason = "replaced"
	ReasonCleanup    TrackEndReason = "cleanup"
)

// Event is the union of every event payload. Fields not carried by a
// given Type are left zero.
type Event struct {
	Type      EventType      `json:"type"`
	GuildID   string         `json:"guildId"`
	Track     *Track         `json:"track,omitempty"`
	Reason    TrackEndReason `json:"reason,omitempty"`
	Exception *Exception     `json:"exception,omitempty"`
	Threshold int64          `json:"thresholdMs,omitempty"`

	// WebSocketClosedEvent
	Code     int    `json:"code,omitempty"`
	Message  string `json:"-"`
	ByRemote bool   `json:"byRemote,omitempty"`
}

func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	aux := struct {
		*plain
		Reason json.RawMessage `json:"reason,omitempty"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Reason) == 0 {
		return nil
	}
	// TrackEndEvent carries the reason enum, WebSocketClosedEvent a free-form
	// close reason under the same key.
	var reason string
	if err := json.Unmarshal(aux.Reason, &reason); err != nil {
		return err
	}
	if e.Type == WebSocketClosedEvent {
		e.Message = reason
	} else {
		e.Reason = TrackEndReason(reason)
	}
	return nil
}
