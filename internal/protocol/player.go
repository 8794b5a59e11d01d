package protocol

import "encoding/json"

type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

func (v VoiceState) Complete() bool {
	return v.Token != "" && v.Endpoint != "" && v.SessionID != ""
}

// TrackUpdate selects the track of a player. A nil Encoded is sent as null
// and stops playback.
type TrackUpdate struct {
	Encoded  *string         `json:"encoded"`
	UserData json.RawMessage `json:"userData,omitempty"`
}

// PlayerPatch is a partial player update. Nil fields are left untouched on
// the node.
type PlayerPatch struct {
	Track    *TrackUpdate    `json:"track,omitempty"`
	Position *int64          `json:"position,omitempty"`
	EndTime  *int64          `json:"endTime,omitempty"`
	Volume   *int            `json:"volume,omitempty"`
	Paused   *bool           `json:"paused,omitempty"`
	Filters  json.RawMessage `json:"filters,omitempty"`
	Voice    *VoiceState     `json:"voice,omitempty"`
}

// Merge returns p with every field set in next overriding its own.
func (p PlayerPatch) Merge(next PlayerPatch) PlayerPatch {
	if next.Track != nil {
		p.Track = next.Track
	}
	if next.Position != nil {
		p.Position = next.Position
	}
	if next.EndTime != nil {
		p.EndTime = next.EndTime
	}
	if next.Volume != nil {
		p.Volume = next.Volume
	}
	if next.Paused != nil {
		p.Paused = next.Paused
	}
	if next.Filters != nil {
		p.Filters = next.Filters
	}
	if next.Voice != nil {
		p.Voice = next.Voice
	}
	return p
}

func (p PlayerPatch) Empty() bool {
	return p.Track == nil && p.Position == nil && p.EndTime == nil &&
		p.Volume == nil && p.Paused == nil && p.Filters == nil && p.Voice == nil
}

// Player is the node's view of a guild player.
type Player struct {
	GuildID string          `json:"guildId"`
	Track   *Track          `json:"track"`
	Volume  int             `json:"volume"`
	Paused  bool            `json:"paused"`
	State   PlayerState     `json:"state"`
	Voice   VoiceState      `json:"voice"`
	Filters json.RawMessage `json:"filters,omitempty"`
}

// SessionUpdate configures resuming for the node session. ResumingKey is
// only understood by legacy nodes.
type SessionUpdate struct {
	Resuming    *bool  `json:"resuming,omitempty"`
	ResumingKey string `json:"resumingKey,omitempty"`
	Timeout     int    `json:"timeout"`
}

func Ptr[T any](v T) *T {
	return &v
}
