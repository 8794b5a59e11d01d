package session

import (
	"context"
	"encoding/json"
	"maps"
	"time"

	"github.com/Ryuzii/FerraEura/internal/protocol"
)

// State is the serializable form of a session, used to migrate it between
// nodes and to persist it across restarts.
type State struct {
	GuildID       string            `json:"guildId"`
	TextChannelID string            `json:"textChannelId,omitempty"`
	Node          string            `json:"node,omitempty"`
	Voice         VoiceInfo         `json:"voice"`
	Connected     bool              `json:"connected"`
	Volume        int               `json:"volume"`
	Loop          LoopMode          `json:"loop"`
	Paused        bool              `json:"paused"`
	Playing       bool              `json:"playing"`
	Position      int64             `json:"position"`
	Timestamp     time.Time         `json:"timestamp"`
	Current       *protocol.Track   `json:"current,omitempty"`
	Queue         []protocol.Track  `json:"queue"`
	Previous      []protocol.Track  `json:"previous,omitempty"`
	Filters       json.RawMessage   `json:"filters,omitempty"`
	Autoplay      bool              `json:"autoplay"`
	AutoResume    *Snapshot         `json:"autoResume,omitempty"`
	Data          map[string]string `json:"data,omitempty"`
}

// Worth reports whether the state carries anything to resume.
func (st State) Worth() bool {
	return st.Current != nil || len(st.Queue) > 0
}

func (s *Session) Export() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exportLocked()
}

func (s *Session) exportLocked() State {
	st := State{
		GuildID:       s.guildID,
		TextChannelID: s.opts.TextChannelID,
		Node:          s.pinned,
		Voice:         s.voice,
		Connected:     s.connected,
		Volume:        s.volume,
		Loop:          s.loop,
		Paused:        s.paused,
		Playing:       s.status == Playing,
		Position:      s.position,
		Timestamp:     s.positionAt,
		Queue:         s.queue.Tracks(),
		Previous:      append([]protocol.Track(nil), s.history...),
		Filters:       s.filters,
		Autoplay:      s.autoplay,
		Data:          maps.Clone(s.data),
	}
	if s.current != nil {
		track := *s.current
		st.Current = &track
	}
	if s.snapshot != nil {
		snapshot := *s.snapshot
		st.AutoResume = &snapshot
	}
	return st
}

// Detach unbinds the session and returns its state. Pending mutations are
// already reflected in the state and are dropped.
func (s *Session) Detach() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.exportLocked()
	s.backend = nil
	s.stopFlushTimerLocked()
	s.stopRestoreTimerLocked()
	s.pending = protocol.PlayerPatch{}
	s.hasPending = false
	return st
}

// Rebind binds the session to backend, applies st, and resumes playback
// of the current track at its last known position.
func (s *Session) Rebind(ctx context.Context, backend Backend, st State) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.applyLocked(st)
	s.backend = backend
	s.pinned = backend.Name()

	patch := protocol.PlayerPatch{
		Volume: protocol.Ptr(s.volume),
		Paused: protocol.Ptr(s.paused),
	}
	if voice := s.voice.state(); voice.Complete() {
		patch.Voice = &voice
	}
	if s.filters != nil {
		patch.Filters = s.filters
	}
	if s.current != nil {
		patch.Track = &protocol.TrackUpdate{Encoded: protocol.Ptr(s.current.Encoded), UserData: s.current.UserData}
		patch.Position = protocol.Ptr(s.position)
	}
	s.pending = s.pending.Merge(patch)
	s.hasPending = true
	s.mu.Unlock()

	return s.Flush(ctx)
}

func (s *Session) applyLocked(st State) {
	s.voice = st.Voice
	s.connected = st.Connected
	s.volume = st.Volume
	if s.volume == 0 {
		s.volume = s.opts.Volume
	}
	if st.Loop.Valid() {
		s.loop = st.Loop
	}
	s.paused = st.Paused
	s.position = st.Position
	s.positionAt = st.Timestamp
	s.current = nil
	if st.Current != nil {
		track := *st.Current
		s.current = &track
	}
	s.history = append([]protocol.Track(nil), st.Previous...)
	s.filters = st.Filters
	s.autoplay = st.Autoplay
	if st.AutoResume != nil {
		snapshot := *st.AutoResume
		s.snapshot = &snapshot
	}
	if st.Data != nil {
		s.data = maps.Clone(st.Data)
	}
	s.pinned = st.Node

	switch {
	case s.current != nil && s.paused:
		s.status = Paused
	case s.current != nil && st.Playing:
		s.status = Playing
	case s.connected:
		s.status = Connected
	default:
		s.status = Idle
	}
}

// NewFromState rebuilds an unbound session from persisted state. The queue
// in opts, or a fresh one, is refilled from st.
func NewFromState(st State, opts Options) *Session {
	opts.GuildID = st.GuildID
	opts.TextChannelID = st.TextChannelID
	opts.VoiceChannelID = st.Voice.ChannelID
	s := New(opts)
	s.queue.Clear()
	s.queue.Push(st.Queue...)

	s.mu.Lock()
	s.applyLocked(st)
	s.mu.Unlock()
	return s
}
