// Package session holds the per-guild playback state.
//
// A session mirrors the player a node runs for its guild. Local mutations
// apply immediately to the session and are shipped to the node as partial
// player patches: mutations arriving within the batch window are merged,
// last write winning per field, and only one patch is ever in flight. The
// state acknowledged by the last successful patch is kept as the autoresume
// snapshot.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Ryuzii/FerraEura/internal/events"
	"github.com/Ryuzii/FerraEura/internal/protocol"
)

// Backend is the node a session is bound to.
type Backend interface {
	Name() string
	UpdatePlayer(ctx context.Context, guildID string, patch protocol.PlayerPatch) (*protocol.Player, error)
	DestroyPlayer(ctx context.Context, guildID string) error
}

// Resolver turns a track without an encoded handle into a playable one.
type Resolver interface {
	Resolve(ctx context.Context, track protocol.Track) (protocol.Track, error)
}

// Recommender picks a related track for autoplay. A nil track with a nil
// error means there is nothing to recommend.
type Recommender interface {
	Recommend(ctx context.Context, seed protocol.Track) (*protocol.Track, error)
}

// VoiceGateway asks the chat gateway to move the bot's voice state. An
// empty channel leaves voice.
type VoiceGateway interface {
	JoinChannel(guildID, channelID string, mute, deaf bool) error
}

// StatusSync mirrors playback into an external display such as a voice
// channel status.
type StatusSync interface {
	TrackStarted(guildID, channelID string, track protocol.Track)
	Cleared(guildID, channelID string)
}

type Status int

const (
	Idle Status = iota
	Connecting
	Connected
	Playing
	Paused
	Disconnected
	Destroyed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Disconnected:
		return "disconnected"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

type Options struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	Mute           bool
	Deaf           bool

	// Volume defaults to 100.
	Volume     int
	Loop       LoopMode
	Autoplay   bool
	AutoResume bool

	// BatchDelay is the quiescence window before pending mutations are
	// flushed. Zero means the default of 25ms, a negative value flushes
	// every mutation at once.
	BatchDelay time.Duration
	// ResumeDelay is how long a session waits after its voice socket
	// closed before restoring the snapshot.
	ResumeDelay time.Duration
	// RetryDelay is the base of the linear play retry backoff.
	RetryDelay     time.Duration
	MaxAttempts    int
	RequestTimeout time.Duration
	HistorySize    int

	Queue       Queue
	Resolver    Resolver
	Recommender Recommender
	Voice       VoiceGateway
	Status      StatusSync
	Events      events.Publisher
}

func (o Options) withDefaults() Options {
	if o.Volume == 0 {
		o.Volume = 100
	}
	if o.Loop == "" {
		o.Loop = LoopNone
	}
	if o.BatchDelay == 0 {
		o.BatchDelay = 25 * time.Millisecond
	}
	if o.ResumeDelay == 0 {
		o.ResumeDelay = time.Second
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = time.Second
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.HistorySize == 0 {
		o.HistorySize = 25
	}
	if o.Queue == nil {
		o.Queue = NewSliceQueue()
	}
	if o.Status == nil {
		o.Status = nopStatus{}
	}
	if o.Events == nil {
		o.Events = events.Discard{}
	}
	return o
}

// VoiceInfo is what the node needs to join the guild's voice server.
type VoiceInfo struct {
	ChannelID string `json:"channelId"`
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
}

func (v VoiceInfo) state() protocol.VoiceState {
	return protocol.VoiceState{Token: v.Token, Endpoint: v.Endpoint, SessionID: v.SessionID}
}

// Snapshot is the last state a node acknowledged.
type Snapshot struct {
	Track    *protocol.Track `json:"track"`
	Position int64           `json:"position"`
	Volume   int             `json:"volume"`
	Filters  json.RawMessage `json:"filters,omitempty"`
	Paused   bool            `json:"paused"`
	At       time.Time       `json:"at"`
}

type Session struct {
	opts    Options
	guildID string
	queue   Queue
	events  events.Publisher
	logger  *slog.Logger

	mu         sync.Mutex
	backend    Backend
	pinned     string
	status     Status
	current    *protocol.Track
	history    []protocol.Track
	position   int64
	positionAt time.Time
	ping       int
	paused     bool
	volume     int
	loop       LoopMode
	filters    json.RawMessage
	autoplay   bool
	voice      VoiceInfo
	connected  bool
	data       map[string]string

	pending      protocol.PlayerPatch
	hasPending   bool
	flushTimer   *time.Timer
	flushSeq     uint64
	inFlight     bool
	settled      chan struct{}
	lastErr      error
	snapshot     *Snapshot
	restoreTimer *time.Timer
	restoreGuard string
	destroyed    bool
}

func New(opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		opts:     opts,
		guildID:  opts.GuildID,
		queue:    opts.Queue,
		events:   opts.Events,
		logger:   slog.Default().With("component", "session", "guildID", opts.GuildID),
		status:   Idle,
		volume:   opts.Volume,
		loop:     opts.Loop,
		autoplay: opts.Autoplay,
		voice:    VoiceInfo{ChannelID: opts.VoiceChannelID},
		data:     make(map[string]string),
		settled:  make(chan struct{}),
	}
}

func (s *Session) GuildID() string {
	return s.guildID
}

// TextChannelID is where announcements for the session go.
func (s *Session) TextChannelID() string {
	return s.opts.TextChannelID
}

func (s *Session) Queue() Queue {
	return s.queue
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Backend returns the bound node, or nil while unbound.
func (s *Session) Backend() Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// BoundTo is the name of the bound node, or "".
func (s *Session) BoundTo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return ""
	}
	return s.backend.Name()
}

// PinnedTo is the node the session last ran on. It survives a detach.
func (s *Session) PinnedTo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned
}

// Bind attaches the session to a backend and ships any pending mutations.
func (s *Session) Bind(backend Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.backend = backend
	s.pinned = backend.Name()
	s.kickLocked()
}

func (s *Session) Current() *protocol.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	track := *s.current
	return &track
}

func (s *Session) Previous() []protocol.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Track(nil), s.history...)
}

// Position is the last position the node reported, in milliseconds.
func (s *Session) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *Session) Ping() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ping
}

func (s *Session) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Session) Playing() bool {
	return s.Status() == Playing
}

func (s *Session) Loop() LoopMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) Voice() VoiceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

// Snapshot is the autoresume snapshot, or nil before the first
// acknowledged patch.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil
	}
	snapshot := *s.snapshot
	return &snapshot
}

// Set stores caller data that travels with the session state.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *Session) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Session) Pause() error {
	return s.setPaused(true)
}

func (s *Session) Resume() error {
	return s.setPaused(false)
}

func (s *Session) setPaused(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.paused = paused
	if s.current != nil {
		if paused {
			s.status = Paused
		} else {
			s.status = Playing
		}
	}
	s.enqueueLocked(protocol.PlayerPatch{Paused: protocol.Ptr(paused)})
	return nil
}

// Seek moves the current track to position milliseconds.
func (s *Session) Seek(position int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	if s.current == nil {
		return ErrNothingPlaying
	}
	position = max(position, 0)
	if length := s.current.Info.Length; length > 0 && !s.current.Info.IsStream {
		position = min(position, length)
	}
	s.position = position
	s.positionAt = time.Now()
	s.enqueueLocked(protocol.PlayerPatch{Position: protocol.Ptr(position)})
	return nil
}

func (s *Session) SetVolume(volume int) error {
	if volume < 0 || volume > 1000 {
		return &RangeError{Field: "volume", Value: volume, Min: 0, Max: 1000}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.volume = volume
	s.enqueueLocked(protocol.PlayerPatch{Volume: protocol.Ptr(volume)})
	return nil
}

// SetFilters replaces the filter set. Filters are passed through to the
// node untouched.
func (s *Session) SetFilters(filters json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.filters = append(json.RawMessage(nil), filters...)
	s.enqueueLocked(protocol.PlayerPatch{Filters: s.filters})
	return nil
}

func (s *Session) SetLoop(mode LoopMode) error {
	if !mode.Valid() {
		return &LoopModeError{Mode: string(mode)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = mode
	return nil
}

func (s *Session) SetAutoplay(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoplay = enabled
}

// Stop ends the current track. The node reports the end as stopped, which
// moves on to the next queued track without looping.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.position = 0
	if s.connected {
		s.status = Connected
	}
	s.enqueueLocked(protocol.PlayerPatch{Track: &protocol.TrackUpdate{}})
	return nil
}

// Skip is Stop under the name users expect.
func (s *Session) Skip() error {
	return s.Stop()
}

func (s *Session) enqueueLocked(patch protocol.PlayerPatch) {
	s.pending = s.pending.Merge(patch)
	s.hasPending = true

	if s.opts.BatchDelay < 0 {
		s.kickLocked()
		return
	}
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	s.flushSeq++
	seq := s.flushSeq
	s.flushTimer = time.AfterFunc(s.opts.BatchDelay, func() { s.flushWindowElapsed(seq) })
}

func (s *Session) flushWindowElapsed(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.flushSeq {
		return
	}
	s.flushTimer = nil
	s.kickLocked()
}

func (s *Session) stopFlushTimerLocked() {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	s.flushSeq++
}

// kickLocked sends the pending patch unless one is already in flight; the
// completion of that one picks up whatever accumulated meanwhile.
func (s *Session) kickLocked() {
	if s.inFlight || !s.hasPending || s.destroyed || s.backend == nil {
		return
	}
	patch := s.pending
	s.pending = protocol.PlayerPatch{}
	s.hasPending = false
	s.inFlight = true
	go s.send(s.backend, patch)
}

func (s *Session) send(backend Backend, patch protocol.PlayerPatch) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	_, err := backend.UpdatePlayer(ctx, s.guildID, patch)
	cancel()

	s.mu.Lock()
	s.inFlight = false
	s.lastErr = err
	settled := s.settled
	s.settled = make(chan struct{})
	destroyed := s.destroyed
	if !destroyed {
		if err == nil {
			s.captureSnapshotLocked()
		}
		if s.hasPending && s.flushTimer == nil {
			s.kickLocked()
		}
	}
	s.mu.Unlock()
	close(settled)

	if err != nil && !destroyed {
		s.logger.Warn("failed to update player", "node", backend.Name(), "error", err)
		s.events.Publish(events.SessionError{GuildID: s.guildID, Err: err})
	}
}

func (s *Session) captureSnapshotLocked() {
	var track *protocol.Track
	if s.current != nil {
		t := *s.current
		track = &t
	}
	s.snapshot = &Snapshot{
		Track:    track,
		Position: s.position,
		Volume:   s.volume,
		Filters:  s.filters,
		Paused:   s.paused,
		At:       time.Now(),
	}
}

// Flush ships pending mutations now and waits until nothing is in flight.
// It returns the error of the last patch it waited for.
func (s *Session) Flush(ctx context.Context) error {
	var result error
	for {
		s.mu.Lock()
		if s.destroyed {
			s.mu.Unlock()
			return ErrDestroyed
		}
		if !s.inFlight && !s.hasPending {
			s.mu.Unlock()
			return result
		}
		if s.backend == nil && !s.inFlight {
			s.mu.Unlock()
			return ErrUnbound
		}
		s.stopFlushTimerLocked()
		s.kickLocked()
		wait := s.settled
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}

		s.mu.Lock()
		result = s.lastErr
		s.mu.Unlock()
	}
}

// Destroy tears the session down: timers are cancelled, pending mutations
// dropped, any in-flight result ignored, and the node player deleted.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	s.status = Destroyed
	s.stopFlushTimerLocked()
	s.stopRestoreTimerLocked()
	s.pending = protocol.PlayerPatch{}
	s.hasPending = false
	backend := s.backend
	s.backend = nil
	channel := s.voice.ChannelID
	s.connected = false
	s.mu.Unlock()

	s.queue.Clear()

	var err error
	if backend != nil {
		if derr := backend.DestroyPlayer(ctx, s.guildID); derr != nil {
			s.logger.Warn("failed to destroy player", "node", backend.Name(), "error", derr)
			err = derr
		}
	}
	if s.opts.Voice != nil && channel != "" {
		if verr := s.opts.Voice.JoinChannel(s.guildID, "", false, false); verr != nil {
			s.logger.Warn("failed to leave voice channel", "error", verr)
		}
	}
	s.opts.Status.Cleared(s.guildID, channel)
	s.events.Publish(events.SessionDestroyed{GuildID: s.guildID})
	return err
}

func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

type nopStatus struct{}

func (nopStatus) TrackStarted(string, string, protocol.Track) {}
func (nopStatus) Cleared(string, string)                      {}
