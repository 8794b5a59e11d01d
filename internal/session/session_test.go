package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Ryuzii/FerraEura/internal/events"
	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/Ryuzii/FerraEura/internal/rest"
	"github.com/Ryuzii/FerraEura/internal/session"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name string

	mu          sync.Mutex
	patches     []protocol.PlayerPatch
	destroyed   []string
	inFlight    int
	maxInFlight int
	errs        []error
	block       chan struct{}
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) UpdatePlayer(ctx context.Context, guildID string, patch protocol.PlayerPatch) (*protocol.Player, error) {
	f.mu.Lock()
	f.patches = append(f.patches, patch)
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &protocol.Player{GuildID: guildID}, nil
}

func (f *fakeBackend) DestroyPlayer(ctx context.Context, guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, guildID)
	return nil
}

func (f *fakeBackend) Patches() []protocol.PlayerPatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.PlayerPatch(nil), f.patches...)
}

func (f *fakeBackend) lastPatch() protocol.PlayerPatch {
	patches := f.Patches()
	if len(patches) == 0 {
		return protocol.PlayerPatch{}
	}
	return patches[len(patches)-1]
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(e events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(match func(events.Event) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if match(e) {
			n++
		}
	}
	return n
}

func isQueueEnd(e events.Event) bool {
	_, ok := e.(events.QueueEnded)
	return ok
}

func isTrackStart(e events.Event) bool {
	_, ok := e.(events.TrackStarted)
	return ok
}

func isSessionError(e events.Event) bool {
	_, ok := e.(events.SessionError)
	return ok
}

func track(encoded string) protocol.Track {
	return protocol.Track{
		Encoded: encoded,
		Info:    protocol.TrackInfo{Identifier: encoded, Title: encoded, Length: 200_000, IsSeekable: true, SourceName: "youtube"},
	}
}

// newSession builds a connected session bound to backend, with current
// playing and queue queued.
func newSession(t *testing.T, backend *fakeBackend, opts session.Options, current *protocol.Track, queue ...protocol.Track) (*session.Session, *eventLog) {
	t.Helper()
	log := &eventLog{}
	opts.Events = log
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	s := session.NewFromState(session.State{
		GuildID:   "guild",
		Connected: true,
		Playing:   current != nil,
		Current:   current,
		Queue:     queue,
	}, opts)
	s.Bind(backend)
	t.Cleanup(func() { _ = s.Destroy(context.Background()) })
	return s, log
}

const wait = 2 * time.Second
const tick = 5 * time.Millisecond

func TestMutationsWithinWindowAreBatched(t *testing.T) {
	backend := &fakeBackend{name: "a"}
	current := track("A")
	s, _ := newSession(t, backend, session.Options{}, &current)

	require.NoError(t, s.Pause())
	require.NoError(t, s.SetVolume(50))
	require.NoError(t, s.Seek(1000))

	require.Eventually(t, func() bool { return len(backend.Patches()) == 1 }, wait, tick)
	time.Sleep(60 * time.Millisecond)

	want := []protocol.PlayerPatch{{
		Paused:   protocol.Ptr(true),
		Volume:   protocol.Ptr(50),
		Position: protocol.Ptr[int64](1000),
	}}
	if diff := cmp.Diff(want, backend.Patches()); diff != "" {
		t.Errorf("patches mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, session.Paused, s.Status())
}

func TestLastWriteWins(t *testing.T) {
	backend := &fakeBackend{name: "a"}
	s, _ := newSession(t, backend, session.Options{}, nil)

	require.NoError(t, s.SetVolume(10))
	require.NoError(t, s.SetVolume(80))
	require.NoError(t, s.Flush(t.Context()))

	require.Len(t, backend.Patches(), 1)
	assert.Equal(t, 80, *backend.Patches()[0].Volume)
}

func TestOnePatchInFlight(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{name: "a", block: release}
	s, _ := newSession(t, backend, session.Options{BatchDelay: -1}, nil)

	require.NoError(t, s.SetVolume(10))
	require.Eventually(t, func() bool { return len(backend.Patches()) == 1 }, wait, tick)

	require.NoError(t, s.SetVolume(20))
	require.NoError(t, s.Pause())
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, backend.Patches(), 1, "mutations must wait for the in-flight patch")

	close(release)
	require.Eventually(t, func() bool { return len(backend.Patches()) == 2 }, wait, tick)

	want := protocol.PlayerPatch{Volume: protocol.Ptr(20), Paused: protocol.Ptr(true)}
	if diff := cmp.Diff(want, backend.Patches()[1]); diff != "" {
		t.Errorf("second patch mismatch (-want +got):\n%s", diff)
	}
	backend.mu.Lock()
	assert.Equal(t, 1, backend.maxInFlight)
	backend.mu.Unlock()
}

func TestSnapshotFollowsAcknowledgedPatch(t *testing.T) {
	backend := &fakeBackend{name: "a"}
	current := track("A")
	s, _ := newSession(t, backend, session.Options{}, &current)

	assert.Nil(t, s.Snapshot())
	require.NoError(t, s.SetVolume(70))
	require.NoError(t, s.Seek(4000))
	require.NoError(t, s.Flush(t.Context()))

	snapshot := s.Snapshot()
	require.NotNil(t, snapshot)
	assert.Equal(t, "A", snapshot.Track.Encoded)
	assert.Equal(t, int64(4000), snapshot.Position)
	assert.Equal(t, 70, snapshot.Volume)

	backend.mu.Lock()
	backend.errs = []error{&rest.RequestError{Status: http.StatusBadRequest, Message: "bad"}}
	backend.mu.Unlock()
	require.NoError(t, s.SetVolume(90))
	require.Error(t, s.Flush(t.Context()))
	assert.Equal(t, 70, s.Snapshot().Volume, "a failed patch must not move the snapshot")
}

func TestVolumeRange(t *testing.T) {
	backend := &fakeBackend{name: "a"}
	s, _ := newSession(t, backend, session.Options{}, nil)

	var rangeErr *session.RangeError
	assert.ErrorAs(t, s.SetVolume(1001), &rangeErr)
	assert.ErrorAs(t, s.SetVolume(-1), &rangeErr)
	assert.NoError(t, s.SetVolume(1000))
	assert.NoError(t, s.SetVolume(0))

	var loopErr *session.LoopModeError
	assert.ErrorAs(t, s.SetLoop("forever"), &loopErr)
}

func TestPlayRequiresVoice(t *testing.T) {
	s := session.New(session.Options{GuildID: "guild"})
	s.Queue().Push(track("A"))
	assert.ErrorIs(t, s.Play(t.Context()), session.ErrNotConnected)
	assert.Equal(t, 1, s.Queue().Len())
}

func TestPlayRetry(t *testing.T) {
	timeout := errors.New(`Patch "http://node/v4/sessions/x/players/guild": dial tcp: i/o timeout`)
	badRequest := &rest.RequestError{Status: http.StatusBadRequest, Method: http.MethodPatch, Message: "invalid track"}

	tests := []struct {
		name      string
		errs      []error
		wantErr   bool
		wantCalls int
	}{
		{name: "transient errors are retried", errs: []error{timeout, timeout}, wantCalls: 3},
		{name: "gives up after three attempts", errs: []error{timeout, timeout, timeout}, wantErr: true, wantCalls: 3},
		{name: "request errors are not retried", errs: []error{badRequest}, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{name: "a", errs: tt.errs}
			s, _ := newSession(t, backend, session.Options{BatchDelay: -1}, nil, track("A"))

			err := s.Play(t.Context())
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, backend.Patches(), tt.wantCalls)
			for _, p := range backend.Patches() {
				require.NotNil(t, p.Track)
				assert.Equal(t, "A", *p.Track.Encoded)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("read: connection reset by peer"), true},
		{errors.New("dial tcp: lookup node: no such host"), true},
		{errors.New("ETIMEDOUT"), true},
		{errors.New("socket hang up"), true},
		{context.DeadlineExceeded, true},
		{errors.New("invalid track"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := session.IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

type resolverFunc func(context.Context, protocol.Track) (protocol.Track, error)

func (f resolverFunc) Resolve(ctx context.Context, t protocol.Track) (protocol.Track, error) {
	return f(ctx, t)
}

func TestPlayResolvesUnencodedTracks(t *testing.T) {
	backend := &fakeBackend{name: "a"}
	resolver := resolverFunc(func(_ context.Context, t protocol.Track) (protocol.Track, error) {
		resolved := track("resolved-" + t.Info.Title)
		return resolved, nil
	})
	s, _ := newSession(t, backend, session.Options{Resolver: resolver}, nil,
		protocol.Track{Info: protocol.TrackInfo{Title: "song"}})

	require.NoError(t, s.Play(t.Context()))
	assert.Equal(t, "resolved-song", *backend.lastPatch().Track.Encoded)
	assert.Equal(t, "resolved-song", s.Current().Encoded)
}

type recommenderFunc func(context.Context, protocol.Track) (*protocol.Track, error)

func (f recommenderFunc) Recommend(ctx context.Context, seed protocol.Track) (*protocol.Track, error) {
	return f(ctx, seed)
}

func endFrame(t *testing.T, encoded string, reason protocol.TrackEndReason) protocol.Frame {
	t.Helper()
	ended := track(encoded)
	data, err := json.Marshal(map[string]any{
		"op":      "event",
		"type":    "TrackEndEvent",
		"guildId": "guild",
		"track":   ended,
		"reason":  reason,
	})
	require.NoError(t, err)
	frame, err := protocol.DecodeFrame(data)
	require.NoError(t, err)
	return frame
}

func eventFrame(t *testing.T, payload map[string]any) protocol.Frame {
	t.Helper()
	payload["op"] = "event"
	payload["guildId"] = "guild"
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := protocol.DecodeFrame(data)
	require.NoError(t, err)
	return frame
}

func TestTrackEndResolution(t *testing.T) {
	related := track("R")

	tests := []struct {
		name         string
		reason       protocol.TrackEndReason
		loop         session.LoopMode
		autoplay     bool
		recommend    *protocol.Track
		disconnected bool
		queue        []protocol.Track
		wantPlayed   string
		wantQueue    []string
		wantQueueEnd bool
	}{
		{name: "replaced only notifies", reason: protocol.ReasonReplaced, queue: []protocol.Track{track("B")}, wantQueue: []string{"B"}},
		{name: "disconnected ends the queue", reason: protocol.ReasonFinished, disconnected: true, queue: []protocol.Track{track("B")}, wantQueue: []string{"B"}, wantQueueEnd: true},
		{name: "loop track replays", reason: protocol.ReasonFinished, loop: session.LoopTrack, queue: []protocol.Track{track("B")}, wantPlayed: "A", wantQueue: []string{"B"}},
		{name: "loop queue requeues at tail", reason: protocol.ReasonFinished, loop: session.LoopQueue, queue: []protocol.Track{track("B")}, wantPlayed: "B", wantQueue: []string{"A"}},
		{name: "stopped skips looping", reason: protocol.ReasonStopped, loop: session.LoopTrack, queue: []protocol.Track{track("B")}, wantPlayed: "B", wantQueue: []string{}},
		{name: "queue plays next", reason: protocol.ReasonFinished, queue: []protocol.Track{track("B"), track("C")}, wantPlayed: "B", wantQueue: []string{"C"}},
		{name: "autoplay plays recommendation", reason: protocol.ReasonFinished, autoplay: true, recommend: &related, wantPlayed: "R", wantQueue: []string{}},
		{name: "autoplay without recommendation ends", reason: protocol.ReasonFinished, autoplay: true, wantQueue: []string{}, wantQueueEnd: true},
		{name: "empty queue ends", reason: protocol.ReasonFinished, wantQueue: []string{}, wantQueueEnd: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{name: "a"}
			current := track("A")
			recommender := recommenderFunc(func(_ context.Context, seed protocol.Track) (*protocol.Track, error) {
				if seed.Encoded != "A" {
					t.Errorf("unexpected seed %q", seed.Encoded)
				}
				return tt.recommend, nil
			})
			s, log := newSession(t, backend, session.Options{
				Loop:        tt.loop,
				Autoplay:    tt.autoplay,
				Recommender: recommender,
				BatchDelay:  -1,
			}, &current, tt.queue...)
			if tt.disconnected {
				s.SetVoiceState("", "")
			}

			s.HandleFrame(endFrame(t, "A", tt.reason))

			if tt.wantPlayed != "" {
				require.Eventually(t, func() bool {
					p := backend.lastPatch()
					return p.Track != nil && p.Track.Encoded != nil && *p.Track.Encoded == tt.wantPlayed
				}, wait, tick)
			} else {
				time.Sleep(50 * time.Millisecond)
				assert.Empty(t, backend.Patches())
			}

			require.Eventually(t, func() bool {
				return (log.count(isQueueEnd) == 1) == tt.wantQueueEnd
			}, wait, tick)

			got := []string{}
			for _, q := range s.Queue().Tracks() {
				got = append(got, q.Encoded)
			}
			if diff := cmp.Diff(tt.wantQueue, got); diff != "" {
				t.Errorf("queue mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHistoryRecordsEndedTracks(t *testing.T) {
	backend := &fakeBackend{name: "a"}
	current := track("A")
	s, _ := newSession(t, backend, session.Options{HistorySize: 2}, &current)

	for _, encoded := range []string{"A", "B", "C"} {
		s.HandleFrame(endFrame(t, encoded, protocol.ReasonFinished))
	}

	got := []string{}
	for _, p := range s.Previous() {
		got = append(got, p.Encoded)
	}
	assert.Equal(t, []string{"C", "B"}, got)
}

func TestSocketClosedRestoresSnapshot(t *testing.T) {
	backend := &fakeBackend{name: "a"}
	current := track("A")
	s, log := newSession(t, backend, session.Options{
		AutoResume:  true,
		ResumeDelay: 20 * time.Millisecond,
	}, &current, track("B"))

	require.NoError(t, s.Seek(5000))
	require.NoError(t, s.Flush(t.Context()))
	before := len(backend.Patches())

	s.HandleFrame(eventFrame(t, map[string]any{
		"type":     "WebSocketClosedEvent",
		"code":     4006,
		"reason":   "Session is no longer valid.",
		"byRemote": true,
	}))

	require.Eventually(t, func() bool { return len(backend.Patches()) == before+1 }, wait, tick)
	restore := backend.lastPatch()
	require.NotNil(t, restore.Track)
	assert.Equal(t, "A", *restore.Track.Encoded)
	assert.Equal(t, int64(5000), *restore.Position)
	assert.Equal(t, 1, s.Queue().Len(), "restore must not advance the queue")

	s.HandleFrame(eventFrame(t, map[string]any{"type": "TrackStartEvent", "track": track("A")}))
	assert.Equal(t, 0, log.count(isTrackStart), "restored track is not a new start")

	s.HandleFrame(eventFrame(t, map[string]any{"type": "TrackStartEvent", "track": track("B")}))
	assert.Equal(t, 1, log.count(isTrackStart))
}

func TestSocketClosedDoesNotReplay(t *testing.T) {
	socketClosed := map[string]any{"type": "WebSocketClosedEvent", "code": 4006, "reason": "Session is no longer valid.", "byRemote": true}

	tests := []struct {
		name string
		// before runs ahead of the voice socket closing, after runs right
		// after it, within the resume delay.
		before func(t *testing.T, s *session.Session)
		after  func(t *testing.T, s *session.Session)
	}{
		{
			name: "finished track after the queue ended",
			before: func(t *testing.T, s *session.Session) {
				s.HandleFrame(eventFrame(t, map[string]any{"type": "TrackEndEvent", "track": track("A"), "reason": "finished"}))
				require.Nil(t, s.Current())
			},
		},
		{
			name: "stopped track",
			before: func(t *testing.T, s *session.Session) {
				require.NoError(t, s.Stop())
				require.NoError(t, s.Flush(t.Context()))
				s.HandleFrame(eventFrame(t, map[string]any{"type": "TrackEndEvent", "track": track("A"), "reason": "stopped"}))
			},
		},
		{
			name: "voice disconnected",
			before: func(t *testing.T, s *session.Session) {
				data, err := json.Marshal(map[string]any{
					"op":      "playerUpdate",
					"guildId": "guild",
					"state":   map[string]any{"time": time.Now().UnixMilli(), "position": 191000, "connected": false},
				})
				require.NoError(t, err)
				frame, err := protocol.DecodeFrame(data)
				require.NoError(t, err)
				s.HandleFrame(frame)
				require.False(t, s.Connected())
			},
		},
		{
			name: "detached before the delay",
			after: func(t *testing.T, s *session.Session) {
				s.Detach()
			},
		},
		{
			name: "destroyed before the delay",
			after: func(t *testing.T, s *session.Session) {
				require.NoError(t, s.Destroy(t.Context()))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{name: "a"}
			current := track("A")
			s, log := newSession(t, backend, session.Options{
				AutoResume:  true,
				ResumeDelay: 20 * time.Millisecond,
			}, &current)

			require.NoError(t, s.Seek(190000))
			require.NoError(t, s.Flush(t.Context()))
			if tt.before != nil {
				tt.before(t, s)
			}
			before := len(backend.Patches())

			s.HandleFrame(eventFrame(t, socketClosed))
			if tt.after != nil {
				tt.after(t, s)
			}
			time.Sleep(100 * time.Millisecond)

			assert.Len(t, backend.Patches(), before, "nothing is sent to the node")
			assert.Equal(t, 0, log.count(isSessionError))
		})
	}
}

func TestTrackStuckOnlyReports(t *testing.T) {
	backend := &fakeBackend{name: "a"}
	current := track("A")
	s, log := newSession(t, backend, session.Options{BatchDelay: -1}, &current, track("B"))

	s.HandleFrame(eventFrame(t, map[string]any{"type": "TrackStuckEvent", "track": track("A"), "thresholdMs": 10000}))
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 1, log.count(func(e events.Event) bool {
		_, ok := e.(events.TrackStuck)
		return ok
	}))
	assert.Empty(t, backend.Patches())
	require.NotNil(t, s.Current())
	assert.Equal(t, "A", s.Current().Encoded)
	assert.Equal(t, 1, s.Queue().Len())
}

func TestDestroyDiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{name: "a", block: release, errs: []error{errors.New("boom")}}
	s, log := newSession(t, backend, session.Options{BatchDelay: -1}, nil)

	require.NoError(t, s.SetVolume(10))
	require.Eventually(t, func() bool { return len(backend.Patches()) == 1 }, wait, tick)

	require.NoError(t, s.Destroy(t.Context()))
	close(release)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 0, log.count(isSessionError), "in-flight failure after destroy is discarded")
	assert.Nil(t, s.Snapshot())
	assert.Equal(t, session.Destroyed, s.Status())
	assert.ErrorIs(t, s.SetVolume(20), session.ErrDestroyed)
	backend.mu.Lock()
	assert.Equal(t, []string{"guild"}, backend.destroyed)
	backend.mu.Unlock()
}

type gateway struct {
	mu    sync.Mutex
	joins []string
}

func (g *gateway) JoinChannel(guildID, channelID string, mute, deaf bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joins = append(g.joins, channelID)
	return nil
}

func TestVoiceHandshake(t *testing.T) {
	backend := &fakeBackend{name: "a"}
	voice := &gateway{}
	s := session.New(session.Options{GuildID: "guild", VoiceChannelID: "vc", Voice: voice})
	s.Bind(backend)
	t.Cleanup(func() { _ = s.Destroy(context.Background()) })

	require.NoError(t, s.Connect(t.Context()))
	assert.Equal(t, session.Connecting, s.Status())

	s.SetVoiceState("voice-session", "vc")
	assert.False(t, s.Connected(), "a voice state alone is not enough")
	s.SetVoiceServer("token", "endpoint.discord.media")
	assert.True(t, s.Connected())
	assert.Equal(t, session.Connected, s.Status())

	require.NoError(t, s.Flush(t.Context()))
	want := &protocol.VoiceState{Token: "token", Endpoint: "endpoint.discord.media", SessionID: "voice-session"}
	if diff := cmp.Diff(want, backend.lastPatch().Voice); diff != "" {
		t.Errorf("voice patch mismatch (-want +got):\n%s", diff)
	}

	s.SetVoiceState("voice-session", "")
	assert.False(t, s.Connected())
	assert.Equal(t, session.Disconnected, s.Status())

	voice.mu.Lock()
	assert.Equal(t, []string{"vc"}, voice.joins)
	voice.mu.Unlock()
}

func TestDetachAndRebind(t *testing.T) {
	first := &fakeBackend{name: "a"}
	current := track("A")
	s, _ := newSession(t, first, session.Options{}, &current, track("B"))
	require.NoError(t, s.SetVolume(40))
	require.NoError(t, s.Seek(5000))
	require.NoError(t, s.Flush(t.Context()))

	st := s.Detach()
	assert.Nil(t, s.Backend())
	assert.Equal(t, "a", s.PinnedTo())
	assert.Equal(t, int64(5000), st.Position)
	assert.True(t, st.Worth())

	second := &fakeBackend{name: "b"}
	require.NoError(t, s.Rebind(t.Context(), second, st))
	assert.Equal(t, "b", s.BoundTo())

	require.Len(t, second.Patches(), 1)
	patch := second.Patches()[0]
	assert.Equal(t, "A", *patch.Track.Encoded)
	assert.Equal(t, int64(5000), *patch.Position)
	assert.Equal(t, 40, *patch.Volume)
	assert.Equal(t, 1, s.Queue().Len())
}

func TestStateRoundTrip(t *testing.T) {
	backend := &fakeBackend{name: "a"}
	current := track("A")
	s, _ := newSession(t, backend, session.Options{}, &current, track("B"), track("C"))
	s.Set("requester", "42")
	require.NoError(t, s.SetLoop(session.LoopQueue))

	data, err := json.Marshal(s.Export())
	require.NoError(t, err)
	var st session.State
	require.NoError(t, json.Unmarshal(data, &st))

	restored := session.NewFromState(st, session.Options{})
	assert.Equal(t, "A", restored.Current().Encoded)
	assert.Equal(t, 2, restored.Queue().Len())
	assert.Equal(t, session.LoopQueue, restored.Loop())
	assert.Equal(t, "a", restored.PinnedTo())
	v, ok := restored.Get("requester")
	assert.True(t, ok)
	assert.Equal(t, "42", v)
	assert.Nil(t, restored.Backend())
}
