package session

import (
	"context"
	"time"

	"github.com/Ryuzii/FerraEura/internal/events"
	"github.com/Ryuzii/FerraEura/internal/protocol"
)

// HandleFrame applies an event or player update the bound node sent for
// this guild.
func (s *Session) HandleFrame(frame protocol.Frame) {
	if s.Destroyed() {
		return
	}

	switch frame.Op {
	case protocol.OpPlayerUpdate:
		var update protocol.PlayerUpdate
		if err := frame.Decode(&update); err != nil {
			s.logger.Warn("dropping player update", "error", err)
			return
		}
		s.playerUpdated(update.State)

	case protocol.OpEvent:
		var ev protocol.Event
		if err := frame.Decode(&ev); err != nil {
			s.logger.Warn("dropping event", "error", err)
			return
		}
		s.handleEvent(ev)
	}
}

func (s *Session) playerUpdated(state protocol.PlayerState) {
	s.mu.Lock()
	s.position = state.Position
	if state.Time > 0 {
		s.positionAt = time.UnixMilli(state.Time)
	} else {
		s.positionAt = time.Now()
	}
	s.ping = state.Ping
	s.connected = state.Connected
	if !state.Connected && s.status != Destroyed {
		s.status = Disconnected
	} else if state.Connected && (s.status == Disconnected || s.status == Connecting || s.status == Idle) {
		s.status = Connected
	}
	s.mu.Unlock()

	s.events.Publish(events.PlayerUpdated{
		GuildID:   s.guildID,
		Position:  state.Position,
		Ping:      state.Ping,
		Connected: state.Connected,
	})
}

func (s *Session) handleEvent(ev protocol.Event) {
	switch ev.Type {
	case protocol.TrackStartEvent:
		s.mu.Lock()
		restored := ev.Track != nil && s.restoreGuard != "" && ev.Track.Encoded == s.restoreGuard
		s.restoreGuard = ""
		if ev.Track != nil {
			track := *ev.Track
			s.current = &track
		}
		if s.paused {
			s.status = Paused
		} else {
			s.status = Playing
		}
		channel := s.voice.ChannelID
		s.mu.Unlock()

		if restored || ev.Track == nil {
			return
		}
		s.opts.Status.TrackStarted(s.guildID, channel, *ev.Track)
		s.events.Publish(events.TrackStarted{GuildID: s.guildID, Track: *ev.Track})

	case protocol.TrackEndEvent:
		s.trackEnded(ev)

	case protocol.TrackExceptionEvent:
		exception := protocol.Exception{}
		if ev.Exception != nil {
			exception = *ev.Exception
		}
		s.logger.Warn("track exception", "message", exception.Message, "severity", exception.Severity)
		s.events.Publish(events.TrackException{GuildID: s.guildID, Track: ev.Track, Exception: exception})

	case protocol.TrackStuckEvent:
		s.logger.Warn("track stuck", "thresholdMs", ev.Threshold)
		s.events.Publish(events.TrackStuck{GuildID: s.guildID, Track: ev.Track, Threshold: ev.Threshold})

	case protocol.WebSocketClosedEvent:
		s.logger.Warn("voice socket closed", "code", ev.Code, "reason", ev.Message, "byRemote", ev.ByRemote)
		s.events.Publish(events.SocketClosed{GuildID: s.guildID, Code: ev.Code, Reason: ev.Message, ByRemote: ev.ByRemote})
		if s.opts.AutoResume {
			s.scheduleRestore()
		}

	default:
		s.logger.Debug("ignoring event", "type", ev.Type)
	}
}

func (s *Session) scheduleRestore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || !s.restorableLocked() {
		return
	}
	s.stopRestoreTimerLocked()
	s.restoreTimer = time.AfterFunc(s.opts.ResumeDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
		defer cancel()
		if err := s.Restore(ctx); err != nil {
			s.logger.Error("failed to restore session", "error", err)
			s.events.Publish(events.SessionError{GuildID: s.guildID, Err: err})
		}
	})
}

// Restore re-sends the autoresume snapshot to the bound node. The queue is
// not touched and the node's start event for the restored track is not
// reported as a new track.
func (s *Session) Restore(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.restoreTimer = nil
	if !s.restorableLocked() {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.snapshot

	patch := protocol.PlayerPatch{
		Track:    &protocol.TrackUpdate{Encoded: protocol.Ptr(snapshot.Track.Encoded)},
		Position: protocol.Ptr(snapshot.Position),
		Volume:   protocol.Ptr(snapshot.Volume),
		Paused:   protocol.Ptr(snapshot.Paused),
		Filters:  snapshot.Filters,
	}
	if voice := s.voice.state(); voice.Complete() {
		patch.Voice = &voice
	}
	s.restoreGuard = snapshot.Track.Encoded
	s.pending = s.pending.Merge(patch)
	s.hasPending = true
	s.mu.Unlock()

	s.logger.Info("restoring session", "track", snapshot.Track.Info.Title, "position", snapshot.Position)
	return s.Flush(ctx)
}

// restorableLocked reports whether a snapshot of the track still playing
// exists and voice is up. Finished or stopped tracks are never replayed.
func (s *Session) restorableLocked() bool {
	return s.current != nil && s.connected &&
		s.snapshot != nil && s.snapshot.Track != nil &&
		s.snapshot.Track.Encoded == s.current.Encoded
}

func (s *Session) stopRestoreTimerLocked() {
	if s.restoreTimer != nil {
		s.restoreTimer.Stop()
		s.restoreTimer = nil
	}
}

// forgetSnapshotTrackLocked keeps the player settings of the snapshot but
// drops the track it would restore.
func (s *Session) forgetSnapshotTrackLocked() {
	s.stopRestoreTimerLocked()
	if s.snapshot == nil || s.snapshot.Track == nil {
		return
	}
	snap := *s.snapshot
	snap.Track = nil
	s.snapshot = &snap
}
