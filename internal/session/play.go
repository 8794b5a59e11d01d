package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ryuzii/FerraEura/internal/events"
	"github.com/Ryuzii/FerraEura/internal/protocol"
)

// Play starts the track at the head of the queue. It is a no-op on an
// empty queue. Transient failures are retried with a linear backoff.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	track, ok := s.queue.Shift()
	if !ok {
		s.mu.Unlock()
		return nil
	}
	s.current = &track
	s.position = 0
	s.positionAt = time.Now()
	s.mu.Unlock()

	return s.retry(ctx, func(ctx context.Context) error {
		return s.start(ctx, track)
	})
}

func (s *Session) start(ctx context.Context, track protocol.Track) error {
	if !track.Resolved() {
		if s.opts.Resolver == nil {
			return fmt.Errorf("failed to resolve track %q: no resolver", track.Info.Title)
		}
		resolved, err := s.opts.Resolver.Resolve(ctx, track)
		if err != nil {
			return fmt.Errorf("failed to resolve track %q: %w", track.Info.Title, err)
		}
		track = resolved
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.current = &track
	s.paused = false
	s.status = Playing
	s.enqueueLocked(protocol.PlayerPatch{
		Track:  &protocol.TrackUpdate{Encoded: protocol.Ptr(track.Encoded), UserData: track.UserData},
		Paused: protocol.Ptr(false),
	})
	s.mu.Unlock()

	return s.Flush(ctx)
}

func (s *Session) retry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt == s.opts.MaxAttempts {
			break
		}

		delay := s.opts.RetryDelay * time.Duration(attempt)
		s.logger.Warn("play failed, retrying", "error", err, "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// playNext runs Play off the event path.
func (s *Session) playNext() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.Play(ctx); err != nil {
		s.logger.Error("failed to play next track", "error", err)
		s.events.Publish(events.SessionError{GuildID: s.guildID, Err: err})
	}
}

type endAction int

const (
	endNotify endAction = iota
	endQueueEnd
	endPlayNext
	endAutoplay
)

// trackEnded decides what follows a finished track: a replaced track needs
// nothing; otherwise looping, the queue and autoplay are tried in that
// order before the queue is declared over.
func (s *Session) trackEnded(ev protocol.Event) {
	reason := ev.Reason

	s.mu.Lock()
	var ended protocol.Track
	switch {
	case ev.Track != nil:
		ended = *ev.Track
	case s.current != nil:
		ended = *s.current
	}

	action := endNotify
	if !strings.EqualFold(string(reason), string(protocol.ReasonReplaced)) {
		s.pushHistoryLocked(ended)
		s.current = nil
		s.forgetSnapshotTrackLocked()
		s.position = 0
		if s.connected {
			s.status = Connected
		}

		stopped := strings.EqualFold(string(reason), string(protocol.ReasonStopped))
		switch {
		case !s.connected:
			action = endQueueEnd
		case s.loop == LoopTrack && !stopped:
			s.queue.Unshift(ended)
			action = endPlayNext
		case s.loop == LoopQueue && !stopped:
			s.queue.Push(ended)
			action = endPlayNext
		case s.queue.Len() > 0:
			action = endPlayNext
		case s.autoplay:
			action = endAutoplay
		default:
			action = endQueueEnd
		}
	}
	channel := s.voice.ChannelID
	s.mu.Unlock()

	s.events.Publish(events.TrackEnded{GuildID: s.guildID, Track: ended, Reason: reason})

	switch action {
	case endPlayNext:
		go s.playNext()
	case endAutoplay:
		go s.autoplayFrom(ended)
	case endQueueEnd:
		s.queueEnded(channel, &ended)
	}
}

func (s *Session) pushHistoryLocked(track protocol.Track) {
	if track.Encoded == "" {
		return
	}
	s.history = append([]protocol.Track{track}, s.history...)
	if len(s.history) > s.opts.HistorySize {
		s.history = s.history[:s.opts.HistorySize]
	}
}

func (s *Session) queueEnded(channel string, last *protocol.Track) {
	s.opts.Status.Cleared(s.guildID, channel)
	s.events.Publish(events.QueueEnded{GuildID: s.guildID, Last: last})
}

func (s *Session) autoplayFrom(seed protocol.Track) {
	s.mu.Lock()
	channel := s.voice.ChannelID
	s.mu.Unlock()

	if s.opts.Recommender == nil {
		s.queueEnded(channel, &seed)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	next, err := s.opts.Recommender.Recommend(ctx, seed)
	cancel()
	if err != nil {
		s.logger.Warn("failed to find an autoplay track", "source", seed.Info.SourceName, "identifier", seed.Info.Identifier, "error", err)
	}
	if err != nil || next == nil {
		s.queueEnded(channel, &seed)
		return
	}

	s.queue.Push(*next)
	s.playNext()
}
