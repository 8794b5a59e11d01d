package session

import (
	"context"

	"github.com/Ryuzii/FerraEura/internal/protocol"
)

// Connect asks the gateway to join the session's voice channel. The node
// gets the voice server once both gateway updates have arrived.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if s.opts.Voice == nil {
		s.mu.Unlock()
		return ErrNoVoiceGateway
	}
	channel := s.voice.ChannelID
	if !s.connected {
		s.status = Connecting
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.opts.Voice.JoinChannel(s.guildID, channel, s.opts.Mute, s.opts.Deaf)
}

// SetVoiceChannel moves the bot to another channel of the guild.
func (s *Session) SetVoiceChannel(ctx context.Context, channelID string) error {
	s.mu.Lock()
	s.voice.ChannelID = channelID
	s.mu.Unlock()
	return s.Connect(ctx)
}

// Disconnect pauses playback and leaves the voice channel. The session
// stays alive and can Connect again.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	hasTrack := s.current != nil
	s.mu.Unlock()

	if hasTrack {
		if err := s.Pause(); err != nil {
			return err
		}
	}

	if s.opts.Voice != nil {
		if err := s.opts.Voice.JoinChannel(s.guildID, "", false, false); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.connected = false
	s.status = Disconnected
	s.forgetSnapshotTrackLocked()
	channel := s.voice.ChannelID
	s.voice = VoiceInfo{}
	s.mu.Unlock()

	s.opts.Status.Cleared(s.guildID, channel)
	return s.Flush(ctx)
}

// SetVoiceState records the bot's own voice state update. An empty channel
// means the bot left or was kicked from voice.
func (s *Session) SetVoiceState(sessionID, channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	if channelID == "" {
		s.connected = false
		s.status = Disconnected
		s.voice.ChannelID = ""
		return
	}
	s.voice.ChannelID = channelID
	s.voice.SessionID = sessionID
	s.sendVoiceLocked()
}

// SetVoiceServer records the voice server the gateway assigned.
func (s *Session) SetVoiceServer(token, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || endpoint == "" {
		return
	}
	s.voice.Token = token
	s.voice.Endpoint = endpoint
	s.sendVoiceLocked()
}

func (s *Session) sendVoiceLocked() {
	voice := s.voice.state()
	if !voice.Complete() {
		return
	}
	s.connected = true
	switch s.status {
	case Idle, Connecting, Disconnected:
		s.status = Connected
	}
	s.enqueueLocked(protocol.PlayerPatch{Voice: &voice})
}
