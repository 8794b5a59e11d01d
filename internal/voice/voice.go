package voice

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Ryuzii/FerraEura/internal/session"
	"github.com/bwmarrin/discordgo"
)

var ErrNotInVoice = errors.New("user is not in a voice channel")

// Joiner is the part of the gateway connection that moves the bot's own
// voice state. *discordgo.Session implements it.
type Joiner interface {
	ChannelVoiceJoinManual(gID, cID string, mute, deaf bool) error
}

// Gateway sends voice state updates over the chat gateway and leaves the
// audio connection itself to the node.
type Gateway struct {
	joiner Joiner
}

func NewGateway(joiner Joiner) *Gateway {
	return &Gateway{joiner: joiner}
}

var _ session.VoiceGateway = (*Gateway)(nil)

// JoinChannel joins channelID, or leaves voice when it is empty.
func (g *Gateway) JoinChannel(guildID, channelID string, mute, deaf bool) error {
	if err := g.joiner.ChannelVoiceJoinManual(guildID, channelID, mute, deaf); err != nil {
		if channelID == "" {
			return fmt.Errorf("unable to leave voice in guild %s: %w", guildID, err)
		}
		return fmt.Errorf("unable to join the voice channel: %w", err)
	}
	return nil
}

// Updater receives the voice updates the node needs to connect.
type Updater interface {
	UpdateVoiceState(guildID, userID, sessionID, channelID string)
	UpdateVoiceServer(guildID, token, endpoint string)
}

// Forwarder relays gateway voice events to an Updater. Register its
// methods as discordgo handlers.
type Forwarder struct {
	updater Updater
}

func NewForwarder(updater Updater) *Forwarder {
	return &Forwarder{updater: updater}
}

func (f *Forwarder) VoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.VoiceState == nil {
		return
	}
	f.updater.UpdateVoiceState(v.GuildID, v.UserID, v.SessionID, v.ChannelID)
}

func (f *Forwarder) VoiceServerUpdate(_ *discordgo.Session, v *discordgo.VoiceServerUpdate) {
	slog.Debug("voice server update", "guildID", v.GuildID, "endpoint", v.Endpoint)
	f.updater.UpdateVoiceServer(v.GuildID, v.Token, v.Endpoint)
}

// Locator finds the voice channel a user is in from the gateway state
// cache.
type Locator struct {
	state *discordgo.State
}

func NewLocator(state *discordgo.State) *Locator {
	return &Locator{state: state}
}

func (l *Locator) UserVoiceChannel(guildID, userID string) (string, error) {
	vs, err := l.state.VoiceState(guildID, userID)
	if errors.Is(err, discordgo.ErrStateNotFound) || (err == nil && vs.ChannelID == "") {
		return "", ErrNotInVoice
	}
	if err != nil {
		return "", fmt.Errorf("unable to look up voice state: %w", err)
	}
	return vs.ChannelID, nil
}
