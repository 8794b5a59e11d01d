package handler

import (
	"log/slog"

	"github.com/Ryuzii/FerraEura/internal/events"
	"github.com/Ryuzii/FerraEura/internal/presenters"
	"github.com/Ryuzii/FerraEura/internal/session"
	"github.com/bwmarrin/discordgo"
)

// MessageSender posts to text channels. *discordgo.Session implements it.
type MessageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ MessageSender = (*discordgo.Session)(nil)

type SessionLookup interface {
	Session(guildID string) *session.Session
}

// NewAnnouncer posts playback changes to each session's text channel.
// Messages are sent off the event goroutine.
func NewAnnouncer(sender MessageSender, sessions SessionLookup) events.Handler {
	channelOf := func(guildID string) (*session.Session, string) {
		s := sessions.Session(guildID)
		if s == nil || s.TextChannelID() == "" {
			return nil, ""
		}
		return s, s.TextChannelID()
	}

	return func(e events.Event) {
		switch e := e.(type) {
		case events.TrackStarted:
			s, channel := channelOf(e.GuildID)
			if s == nil {
				return
			}
			embed := presenters.NowPlayingEmbed(e.Track, s.BoundTo())
			go func() {
				if _, err := sender.ChannelMessageSendEmbed(channel, embed); err != nil {
					slog.Warn("Failed to announce track", "guildID", e.GuildID, "error", err)
				}
			}()
		case events.QueueEnded:
			send(sender, channelOf, e.GuildID, "Queue finished.")
		case events.TrackException:
			title := "the track"
			if e.Track != nil {
				title = "**" + e.Track.Info.Title + "**"
			}
			send(sender, channelOf, e.GuildID, "Couldn't play "+title+": "+e.Exception.Message)
		}
	}
}

func send(sender MessageSender, channelOf func(string) (*session.Session, string), guildID, content string) {
	_, channel := channelOf(guildID)
	if channel == "" {
		return
	}
	go func() {
		if _, err := sender.ChannelMessageSend(channel, content); err != nil {
			slog.Warn("Failed to send announcement", "guildID", guildID, "error", err)
		}
	}()
}
