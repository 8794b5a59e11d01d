package handler

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

var sourceChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "YouTube Music", Value: "ytmsearch"},
	{Name: "YouTube", Value: "ytsearch"},
	{Name: "SoundCloud", Value: "scsearch"},
	{Name: "Spotify", Value: "spsearch"},
}

var queryOptions = []*discordgo.ApplicationCommandOption{
	{
		Name:        "query",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "A search or a link.",
		Required:    false,
	},
	{
		Name:        "source",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "Where to search. Defaults to YouTube Music.",
		Required:    false,
		Choices:     sourceChoices,
	},
}

var playOptions = append(append([]*discordgo.ApplicationCommandOption{}, queryOptions...),
	&discordgo.ApplicationCommandOption{
		Name:        "file",
		Type:        discordgo.ApplicationCommandOptionAttachment,
		Description: "An audio file to play instead of a search.",
		Required:    false,
	},
)

// Commands is a list of all the commands the bot can handle.
// This is used to register the commands with Discord.
var Commands = []*discordgo.ApplicationCommand{
	{Name: "ping", Description: "Check the bot and its audio nodes"},
	{Name: "play", Description: "Play a track or add it to the queue", Options: playOptions},
	{
		Name:        "search",
		Description: "Search and pick a track to queue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "query",
				Type:        discordgo.ApplicationCommandOptionString,
				Description: "What to search for.",
				Required:    true,
			},
			queryOptions[1],
		},
	},
	{Name: "pause", Description: "Pause playback"},
	{Name: "resume", Description: "Resume playback"},
	{Name: "skip", Description: "Skip to the next track"},
	{Name: "stop", Description: "Stop playback and clear the queue"},
	{
		Name:        "volume",
		Description: "Set the volume",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "level",
				Type:        discordgo.ApplicationCommandOptionInteger,
				Description: "0 to 1000, 100 is unchanged.",
				Required:    true,
			},
		},
	},
	{
		Name:        "loop",
		Description: "Loop the track or the queue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "mode",
				Type:        discordgo.ApplicationCommandOptionString,
				Description: "What to loop.",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "Off", Value: "none"},
					{Name: "Track", Value: "track"},
					{Name: "Queue", Value: "queue"},
				},
			},
		},
	},
	{
		Name:        "autoplay",
		Description: "Keep playing related tracks when the queue runs out",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "enabled",
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Description: "Turn autoplay on or off.",
				Required:    true,
			},
		},
	},
	{Name: "queue", Description: "Show the queue"},
	{Name: "nodes", Description: "Show the health of the audio nodes"},
	{Name: "leave", Description: "Stop and leave the voice channel"},
}

// EstablishCommands registers the commands in a guild, or globally when
// guildID is empty.
func EstablishCommands(s *discordgo.Session, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands)
	if err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}
	return nil
}
