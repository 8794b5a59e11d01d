package presenters

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/bwmarrin/discordgo"
)

// Discord limits.
const (
	maxSelectOptions = 25
	maxLabelLength   = 100
	maxQueueLines    = 10
)

const ComponentIDTrackSelect = "track_select"

const colorPlaying = 0xe05d44

var noTracksFoundResponse = &discordgo.InteractionResponse{
	Type: discordgo.InteractionResponseChannelMessageWithSource,
	Data: &discordgo.InteractionResponseData{
		Content: "No tracks found",
	},
}

// Message is a plain text reply.
func Message(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	}
}

// FormatDuration renders milliseconds as m:ss, or h:mm:ss past an hour.
func FormatDuration(ms int64) string {
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func trackLength(t protocol.Track) string {
	if t.Info.IsStream {
		return "live"
	}
	return FormatDuration(t.Info.Length)
}

func trackToSelectMenuOption(index int, t protocol.Track) discordgo.SelectMenuOption {
	return discordgo.SelectMenuOption{
		Label:       truncate(t.Info.Title, maxLabelLength),
		Description: truncate(t.Info.Author+" · "+trackLength(t), maxLabelLength),
		Value:       strconv.Itoa(index),
	}
}

var trackSelectMinValues = 1

// BuildSearchResultsResponse offers the tracks in a select menu bound to a
// flow instance.
func BuildSearchResultsResponse(tracks []protocol.Track, instanceID string) *discordgo.InteractionResponse {
	if len(tracks) == 0 {
		return noTracksFoundResponse
	}

	var options []discordgo.SelectMenuOption
	for i, t := range tracks[:min(len(tracks), maxSelectOptions)] {
		options = append(options, trackToSelectMenuOption(i, t))
	}

	menu := discordgo.SelectMenu{
		CustomID:    ComponentIDTrackSelect + ":" + instanceID,
		Placeholder: "Select a track",
		MinValues:   &trackSelectMinValues,
		MaxValues:   1,
		Options:     options,
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Choose a track:",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{menu},
				},
			},
		},
	}
}

func NowPlayingEmbed(t protocol.Track, node string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Now playing",
		Description: trackLine(t),
		Color:       colorPlaying,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Length", Value: trackLength(t), Inline: true},
			{Name: "Source", Value: t.Info.SourceName, Inline: true},
		},
	}
	if node != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "node " + node}
	}
	if t.Info.ArtworkURL != nil {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: *t.Info.ArtworkURL}
	}
	return embed
}

func trackLine(t protocol.Track) string {
	title := t.Info.Title
	if t.Info.URI != nil {
		title = fmt.Sprintf("[%s](%s)", t.Info.Title, *t.Info.URI)
	}
	if t.Info.Author == "" {
		return title
	}
	return title + " by " + t.Info.Author
}

func QueueEmbed(current *protocol.Track, queue []protocol.Track) *discordgo.MessageEmbed {
	var b strings.Builder
	if current != nil {
		fmt.Fprintf(&b, "**Now:** %s\n\n", trackLine(*current))
	}
	if len(queue) == 0 {
		b.WriteString("The queue is empty.")
	}
	for i, t := range queue[:min(len(queue), maxQueueLines)] {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, trackLine(t), trackLength(t))
	}
	if rest := len(queue) - maxQueueLines; rest > 0 {
		fmt.Fprintf(&b, "...and %d more", rest)
	}
	return &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: strings.TrimRight(b.String(), "\n"),
	}
}
