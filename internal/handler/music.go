package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ryuzii/FerraEura/internal/manager"
	"github.com/Ryuzii/FerraEura/internal/presenters"
	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/Ryuzii/FerraEura/internal/session"
	"github.com/bwmarrin/discordgo"
)

type commands struct {
	deps Deps
}

func (c *commands) handle(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate) error {
	data := i.ApplicationCommandData()
	if data.Name == "play" {
		return c.play(ctx, s, i, data)
	}

	resp, err := c.run(ctx, i, data)
	if err != nil {
		return respond(s, i, userMessage(err))
	}
	return s.InteractionRespond(i.Interaction, resp)
}

func (c *commands) run(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) (*discordgo.InteractionResponse, error) {
	if data.Name == "nodes" {
		return embedResponse(presenters.NodesEmbed(c.deps.Player.SystemHealth())), nil
	}
	if data.Name == "leave" {
		if err := c.deps.Player.DestroySession(ctx, i.GuildID); err != nil {
			return nil, err
		}
		return presenters.Message("Left the voice channel."), nil
	}

	s := c.deps.Player.Session(i.GuildID)
	if s == nil {
		return nil, session.ErrNothingPlaying
	}

	switch data.Name {
	case "pause":
		if s.Current() == nil {
			return nil, session.ErrNothingPlaying
		}
		if err := s.Pause(); err != nil {
			return nil, err
		}
		return presenters.Message("Paused."), nil
	case "resume":
		if s.Current() == nil {
			return nil, session.ErrNothingPlaying
		}
		if err := s.Resume(); err != nil {
			return nil, err
		}
		return presenters.Message("Resumed."), nil
	case "skip":
		current := s.Current()
		if current == nil {
			return nil, session.ErrNothingPlaying
		}
		if err := s.Skip(); err != nil {
			return nil, err
		}
		return presenters.Message(fmt.Sprintf("Skipped **%s**.", current.Info.Title)), nil
	case "stop":
		s.Queue().Clear()
		if err := s.Stop(); err != nil {
			return nil, err
		}
		return presenters.Message("Stopped and cleared the queue."), nil
	case "volume":
		option, err := requiredOption(data.Options, "level", discordgo.ApplicationCommandOptionInteger)
		if err != nil {
			return nil, err
		}
		level := int(option.IntValue())
		if err := s.SetVolume(level); err != nil {
			return nil, err
		}
		return presenters.Message(fmt.Sprintf("Volume set to %d.", level)), nil
	case "loop":
		option, err := requiredOption(data.Options, "mode", discordgo.ApplicationCommandOptionString)
		if err != nil {
			return nil, err
		}
		mode := session.LoopMode(option.StringValue())
		if err := s.SetLoop(mode); err != nil {
			return nil, err
		}
		return presenters.Message(fmt.Sprintf("Loop mode: %s.", mode)), nil
	case "autoplay":
		option, err := requiredOption(data.Options, "enabled", discordgo.ApplicationCommandOptionBoolean)
		if err != nil {
			return nil, err
		}
		enabled := option.BoolValue()
		s.SetAutoplay(enabled)
		if enabled {
			return presenters.Message("Autoplay on."), nil
		}
		return presenters.Message("Autoplay off."), nil
	case "queue":
		return embedResponse(presenters.QueueEmbed(s.Current(), s.Queue().Tracks())), nil
	default:
		return nil, &UserError{Message: "Unknown command."}
	}
}

// play defers the reply because joining voice and loading can outlast the
// interaction deadline.
func (c *commands) play(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	var attachments map[string]*discordgo.MessageAttachment
	if data.Resolved != nil {
		attachments = data.Resolved.Attachments
	}
	req, err := CommandToPlayRequest(attachments, data.Options)
	if err != nil {
		return respond(s, i, userMessage(err))
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		return fmt.Errorf("failed to defer play: %w", err)
	}

	content, err := c.load(ctx, i, req)
	if err != nil {
		content = userMessage(err)
	}
	return editReply(s, i, content)
}

func (c *commands) load(ctx context.Context, i *discordgo.InteractionCreate, req *PlayRequest) (string, error) {
	result, err := c.deps.Player.Resolve(ctx, req.Query, req.Source)
	if err != nil {
		return "", err
	}
	tracks, playlist, err := result.Tracks()
	if err != nil {
		return "", fmt.Errorf("failed to decode load result: %w", err)
	}
	if result.LoadType == protocol.LoadTypeSearch && len(tracks) > 1 {
		tracks = tracks[:1]
	}
	return enqueue(ctx, c.deps, i, tracks, playlist)
}

// enqueue joins the member's voice channel if needed, queues the tracks
// and starts playback when nothing is playing.
func enqueue(ctx context.Context, deps Deps, i *discordgo.InteractionCreate, tracks []protocol.Track, playlist *protocol.PlaylistInfo) (string, error) {
	if len(tracks) == 0 {
		return "", manager.ErrNoMatches
	}
	s, err := joinedSession(ctx, deps, i)
	if err != nil {
		return "", err
	}

	requester, _ := json.Marshal(map[string]string{"requester": userID(i)})
	for k := range tracks {
		if tracks[k].UserData == nil {
			tracks[k].UserData = requester
		}
	}

	idle := s.Current() == nil
	s.Queue().Push(tracks...)
	if idle {
		if err := s.Play(ctx); err != nil {
			return "", err
		}
	}

	switch {
	case playlist != nil:
		return fmt.Sprintf("Queued %d tracks from **%s**.", len(tracks), playlist.Name), nil
	case idle:
		return fmt.Sprintf("Now playing **%s**.", tracks[0].Info.Title), nil
	default:
		return fmt.Sprintf("Queued **%s** at position %d.", tracks[0].Info.Title, s.Queue().Len()), nil
	}
}

func joinedSession(ctx context.Context, deps Deps, i *discordgo.InteractionCreate) (*session.Session, error) {
	channelID, err := deps.Voice.UserVoiceChannel(i.GuildID, userID(i))
	if err != nil {
		return nil, err
	}
	s, err := deps.Player.CreateSession(manager.SessionOptions{
		GuildID:        i.GuildID,
		VoiceChannelID: channelID,
		TextChannelID:  i.ChannelID,
	})
	if err != nil {
		return nil, err
	}
	if s.Connected() {
		return s, nil
	}
	if err := s.SetVoiceChannel(ctx, channelID); err != nil {
		return nil, err
	}
	return s, waitConnected(ctx, s, deps.ConnectTimeout)
}

func waitConnected(ctx context.Context, s *session.Session, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !s.Connected() {
		select {
		case <-ctx.Done():
			return session.ErrNotConnected
		case <-ticker.C:
		}
	}
	return nil
}

func requiredOption(
	options []*discordgo.ApplicationCommandInteractionDataOption,
	name string,
	typ discordgo.ApplicationCommandOptionType,
) (*discordgo.ApplicationCommandInteractionDataOption, error) {
	for _, option := range options {
		if option.Name == name && option.Type == typ {
			return option, nil
		}
	}
	return nil, &UserError{Message: fmt.Sprintf("The %s option is required.", name)}
}

func respond(s DiscordSession, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, presenters.Message(content))
}

func editReply(s DiscordSession, i *discordgo.InteractionCreate, content string) error {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &[]discordgo.MessageComponent{},
	})
	return err
}

func embedResponse(embed *discordgo.MessageEmbed) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	}
}
