package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Ryuzii/FerraEura/internal/generator"
	"github.com/Ryuzii/FerraEura/internal/manager"
	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/Ryuzii/FerraEura/internal/registry"
	"github.com/Ryuzii/FerraEura/internal/session"
	"github.com/Ryuzii/FerraEura/internal/util"
	"github.com/bwmarrin/discordgo"
)

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)
type InteractionCreateHandler = func(*discordgo.Session, *discordgo.InteractionCreate)

// DiscordSession is the part of *discordgo.Session that interaction
// handlers reply through.
type DiscordSession interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, opts ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, wh *discordgo.WebhookEdit, opts ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ DiscordSession = (*discordgo.Session)(nil)

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("Bot is ready", "username", r.User.Username, "userID", r.User.ID, "guilds", len(r.Guilds))
}

// Player is what the commands need from the session manager.
type Player interface {
	CreateSession(opts manager.SessionOptions) (*session.Session, error)
	Session(guildID string) *session.Session
	DestroySession(ctx context.Context, guildID string) error
	Resolve(ctx context.Context, query, source string) (*protocol.LoadResult, error)
	SystemHealth() registry.SystemHealth
}

var _ Player = (*manager.Manager)(nil)

// VoiceLocator finds the voice channel a member is sitting in.
type VoiceLocator interface {
	UserVoiceChannel(guildID, userID string) (string, error)
}

type Deps struct {
	Player      Player
	Voice       VoiceLocator
	IDGenerator generator.Generator[string]
	// ConnectTimeout bounds the wait for the voice handshake after joining.
	ConnectTimeout time.Duration
	// CommandTimeout bounds the work behind one interaction.
	CommandTimeout time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.IDGenerator == nil {
		d.IDGenerator = &generator.UUIDV4Generator{}
	}
	if d.ConnectTimeout == 0 {
		d.ConnectTimeout = 10 * time.Second
	}
	if d.CommandTimeout == 0 {
		d.CommandTimeout = 30 * time.Second
	}
	return d
}

type PlayRequest struct {
	Query  string
	Source string
}

// CommandToPlayRequest reads the play options. An attached audio file is
// played by URL when no query is given.
func CommandToPlayRequest(
	attachments map[string]*discordgo.MessageAttachment,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) (*PlayRequest, error) {
	var req PlayRequest
	for _, option := range options {
		switch option.Name {
		case "query":
			if option.Type != discordgo.ApplicationCommandOptionString {
				return nil, fmt.Errorf("invalid type for query option")
			}
			req.Query = strings.TrimSpace(option.StringValue())
		case "source":
			if option.Type != discordgo.ApplicationCommandOptionString {
				return nil, fmt.Errorf("invalid type for source option")
			}
			req.Source = option.StringValue()
		}
	}

	if req.Query == "" {
		attachment, err := util.GetOne(attachments)
		switch {
		case errors.Is(err, util.ErrMultipleElements):
			return nil, &UserError{Message: "Attach a single audio file."}
		case err == nil:
			req.Query = attachment.URL
		}
	}
	if req.Query == "" {
		return nil, &UserError{Message: "Tell me what to play: a search, a link or an audio file."}
	}
	return &req, nil
}

// NewInteractionHandler routes interactions to the multi-step flows first
// and to the plain commands otherwise.
func NewInteractionHandler(deps Deps) func(DiscordSession, *discordgo.InteractionCreate) {
	deps = deps.withDefaults()

	flows := NewFlowManager(deps.IDGenerator)
	flows.RegisterFlow(NewPingFlow(deps.Player))
	flows.RegisterFlow(NewSearchFlow(deps))
	commands := &commands{deps: deps}

	return func(s DiscordSession, i *discordgo.InteractionCreate) {
		ctx, cancel := context.WithTimeout(context.Background(), deps.CommandTimeout)
		defer cancel()

		handled, err := flows.Router(ctx, s, i)
		if err == nil && !handled && i.Type == discordgo.InteractionApplicationCommand {
			err = commands.handle(ctx, s, i)
		}
		if err != nil {
			slog.Warn("Failed to handle interaction", "guildID", i.GuildID, "error", err)
		}
	}
}

// ForDiscord adapts an interaction handler to discordgo's handler shape.
func ForDiscord(h func(DiscordSession, *discordgo.InteractionCreate)) InteractionCreateHandler {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		h(s, i)
	}
}

type Handlers struct {
	Ready             ReadyHandler
	InteractionCreate InteractionCreateHandler
}

func NewSession(token string, handlers Handlers) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	if handlers.Ready != nil {
		s.AddHandler(handlers.Ready)
	}
	if handlers.InteractionCreate != nil {
		s.AddHandler(handlers.InteractionCreate)
	}

	return s, nil
}

func userID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
