package e2e_test

import (
	"sync"
	"testing"
	"time"

	"github.com/Ryuzii/FerraEura/internal/handler"
	"github.com/Ryuzii/FerraEura/internal/manager"
	"github.com/Ryuzii/FerraEura/internal/node"
	"github.com/Ryuzii/FerraEura/internal/nodetest"
	"github.com/Ryuzii/FerraEura/internal/voice"
	"github.com/bwmarrin/discordgo"
)

const (
	guildID = "74241007174813750"
	botID   = "bot"
	member  = "member"
)

type mockSession struct {
	mu    sync.Mutex
	Resps []*discordgo.InteractionResponse
	Edits []string
}

func (m *mockSession) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, opts ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resps = append(m.Resps, resp)
	return nil
}

func (m *mockSession) InteractionResponseEdit(i *discordgo.Interaction, wh *discordgo.WebhookEdit, opts ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edits = append(m.Edits, *wh.Content)
	return &discordgo.Message{}, nil
}

func (m *mockSession) lastEdit() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Edits) == 0 {
		return ""
	}
	return m.Edits[len(m.Edits)-1]
}

var _ handler.DiscordSession = (*mockSession)(nil)

// gateway stands in for Discord: joining a channel immediately delivers
// both voice updates back to the manager.
type gateway struct {
	m *manager.Manager
}

func (g *gateway) JoinChannel(guildID, channelID string, mute, deaf bool) error {
	if channelID != "" && g.m != nil {
		g.m.UpdateVoiceState(guildID, botID, "voice-"+guildID, channelID)
		g.m.UpdateVoiceServer(guildID, "token", "endpoint.discord.media")
	}
	return nil
}

type everyoneInLounge struct{}

func (everyoneInLounge) UserVoiceChannel(guildID, userID string) (string, error) {
	return "lounge", nil
}

var _ handler.VoiceLocator = everyoneInLounge{}
var _ voice.Updater = (*manager.Manager)(nil)

type bot struct {
	manager *manager.Manager
	handle  func(handler.DiscordSession, *discordgo.InteractionCreate)
}

func nodeOptions(name string, server *nodetest.Server) node.Options {
	return node.Options{
		Name:     name,
		Host:     server.Host(),
		Port:     server.Port(),
		Password: "youshallnotpass",

		ReconnectDelay: 50 * time.Millisecond,
		ReconnectLimit: 20,
	}
}

// startBot wires a manager to the interaction handler the way cmd/bot does
// and waits for ready nodes.
func startBot(t *testing.T, opts manager.Options, ready int) *bot {
	t.Helper()
	gw := &gateway{}
	opts.UserID = botID
	opts.Voice = gw
	m, err := manager.New(opts)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	gw.m = m
	t.Cleanup(m.Destroy)

	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("failed to start manager: %v", err)
	}
	waitFor(t, func() bool { return m.SystemHealth().ReadyNodes == ready })

	return &bot{
		manager: m,
		handle: handler.NewInteractionHandler(handler.Deps{
			Player:         m,
			Voice:          everyoneInLounge{},
			ConnectTimeout: time.Second,
		}),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func slash(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   guildID,
			ChannelID: "text",
			Member:    &discordgo.Member{User: &discordgo.User{ID: member}},
			Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: options},
		},
	}
}

func query(q string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  "query",
		Type:  discordgo.ApplicationCommandOptionString,
		Value: q,
	}
}

func patchedTrack(server *nodetest.Server, guildID, encoded string) bool {
	for _, p := range server.Patches() {
		if p.GuildID == guildID && p.Body.Track != nil && p.Body.Track.Encoded != nil && *p.Body.Track.Encoded == encoded {
			return true
		}
	}
	return false
}
