package handler

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

func isCommand(i *discordgo.InteractionCreate, name string) bool {
	if i.Type != discordgo.InteractionApplicationCommand {
		return false
	}
	return i.ApplicationCommandData().Name == name
}

func NewPingFlow(player Player) *Flow {
	return &Flow{
		ID: "ping",
		Root: &Node{
			ID:      "ping",
			Matcher: func(i *discordgo.InteractionCreate) bool { return isCommand(i, "ping") },
			Handler: func(_ context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
				health := player.SystemHealth()
				content := fmt.Sprintf("Pong! %d/%d nodes ready.", health.ReadyNodes, health.TotalNodes)
				return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseChannelMessageWithSource,
					Data: &discordgo.InteractionResponseData{
						Content: content,
					},
				})
			},
		},
	}
}
