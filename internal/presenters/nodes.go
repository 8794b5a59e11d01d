package presenters

import (
	"fmt"
	"maps"
	"slices"

	"github.com/Ryuzii/FerraEura/internal/registry"
	"github.com/bwmarrin/discordgo"
)

const (
	colorHealthy  = 0x43b581
	colorDegraded = 0xfaa61a
	colorDown     = 0xf04747
)

// NodesEmbed summarizes the pool, one field per node ordered by name.
func NodesEmbed(health registry.SystemHealth) *discordgo.MessageEmbed {
	color := colorHealthy
	switch {
	case health.ReadyNodes == 0:
		color = colorDown
	case health.ReadyNodes < health.TotalNodes:
		color = colorDegraded
	}

	embed := &discordgo.MessageEmbed{
		Title: "Nodes",
		Description: fmt.Sprintf("%d/%d ready · %d players · %d playing · %.0fms average ping",
			health.ReadyNodes, health.TotalNodes, health.TotalPlayers, health.PlayingPlayers, health.AveragePing),
		Color: color,
	}
	for _, name := range slices.Sorted(maps.Keys(health.Nodes)) {
		embed.Fields = append(embed.Fields, nodeField(health.Nodes[name]))
	}
	return embed
}

func nodeField(h registry.HealthRecord) *discordgo.MessageEmbedField {
	if !h.Ready {
		return &discordgo.MessageEmbedField{Name: h.Node, Value: "offline"}
	}
	return &discordgo.MessageEmbedField{
		Name: h.Node,
		Value: fmt.Sprintf("score %.0f · cpu %.0f%% · mem %.0f%% · %d/%d playing · %.0fms",
			h.Score, h.CPULoad*100, h.MemoryUsage, h.Playing, h.Players, h.Ping),
	}
}
