package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Ryuzii/FerraEura/internal/presenters"
	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/bwmarrin/discordgo"
)

const stateTracks = "tracks"

// NewSearchFlow offers search results in a select menu, then queues the
// picked track.
func NewSearchFlow(deps Deps) *Flow {
	pick := &Node{
		ID: "search_pick",
		Matcher: func(i *discordgo.InteractionCreate) bool {
			if i.Type != discordgo.InteractionMessageComponent {
				return false
			}
			return strings.HasPrefix(i.MessageComponentData().CustomID, presenters.ComponentIDTrackSelect+":")
		},
		Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
			tracks, _ := fc.State[stateTracks].([]protocol.Track)
			values := i.MessageComponentData().Values
			if len(values) != 1 {
				return fmt.Errorf("expected one selected track, got %d", len(values))
			}
			index, err := strconv.Atoi(values[0])
			if err != nil || index < 0 || index >= len(tracks) {
				return fmt.Errorf("invalid track selection %q", values[0])
			}

			if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseDeferredMessageUpdate,
			}); err != nil {
				return fmt.Errorf("failed to defer selection: %w", err)
			}
			content, err := enqueue(ctx, deps, i, tracks[index:index+1], nil)
			if err != nil {
				content = userMessage(err)
			}
			return editReply(s, i, content)
		},
	}

	return &Flow{
		ID: "search",
		Root: &Node{
			ID:      "search",
			Matcher: func(i *discordgo.InteractionCreate) bool { return isCommand(i, "search") },
			Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
				req, err := CommandToPlayRequest(nil, i.ApplicationCommandData().Options)
				if err != nil {
					return respond(s, i, userMessage(err))
				}
				result, err := deps.Player.Resolve(ctx, req.Query, req.Source)
				if err != nil {
					return respond(s, i, userMessage(err))
				}
				tracks, _, err := result.Tracks()
				if err != nil {
					return fmt.Errorf("failed to decode search results: %w", err)
				}
				fc.State[stateTracks] = tracks
				return s.InteractionRespond(i.Interaction, presenters.BuildSearchResultsResponse(tracks, fc.InstanceID))
			},
			Next: []*Node{pick},
		},
	}
}
