package handler_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/Ryuzii/FerraEura/internal/generator"
	"github.com/Ryuzii/FerraEura/internal/handler"
	"github.com/bwmarrin/discordgo"
)

type countingIDGenerator struct {
	n int
}

func (g *countingIDGenerator) Next() (string, error) {
	g.n++
	return fmt.Sprintf("instance-%d", g.n), nil
}

var _ generator.Generator[string] = (*countingIDGenerator)(nil)

func command(name string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{Name: name},
		},
	}
}

func component(customID string, values ...string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionMessageComponent,
			Data: discordgo.MessageComponentInteractionData{CustomID: customID, Values: values},
		},
	}
}

func TestFlowManagerRouting(t *testing.T) {
	var steps []string
	step := func(name string) handler.FlowHandler {
		return func(_ context.Context, _ handler.DiscordSession, _ *discordgo.InteractionCreate, fc *handler.FlowContext) error {
			steps = append(steps, name+"@"+fc.InstanceID)
			return nil
		}
	}

	fm := handler.NewFlowManager(&countingIDGenerator{})
	fm.RegisterFlow(&handler.Flow{
		ID: "pick",
		Root: &handler.Node{
			ID:      "start",
			Matcher: func(i *discordgo.InteractionCreate) bool { return i.Type == discordgo.InteractionApplicationCommand },
			Handler: step("start"),
			Next: []*handler.Node{{
				ID:      "choose",
				Matcher: func(i *discordgo.InteractionCreate) bool { return i.Type == discordgo.InteractionMessageComponent },
				Handler: step("choose"),
			}},
		},
	})
	session := &mockSession{}

	handled, err := fm.Router(t.Context(), session, command("pick"))
	if err != nil || !handled {
		t.Fatalf("expected the command to start a flow, handled=%v err=%v", handled, err)
	}
	if fm.Pending() != 1 {
		t.Fatalf("expected one pending flow, got %d", fm.Pending())
	}

	t.Run("Components of unknown instances are not handled", func(t *testing.T) {
		handled, err := fm.Router(t.Context(), session, component("menu:instance-99"))
		if err != nil || handled {
			t.Errorf("expected the component to be ignored, handled=%v err=%v", handled, err)
		}
	})

	handled, err = fm.Router(t.Context(), session, component("menu:instance-1", "0"))
	if err != nil || !handled {
		t.Fatalf("expected the component to advance the flow, handled=%v err=%v", handled, err)
	}

	want := []string{"start@instance-1", "choose@instance-1"}
	if fmt.Sprint(steps) != fmt.Sprint(want) {
		t.Errorf("expected steps %v, got %v", want, steps)
	}
	if fm.Pending() != 0 {
		t.Errorf("expected the finished flow to be forgotten, %d pending", fm.Pending())
	}
}

func TestInstanceIDFromCustomID(t *testing.T) {
	tests := map[string]string{
		"track_select:abc":   "abc",
		"track_select:a:b:c": "a:b:c",
		"track_select":       "",
		"":                   "",
	}
	for in, want := range tests {
		if got := handler.InstanceIDFromCustomID(in); got != want {
			t.Errorf("InstanceIDFromCustomID(%q) = %q; want %q", in, got, want)
		}
	}
}
