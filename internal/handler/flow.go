package handler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Ryuzii/FerraEura/internal/cache"
	"github.com/Ryuzii/FerraEura/internal/generator"
	"github.com/bwmarrin/discordgo"
)

func InstanceIDFromInteraction(i *discordgo.InteractionCreate) string {
	var customID string

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		customID = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		customID = i.ModalSubmitData().CustomID
	default:
		return ""
	}

	return InstanceIDFromCustomID(customID)
}

func InstanceIDFromCustomID(customID string) string {
	parts := strings.SplitN(customID, ":", 2)
	if len(parts) != 2 {
		return ""
	}

	return parts[1]
}

type FlowContext struct {
	InstanceID string
	State      map[string]any
}

type FlowHandler func(context.Context, DiscordSession, *discordgo.InteractionCreate, *FlowContext) error

type Node struct {
	ID      string
	Matcher func(*discordgo.InteractionCreate) bool
	Handler FlowHandler
	Next    []*Node
}

type Flow struct {
	ID   string
	Root *Node
}

type instance struct {
	flow *Flow
	node *Node
	ctx  *FlowContext
}

// FlowInstanceTTL is how long an unfinished flow waits for its next step.
const FlowInstanceTTL = 15 * time.Minute

type FlowManager struct {
	flowsMu sync.RWMutex
	flows   map[string]*Flow
	order   []string

	// Abandoned instances expire instead of piling up.
	instances *cache.Cache[string, *instance]

	idGenerator generator.Generator[string]
}

func NewFlowManager(idGenerator generator.Generator[string]) *FlowManager {
	if idGenerator == nil {
		idGenerator = &generator.UUIDV4Generator{}
	}
	return &FlowManager{
		flows:       make(map[string]*Flow),
		instances:   cache.New[string, *instance](cache.Options{TTL: FlowInstanceTTL}),
		idGenerator: idGenerator,
	}
}

func (fm *FlowManager) RegisterFlow(flow *Flow) {
	fm.flowsMu.Lock()
	defer fm.flowsMu.Unlock()

	if _, exists := fm.flows[flow.ID]; exists {
		panic("flow already registered")
	}
	fm.flows[flow.ID] = flow
	fm.order = append(fm.order, flow.ID)
}

// Router advances the flow instance the interaction belongs to, or starts
// the first flow whose root matches. It reports whether any flow took the
// interaction.
func (fm *FlowManager) Router(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate) (bool, error) {
	instanceID := InstanceIDFromInteraction(i)
	if instanceID != "" {
		if inst, inFlow := fm.instances.Get(instanceID); inFlow {
			return true, fm.advance(ctx, s, i, inst)
		}
	}

	return fm.initializeFlow(ctx, s, i)
}

func (fm *FlowManager) advance(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, inst *instance) error {
	finishFlow := func() {
		fm.instances.Delete(inst.ctx.InstanceID)
	}

	if len(inst.node.Next) == 0 {
		finishFlow()
		return nil
	}

	var nextNode *Node
	for _, n := range inst.node.Next {
		if n.Matcher(i) {
			nextNode = n
			break
		}
	}
	if nextNode == nil {
		return nil
	}

	inst.node = nextNode
	if len(nextNode.Next) == 0 {
		finishFlow()
	}
	return nextNode.Handler(ctx, s, i, inst.ctx)
}

func (fm *FlowManager) initializeFlow(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate) (bool, error) {
	fm.flowsMu.RLock()
	var f *Flow
	for _, id := range fm.order {
		if flow := fm.flows[id]; flow.Root.Matcher(i) {
			f = flow
			break
		}
	}
	fm.flowsMu.RUnlock()
	if f == nil {
		return false, nil
	}

	instanceID, err := fm.idGenerator.Next()
	if err != nil {
		return true, fmt.Errorf("failed to generate instance ID: %w", err)
	}

	flowCtx := &FlowContext{
		InstanceID: instanceID,
		State:      make(map[string]any),
	}
	if len(f.Root.Next) > 0 {
		fm.instances.Set(instanceID, &instance{flow: f, node: f.Root, ctx: flowCtx})
	}

	return true, f.Root.Handler(ctx, s, i, flowCtx)
}

// Pending counts the flow instances waiting for a next step.
func (fm *FlowManager) Pending() int {
	return fm.instances.Len()
}
