// Package manager owns the node pool and every guild session of one bot.
//
// It is the node listener: socket frames are routed to the session bound
// to the reporting node, and ready or disconnect signals drive failover.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Ryuzii/FerraEura/internal/cache"
	"github.com/Ryuzii/FerraEura/internal/events"
	"github.com/Ryuzii/FerraEura/internal/failover"
	"github.com/Ryuzii/FerraEura/internal/node"
	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/Ryuzii/FerraEura/internal/registry"
	"github.com/Ryuzii/FerraEura/internal/repository"
	"github.com/Ryuzii/FerraEura/internal/session"
	"github.com/benbjohnson/clock"
)

type Options struct {
	// UserID is the bot's user id. Required.
	UserID     string
	ClientName string
	Nodes      []node.Options

	DynamicSwitching bool
	AutoResume       bool

	Weights   registry.Weights
	HealthTTL time.Duration

	ResolveCacheSize      int
	ResolveCacheTTL       time.Duration
	DefaultSearchPlatform string

	BatchDelay time.Duration
	// FailoverTimeout bounds each session migration.
	FailoverTimeout time.Duration

	Voice       session.VoiceGateway
	Recommender session.Recommender
	// MixAutoplay recommends from YouTube mixes when no Recommender is set.
	MixAutoplay bool
	Status      session.StatusSync
	Store       repository.StateStore

	Clock clock.Clock
}

func (o Options) withDefaults() Options {
	if o.ClientName == "" {
		o.ClientName = "FerraEura"
	}
	if o.HealthTTL == 0 {
		o.HealthTTL = 30 * time.Second
	}
	if o.ResolveCacheSize == 0 {
		o.ResolveCacheSize = 200
	}
	if o.ResolveCacheTTL == 0 {
		o.ResolveCacheTTL = 5 * time.Minute
	}
	if o.DefaultSearchPlatform == "" {
		o.DefaultSearchPlatform = "ytmsearch"
	}
	if o.FailoverTimeout == 0 {
		o.FailoverTimeout = 10 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

func (o Options) validate() error {
	if o.UserID == "" {
		return &ConfigError{Field: "UserID", Reason: "required"}
	}
	if o.ResolveCacheSize < 0 {
		return &ConfigError{Field: "ResolveCacheSize", Reason: "must not be negative"}
	}
	seen := make(map[string]struct{}, len(o.Nodes))
	for i, n := range o.Nodes {
		if n.Host == "" {
			return &ConfigError{Field: fmt.Sprintf("Nodes[%d].Host", i), Reason: "required"}
		}
		name := n.Name
		if name == "" {
			name = n.Host
		}
		if _, dup := seen[name]; dup {
			return &ConfigError{Field: fmt.Sprintf("Nodes[%d].Name", i), Reason: fmt.Sprintf("duplicate node %q", name)}
		}
		seen[name] = struct{}{}
	}
	return nil
}

type Manager struct {
	opts        Options
	identity    node.Identity
	registry    *registry.Registry[*node.Node]
	bus         *events.Bus
	failover    *failover.Coordinator
	resolved    *cache.Cache[string, *protocol.LoadResult]
	recommender session.Recommender
	logger      *slog.Logger

	mu        sync.RWMutex
	sessions  map[string]*session.Session
	started   bool
	destroyed bool
	stop      context.CancelFunc
}

var _ node.Listener = (*Manager)(nil)

func New(opts Options) (*Manager, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		opts:     opts,
		identity: node.Identity{UserID: opts.UserID, ClientName: opts.ClientName},
		registry: registry.New[*node.Node](registry.Options{
			Weights: opts.Weights,
			TTL:     opts.HealthTTL,
			Clock:   opts.Clock,
		}),
		bus: events.NewBus(),
		resolved: cache.New[string, *protocol.LoadResult](cache.Options{
			TTL:     opts.ResolveCacheTTL,
			MaxSize: opts.ResolveCacheSize,
			Clock:   opts.Clock,
		}),
		recommender: opts.Recommender,
		logger:      slog.Default().With("component", "manager"),
		sessions:    make(map[string]*session.Session),
	}
	if m.recommender == nil && opts.MixAutoplay {
		m.recommender = &MixRecommender{resolver: m}
	}
	m.failover = failover.New(m.Sessions, m.selectNode, failover.Options{
		Dynamic:    opts.DynamicSwitching,
		AutoResume: opts.AutoResume,
		Timeout:    opts.FailoverTimeout,
		Events:     m.bus,
	})
	m.bus.Subscribe(func(e events.Event) {
		if destroyed, ok := e.(events.SessionDestroyed); ok {
			m.forget(destroyed.GuildID)
		}
	})

	for _, n := range opts.Nodes {
		if _, err := m.addNode(n); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Start connects every node and starts cache sweeping. It returns at once;
// readiness is reported through NodeReady signals.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	ctx, m.stop = context.WithCancel(ctx)
	m.mu.Unlock()

	m.resolved.StartSweeper(ctx, m.opts.ResolveCacheTTL)
	for _, n := range m.registry.All() {
		m.connect(n)
	}
	return nil
}

func (m *Manager) connect(n *node.Node) {
	m.bus.Publish(events.NodeConnecting{Node: n.Name(), Attempt: n.ReconnectAttempts()})
	n.Connect()
}

// Subscribe registers h for every lifecycle signal.
func (m *Manager) Subscribe(h events.Handler) (unsubscribe func()) {
	return m.bus.Subscribe(h)
}

// AddNode registers a node and connects it when the manager is running.
func (m *Manager) AddNode(opts node.Options) (*node.Node, error) {
	n, err := m.addNode(opts)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	started := m.started && !m.destroyed
	m.mu.RUnlock()
	if started {
		m.connect(n)
	}
	return n, nil
}

func (m *Manager) addNode(opts node.Options) (*node.Node, error) {
	if opts.Host == "" {
		return nil, &ConfigError{Field: "Host", Reason: "required"}
	}
	n := node.New(opts, m.identity, m)
	if err := m.registry.Add(n); err != nil {
		n.Destroy()
		return nil, fmt.Errorf("failed to add node %s: %w", n.Name(), err)
	}
	m.logger.Info("node added", "node", n.Name(), "host", opts.Host, "port", n.Options().Port)
	m.bus.Publish(events.NodeAdded{Node: n.Name()})
	return n, nil
}

// RemoveNode destroys a node and moves its sessions elsewhere.
func (m *Manager) RemoveNode(ctx context.Context, name string) error {
	n, ok := m.registry.Remove(name)
	if !ok {
		return fmt.Errorf("failed to remove node %s: %w", name, ErrUnknownNode)
	}
	n.Destroy()
	m.bus.Publish(events.NodeRemoved{Node: name})
	return m.failover.NodeDown(ctx, name)
}

func (m *Manager) Node(name string) (*node.Node, bool) {
	return m.registry.Get(name)
}

func (m *Manager) Nodes() []*node.Node {
	return m.registry.All()
}

// LeastUsedNodes lists ready nodes, best first.
func (m *Manager) LeastUsedNodes() []*node.Node {
	return m.registry.LeastUsed()
}

func (m *Manager) NodesHealth() map[string]registry.HealthRecord {
	return m.registry.NodesHealth()
}

func (m *Manager) SystemHealth() registry.SystemHealth {
	return m.registry.SystemHealth()
}

func (m *Manager) selectNode(exclude string) (session.Backend, error) {
	n, err := m.registry.BestExcept(exclude)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (m *Manager) NodeReady(n *node.Node, resumed bool) {
	m.registry.Invalidate(n.Name())
	m.bus.Publish(events.NodeReady{Node: n.Name(), SessionID: n.SessionID(), Resumed: resumed})

	if err := m.failover.NodeUp(context.Background(), n, resumed); err != nil {
		m.logger.Error("failed to bring sessions back", "node", n.Name(), "error", err)
	}
}

func (m *Manager) NodeDisconnected(n *node.Node, err error, reconnecting bool) {
	m.registry.Invalidate(n.Name())
	m.bus.Publish(events.NodeDisconnected{Node: n.Name(), Err: err, Reconnecting: reconnecting})
	if err != nil {
		m.bus.Publish(events.NodeError{Node: n.Name(), Err: err})
	}

	if ferr := m.failover.NodeDown(context.Background(), n.Name()); ferr != nil {
		m.logger.Error("failed to move sessions off node", "node", n.Name(), "error", ferr)
	}
}

// NodeFrame hands a frame to the guild's session, but only while the
// session is bound to the node that sent it.
func (m *Manager) NodeFrame(n *node.Node, frame protocol.Frame) {
	if frame.GuildID == "" {
		return
	}
	s := m.Session(frame.GuildID)
	if s == nil || s.BoundTo() != n.Name() {
		m.logger.Debug("dropping frame for unbound guild", "node", n.Name(), "guildID", frame.GuildID, "op", frame.Op)
		return
	}
	s.HandleFrame(frame)
}

// Destroy shuts the manager down. Sessions are detached rather than
// destroyed so their remote players survive for a later resume.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	if m.stop != nil {
		m.stop()
	}
	sessions := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	clear(m.sessions)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Detach()
	}
	for _, n := range m.registry.All() {
		n.Destroy()
	}
	m.registry.Clear()
	m.resolved.Clear()
	m.logger.Info("manager destroyed", "sessions", len(sessions))
}
