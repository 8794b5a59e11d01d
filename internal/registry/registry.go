// Package registry keeps the set of nodes and ranks them by health.
//
// Scores are cached per node for the health TTL and regional candidate
// lists per lower-cased region. Both caches are consulted before any
// recomputation and never serve an entry past its TTL. Only nodes that are
// ready are ever returned as candidates.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Ryuzii/FerraEura/internal/cache"
	"github.com/Ryuzii/FerraEura/internal/node"
	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/benbjohnson/clock"
)

var ErrNoNodeAvailable = errors.New("no node available")

// Member is what the registry needs from a node.
type Member interface {
	Name() string
	State() node.State
	Stats() protocol.Stats
	AveragePing() float64
	HasRegion(region string) bool
}

var _ Member = (*node.Node)(nil)

type Options struct {
	Weights Weights
	TTL     time.Duration
	Clock   clock.Clock
}

type Registry[N Member] struct {
	mu      sync.RWMutex
	nodes   map[string]N
	weights Weights
	clock   clock.Clock

	health  *cache.Cache[string, HealthRecord]
	regions *cache.Cache[string, []N]
}

func New[N Member](opts Options) *Registry[N] {
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights
	}
	if opts.TTL == 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Registry[N]{
		nodes:   make(map[string]N),
		weights: opts.Weights,
		clock:   opts.Clock,
		health:  cache.New[string, HealthRecord](cache.Options{TTL: opts.TTL, Clock: opts.Clock}),
		regions: cache.New[string, []N](cache.Options{TTL: opts.TTL, Clock: opts.Clock}),
	}
}

func (r *Registry[N]) Add(n N) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.nodes[n.Name()]; exists {
		return fmt.Errorf("node %q already registered", n.Name())
	}
	r.nodes[n.Name()] = n
	r.regions.Clear()
	return nil
}

func (r *Registry[N]) Remove(name string) (N, bool) {
	r.mu.Lock()
	n, ok := r.nodes[name]
	delete(r.nodes, name)
	r.mu.Unlock()

	r.Invalidate(name)
	return n, ok
}

func (r *Registry[N]) Get(name string) (N, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[name]
	return n, ok
}

// All returns every registered node ordered by name.
func (r *Registry[N]) All() []N {
	r.mu.RLock()
	all := make([]N, 0, len(r.nodes))
	for _, n := range r.nodes {
		all = append(all, n)
	}
	r.mu.RUnlock()

	slices.SortFunc(all, func(a, b N) int { return strings.Compare(a.Name(), b.Name()) })
	return all
}

func (r *Registry[N]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Health returns the cached record for n, computing it on a miss.
func (r *Registry[N]) Health(n N) HealthRecord {
	record, _ := r.health.GetOrCompute(n.Name(), func() (HealthRecord, error) {
		record := Score(n.Name(), n.Stats(), n.AveragePing(), r.weights)
		record.ComputedAt = r.clock.Now()
		return record, nil
	})
	record.Ready = n.State() == node.Ready
	return record
}

// Invalidate drops cached data for a node whose state changed.
func (r *Registry[N]) Invalidate(name string) {
	r.health.Delete(name)
	r.regions.Clear()
}

// LeastUsed returns ready nodes, healthiest first.
func (r *Registry[N]) LeastUsed() []N {
	return r.rank(r.All(), "")
}

// LeastUsedExcept is LeastUsed without the named node.
func (r *Registry[N]) LeastUsedExcept(exclude string) []N {
	return r.rank(r.All(), exclude)
}

func (r *Registry[N]) rank(nodes []N, exclude string) []N {
	type scored struct {
		n     N
		score float64
	}
	candidates := make([]scored, 0, len(nodes))
	for _, n := range nodes {
		if n.Name() == exclude || n.State() != node.Ready {
			continue
		}
		candidates = append(candidates, scored{n: n, score: r.Health(n).Score})
	}
	slices.SortStableFunc(candidates, func(a, b scored) int {
		switch {
		case a.score < b.score:
			return -1
		case a.score > b.score:
			return 1
		default:
			return strings.Compare(a.n.Name(), b.n.Name())
		}
	})

	ranked := make([]N, len(candidates))
	for i, c := range candidates {
		ranked[i] = c.n
	}
	return ranked
}

// Best returns the healthiest ready node.
func (r *Registry[N]) Best() (N, error) {
	return first(r.LeastUsed())
}

func (r *Registry[N]) BestExcept(exclude string) (N, error) {
	return first(r.LeastUsedExcept(exclude))
}

// FetchRegion returns ready nodes serving region, healthiest first. The
// match ignores case.
func (r *Registry[N]) FetchRegion(region string) []N {
	key := "region_" + strings.ToLower(region)
	cached, _ := r.regions.GetOrCompute(key, func() ([]N, error) {
		var matching []N
		for _, n := range r.All() {
			if n.HasRegion(region) {
				matching = append(matching, n)
			}
		}
		return r.rank(matching, ""), nil
	})

	// A node may have dropped since the list was cached.
	ready := make([]N, 0, len(cached))
	for _, n := range cached {
		if n.State() == node.Ready {
			ready = append(ready, n)
		}
	}
	return ready
}

// BestForRegion prefers the healthiest node in region and falls back to
// the healthiest node overall.
func (r *Registry[N]) BestForRegion(region string) (N, error) {
	if region != "" {
		if regional := r.FetchRegion(region); len(regional) > 0 {
			return regional[0], nil
		}
	}
	return r.Best()
}

func first[N any](nodes []N) (N, error) {
	if len(nodes) == 0 {
		var zero N
		return zero, ErrNoNodeAvailable
	}
	return nodes[0], nil
}

// NodesHealth reports every registered node, ready or not.
func (r *Registry[N]) NodesHealth() map[string]HealthRecord {
	report := make(map[string]HealthRecord)
	for _, n := range r.All() {
		report[n.Name()] = r.Health(n)
	}
	return report
}

type SystemHealth struct {
	TotalNodes     int
	ReadyNodes     int
	TotalPlayers   int
	PlayingPlayers int
	AveragePing    float64
	Nodes          map[string]HealthRecord
}

func (r *Registry[N]) SystemHealth() SystemHealth {
	nodes := r.NodesHealth()
	health := SystemHealth{TotalNodes: len(nodes), Nodes: nodes}

	var pingSum float64
	for _, record := range nodes {
		if !record.Ready {
			continue
		}
		health.ReadyNodes++
		health.TotalPlayers += record.Players
		health.PlayingPlayers += record.Playing
		pingSum += record.Ping
	}
	if health.ReadyNodes > 0 {
		health.AveragePing = pingSum / float64(health.ReadyNodes)
	}
	return health
}

// Clear forgets every node and cached entry.
func (r *Registry[N]) Clear() {
	r.mu.Lock()
	clear(r.nodes)
	r.mu.Unlock()
	r.health.Clear()
	r.regions.Clear()
}
