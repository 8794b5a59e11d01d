package registry_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ryuzii/FerraEura/internal/node"
	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/Ryuzii/FerraEura/internal/registry"
	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
)

type fakeNode struct {
	mu      sync.Mutex
	name    string
	state   node.State
	stats   protocol.Stats
	ping    float64
	regions []string
}

func (f *fakeNode) Name() string { return f.name }

func (f *fakeNode) State() node.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeNode) setState(s node.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeNode) Stats() protocol.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeNode) setStats(s protocol.Stats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = s
}

func (f *fakeNode) AveragePing() float64 { return f.ping }

func (f *fakeNode) HasRegion(region string) bool {
	for _, r := range f.regions {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

// withPlayers builds stats whose score is exactly 12*players with the
// default weights.
func withPlayers(players int) protocol.Stats {
	return protocol.Stats{Players: players}
}

func names(nodes []*fakeNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.name
	}
	return out
}

func TestScore(t *testing.T) {
	stats := protocol.Stats{
		Players:        3,
		PlayingPlayers: 2,
		CPU:            protocol.CPU{Cores: 4, SystemLoad: 0.4},
		FrameStats:     &protocol.FrameStats{Deficit: 0},
	}

	record := registry.Score("a", stats, 0, registry.DefaultWeights)

	if record.Penalties != 6 {
		t.Errorf("expected penalties 6, got %v", record.Penalties)
	}
	// 6*10 + 0.1*100 + 0 + 0 + 3*2 + 2*5
	if record.Score != 86 {
		t.Errorf("expected score 86, got %v", record.Score)
	}
}

func TestScoreIsMonotonic(t *testing.T) {
	base := protocol.Stats{
		Players:        2,
		PlayingPlayers: 1,
		CPU:            protocol.CPU{Cores: 2, SystemLoad: 0.5},
		FrameStats:     &protocol.FrameStats{Deficit: 1},
	}
	baseScore := registry.Score("a", base, 10, registry.DefaultWeights).Score

	tests := []struct {
		name   string
		mutate func(*protocol.Stats)
	}{
		{"cpu load", func(s *protocol.Stats) { s.CPU.SystemLoad = 1.5 }},
		{"playing players", func(s *protocol.Stats) { s.PlayingPlayers = 2 }},
		{"frame deficit", func(s *protocol.Stats) { s.FrameStats = &protocol.FrameStats{Deficit: 40} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := base
			tt.mutate(&stats)
			if got := registry.Score("a", stats, 10, registry.DefaultWeights).Score; got <= baseScore {
				t.Errorf("score should increase: base %v, got %v", baseScore, got)
			}
		})
	}
}

func TestScoreWithoutCoresOrMemory(t *testing.T) {
	record := registry.Score("a", protocol.Stats{CPU: protocol.CPU{SystemLoad: 1}}, 0, registry.DefaultWeights)
	if record.Score != 0 {
		t.Errorf("expected score 0 for empty stats, got %v", record.Score)
	}
}

func TestLeastUsedExcludesUnreadyNodes(t *testing.T) {
	r := registry.New[*fakeNode](registry.Options{})
	a := &fakeNode{name: "a", state: node.Ready, stats: withPlayers(25)}
	b := &fakeNode{name: "b", state: node.Disconnected, stats: withPlayers(10)}
	c := &fakeNode{name: "c", state: node.Ready, stats: withPlayers(5)}
	for _, n := range []*fakeNode{a, b, c} {
		if err := r.Add(n); err != nil {
			t.Fatalf("failed to add node: %v", err)
		}
	}

	if diff := cmp.Diff([]string{"c", "a"}, names(r.LeastUsed())); diff != "" {
		t.Errorf("LeastUsed() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, names(r.LeastUsedExcept("c"))); diff != "" {
		t.Errorf("LeastUsedExcept() mismatch (-want +got):\n%s", diff)
	}

	best, err := r.Best()
	if err != nil || best.name != "c" {
		t.Errorf("Best() = %v, %v", best, err)
	}
}

func TestBestWithoutReadyNodes(t *testing.T) {
	r := registry.New[*fakeNode](registry.Options{})
	_ = r.Add(&fakeNode{name: "a", state: node.Reconnecting})

	if _, err := r.Best(); !errors.Is(err, registry.ErrNoNodeAvailable) {
		t.Errorf("expected ErrNoNodeAvailable, got %v", err)
	}
	if _, err := r.BestForRegion("us"); !errors.Is(err, registry.ErrNoNodeAvailable) {
		t.Errorf("expected ErrNoNodeAvailable, got %v", err)
	}
}

func TestHealthIsCachedForTTL(t *testing.T) {
	mock := clock.NewMock()
	r := registry.New[*fakeNode](registry.Options{TTL: 30 * time.Second, Clock: mock})
	a := &fakeNode{name: "a", state: node.Ready, stats: withPlayers(1)}
	_ = r.Add(a)

	if got := r.Health(a).Score; got != 12 {
		t.Fatalf("expected score 12, got %v", got)
	}

	a.setStats(withPlayers(2))
	mock.Add(29 * time.Second)
	if got := r.Health(a).Score; got != 12 {
		t.Errorf("expected cached score 12 within TTL, got %v", got)
	}

	mock.Add(time.Second)
	if got := r.Health(a).Score; got != 24 {
		t.Errorf("expected recomputed score 24 after TTL, got %v", got)
	}

	a.setStats(withPlayers(3))
	r.Invalidate("a")
	if got := r.Health(a).Score; got != 36 {
		t.Errorf("expected recomputed score 36 after invalidate, got %v", got)
	}
}

func TestRegionalSelection(t *testing.T) {
	r := registry.New[*fakeNode](registry.Options{})
	us := &fakeNode{name: "us", state: node.Ready, stats: withPlayers(20), regions: []string{"US-East"}}
	eu := &fakeNode{name: "eu", state: node.Ready, stats: withPlayers(1), regions: []string{"eu"}}
	_ = r.Add(us)
	_ = r.Add(eu)

	if diff := cmp.Diff([]string{"us"}, names(r.FetchRegion("us-east"))); diff != "" {
		t.Errorf("FetchRegion() mismatch (-want +got):\n%s", diff)
	}

	best, err := r.BestForRegion("US-EAST")
	if err != nil || best.name != "us" {
		t.Errorf("BestForRegion(US-EAST) = %v, %v", best, err)
	}

	best, err = r.BestForRegion("asia")
	if err != nil || best.name != "eu" {
		t.Errorf("BestForRegion(asia) should fall back to global best, got %v, %v", best, err)
	}

	// The cached regional list must not hand out a node that went down.
	us.setState(node.Disconnected)
	if got := r.FetchRegion("us-east"); len(got) != 0 {
		t.Errorf("expected no regional nodes, got %v", names(got))
	}
	best, err = r.BestForRegion("us-east")
	if err != nil || best.name != "eu" {
		t.Errorf("BestForRegion() after outage = %v, %v", best, err)
	}
}

func TestSystemHealth(t *testing.T) {
	r := registry.New[*fakeNode](registry.Options{})
	_ = r.Add(&fakeNode{name: "a", state: node.Ready, ping: 10, stats: protocol.Stats{Players: 2, PlayingPlayers: 1}})
	_ = r.Add(&fakeNode{name: "b", state: node.Ready, ping: 30, stats: protocol.Stats{Players: 4, PlayingPlayers: 3}})
	_ = r.Add(&fakeNode{name: "c", state: node.Disconnected, ping: 500, stats: protocol.Stats{Players: 9}})

	health := r.SystemHealth()
	if health.TotalNodes != 3 || health.ReadyNodes != 2 {
		t.Errorf("unexpected node counts: %+v", health)
	}
	if health.TotalPlayers != 6 || health.PlayingPlayers != 4 {
		t.Errorf("unexpected player counts: %+v", health)
	}
	if health.AveragePing != 20 {
		t.Errorf("expected average ping 20, got %v", health.AveragePing)
	}
	if health.Nodes["c"].Ready {
		t.Errorf("node c should be reported as not ready")
	}
}

func TestAddRejectsDuplicates(t *testing.T) {
	r := registry.New[*fakeNode](registry.Options{})
	if err := r.Add(&fakeNode{name: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Add(&fakeNode{name: "a"}); err == nil {
		t.Error("expected duplicate name to be rejected")
	}
	if _, ok := r.Remove("a"); !ok {
		t.Error("expected node to be removed")
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}
