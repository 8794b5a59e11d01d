package manager

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/Ryuzii/FerraEura/internal/node"
	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/Ryuzii/FerraEura/internal/session"
)

func isURL(query string) bool {
	return strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://")
}

// Resolve searches or loads query on the best node. URLs are loaded as
// they are; anything else is searched on source, or on the default search
// platform when source is empty. Successful results are cached.
func (m *Manager) Resolve(ctx context.Context, query, source string) (*protocol.LoadResult, error) {
	n, err := m.registry.Best()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", query, err)
	}
	return m.resolveOn(ctx, n, query, source)
}

// ResolveOn is Resolve against a specific node.
func (m *Manager) ResolveOn(ctx context.Context, nodeName, query, source string) (*protocol.LoadResult, error) {
	n, ok := m.registry.Get(nodeName)
	if !ok {
		return nil, fmt.Errorf("failed to resolve %q: %w", query, ErrUnknownNode)
	}
	return m.resolveOn(ctx, n, query, source)
}

func (m *Manager) resolveOn(ctx context.Context, n *node.Node, query, source string) (*protocol.LoadResult, error) {
	if source == "" {
		source = m.opts.DefaultSearchPlatform
	}
	identifier := query
	if !isURL(query) {
		identifier = source + ":" + query
	}

	if cached, ok := m.resolved.Get(identifier); ok {
		m.logger.Debug("resolve cache hit", "identifier", identifier)
		return cached, nil
	}

	result, err := n.LoadTracks(ctx, identifier)
	if (err != nil || result.LoadType == protocol.LoadTypeError) && isURL(query) {
		// Some sources only answer URLs as a search.
		fallback := source + ":" + query
		m.logger.Debug("load failed, retrying as search", "node", n.Name(), "identifier", fallback, "error", err)
		result, err = n.LoadTracks(ctx, fallback)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tracks on %s: %w", n.Name(), err)
	}
	if exception := result.Exception(); exception != nil {
		return nil, &LoadError{Identifier: identifier, Exception: *exception}
	}

	m.resolved.Set(identifier, result)
	return result, nil
}

// ClearResolveCache forgets every cached resolve result.
func (m *Manager) ClearResolveCache() {
	m.resolved.Clear()
}

// trackResolver finds a playable track for one that only carries metadata,
// preferring the official upload, then one of the same length.
type trackResolver struct {
	m *Manager
}

var _ session.Resolver = trackResolver{}

const lengthTolerance = 2000

func (r trackResolver) Resolve(ctx context.Context, track protocol.Track) (protocol.Track, error) {
	var parts []string
	for _, p := range []string{track.Info.Author, track.Info.Title} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	query := strings.Join(parts, " - ")
	if query == "" {
		return protocol.Track{}, fmt.Errorf("failed to resolve track: %w", ErrNoMatches)
	}

	result, err := r.m.Resolve(ctx, query, "")
	if err != nil {
		return protocol.Track{}, err
	}
	candidates, _, err := result.Tracks()
	if err != nil {
		return protocol.Track{}, fmt.Errorf("failed to decode tracks for %q: %w", query, err)
	}
	if len(candidates) == 0 {
		return protocol.Track{}, fmt.Errorf("failed to resolve %q: %w", query, ErrNoMatches)
	}

	chosen := pickCandidate(track.Info, candidates)
	chosen.UserData = track.UserData
	return chosen, nil
}

func pickCandidate(want protocol.TrackInfo, candidates []protocol.Track) protocol.Track {
	for _, c := range candidates {
		if want.Author != "" && (strings.EqualFold(c.Info.Author, want.Author) || strings.EqualFold(c.Info.Author, want.Author+" - Topic")) {
			return c
		}
		if want.Title != "" && strings.EqualFold(c.Info.Title, want.Title) {
			return c
		}
	}
	if want.Length > 0 {
		for _, c := range candidates {
			if c.Info.Length >= want.Length-lengthTolerance && c.Info.Length <= want.Length+lengthTolerance {
				return c
			}
		}
	}
	return candidates[0]
}

type resolver interface {
	Resolve(ctx context.Context, query, source string) (*protocol.LoadResult, error)
}

// MixRecommender picks a random track from the YouTube mix of the seed.
// Other sources get no recommendation.
type MixRecommender struct {
	resolver resolver
}

func NewMixRecommender(m *Manager) *MixRecommender {
	return &MixRecommender{resolver: m}
}

var _ session.Recommender = (*MixRecommender)(nil)

func (r *MixRecommender) Recommend(ctx context.Context, seed protocol.Track) (*protocol.Track, error) {
	if seed.Info.SourceName != "youtube" || seed.Info.Identifier == "" {
		return nil, nil
	}
	id := seed.Info.Identifier
	mix := "https://www.youtube.com/watch?v=" + id + "&list=RD" + id

	result, err := r.resolver.Resolve(ctx, mix, "ytmsearch")
	if err != nil {
		return nil, err
	}
	tracks, _, err := result.Tracks()
	if err != nil {
		return nil, fmt.Errorf("failed to decode mix for %s: %w", id, err)
	}

	others := make([]protocol.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Info.Identifier != id {
			others = append(others, t)
		}
	}
	if len(others) == 0 {
		return nil, nil
	}
	pick := others[rand.IntN(len(others))]
	return &pick, nil
}
