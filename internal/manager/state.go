package manager

import (
	"context"
	"fmt"

	"github.com/Ryuzii/FerraEura/internal/events"
	"github.com/Ryuzii/FerraEura/internal/node"
	"github.com/Ryuzii/FerraEura/internal/session"
)

// ExportStates snapshots every session with something to resume.
func (m *Manager) ExportStates() map[string]session.State {
	states := make(map[string]session.State)
	for _, s := range m.Sessions() {
		if st := s.Export(); st.Worth() {
			states[s.GuildID()] = st
		}
	}
	return states
}

// SaveState writes the whole state map to the store and returns how many
// sessions it holds.
func (m *Manager) SaveState(ctx context.Context) (int, error) {
	if m.opts.Store == nil {
		return 0, ErrNoStore
	}
	states := m.ExportStates()
	if err := m.opts.Store.Save(ctx, states); err != nil {
		return 0, fmt.Errorf("failed to save session states: %w", err)
	}
	m.logger.Debug("saved session states", "sessions", len(states))
	return len(states), nil
}

// LoadState recreates sessions from the store. A session goes back to the
// node it was on when that node is ready, else to the best node, else it
// waits unbound until a node becomes ready. Guilds that already have a
// session are skipped.
func (m *Manager) LoadState(ctx context.Context) (int, error) {
	if m.opts.Store == nil {
		return 0, ErrNoStore
	}
	states, err := m.opts.Store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load session states: %w", err)
	}

	loaded := 0
	for guildID, st := range states {
		if !st.Worth() || m.Session(guildID) != nil {
			continue
		}
		st.GuildID = guildID

		s := session.NewFromState(st, m.sessionOptions(SessionOptions{
			GuildID:        guildID,
			VoiceChannelID: st.Voice.ChannelID,
			TextChannelID:  st.TextChannelID,
		}))

		m.mu.Lock()
		if m.destroyed {
			m.mu.Unlock()
			return loaded, ErrDestroyed
		}
		m.sessions[guildID] = s
		m.mu.Unlock()
		loaded++

		target := m.restoreTarget(st.Node)
		if target == nil {
			m.logger.Info("restored session waits for a node", "guildID", guildID, "node", st.Node)
			continue
		}
		m.bus.Publish(events.SessionCreated{GuildID: guildID, Node: target.Name()})

		if m.opts.AutoResume && st.Current != nil {
			if err := s.Rebind(ctx, target, st); err != nil {
				m.logger.Warn("failed to resume restored session", "guildID", guildID, "node", target.Name(), "error", err)
			}
			continue
		}
		s.Bind(target)
	}

	m.logger.Info("loaded session states", "sessions", loaded)
	return loaded, nil
}

func (m *Manager) restoreTarget(pinned string) *node.Node {
	if n, ok := m.registry.Get(pinned); ok && n.State() == node.Ready {
		return n
	}
	n, err := m.registry.Best()
	if err != nil {
		return nil
	}
	return n
}
