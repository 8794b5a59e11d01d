package manager

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/Ryuzii/FerraEura/internal/events"
	"github.com/Ryuzii/FerraEura/internal/node"
	"github.com/Ryuzii/FerraEura/internal/session"
)

// SessionOptions describe a new guild session.
type SessionOptions struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	// Region prefers nodes serving it, falling back to the best node.
	Region   string
	Mute     bool
	Deaf     bool
	Volume   int
	Loop     session.LoopMode
	Autoplay bool
	Queue    session.Queue
}

func (m *Manager) sessionOptions(opts SessionOptions) session.Options {
	return session.Options{
		GuildID:        opts.GuildID,
		VoiceChannelID: opts.VoiceChannelID,
		TextChannelID:  opts.TextChannelID,
		Mute:           opts.Mute,
		Deaf:           opts.Deaf,
		Volume:         opts.Volume,
		Loop:           opts.Loop,
		Autoplay:       opts.Autoplay,
		AutoResume:     m.opts.AutoResume,
		BatchDelay:     m.opts.BatchDelay,
		Queue:          opts.Queue,
		Resolver:       trackResolver{m: m},
		Recommender:    m.recommender,
		Voice:          m.opts.Voice,
		Status:         m.opts.Status,
		Events:         m.bus,
	}
}

// CreateSession returns the guild's session, creating it on the best node
// for the region when there is none.
func (m *Manager) CreateSession(opts SessionOptions) (*session.Session, error) {
	if opts.GuildID == "" {
		return nil, &ConfigError{Field: "GuildID", Reason: "required"}
	}
	if existing := m.Session(opts.GuildID); existing != nil {
		return existing, nil
	}

	n, err := m.registry.BestForRegion(opts.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to pick a node for guild %s: %w", opts.GuildID, err)
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return nil, ErrDestroyed
	}
	if existing, ok := m.sessions[opts.GuildID]; ok && !existing.Destroyed() {
		m.mu.Unlock()
		return existing, nil
	}
	s := session.New(m.sessionOptions(opts))
	s.Bind(n)
	m.sessions[opts.GuildID] = s
	m.mu.Unlock()

	m.logger.Info("session created", "guildID", opts.GuildID, "node", n.Name(), "region", opts.Region)
	m.bus.Publish(events.SessionCreated{GuildID: opts.GuildID, Node: n.Name()})
	return s, nil
}

// Session returns the live session of a guild, or nil.
func (m *Manager) Session(guildID string) *session.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[guildID]
	if !ok || s.Destroyed() {
		return nil
	}
	return s
}

// Sessions lists the live sessions ordered by guild.
func (m *Manager) Sessions() []*session.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	guilds := slices.Sorted(maps.Keys(m.sessions))
	list := make([]*session.Session, 0, len(guilds))
	for _, g := range guilds {
		if s := m.sessions[g]; !s.Destroyed() {
			list = append(list, s)
		}
	}
	return list
}

// SessionsOn lists the sessions bound to a node.
func (m *Manager) SessionsOn(name string) []*session.Session {
	var list []*session.Session
	for _, s := range m.Sessions() {
		if s.BoundTo() == name {
			list = append(list, s)
		}
	}
	return list
}

// DestroySession tears the guild's session down and deletes its player.
func (m *Manager) DestroySession(ctx context.Context, guildID string) error {
	s := m.Session(guildID)
	if s == nil {
		return nil
	}
	return s.Destroy(ctx)
}

func (m *Manager) forget(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[guildID]; ok && s.Destroyed() {
		delete(m.sessions, guildID)
	}
}

// UpdateVoiceState feeds a gateway voice state update. Updates for other
// users are ignored.
func (m *Manager) UpdateVoiceState(guildID, userID, sessionID, channelID string) {
	if userID != m.opts.UserID {
		return
	}
	if s := m.Session(guildID); s != nil {
		s.SetVoiceState(sessionID, channelID)
	}
}

// UpdateVoiceServer feeds a gateway voice server update.
func (m *Manager) UpdateVoiceServer(guildID, token, endpoint string) {
	if s := m.Session(guildID); s != nil {
		s.SetVoiceServer(token, endpoint)
	}
}

// MoveSession rebinds a guild's session to the named node.
func (m *Manager) MoveSession(ctx context.Context, guildID, nodeName string) error {
	s := m.Session(guildID)
	if s == nil {
		return fmt.Errorf("failed to move session %s: %w", guildID, session.ErrDestroyed)
	}
	target, ok := m.registry.Get(nodeName)
	if !ok {
		return fmt.Errorf("failed to move session %s: %w", guildID, ErrUnknownNode)
	}
	if target.State() != node.Ready {
		return fmt.Errorf("failed to move session %s: node %s is %s", guildID, nodeName, target.State())
	}
	from := s.BoundTo()
	if from == nodeName {
		return nil
	}

	old := s.Backend()
	st := s.Detach()
	if old != nil {
		if err := old.DestroyPlayer(ctx, guildID); err != nil {
			m.logger.Warn("failed to destroy player on old node", "guildID", guildID, "node", from, "error", err)
		}
	}
	if err := s.Rebind(ctx, target, st); err != nil {
		return fmt.Errorf("failed to move session %s to %s: %w", guildID, nodeName, err)
	}
	m.bus.Publish(events.SessionMigrated{GuildID: guildID, From: from, To: nodeName})
	return nil
}
