// Package failover moves sessions off nodes that went away.
package failover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Ryuzii/FerraEura/internal/events"
	"github.com/Ryuzii/FerraEura/internal/session"
	"golang.org/x/sync/errgroup"
)

// SelectFunc picks the node a session should move to, never the excluded
// one. An empty exclude allows any node.
type SelectFunc func(exclude string) (session.Backend, error)

// SessionsFunc lists the live sessions.
type SessionsFunc func() []*session.Session

type Options struct {
	// Dynamic moves sessions to another node. Without it sessions stay
	// pinned to their node and come back with it.
	Dynamic bool
	// AutoResume replays the current track when a pinned session is bound
	// again to a node that lost its players.
	AutoResume bool
	// Timeout bounds each migration. Defaults to 10s.
	Timeout time.Duration
	// Concurrency caps parallel migrations. Zero means no limit.
	Concurrency int
	Events      events.Publisher
}

type Coordinator struct {
	sessions SessionsFunc
	selector SelectFunc
	opts     Options
	logger   *slog.Logger

	mu sync.Mutex
	// migrated holds, per failed node, the guilds already moved off it
	// since the node was last ready.
	migrated map[string]map[string]struct{}
}

func New(sessions SessionsFunc, selector SelectFunc, opts Options) *Coordinator {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Events == nil {
		opts.Events = events.Discard{}
	}
	return &Coordinator{
		sessions: sessions,
		selector: selector,
		opts:     opts,
		logger:   slog.Default().With("component", "failover"),
		migrated: make(map[string]map[string]struct{}),
	}
}

// claim returns the sessions bound to failed that no earlier signal for
// the same outage has taken.
func (c *Coordinator) claim(failed string) []*session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	done, ok := c.migrated[failed]
	if !ok {
		done = make(map[string]struct{})
		c.migrated[failed] = done
	}

	var claimed []*session.Session
	for _, s := range c.sessions() {
		if s.Destroyed() || s.BoundTo() != failed {
			continue
		}
		if _, seen := done[s.GuildID()]; seen {
			continue
		}
		done[s.GuildID()] = struct{}{}
		claimed = append(claimed, s)
	}
	return claimed
}

// NodeDown handles the loss of a node. Sessions are migrated concurrently
// and the first failed rebind is returned. Repeated signals for the same
// outage skip sessions already taken.
func (c *Coordinator) NodeDown(ctx context.Context, failed string) error {
	claimed := c.claim(failed)
	if len(claimed) == 0 {
		return nil
	}

	if !c.opts.Dynamic {
		for _, s := range claimed {
			s.Detach()
		}
		c.logger.Info("sessions pinned to lost node", "node", failed, "sessions", len(claimed))
		return nil
	}

	c.logger.Info("migrating sessions off node", "node", failed, "sessions", len(claimed))

	var g errgroup.Group
	if c.opts.Concurrency > 0 {
		g.SetLimit(c.opts.Concurrency)
	}
	for _, s := range claimed {
		g.Go(func() error {
			return c.migrate(ctx, s, failed)
		})
	}
	return g.Wait()
}

func (c *Coordinator) migrate(ctx context.Context, s *session.Session, from string) error {
	st := s.Detach()

	target, err := c.selector(from)
	if err != nil {
		c.logger.Warn("no node to migrate session to", "guildID", s.GuildID(), "from", from, "error", err)
		c.opts.Events.Publish(events.NoHealthyNode{GuildID: s.GuildID(), FailedNode: from})
		return nil
	}

	return c.rebind(ctx, s, target, st, from)
}

func (c *Coordinator) rebind(ctx context.Context, s *session.Session, target session.Backend, st session.State, from string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := s.Rebind(ctx, target, st); err != nil {
		c.opts.Events.Publish(events.SessionError{GuildID: s.GuildID(), Err: err})
		return fmt.Errorf("failed to move session %s to node %s: %w", s.GuildID(), target.Name(), err)
	}

	c.logger.Info("session migrated", "guildID", s.GuildID(), "from", from, "to", target.Name())
	c.opts.Events.Publish(events.SessionMigrated{GuildID: s.GuildID(), From: from, To: target.Name()})
	return nil
}

// NodeUp handles a node becoming ready. The node's outage record is
// cleared, sessions pinned to it come back, and with dynamic switching
// any unbound session is adopted. resumed tells whether the node kept its
// players across the reconnect.
func (c *Coordinator) NodeUp(ctx context.Context, backend session.Backend, resumed bool) error {
	name := backend.Name()

	c.mu.Lock()
	delete(c.migrated, name)
	c.mu.Unlock()

	var orphans []*session.Session
	for _, s := range c.sessions() {
		if s.Destroyed() || s.Backend() != nil {
			continue
		}
		if !c.opts.Dynamic && s.PinnedTo() != name {
			continue
		}
		orphans = append(orphans, s)
	}
	if len(orphans) == 0 {
		return nil
	}

	var g errgroup.Group
	if c.opts.Concurrency > 0 {
		g.SetLimit(c.opts.Concurrency)
	}
	for _, s := range orphans {
		g.Go(func() error {
			return c.adopt(ctx, s, backend, resumed)
		})
	}
	return g.Wait()
}

func (c *Coordinator) adopt(ctx context.Context, s *session.Session, backend session.Backend, resumed bool) error {
	from := s.PinnedTo()

	if c.opts.Dynamic {
		target, err := c.selector("")
		if err != nil {
			target = backend
		}
		return c.rebind(ctx, s, target, s.Export(), from)
	}

	// The node still runs the player, or nothing should be replayed.
	if resumed || !c.opts.AutoResume {
		s.Bind(backend)
		c.logger.Info("session back on its node", "guildID", s.GuildID(), "node", backend.Name())
		return nil
	}
	return c.rebind(ctx, s, backend, s.Export(), from)
}
