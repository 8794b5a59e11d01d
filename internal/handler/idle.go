package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ryuzii/FerraEura/internal/events"
	"github.com/Ryuzii/FerraEura/internal/schedule"
	"github.com/benbjohnson/clock"
)

// NewIdleLeaver leaves voice once a guild's queue has been finished for
// timeout. A track started in the meantime keeps the session.
func NewIdleLeaver(ctx context.Context, player Player, clk clock.Clock, timeout time.Duration) events.Handler {
	return func(e events.Event) {
		ended, ok := e.(events.QueueEnded)
		if !ok {
			return
		}
		s := player.Session(ended.GuildID)
		if s == nil {
			return
		}

		schedule.RunAt(ctx, clk, clk.Now().Add(timeout), func(ctx context.Context) {
			if player.Session(ended.GuildID) != s || s.Current() != nil {
				return
			}
			if err := player.DestroySession(ctx, ended.GuildID); err != nil {
				slog.Warn("failed to leave idle voice channel", "guildID", ended.GuildID, "error", err)
				return
			}
			slog.Info("Left idle voice channel", "guildID", ended.GuildID, "idle", timeout)
		})
	}
}
