package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ryuzii/FerraEura/internal/config"
	"github.com/Ryuzii/FerraEura/internal/handler"
	"github.com/Ryuzii/FerraEura/internal/manager"
	"github.com/Ryuzii/FerraEura/internal/node"
	"github.com/Ryuzii/FerraEura/internal/repository"
	"github.com/Ryuzii/FerraEura/internal/schedule"
	"github.com/Ryuzii/FerraEura/internal/voice"
	"github.com/benbjohnson/clock"
)

func runBotForever() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	discordCfg, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load discord config: %w", err)
	}
	lavalinkCfg, err := config.NewLavalinkConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load lavalink config: %w", err)
	}
	persistenceCfg, err := config.NewPersistenceConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load persistence config: %w", err)
	}
	nodeCfgs, err := config.LoadNodes(lavalinkCfg.NodesFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repository.Open(ctx, persistenceCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	nodes := make([]node.Options, 0, len(nodeCfgs))
	for _, n := range nodeCfgs {
		nodes = append(nodes, n.Options())
	}

	// Handlers that reach the manager are added once it exists.
	session, err := handler.NewSession(discordCfg.Token, handler.Handlers{Ready: handler.ReadyLog})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	m, err := manager.New(manager.Options{
		UserID:                discordCfg.ClientID,
		ClientName:            lavalinkCfg.ClientName,
		Nodes:                 nodes,
		DynamicSwitching:      lavalinkCfg.DynamicSwitching,
		AutoResume:            lavalinkCfg.AutoResume,
		Weights:               lavalinkCfg.Weights.Registry(),
		HealthTTL:             lavalinkCfg.HealthTTL,
		ResolveCacheSize:      lavalinkCfg.ResolveCacheSize,
		ResolveCacheTTL:       lavalinkCfg.ResolveCacheTTL,
		DefaultSearchPlatform: lavalinkCfg.DefaultSearchPlatform,
		BatchDelay:            lavalinkCfg.BatchDelay,
		Voice:                 voice.NewGateway(session),
		MixAutoplay:           true,
		Store:                 store,
	})
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	defer m.Destroy()

	forwarder := voice.NewForwarder(m)
	session.AddHandler(forwarder.VoiceStateUpdate)
	session.AddHandler(forwarder.VoiceServerUpdate)
	session.AddHandler(handler.ForDiscord(handler.NewInteractionHandler(handler.Deps{
		Player: m,
		Voice:  voice.NewLocator(session.State),
	})))
	m.Subscribe(handler.NewAnnouncer(session, m))
	if discordCfg.IdleTimeout > 0 {
		m.Subscribe(handler.NewIdleLeaver(ctx, m, clock.New(), discordCfg.IdleTimeout))
	}

	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("failed to start manager: %w", err)
	}

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close session", "error", err)
		}
	}()

	guildID := discordCfg.GuildID
	if discordCfg.RunBotGlobally {
		guildID = ""
	}
	if err := handler.EstablishCommands(session, guildID); err != nil {
		return err
	}

	if store != nil {
		restored, err := m.LoadState(ctx)
		if err != nil {
			slog.Error("failed to load saved sessions", "error", err)
		} else {
			slog.Info("Restored sessions", "count", restored)
		}

		err = schedule.Every(ctx, clock.New(), persistenceCfg.SaveCron, func(ctx context.Context) {
			if saved, err := m.SaveState(ctx); err != nil {
				slog.Error("failed to save sessions", "error", err)
			} else {
				slog.Debug("Saved sessions", "count", saved)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule state saves: %w", err)
		}
	}

	<-ctx.Done()
	slog.Info("Shutting down")

	if store != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if saved, err := m.SaveState(saveCtx); err != nil {
			slog.Error("failed to save sessions", "error", err)
		} else {
			slog.Info("Saved sessions", "count", saved)
		}
	}
	return nil
}

func main() {
	if err := runBotForever(); err != nil {
		log.Fatalf("failed to run bot: %v", err)
	}
}
