package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/Ryuzii/FerraEura/internal/config"
	"github.com/Ryuzii/FerraEura/internal/manager"
	"github.com/Ryuzii/FerraEura/internal/node"
	"github.com/Ryuzii/FerraEura/internal/repository"
	"github.com/Ryuzii/FerraEura/internal/schedule"
	"github.com/urfave/cli/v2"
)

var nodesFlag = &cli.StringFlag{
	Name:    "nodes",
	Usage:   "Path of the nodes YAML file",
	Value:   "nodes.yaml",
	EnvVars: []string{"LAVALINK_NODES_FILE"},
}

var waitFlag = &cli.DurationFlag{
	Name:  "wait",
	Usage: "How long to wait for nodes to become ready",
	Value: 10 * time.Second,
}

// startManager connects to the configured nodes without a Discord
// connection and waits until one is ready.
func startManager(c *cli.Context) (*manager.Manager, error) {
	nodeCfgs, err := config.LoadNodes(c.String(nodesFlag.Name))
	if err != nil {
		return nil, err
	}
	nodes := make([]node.Options, 0, len(nodeCfgs))
	for _, n := range nodeCfgs {
		// Resuming would keep players alive on the node after we exit.
		n.Resume = false
		nodes = append(nodes, n.Options())
	}

	m, err := manager.New(manager.Options{
		UserID:     c.String("user-id"),
		ClientName: "FerraEura-cli",
		Nodes:      nodes,
	})
	if err != nil {
		return nil, err
	}
	if err := m.Start(c.Context); err != nil {
		m.Destroy()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration(waitFlag.Name))
	defer cancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for m.SystemHealth().ReadyNodes == 0 {
		select {
		case <-ctx.Done():
			// Still return the manager so callers can report offline nodes.
			return m, nil
		case <-ticker.C:
		}
	}
	return m, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	app := &cli.App{
		Name:        "ferraeura-cli",
		Description: "A development CLI tool for poking at Lavalink nodes without Discord",
		Flags: []cli.Flag{
			nodesFlag,
			waitFlag,
			&cli.StringFlag{
				Name:    "user-id",
				Usage:   "User id sent to the nodes",
				Value:   "0",
				EnvVars: []string{"DISCORD_CLIENT_ID"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "nodes",
				Usage: "Connect to every node and print its health",
				Action: func(c *cli.Context) error {
					m, err := startManager(c)
					if err != nil {
						return cli.Exit("Failed to start: "+err.Error(), 1)
					}
					defer m.Destroy()

					health := m.SystemHealth()
					names := slices.Sorted(maps.Keys(health.Nodes))

					fmt.Printf("%d/%d nodes ready, average ping %.0fms\n", health.ReadyNodes, health.TotalNodes, health.AveragePing)
					for _, name := range names {
						record := health.Nodes[name]
						if !record.Ready {
							fmt.Printf("%-20s offline\n", name)
							continue
						}
						fmt.Printf("%-20s score %-8.0f cpu %3.0f%%  mem %3.0f%%  %d/%d playing  %.0fms\n",
							name, record.Score, record.CPULoad*100, record.MemoryUsage, record.Playing, record.Players, record.Ping)
					}
					return nil
				},
			},
			{
				Name:      "search",
				Usage:     "Resolve a query or URL on the best node",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: "Search prefix for non-URL queries, like ytsearch or scsearch",
					},
				},
				Action: func(c *cli.Context) error {
					query := c.Args().First()
					if query == "" {
						return cli.Exit("Please provide a query", 1)
					}
					m, err := startManager(c)
					if err != nil {
						return cli.Exit("Failed to start: "+err.Error(), 1)
					}
					defer m.Destroy()

					result, err := m.Resolve(c.Context, query, c.String("source"))
					if err != nil {
						return cli.Exit("Failed to resolve: "+err.Error(), 1)
					}
					tracks, playlist, err := result.Tracks()
					if err != nil {
						return cli.Exit("Failed to decode tracks: "+err.Error(), 1)
					}
					if playlist != nil {
						fmt.Printf("Playlist: %s\n", playlist.Name)
					}
					if len(tracks) == 0 {
						log.Println("No tracks found.")
						return nil
					}
					for i, t := range tracks {
						fmt.Printf("%2d. %s - %s [%s]\n", i+1, t.Info.Author, t.Info.Title, t.Info.SourceName)
					}
					return nil
				},
			},
			{
				Name:  "state",
				Usage: "Inspect saved session state",
				Subcommands: []*cli.Command{
					{
						Name:  "show",
						Usage: "Print the sessions held by the configured state store",
						Action: func(c *cli.Context) error {
							cfg, err := config.NewPersistenceConfigFromEnv()
							if err != nil {
								return cli.Exit("Failed to load persistence config: "+err.Error(), 1)
							}
							store, cleanup, err := repository.Open(c.Context, cfg)
							if err != nil {
								return cli.Exit("Failed to open state store: "+err.Error(), 1)
							}
							defer cleanup()
							if store == nil {
								return cli.Exit("STATE_STORE is none, nothing is saved", 1)
							}

							states, err := store.Load(c.Context)
							if err != nil {
								return cli.Exit("Failed to load state: "+err.Error(), 1)
							}
							if len(states) == 0 {
								log.Println("No saved sessions.")
								return nil
							}
							return printJSON(states)
						},
					},
				},
			},
			{
				Name:  "schedule",
				Usage: "Show when the periodic state save will next run",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "count",
						Usage: "Number of upcoming runs to print",
						Value: 5,
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.NewPersistenceConfigFromEnv()
					if err != nil {
						return cli.Exit("Failed to load persistence config: "+err.Error(), 1)
					}
					times, err := schedule.NextRunTimes(cfg.SaveCron, c.Int("count"))
					if err != nil {
						return cli.Exit("Invalid cron: "+err.Error(), 1)
					}
					fmt.Printf("STATE_SAVE_CRON %q\n", cfg.SaveCron)
					if gap, err := schedule.Interval(cfg.SaveCron, time.Now().UTC()); err == nil {
						fmt.Printf("Saves every %s\n", gap)
					}
					for _, t := range times {
						fmt.Println(t.Format(time.RFC1123))
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
