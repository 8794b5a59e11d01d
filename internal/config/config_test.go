package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ryuzii/FerraEura/internal/config"
	"github.com/Ryuzii/FerraEura/internal/registry"
	"github.com/google/go-cmp/cmp"
)

func TestLavalinkConfigDefaults(t *testing.T) {
	cfg, err := config.NewLavalinkConfigFromEnv()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.HealthTTL != 30*time.Second {
		t.Errorf("HealthTTL = %v, want 30s", cfg.HealthTTL)
	}
	if cfg.ResolveCacheSize != 200 || cfg.ResolveCacheTTL != 5*time.Minute {
		t.Errorf("resolve cache = %d/%v, want 200/5m", cfg.ResolveCacheSize, cfg.ResolveCacheTTL)
	}
	if cfg.DefaultSearchPlatform != "ytmsearch" {
		t.Errorf("DefaultSearchPlatform = %q, want ytmsearch", cfg.DefaultSearchPlatform)
	}
	if diff := cmp.Diff(registry.DefaultWeights, cfg.Weights.Registry()); diff != "" {
		t.Errorf("weights mismatch (-want +got):\n%s", diff)
	}
}

func TestLavalinkConfigWeightsFromEnv(t *testing.T) {
	t.Setenv("SCORE_WEIGHT_PING", "1.5")
	t.Setenv("SCORE_WEIGHT_PLAYERS", "0")
	t.Setenv("LAVALINK_DYNAMIC_SWITCHING", "false")

	cfg, err := config.NewLavalinkConfigFromEnv()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Weights.Ping != 1.5 {
		t.Errorf("Ping weight = %v, want 1.5", cfg.Weights.Ping)
	}
	if cfg.Weights.Players != 0 {
		t.Errorf("Players weight = %v, want 0", cfg.Weights.Players)
	}
	if cfg.DynamicSwitching {
		t.Error("DynamicSwitching should be false")
	}
}

func TestPersistenceConfigRejectsUnknownStore(t *testing.T) {
	t.Setenv("STATE_STORE", "floppy")
	if _, err := config.NewPersistenceConfigFromEnv(); err == nil {
		t.Fatal("expected an error for an unknown store")
	}
}

func TestPersistenceConfigRejectsBadCron(t *testing.T) {
	t.Setenv("STATE_STORE", "file")
	t.Setenv("STATE_SAVE_CRON", "every five minutes")
	if _, err := config.NewPersistenceConfigFromEnv(); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestParseNodes(t *testing.T) {
	data := []byte(`
nodes:
  - name: main
    host: lava.example.com
    password: youshallnotpass
    regions: [us-east, eu]
    resume: true
    resume_timeout: 90s
  - host: backup.example.com
    port: 443
    secure: true
`)

	nodes, err := config.ParseNodes(data)
	if err != nil {
		t.Fatalf("failed to parse nodes: %v", err)
	}

	want := []config.NodeConfig{
		{
			Name:           "main",
			Host:           "lava.example.com",
			Port:           2333,
			Password:       "youshallnotpass",
			Regions:        []string{"us-east", "eu"},
			Version:        "v4",
			Resume:         true,
			ResumeTimeout:  90 * time.Second,
			ReconnectDelay: config.DefaultReconnectDelay,
			ReconnectLimit: config.DefaultReconnectLimit,
			PingInterval:   config.DefaultPingInterval,
		},
		{
			Name:           "backup.example.com",
			Host:           "backup.example.com",
			Port:           443,
			Secure:         true,
			Version:        "v4",
			ResumeTimeout:  config.DefaultResumeTimeout,
			ReconnectDelay: config.DefaultReconnectDelay,
			ReconnectLimit: config.DefaultReconnectLimit,
			PingInterval:   config.DefaultPingInterval,
		},
	}
	if diff := cmp.Diff(want, nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}

	opts := nodes[0].Options()
	if opts.Name != "main" || !opts.Resume || opts.ResumeTimeout != 90*time.Second {
		t.Errorf("unexpected node options: %+v", opts)
	}
}

func TestParseNodesValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "empty", yaml: "nodes: []"},
		{name: "missing host", yaml: "nodes:\n  - name: a\n"},
		{name: "duplicate names", yaml: "nodes:\n  - {name: a, host: x}\n  - {name: a, host: y}\n"},
		{name: "bad port", yaml: "nodes:\n  - {host: x, port: 70000}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.ParseNodes([]byte(tt.yaml)); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLegacyNodesGetAResumeKey(t *testing.T) {
	nodes, err := config.ParseNodes([]byte("nodes:\n  - {name: old, host: x, version: v3, resume: true}\n  - {name: keyed, host: y, version: v3, resume: true, resume_key: mine}\n  - {name: new, host: z, resume: true}\n"))
	if err != nil {
		t.Fatalf("failed to parse nodes: %v", err)
	}
	if !strings.HasPrefix(nodes[0].ResumeKey, "ferraeura-") {
		t.Errorf("expected a generated resume key, got %q", nodes[0].ResumeKey)
	}
	if nodes[1].ResumeKey != "mine" {
		t.Errorf("expected the configured resume key to be kept, got %q", nodes[1].ResumeKey)
	}
	if nodes[2].ResumeKey != "" {
		t.Errorf("expected v4 nodes to resume by session id, got key %q", nodes[2].ResumeKey)
	}
}

func TestLoadNodesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	if err := os.WriteFile(path, []byte("nodes:\n  - host: localhost\n"), 0o600); err != nil {
		t.Fatalf("failed to write nodes file: %v", err)
	}
	nodes, err := config.LoadNodes(path)
	if err != nil {
		t.Fatalf("failed to load nodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Name != "localhost" {
		t.Errorf("unexpected nodes: %+v", nodes)
	}
}

func TestDiscordConfig(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DISCORD_CLIENT_ID", "123")

	t.Run("A guild or global mode is required", func(t *testing.T) {
		t.Setenv("DISCORD_GUILD_ID", "")
		if _, err := config.NewDiscordConfigFromEnv(); err == nil {
			t.Fatal("expected an error without a guild")
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("DISCORD_GUILD_ID", "guild")
		cfg, err := config.NewDiscordConfigFromEnv()
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}
		want := &config.DiscordConfig{Token: "token", GuildID: "guild", ClientID: "123", IdleTimeout: 5 * time.Minute}
		if diff := cmp.Diff(want, cfg); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestPostgresConfigDSN(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USERNAME", "user")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DATABASE", "ferraeura")

	cfg, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	want := "postgres://user:secret@db:5432/ferraeura?sslmode=disable&pool_max_conns=4"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q; want %q", got, want)
	}

	t.Setenv("POSTGRES_MAX_CONNS", "0")
	if _, err := config.NewPostgresConfigFromEnv(); err == nil {
		t.Error("expected an error for an empty pool")
	}
}
