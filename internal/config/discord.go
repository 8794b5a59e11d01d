package config

import (
	"fmt"
	"time"
)

type DiscordConfig struct {
	Token          string `env:"DISCORD_TOKEN, required"`
	GuildID        string `env:"DISCORD_GUILD_ID"`
	RunBotGlobally bool   `env:"DISCORD_RUN_BOT_GLOBALLY"`
	// ClientID is the bot's user id, sent to nodes as User-Id.
	ClientID string `env:"DISCORD_CLIENT_ID, required"`
	// IdleTimeout is how long the bot stays in voice after its queue ends.
	// Zero keeps it there.
	IdleTimeout time.Duration `env:"DISCORD_IDLE_TIMEOUT, default=5m"`
}

func NewDiscordConfigFromEnv() (*DiscordConfig, error) {
	return fromEnv[DiscordConfig]()
}

func (c *DiscordConfig) validate() error {
	if c.GuildID == "" && !c.RunBotGlobally {
		return fmt.Errorf("refusing to run the bot without a guild ID unless DISCORD_RUN_BOT_GLOBALLY is set to true")
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("DISCORD_IDLE_TIMEOUT must not be negative")
	}
	return nil
}
