package config

import (
	"errors"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for environment overrides, e.g. AUDIOLINK_BOT_TOKEN.
const EnvPrefix = "AUDIOLINK"

// ErrNoToken reports a missing bot token. It is a startup warning, not fatal:
// the dashboard keeps running without a chat connection.
var ErrNoToken = errors.New("no bot token provided")

// legacyEnv mirrors the variable names the Discord deployment used.
type legacyEnv struct {
	Token    string `envconfig:"DISCORD_BOT_TOKEN"`
	ClientID string `envconfig:"DISCORD_CLIENT_ID"`
}

// ApplyEnv overlays environment variables onto cfg.
// Legacy names are applied first so the AUDIOLINK_* names win.
func ApplyEnv(cfg *Config) error {
	var legacy legacyEnv
	if err := envconfig.Process("", &legacy); err != nil {
		return err
	}
	if strings.TrimSpace(legacy.Token) != "" {
		cfg.Bot.Token = legacy.Token
	}
	if strings.TrimSpace(legacy.ClientID) != "" {
		cfg.Bot.ApplicationID = legacy.ClientID
	}

	if err := envconfig.Process(EnvPrefix+"_BOT", &cfg.Bot); err != nil {
		return err
	}
	if err := envconfig.Process(EnvPrefix+"_TELEGRAM", &cfg.Telegram); err != nil {
		return err
	}
	if err := envconfig.Process(EnvPrefix+"_HTTP", &cfg.HTTP); err != nil {
		return err
	}
	return envconfig.Process(EnvPrefix+"_LOG", &cfg.Logging)
}
