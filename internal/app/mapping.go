package app

import (
	"fmt"
	"strings"
	"time"

	"audiolink/internal/bot"
	"audiolink/internal/config"
	"audiolink/internal/httpapi"
	"audiolink/internal/schedule"
	"audiolink/internal/transport"
	"audiolink/internal/transport/discord"
	"audiolink/internal/transport/telegram"
	logx "audiolink/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapHandlerOptions(cfg *config.Config) (bot.Options, error) {
	timeout, err := config.ParseDurationOrDefault("bot.reply_timeout", cfg.Bot.ReplyTimeout, 10*time.Second)
	if err != nil {
		return bot.Options{}, err
	}
	return bot.Options{
		ReplyTimeout:    timeout,
		ReplyRatePerSec: cfg.Bot.ReplyRatePerSec,
	}, nil
}

func mapSchedule(cfg *config.Config) schedule.Config {
	return schedule.Config{
		Enabled:    cfg.Schedule.Enabled,
		Timezone:   cfg.Schedule.Timezone,
		Activate:   cfg.Schedule.Activate,
		Deactivate: cfg.Schedule.Deactivate,
	}
}

func mapHTTP(cfg *config.Config) (httpapi.Config, error) {
	read, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 30*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{Addr: cfg.HTTP.Addr, ReadTimeout: read, WriteTimeout: write}, nil
}

// publicURL is where file proxy links point; it falls back to the local
// listen address, which is only useful for testing.
func publicURL(cfg *config.Config) string {
	if u := strings.TrimRight(strings.TrimSpace(cfg.HTTP.PublicURL), "/"); u != "" {
		return u
	}
	addr := cfg.HTTP.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// buildAdapter returns config.ErrNoToken when no token is configured.
func buildAdapter(cfg *config.Config, log logx.Logger) (transport.Adapter, error) {
	if strings.TrimSpace(cfg.Bot.Token) == "" {
		return nil, config.ErrNoToken
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Bot.Platform)) {
	case config.PlatformTelegram:
		poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		ttl, err := config.ParseDurationOrDefault("telegram.ephemeral_ttl", cfg.Telegram.EphemeralTTL, 15*time.Second)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(cfg.HTTP.PublicURL) == "" {
			log.Warn("http.public_url not set; file links will point at the local listen address")
		}
		ad, err := telegram.New(telegram.Config{
			Token:        cfg.Bot.Token,
			PollTimeout:  poll,
			EphemeralTTL: ttl,
			PublicURL:    publicURL(cfg),
		}, log)
		if err != nil {
			return nil, err
		}
		return ad, nil
	case config.PlatformDiscord, "":
		ad, err := discord.New(discord.Config{
			Token:         cfg.Bot.Token,
			ApplicationID: cfg.Bot.ApplicationID,
		}, log)
		if err != nil {
			return nil, err
		}
		return ad, nil
	default:
		return nil, fmt.Errorf("unknown platform %q", cfg.Bot.Platform)
	}
}

// validate is installed on the config manager so hot reloads with bad
// values are rejected before they are published.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapHandlerOptions(cfg); err != nil {
		return err
	}
	if _, err := mapHTTP(cfg); err != nil {
		return err
	}
	return schedule.Validate(mapSchedule(cfg))
}
