package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks fields that would otherwise fail late (durations, enums).
// Cron expressions are checked by the schedule package.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Bot.Platform)) {
	case PlatformDiscord, PlatformTelegram:
	default:
		return fmt.Errorf("bot.platform: unknown platform %q", cfg.Bot.Platform)
	}
	if cfg.Bot.ReplyRatePerSec < 0 {
		return fmt.Errorf("bot.reply_rate_per_sec must be >= 0")
	}
	if cfg.Bot.Workers < 0 {
		return fmt.Errorf("bot.workers must be >= 0")
	}
	durations := []struct{ path, raw string }{
		{"bot.reply_timeout", cfg.Bot.ReplyTimeout},
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"telegram.ephemeral_ttl", cfg.Telegram.EphemeralTTL},
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr is required")
	}
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
		}
	}
	return nil
}
