package config

import (
	"strings"

	logx "audiolink/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections plus safe
// structured attrs for logging (never includes tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	ob, nb := oldCfg.Bot, newCfg.Bot
	if ob.Platform != nb.Platform || ob.ApplicationID != nb.ApplicationID ||
		ob.ReplyTimeout != nb.ReplyTimeout || ob.ReplyRatePerSec != nb.ReplyRatePerSec ||
		ob.Workers != nb.Workers || ob.Token != nb.Token {
		changed = append(changed, "bot")
		attrs = append(attrs,
			logx.String("bot.platform", nb.Platform),
			logx.String("bot.reply_timeout", nb.ReplyTimeout),
			logx.Int("bot.reply_rate_per_sec", nb.ReplyRatePerSec),
			logx.Bool("bot.token_set", strings.TrimSpace(nb.Token) != ""),
		)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
			logx.String("telegram.ephemeral_ttl", newCfg.Telegram.EphemeralTTL),
		)
	}

	oh, nh := oldCfg.HTTP, newCfg.HTTP
	if oh != nh {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.addr", nh.Addr),
			logx.String("http.public_url", nh.PublicURL),
			logx.Bool("http.token_set", strings.TrimSpace(nh.Token) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Bool("schedule.enabled", newCfg.Schedule.Enabled),
			logx.String("schedule.activate", newCfg.Schedule.Activate),
			logx.String("schedule.deactivate", newCfg.Schedule.Deactivate),
		)
	}

	return changed, attrs
}

// RestartRequired reports sections whose changes only apply after a restart.
func RestartRequired(section string) bool {
	switch section {
	case "http", "telegram":
		return true
	}
	return false
}
