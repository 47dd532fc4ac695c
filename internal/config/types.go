package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Secrets (bot token, http token) are usually injected through the
// environment instead of the file; see ApplyEnv.
type Config struct {
	Bot      BotConfig      `json:"bot"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	HTTP     HTTPConfig     `json:"http"`
	Logging  LoggingConfig  `json:"logging"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`
}

// BotConfig controls the chat platform connection and reply behavior.
//
// Defaults (when fields are omitted/zero):
//   - platform: "discord"
//   - reply_timeout: "10s"
//   - reply_rate_per_sec: 5 (per channel)
//   - workers: 4
type BotConfig struct {
	Platform      string `json:"platform" envconfig:"PLATFORM"`
	Token         string `json:"token,omitempty" envconfig:"TOKEN"`
	ApplicationID string `json:"application_id,omitempty" envconfig:"APPLICATION_ID"`

	ReplyTimeout    string `json:"reply_timeout,omitempty" envconfig:"REPLY_TIMEOUT"`
	ReplyRatePerSec int    `json:"reply_rate_per_sec,omitempty" envconfig:"REPLY_RATE_PER_SEC"`

	// Workers bounds how many inbound updates are handled concurrently.
	Workers int `json:"workers,omitempty" envconfig:"WORKERS"`
}

// TelegramConfig holds settings only used when bot.platform is "telegram".
type TelegramConfig struct {
	PollTimeout string `json:"poll_timeout,omitempty" envconfig:"POLL_TIMEOUT"`
	// EphemeralTTL is how long owner-only rejections stay in the chat before
	// the bot deletes them (Telegram has no ephemeral messages).
	EphemeralTTL string `json:"ephemeral_ttl,omitempty" envconfig:"EPHEMERAL_TTL"`
}

// HTTPConfig controls the dashboard/API server.
//
// Security note:
//   - If token is set, mutating endpoints require "Authorization: Bearer <token>".
//   - public_url is the externally reachable base used to build file proxy links.
//   - pprof routes are only mounted when token is set.
type HTTPConfig struct {
	Addr         string `json:"addr" envconfig:"ADDR"`
	PublicURL    string `json:"public_url,omitempty" envconfig:"PUBLIC_URL"`
	Token        string `json:"token,omitempty" envconfig:"TOKEN"`
	ReadTimeout  string `json:"read_timeout,omitempty" envconfig:"READ_TIMEOUT"`
	WriteTimeout string `json:"write_timeout,omitempty" envconfig:"WRITE_TIMEOUT"`
	// Pprof mounts /debug/pprof; it requires token to be set.
	Pprof bool `json:"pprof,omitempty" envconfig:"PPROF"`
}

type LoggingConfig struct {
	Level   string      `json:"level" envconfig:"LEVEL"`
	Console bool        `json:"console" envconfig:"CONSOLE"`
	File    LoggingFile `json:"file" ignored:"true"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ScheduleConfig optionally flips the activation flag on cron expressions
// (standard 5-field or descriptors like "@daily").
type ScheduleConfig struct {
	Enabled    bool   `json:"enabled"`
	Timezone   string `json:"timezone,omitempty"`
	Activate   string `json:"activate,omitempty"`
	Deactivate string `json:"deactivate,omitempty"`
}

const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Platform:        PlatformDiscord,
			ReplyTimeout:    "10s",
			ReplyRatePerSec: 5,
			Workers:         4,
		},
		Telegram: TelegramConfig{
			PollTimeout:  "10s",
			EphemeralTTL: "15s",
		},
		HTTP: HTTPConfig{
			Addr:         ":5000",
			ReadTimeout:  "10s",
			WriteTimeout: "30s",
		},
		Logging: LoggingConfig{
			Level:   "INFO",
			Console: true,
		},
	}
}
