package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"audiolink/internal/config"
	"audiolink/internal/schedule"
	logx "audiolink/pkg/logx"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Parse and validate the config file, then exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.NewConfigManager(cfgPath).Parse()
		if err != nil {
			return err
		}
		if err := schedule.Validate(schedule.Config{
			Enabled:    cfg.Schedule.Enabled,
			Timezone:   cfg.Schedule.Timezone,
			Activate:   cfg.Schedule.Activate,
			Deactivate: cfg.Schedule.Deactivate,
		}); err != nil {
			return err
		}
		log := logx.NewConsole(cmd.ErrOrStderr(), cfg.Logging.Level)
		if strings.TrimSpace(cfg.Bot.Token) == "" {
			log.Warn("no bot token configured; only the dashboard will run")
		}
		if cfg.HTTP.Pprof && strings.TrimSpace(cfg.HTTP.Token) == "" {
			log.Warn("http.pprof needs http.token; profiling stays off")
		}
		if strings.TrimSpace(cfg.HTTP.PublicURL) == "" && strings.EqualFold(cfg.Bot.Platform, config.PlatformTelegram) {
			log.Warn("http.public_url is empty; telegram links will point at localhost")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config ok: %s\n", cfgPath)
		fmt.Fprintf(out, "  platform:  %s\n", cfg.Bot.Platform)
		fmt.Fprintf(out, "  token set: %t\n", strings.TrimSpace(cfg.Bot.Token) != "")
		fmt.Fprintf(out, "  http addr: %s\n", cfg.HTTP.Addr)
		fmt.Fprintf(out, "  schedule:  %t\n", cfg.Schedule.Enabled)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "audiolink", version)
	},
}
