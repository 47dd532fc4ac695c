package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audiolink/internal/config"
	"audiolink/internal/store"
	logx "audiolink/pkg/logx"
)

func TestBuildAdapterWithoutToken(t *testing.T) {
	cfg := config.Default()
	ad, err := buildAdapter(cfg, logx.Nop())
	if !errors.Is(err, config.ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
	if ad != nil {
		t.Fatalf("adapter should be nil, got %T", ad)
	}
}

func TestBuildAdapterUnknownPlatform(t *testing.T) {
	cfg := config.Default()
	cfg.Bot.Token = "x"
	cfg.Bot.Platform = "irc"
	if _, err := buildAdapter(cfg, logx.Nop()); err == nil || !strings.Contains(err.Error(), "irc") {
		t.Fatalf("err = %v", err)
	}
}

func TestPublicURL(t *testing.T) {
	cfg := config.Default()
	if got := publicURL(cfg); got != "http://localhost:5000" {
		t.Fatalf("fallback = %q", got)
	}
	cfg.HTTP.PublicURL = " https://bot.example.com/ "
	if got := publicURL(cfg); got != "https://bot.example.com" {
		t.Fatalf("public = %q", got)
	}
}

func TestMapHandlerOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Bot.ReplyTimeout = ""
	cfg.Bot.ReplyRatePerSec = 2
	opts, err := mapHandlerOptions(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if opts.ReplyTimeout != 10*time.Second || opts.ReplyRatePerSec != 2 {
		t.Fatalf("opts = %+v", opts)
	}

	cfg.Bot.ReplyTimeout = "soon"
	if _, err := mapHandlerOptions(cfg); err == nil {
		t.Fatal("expected duration error")
	}
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Schedule = config.ScheduleConfig{Enabled: true, Activate: "not a cron"}
	if err := validate(cfg); err == nil {
		t.Fatal("expected schedule error")
	}
	cfg.Schedule.Activate = "0 9 * * *"
	if err := validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestAppRunsDashboardWithoutToken(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "")
	t.Setenv("AUDIOLINK_BOT_TOKEN", "")
	t.Setenv("AUDIOLINK_HTTP_ADDR", "127.0.0.1:0")
	t.Setenv("AUDIOLINK_LOG_CONSOLE", "false")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: ERROR\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-a.http.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("http server not ready")
	}
	if a.HTTPAddr() == "" {
		t.Fatal("no bound address")
	}

	recs, err := a.logStore.List(context.Background(), -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Type != store.TypeError || recs[0].Message != "Failed to start bot: No bot token provided" {
		t.Fatalf("records = %+v", recs)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("supervisor context still live after Stop")
	}
}
