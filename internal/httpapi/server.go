// Package httpapi is the dashboard-facing HTTP facade: bot status toggles,
// the activity log, stats, a live event stream and the embedded dashboard.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"audiolink/internal/bot"
	"audiolink/internal/eventbus"
	"audiolink/internal/store"
	"audiolink/internal/transport"
	logx "audiolink/pkg/logx"
)

// Activation is satisfied by *activation.Controller.
type Activation interface {
	IsActive() bool
	Set(ctx context.Context, active bool, source string) (store.Settings, error)
}

// StatsSource is satisfied by *bot.Handler.
type StatsSource interface {
	Stats() bot.Stats
}

// ScheduleSource is satisfied by *schedule.Service.
type ScheduleSource interface {
	Next() (activate, deactivate time.Time)
}

// Deps are the collaborators behind the routes. Stats, Bus, Files, Schedule
// and Connected may be nil; the matching routes degrade accordingly.
type Deps struct {
	Activation Activation
	Settings   store.SettingsStore
	Logs       store.LogStore
	Stats      StatsSource
	Bus        eventbus.Bus
	Files      transport.FileFetcher
	Schedule   ScheduleSource

	Platform  string
	Connected func() bool
	StartedAt time.Time

	// Profiling mounts /debug/pprof behind the API token.
	Profiling bool
}

type api struct {
	deps  Deps
	log   logx.Logger
	token string
	now   func() time.Time

	// streams holds one slot per open event stream.
	streams chan struct{}
}

func newAPI(deps Deps, token string, log logx.Logger) *api {
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	return &api{
		deps:    deps,
		log:     log,
		token:   token,
		now:     time.Now,
		streams: make(chan struct{}, maxEventStreams),
	}
}

// NewRouter builds the full route table. token protects mutating routes.
func NewRouter(deps Deps, token string, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := newAPI(deps, token, log)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/bot/status", a.handleGetStatus)
		r.Get("/bot/settings", a.handleGetSettings)
		r.Get("/bot/stats", a.handleStats)
		r.Get("/log", a.handleListLog)
		r.Get("/formats", a.handleFormats)
		r.Get("/events", a.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(requireToken(token))
			r.Post("/bot/status", a.handleSetStatus)
			r.Post("/bot/activate", a.handleToggle(true))
			r.Post("/bot/deactivate", a.handleToggle(false))
			r.Delete("/log", a.handleClearLog)
		})
	})

	if deps.Profiling {
		mountProfiling(r, token, log)
	}

	r.Get("/files/{fileID}/{name}", a.handleFile)
	r.Get("/", a.handleIndex)
	return r
}
