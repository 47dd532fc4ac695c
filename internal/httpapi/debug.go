package httpapi

import (
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	logx "audiolink/pkg/logx"
)

// mountProfiling exposes net/http/pprof under /debug/pprof. The routes are
// only mounted when an API token is configured.
func mountProfiling(r chi.Router, token string, log logx.Logger) {
	if strings.TrimSpace(token) == "" {
		log.Warn("http.pprof enabled without http.token; profiling routes not mounted")
		return
	}
	r.Route("/debug/pprof", func(r chi.Router) {
		r.Use(requireToken(token))
		r.Use(noWriteDeadline)
		r.Get("/", hpprof.Index)
		r.Get("/cmdline", hpprof.Cmdline)
		r.Get("/profile", hpprof.Profile)
		r.Get("/symbol", hpprof.Symbol)
		r.Post("/symbol", hpprof.Symbol)
		r.Get("/trace", hpprof.Trace)
		r.Get("/{profile}", func(w http.ResponseWriter, req *http.Request) {
			hpprof.Handler(chi.URLParam(req, "profile")).ServeHTTP(w, req)
		})
	})
	log.Info("profiling routes mounted", logx.String("prefix", "/debug/pprof"))
}

// noWriteDeadline lifts the server write timeout; CPU profiles and traces
// stream for as long as the caller asks.
func noWriteDeadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
		next.ServeHTTP(w, r)
	})
}
