package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"audiolink/internal/activation"
	"audiolink/internal/bot"
	"audiolink/internal/eventbus"
	"audiolink/internal/store"
	"audiolink/internal/transport"
	logx "audiolink/pkg/logx"
)

type env struct {
	ctrl     *activation.Controller
	settings *store.MemSettings
	logs     *store.MemLog
	bus      eventbus.Bus
	deps     Deps
}

func newEnv(t *testing.T) *env {
	t.Helper()
	bus := eventbus.New()
	settings := store.NewMemSettings()
	logs := store.NewMemLog(store.WithPublisher(bus))
	ctrl, err := activation.New(context.Background(), settings, bus, logx.Nop())
	if err != nil {
		t.Fatalf("activation.New: %v", err)
	}
	return &env{
		ctrl:     ctrl,
		settings: settings,
		logs:     logs,
		bus:      bus,
		deps: Deps{
			Activation: ctrl,
			Settings:   settings,
			Logs:       logs,
			Bus:        bus,
			Platform:   "discord",
			Connected:  func() bool { return true },
		},
	}
}

func do(t *testing.T, h http.Handler, method, target, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestActivateThenStatus(t *testing.T) {
	e := newEnv(t)
	h := NewRouter(e.deps, "", logx.Nop())

	rec := do(t, h, http.MethodPost, "/api/bot/activate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status=%d body=%s", rec.Code, rec.Body)
	}
	if got := decode[statusBody](t, rec); !got.IsActive {
		t.Fatalf("activate returned %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/api/bot/status", "")
	if got := decode[statusBody](t, rec); !got.IsActive {
		t.Fatalf("status after activate: %+v", got)
	}

	rec = do(t, h, http.MethodPost, "/api/bot/deactivate", "")
	if got := decode[statusBody](t, rec); got.IsActive {
		t.Fatalf("deactivate returned %+v", got)
	}
	if e.ctrl.IsActive() {
		t.Fatal("controller still active")
	}
}

func TestSetStatusStrict(t *testing.T) {
	e := newEnv(t)
	h := NewRouter(e.deps, "", logx.Nop())

	rec := do(t, h, http.MethodPost, "/api/bot/status", `{"isActive":true}`)
	if rec.Code != http.StatusOK || !decode[statusBody](t, rec).IsActive {
		t.Fatalf("valid body rejected: %d %s", rec.Code, rec.Body)
	}
	st, _ := e.settings.Get(context.Background())
	if !st.IsActive {
		t.Fatal("settings not updated")
	}

	bad := map[string]string{
		"wrong type": `{"isActive":"yes"}`,
		"missing":    `{}`,
		"empty":      ``,
		"unknown":    `{"isActive":true,"extra":1}`,
		"malformed":  `{"isActive":`,
		"trailing":   `{"isActive":true}{"isActive":false}`,
	}
	for name, body := range bad {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/bot/status", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
			}
			got := decode[messageBody](t, rec)
			if got.Message != "Invalid data" || len(got.Errors) == 0 {
				t.Fatalf("unexpected body: %+v", got)
			}
		})
	}

	rec = do(t, h, http.MethodPost, "/api/bot/status", `{"isActive":"yes"}`)
	got := decode[messageBody](t, rec)
	if got.Errors[0].Field != "isActive" {
		t.Fatalf("wrong field: %+v", got.Errors)
	}
	if !e.ctrl.IsActive() {
		t.Fatal("rejected request changed the flag")
	}
}

func TestListLogLimit(t *testing.T) {
	e := newEnv(t)
	h := NewRouter(e.deps, "", logx.Nop())
	ctx := context.Background()
	for _, msg := range []string{"A", "B", "C"} {
		if _, err := e.logs.Append(ctx, store.Entry{Type: store.TypeAction, Message: msg}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	rec := do(t, h, http.MethodGet, "/api/log?limit=2", "")
	recs := decode[[]store.Record](t, rec)
	if len(recs) != 2 || recs[0].Message != "C" || recs[1].Message != "B" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if recs[0].ID != 3 || recs[1].ID != 2 {
		t.Fatalf("unexpected ids: %d %d", recs[0].ID, recs[1].ID)
	}

	rec = do(t, h, http.MethodGet, "/api/log", "")
	if recs := decode[[]store.Record](t, rec); len(recs) != 3 {
		t.Fatalf("default limit returned %d", len(recs))
	}
	rec = do(t, h, http.MethodGet, "/api/log?limit=0", "")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("limit=0 body=%s", body)
	}

	for _, q := range []string{"abc", "-1", "1.5"} {
		rec := do(t, h, http.MethodGet, "/api/log?limit="+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s status=%d", q, rec.Code)
		}
		if got := decode[messageBody](t, rec); got.Errors[0].Field != "limit" {
			t.Fatalf("limit=%s errors=%+v", q, got.Errors)
		}
	}
}

func TestClearLog(t *testing.T) {
	e := newEnv(t)
	h := NewRouter(e.deps, "", logx.Nop())
	_, _ = e.logs.Append(context.Background(), store.Entry{Type: store.TypeError, Message: "x"})

	rec := do(t, h, http.MethodDelete, "/api/log", "")
	if got := decode[messageBody](t, rec); rec.Code != http.StatusOK || got.Message != "Log cleared successfully" {
		t.Fatalf("clear: %d %+v", rec.Code, got)
	}
	if e.logs.Len() != 0 {
		t.Fatal("log not cleared")
	}
}

type brokenLog struct{}

func (brokenLog) Append(context.Context, store.Entry) (store.Record, error) {
	return store.Record{}, store.ErrUnavailable
}

func (brokenLog) List(context.Context, int) ([]store.Record, error) { return nil, store.ErrUnavailable }

func (brokenLog) Clear(context.Context) error { return store.ErrUnavailable }

func TestStoreFailureIs500(t *testing.T) {
	e := newEnv(t)
	e.deps.Logs = brokenLog{}
	h := NewRouter(e.deps, "", logx.Nop())

	rec := do(t, h, http.MethodGet, "/api/log", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	if got := decode[messageBody](t, rec); got.Message != "Failed to get log entries" {
		t.Fatalf("unexpected message %q", got.Message)
	}
	rec = do(t, h, http.MethodDelete, "/api/log", "")
	if got := decode[messageBody](t, rec); rec.Code != 500 || got.Message != "Failed to clear log" {
		t.Fatalf("clear failure: %d %+v", rec.Code, got)
	}
}

func TestTokenProtectsMutations(t *testing.T) {
	e := newEnv(t)
	h := NewRouter(e.deps, "s3cret", logx.Nop())

	if rec := do(t, h, http.MethodPost, "/api/bot/activate", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/bot/activate", "", "Authorization", "Bearer nope"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status=%d", rec.Code)
	}
	if e.ctrl.IsActive() {
		t.Fatal("unauthorized request activated the bot")
	}
	if rec := do(t, h, http.MethodPost, "/api/bot/activate", "", "Authorization", "Bearer s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("good token: status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/bot/status", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads must stay open: status=%d", rec.Code)
	}
}

type fixedStats struct{}

func (fixedStats) Stats() bot.Stats { return bot.Stats{AudioDetected: 3, LinksSent: 2, ReplyFailures: 1} }

type fixedSchedule struct{ on time.Time }

func (f fixedSchedule) Next() (time.Time, time.Time) { return f.on, time.Time{} }

func TestStatsSettingsFormats(t *testing.T) {
	e := newEnv(t)
	e.deps.Stats = fixedStats{}
	e.deps.StartedAt = time.Now().Add(-90 * time.Second)
	nextOn := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	e.deps.Schedule = fixedSchedule{on: nextOn}
	_, _ = e.logs.Append(context.Background(), store.Entry{Type: store.TypeAction, Message: "x"})
	h := NewRouter(e.deps, "", logx.Nop())

	st := decode[statsBody](t, do(t, h, http.MethodGet, "/api/bot/stats", ""))
	if st.Platform != "discord" || !st.Connected || st.AudioDetected != 3 || st.LinksSent != 2 || st.ReplyFailures != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.LogCount != 1 || st.UptimeSeconds < 89 {
		t.Fatalf("unexpected counts: %+v", st)
	}
	if st.NextActivate == nil || !st.NextActivate.Equal(nextOn) || st.NextDeactivate != nil {
		t.Fatalf("unexpected schedule: %v %v", st.NextActivate, st.NextDeactivate)
	}

	set := decode[store.Settings](t, do(t, h, http.MethodGet, "/api/bot/settings", ""))
	if set.ID != 1 || set.IsActive {
		t.Fatalf("unexpected settings: %+v", set)
	}

	formats := decode[[]string](t, do(t, h, http.MethodGet, "/api/formats", ""))
	if len(formats) != len(bot.SupportedFormats) || formats[0] != ".mp3" {
		t.Fatalf("unexpected formats: %v", formats)
	}
}

func TestRequestIDAndIndex(t *testing.T) {
	e := newEnv(t)
	h := NewRouter(e.deps, "", logx.Nop())

	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Body.String() != "ok" || rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("healthz: %q id=%q", rec.Body, rec.Header().Get(requestIDHeader))
	}
	rec = do(t, h, http.MethodGet, "/healthz", "", requestIDHeader, "abc-123")
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("request id not preserved: %q", got)
	}

	rec = do(t, h, http.MethodGet, "/", "")
	if !strings.Contains(rec.Body.String(), "Audio Link Bot") {
		t.Fatal("dashboard not served")
	}
}

type fakeFiles struct{ data map[string]string }

func (f fakeFiles) FetchFile(_ context.Context, id string) (io.ReadCloser, error) {
	if id == "broken" {
		return nil, errors.New("upstream unavailable")
	}
	s, ok := f.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnknownFile, id)
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

func TestFileProxy(t *testing.T) {
	e := newEnv(t)
	e.deps.Files = fakeFiles{data: map[string]string{"f1": "ID3-audio"}}
	h := NewRouter(e.deps, "", logx.Nop())

	rec := do(t, h, http.MethodGet, "/files/f1/song.mp3", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ID3-audio" {
		t.Fatalf("proxy: %d %q", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "song.mp3") {
		t.Fatalf("Content-Disposition=%q", cd)
	}
	if rec := do(t, h, http.MethodGet, "/files/broken/x.mp3", ""); rec.Code != http.StatusBadGateway {
		t.Fatalf("upstream failure status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/files/never-linked/x.mp3", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown file id status=%d", rec.Code)
	}

	e.deps.Files = nil
	h = NewRouter(e.deps, "", logx.Nop())
	if rec := do(t, h, http.MethodGet, "/files/f1/song.mp3", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("proxy without fetcher status=%d", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(NewRouter(e.deps, "", logx.Nop()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type=%q", ct)
	}

	// Headers are flushed after subscribing, so this publish is observed.
	if _, err := e.ctrl.Set(ctx, true, "test"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if sc.Text() == "event: "+activation.EventChanged {
			if !sc.Scan() || !strings.Contains(sc.Text(), `"isActive":true`) {
				t.Fatalf("unexpected data line %q", sc.Text())
			}
			return
		}
	}
	t.Fatalf("stream ended without activation event: %v", sc.Err())
}

func TestEventStreamLimitIsPerRouter(t *testing.T) {
	e := newEnv(t)
	full := newAPI(e.deps, "", logx.Nop())
	for i := 0; i < maxEventStreams; i++ {
		full.streams <- struct{}{}
	}
	rec := httptest.NewRecorder()
	full.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("full router: code = %d, want 503", rec.Code)
	}

	other := newAPI(e.deps, "", logx.Nop())
	if len(other.streams) != 0 || cap(other.streams) != maxEventStreams {
		t.Fatalf("second router shares slots: len=%d cap=%d", len(other.streams), cap(other.streams))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec = httptest.NewRecorder()
	other.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("second router: code = %d", rec.Code)
	}
	if len(other.streams) != 0 {
		t.Fatal("slot not released after the stream ended")
	}
}

func TestServiceLifecycle(t *testing.T) {
	e := newEnv(t)
	svc := NewService(Config{Addr: "127.0.0.1:0"}, NewRouter(e.deps, "", logx.Nop()), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	select {
	case <-svc.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	addr := svc.Addr()
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("healthz body=%q", body)
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	svc.Stop(sctx)
	if resp, err := http.Get("http://" + addr + "/healthz"); err == nil {
		resp.Body.Close()
		t.Fatal("server still serving after Stop")
	}
	select {
	case <-svc.Failed():
		t.Fatal("a requested stop must not count as a failure")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServiceGivesUpOnBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	svc := NewService(Config{Addr: busy.Addr().String()}, http.NotFoundHandler(), logx.Nop())
	svc.backoffMin, svc.backoffMax = time.Millisecond, 2*time.Millisecond
	svc.restarts = 2
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	select {
	case <-svc.Failed():
	case <-time.After(3 * time.Second):
		t.Fatal("service kept retrying a busy port")
	}
	if err := svc.Err(); err == nil || !strings.Contains(err.Error(), "http.serve") {
		t.Fatalf("Err = %v", err)
	}
	select {
	case <-svc.Ready():
		t.Fatal("Ready closed without a listener")
	default:
	}
}

func TestProfilingRoutes(t *testing.T) {
	e := newEnv(t)
	e.deps.Profiling = true

	h := NewRouter(e.deps, "", logx.Nop())
	if rec := do(t, h, http.MethodGet, "/debug/pprof/", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("without token: code = %d, want 404", rec.Code)
	}

	h = NewRouter(e.deps, "s3cret", logx.Nop())
	if rec := do(t, h, http.MethodGet, "/debug/pprof/", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no auth: code = %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/debug/pprof/goroutine?debug=1", "", "Authorization", "Bearer s3cret")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "goroutine") {
		t.Fatalf("goroutine profile: code = %d body = %.80q", rec.Code, rec.Body.String())
	}
}
