package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"audiolink/internal/bot"
	logx "audiolink/pkg/logx"
)

const (
	maxBodyBytes = 4 << 10
	sourceHTTP   = "http"
)

type statusBody struct {
	IsActive bool `json:"isActive"`
}

func (a *api) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusBody{IsActive: a.deps.Activation.IsActive()})
}

func (a *api) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := a.deps.Settings.Get(r.Context())
	if err != nil {
		a.fail(w, r, "Failed to get bot settings", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *api) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	active, verr := decodeStatus(r.Body)
	if verr != nil {
		writeValidation(w, verr)
		return
	}
	st, err := a.deps.Activation.Set(r.Context(), active, sourceHTTP)
	if err != nil {
		a.fail(w, r, "Failed to update bot status", err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{IsActive: st.IsActive})
}

// decodeStatus accepts exactly {"isActive": <bool>}.
func decodeStatus(body io.Reader) (bool, *ValidationError) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return false, invalid("body", "Unreadable request body")
	}
	if len(raw) > maxBodyBytes {
		return false, invalid("body", "Request body too large")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return false, invalid("isActive", "Required")
	}

	var in struct {
		IsActive *bool `json:"isActive"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr) && typeErr.Field == "isActive":
			return false, invalid("isActive", "Expected boolean, received %s", typeErr.Value)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return false, invalid(field, "Unrecognized key")
		default:
			return false, invalid("body", "Malformed JSON")
		}
	}
	if dec.More() {
		return false, invalid("body", "Unexpected data after JSON object")
	}
	if in.IsActive == nil {
		return false, invalid("isActive", "Required")
	}
	return *in.IsActive, nil
}

func (a *api) handleToggle(active bool) http.HandlerFunc {
	failMsg := "Failed to deactivate bot"
	if active {
		failMsg = "Failed to activate bot"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := a.deps.Activation.Set(r.Context(), active, sourceHTTP)
		if err != nil {
			a.fail(w, r, failMsg, err)
			return
		}
		writeJSON(w, http.StatusOK, statusBody{IsActive: st.IsActive})
	}
}

func (a *api) handleListLog(w http.ResponseWriter, r *http.Request) {
	limit, verr := parseLimit(r.URL.Query().Get("limit"))
	if verr != nil {
		writeValidation(w, verr)
		return
	}
	recs, err := a.deps.Logs.List(r.Context(), limit)
	if err != nil {
		a.fail(w, r, "Failed to get log entries", err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// parseLimit maps an absent limit to -1 (store default).
func parseLimit(raw string) (int, *ValidationError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid("limit", "Expected integer, received %q", raw)
	}
	if n < 0 {
		return 0, invalid("limit", "Must be greater than or equal to 0")
	}
	return n, nil
}

func (a *api) handleClearLog(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Logs.Clear(r.Context()); err != nil {
		a.fail(w, r, "Failed to clear log", err)
		return
	}
	writeMessage(w, http.StatusOK, "Log cleared successfully")
}

type statsBody struct {
	IsActive      bool      `json:"isActive"`
	Platform      string    `json:"platform"`
	Connected     bool      `json:"connected"`
	StartedAt     time.Time `json:"startedAt"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
	AudioDetected uint64    `json:"audioDetected"`
	LinksSent     uint64    `json:"linksSent"`
	ReplyFailures uint64    `json:"replyFailures"`
	Rejected      uint64    `json:"rejectedCommands"`
	LogCount      int       `json:"logCount"`

	NextActivate   *time.Time `json:"nextActivate,omitempty"`
	NextDeactivate *time.Time `json:"nextDeactivate,omitempty"`
}

func (a *api) handleStats(w http.ResponseWriter, _ *http.Request) {
	out := statsBody{
		IsActive:      a.deps.Activation.IsActive(),
		Platform:      a.deps.Platform,
		StartedAt:     a.deps.StartedAt.UTC(),
		UptimeSeconds: int64(a.now().Sub(a.deps.StartedAt) / time.Second),
	}
	if a.deps.Connected != nil {
		out.Connected = a.deps.Connected()
	}
	if a.deps.Stats != nil {
		st := a.deps.Stats.Stats()
		out.AudioDetected = st.AudioDetected
		out.LinksSent = st.LinksSent
		out.ReplyFailures = st.ReplyFailures
		out.Rejected = st.Rejected
	}
	if l, ok := a.deps.Logs.(interface{ Len() int }); ok {
		out.LogCount = l.Len()
	}
	if a.deps.Schedule != nil {
		on, off := a.deps.Schedule.Next()
		out.NextActivate = timePtr(on)
		out.NextDeactivate = timePtr(off)
	}
	writeJSON(w, http.StatusOK, out)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func (a *api) handleFormats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, bot.SupportedFormats)
}

// fail answers 500 with msg; the cause goes to the process log only.
func (a *api) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.log.Error(msg,
		logx.String("path", r.URL.Path),
		logx.String("request_id", RequestID(r.Context())),
		logx.Err(err),
	)
	writeMessage(w, http.StatusInternalServerError, msg)
}
