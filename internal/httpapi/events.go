package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	logx "audiolink/pkg/logx"
)

const (
	eventBuffer     = 32
	eventHeartbeat  = 25 * time.Second
	maxEventStreams = 16
)

// handleEvents streams bus events as server-sent events so the dashboard can
// refresh without polling.
func (a *api) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.deps.Bus == nil {
		writeMessage(w, http.StatusNotFound, "Event stream disabled")
		return
	}
	select {
	case a.streams <- struct{}{}:
		defer func() { <-a.streams }()
	default:
		writeMessage(w, http.StatusServiceUnavailable, "Too many event streams")
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	ch, unsubscribe := a.deps.Bus.Subscribe(eventBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		a.log.Debug("event stream not flushable", logx.Err(err))
		return
	}

	hb := time.NewTicker(eventHeartbeat)
	defer hb.Stop()
	var seq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-hb.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev.Data)
			if err != nil {
				a.log.Warn("event encode failed", logx.String("type", ev.Type), logx.Err(err))
				continue
			}
			seq++
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
