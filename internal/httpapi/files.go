package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"audiolink/internal/transport"
	logx "audiolink/pkg/logx"
)

// handleFile proxies platform-hosted files so links never carry the bot token.
func (a *api) handleFile(w http.ResponseWriter, r *http.Request) {
	if a.deps.Files == nil {
		http.NotFound(w, r)
		return
	}
	fileID := chi.URLParam(r, "fileID")
	name := chi.URLParam(r, "name")
	if fileID == "" || strings.ContainsAny(fileID, "/\\") {
		http.NotFound(w, r)
		return
	}

	rc, err := a.deps.Files.FetchFile(r.Context(), fileID)
	if errors.Is(err, transport.ErrUnknownFile) {
		a.log.Info("file id not linked by the bot", logx.String("file_id", fileID))
		http.NotFound(w, r)
		return
	}
	if err != nil {
		a.log.Warn("file fetch failed",
			logx.String("file_id", fileID),
			logx.String("request_id", RequestID(r.Context())),
			logx.Err(err),
		)
		writeMessage(w, http.StatusBadGateway, "Failed to fetch file")
		return
	}
	defer rc.Close()

	ctype := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	// Large files outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	if _, err := io.Copy(w, rc); err != nil {
		a.log.Debug("file stream interrupted", logx.String("file_id", fileID), logx.Err(err))
	}
}
