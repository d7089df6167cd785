package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const keepAliveInterval = 25 * time.Second

// handleStream pushes the record list over Server-Sent Events. Every store
// change for the owner produces one freshly rendered list partial; the
// client swaps it in whole.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		s.redirectToLogin(w, r)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	filter := parseFilter(r, time.Now())
	sub, err := s.hub.Subscribe(r.Context(), identity.ID, filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "Subscribe failed", "error", err, "owner", identity.ID)
		http.Error(w, "failed to open stream", http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	tracker := s.flows.For(identity.ID)
	for {
		select {
		case <-r.Context().Done():
			return

		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case err := <-sub.Errs():
			slog.WarnContext(r.Context(), "Snapshot refresh failed on stream", "error", err, "owner", identity.ID)
			if werr := writeSSE(w, "snapshot-error", `<div class="error">Live updates interrupted</div>`); werr != nil {
				return
			}
			flusher.Flush()

		case snapshot, open := <-sub.Snapshots():
			if !open {
				return
			}

			view := s.snapshotView(snapshot, tracker, filter)
			var buf bytes.Buffer
			if s.templates == nil {
				continue
			}
			if err := s.templates.ExecuteTemplate(&buf, "records.html", view); err != nil {
				slog.ErrorContext(r.Context(), "Stream template failed", "error", err)
				continue
			}
			if err := writeSSE(w, "snapshot", buf.String()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE frames one event; multi-line payloads become multiple data lines.
func writeSSE(w http.ResponseWriter, event, payload string) error {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteString("\n")
	for _, line := range strings.Split(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := w.Write([]byte(b.String()))
	return err
}
