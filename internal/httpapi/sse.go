package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/microfactory-run/microfactory/internal/streaming"
)

// handleSSESession streams events for a single session.
func (s *Server) handleSSESession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.serveSSE(w, r, streaming.EventFilter{SessionID: id})
}

// handleSSEGlobal streams every event across all sessions.
func (s *Server) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{})
}

// handleSessionsStream implements `GET /sessions/stream`: a
// periodic SSE feed of the same session snapshot JSON shape `status
// --json` prints, re-polling the repository every `--poll-interval-ms`
// rather than reacting to individual events, for clients that just want
// a simple dashboard refresh without the per-event detail of /events.
func (s *Server) handleSessionsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ticker := time.NewTicker(s.deps.PollInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		summaries, err := s.deps.Store.List(ctx, s.deps.ListLimit)
		if err != nil {
			s.deps.Logger.Error("sessions stream poll failed", "error", err)
		} else {
			for _, summary := range summaries {
				sessCtx, err := s.deps.Runner.Status(ctx, summary.ID)
				if err != nil {
					continue
				}
				data, err := json.Marshal(sessCtx.Export())
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
			}
			flusher.Flush()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("sse subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
			flusher.Flush()
		}
	}
}
