package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docset/internal/events"
	"github.com/dgallion1/docset/internal/pipeline"
)

var heartbeat = json.RawMessage(`{"type":"heartbeat"}`)

// handleIngestStream relays a run's events as server-sent events. Silence
// longer than the heartbeat interval produces a heartbeat frame. The stream
// ends after the terminal event or when the client goes away.
func (s *Server) handleIngestStream(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := s.orchestrator.Subscribe(runID)
	if errors.Is(err, pipeline.ErrRunNotFound) {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = time.Second
	}
	log := s.log.With("run_id", runID)

	for {
		ctx, cancel := context.WithTimeout(r.Context(), interval)
		ev, err := sub.Next(ctx)
		cancel()

		switch {
		case err == nil:
			if err := writeSSE(w, "progress", ev); err != nil {
				log.Debug("stream write failed", "error", err)
				return
			}
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		case errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil:
			if err := writeSSE(w, "heartbeat", heartbeat); err != nil {
				return
			}
			flusher.Flush()
		case errors.Is(err, events.ErrStreamClosed):
			return
		default:
			log.Debug("stream client gone", "error", err)
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
