package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ndjsonWriter writes one JSON value per line and flushes after each.
type ndjsonWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	enc     *json.Encoder
}

func newNDJSONWriter(w http.ResponseWriter) (*ndjsonWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	return &ndjsonWriter{w: w, flusher: flusher, enc: json.NewEncoder(w)}, true
}

func (n *ndjsonWriter) write(v any) {
	if err := n.enc.Encode(v); err != nil {
		slog.Debug("ndjson write failed", "error", err)
		return
	}
	n.flusher.Flush()
}

// sseWriter emits server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, true
}

// event writes one event. An empty name sends an unnamed "message" event.
func (s *sseWriter) event(name string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal stream payload", "error", err)
		return
	}
	if name != "" {
		fmt.Fprintf(s.w, "event: %s\n", name)
	}
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.flusher.Flush()
}
