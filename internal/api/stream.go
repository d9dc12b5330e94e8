package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// SSEWriter implements io.Writer and flushes each write as a Server-Sent Event.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	event   string // SSE event type (e.g. "stdout")
	mu      sync.Mutex
	started bool
}

// NewSSEWriter creates an SSE writer for the given event type.
// Returns nil if the ResponseWriter does not support flushing.
func NewSSEWriter(w http.ResponseWriter, event string) *SSEWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	return &SSEWriter{
		w:       w,
		flusher: flusher,
		event:   event,
	}
}

var sseLineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Write sends data as an SSE event and flushes immediately.
func (s *SSEWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}
	s.started = true

	// Every line needs its own "data:" prefix or snippet output could forge
	// events. SSE also ends lines at a bare CR.
	lines := strings.Split(sseLineBreaks.Replace(string(p)), "\n")
	fmt.Fprintf(s.w, "event: %s\n", s.event)
	for _, line := range lines {
		fmt.Fprintf(s.w, "data: %s\n", line)
	}
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}

// Started reports whether any event has been written.
func (s *SSEWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// sendSSE sends one event whose data is v encoded as JSON.
func sendSSE(w http.ResponseWriter, event string, v any) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encoding SSE payload")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// HandleExecuteStream runs a snippet and streams stdout as "stdout" events,
// ending with a "done" event carrying the report or an "error" event.
func (h *Handlers) HandleExecuteStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeExecute(w, r)
	if !ok {
		return
	}

	preq, err := h.prepare(r, req)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}

	stdout := NewSSEWriter(w, "stdout")
	if stdout == nil {
		writeError(w, "streaming not supported", "STREAMING_UNSUPPORTED", http.StatusInternalServerError, r)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rep, err := h.svc.RunStreaming(r.Context(), preq, stdout)
	if err != nil {
		if !stdout.Started() {
			h.writeRunError(w, r, err)
			return
		}
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("streaming execution failed")
		sendSSE(w, "error", ErrorResponse{
			Error:     "execution failed",
			Code:      "EXECUTION_FAILED",
			RequestID: RequestIDFromContext(r.Context()),
		})
		return
	}

	sendSSE(w, "done", rep)
}
