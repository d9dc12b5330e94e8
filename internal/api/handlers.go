package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"code-playground/internal/capability"
	"code-playground/internal/library"
	"code-playground/internal/monitor"
	"code-playground/internal/playground"
	"code-playground/internal/sandbox"
	"code-playground/internal/session"
	"code-playground/internal/storage"
)

// ExecutionStore reads the audit log; *storage.DB implements it.
type ExecutionStore interface {
	GetExecution(ctx context.Context, id string) (*storage.Execution, error)
	ListExecutions(ctx context.Context, filter storage.ExecutionFilter) ([]storage.Execution, error)
	Healthy(ctx context.Context) bool
}

// Deps are the collaborators the handlers need. Executions may be nil when no
// database is configured.
type Deps struct {
	Service        *playground.Service
	Sessions       session.Store
	Executions     ExecutionStore
	Metrics        *monitor.Metrics
	Capabilities   *capability.Table
	AllowedOrigins []string
	MaxMessage     int64 // WebSocket read limit
	ActiveCount    func() int64
}

type Handlers struct {
	svc        *playground.Service
	sessions   session.Store
	executions ExecutionStore
	metrics    *monitor.Metrics
	caps       *capability.Table
	origins    []string
	maxMessage int64
	active     func() int64
}

func NewHandlers(d Deps) *Handlers {
	if d.Sessions == nil {
		d.Sessions = session.NewMemoryStore()
	}
	if d.Capabilities == nil {
		d.Capabilities = capability.Build()
	}
	if d.MaxMessage <= 0 {
		d.MaxMessage = 2 << 20
	}
	if d.ActiveCount == nil {
		d.ActiveCount = func() int64 { return 0 }
	}
	return &Handlers{
		svc:        d.Service,
		sessions:   d.Sessions,
		executions: d.Executions,
		metrics:    d.Metrics,
		caps:       d.Capabilities,
		origins:    d.AllowedOrigins,
		maxMessage: d.MaxMessage,
		active:     d.ActiveCount,
	}
}

func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeExecute(w, r)
	if !ok {
		return
	}

	preq, err := h.prepare(r, req)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}

	rep, err := h.svc.Run(r.Context(), preq)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// decodeExecute reads an ExecuteRequest, answering 400 itself when the body is
// not JSON or has no code field.
func (h *Handlers) decodeExecute(w http.ResponseWriter, r *http.Request) (ExecuteRequest, bool) {
	var req ExecuteRequest
	if !isJSON(r) {
		writeError(w, "Request must be JSON", "INVALID_REQUEST", http.StatusBadRequest, r)
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, "request body too large", "PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge, r)
			return req, false
		}
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return req, false
	}
	if req.Code == nil {
		writeError(w, "No code provided", "INVALID_REQUEST", http.StatusBadRequest, r)
		return req, false
	}
	return req, true
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json"
}

// prepare turns an API request into a service request. When it names a
// session, the session's beginner flag applies and its code buffer is updated.
func (h *Handlers) prepare(r *http.Request, req ExecuteRequest) (playground.Request, error) {
	preq := playground.Request{
		Code:       *req.Code,
		Timeout:    req.Timeout.Duration,
		Explain:    req.Explain,
		SessionID:  req.SessionID,
		ClientIP:   clientIP(r),
		APIKeyHash: APIKeyHash(r.Context()),
	}
	if req.SessionID == "" {
		return preq, nil
	}

	st, err := h.sessions.Get(r.Context(), req.SessionID)
	if err != nil {
		return preq, err
	}
	st.SetCode(preq.Code)
	if err := h.sessions.Save(r.Context(), st); err != nil {
		return preq, err
	}
	preq.Explain = preq.Explain || st.Beginner
	return preq, nil
}

// writeRunError maps service and session errors to HTTP responses.
func (h *Handlers) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var blocked *playground.BlockedError
	switch {
	case errors.As(err, &blocked):
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error:      "code contains a blocked pattern",
			Code:       "SECURITY_BLOCKED",
			RequestID:  RequestIDFromContext(r.Context()),
			Detections: blocked.Detections,
		})
	case sandbox.IsInvalidRequest(err):
		writeError(w, err.Error(), "VALIDATION_ERROR", http.StatusBadRequest, r)
	case errors.Is(err, session.ErrNotFound):
		writeError(w, "session not found", "NOT_FOUND", http.StatusNotFound, r)
	case sandbox.IsUnavailable(err), errors.Is(err, sandbox.ErrShuttingDown):
		writeError(w, "sandbox backend unavailable", "BACKEND_UNAVAILABLE", http.StatusServiceUnavailable, r)
	case errors.Is(err, context.Canceled):
		log.Debug().Str("request_id", RequestIDFromContext(r.Context())).Msg("client went away")
	default:
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("execution failed")
		writeError(w, "execution failed", "EXECUTION_FAILED", http.StatusInternalServerError, r)
	}
}

func (h *Handlers) HandleListExamples(w http.ResponseWriter, r *http.Request) {
	all := library.All()
	out := make([]ExampleSummary, 0, len(all))
	for _, e := range all {
		out = append(out, ExampleSummary{Slug: e.Slug, Level: e.Level, Title: e.Title, Label: e.Label()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) HandleGetExample(w http.ResponseWriter, r *http.Request) {
	ex, ok := library.Get(r.PathValue("slug"))
	if !ok {
		writeError(w, "example not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (h *Handlers) HandleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CapabilityResponse{
		Capabilities: h.caps.Capabilities(),
		Reserved:     h.caps.Reserved(),
		MockInput:    capability.MockInput,
	})
}

func (h *Handlers) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "execution ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.executions == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	exec, err := h.executions.GetExecution(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, "execution not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("exec_id", id).Msg("loading execution")
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, exec)
}

func (h *Handlers) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.executions == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	q := r.URL.Query()
	filter := storage.ExecutionFilter{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Limit:    100,
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		filter.Offset = v
	}

	execs, err := h.executions.ListExecutions(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("listing executions")
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}
	if execs == nil {
		execs = []storage.Execution{}
	}

	writeJSON(w, http.StatusOK, execs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}

// decodeBody reads an optional JSON body into v; an empty body is not an error.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func uptime(start time.Time) string {
	return time.Since(start).Round(time.Second).String()
}
