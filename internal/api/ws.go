package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"code-playground/internal/playground"
	"code-playground/internal/sandbox"
	"code-playground/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// Message types exchanged on /ws/run.
const (
	WSTypeRun    = "run"
	WSTypeStdout = "stdout"
	WSTypeResult = "result"
	WSTypeError  = "error"
)

// WSMessage is one frame on /ws/run. Clients send "run" frames; the server
// answers with "stdout" frames while the snippet runs and then one "result"
// or "error" frame.
type WSMessage struct {
	Type      string             `json:"type"`
	Code      *string            `json:"code,omitempty"`
	Timeout   *Duration          `json:"timeout,omitempty"`
	Explain   bool               `json:"explain,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
	Data      string             `json:"data,omitempty"`
	Report    *playground.Report `json:"report,omitempty"`
	Error     *ErrorResponse     `json:"error,omitempty"`
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// wsStdout forwards snippet output as stdout frames.
type wsStdout struct{ c *wsConn }

func (s wsStdout) Write(p []byte) (int, error) {
	if err := s.c.send(WSMessage{Type: WSTypeStdout, Data: string(p)}); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(h.origins, origin)
		},
	}
}

// HandleWebSocket runs snippets sent over a WebSocket, one at a time, streaming
// their output back.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("websocket upgrade failed")
		return
	}
	c := &wsConn{conn: conn}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.LiveConnections.Inc()
		defer h.metrics.LiveConnections.Dec()
	}

	conn.SetReadLimit(h.maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go wsPing(ctx, conn)

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		// A run may outlast the pong window.
		_ = conn.SetReadDeadline(time.Time{})
		if err := h.wsRun(ctx, r, c, msg); err != nil {
			log.Debug().Err(err).Msg("websocket write failed")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}

func wsPing(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// wsRun handles one client frame; the returned error is a write failure.
func (h *Handlers) wsRun(ctx context.Context, r *http.Request, c *wsConn, msg WSMessage) error {
	reqID := RequestIDFromContext(r.Context())
	fail := func(text, code string) error {
		return c.send(WSMessage{Type: WSTypeError, Error: &ErrorResponse{Error: text, Code: code, RequestID: reqID}})
	}

	if msg.Type != "" && msg.Type != WSTypeRun {
		return fail("unknown message type "+msg.Type, "INVALID_REQUEST")
	}
	if msg.Code == nil {
		return fail("No code provided", "INVALID_REQUEST")
	}

	req := ExecuteRequest{Code: msg.Code, Explain: msg.Explain, SessionID: msg.SessionID}
	if msg.Timeout != nil {
		req.Timeout = *msg.Timeout
	}
	preq, err := h.prepare(r, req)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return fail("session not found", "NOT_FOUND")
		}
		return fail("session store failed", "INTERNAL")
	}

	rep, err := h.svc.RunStreaming(ctx, preq, wsStdout{c: c})
	if err != nil {
		var blocked *playground.BlockedError
		switch {
		case errors.As(err, &blocked):
			return c.send(WSMessage{Type: WSTypeError, Error: &ErrorResponse{
				Error: "code contains a blocked pattern", Code: "SECURITY_BLOCKED", RequestID: reqID, Detections: blocked.Detections,
			}})
		case sandbox.IsInvalidRequest(err):
			return fail(err.Error(), "VALIDATION_ERROR")
		case sandbox.IsUnavailable(err), errors.Is(err, sandbox.ErrShuttingDown):
			return fail("sandbox backend unavailable", "BACKEND_UNAVAILABLE")
		default:
			log.Error().Err(err).Str("request_id", reqID).Msg("websocket execution failed")
			return fail("execution failed", "EXECUTION_FAILED")
		}
	}
	return c.send(WSMessage{Type: WSTypeResult, Report: rep})
}
