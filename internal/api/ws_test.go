package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"code-playground/internal/sandbox"
)

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/run"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocket_Run(t *testing.T) {
	env := newTestEnv(t, success("hi\n"))
	conn := dialWS(t, env)

	code := `print("hi")`
	if err := conn.WriteJSON(WSMessage{Type: WSTypeRun, Code: &code}); err != nil {
		t.Fatal(err)
	}

	var stdout, result WSMessage
	if err := conn.ReadJSON(&stdout); err != nil {
		t.Fatal(err)
	}
	if stdout.Type != WSTypeStdout || stdout.Data != "hi\n" {
		t.Errorf("first frame = %+v", stdout)
	}
	if err := conn.ReadJSON(&result); err != nil {
		t.Fatal(err)
	}
	if result.Type != WSTypeResult || result.Report == nil || result.Report.Status != sandbox.StatusSuccess {
		t.Errorf("result frame = %+v", result)
	}
	if *result.Report.Output != "hi\n" {
		t.Errorf("output = %q", *result.Report.Output)
	}
}

func TestWebSocket_Errors(t *testing.T) {
	env := newTestEnv(t, success(""))
	conn := dialWS(t, env)

	blocked := "().__class__.__subclasses__()"
	tests := []struct {
		msg  WSMessage
		code string
	}{
		{WSMessage{Type: WSTypeRun}, "INVALID_REQUEST"},
		{WSMessage{Type: "format"}, "INVALID_REQUEST"},
		{WSMessage{Type: WSTypeRun, Code: &blocked}, "SECURITY_BLOCKED"},
	}
	// One connection serves several runs in order.
	for _, tt := range tests {
		if err := conn.WriteJSON(tt.msg); err != nil {
			t.Fatal(err)
		}
		var resp WSMessage
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Type != WSTypeError || resp.Error == nil || resp.Error.Code != tt.code {
			t.Errorf("msg %+v: got %+v", tt.msg, resp)
		}
	}
}
