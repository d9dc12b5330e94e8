package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"code-playground/internal/monitor"
	"code-playground/internal/playground"
	"code-playground/internal/sandbox"
)

type fakeRunner struct {
	last playground.Request
	rep  *playground.Report
	err  error
}

func (f *fakeRunner) Run(_ context.Context, req playground.Request) (*playground.Report, error) {
	f.last = req
	return f.rep, f.err
}

func connect(t *testing.T, r runner) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcp.NewInMemoryTransports()

	if _, err := newMCPServer(r).Connect(ctx, serverT, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content len = %d", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T", res.Content[0])
	}
	return tc.Text
}

func TestMCP_ListTools(t *testing.T) {
	cs := connect(t, &fakeRunner{})
	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"run_python", "list_examples", "get_example"} {
		if !names[want] {
			t.Errorf("tool %q not registered", want)
		}
	}
}

func TestMCP_RunPython(t *testing.T) {
	out := "ok\n"
	fr := &fakeRunner{rep: &playground.Report{ID: "e1", Status: sandbox.StatusSuccess, Output: &out}}
	cs := connect(t, fr)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "run_python",
		Arguments: map[string]any{"code": "print('ok')", "timeout_seconds": 1.5, "explain": true},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(t, res))
	}
	if fr.last.Code != "print('ok')" || fr.last.Timeout != 1500*time.Millisecond || !fr.last.Explain {
		t.Errorf("request = %+v", fr.last)
	}
	body := text(t, res)
	if !strings.Contains(body, `"status": "success"`) || !strings.Contains(body, `"error": null`) {
		t.Errorf("report text = %s", body)
	}
}

func TestMCP_RunPythonBlocked(t *testing.T) {
	fr := &fakeRunner{err: &playground.BlockedError{Detections: []monitor.Detection{{Pattern: "object_graph_walk", Severity: "critical"}}}}
	cs := connect(t, fr)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "run_python",
		Arguments: map[string]any{"code": "().__class__.__subclasses__()"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError || !strings.Contains(text(t, res), "blocked") {
		t.Errorf("result = %+v", res)
	}
}

func TestMCP_GetExample(t *testing.T) {
	cs := connect(t, &fakeRunner{})

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_example",
		Arguments: map[string]any{"slug": "hello-world"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if got := text(t, res); !strings.Contains(got, `print("Hello, World!")`) {
		t.Errorf("example = %q", got)
	}

	res, err = cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_example",
		Arguments: map[string]any{"slug": "nope"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("expected tool error for unknown slug")
	}
}
