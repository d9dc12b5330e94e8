package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"code-playground/internal/library"
	"code-playground/internal/playground"
)

// runner is the part of playground.Service the tools call.
type runner interface {
	Run(ctx context.Context, req playground.Request) (*playground.Report, error)
}

type runPythonInput struct {
	Code           string  `json:"code" jsonschema:"Python source to run"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty" jsonschema:"wall-clock limit in seconds; 0 uses the default"`
	Explain        bool    `json:"explain,omitempty" jsonschema:"attach a beginner explanation of the code"`
}

type exampleInput struct {
	Slug string `json:"slug" jsonschema:"example slug, e.g. fibonacci"`
}

type tools struct {
	run runner
}

func newMCPServer(r runner) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "code-playground", Version: "0.1.0"}, nil)
	t := &tools{run: r}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_python",
		Description: "Run a Python snippet in the sandbox and return its output or a beginner-friendly diagnosis of the failure.",
	}, t.runPython)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_examples",
		Description: "List the example programs by slug and level.",
	}, t.listExamples)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_example",
		Description: "Return the source of one example program.",
	}, t.getExample)

	return server
}

func serveMCP(ctx context.Context, r runner) error {
	return newMCPServer(r).Run(ctx, &mcp.StdioTransport{})
}

func (t *tools) runPython(ctx context.Context, _ *mcp.CallToolRequest, in runPythonInput) (*mcp.CallToolResult, any, error) {
	rep, err := t.run.Run(ctx, playground.Request{
		Code:    in.Code,
		Timeout: time.Duration(in.TimeoutSeconds * float64(time.Second)),
		Explain: in.Explain,
	})
	if err != nil {
		var blocked *playground.BlockedError
		if errors.As(err, &blocked) {
			return toolError(fmt.Sprintf("blocked: %d critical security pattern(s) detected", len(blocked.Detections))), nil, nil
		}
		return toolError(err.Error()), nil, nil
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func (t *tools) listExamples(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	var text string
	for _, ex := range library.All() {
		text += fmt.Sprintf("%s\t%s\n", ex.Slug, ex.Label())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

func (t *tools) getExample(_ context.Context, _ *mcp.CallToolRequest, in exampleInput) (*mcp.CallToolResult, any, error) {
	ex, ok := library.Get(in.Slug)
	if !ok {
		return toolError(fmt.Sprintf("unknown example %q", in.Slug)), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: ex.Code}},
	}, nil, nil
}

// toolError reports a failure to the model rather than as a protocol error.
func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
