package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"code-playground/internal/api"
	"code-playground/internal/playground"
	"code-playground/internal/storage"
)

// client talks to a playground server over its HTTP API.
type client struct {
	base   string
	apiKey string
	http   *http.Client
}

func newClient(base, apiKey string) *client {
	return &client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 70 * time.Second},
	}
}

func (c *client) execute(ctx context.Context, req playground.Request) (*playground.Report, error) {
	body := api.ExecuteRequest{
		Code:    &req.Code,
		Timeout: api.Duration{Duration: req.Timeout},
		Explain: req.Explain,
	}
	var rep playground.Report
	if err := c.do(ctx, http.MethodPost, "/execute", body, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *client) health(ctx context.Context) (*api.HealthResponse, error) {
	var h api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *client) listExecutions(ctx context.Context) ([]storage.Execution, error) {
	var execs []storage.Execution
	if err := c.do(ctx, http.MethodGet, "/executions", nil, &execs); err != nil {
		return nil, err
	}
	return execs, nil
}

// do sends in as JSON and decodes a 2xx body into out. Other statuses become
// errors carrying the server's message.
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s (%s, HTTP %d)", e.Error, e.Code, resp.StatusCode)
		}
		return fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
