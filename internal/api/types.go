package api

import (
	"strconv"
	"time"

	"code-playground/internal/capability"
	"code-playground/internal/monitor"
)

// ExecuteRequest is the body of POST /execute and of WebSocket run messages.
type ExecuteRequest struct {
	Code      *string  `json:"code"` // required; nil when the field is missing
	Timeout   Duration `json:"timeout,omitempty"`
	Explain   bool     `json:"explain,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// Duration wraps time.Duration for JSON marshaling as a string like "10s".
// A bare number is read as seconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		dur, err := time.ParseDuration(s[1 : len(s)-1])
		if err != nil {
			return err
		}
		d.Duration = dur
		return nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

// SessionRequest creates or updates a session. Nil fields are left unchanged.
type SessionRequest struct {
	Code     *string `json:"code,omitempty"`
	Example  *string `json:"example,omitempty"`
	Beginner *bool   `json:"beginner,omitempty"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error      string              `json:"error"`
	Code       string              `json:"code"`
	RequestID  string              `json:"request_id"`
	Detections []monitor.Detection `json:"security_events,omitempty"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status           string `json:"status"`
	Backend          string `json:"backend"`
	Database         bool   `json:"database"`
	ActiveExecutions int64  `json:"active_executions"`
	Uptime           string `json:"uptime"`
}

// CapabilityResponse lists what a snippet may call.
type CapabilityResponse struct {
	Capabilities []capability.Capability `json:"capabilities"`
	Reserved     []string                `json:"reserved"`
	MockInput    string                  `json:"mock_input"`
}

// ExampleSummary is a library example without its code.
type ExampleSummary struct {
	Slug  string `json:"slug"`
	Level int    `json:"level"`
	Title string `json:"title"`
	Label string `json:"label"`
}
