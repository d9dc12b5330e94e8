package storage

import "time"

// Execution is the audit record of one snippet run. The snippet itself is
// never stored, only its hash.
type Execution struct {
	ID             string     `json:"id" db:"id"`
	Backend        string     `json:"backend" db:"backend"`
	CodeHash       string     `json:"code_hash" db:"code_hash"`
	Status         string     `json:"status" db:"status"`                     // success, failure, timeout, blocked, error
	Category       string     `json:"category,omitempty" db:"category"`       // diagnosed error kind for failures
	ErrorMessage   string     `json:"error_message,omitempty" db:"error_msg"` // raw failure signal
	ExitCode       int        `json:"exit_code" db:"exit_code"`
	Output         string     `json:"output" db:"output"`
	DurationMS     int64      `json:"duration_ms" db:"duration_ms"`
	TimeoutMS      int64      `json:"timeout_ms" db:"timeout_ms"`
	SecurityEvents int        `json:"security_events" db:"security_events"`
	SessionID      string     `json:"session_id,omitempty" db:"session_id"`
	RequestIP      string     `json:"request_ip" db:"request_ip"`
	APIKeyHash     string     `json:"api_key_hash,omitempty" db:"api_key_hash"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// SecurityEventRecord stores security event details for audit.
type SecurityEventRecord struct {
	ID          string    `json:"id" db:"id"`
	ExecutionID string    `json:"execution_id" db:"execution_id"`
	Type        string    `json:"type" db:"type"`
	Severity    string    `json:"severity" db:"severity"`
	Detail      string    `json:"detail" db:"detail"`
	Line        int       `json:"line,omitempty" db:"line"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ExecutionFilter provides criteria for querying executions.
type ExecutionFilter struct {
	Status   string
	Category string
	Limit    int
	Offset   int
}
