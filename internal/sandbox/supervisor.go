package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"code-playground/internal/capability"
	"code-playground/internal/diagnose"
	"code-playground/internal/runtime"
)

// Status is the terminal state of one execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
)

type ExecutionRequest struct {
	Code    string         `json:"code"`
	Timeout time.Duration  `json:"timeout"`
	Limits  ResourceLimits `json:"limits"`
}

// Outcome is produced exactly once per Execute call.
type Outcome struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	Stdout    string          `json:"stdout"`
	Stderr    string          `json:"stderr,omitempty"` // worker stderr with the fault record removed
	Fault     *diagnose.Fault `json:"fault,omitempty"`
	ExitCode  int             `json:"exit_code"`
	Timeout   time.Duration   `json:"timeout"`
	Duration  time.Duration   `json:"duration"`
	CodeHash  string          `json:"code_hash"`
	Truncated bool            `json:"truncated,omitempty"`
	Backend   string          `json:"backend"`
}

// RawSignal is the failure text "<Type>: <message>", empty unless Status is failure.
func (o *Outcome) RawSignal() string {
	if o.Fault == nil {
		return ""
	}
	return o.Fault.RawSignal()
}

// Err returns ErrTimeout for timed out executions and nil otherwise.
func (o *Outcome) Err() error {
	if o.Status == StatusTimeout {
		return ErrTimeout
	}
	return nil
}

// Options tune a Supervisor. Zero values select defaults.
type Options struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	MaxConcurrent  int
	Limits         ResourceLimits
	// Capabilities builds the table bound into each worker.
	Capabilities func() *capability.Table
}

// Supervisor runs snippets through a Backend under a hard deadline.
type Supervisor struct {
	backend Backend
	runtime runtime.Runtime
	opts    Options
	sem     chan struct{} // Concurrency limiter
	active  atomic.Int64  // Active execution count
	wg      sync.WaitGroup
	mu      sync.RWMutex // Protects shutdown state
	closed  bool
}

func NewSupervisor(backend Backend, rt runtime.Runtime, opts Options) *Supervisor {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Second
	}
	if opts.MaxTimeout < opts.DefaultTimeout {
		opts.MaxTimeout = opts.DefaultTimeout
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 64
	}
	if opts.Limits.IsZero() {
		opts.Limits = DefaultLimits()
	}
	if opts.Capabilities == nil {
		opts.Capabilities = capability.Build
	}
	return &Supervisor{
		backend: backend,
		runtime: rt,
		opts:    opts,
		sem:     make(chan struct{}, opts.MaxConcurrent),
	}
}

// Execute runs req.Code and returns its outcome. Snippet failures and timeouts
// are outcomes; an error means the request was invalid or no worker could run.
func (s *Supervisor) Execute(ctx context.Context, req ExecutionRequest) (*Outcome, error) {
	return s.execute(ctx, req, nil)
}

// ExecuteStreaming is Execute with the worker's stdout copied to stdout as it is produced.
func (s *Supervisor) ExecuteStreaming(ctx context.Context, req ExecutionRequest, stdout io.Writer) (*Outcome, error) {
	return s.execute(ctx, req, stdout)
}

func (s *Supervisor) execute(ctx context.Context, req ExecutionRequest, live io.Writer) (*Outcome, error) {
	execID := uuid.New().String()
	codeHash := fmt.Sprintf("%x", sha256.Sum256([]byte(req.Code)))

	logger := log.With().
		Str("exec_id", execID).
		Str("backend", s.backend.Name()).
		Str("code_hash", codeHash[:16]).
		Logger()

	logger.Info().Msg("execution requested")

	if err := s.validateRequest(&req); err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "validate", Err: err}
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, &ExecutionError{ExecID: execID, Op: "acquire_slot", Err: ErrShuttingDown}
	}
	s.wg.Add(1)
	s.mu.RUnlock()
	defer s.wg.Done()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return nil, &ExecutionError{ExecID: execID, Op: "acquire_slot", Err: ctx.Err()}
	}

	s.active.Add(1)
	defer s.active.Add(-1)

	dir, err := s.stage(execID, req.Code)
	if err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "stage", Err: err}
	}
	defer os.RemoveAll(dir)

	res, err := s.backend.Run(ctx, Job{
		ExecID:  execID,
		Dir:     dir,
		Runtime: s.runtime,
		Timeout: req.Timeout,
		Limits:  req.Limits,
		Env:     req.Limits.HarnessEnv(req.Timeout),
		Stdout:  live,
	})
	if err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "run", Err: err}
	}

	out := &Outcome{
		ID:        execID,
		Stdout:    res.Stdout,
		ExitCode:  res.ExitCode,
		Timeout:   req.Timeout,
		Duration:  res.Duration,
		CodeHash:  codeHash,
		Truncated: res.Truncated,
		Backend:   s.backend.Name(),
	}
	if err := interpret(res, out); err != nil {
		logger.Error().Err(err).Int("exit_code", res.ExitCode).Str("stderr", res.Stderr).Msg("worker harness failed")
		return nil, &ExecutionError{ExecID: execID, Op: "harness", Err: err}
	}

	logger.Info().
		Str("status", string(out.Status)).
		Int("exit_code", out.ExitCode).
		Dur("duration", out.Duration).
		Msg("execution completed")

	return out, nil
}

func (s *Supervisor) validateRequest(req *ExecutionRequest) error {
	if err := s.runtime.Validate(req.Code); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	switch {
	case req.Timeout < 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidRequest)
	case req.Timeout == 0:
		req.Timeout = s.opts.DefaultTimeout
	case req.Timeout > s.opts.MaxTimeout:
		return fmt.Errorf("%w: timeout exceeds %s maximum", ErrInvalidRequest, s.opts.MaxTimeout)
	}
	if req.Limits.IsZero() {
		req.Limits = s.opts.Limits
	} else if err := req.Limits.Validate(); err != nil {
		return err
	}
	return nil
}

// stage writes the harness, the capability prelude and the snippet into a
// fresh directory readable by an unprivileged container user.
func (s *Supervisor) stage(execID, code string) (string, error) {
	dir, err := os.MkdirTemp("", "playground-"+execID+"-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	if err := os.Chmod(dir, 0o755); err != nil { // #nosec G302 -- container runs as nobody (UID 65534)
		os.RemoveAll(dir)
		return "", err
	}

	files := []struct {
		name string
		data []byte
	}{
		{runtime.HarnessFile, s.runtime.Harness()},
		{runtime.PreludeFile, []byte(s.opts.Capabilities().Prelude())},
		{runtime.SnippetFile, []byte(code)},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, 0o444); err != nil { // #nosec G306 -- read-only for the worker user
			os.RemoveAll(dir)
			return "", fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	return dir, nil
}

// interpret fills the status and fault of out from what the backend observed.
func interpret(res *RunResult, out *Outcome) error {
	if res.TimedOut {
		out.Status = StatusTimeout
		return nil
	}

	fault, rest, ok := extractFault(res.Stderr)
	out.Stderr = rest
	if ok {
		out.Status = StatusFailure
		out.Fault = &fault
		return nil
	}

	switch res.ExitCode {
	case runtime.ExitOK:
		out.Status = StatusSuccess
		return nil
	case runtime.ExitUsage, runtime.ExitSetup:
		return fmt.Errorf("%w: exit %d: %s", ErrHarness, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	out.Status = StatusFailure
	out.Fault = abnormalExit(res)
	return nil
}

// abnormalExit describes a worker that died without reporting a fault, e.g.
// killed by an rlimit or the OOM killer.
func abnormalExit(res *RunResult) *diagnose.Fault {
	if res.ExitCode == -1 || res.ExitCode == 137 {
		return &diagnose.Fault{
			Kind:    diagnose.KindOther,
			Type:    "ResourceLimitError",
			Message: "Process killed: memory or CPU limit exceeded",
		}
	}
	if last := lastLine(res.Stderr); last != "" {
		f := diagnose.ParseSignal(last)
		return &f
	}
	return &diagnose.Fault{
		Kind:    diagnose.KindOther,
		Message: fmt.Sprintf("Process exited with status %d", res.ExitCode),
	}
}

// extractFault finds the harness fault record in stderr and returns it with
// the remaining stderr text.
func extractFault(stderr string) (diagnose.Fault, string, bool) {
	idx := strings.LastIndex(stderr, runtime.FaultMarker)
	if idx < 0 {
		return diagnose.Fault{}, stderr, false
	}
	payload := stderr[idx+len(runtime.FaultMarker):]
	if nl := strings.IndexByte(payload, '\n'); nl >= 0 {
		payload = payload[:nl]
	}

	var f diagnose.Fault
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		log.Warn().Err(err).Msg("malformed fault record")
		return diagnose.Fault{}, stderr, false
	}
	f.Kind = diagnose.ParseKind(string(f.Kind))
	return f, strings.TrimRight(stderr[:idx], "\n"), true
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// ActiveCount returns the number of currently running executions.
func (s *Supervisor) ActiveCount() int64 {
	return s.active.Load()
}

// BackendName names the isolation unit in use.
func (s *Supervisor) BackendName() string {
	return s.backend.Name()
}

// DefaultTimeout is applied when a request leaves the timeout unset.
func (s *Supervisor) DefaultTimeout() time.Duration {
	return s.opts.DefaultTimeout
}

// MaxTimeout is the largest timeout a request may ask for.
func (s *Supervisor) MaxTimeout() time.Duration {
	return s.opts.MaxTimeout
}

// Close rejects new executions, waits up to 30s for active ones and closes the backend.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all executions drained")
	case <-time.After(30 * time.Second):
		log.Warn().Int64("active", s.active.Load()).Msg("timed out waiting for executions to drain")
	}
	return s.backend.Close()
}
