// Package playground runs snippets end to end and renders the result a learner sees.
package playground

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	"code-playground/internal/diagnose"
	"code-playground/internal/library"
	"code-playground/internal/monitor"
	"code-playground/internal/sandbox"
	"code-playground/internal/storage"
)

// ErrBlocked is matched by errors.Is on a *BlockedError.
var ErrBlocked = errors.New("snippet blocked by security policy")

// BlockedError rejects a snippet with a critical escape detection before it runs.
type BlockedError struct {
	Detections []monitor.Detection
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: %d critical detection(s)", ErrBlocked, len(e.Detections))
}

func (e *BlockedError) Is(target error) bool { return target == ErrBlocked }

// Executor is the part of the supervisor the service depends on.
type Executor interface {
	Execute(ctx context.Context, req sandbox.ExecutionRequest) (*sandbox.Outcome, error)
	ExecuteStreaming(ctx context.Context, req sandbox.ExecutionRequest, stdout io.Writer) (*sandbox.Outcome, error)
	BackendName() string
	DefaultTimeout() time.Duration
}

// Request is one snippet submission.
type Request struct {
	Code    string
	Timeout time.Duration // 0 selects the supervisor default
	Explain bool          // attach library.Explain output

	SessionID  string
	ClientIP   string
	APIKeyHash string
}

// ErrorContext is the numbered source window around the failing line.
type ErrorContext struct {
	LineNumber int    `json:"line_number"`
	Context    string `json:"context"`
}

// Report is the learner-facing result. Output, Error, ErrorAnalysis and
// ErrorContext are always present and null when they do not apply.
type Report struct {
	ID            string              `json:"id"`
	Status        sandbox.Status      `json:"status"`
	Output        *string             `json:"output"`
	Error         *string             `json:"error"`
	ErrorAnalysis *string             `json:"error_analysis"`
	ErrorContext  *ErrorContext       `json:"error_context"`
	Category      diagnose.Kind       `json:"category,omitempty"`
	Duration      string              `json:"duration"`
	Explanation   string              `json:"explanation,omitempty"`
	Truncated     bool                `json:"truncated,omitempty"`
	Backend       string              `json:"backend"`
	Detections    []monitor.Detection `json:"security_events,omitempty"`

	Diagnostic *diagnose.Diagnostic `json:"-"`
	Outcome    *sandbox.Outcome     `json:"-"`
}

// Options wire the optional collaborators of a Service.
type Options struct {
	Window        diagnose.Window // zero selects diagnose.DefaultWindow
	BlockCritical bool
	Metrics       *monitor.Metrics     // nil disables metrics
	Tracer        *monitor.Tracer      // nil uses the global provider
	Audit         *storage.AuditWriter // nil disables the audit log
}

// Service is safe for concurrent use.
type Service struct {
	exec       Executor
	classifier *diagnose.Classifier
	detector   *monitor.EscapeDetector
	metrics    *monitor.Metrics
	tracer     *monitor.Tracer
	audit      *storage.AuditWriter
	block      bool
}

func New(exec Executor, opts Options) *Service {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = monitor.NewTracer()
	}
	window := opts.Window
	if window == (diagnose.Window{}) {
		window = diagnose.DefaultWindow
	}
	return &Service{
		exec:       exec,
		classifier: diagnose.New(diagnose.WithWindow(window)),
		detector:   monitor.NewEscapeDetector(),
		metrics:    opts.Metrics,
		tracer:     tracer,
		audit:      opts.Audit,
		block:      opts.BlockCritical,
	}
}

// Run executes req.Code and renders the outcome. Failures and timeouts of the
// snippet are reports, not errors.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	return s.run(ctx, req, nil)
}

// RunStreaming is Run with stdout copied to w while the snippet runs.
func (s *Service) RunStreaming(ctx context.Context, req Request, w io.Writer) (*Report, error) {
	return s.run(ctx, req, w)
}

// BackendName names the isolation backend in use.
func (s *Service) BackendName() string { return s.exec.BackendName() }

// Classifier exposes the configured classifier for callers that only diagnose.
func (s *Service) Classifier() *diagnose.Classifier { return s.classifier }

func (s *Service) run(ctx context.Context, req Request, live io.Writer) (*Report, error) {
	ctx, span := s.tracer.StartSpan(ctx, "execute", monitor.AttrBackend.String(s.exec.BackendName()))
	defer span.End()

	start := time.Now()
	if s.metrics != nil {
		s.metrics.CodeSizeBytes.Observe(float64(len(req.Code)))
	}

	detections := s.detector.AnalyzeCode(req.Code)
	s.recordDetections(detections)
	if s.block && monitor.HasCritical(detections) {
		span.SetStatus(codes.Error, "blocked")
		s.logAudit(req, &storage.Execution{
			Status:         "blocked",
			Backend:        s.exec.BackendName(),
			SecurityEvents: len(detections),
		}, start)
		log.Warn().Int("detections", len(detections)).Str("session_id", req.SessionID).Msg("snippet blocked")
		return nil, &BlockedError{Detections: detections}
	}

	execReq := sandbox.ExecutionRequest{Code: req.Code, Timeout: req.Timeout}

	if s.metrics != nil {
		s.metrics.ActiveExecutions.Inc()
		defer s.metrics.ActiveExecutions.Dec()
	}

	var (
		out *sandbox.Outcome
		err error
	)
	if live != nil {
		out, err = s.exec.ExecuteStreaming(ctx, execReq, live)
	} else {
		out, err = s.exec.Execute(ctx, execReq)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.metrics != nil {
			s.metrics.RecordError(errorType(err))
		}
		return nil, err
	}

	span.SetAttributes(
		monitor.AttrExecID.String(out.ID),
		monitor.AttrCodeHash.String(out.CodeHash),
		monitor.AttrStatus.String(string(out.Status)),
		monitor.AttrExitCode.Int(out.ExitCode),
		monitor.AttrDurationMS.Int64(out.Duration.Milliseconds()),
	)

	rep := s.render(ctx, out, req)
	rep.Detections = append(detections, s.detector.AnalyzeOutput(out.Stdout)...)
	s.recordDetections(rep.Detections[len(detections):])

	if s.metrics != nil {
		s.metrics.RecordExecution(out.Backend, string(out.Status), out.Duration.Seconds(), len(req.Code), len(out.Stdout))
	}

	rec := &storage.Execution{
		ID:             out.ID,
		Backend:        out.Backend,
		CodeHash:       out.CodeHash,
		Status:         string(out.Status),
		Category:       string(rep.Category),
		ErrorMessage:   out.RawSignal(),
		ExitCode:       out.ExitCode,
		Output:         out.Stdout,
		DurationMS:     out.Duration.Milliseconds(),
		TimeoutMS:      out.Timeout.Milliseconds(),
		SecurityEvents: len(rep.Detections),
	}
	s.logAudit(req, rec, start)

	return rep, nil
}

// render builds the learner-facing report for out.
func (s *Service) render(ctx context.Context, out *sandbox.Outcome, req Request) *Report {
	rep := &Report{
		ID:        out.ID,
		Status:    out.Status,
		Duration:  out.Duration.Round(time.Millisecond).String(),
		Truncated: out.Truncated,
		Backend:   out.Backend,
		Outcome:   out,
	}
	if req.Explain {
		rep.Explanation = library.Explain(req.Code)
	}

	switch out.Status {
	case sandbox.StatusSuccess:
		rep.Output = ptr(out.Stdout)
	case sandbox.StatusTimeout:
		rep.Output = partial(out.Stdout)
		rep.Error = ptr(TimeoutMessage(out.Timeout))
	case sandbox.StatusFailure:
		rep.Output = partial(out.Stdout)
		d := s.diagnose(ctx, out, req.Code)
		rep.Diagnostic = &d
		rep.Category = d.Category
		rep.Error = ptr(d.RawMessage)
		rep.ErrorAnalysis = ptr(d.HumanMessage)
		if d.Context != nil {
			rep.ErrorContext = &ErrorContext{
				LineNumber: d.Context.LineNumber,
				Context:    d.Context.String(),
			}
		}
	}
	return rep
}

func (s *Service) diagnose(ctx context.Context, out *sandbox.Outcome, code string) diagnose.Diagnostic {
	_, span := s.tracer.StartSpan(ctx, "classify", monitor.AttrExecID.String(out.ID))
	defer span.End()

	var d diagnose.Diagnostic
	if out.Fault != nil {
		d = s.classifier.Diagnose(*out.Fault, code)
	} else {
		d = s.classifier.Classify(out.RawSignal(), code)
	}
	span.SetAttributes(monitor.AttrCategory.String(string(d.Category)))
	if s.metrics != nil {
		s.metrics.RecordDiagnosis(string(d.Category))
	}
	return d
}

func (s *Service) recordDetections(dets []monitor.Detection) {
	if s.metrics == nil {
		return
	}
	for _, d := range dets {
		s.metrics.RecordSecurityEvent(d.Pattern)
	}
}

func (s *Service) logAudit(req Request, rec *storage.Execution, start time.Time) {
	if s.audit == nil {
		return
	}
	completedAt := time.Now()
	rec.SessionID = req.SessionID
	rec.RequestIP = req.ClientIP
	rec.APIKeyHash = req.APIKeyHash
	rec.CreatedAt = start
	rec.CompletedAt = &completedAt
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	s.audit.Log(rec)
}

// TimeoutMessage is the error text reported for a timed out snippet.
func TimeoutMessage(limit time.Duration) string {
	return "Code execution timed out (limit: " + strconv.FormatFloat(limit.Seconds(), 'f', -1, 64) + " seconds)"
}

func errorType(err error) string {
	switch {
	case sandbox.IsInvalidRequest(err):
		return "validation"
	case sandbox.IsUnavailable(err):
		return "backend_unavailable"
	case errors.Is(err, sandbox.ErrHarness):
		return "harness"
	case errors.Is(err, sandbox.ErrShuttingDown):
		return "shutting_down"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

func ptr(s string) *string { return &s }

func partial(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
