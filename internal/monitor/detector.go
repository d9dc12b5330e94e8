package monitor

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// EscapeDetector analyzes snippets and their output for attempts to get
// around the capability table. The table only restricts name lookup, so this
// flags the attribute-traversal idioms it cannot stop.
type EscapeDetector struct {
	patterns []DetectionPattern
}

// DetectionPattern defines a suspicious pattern to match.
type DetectionPattern struct {
	Name        string
	Description string
	Regex       *regexp.Regexp
	Severity    Severity
}

// Severity levels for detected threats.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Detection represents a detected suspicious pattern.
type Detection struct {
	Pattern  string `json:"pattern"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
	Line     int    `json:"line,omitempty"`
}

// NewEscapeDetector creates a detector with default patterns.
func NewEscapeDetector() *EscapeDetector {
	return &EscapeDetector{
		patterns: defaultPatterns(),
	}
}

// AnalyzeCode checks submitted code for suspicious patterns before execution.
func (d *EscapeDetector) AnalyzeCode(code string) []Detection {
	var detections []Detection

	lines := strings.Split(code, "\n")
	for i, line := range lines {
		for _, p := range d.patterns {
			if p.Regex.MatchString(line) {
				det := Detection{
					Pattern:  p.Name,
					Severity: p.Severity.String(),
					Detail:   p.Description,
					Line:     i + 1,
				}
				detections = append(detections, det)

				log.Warn().
					Str("pattern", p.Name).
					Str("severity", p.Severity.String()).
					Int("line", i+1).
					Msg("escape attempt detected in code")
			}
		}
	}

	return detections
}

// HasCritical reports whether any detection is critical.
func HasCritical(dets []Detection) bool {
	for _, d := range dets {
		if d.Severity == SeverityCritical.String() {
			return true
		}
	}
	return false
}

// AnalyzeOutput checks execution output for signs of successful escape.
func (d *EscapeDetector) AnalyzeOutput(output string) []Detection {
	var detections []Detection

	outputPatterns := []struct {
		name   string
		substr string
		sev    Severity
	}{
		{"kernel_leak", "Linux version", SeverityHigh},
		{"root_access", "root:x:0:0", SeverityCritical},
		{"docker_socket", "docker.sock", SeverityCritical},
		{"containerd_socket", "containerd.sock", SeverityCritical},
	}

	for _, p := range outputPatterns {
		if strings.Contains(output, p.substr) {
			detections = append(detections, Detection{
				Pattern:  p.name,
				Severity: p.sev.String(),
				Detail:   "suspicious content in output: " + p.name,
			})
		}
	}

	return detections
}

func defaultPatterns() []DetectionPattern {
	return []DetectionPattern{
		{
			Name:        "object_graph_walk",
			Description: "Walking the object graph to reach unlisted builtins",
			Regex:       regexp.MustCompile(`__(subclasses|globals|builtins|code|closure|loader|spec|self)__|\.\s*__import__\b|\b(f_globals|f_builtins|gi_frame|tb_frame|cr_frame|f_back)\b`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "dunder_traversal",
			Description: "Attribute traversal through class internals",
			Regex:       regexp.MustCompile(`__(class|bases|base|mro|dict|getattribute|reduce|reduce_ex|init_subclass)__`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "dynamic_code",
			Description: "Dynamic evaluation or import of code",
			Regex:       regexp.MustCompile(`\b(__import__|importlib|eval|exec|compile|getattr|setattr|globals|locals|vars|breakpoint)\s*\(`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "process_spawn",
			Description: "Attempting to start processes or open sockets",
			Regex:       regexp.MustCompile(`\b(subprocess|os\.system|os\.popen|os\.fork|pty\.spawn|socket\.socket|ctypes)\b`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "proc_self_access",
			Description: "Accessing /proc/self for process info",
			Regex:       regexp.MustCompile(`/proc/self/(root|exe|fd|ns|maps|status|environ)`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "container_breakout",
			Description: "Attempting container breakout via cgroup",
			Regex:       regexp.MustCompile(`/sys/fs/cgroup|notify_on_release|release_agent`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "host_mount_access",
			Description: "Attempting to access host mounts",
			Regex:       regexp.MustCompile(`/var/run/docker|/var/run/containerd|/run/containerd`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "kernel_exploit",
			Description: "Potential kernel exploitation attempt",
			Regex:       regexp.MustCompile(`(?i)(dirty.?cow|dirty.?pipe|userfaultfd)`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "metadata_service",
			Description: "Attempting to reach cloud metadata service",
			Regex:       regexp.MustCompile(`169\.254\.169\.254|metadata\.google|metadata\.aws`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "resource_exhaustion",
			Description: "Allocation sized to exhaust worker memory",
			Regex:       regexp.MustCompile(`\*\s*10\s*\*\*\s*([89]|\d{2,})\b|\*\*\s*\d{7,}`),
			Severity:    SeverityMedium,
		},
	}
}
