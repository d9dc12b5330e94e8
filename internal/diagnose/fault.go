package diagnose

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Fault is a failure as reported by the worker at the point it happened.
type Fault struct {
	Kind    Kind   `json:"kind"`
	Type    string `json:"type"`           // exception class, e.g. "NameError"
	Message string `json:"message"`        // exception text without the type prefix
	Name    string `json:"name,omitempty"` // offending identifier for name faults
	Line    int    `json:"line,omitempty"` // 1-based; 0 when unknown
}

// RawSignal renders the fault as "<Type>: <message>".
func (f Fault) RawSignal() string {
	typ := f.Type
	if typ == "" {
		typ = f.Kind.Token()
	}
	if typ == "" {
		return f.Message
	}
	if f.Message == "" {
		return typ
	}
	return fmt.Sprintf("%s: %s", typ, f.Message)
}

var (
	lineRe      = regexp.MustCompile(`line (\d+)`)
	undefinedRe = regexp.MustCompile(`name '(\w+)' is not defined`)
	prefixRe    = regexp.MustCompile(`^\s*(\w+(?:Error|Exception)):\s?`)
)

// ParseSignal recovers a Fault from raw failure text. Kind comes from the
// first category token in raw; line and name are extracted when present.
func ParseSignal(raw string) Fault {
	f := Fault{Kind: kindFromSignal(raw), Message: raw}
	if m := prefixRe.FindStringSubmatch(raw); m != nil {
		f.Type = m[1]
		f.Message = raw[len(m[0]):]
	}
	if n, ok := lineNumber(raw); ok {
		f.Line = n
	}
	if m := undefinedRe.FindStringSubmatch(raw); m != nil {
		f.Name = m[1]
	}
	return f
}

func lineNumber(s string) (int, bool) {
	m := lineRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func undefinedName(msg string) string {
	if m := undefinedRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}

func splitLines(src string) []string {
	lines := strings.Split(src, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
