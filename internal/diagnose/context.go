package diagnose

import (
	"fmt"
	"strings"
)

// SourceLine is one numbered line of the submitted snippet.
type SourceLine struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// SourceContext is the window of source around a failing line.
type SourceContext struct {
	LineNumber int          `json:"line_number"`
	Lines      []SourceLine `json:"lines"`
}

// String renders the window as "N: text" rows joined by newlines.
func (sc *SourceContext) String() string {
	if sc == nil {
		return ""
	}
	var b strings.Builder
	for i, l := range sc.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d: %s", l.Number, l.Text)
	}
	return b.String()
}

// contextAt returns the lines in [n-Before, n+After] clamped to the source,
// or nil when no line of the window exists.
func (c *Classifier) contextAt(n int, source string) *SourceContext {
	lines := splitLines(source)
	start := max(0, n-1-c.window.Before)
	end := min(len(lines), n+c.window.After)
	if start >= end {
		return nil
	}

	sc := &SourceContext{LineNumber: n, Lines: []SourceLine{}}
	for i := start; i < end; i++ {
		sc.Lines = append(sc.Lines, SourceLine{Number: i + 1, Text: lines[i]})
	}
	return sc
}
