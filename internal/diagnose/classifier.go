// Package diagnose turns a failed execution into a Diagnostic a beginner can act on.
package diagnose

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"code-playground/internal/capability"
)

// Guidance strings returned for recognised failures.
const (
	MsgMissingColon        = "Missing colon (:) after control statement"
	MsgMismatchedParens    = "Mismatched parentheses"
	MsgMismatchedBrackets  = "Mismatched square brackets"
	MsgMismatchedBraces    = "Mismatched curly braces"
	MsgUnexpectedIndent    = "Incorrect indentation. Check your code's indentation level"
	MsgMissingIndent       = "Missing indentation after control statement"
	MsgIndentation         = "Check your indentation. Python uses indentation to define code blocks"
	MsgZeroDivision        = "You're trying to divide by zero"
	MsgOperandTypes        = "You're trying to perform an operation on incompatible types. Check the types of your variables"
	MsgNotCallable         = "You're trying to call something that isn't a function"
	msgReservedUndefined   = "The function '%s' needs to be imported or defined"
	msgUndefinedBeforeUsed = "The variable or function '%s' hasn't been defined before using it"
)

// Diagnostic is the structured explanation of a failure.
type Diagnostic struct {
	Category     Kind           `json:"category"`
	RawMessage   string         `json:"raw_message"`
	HumanMessage string         `json:"human_message"`
	Context      *SourceContext `json:"context,omitempty"`
}

// Window bounds the source context around the failing line.
type Window struct {
	Before int `json:"before" yaml:"before"`
	After  int `json:"after" yaml:"after"`
}

// DefaultWindow shows one line either side of the failure.
var DefaultWindow = Window{Before: 1, After: 1}

// Classifier maps failures to Diagnostics. It holds no mutable state and is
// safe for concurrent use.
type Classifier struct {
	window   Window
	reserved func(string) bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithWindow sets the context window; negative sizes are treated as zero.
func WithWindow(w Window) Option {
	return func(c *Classifier) {
		c.window = Window{Before: max(w.Before, 0), After: max(w.After, 0)}
	}
}

// WithCapabilities takes the reserved built-in names from tbl.
func WithCapabilities(tbl *capability.Table) Option {
	return func(c *Classifier) {
		c.reserved = tbl.IsReserved
	}
}

// New returns a Classifier using DefaultWindow and the default capability table.
func New(opts ...Option) *Classifier {
	c := &Classifier{window: DefaultWindow}
	WithCapabilities(capability.Build())(c)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify diagnoses a raw failure signal such as "NameError: name 'x' is not defined".
// It never panics; on internal failure the raw signal is passed through as KindOther.
func (c *Classifier) Classify(raw, source string) (d Diagnostic) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("classifier recovered from panic")
			d = Diagnostic{Category: KindOther, RawMessage: raw, HumanMessage: raw}
		}
	}()

	kind := kindFromSignal(raw)
	d = Diagnostic{
		Category:     kind,
		RawMessage:   raw,
		HumanMessage: c.explain(kind, raw, undefinedName(raw), source),
	}
	if n, ok := lineNumber(raw); ok {
		d.Context = c.contextAt(n, source)
	}
	return d
}

// Diagnose explains a typed fault from the worker. No traceback text is
// parsed except to recover a line the worker did not report.
func (c *Classifier) Diagnose(f Fault, source string) (d Diagnostic) {
	raw := f.RawSignal()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("classifier recovered from panic")
			d = Diagnostic{Category: KindOther, RawMessage: raw, HumanMessage: raw}
		}
	}()

	name := f.Name
	if name == "" {
		name = undefinedName(f.Message)
	}
	d = Diagnostic{
		Category:     f.Kind,
		RawMessage:   raw,
		HumanMessage: c.explain(f.Kind, raw, name, source),
	}
	line := f.Line
	if line <= 0 {
		line, _ = lineNumber(f.Message)
	}
	if line > 0 {
		d.Context = c.contextAt(line, source)
	}
	return d
}

func (c *Classifier) explain(kind Kind, raw, name, source string) string {
	switch kind {
	case KindSyntax:
		return explainSyntax(raw, source)
	case KindName:
		return c.explainName(raw, name)
	case KindType:
		return explainType(raw)
	case KindIndentation:
		return MsgIndentation
	case KindZeroDivision:
		return MsgZeroDivision
	default:
		return raw
	}
}

var blockStmtRe = regexp.MustCompile(`(?m)^\s*(if|elif|else|for|while|def|class|try|except|finally|with)\b`)

func explainSyntax(raw, source string) string {
	switch {
	case strings.Contains(raw, "invalid syntax"):
		if !strings.Contains(source, ":") && blockStmtRe.MatchString(source) {
			return MsgMissingColon
		}
		if hint := unbalanced(source); hint != "" {
			return hint
		}
	case strings.Contains(raw, "expected ':'"):
		return MsgMissingColon
	case strings.Contains(raw, "was never closed"),
		strings.Contains(raw, "unmatched"),
		strings.Contains(raw, "does not match opening"):
		if hint := unbalanced(source); hint != "" {
			return hint
		}
	case strings.Contains(raw, "unexpected indent"):
		return MsgUnexpectedIndent
	case strings.Contains(raw, "expected an indented block"):
		return MsgMissingIndent
	}
	return raw
}

// unbalanced compares bracket counts in order (), [], {}; first mismatch wins.
func unbalanced(source string) string {
	pairs := []struct {
		open, close string
		msg         string
	}{
		{"(", ")", MsgMismatchedParens},
		{"[", "]", MsgMismatchedBrackets},
		{"{", "}", MsgMismatchedBraces},
	}
	for _, p := range pairs {
		if strings.Count(source, p.open) != strings.Count(source, p.close) {
			return p.msg
		}
	}
	return ""
}

func (c *Classifier) explainName(raw, name string) string {
	if name == "" {
		return raw
	}
	if c.reserved != nil && c.reserved(name) {
		return fmt.Sprintf(msgReservedUndefined, name)
	}
	return fmt.Sprintf(msgUndefinedBeforeUsed, name)
}

func explainType(raw string) string {
	switch {
	case strings.Contains(raw, "unsupported operand type(s)"):
		return MsgOperandTypes
	case strings.Contains(raw, "object is not callable"):
		return MsgNotCallable
	}
	return raw
}
