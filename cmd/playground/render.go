package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"code-playground/internal/library"
	"code-playground/internal/playground"
	"code-playground/internal/sandbox"
	"code-playground/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("81"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	errorBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1)

	explainBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("81")).
			Padding(0, 1)
)

var titleCase = cases.Title(language.English)

func statusStyle(s sandbox.Status) lipgloss.Style {
	switch s {
	case sandbox.StatusSuccess:
		return successStyle
	case sandbox.StatusTimeout:
		return warnStyle
	default:
		return errorStyle
	}
}

// renderReport prints output unstyled so it can be piped, followed by the
// diagnosis box and a dim footer.
func renderReport(w io.Writer, rep *playground.Report) {
	if rep.Output != nil && *rep.Output != "" {
		fmt.Fprint(w, *rep.Output)
		if !strings.HasSuffix(*rep.Output, "\n") {
			fmt.Fprintln(w)
		}
	}

	if rep.Error != nil {
		var b strings.Builder
		heading := "Error"
		if rep.Category != "" {
			heading = titleCase.String(rep.Category.Label()) + " error"
		}
		b.WriteString(errorStyle.Render(heading))
		b.WriteString("\n" + *rep.Error)
		if rep.ErrorAnalysis != nil {
			b.WriteString("\n\n" + *rep.ErrorAnalysis)
		}
		if rep.ErrorContext != nil {
			b.WriteString("\n\n" + dimStyle.Render(fmt.Sprintf("around line %d:", rep.ErrorContext.LineNumber)))
			b.WriteString("\n" + rep.ErrorContext.Context)
		}
		fmt.Fprintln(w, errorBoxStyle.Render(b.String()))
	}

	if rep.Explanation != "" {
		fmt.Fprintln(w, explainBoxStyle.Render(titleStyle.Render("What this code does")+"\n"+rep.Explanation))
	}

	for _, d := range rep.Detections {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("! %s (%s): %s", d.Pattern, d.Severity, d.Detail)))
	}

	footer := []string{statusStyle(rep.Status).Render(titleCase.String(string(rep.Status)))}
	if rep.Duration != "" {
		footer = append(footer, dimStyle.Render(rep.Duration))
	}
	if rep.Backend != "" {
		footer = append(footer, dimStyle.Render(rep.Backend))
	}
	if rep.Truncated {
		footer = append(footer, warnStyle.Render("output truncated"))
	}
	fmt.Fprintln(w, strings.Join(footer, dimStyle.Render(" · ")))
}

func renderExamples(w io.Writer, examples []library.Example) {
	for _, ex := range examples {
		fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(ex.Label()), dimStyle.Render(ex.Slug))
	}
}

func renderExecutions(w io.Writer, execs []storage.Execution) {
	if len(execs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no executions recorded"))
		return
	}
	for _, e := range execs {
		status := statusStyle(sandbox.Status(e.Status)).Render(fmt.Sprintf("%-8s", e.Status))
		line := fmt.Sprintf("%s  %s  %6dms", dimStyle.Render(e.ID), status, e.DurationMS)
		if e.Category != "" {
			line += "  " + e.Category
		}
		fmt.Fprintln(w, line)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
