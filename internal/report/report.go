// Package report renders validation results for terminal output.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"toolcheck/internal/diagnostics"
	"toolcheck/internal/orchestrator"
)

// Options controls rendering.
type Options struct {
	// Verbose includes per-test counts and diagnostic context.
	Verbose bool
}

// Render writes a plain-text summary of a run.
func Render(w io.Writer, result *orchestrator.Result, opts Options) error {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Validation run %s\n", result.RunID))
	b.WriteString(fmt.Sprintf("Verdict: %s\n", strings.ToUpper(string(result.Verdict))))
	b.WriteString(fmt.Sprintf("Tools: %d tested, %d passed, %d failed (%.1fs)\n",
		result.ToolsTested, result.ToolsPassed, result.ToolsFailed, result.Duration.Seconds()))
	b.WriteString("\n")

	for _, tr := range result.ToolResults {
		marker := "PASS"
		if !tr.Passed {
			marker = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s", marker, tr.ToolName))
		if opts.Verbose {
			b.WriteString(fmt.Sprintf(" (%d execution(s), %d passed, %d failed)",
				tr.Summary.TotalExecutions, tr.Summary.PassedTests, tr.Summary.FailedTests))
		}
		b.WriteString("\n")

		for _, d := range tr.Diagnostics {
			b.WriteString(fmt.Sprintf("  %s %s: %s\n", d.Code, d.Severity, d.Message))
			if opts.Verbose && len(d.Context) > 0 {
				for _, k := range sortedKeys(d.Context) {
					b.WriteString(fmt.Sprintf("    %s: %v\n", k, d.Context[k]))
				}
			}
		}
	}

	if result.ToolsFailed > 0 {
		b.WriteString(fmt.Sprintf("\n%d tool(s) failed validation\n", result.ToolsFailed))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderJSON writes the full result as indented JSON.
func RenderJSON(w io.Writer, result *orchestrator.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// CountBySeverity tallies pooled diagnostics per severity.
func CountBySeverity(diags []diagnostics.Diagnostic) (errors, warnings int) {
	for _, d := range diags {
		if d.IsError() {
			errors++
		} else {
			warnings++
		}
	}
	return errors, warnings
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
