package diagnostics

// Verdict is the run-level outcome.
type Verdict string

const (
	VerdictPass             Verdict = "pass"
	VerdictFail             Verdict = "fail"
	VerdictPassWithWarnings Verdict = "pass-with-warnings"
)

// ApplyStrictMode promotes warnings to errors when strict is set.
// The input slice is not mutated.
func ApplyStrictMode(diags []Diagnostic, strict bool) []Diagnostic {
	if !strict {
		return diags
	}
	out := make([]Diagnostic, len(diags))
	copy(out, diags)
	for i := range out {
		if out[i].Severity == SeverityWarning {
			out[i].Severity = SeverityError
		}
	}
	return out
}

// ComputeVerdict folds pooled diagnostics into the run verdict.
// Strict-mode promotion is applied first.
func ComputeVerdict(diags []Diagnostic, strict bool) Verdict {
	effective := ApplyStrictMode(diags, strict)

	warnings := 0
	for _, d := range effective {
		switch d.Severity {
		case SeverityError:
			return VerdictFail
		case SeverityWarning:
			warnings++
		}
	}
	if warnings > 0 {
		return VerdictPassWithWarnings
	}
	return VerdictPass
}
