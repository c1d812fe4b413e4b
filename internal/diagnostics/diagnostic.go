// Package diagnostics defines the structured findings produced by
// contract validation and the closed rule family that constructs them.
// Diagnostics are never fatal: they are pooled, filtered, and drive
// only the pass/fail verdict.
package diagnostics

import "toolcheck/internal/contract"

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Code identifies the rule that produced a diagnostic.
type Code string

const (
	CodeToolNotFound       Code = "E000"
	CodeInputValidation    Code = "E200"
	CodeOutputValidation   Code = "E300"
	CodeOutputExplosion    Code = "E301"
	CodeExecutionFailed    Code = "E400"
	CodeUnboundedExecution Code = "E403"
	CodeSideEffect         Code = "E500"
	CodeUnexpectedResult   Code = "E600"
)

// Diagnostic is one structured finding.
type Diagnostic struct {
	Code     Code                   `json:"code"`
	Severity Severity               `json:"severity"`
	Message  string                 `json:"message"`
	Tool     string                 `json:"tool"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// IsError reports whether the diagnostic counts against the verdict.
func (d Diagnostic) IsError() bool {
	return d.Severity == SeverityError
}

// codeForErrorType maps a contract error type to the diagnostic code
// that reports it at tool level. Used by acceptance filtering: a
// contract that expects an error type anywhere has acknowledged the
// behavioral signature behind the mapped code.
var codeForErrorType = map[contract.ErrorType]Code{
	contract.ErrorTypeInputValidation:    CodeInputValidation,
	contract.ErrorTypeOutputValidation:   CodeOutputValidation,
	contract.ErrorTypeOutputExplosion:    CodeOutputExplosion,
	contract.ErrorTypeExecutionError:     CodeExecutionFailed,
	contract.ErrorTypeUnboundedExecution: CodeUnboundedExecution,
	contract.ErrorTypeSideEffect:         CodeSideEffect,
}

// CodeForErrorType resolves the diagnostic code reporting a contract
// error type, and whether one exists.
func CodeForErrorType(t contract.ErrorType) (Code, bool) {
	c, ok := codeForErrorType[t]
	return c, ok
}

// FilterAccepted removes diagnostics whose code maps to an error type
// the contract explicitly expects in any test. Those signatures are
// already acknowledged by the contract author.
func FilterAccepted(diags []Diagnostic, expected map[contract.ErrorType]bool) []Diagnostic {
	if len(expected) == 0 {
		return diags
	}
	accepted := make(map[Code]bool, len(expected))
	for t := range expected {
		if code, ok := codeForErrorType[t]; ok {
			accepted[code] = true
		}
	}

	kept := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		if accepted[d.Code] {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}
