package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolcheck/internal/contract"
)

func TestCheckConstructsDiagnostics(t *testing.T) {
	diags := Check(CodeToolNotFound, RuleContext{Tool: "get_weather"})
	require.Len(t, diags, 1)
	assert.Equal(t, CodeToolNotFound, diags[0].Code)
	assert.Equal(t, SeverityError, diags[0].Severity)
	assert.Equal(t, "get_weather", diags[0].Tool)
	assert.Contains(t, diags[0].Message, "get_weather")

	diags = Check(CodeUnexpectedResult, RuleContext{
		Tool:     "t",
		TestName: "empty city",
		Summary:  "expected error type input_validation, got execution_error",
	})
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, `test "empty city"`)
	assert.Contains(t, diags[0].Message, "input_validation")
}

func TestCheckUnknownCode(t *testing.T) {
	assert.Empty(t, Check(Code("E999"), RuleContext{Tool: "t"}))
}

func TestCodeForErrorType(t *testing.T) {
	code, ok := CodeForErrorType(contract.ErrorTypeSideEffect)
	require.True(t, ok)
	assert.Equal(t, CodeSideEffect, code)

	_, ok = CodeForErrorType(contract.ErrorType("nonsense"))
	assert.False(t, ok)
}

func TestFilterAccepted(t *testing.T) {
	diags := []Diagnostic{
		{Code: CodeSideEffect, Severity: SeverityError, Tool: "t"},
		{Code: CodeOutputExplosion, Severity: SeverityError, Tool: "t"},
		{Code: CodeExecutionFailed, Severity: SeverityError, Tool: "t"},
	}
	expected := map[contract.ErrorType]bool{
		contract.ErrorTypeSideEffect:      true,
		contract.ErrorTypeOutputExplosion: true,
	}

	kept := FilterAccepted(diags, expected)
	require.Len(t, kept, 1)
	assert.Equal(t, CodeExecutionFailed, kept[0].Code)
}

func TestFilterAcceptedNoExpectations(t *testing.T) {
	diags := []Diagnostic{{Code: CodeSideEffect}}
	assert.Equal(t, diags, FilterAccepted(diags, nil))
}

func TestApplyStrictMode(t *testing.T) {
	diags := []Diagnostic{
		{Code: CodeUnexpectedResult, Severity: SeverityWarning},
		{Code: CodeExecutionFailed, Severity: SeverityError},
	}

	promoted := ApplyStrictMode(diags, true)
	assert.Equal(t, SeverityError, promoted[0].Severity)
	// Original slice untouched.
	assert.Equal(t, SeverityWarning, diags[0].Severity)

	same := ApplyStrictMode(diags, false)
	assert.Equal(t, SeverityWarning, same[0].Severity)
}

func TestComputeVerdict(t *testing.T) {
	assert.Equal(t, VerdictPass, ComputeVerdict(nil, false))

	warnings := []Diagnostic{{Severity: SeverityWarning}}
	assert.Equal(t, VerdictPassWithWarnings, ComputeVerdict(warnings, false))
	assert.Equal(t, VerdictFail, ComputeVerdict(warnings, true),
		"strict mode promotes warnings before the verdict")

	errors := []Diagnostic{{Severity: SeverityError}}
	assert.Equal(t, VerdictFail, ComputeVerdict(errors, false))
}
