package orchestrator

import (
	"fmt"
	"regexp"
	"strings"

	"toolcheck/internal/contract"
	"toolcheck/internal/diagnostics"
	"toolcheck/internal/runner"
	"toolcheck/internal/sandbox"
)

// expectationKind classifies what a test's expectation demands of its
// own execution.
type expectationKind int

const (
	// expectSuccess: the execution itself must succeed. This covers
	// tests with no error expectation and tool-level expectations
	// (side_effect, output_explosion), whose violations are detected
	// separately at tool granularity.
	expectSuccess expectationKind = iota
	// expectTimeout: the execution must fail with a timeout-family error.
	expectTimeout
	// expectRuntimeFailure: the execution must fail with a generic
	// runtime error.
	expectRuntimeFailure
	// expectOrdinaryError: the execution must fail and match the
	// declared error expectation.
	expectOrdinaryError
)

// syntheticPrefixes mark exploratory test names that never produce
// mismatch diagnostics when they carry no explicit expectation.
var syntheticPrefixes = []string{"synthetic:", "probe:", "exploratory:"}

// isSyntheticName reports whether a test name marks an exploratory probe.
func isSyntheticName(name string) bool {
	for _, p := range syntheticPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// classifyExpectation determines what outcome the test demands.
// Tool-level error types (side_effect, output_explosion) expect the
// execution itself to succeed; the violation is the Behavior Observer's
// to find.
func classifyExpectation(expect *contract.TestExpectation) expectationKind {
	if expect == nil || !expectsError(expect) {
		return expectSuccess
	}
	if expect.Error != nil {
		switch expect.Error.Type {
		case contract.ErrorTypeSideEffect, contract.ErrorTypeOutputExplosion:
			return expectSuccess
		case contract.ErrorTypeUnboundedExecution:
			return expectTimeout
		case contract.ErrorTypeExecutionError:
			return expectRuntimeFailure
		}
	}
	return expectOrdinaryError
}

// expectsError reports whether the expectation declares a failure.
func expectsError(expect *contract.TestExpectation) bool {
	if expect.Error != nil {
		return true
	}
	return expect.Success != nil && !*expect.Success
}

// errorFamilies maps a contract error type to the sandbox error types
// it accepts. unbounded_execution accepts either the timeout or the
// connection classification of a hung server.
var errorFamilies = map[contract.ErrorType][]sandbox.ErrorType{
	contract.ErrorTypeInputValidation:    {sandbox.ErrorTypeInputValidation},
	contract.ErrorTypeOutputValidation:   {sandbox.ErrorTypeOutputValidation},
	contract.ErrorTypeExecutionError:     {sandbox.ErrorTypeExecution},
	contract.ErrorTypeUnboundedExecution: {sandbox.ErrorTypeTimeout, sandbox.ErrorTypeConnection},
}

// reconcileOutcome is the per-test verdict from expectation matching.
type reconcileOutcome struct {
	passed   bool
	mismatch bool // reserve the result from output validation to avoid double reporting
	diags    []diagnostics.Diagnostic
}

// reconcileResult matches one tagged execution result against its
// expectation and produces mismatch diagnostics. Synthetic tests with
// no explicit expectation never produce diagnostics.
func reconcileResult(tool string, r runner.TestExecutionResult) reconcileOutcome {
	if r.Expectation == nil && isSyntheticName(r.TestName) {
		return reconcileOutcome{passed: true}
	}

	kind := classifyExpectation(r.Expectation)

	switch kind {
	case expectSuccess:
		if r.Success {
			return reconcileOutcome{passed: true}
		}
		return reconcileOutcome{
			mismatch: true,
			diags:    unexpectedFailureDiags(tool, r),
		}

	case expectTimeout, expectRuntimeFailure, expectOrdinaryError:
		if r.Success {
			return reconcileOutcome{
				mismatch: true,
				diags: diagnostics.Check(diagnostics.CodeUnexpectedResult, diagnostics.RuleContext{
					Tool:     tool,
					TestName: r.TestName,
					Summary:  "expected an error but the execution succeeded",
					Context:  map[string]interface{}{"expected": describeExpectation(r.Expectation)},
				}),
			}
		}
		if matched, reason := matchExpectedError(r.Expectation.Error, r.Error); !matched {
			return reconcileOutcome{
				mismatch: true,
				diags: diagnostics.Check(diagnostics.CodeUnexpectedResult, diagnostics.RuleContext{
					Tool:     tool,
					TestName: r.TestName,
					Summary:  reason,
					Context: map[string]interface{}{
						"expected": describeExpectation(r.Expectation),
						"actual":   describeError(r.Error),
					},
				}),
			}
		}
		return reconcileOutcome{passed: true}
	}

	return reconcileOutcome{passed: true}
}

// unexpectedFailureDiags routes an unexpected error to its specific
// diagnostic when the failure carries a validation classification,
// else to the generic unexpected-result code.
func unexpectedFailureDiags(tool string, r runner.TestExecutionResult) []diagnostics.Diagnostic {
	ctx := diagnostics.RuleContext{
		Tool:     tool,
		TestName: r.TestName,
		Summary:  errorMessage(r.Error),
		Context:  map[string]interface{}{"input": r.TestInput},
	}
	if r.Error != nil {
		switch r.Error.Type {
		case sandbox.ErrorTypeInputValidation:
			return diagnostics.Check(diagnostics.CodeInputValidation, ctx)
		case sandbox.ErrorTypeOutputValidation:
			return diagnostics.Check(diagnostics.CodeOutputValidation, ctx)
		}
	}
	return diagnostics.Check(diagnostics.CodeUnexpectedResult, ctx)
}

// matchExpectedError applies the match precedence: error type family
// first, then exact code, then structured details parsed best-effort
// from the raw message.
func matchExpectedError(expected *contract.ErrorExpectation, actual *sandbox.ClassifiedError) (bool, string) {
	if expected == nil {
		// success: false without details; any error satisfies it.
		return true, ""
	}
	if actual == nil {
		return false, "execution failed without a classified error"
	}

	if expected.Type != "" {
		family := errorFamilies[expected.Type]
		for _, accept := range family {
			if actual.Type == accept {
				return true, ""
			}
		}
		return false, fmt.Sprintf("expected error type %s, got %s", expected.Type, actual.Type)
	}

	if expected.Code != "" {
		if matchErrorCode(expected.Code, actual) {
			return true, ""
		}
		return false, fmt.Sprintf("expected error code %s not found in %q", expected.Code, actual.Message)
	}

	if expected.Details != nil {
		return matchErrorDetails(expected.Details, actual)
	}

	return true, ""
}

// matchErrorCode looks for an exact code match in the classified
// context or as a token of the raw message.
func matchErrorCode(code string, actual *sandbox.ClassifiedError) bool {
	if actual.Context != nil {
		if rpcCode, ok := actual.Context["rpc_code"]; ok {
			if fmt.Sprintf("%v", rpcCode) == code {
				return true
			}
		}
	}
	return containsToken(actual.Message, code)
}

// containsToken reports whether msg contains code as a standalone token.
func containsToken(msg, code string) bool {
	for _, tok := range strings.FieldsFunc(msg, func(r rune) bool {
		return r == ' ' || r == ':' || r == ',' || r == '(' || r == ')' || r == '[' || r == ']'
	}) {
		if tok == code {
			return true
		}
	}
	return false
}

// Error-detail extraction patterns. Parsing is advisory; failures
// degrade to substring matching or a generic summary.
var (
	requiredFieldPattern = regexp.MustCompile(`'([^']+)' is a required (?:property|field)`)
	fieldNamePattern     = regexp.MustCompile(`(?:field|property|parameter|argument) ['"]?(\w+)['"]?`)
	expectedTypePattern  = regexp.MustCompile(`(?:expected|must be(?: of type| a| an)?) ['"]?(\w+)['"]?`)
	receivedTypePattern  = regexp.MustCompile(`(?:got|received|is not of type) ['"]?(\w+)['"]?`)
)

// parsedDetails is the structure extracted from a raw error message.
type parsedDetails struct {
	field    string
	expected string
	received string
}

// parseErrorMessage extracts structured hints from a raw error text.
func parseErrorMessage(msg string) parsedDetails {
	var d parsedDetails
	if m := requiredFieldPattern.FindStringSubmatch(msg); m != nil {
		d.field = m[1]
	} else if m := fieldNamePattern.FindStringSubmatch(msg); m != nil {
		d.field = m[1]
	}
	if m := expectedTypePattern.FindStringSubmatch(msg); m != nil {
		d.expected = m[1]
	}
	if m := receivedTypePattern.FindStringSubmatch(msg); m != nil {
		d.received = m[1]
	}
	return d
}

// matchErrorDetails matches declared hints against the raw message:
// field name, message substring, and extracted type hints.
func matchErrorDetails(details *contract.ErrorDetails, actual *sandbox.ClassifiedError) (bool, string) {
	msg := actual.Message
	lower := strings.ToLower(msg)
	parsed := parseErrorMessage(msg)

	if details.Field != "" {
		if parsed.field != details.Field && !strings.Contains(lower, strings.ToLower(details.Field)) {
			return false, fmt.Sprintf("expected failure on field %q, got %q", details.Field, summarize(msg))
		}
	}
	if details.Message != "" {
		if !strings.Contains(lower, strings.ToLower(details.Message)) {
			return false, fmt.Sprintf("expected message containing %q, got %q", details.Message, summarize(msg))
		}
	}
	if details.Expected != "" {
		if parsed.expected != details.Expected && !strings.Contains(lower, strings.ToLower(details.Expected)) {
			return false, fmt.Sprintf("expected type %q not mentioned in %q", details.Expected, summarize(msg))
		}
	}
	if details.Received != "" {
		if parsed.received != details.Received && !strings.Contains(lower, strings.ToLower(details.Received)) {
			return false, fmt.Sprintf("received type %q not mentioned in %q", details.Received, summarize(msg))
		}
	}
	if details.Type != "" {
		if !strings.Contains(lower, strings.ToLower(details.Type)) {
			return false, fmt.Sprintf("expected type hint %q not mentioned in %q", details.Type, summarize(msg))
		}
	}
	return true, ""
}

// summarize truncates a raw error message for diagnostics.
func summarize(msg string) string {
	const limit = 120
	if len(msg) <= limit {
		return msg
	}
	return msg[:limit] + "..."
}

// describeExpectation renders an expectation for diagnostic context.
func describeExpectation(expect *contract.TestExpectation) string {
	if expect == nil {
		return "success"
	}
	if expect.Error != nil {
		var parts []string
		if expect.Error.Type != "" {
			parts = append(parts, "type="+string(expect.Error.Type))
		}
		if expect.Error.Code != "" {
			parts = append(parts, "code="+expect.Error.Code)
		}
		if expect.Error.Details != nil {
			parts = append(parts, "details")
		}
		return "error{" + strings.Join(parts, ",") + "}"
	}
	if expect.Success != nil && !*expect.Success {
		return "failure"
	}
	return "success"
}

// describeError renders a classified error for diagnostic context.
func describeError(err *sandbox.ClassifiedError) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%s: %s", err.Type, summarize(err.Message))
}

// errorMessage extracts a safe message from a possibly-nil error.
func errorMessage(err *sandbox.ClassifiedError) string {
	if err == nil {
		return "unknown failure"
	}
	return summarize(err.Message)
}
