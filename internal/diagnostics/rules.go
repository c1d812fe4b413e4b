package diagnostics

import "fmt"

// RuleContext carries everything a rule needs to construct its
// diagnostics: the tool under test, the triggering test (if any), a
// human-oriented summary, and free-form structured context.
type RuleContext struct {
	Tool     string
	TestName string
	Summary  string
	Context  map[string]interface{}
}

// RuleFunc constructs the diagnostics for one error code. Every rule
// shares this exact shape, so the family is tagged data keyed by code
// rather than a type hierarchy.
type RuleFunc func(ctx RuleContext) []Diagnostic

// rules is the closed rule set. Diagnostics are only ever constructed
// through Check so messages stay uniform per code.
var rules = map[Code]RuleFunc{
	CodeToolNotFound: func(ctx RuleContext) []Diagnostic {
		return []Diagnostic{{
			Code:     CodeToolNotFound,
			Severity: SeverityError,
			Tool:     ctx.Tool,
			Message:  fmt.Sprintf("tool %q is not exposed by the server", ctx.Tool),
			Context:  ctx.Context,
		}}
	},
	CodeInputValidation: func(ctx RuleContext) []Diagnostic {
		return []Diagnostic{{
			Code:     CodeInputValidation,
			Severity: SeverityError,
			Tool:     ctx.Tool,
			Message:  withTest(ctx, "input validation failed"),
			Context:  ctx.Context,
		}}
	},
	CodeOutputValidation: func(ctx RuleContext) []Diagnostic {
		return []Diagnostic{{
			Code:     CodeOutputValidation,
			Severity: SeverityError,
			Tool:     ctx.Tool,
			Message:  withTest(ctx, "output does not match the declared schema"),
			Context:  ctx.Context,
		}}
	},
	CodeOutputExplosion: func(ctx RuleContext) []Diagnostic {
		return []Diagnostic{{
			Code:     CodeOutputExplosion,
			Severity: SeverityError,
			Tool:     ctx.Tool,
			Message:  withTest(ctx, "output exceeds the declared size limit"),
			Context:  ctx.Context,
		}}
	},
	CodeExecutionFailed: func(ctx RuleContext) []Diagnostic {
		return []Diagnostic{{
			Code:     CodeExecutionFailed,
			Severity: SeverityError,
			Tool:     ctx.Tool,
			Message:  withTest(ctx, "tool execution failed"),
			Context:  ctx.Context,
		}}
	},
	CodeUnboundedExecution: func(ctx RuleContext) []Diagnostic {
		return []Diagnostic{{
			Code:     CodeUnboundedExecution,
			Severity: SeverityError,
			Tool:     ctx.Tool,
			Message:  withTest(ctx, "execution did not complete within its bound"),
			Context:  ctx.Context,
		}}
	},
	CodeSideEffect: func(ctx RuleContext) []Diagnostic {
		return []Diagnostic{{
			Code:     CodeSideEffect,
			Severity: SeverityError,
			Tool:     ctx.Tool,
			Message:  withTest(ctx, "durable side effects observed despite side_effects: none"),
			Context:  ctx.Context,
		}}
	},
	CodeUnexpectedResult: func(ctx RuleContext) []Diagnostic {
		return []Diagnostic{{
			Code:     CodeUnexpectedResult,
			Severity: SeverityError,
			Tool:     ctx.Tool,
			Message:  withTest(ctx, "test outcome differs from the declared expectation"),
			Context:  ctx.Context,
		}}
	},
}

// Check runs the rule for code. Unknown codes produce nothing; rules
// are the only constructor for diagnostics with a code.
func Check(code Code, ctx RuleContext) []Diagnostic {
	rule, ok := rules[code]
	if !ok {
		return nil
	}
	diags := rule(ctx)
	// The rule supplies the uniform prefix; the caller's summary adds
	// the specifics.
	if ctx.Summary != "" {
		for i := range diags {
			diags[i].Message = diags[i].Message + ": " + ctx.Summary
		}
	}
	return diags
}

// withTest prefixes a message with the triggering test name.
func withTest(ctx RuleContext, msg string) string {
	if ctx.TestName == "" {
		return msg
	}
	return fmt.Sprintf("test %q: %s", ctx.TestName, msg)
}
