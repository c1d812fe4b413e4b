// Package runner executes a contract's declared test cases through the
// sandbox, tagging raw results with test metadata. Tests run strictly
// one at a time: per-test environment overrides mutate process-wide
// state and must never interleave.
package runner

import (
	"context"
	"os"
	"time"

	"toolcheck/internal/contract"
	"toolcheck/internal/logging"
	"toolcheck/internal/observer"
	"toolcheck/internal/sandbox"
)

// ToolExecutor is the sandbox capability the runner consumes.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, name string, inputs []map[string]interface{}, timeout time.Duration) []sandbox.ExecutionResult
}

// TestExecutionResult is a sandbox outcome tagged with the test that
// produced it.
type TestExecutionResult struct {
	sandbox.ExecutionResult

	TestName             string
	TestInput            map[string]interface{}
	Expectation          *contract.TestExpectation
	ExpectedOutputSchema string
}

// RunContractTests executes each declared test in order. The per-call
// timeout is, in precedence: the explicit override, the contract's
// max_execution_time guarantee, then the executor default.
func RunContractTests(ctx context.Context, exec ToolExecutor, pc *contract.ParsedContract, timeoutOverride time.Duration) []TestExecutionResult {
	c := &pc.Contract
	timeout := resolveTimeout(c, timeoutOverride)

	results := make([]TestExecutionResult, 0, len(c.Tests))
	for _, test := range c.Tests {
		restore := applyEnvOverrides(test.Env)

		logging.Get(logging.CategoryRunner).Debug("Running test %q for tool %s", test.Name, c.Tool)
		raw := exec.ExecuteTool(ctx, c.Tool, []map[string]interface{}{test.Input}, timeout)

		// Restore before touching the results so a panic in tagging can
		// never leak environment state into the next test.
		restore()

		tagged := TestExecutionResult{
			TestName:    test.Name,
			TestInput:   test.Input,
			Expectation: test.Expect,
		}
		if test.Expect != nil && test.Expect.OutputSchema != "" {
			tagged.ExpectedOutputSchema = test.Expect.OutputSchema
		}
		if len(raw) > 0 {
			tagged.ExecutionResult = raw[0]
		} else {
			tagged.ExecutionResult = sandbox.ExecutionResult{
				Success: false,
				Error:   &sandbox.ClassifiedError{Type: sandbox.ErrorTypeConnection, Message: "no result from sandbox"},
			}
		}
		results = append(results, tagged)
	}
	return results
}

// resolveTimeout picks the per-call bound for this contract's tests.
func resolveTimeout(c *contract.ToolContract, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if c.Guarantees != nil && c.Guarantees.MaxExecutionTime != "" {
		if d, err := observer.ParseTimeLimit(c.Guarantees.MaxExecutionTime); err == nil {
			return d
		}
	}
	return 0 // executor default
}

// applyEnvOverrides applies the test's environment entries to the
// current process and returns a restore function that reverts the
// environment to its exact prior state: added keys removed, changed
// keys reverted.
func applyEnvOverrides(env map[string]string) func() {
	if len(env) == 0 {
		return func() {}
	}

	type prior struct {
		value  string
		wasSet bool
	}
	saved := make(map[string]prior, len(env))
	for key, value := range env {
		old, wasSet := os.LookupEnv(key)
		saved[key] = prior{value: old, wasSet: wasSet}
		os.Setenv(key, value)
	}

	return func() {
		for key, p := range saved {
			if p.wasSet {
				os.Setenv(key, p.value)
			} else {
				os.Unsetenv(key)
			}
		}
	}
}
