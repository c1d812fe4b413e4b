// Package contract defines the tool contract document format and its loader.
// A contract declares one tool's schema references, behavioral guarantees,
// and test cases; it is validated strictly before any execution happens.
package contract

// ErrorType is the taxonomy of error classes a contract test may expect.
type ErrorType string

const (
	ErrorTypeInputValidation    ErrorType = "input_validation"
	ErrorTypeOutputValidation   ErrorType = "output_validation"
	ErrorTypeExecutionError     ErrorType = "execution_error"
	ErrorTypeOutputExplosion    ErrorType = "output_explosion"
	ErrorTypeUnboundedExecution ErrorType = "unbounded_execution"
	ErrorTypeSideEffect         ErrorType = "side_effect"
)

// knownErrorTypes is the closed set accepted in an ErrorExpectation.
var knownErrorTypes = map[ErrorType]bool{
	ErrorTypeInputValidation:    true,
	ErrorTypeOutputValidation:   true,
	ErrorTypeExecutionError:     true,
	ErrorTypeOutputExplosion:    true,
	ErrorTypeUnboundedExecution: true,
	ErrorTypeSideEffect:         true,
}

// ToolContract is one parsed contract document.
type ToolContract struct {
	Version    int           `yaml:"version"`
	Tool       string        `yaml:"tool"`
	Contract   SchemaRefs    `yaml:"contract"`
	Guarantees *Guarantees   `yaml:"guarantees,omitempty"`
	Tests      []ContractTest `yaml:"tests,omitempty"`
}

// SchemaRefs names the schema definitions the tool's inputs and outputs
// must conform to. The names are resolved against the live server's
// declared schemas at validation time.
type SchemaRefs struct {
	InputSchema  string `yaml:"input_schema"`
	OutputSchema string `yaml:"output_schema,omitempty"`
}

// Guarantees are the contract-declared behavioral properties checked by
// observation: determinism, side-effect policy, size bound, time bound.
type Guarantees struct {
	Deterministic    *bool  `yaml:"deterministic,omitempty"`
	SideEffects      string `yaml:"side_effects,omitempty"`       // "none" | "filesystem"
	MaxOutputSize    string `yaml:"max_output_size,omitempty"`    // e.g. "50kb"
	MaxExecutionTime string `yaml:"max_execution_time,omitempty"` // e.g. "5s"
}

// ContractTest is one declared test case.
type ContractTest struct {
	Name   string                 `yaml:"name"`
	Input  map[string]interface{} `yaml:"input"`
	Expect *TestExpectation       `yaml:"expect,omitempty"`
	Env    map[string]string      `yaml:"env,omitempty"`
}

// TestExpectation declares what a test's execution should produce.
// Success=true together with Error is invalid; Success=false requires Error.
type TestExpectation struct {
	Success      *bool             `yaml:"success,omitempty"`
	OutputSchema string            `yaml:"output_schema,omitempty"`
	Error        *ErrorExpectation `yaml:"error,omitempty"`
}

// ErrorExpectation matches an expected failure. At least one of Code,
// Type, or Details must be present.
type ErrorExpectation struct {
	Code    string        `yaml:"code,omitempty"`
	Type    ErrorType     `yaml:"type,omitempty"`
	Details *ErrorDetails `yaml:"details,omitempty"`
}

// ErrorDetails are free-form hints matched best-effort against the raw
// error text of a failed execution.
type ErrorDetails struct {
	Field    string `yaml:"field,omitempty"`
	Type     string `yaml:"type,omitempty"`
	Message  string `yaml:"message,omitempty"`
	Expected string `yaml:"expected,omitempty"`
	Received string `yaml:"received,omitempty"`
}

// ParsedContract is a ToolContract plus its provenance on disk.
type ParsedContract struct {
	Contract ToolContract
	FilePath string
	Dir      string
	ToolName string // derived from the filename, matches Contract.Tool
}

// ExpectsError reports whether the test declares an expected failure,
// either explicitly or via success: false.
func (t *ContractTest) ExpectsError() bool {
	if t.Expect == nil {
		return false
	}
	if t.Expect.Error != nil {
		return true
	}
	return t.Expect.Success != nil && !*t.Expect.Success
}

// ExpectedErrorTypes collects every error type any test in the contract
// explicitly expects. Used for acceptance filtering of tool-level
// diagnostics.
func (c *ToolContract) ExpectedErrorTypes() map[ErrorType]bool {
	types := make(map[ErrorType]bool)
	for _, test := range c.Tests {
		if test.Expect != nil && test.Expect.Error != nil && test.Expect.Error.Type != "" {
			types[test.Expect.Error.Type] = true
		}
	}
	return types
}
