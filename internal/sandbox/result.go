package sandbox

import "time"

// ErrorType tags a classified execution failure. The taxonomy drives
// which behavioral check owns the failure, so each defect is reported
// under exactly one code.
type ErrorType string

const (
	ErrorTypeInputValidation  ErrorType = "input_validation"
	ErrorTypeOutputValidation ErrorType = "output_validation"
	ErrorTypeExecution        ErrorType = "execution_error"
	ErrorTypeConnection       ErrorType = "connection_error"
	ErrorTypeTimeout          ErrorType = "timeout"
)

// ClassifiedError is an execution failure with its error-type tag and
// optional structured context.
type ClassifiedError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return string(e.Type) + ": " + e.Message
}

// ExecutionResult is the raw outcome of one sandboxed tool invocation.
type ExecutionResult struct {
	Success       bool             `json:"success"`
	Output        interface{}      `json:"output,omitempty"`
	Error         *ClassifiedError `json:"error,omitempty"`
	ExecutionTime time.Duration    `json:"execution_time"`
	TimedOut      bool             `json:"timed_out,omitempty"`
}
