package sandbox

import (
	"strings"
)

// JSON-RPC error codes relevant to classification.
const (
	rpcInvalidParams = -32602
	rpcMethodMissing = -32601
	rpcInternalError = -32603
)

// validationHints in a raw error message suggest the server rejected
// the inputs rather than failing to run. Matching is best-effort.
var validationHints = []string{
	"validation error",
	"invalid argument",
	"invalid parameter",
	"invalid input",
	"missing required",
	"required field",
	"required property",
	"type mismatch",
	"expected type",
	"must be a",
	"is not of type",
	"unexpected keyword argument",
}

// connectionHints in a raw error message indicate the transport died.
var connectionHints = []string{
	"not connected",
	"connection closed",
	"connection refused",
	"connection reset",
	"broken pipe",
	"file already closed",
	"eof",
}

// classifyFailure maps a failed call to a ClassifiedError. rpcCode is
// the JSON-RPC error code (0 if none), message the raw error text.
func classifyFailure(rpcCode int, message string, timedOut bool) *ClassifiedError {
	if timedOut {
		return &ClassifiedError{
			Type:    ErrorTypeTimeout,
			Message: message,
		}
	}

	lower := strings.ToLower(message)

	for _, hint := range connectionHints {
		if strings.Contains(lower, hint) {
			return &ClassifiedError{Type: ErrorTypeConnection, Message: message}
		}
	}

	if rpcCode == rpcInvalidParams {
		return &ClassifiedError{
			Type:    ErrorTypeInputValidation,
			Message: message,
			Context: map[string]interface{}{"rpc_code": rpcCode},
		}
	}

	for _, hint := range validationHints {
		if strings.Contains(lower, hint) {
			return &ClassifiedError{Type: ErrorTypeInputValidation, Message: message}
		}
	}

	err := &ClassifiedError{Type: ErrorTypeExecution, Message: message}
	if rpcCode != 0 {
		err.Context = map[string]interface{}{"rpc_code": rpcCode}
	}
	return err
}
