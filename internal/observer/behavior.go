// Package observer inspects raw execution results and the I/O trace to
// flag contract violations: side effects, oversized output, unbounded
// execution, runtime failures, and non-determinism. Each check owns a
// disjoint failure class so one defect is never reported twice.
package observer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"toolcheck/internal/contract"
	"toolcheck/internal/logging"
	"toolcheck/internal/sandbox"
)

// DefaultOutputLimitKB applies when the contract declares no
// max_output_size.
const DefaultOutputLimitKB = 50

// SideEffectFinding reports durable writes against a side_effects: none
// guarantee.
type SideEffectFinding struct {
	Violation bool
	Effects   []sandbox.FSOperationRecord
}

// OutputSizeCheck is the size verdict for one execution result.
type OutputSizeCheck struct {
	Index        int
	ActualSize   int64
	MaxSize      int64
	ExceedsLimit bool
}

// UnboundedExecutionFinding aggregates timeout and connection-class
// failures.
type UnboundedExecutionFinding struct {
	Detected bool
	Indices  []int
	Messages []string
}

// ExecutionErrorFinding aggregates generic runtime failures.
type ExecutionErrorFinding struct {
	Detected bool
	Indices  []int
	Messages []string
}

// Variation records one execution whose output differed from the
// baseline, with the byte offset of the first difference.
type Variation struct {
	Index      int
	DiffOffset int
}

// NonDeterminismFinding reports differing outputs across repeated
// executions of one input.
type NonDeterminismFinding struct {
	Detected       bool
	VariationCount int
	Variations     []Variation
}

// DetectSideEffects flags a violation iff the trace contains at least
// one durable write outside the sandbox working area AND the contract
// declares side_effects: none.
func DetectSideEffects(monitor *sandbox.IOMonitor, c *contract.ToolContract) SideEffectFinding {
	if c.Guarantees == nil || c.Guarantees.SideEffects != "none" {
		return SideEffectFinding{}
	}
	effects := monitor.GetSideEffects()
	if len(effects) == 0 {
		return SideEffectFinding{}
	}
	logging.Get(logging.CategoryObserver).Warn("Tool %s declared side_effects: none but produced %d durable write(s)",
		c.Tool, len(effects))
	return SideEffectFinding{Violation: true, Effects: effects}
}

// CheckOutputSize resolves the active limit from the contract (or the
// default) and sizes each successful result's canonical serialization.
// A result exceeds the limit only if strictly greater; failed
// executions never exceed (size 0).
func CheckOutputSize(results []sandbox.ExecutionResult, c *contract.ToolContract) []OutputSizeCheck {
	maxSize := int64(DefaultOutputLimitKB) * 1024
	if c.Guarantees != nil && c.Guarantees.MaxOutputSize != "" {
		if parsed, err := ParseSizeLimit(c.Guarantees.MaxOutputSize); err == nil {
			maxSize = parsed
		}
	}

	checks := make([]OutputSizeCheck, 0, len(results))
	for i, r := range results {
		check := OutputSizeCheck{Index: i, MaxSize: maxSize}
		if r.Success {
			check.ActualSize = int64(len(CanonicalJSON(r.Output)))
			check.ExceedsLimit = check.ActualSize > maxSize
		}
		checks = append(checks, check)
	}
	return checks
}

// DetectUnboundedExecution flags only timeout and connection-class
// failures. Input-validation and generic execution failures are owned
// by other checks.
func DetectUnboundedExecution(results []sandbox.ExecutionResult) UnboundedExecutionFinding {
	var finding UnboundedExecutionFinding
	for i, r := range results {
		if r.Success || r.Error == nil {
			continue
		}
		if r.TimedOut || r.Error.Type == sandbox.ErrorTypeTimeout || r.Error.Type == sandbox.ErrorTypeConnection {
			finding.Detected = true
			finding.Indices = append(finding.Indices, i)
			finding.Messages = append(finding.Messages, r.Error.Message)
		}
	}
	return finding
}

// DetectExecutionErrors isolates generic runtime failures, excluding
// timeout, connection, and input-validation classes.
func DetectExecutionErrors(results []sandbox.ExecutionResult) ExecutionErrorFinding {
	var finding ExecutionErrorFinding
	for i, r := range results {
		if r.Success || r.Error == nil || r.TimedOut {
			continue
		}
		if r.Error.Type == sandbox.ErrorTypeExecution {
			finding.Detected = true
			finding.Indices = append(finding.Indices, i)
			finding.Messages = append(finding.Messages, r.Error.Message)
		}
	}
	return finding
}

// DetectNonDeterminism compares canonical serializations of repeated
// executions of one input against a baseline (the first success).
// Fewer than 2 successes means insufficient evidence, not determinism.
func DetectNonDeterminism(results []sandbox.ExecutionResult, c *contract.ToolContract) NonDeterminismFinding {
	if c.Guarantees == nil || c.Guarantees.Deterministic == nil || !*c.Guarantees.Deterministic {
		return NonDeterminismFinding{}
	}

	baseline := ""
	baselineSet := false
	successes := 0
	var variations []Variation

	for i, r := range results {
		if !r.Success {
			continue
		}
		successes++
		serialized := CanonicalJSON(r.Output)
		if !baselineSet {
			baseline = serialized
			baselineSet = true
			continue
		}
		if serialized != baseline {
			variations = append(variations, Variation{
				Index:      i,
				DiffOffset: firstDiffOffset(baseline, serialized),
			})
		}
	}

	if successes < 2 {
		return NonDeterminismFinding{}
	}
	return NonDeterminismFinding{
		Detected:       len(variations) > 0,
		VariationCount: len(variations),
		Variations:     variations,
	}
}

// CanonicalJSON is the canonical serialization used for sizing and
// determinism comparison: compact JSON with sorted object keys (the
// encoding/json default for maps).
func CanonicalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// firstDiffOffset returns the byte offset of the first difference
// between two serializations.
func firstDiffOffset(a, b string) int {
	limit := len(a)
	if len(b) < limit {
		limit = len(b)
	}
	for i := 0; i < limit; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return limit
}

var sizeLimitPattern = regexp.MustCompile(`^(\d+)(b|kb|mb|gb|tb)$`)

// ParseSizeLimit converts a declared size bound to bytes using binary
// multiples: "1kb" is 1024, "1mb" is 1048576.
func ParseSizeLimit(s string) (int64, error) {
	m := sizeLimitPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, fmt.Errorf("invalid size limit %q", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size limit %q: %w", s, err)
	}
	switch m[2] {
	case "b":
		return n, nil
	case "kb":
		return n * 1024, nil
	case "mb":
		return n * 1024 * 1024, nil
	case "gb":
		return n * 1024 * 1024 * 1024, nil
	case "tb":
		return n * 1024 * 1024 * 1024 * 1024, nil
	}
	return 0, fmt.Errorf("invalid size unit in %q", s)
}

var timeLimitPattern = regexp.MustCompile(`^(\d+)(s|m|h|d)$`)

// ParseTimeLimit converts a declared execution bound to a duration.
func ParseTimeLimit(s string) (time.Duration, error) {
	m := timeLimitPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, fmt.Errorf("invalid time limit %q", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time limit %q: %w", s, err)
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid time unit in %q", s)
}
