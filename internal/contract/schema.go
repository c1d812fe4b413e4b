package contract

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	sizePattern = regexp.MustCompile(`^\d+(b|kb|mb|gb|tb)$`)
	timePattern = regexp.MustCompile(`^\d+(s|m|h|d)$`)
)

// Validate enforces the strict contract schema. It collects every
// violation rather than stopping at the first, so a malformed document
// is fully diagnosable from one error message.
func (c *ToolContract) Validate() error {
	var problems []string

	if c.Version != 1 {
		problems = append(problems, fmt.Sprintf("version must be 1, got %d", c.Version))
	}
	if c.Tool == "" {
		problems = append(problems, "tool name is required")
	}
	if c.Contract.InputSchema == "" {
		problems = append(problems, "contract.input_schema is required")
	}

	if g := c.Guarantees; g != nil {
		if g.SideEffects != "" && g.SideEffects != "none" && g.SideEffects != "filesystem" {
			problems = append(problems, fmt.Sprintf("guarantees.side_effects must be %q or %q, got %q", "none", "filesystem", g.SideEffects))
		}
		if g.MaxOutputSize != "" && !sizePattern.MatchString(strings.ToLower(g.MaxOutputSize)) {
			problems = append(problems, fmt.Sprintf("guarantees.max_output_size has invalid format %q (expected e.g. \"50kb\")", g.MaxOutputSize))
		}
		if g.MaxExecutionTime != "" && !timePattern.MatchString(strings.ToLower(g.MaxExecutionTime)) {
			problems = append(problems, fmt.Sprintf("guarantees.max_execution_time has invalid format %q (expected e.g. \"5s\")", g.MaxExecutionTime))
		}
	}

	for i, test := range c.Tests {
		label := test.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			problems = append(problems, fmt.Sprintf("tests[%d] is missing a name", i))
		}
		if test.Input == nil {
			problems = append(problems, fmt.Sprintf("test %q is missing input", label))
		}
		if err := validateExpectation(test.Expect); err != nil {
			problems = append(problems, fmt.Sprintf("test %q: %v", label, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid contract: %s", strings.Join(problems, "; "))
	}
	return nil
}

// validateExpectation checks the TestExpectation invariants:
// success=true excludes error, success=false requires it, and an
// ErrorExpectation must constrain at least one dimension.
func validateExpectation(e *TestExpectation) error {
	if e == nil {
		return nil
	}

	if e.Success != nil {
		if *e.Success && e.Error != nil {
			return fmt.Errorf("expect.success=true cannot be combined with expect.error")
		}
		if !*e.Success && e.Error == nil {
			return fmt.Errorf("expect.success=false requires expect.error")
		}
	}

	if e.Error != nil {
		if e.Error.Code == "" && e.Error.Type == "" && e.Error.Details == nil {
			return fmt.Errorf("expect.error must set at least one of code, type, details")
		}
		if e.Error.Type != "" && !knownErrorTypes[e.Error.Type] {
			return fmt.Errorf("expect.error.type %q is not a known error type", e.Error.Type)
		}
	}

	return nil
}
