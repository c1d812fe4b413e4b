// Package validator checks produced tool output against a declared
// output shape. Shapes follow the JSON-Schema subset MCP servers
// publish: type, properties, required, items, nullable, type unions.
package validator

import (
	"fmt"
	"math"
	"strings"
)

// TypeMismatch records one path-qualified type violation.
type TypeMismatch struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ValidationDetails carries every individual violation found.
type ValidationDetails struct {
	MissingFields  []string       `json:"missing_fields,omitempty"`
	TypeMismatches []TypeMismatch `json:"type_mismatches,omitempty"`
}

// ValidationResult is the outcome of a structural validation pass.
type ValidationResult struct {
	Valid   bool               `json:"valid"`
	Error   string             `json:"error,omitempty"`
	Details *ValidationDetails `json:"details,omitempty"`
}

// ValidateOutputStructure recursively checks output against schema.
// Every violation is collected, not just the first. Malformed schemas
// produce a failed result, never a panic.
func ValidateOutputStructure(output interface{}, schema map[string]interface{}) ValidationResult {
	details := &ValidationDetails{}
	validateValue(output, schema, "", details)

	if len(details.MissingFields) == 0 && len(details.TypeMismatches) == 0 {
		return ValidationResult{Valid: true}
	}

	var parts []string
	if n := len(details.MissingFields); n > 0 {
		parts = append(parts, fmt.Sprintf("%d missing field(s): %s", n, strings.Join(details.MissingFields, ", ")))
	}
	if n := len(details.TypeMismatches); n > 0 {
		mm := make([]string, 0, n)
		for _, m := range details.TypeMismatches {
			path := m.Path
			if path == "" {
				path = "(root)"
			}
			mm = append(mm, fmt.Sprintf("%s: expected %s, got %s", path, m.Expected, m.Actual))
		}
		parts = append(parts, fmt.Sprintf("%d type mismatch(es): %s", n, strings.Join(mm, "; ")))
	}

	return ValidationResult{
		Valid:   false,
		Error:   strings.Join(parts, "; "),
		Details: details,
	}
}

// validateValue dispatches on the schema's declared type.
func validateValue(value interface{}, schema map[string]interface{}, path string, details *ValidationDetails) {
	if len(schema) == 0 {
		return // unconstrained shape accepts anything
	}

	types, nullable, ok := declaredTypes(schema)
	if !ok {
		// Malformed type declaration. Report at this path; do not recurse.
		details.TypeMismatches = append(details.TypeMismatches, TypeMismatch{
			Path:     path,
			Expected: "well-formed schema type",
			Actual:   fmt.Sprintf("%T", schema["type"]),
		})
		return
	}

	if value == nil {
		if !nullable {
			expected := strings.Join(types, "|")
			if expected == "" {
				expected = "non-null"
			}
			details.TypeMismatches = append(details.TypeMismatches, TypeMismatch{
				Path:     path,
				Expected: expected,
				Actual:   "null",
			})
		}
		return
	}

	if len(types) == 0 {
		// No type constraint; still recurse into properties/items if declared.
		if _, hasProps := schema["properties"]; hasProps {
			types = []string{"object"}
		} else if _, hasItems := schema["items"]; hasItems {
			types = []string{"array"}
		} else {
			return
		}
	}

	actual := typeName(value)
	for _, want := range types {
		if typeMatches(value, want) {
			switch want {
			case "object":
				validateObject(value, schema, path, details)
			case "array":
				validateArray(value, schema, path, details)
			}
			return
		}
	}

	details.TypeMismatches = append(details.TypeMismatches, TypeMismatch{
		Path:     path,
		Expected: strings.Join(types, "|"),
		Actual:   actual,
	})
}

// validateObject checks required fields and recurses into declared properties.
func validateObject(value interface{}, schema map[string]interface{}, path string, details *ValidationDetails) {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return
	}

	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := obj[name]; !present {
				details.MissingFields = append(details.MissingFields, joinPath(path, name))
			}
		}
	}

	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return
	}
	for name, raw := range props {
		fieldSchema, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fieldValue, present := obj[name]
		if !present {
			continue // absence is handled by required, not by type checking
		}
		validateValue(fieldValue, fieldSchema, joinPath(path, name), details)
	}
}

// validateArray recurses into each element with an indexed path.
func validateArray(value interface{}, schema map[string]interface{}, path string, details *ValidationDetails) {
	arr, ok := value.([]interface{})
	if !ok {
		return
	}
	items, ok := schema["items"].(map[string]interface{})
	if !ok {
		return
	}
	for i, elem := range arr {
		validateValue(elem, items, fmt.Sprintf("%s[%d]", path, i), details)
	}
}

// declaredTypes extracts the type constraint from a schema node.
// Returns the non-null type names, whether null is allowed, and whether
// the declaration was well-formed.
func declaredTypes(schema map[string]interface{}) (types []string, nullable bool, ok bool) {
	if n, isBool := schema["nullable"].(bool); isBool && n {
		nullable = true
	}

	raw, present := schema["type"]
	if !present {
		return nil, nullable, true
	}

	switch v := raw.(type) {
	case string:
		if v == "null" {
			return nil, true, true
		}
		if v == "any" {
			return nil, true, true
		}
		return []string{v}, nullable, true
	case []interface{}:
		for _, entry := range v {
			s, isString := entry.(string)
			if !isString {
				return nil, false, false
			}
			if s == "null" {
				nullable = true
				continue
			}
			types = append(types, s)
		}
		return types, nullable, true
	default:
		return nil, false, false
	}
}

// typeMatches reports whether value conforms to the named primitive type.
func typeMatches(value interface{}, want string) bool {
	switch want {
	case "any":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "number":
		return isNumber(value)
	case "integer":
		switch n := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		case float32:
			return float64(n) == math.Trunc(float64(n))
		}
		return false
	}
	return false
}

func isNumber(value interface{}) bool {
	switch value.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

// typeName names a Go value in schema vocabulary for error messages.
func typeName(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case int, int32, int64:
		return "integer"
	case float64:
		if v == math.Trunc(v) {
			return "integer"
		}
		return "number"
	case float32:
		return "number"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// joinPath qualifies a field name with its parent path.
func joinPath(parent, field string) string {
	if parent == "" {
		return field
	}
	return parent + "." + field
}
