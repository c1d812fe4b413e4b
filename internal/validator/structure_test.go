package validator

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSchema(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var s map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	return s
}

func mustValue(t *testing.T, raw string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestValidateOutputStructure_Primitives(t *testing.T) {
	cases := []struct {
		name   string
		schema string
		value  string
		valid  bool
	}{
		{"string ok", `{"type":"string"}`, `"hi"`, true},
		{"string vs number", `{"type":"string"}`, `42`, false},
		{"boolean ok", `{"type":"boolean"}`, `true`, true},
		{"number accepts integer", `{"type":"number"}`, `3`, true},
		{"number accepts float", `{"type":"number"}`, `3.5`, true},
		{"integer rejects fraction", `{"type":"integer"}`, `3.5`, false},
		{"integer accepts whole float", `{"type":"integer"}`, `3.0`, true},
		{"any accepts object", `{"type":"any"}`, `{"a":1}`, true},
		{"unconstrained accepts anything", `{}`, `[1,2,3]`, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := ValidateOutputStructure(mustValue(t, tc.value), mustSchema(t, tc.schema))
			assert.Equal(t, tc.valid, result.Valid, "error: %s", result.Error)
		})
	}
}

func TestValidateOutputStructure_Null(t *testing.T) {
	t.Run("null rejected by default", func(t *testing.T) {
		result := ValidateOutputStructure(nil, mustSchema(t, `{"type":"string"}`))
		require.False(t, result.Valid)
		require.Len(t, result.Details.TypeMismatches, 1)
		assert.Equal(t, "null", result.Details.TypeMismatches[0].Actual)
	})
	t.Run("nullable flag accepts null", func(t *testing.T) {
		result := ValidateOutputStructure(nil, mustSchema(t, `{"type":"string","nullable":true}`))
		assert.True(t, result.Valid)
	})
	t.Run("type union with null accepts null", func(t *testing.T) {
		result := ValidateOutputStructure(nil, mustSchema(t, `{"type":["string","null"]}`))
		assert.True(t, result.Valid)
	})
	t.Run("type union without null rejects null", func(t *testing.T) {
		result := ValidateOutputStructure(nil, mustSchema(t, `{"type":["string","number"]}`))
		assert.False(t, result.Valid)
	})
}

func TestValidateOutputStructure_RequiredFields(t *testing.T) {
	schema := mustSchema(t, `{
		"type": "object",
		"required": ["city", "temperature", "unit"],
		"properties": {
			"city": {"type": "string"},
			"temperature": {"type": "number"},
			"unit": {"type": "string"}
		}
	}`)

	result := ValidateOutputStructure(mustValue(t, `{"city":"Paris"}`), schema)
	require.False(t, result.Valid)
	// All missing fields are collected, not just the first.
	assert.ElementsMatch(t, []string{"temperature", "unit"}, result.Details.MissingFields)
}

func TestValidateOutputStructure_NestedPaths(t *testing.T) {
	schema := mustSchema(t, `{
		"type": "object",
		"properties": {
			"forecast": {
				"type": "object",
				"required": ["high"],
				"properties": {
					"high": {"type": "number"},
					"low": {"type": "number"}
				}
			},
			"hourly": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"temp": {"type": "number"}
					}
				}
			}
		}
	}`)

	value := mustValue(t, `{
		"forecast": {"low": "cold"},
		"hourly": [{"temp": 10}, {"temp": "warm"}, {"temp": 12}]
	}`)

	result := ValidateOutputStructure(value, schema)
	require.False(t, result.Valid)

	assert.Contains(t, result.Details.MissingFields, "forecast.high")

	want := []TypeMismatch{
		{Path: "forecast.low", Expected: "number", Actual: "string"},
		{Path: "hourly[1].temp", Expected: "number", Actual: "string"},
	}
	sortByPath := cmpopts.SortSlices(func(a, b TypeMismatch) bool { return a.Path < b.Path })
	if diff := cmp.Diff(want, result.Details.TypeMismatches, sortByPath); diff != "" {
		t.Errorf("type mismatches differ (-want +got):\n%s", diff)
	}
}

func TestValidateOutputStructure_MalformedSchema(t *testing.T) {
	// A numeric "type" declaration is malformed; must report, not panic.
	schema := map[string]interface{}{"type": 7}
	result := ValidateOutputStructure("anything", schema)
	require.False(t, result.Valid)
	require.Len(t, result.Details.TypeMismatches, 1)
	assert.Equal(t, "well-formed schema type", result.Details.TypeMismatches[0].Expected)
}

func TestValidateOutputStructure_ErrorMessageAggregates(t *testing.T) {
	schema := mustSchema(t, `{
		"type": "object",
		"required": ["a"],
		"properties": {"b": {"type": "string"}}
	}`)
	result := ValidateOutputStructure(mustValue(t, `{"b": 1}`), schema)
	require.False(t, result.Valid)
	assert.Contains(t, result.Error, "missing field")
	assert.Contains(t, result.Error, "type mismatch")
	assert.Contains(t, result.Error, "b: expected string, got integer")
}
