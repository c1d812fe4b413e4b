package contract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validContract = `
version: 1
tool: get_weather
contract:
  input_schema: WeatherInput
  output_schema: WeatherOutput
guarantees:
  deterministic: false
  side_effects: none
  max_output_size: 10kb
  max_execution_time: 5s
tests:
  - name: valid city
    input:
      city: Paris
    expect:
      success: true
  - name: empty city rejected
    input:
      city: ""
    expect:
      success: false
      error:
        type: input_validation
`

func writeContract(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadContract_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeContract(t, dir, "get_weather.contract.yaml", validContract)

	parsed, err := LoadContract(path)
	require.NoError(t, err)

	assert.Equal(t, "get_weather", parsed.Contract.Tool)
	assert.Equal(t, "get_weather", parsed.ToolName)
	assert.Equal(t, "WeatherInput", parsed.Contract.Contract.InputSchema)
	assert.Equal(t, dir, parsed.Dir)
	require.Len(t, parsed.Contract.Tests, 2)
	assert.True(t, parsed.Contract.Tests[1].ExpectsError())
	assert.False(t, parsed.Contract.Tests[0].ExpectsError())
}

func TestLoadContract_UnknownTopLevelKeyRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeContract(t, dir, "bad.contract.yaml", `
version: 1
tool: bad
contract:
  input_schema: In
banana: true
`)

	_, err := LoadContract(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "banana")
}

func TestLoadContract_SchemaViolations(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{
			name: "wrong version",
			doc: `
version: 2
tool: t
contract:
  input_schema: In
`,
			wantMsg: "version must be 1",
		},
		{
			name: "missing input schema",
			doc: `
version: 1
tool: t
contract:
  output_schema: Out
`,
			wantMsg: "input_schema is required",
		},
		{
			name: "bad size format",
			doc: `
version: 1
tool: t
contract:
  input_schema: In
guarantees:
  max_output_size: 10kbb
`,
			wantMsg: "max_output_size",
		},
		{
			name: "bad time format",
			doc: `
version: 1
tool: t
contract:
  input_schema: In
guarantees:
  max_execution_time: 5sec
`,
			wantMsg: "max_execution_time",
		},
		{
			name: "bad side effects value",
			doc: `
version: 1
tool: t
contract:
  input_schema: In
guarantees:
  side_effects: network
`,
			wantMsg: "side_effects",
		},
		{
			name: "success true with error",
			doc: `
version: 1
tool: t
contract:
  input_schema: In
tests:
  - name: conflicted
    input: {}
    expect:
      success: true
      error:
        type: execution_error
`,
			wantMsg: "cannot be combined",
		},
		{
			name: "success false without error",
			doc: `
version: 1
tool: t
contract:
  input_schema: In
tests:
  - name: underspecified
    input: {}
    expect:
      success: false
`,
			wantMsg: "requires expect.error",
		},
		{
			name: "empty error expectation",
			doc: `
version: 1
tool: t
contract:
  input_schema: In
tests:
  - name: empty error
    input: {}
    expect:
      error: {}
`,
			wantMsg: "at least one of code, type, details",
		},
		{
			name: "unknown error type",
			doc: `
version: 1
tool: t
contract:
  input_schema: In
tests:
  - name: bad type
    input: {}
    expect:
      error:
        type: cosmic_ray
`,
			wantMsg: "not a known error type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeContract(t, dir, "t.contract.yaml", tc.doc)
			_, err := LoadContract(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestLoadContract_CollectsAllViolations(t *testing.T) {
	dir := t.TempDir()
	path := writeContract(t, dir, "t.contract.yaml", `
version: 3
tool: ""
contract:
  output_schema: Out
`)

	_, err := LoadContract(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version must be 1")
	assert.Contains(t, err.Error(), "tool name is required")
	assert.Contains(t, err.Error(), "input_schema is required")
}

func TestLoadAllContracts(t *testing.T) {
	dir := t.TempDir()
	writeContract(t, dir, "weather/get_weather.contract.yaml", validContract)
	writeContract(t, dir, "server/order_food.contract.yaml", strings.Replace(validContract, "get_weather", "order_food", 1))
	// Non-contract file is ignored
	writeContract(t, dir, "weather/readme.txt", "not a contract")

	contracts, err := LoadAllContracts(dir)
	require.NoError(t, err)
	assert.Len(t, contracts, 2)
}

func TestLoadAllContracts_EmptyDirFails(t *testing.T) {
	_, err := LoadAllContracts(t.TempDir())
	require.ErrorIs(t, err, ErrNoContracts)
}

func TestDiscoverContractFiles_MissingDir(t *testing.T) {
	_, err := DiscoverContractFiles(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestExtractToolNameFromPath(t *testing.T) {
	assert.Equal(t, "get_weather", ExtractToolNameFromPath("tools/weather/get_weather.contract.yaml"))
	assert.Equal(t, "order_food", ExtractToolNameFromPath("order_food.contract.yml"))
}

func TestFindContractForTool(t *testing.T) {
	contracts := []*ParsedContract{
		{Contract: ToolContract{Tool: "a"}},
		{Contract: ToolContract{Tool: "b"}},
	}
	assert.Equal(t, contracts[1], FindContractForTool(contracts, "b"))
	assert.Nil(t, FindContractForTool(contracts, "c"))
}

func TestExpectedErrorTypes(t *testing.T) {
	c := ToolContract{
		Tests: []ContractTest{
			{Name: "a", Expect: &TestExpectation{Error: &ErrorExpectation{Type: ErrorTypeInputValidation}}},
			{Name: "b", Expect: &TestExpectation{Error: &ErrorExpectation{Code: "E999"}}},
			{Name: "c"},
		},
	}
	types := c.ExpectedErrorTypes()
	assert.True(t, types[ErrorTypeInputValidation])
	assert.Len(t, types, 1)
}
