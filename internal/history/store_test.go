package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolcheck/internal/diagnostics"
	"toolcheck/internal/orchestrator"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(runID string, verdict diagnostics.Verdict, startedAt time.Time) *orchestrator.Result {
	return &orchestrator.Result{
		RunID:       runID,
		Verdict:     verdict,
		ToolsTested: 2,
		ToolsPassed: 1,
		ToolsFailed: 1,
		StartedAt:   startedAt,
		Duration:    1500 * time.Millisecond,
		Diagnostics: []diagnostics.Diagnostic{
			{Code: diagnostics.CodeOutputValidation, Severity: diagnostics.SeverityError, Tool: "weather"},
		},
		ToolResults: []orchestrator.ToolTestResult{
			{
				ToolName:     "echo",
				ContractPath: "/tools/echo.contract.yaml",
				Passed:       true,
				Summary:      orchestrator.Summary{TotalExecutions: 3, PassedTests: 3},
			},
			{
				ToolName:     "weather",
				ContractPath: "/tools/weather.contract.yaml",
				Passed:       false,
				Summary:      orchestrator.Summary{TotalExecutions: 2, PassedTests: 1, FailedTests: 1},
				Diagnostics: []diagnostics.Diagnostic{
					{Code: diagnostics.CodeOutputValidation, Severity: diagnostics.SeverityError, Tool: "weather"},
				},
			},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := openTestStore(t)

	original := sampleResult("run-1", diagnostics.VerdictFail, time.Now().UTC().Truncate(time.Second))
	require.NoError(t, store.SaveRun(original))

	loaded, err := store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, original.RunID, loaded.RunID)
	assert.Equal(t, original.Verdict, loaded.Verdict)
	require.Len(t, loaded.ToolResults, 2)
	assert.Equal(t, "weather", loaded.ToolResults[1].ToolName)
	assert.False(t, loaded.ToolResults[1].Passed)
}

func TestGetRunNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetRun("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListRunsNewestFirst(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.SaveRun(sampleResult("run-old", diagnostics.VerdictPass, base.Add(-time.Hour))))
	require.NoError(t, store.SaveRun(sampleResult("run-new", diagnostics.VerdictFail, base)))

	records, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-new", records[0].RunID)
	assert.Equal(t, "run-old", records[1].RunID)
	assert.Equal(t, 2, records[0].ToolsTested)
	assert.Equal(t, int64(1500), records[0].DurationMs)
}

func TestListRunsLimit(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		r := sampleResult("run-"+string(rune('a'+i)), diagnostics.VerdictPass, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.SaveRun(r))
	}

	records, err := store.ListRuns(3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestToolHistoryTrail(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	first := sampleResult("run-1", diagnostics.VerdictFail, base.Add(-time.Hour))
	second := sampleResult("run-2", diagnostics.VerdictPass, base)
	second.ToolResults[1].Passed = true
	require.NoError(t, store.SaveRun(first))
	require.NoError(t, store.SaveRun(second))

	trail, err := store.ToolHistory("weather", 10)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, trail)
}
