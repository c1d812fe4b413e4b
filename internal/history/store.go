// Package history provides SQLite-backed storage for validation run
// results, so verdicts can be compared across runs of the same server.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"toolcheck/internal/logging"
	"toolcheck/internal/orchestrator"
)

// Store archives run results in SQLite.
type Store struct {
	mu sync.RWMutex

	db     *sql.DB
	dbPath string
}

// RunRecord is one archived run.
type RunRecord struct {
	RunID       string    `json:"run_id"`
	Verdict     string    `json:"verdict"`
	ToolsTested int       `json:"tools_tested"`
	ToolsPassed int       `json:"tools_passed"`
	ToolsFailed int       `json:"tools_failed"`
	Diagnostics int       `json:"diagnostics"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// NewStore opens (or creates) the run archive at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the database schema.
func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS validation_runs (
			run_id TEXT PRIMARY KEY,
			verdict TEXT NOT NULL,
			tools_tested INTEGER DEFAULT 0,
			tools_passed INTEGER DEFAULT 0,
			tools_failed INTEGER DEFAULT 0,
			diagnostic_count INTEGER DEFAULT 0,
			started_at DATETIME NOT NULL,
			duration_ms INTEGER DEFAULT 0,
			result_json TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create validation_runs table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_results (
			run_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			contract_path TEXT,
			passed INTEGER NOT NULL,
			total_executions INTEGER DEFAULT 0,
			passed_tests INTEGER DEFAULT 0,
			failed_tests INTEGER DEFAULT 0,
			diagnostics_json TEXT,

			PRIMARY KEY(run_id, tool_name, contract_path)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create tool_results table: %w", err)
	}

	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_tool_results_tool ON tool_results(tool_name)`)
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_started ON validation_runs(started_at)`)

	return nil
}

// SaveRun archives one run with its per-tool results.
func (s *Store) SaveRun(result *orchestrator.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO validation_runs
			(run_id, verdict, tools_tested, tools_passed, tools_failed, diagnostic_count, started_at, duration_ms, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.RunID, string(result.Verdict), result.ToolsTested, result.ToolsPassed, result.ToolsFailed,
		len(result.Diagnostics), result.StartedAt.UTC(), result.Duration.Milliseconds(), string(resultJSON))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, tr := range result.ToolResults {
		diagsJSON, err := json.Marshal(tr.Diagnostics)
		if err != nil {
			return fmt.Errorf("failed to serialize diagnostics for %s: %w", tr.ToolName, err)
		}
		_, err = tx.Exec(`
			INSERT INTO tool_results
				(run_id, tool_name, contract_path, passed, total_executions, passed_tests, failed_tests, diagnostics_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, result.RunID, tr.ToolName, tr.ContractPath, boolToInt(tr.Passed),
			tr.Summary.TotalExecutions, tr.Summary.PassedTests, tr.Summary.FailedTests, string(diagsJSON))
		if err != nil {
			return fmt.Errorf("failed to insert tool result for %s: %w", tr.ToolName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	logging.Get(logging.CategoryHistory).Info("Archived run %s (%s)", result.RunID, result.Verdict)
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT run_id, verdict, tools_tested, tools_passed, tools_failed, diagnostic_count, started_at, duration_ms
		FROM validation_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.Verdict, &r.ToolsTested, &r.ToolsPassed, &r.ToolsFailed,
			&r.Diagnostics, &r.StartedAt, &r.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetRun loads one archived result by run ID.
func (s *Store) GetRun(runID string) (*orchestrator.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resultJSON string
	err := s.db.QueryRow(`SELECT result_json FROM validation_runs WHERE run_id = ?`, runID).Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	var result orchestrator.Result
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return &result, nil
}

// ToolHistory returns the pass/fail trail for one tool across runs,
// newest first.
func (s *Store) ToolHistory(toolName string, limit int) ([]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT t.passed
		FROM tool_results t
		JOIN validation_runs r ON r.run_id = t.run_id
		WHERE t.tool_name = ?
		ORDER BY r.started_at DESC
		LIMIT ?
	`, toolName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool history: %w", err)
	}
	defer rows.Close()

	var trail []bool
	for rows.Next() {
		var passed int
		if err := rows.Scan(&passed); err != nil {
			return nil, fmt.Errorf("failed to scan tool history: %w", err)
		}
		trail = append(trail, passed != 0)
	}
	return trail, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
