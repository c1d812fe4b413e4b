// Package orchestrator coordinates a full validation run: contract
// discovery, sandbox lifecycle, per-tool test execution, behavioral
// observation, output validation, and diagnostic aggregation into a
// single verdict.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"toolcheck/internal/contract"
	"toolcheck/internal/diagnostics"
	"toolcheck/internal/logging"
	"toolcheck/internal/mcp"
	"toolcheck/internal/observer"
	"toolcheck/internal/runner"
	"toolcheck/internal/sandbox"
	"toolcheck/internal/validator"
)

// Sandbox is the execution environment the orchestrator drives. The
// production implementation is *sandbox.Executor.
type Sandbox interface {
	runner.ToolExecutor
	Initialize(ctx context.Context) error
	Cleanup() error
	Client() *mcp.Client
	Monitor() *sandbox.IOMonitor
}

// Options configures one validation run.
type Options struct {
	// ToolsDir is the root directory searched for contract files.
	ToolsDir string
	// Filter optionally narrows the run: a sub-path of ToolsDir (which
	// must exist) or a tool name matched against loaded contracts.
	Filter string
	// Timeout overrides every contract's per-call bound when positive.
	Timeout time.Duration
	// Strict promotes warnings to errors in the verdict.
	Strict bool
	// CheckDeterminism enables repeated-execution probes for contracts
	// that declare deterministic: true.
	CheckDeterminism bool
	// DeterminismRuns is how many probe executions to perform per tool.
	DeterminismRuns int
}

// defaultDeterminismRuns balances confidence against run time.
const defaultDeterminismRuns = 3

// Summary counts the executions behind one tool's result.
type Summary struct {
	TotalExecutions int `json:"total_executions"`
	PassedTests     int `json:"passed_tests"`
	FailedTests     int `json:"failed_tests"`
}

// ToolTestResult is the outcome for one contract.
type ToolTestResult struct {
	ToolName     string                   `json:"tool_name"`
	ContractPath string                   `json:"contract_path"`
	Passed       bool                     `json:"passed"`
	Summary      Summary                  `json:"summary"`
	Diagnostics  []diagnostics.Diagnostic `json:"diagnostics,omitempty"`
}

// Result is the aggregate outcome of a validation run.
type Result struct {
	RunID       string                   `json:"run_id"`
	Verdict     diagnostics.Verdict      `json:"verdict"`
	ToolResults []ToolTestResult         `json:"tool_results"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics,omitempty"`
	ToolsTested int                      `json:"tools_tested"`
	ToolsPassed int                      `json:"tools_passed"`
	ToolsFailed int                      `json:"tools_failed"`
	StartedAt   time.Time                `json:"started_at"`
	Duration    time.Duration            `json:"duration"`
}

// Orchestrator runs contracts against one sandboxed server.
type Orchestrator struct {
	opts Options
	sb   Sandbox
	log  *logging.Logger
}

// New builds an orchestrator over an initialized-on-demand sandbox.
func New(opts Options, sb Sandbox) *Orchestrator {
	if opts.DeterminismRuns <= 0 {
		opts.DeterminismRuns = defaultDeterminismRuns
	}
	return &Orchestrator{
		opts: opts,
		sb:   sb,
		log:  logging.Get(logging.CategoryOrchestrator),
	}
}

// Run executes the full pipeline. Configuration-level problems
// (unreadable directory, malformed contract, server that will not
// start) abort with an error before any verdict exists; once testing
// begins, tool failures become diagnostics and Run still returns a
// Result. Teardown runs unconditionally after initialization.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	dir, nameFilter, err := o.resolveTarget()
	if err != nil {
		return nil, err
	}

	contracts, err := contract.LoadAllContracts(dir)
	if err != nil {
		return nil, err
	}
	if nameFilter != "" {
		contracts = filterByTool(contracts, nameFilter)
		if len(contracts) == 0 {
			return nil, fmt.Errorf("no contract found for tool %q under %s", nameFilter, dir)
		}
	}
	o.log.Info("Loaded %d contract(s) from %s", len(contracts), dir)

	if err := o.sb.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("sandbox initialization failed: %w", err)
	}
	defer func() {
		if err := o.sb.Cleanup(); err != nil {
			o.log.Warn("Sandbox cleanup: %v", err)
		}
	}()

	result := &Result{
		RunID:     uuid.NewString(),
		StartedAt: started,
	}

	for _, pc := range contracts {
		tr := o.testTool(ctx, pc)
		result.ToolResults = append(result.ToolResults, tr)
		result.Diagnostics = append(result.Diagnostics, tr.Diagnostics...)
		result.ToolsTested++
		if tr.Passed {
			result.ToolsPassed++
		} else {
			result.ToolsFailed++
		}
	}

	result.Diagnostics = diagnostics.ApplyStrictMode(result.Diagnostics, o.opts.Strict)
	result.Verdict = diagnostics.ComputeVerdict(result.Diagnostics, o.opts.Strict)
	result.Duration = time.Since(started)
	o.log.Info("Run %s: %s (%d/%d tools passed)", result.RunID, result.Verdict, result.ToolsPassed, result.ToolsTested)
	return result, nil
}

// resolveTarget validates the tools directory and splits the filter
// into a directory narrowing or a tool-name match.
func (o *Orchestrator) resolveTarget() (dir, nameFilter string, err error) {
	dir = o.opts.ToolsDir
	info, err := os.Stat(dir)
	if err != nil {
		return "", "", fmt.Errorf("tools directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("tools directory %s is not a directory", dir)
	}

	if o.opts.Filter == "" {
		return dir, "", nil
	}

	sub := filepath.Join(dir, o.opts.Filter)
	if info, err := os.Stat(sub); err == nil && info.IsDir() {
		return sub, "", nil
	}
	if strings.ContainsRune(o.opts.Filter, os.PathSeparator) {
		return "", "", fmt.Errorf("filter path %s does not exist under %s", o.opts.Filter, dir)
	}
	return dir, o.opts.Filter, nil
}

// filterByTool keeps the contracts naming the given tool.
func filterByTool(contracts []*contract.ParsedContract, name string) []*contract.ParsedContract {
	kept := make([]*contract.ParsedContract, 0, 1)
	for _, pc := range contracts {
		if pc.ToolName == name {
			kept = append(kept, pc)
		}
	}
	return kept
}

// testTool runs one contract end to end: existence check, declared
// tests, behavioral observation, expectation reconciliation, output
// validation, and acceptance filtering.
func (o *Orchestrator) testTool(ctx context.Context, pc *contract.ParsedContract) ToolTestResult {
	c := &pc.Contract
	tr := ToolTestResult{ToolName: c.Tool, ContractPath: pc.FilePath}

	client := o.sb.Client()
	if client == nil || !client.HasTool(c.Tool) {
		tr.Diagnostics = diagnostics.Check(diagnostics.CodeToolNotFound, diagnostics.RuleContext{
			Tool:    c.Tool,
			Context: map[string]interface{}{"contract": pc.FilePath},
		})
		return tr
	}

	if monitor := o.sb.Monitor(); monitor != nil {
		monitor.Reset()
	}

	tagged := runner.RunContractTests(ctx, o.sb, pc, o.opts.Timeout)
	tr.Summary.TotalExecutions = len(tagged)

	raw := make([]sandbox.ExecutionResult, len(tagged))
	for i, r := range tagged {
		raw[i] = r.ExecutionResult
	}

	var diags []diagnostics.Diagnostic

	// Per-test expectation reconciliation. Mismatched results are
	// excluded from output validation so one bad execution reports once.
	mismatched := make(map[int]bool)
	for i, r := range tagged {
		outcome := reconcileResult(c.Tool, r)
		diags = append(diags, outcome.diags...)
		if outcome.mismatch {
			mismatched[i] = true
			tr.Summary.FailedTests++
		} else {
			tr.Summary.PassedTests++
		}
	}

	diags = append(diags, o.validateOutputs(client, c, tagged, mismatched)...)
	diags = append(diags, o.observeBehavior(ctx, c, tagged, raw)...)

	tr.Diagnostics = diagnostics.FilterAccepted(diags, c.ExpectedErrorTypes())
	tr.Passed = true
	for _, d := range tr.Diagnostics {
		if d.IsError() {
			tr.Passed = false
			break
		}
	}
	return tr
}

// validateOutputs checks every successful, success-expected execution
// against the declared output schema. Results already flagged by
// reconciliation are skipped.
func (o *Orchestrator) validateOutputs(client *mcp.Client, c *contract.ToolContract, tagged []runner.TestExecutionResult, mismatched map[int]bool) []diagnostics.Diagnostic {
	tool := client.Tool(c.Tool)

	var diags []diagnostics.Diagnostic
	for i, r := range tagged {
		if mismatched[i] || !r.Success {
			continue
		}
		if classifyExpectation(r.Expectation) != expectSuccess {
			continue
		}

		schemaName := r.ExpectedOutputSchema
		if schemaName == "" {
			schemaName = c.Contract.OutputSchema
		}
		schema := resolveOutputSchema(tool, schemaName)
		if schema == nil {
			continue
		}

		v := validator.ValidateOutputStructure(r.Output, schema)
		if v.Valid {
			continue
		}
		ctx := map[string]interface{}{"schema": schemaName}
		if v.Details != nil {
			if len(v.Details.MissingFields) > 0 {
				ctx["missing_fields"] = v.Details.MissingFields
			}
			if len(v.Details.TypeMismatches) > 0 {
				ctx["type_mismatches"] = v.Details.TypeMismatches
			}
		}
		diags = append(diags, diagnostics.Check(diagnostics.CodeOutputValidation, diagnostics.RuleContext{
			Tool:     c.Tool,
			TestName: r.TestName,
			Summary:  v.Error,
			Context:  ctx,
		})...)
	}
	return diags
}

// observeBehavior runs the tool-level checks over every execution of
// this contract and appends their diagnostics unconditionally;
// acceptance filtering decides later what the contract has
// acknowledged.
func (o *Orchestrator) observeBehavior(ctx context.Context, c *contract.ToolContract, tagged []runner.TestExecutionResult, raw []sandbox.ExecutionResult) []diagnostics.Diagnostic {
	var diags []diagnostics.Diagnostic

	if monitor := o.sb.Monitor(); monitor != nil {
		if finding := observer.DetectSideEffects(monitor, c); finding.Violation {
			paths := make([]string, 0, len(finding.Effects))
			for _, op := range finding.Effects {
				paths = append(paths, fmt.Sprintf("%s %s", op.Kind, op.Path))
			}
			diags = append(diags, diagnostics.Check(diagnostics.CodeSideEffect, diagnostics.RuleContext{
				Tool:    c.Tool,
				Summary: fmt.Sprintf("%d durable operation(s) outside the sandbox", len(finding.Effects)),
				Context: map[string]interface{}{"operations": paths},
			})...)
		}
	}

	// One explosion diagnostic per offending result.
	for _, check := range observer.CheckOutputSize(raw, c) {
		if !check.ExceedsLimit {
			continue
		}
		testName := ""
		if check.Index < len(tagged) {
			testName = tagged[check.Index].TestName
		}
		diags = append(diags, diagnostics.Check(diagnostics.CodeOutputExplosion, diagnostics.RuleContext{
			Tool:     c.Tool,
			TestName: testName,
			Summary:  fmt.Sprintf("%d bytes against a limit of %d", check.ActualSize, check.MaxSize),
			Context: map[string]interface{}{
				"actual_size": check.ActualSize,
				"max_size":    check.MaxSize,
			},
		})...)
	}

	if finding := observer.DetectUnboundedExecution(raw); finding.Detected {
		diags = append(diags, diagnostics.Check(diagnostics.CodeUnboundedExecution, diagnostics.RuleContext{
			Tool:    c.Tool,
			Summary: fmt.Sprintf("%d execution(s) timed out or lost the server", len(finding.Indices)),
			Context: map[string]interface{}{"messages": finding.Messages},
		})...)
	}

	if finding := observer.DetectExecutionErrors(raw); finding.Detected {
		diags = append(diags, diagnostics.Check(diagnostics.CodeExecutionFailed, diagnostics.RuleContext{
			Tool:    c.Tool,
			Summary: fmt.Sprintf("%d execution(s) failed at runtime", len(finding.Indices)),
			Context: map[string]interface{}{"messages": finding.Messages},
		})...)
	}

	diags = append(diags, o.probeDeterminism(ctx, c, tagged)...)
	return diags
}

// probeDeterminism re-executes the first declared test several times
// and compares canonical outputs. Only runs when opted in and the
// contract guarantees deterministic: true.
func (o *Orchestrator) probeDeterminism(ctx context.Context, c *contract.ToolContract, tagged []runner.TestExecutionResult) []diagnostics.Diagnostic {
	if !o.opts.CheckDeterminism {
		return nil
	}
	if c.Guarantees == nil || c.Guarantees.Deterministic == nil || !*c.Guarantees.Deterministic {
		return nil
	}
	if len(tagged) == 0 {
		return nil
	}

	input := tagged[0].TestInput
	inputs := make([]map[string]interface{}, o.opts.DeterminismRuns)
	for i := range inputs {
		inputs[i] = input
	}
	o.log.Debug("Determinism probe for %s: %d run(s)", c.Tool, len(inputs))
	probes := o.sb.ExecuteTool(ctx, c.Tool, inputs, o.opts.Timeout)

	finding := observer.DetectNonDeterminism(probes, c)
	if !finding.Detected {
		return nil
	}
	offsets := make([]int, 0, len(finding.Variations))
	for _, v := range finding.Variations {
		offsets = append(offsets, v.DiffOffset)
	}
	return diagnostics.Check(diagnostics.CodeUnexpectedResult, diagnostics.RuleContext{
		Tool:     c.Tool,
		TestName: "probe:determinism",
		Summary:  fmt.Sprintf("%d of %d repeated execution(s) produced differing output despite deterministic: true", finding.VariationCount, len(probes)),
		Context:  map[string]interface{}{"diff_offsets": offsets},
	})
}

// resolveOutputSchema finds the named schema in the tool's declared
// output schema definitions, falling back to the root shape when the
// name is absent or unnamed.
func resolveOutputSchema(tool *mcp.ToolSchema, name string) map[string]interface{} {
	if tool == nil || len(tool.OutputSchema) == 0 {
		return nil
	}
	var root map[string]interface{}
	if err := json.Unmarshal(tool.OutputSchema, &root); err != nil {
		return nil
	}
	if name != "" {
		if defs, ok := root["$defs"].(map[string]interface{}); ok {
			if def, ok := defs[name].(map[string]interface{}); ok {
				return def
			}
		}
		if defs, ok := root["definitions"].(map[string]interface{}); ok {
			if def, ok := defs[name].(map[string]interface{}); ok {
				return def
			}
		}
	}
	return root
}
