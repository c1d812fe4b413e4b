package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"toolcheck/internal/logging"
	"toolcheck/internal/mcp"
)

// DefaultCallTimeout bounds a tool invocation when neither the contract
// nor the caller supplies one.
const DefaultCallTimeout = 30 * time.Second

// Executor owns the sandboxed MCP session for one validation run: the
// server process (for stdio), a temporary working area, and the shared
// I/O monitor. Initialize and Cleanup are idempotent; Cleanup always
// runs once testing begins, regardless of what raised.
type Executor struct {
	mu sync.Mutex

	cfg         mcp.ServerConfig
	callTimeout time.Duration

	client      *mcp.Client
	monitor     *IOMonitor
	tempDir     string
	initialized bool
}

// NewExecutor creates an executor for the given server config.
// callTimeout <= 0 selects DefaultCallTimeout.
func NewExecutor(cfg mcp.ServerConfig, callTimeout time.Duration) *Executor {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Executor{cfg: cfg, callTimeout: callTimeout}
}

// Initialize creates the temp working area, resolves the launch command,
// and connects the MCP session. A missing launch command is a
// configuration error.
func (e *Executor) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	tempDir, err := os.MkdirTemp("", "toolcheck-sandbox-")
	if err != nil {
		return fmt.Errorf("failed to create sandbox temp dir: %w", err)
	}

	var argv []string
	if e.cfg.Protocol == mcp.ProtocolStdio || e.cfg.Protocol == "" {
		if e.cfg.Command == "" {
			_ = os.RemoveAll(tempDir)
			return errors.New("no launch command resolvable for the tool server")
		}
		argv, err = ResolveCommand(e.cfg.Command)
		if err != nil {
			_ = os.RemoveAll(tempDir)
			return fmt.Errorf("invalid launch command: %w", err)
		}
	}

	cfg := e.cfg
	if cfg.WorkDir == "" {
		cfg.WorkDir = tempDir
	}

	transport, err := mcp.NewTransport(cfg, argv, e.callTimeout)
	if err != nil {
		_ = os.RemoveAll(tempDir)
		return err
	}

	client := mcp.NewClient(transport)
	if err := client.Connect(ctx); err != nil {
		_ = os.RemoveAll(tempDir)
		return fmt.Errorf("failed to start tool server session: %w", err)
	}

	e.client = client
	e.tempDir = tempDir
	e.monitor = NewIOMonitor(tempDir)
	e.initialized = true

	logging.Get(logging.CategorySandbox).Info("Sandbox initialized (temp dir %s)", tempDir)
	return nil
}

// Cleanup tears the session down and removes the temp working area.
// Idempotent; safe to call even if Initialize failed.
func (e *Executor) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil
	}
	e.initialized = false

	var firstErr error
	if e.client != nil {
		if err := e.client.Close(); err != nil {
			firstErr = err
		}
	}
	if e.tempDir != "" {
		if err := os.RemoveAll(e.tempDir); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	logging.Get(logging.CategorySandbox).Info("Sandbox cleaned up")
	return firstErr
}

// Client returns the live MCP session, or nil before Initialize.
func (e *Executor) Client() *mcp.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

// TempDir returns the sandbox's temporary working area.
func (e *Executor) TempDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tempDir
}

// Monitor returns the shared I/O monitor.
func (e *Executor) Monitor() *IOMonitor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitor
}

// ExecuteTool runs the named tool once per input map, strictly in
// order. Each invocation is bounded by timeout (or the executor
// default); on expiry the call is abandoned and the server process is
// forcibly terminated, so later invocations surface connection errors.
func (e *Executor) ExecuteTool(ctx context.Context, name string, inputs []map[string]interface{}, timeout time.Duration) []ExecutionResult {
	if timeout <= 0 {
		timeout = e.callTimeout
	}

	client := e.Client()
	results := make([]ExecutionResult, 0, len(inputs))

	for i, input := range inputs {
		if client == nil {
			results = append(results, ExecutionResult{
				Success: false,
				Error:   &ClassifiedError{Type: ErrorTypeConnection, Message: "sandbox not initialized"},
			})
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		callResult, callErr := client.CallTool(callCtx, name, input)
		elapsed := time.Since(start)
		timedOut := callCtx.Err() == context.DeadlineExceeded
		cancel()

		results = append(results, e.foldResult(name, i, callResult, callErr, elapsed, timedOut))

		if timedOut {
			logging.Get(logging.CategorySandbox).Warn("Tool %s input %d timed out after %s; terminating server", name, i, timeout)
			_ = client.Terminate()
		}
	}

	return results
}

// foldResult converts a raw transport outcome into an ExecutionResult.
func (e *Executor) foldResult(name string, index int, callResult *mcp.CallResult, callErr error, elapsed time.Duration, timedOut bool) ExecutionResult {
	if timedOut {
		return ExecutionResult{
			Success:       false,
			Error:         classifyFailure(0, fmt.Sprintf("tool %s execution exceeded timeout", name), true),
			ExecutionTime: elapsed,
			TimedOut:      true,
		}
	}

	if callErr != nil {
		return ExecutionResult{
			Success:       false,
			Error:         classifyFailure(0, callErr.Error(), false),
			ExecutionTime: elapsed,
		}
	}

	if !callResult.Success {
		return ExecutionResult{
			Success:       false,
			Error:         classifyFailure(callResult.ErrorCode, callResult.Error, false),
			ExecutionTime: elapsed,
		}
	}

	output, isError, errMsg := mcp.DecodeToolOutput(callResult.Output)
	if isError {
		return ExecutionResult{
			Success:       false,
			Error:         classifyFailure(0, errMsg, false),
			ExecutionTime: elapsed,
		}
	}

	logging.Get(logging.CategorySandbox).Debug("Tool %s input %d succeeded in %s", name, index, elapsed)
	return ExecutionResult{
		Success:       true,
		Output:        output,
		ExecutionTime: elapsed,
	}
}
