package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"toolcheck/internal/logging"
)

// StdioTransport implements Transport over a spawned subprocess speaking
// line-delimited JSON-RPC on stdin/stdout. The subprocess runs in its
// own process group so Terminate can reap shell-spawned children.
type StdioTransport struct {
	mu sync.RWMutex

	argv    []string
	workDir string
	env     []string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser

	connected  bool
	serverInfo *ServerInfo
	caps       *Capabilities

	pendingReqs map[int]chan *rpcResponse
	nextID      int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewStdioTransport creates a stdio transport for an already-resolved
// argv (see sandbox.ResolveCommand for shell handling).
func NewStdioTransport(argv []string, workDir string, env []string) *StdioTransport {
	return &StdioTransport{
		argv:        argv,
		workDir:     workDir,
		env:         env,
		pendingReqs: make(map[int]chan *rpcResponse),
		nextID:      1,
		done:        make(chan struct{}),
	}
}

// Connect starts the subprocess and the reader loops.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}
	if len(t.argv) == 0 {
		return fmt.Errorf("empty command for stdio transport")
	}

	t.cmd = exec.Command(t.argv[0], t.argv[1:]...)
	t.cmd.Dir = t.workDir
	if len(t.env) > 0 {
		t.cmd.Env = t.env
	}
	setupProcessGroup(t.cmd)

	var err error
	t.stdin, err = t.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	t.stdout, err = t.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	t.stderr, err = t.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := t.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start command %s: %w", t.argv[0], err)
	}
	t.connected = true

	t.wg.Add(1)
	go t.readStderr()
	t.wg.Add(1)
	go t.readStdout()

	logging.Get(logging.CategoryMCP).Info("Stdio transport started: %v (pid %d)", t.argv, t.cmd.Process.Pid)
	return nil
}

// Initialize performs the MCP handshake and sends the initialized
// notification.
func (t *StdioTransport) Initialize(ctx context.Context) (*ServerInfo, *Capabilities, error) {
	t.mu.RLock()
	if t.serverInfo != nil {
		info, caps := t.serverInfo, t.caps
		t.mu.RUnlock()
		return info, caps, nil
	}
	t.mu.RUnlock()

	resp, err := t.call(ctx, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo":      clientInfo,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize failed: %w", err)
	}
	if resp.Error != nil {
		return nil, nil, fmt.Errorf("initialize error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, nil, fmt.Errorf("failed to parse initialize result: %w", err)
	}

	t.mu.Lock()
	t.serverInfo = &result.ServerInfo
	t.caps = &result.Capabilities
	t.mu.Unlock()

	// The handshake is completed by a notification; no response follows.
	t.notify("notifications/initialized", nil)

	logging.Get(logging.CategoryMCP).Info("Initialized MCP session with %s %s",
		result.ServerInfo.Name, result.ServerInfo.Version)
	return &result.ServerInfo, &result.Capabilities, nil
}

// Disconnect closes stdin, terminates the subprocess, and waits for the
// reader goroutines. Idempotent.
func (t *StdioTransport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false

	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	close(t.done)
	for id, ch := range t.pendingReqs {
		close(ch)
		delete(t.pendingReqs, id)
	}
	cmd := t.cmd
	t.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		terminateProcessTree(cmd, 2*time.Second)
	}

	// Pipe closure unblocks the readers.
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		logging.Get(logging.CategoryMCP).Warn("Timeout waiting for stdio transport goroutines to exit")
	}

	logging.Get(logging.CategoryMCP).Info("Stdio transport disconnected")
	return nil
}

// Terminate forcibly ends the subprocess and its children with a short
// grace period.
func (t *StdioTransport) Terminate() error {
	t.mu.RLock()
	cmd := t.cmd
	connected := t.connected
	t.mu.RUnlock()
	if connected && cmd != nil && cmd.Process != nil {
		terminateProcessTree(cmd, 500*time.Millisecond)
	}
	return t.Disconnect()
}

// readStderr drains the server's stderr into the log.
func (t *StdioTransport) readStderr() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		logging.Get(logging.CategoryMCP).Debug("[server stderr] %s", scanner.Text())
	}
}

// readStdout reads JSON-RPC messages from stdout and dispatches
// responses to their pending callers.
func (t *StdioTransport) readStdout() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stdout)
	// Large tool outputs arrive as one line; allow up to 16MB.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			logging.Get(logging.CategoryMCP).Warn("Failed to parse JSON from stdout: %v", err)
			continue
		}

		// Anything carrying "method" is a server-initiated request or
		// notification, not a response to us.
		_, hasID := raw["id"]
		_, hasMethod := raw["method"]
		if !hasID || hasMethod {
			logging.Get(logging.CategoryMCP).Debug("Received server message: %s", string(line))
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			logging.Get(logging.CategoryMCP).Warn("Failed to unmarshal response: %v", err)
			continue
		}

		t.mu.Lock()
		ch, exists := t.pendingReqs[resp.ID]
		if exists {
			delete(t.pendingReqs, resp.ID)
			ch <- &resp
		} else {
			logging.Get(logging.CategoryMCP).Warn("Received response for unknown ID: %d", resp.ID)
		}
		t.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		t.mu.RLock()
		connected := t.connected
		t.mu.RUnlock()
		if connected {
			logging.Get(logging.CategoryMCP).Error("Error reading stdout: %v", err)
		}
	}
}

// call sends a request and waits for a response or ctx expiry.
func (t *StdioTransport) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("not connected to MCP server")
	}

	id := t.nextID
	t.nextID++

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	ch := make(chan *rpcResponse, 1)
	t.pendingReqs[id] = ch

	data, err := json.Marshal(req)
	if err != nil {
		delete(t.pendingReqs, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		delete(t.pendingReqs, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to write to stdin: %w", err)
	}
	t.mu.Unlock()

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pendingReqs, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// notify sends a fire-and-forget notification (no ID, no response).
func (t *StdioTransport) notify(method string, params interface{}) {
	msg := map[string]interface{}{"jsonrpc": "2.0", "method": method}
	if params != nil {
		msg["params"] = params
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	t.mu.Lock()
	if t.stdin != nil {
		_, _ = t.stdin.Write(append(data, '\n'))
	}
	t.mu.Unlock()
}

// ListTools retrieves available tools from the server.
func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tools response: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool on the MCP server. Protocol errors come back
// in the CallResult so the caller can classify them; err is reserved
// for transport-level failures (broken pipe, ctx expiry).
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error) {
	start := time.Now()

	resp, err := t.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		return &CallResult{Success: false, Error: err.Error(), LatencyMs: latencyMs}, err
	}
	if resp.Error != nil {
		return &CallResult{
			Success:   false,
			Error:     resp.Error.Message,
			ErrorCode: resp.Error.Code,
			LatencyMs: latencyMs,
		}, nil
	}
	return &CallResult{Success: true, Output: resp.Result, LatencyMs: latencyMs}, nil
}

// Ping checks if the server is responsive.
func (t *StdioTransport) Ping(ctx context.Context) error {
	resp, err := t.call(ctx, "ping", nil)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("ping error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return nil
}

// IsConnected returns current connection status.
func (t *StdioTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Pid returns the subprocess PID, or 0 before Connect.
func (t *StdioTransport) Pid() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Ensure StdioTransport implements Transport.
var _ Transport = (*StdioTransport)(nil)
