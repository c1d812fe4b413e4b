package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"toolcheck/internal/logging"
)

// HTTPTransport implements Transport over HTTP POST JSON-RPC.
type HTTPTransport struct {
	mu sync.RWMutex

	baseURL    string
	client     *http.Client
	connected  bool
	serverInfo *ServerInfo
	caps       *Capabilities
	nextID     int
}

// NewHTTPTransport creates an HTTP transport for MCP communication.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		nextID:  1,
	}
}

// Connect verifies the server is reachable.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	t.connected = true
	logging.Get(logging.CategoryMCP).Info("HTTP transport targeting %s", t.baseURL)
	return nil
}

// Initialize performs the MCP initialize handshake.
func (t *HTTPTransport) Initialize(ctx context.Context) (*ServerInfo, *Capabilities, error) {
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
		return nil, nil, fmt.Errorf("failed to connect to MCP server at %s: %w", t.baseURL, err)
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

	logging.Get(logging.CategoryMCP).Info("Initialized MCP session with %s %s over HTTP",
		result.ServerInfo.Name, result.ServerInfo.Version)
	return &result.ServerInfo, &result.Capabilities, nil
}

// Disconnect clears session state. The server process is not ours to stop.
func (t *HTTPTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.serverInfo = nil
	t.caps = nil
	logging.Get(logging.CategoryMCP).Info("HTTP transport disconnected from %s", t.baseURL)
	return nil
}

// Terminate is equivalent to Disconnect for HTTP.
func (t *HTTPTransport) Terminate() error {
	return t.Disconnect()
}

// ListTools retrieves available tools from the server.
func (t *HTTPTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
	if !t.IsConnected() {
		return nil, fmt.Errorf("not connected to MCP server")
	}

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

	logging.Get(logging.CategoryMCP).Debug("MCP server returned %d tools", len(result.Tools))
	return result.Tools, nil
}

// CallTool invokes a tool on the MCP server.
func (t *HTTPTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error) {
	if !t.IsConnected() {
		return nil, fmt.Errorf("not connected to MCP server")
	}

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

// Ping checks if the server is responsive, falling back to a health
// endpoint probe.
func (t *HTTPTransport) Ping(ctx context.Context) error {
	if !t.IsConnected() {
		return fmt.Errorf("not connected to MCP server")
	}

	resp, err := t.call(ctx, "ping", nil)
	if err == nil && resp.Error == nil {
		return nil
	}

	req, err2 := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err2 != nil {
		return err
	}
	httpResp, err2 := t.client.Do(req)
	if err2 != nil {
		return err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return fmt.Errorf("server returned status %d", httpResp.StatusCode)
	}
	return nil
}

// IsConnected returns current connection status.
func (t *HTTPTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// call makes one JSON-RPC POST round trip.
func (t *HTTPTransport) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("server returned status %d: %s", httpResp.StatusCode, string(bodyBytes))
	}

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// Ensure HTTPTransport implements Transport.
var _ Transport = (*HTTPTransport)(nil)
