// Package mcp provides a Model Context Protocol client for driving a
// tool server under validation. One live session is shared per run;
// the transport (stdio subprocess or HTTP) is a pluggable strategy.
package mcp

import (
	"encoding/json"
)

// Protocol represents the MCP transport protocol.
type Protocol string

const (
	ProtocolStdio Protocol = "stdio"
	ProtocolHTTP  Protocol = "http"
)

// ServerConfig describes how to reach (or launch) the tool server.
type ServerConfig struct {
	Protocol Protocol `yaml:"protocol"`
	Command  string   `yaml:"command,omitempty"`  // stdio: launch command line
	BaseURL  string   `yaml:"base_url,omitempty"` // http: endpoint
	WorkDir  string   `yaml:"work_dir,omitempty"` // stdio: working directory for the subprocess
	Env      []string `yaml:"env,omitempty"`      // stdio: extra environment entries, KEY=VALUE
}

// ToolSchema is a tool declaration as published by the server.
type ToolSchema struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// ServerInfo identifies the server after the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities are the server's declared protocol capabilities.
type Capabilities struct {
	Tools     map[string]interface{} `json:"tools,omitempty"`
	Resources map[string]interface{} `json:"resources,omitempty"`
	Prompts   map[string]interface{} `json:"prompts,omitempty"`
}

// CallResult is the raw outcome of one tools/call round trip.
type CallResult struct {
	Success   bool            `json:"success"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode int             `json:"error_code,omitempty"` // JSON-RPC error code, 0 if none
	IsError   bool            `json:"is_error,omitempty"`   // tool-level isError flag from the result
	LatencyMs int64           `json:"latency_ms"`
}

// rpcRequest is a JSON-RPC 2.0 request (or, without ID, a notification).
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is the error member of a JSON-RPC response.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// initializeResult is the payload of a successful initialize call.
type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// toolCallResult is the payload of a tools/call result.
type toolCallResult struct {
	Content           []contentBlock  `json:"content,omitempty"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// contentBlock is one entry of a tools/call content array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// protocolVersion is the MCP revision this client speaks.
const protocolVersion = "2024-11-05"

// clientInfo sent during the initialize handshake.
var clientInfo = map[string]string{
	"name":    "toolcheck",
	"version": "1.0.0",
}
