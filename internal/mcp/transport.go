package mcp

import "context"

// Transport is the strategy interface shared by the stdio and HTTP
// variants. The client owns lifecycle ordering: Connect, Initialize,
// then tool calls, then Disconnect.
type Transport interface {
	// Connect establishes the session (spawns the subprocess for stdio,
	// verifies reachability for HTTP).
	Connect(ctx context.Context) error

	// Initialize performs the MCP initialize handshake and returns the
	// server's identity and capabilities.
	Initialize(ctx context.Context) (*ServerInfo, *Capabilities, error)

	// ListTools retrieves the server's declared tools.
	ListTools(ctx context.Context) ([]ToolSchema, error)

	// CallTool invokes a tool. Protocol-level failures are returned in
	// the CallResult, not as an error; err is reserved for transport
	// misuse (calling before Connect).
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error)

	// Ping checks responsiveness of the live session.
	Ping(ctx context.Context) error

	// Disconnect tears the session down. Idempotent.
	Disconnect() error

	// Terminate forcibly ends the session. For stdio this escalates
	// from SIGTERM to SIGKILL on the subprocess's process group; for
	// HTTP it is equivalent to Disconnect.
	Terminate() error

	// IsConnected reports current connection status.
	IsConnected() bool
}
