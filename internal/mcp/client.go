package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"toolcheck/internal/logging"
)

// Client owns one live MCP session against the tool server under
// validation. It caches the tool list from the initial discovery so
// per-test lookups never re-query the server.
type Client struct {
	mu sync.RWMutex

	transport  Transport
	serverInfo *ServerInfo
	caps       *Capabilities
	tools      []ToolSchema
	toolsByName map[string]*ToolSchema
}

// NewClient wraps a transport. Use NewStdioTransport or NewHTTPTransport
// to build one, or inject a fake for tests.
func NewClient(transport Transport) *Client {
	return &Client{
		transport:   transport,
		toolsByName: make(map[string]*ToolSchema),
	}
}

// Connect establishes the session, performs the initialize handshake,
// and discovers the server's tools.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}

	info, caps, err := c.transport.Initialize(ctx)
	if err != nil {
		_ = c.transport.Disconnect()
		return err
	}

	tools, err := c.transport.ListTools(ctx)
	if err != nil {
		_ = c.transport.Disconnect()
		return fmt.Errorf("tool discovery failed: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = info
	c.caps = caps
	c.tools = tools
	c.toolsByName = make(map[string]*ToolSchema, len(tools))
	for i := range tools {
		c.toolsByName[tools[i].Name] = &tools[i]
	}
	c.mu.Unlock()

	logging.Get(logging.CategoryMCP).Info("Connected to %s %s: %d tool(s) available",
		info.Name, info.Version, len(tools))
	return nil
}

// ServerInfo returns the connected server's identity, or nil before Connect.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Tools returns the discovered tool list.
func (c *Client) Tools() []ToolSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// Tool returns the named tool's schema, or nil if the server does not
// expose it.
func (c *Client) Tool(name string) *ToolSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.toolsByName[name]
}

// HasTool reports whether the live server exposes the named tool.
func (c *Client) HasTool(name string) bool {
	return c.Tool(name) != nil
}

// CallTool invokes a tool through the transport.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error) {
	return c.transport.CallTool(ctx, name, args)
}

// Ping checks session responsiveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.transport.Ping(ctx)
}

// IsConnected reports whether the session is live.
func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// Close tears the session down. Idempotent.
func (c *Client) Close() error {
	return c.transport.Disconnect()
}

// Terminate forcibly ends the session (graceful-then-kill for stdio).
func (c *Client) Terminate() error {
	return c.transport.Terminate()
}

// NewTransport builds the transport variant for a server config.
func NewTransport(cfg ServerConfig, argv []string, httpTimeout time.Duration) (Transport, error) {
	switch cfg.Protocol {
	case ProtocolStdio, "":
		if len(argv) == 0 {
			return nil, fmt.Errorf("no launch command for stdio server")
		}
		return NewStdioTransport(argv, cfg.WorkDir, cfg.Env), nil
	case ProtocolHTTP:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("no base_url for http server")
		}
		return NewHTTPTransport(cfg.BaseURL, httpTimeout), nil
	default:
		return nil, fmt.Errorf("unknown MCP protocol %q", cfg.Protocol)
	}
}
