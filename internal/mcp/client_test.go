package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

// fakeTransport implements Transport in memory.
type fakeTransport struct {
	connected   bool
	tools       []ToolSchema
	callResults map[string]*CallResult
	callCount   int
	initErr     error
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connected = true
	return nil
}

func (f *fakeTransport) Initialize(ctx context.Context) (*ServerInfo, *Capabilities, error) {
	if f.initErr != nil {
		return nil, nil, f.initErr
	}
	return &ServerInfo{Name: "fake-server", Version: "0.1.0"}, &Capabilities{}, nil
}

func (f *fakeTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
	return f.tools, nil
}

func (f *fakeTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error) {
	f.callCount++
	if r, ok := f.callResults[name]; ok {
		return r, nil
	}
	return &CallResult{Success: false, Error: "unknown tool", ErrorCode: -32602}, nil
}

func (f *fakeTransport) Ping(ctx context.Context) error { return nil }
func (f *fakeTransport) Disconnect() error              { f.connected = false; return nil }
func (f *fakeTransport) Terminate() error               { f.connected = false; return nil }
func (f *fakeTransport) IsConnected() bool              { return f.connected }

func TestClientConnectDiscoversTools(t *testing.T) {
	ft := &fakeTransport{
		tools: []ToolSchema{
			{Name: "get_weather", InputSchema: json.RawMessage(`{"type":"object"}`)},
			{Name: "order_food"},
		},
	}
	c := NewClient(ft)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if got := c.ServerInfo(); got == nil || got.Name != "fake-server" {
		t.Fatalf("unexpected server info: %+v", got)
	}
	if len(c.Tools()) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(c.Tools()))
	}
	if !c.HasTool("get_weather") {
		t.Errorf("expected get_weather to be available")
	}
	if c.HasTool("missing_tool") {
		t.Errorf("missing_tool should not be available")
	}
	if tool := c.Tool("get_weather"); tool == nil || len(tool.InputSchema) == 0 {
		t.Errorf("expected cached schema for get_weather")
	}
}

func TestClientConnectFailureDisconnects(t *testing.T) {
	ft := &fakeTransport{initErr: fmt.Errorf("handshake refused")}
	c := NewClient(ft)

	if err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected Connect to fail")
	}
	if ft.connected {
		t.Errorf("transport should be disconnected after failed handshake")
	}
}

func TestClientCallTool(t *testing.T) {
	ft := &fakeTransport{
		tools: []ToolSchema{{Name: "echo"}},
		callResults: map[string]*CallResult{
			"echo": {Success: true, Output: json.RawMessage(`{"structuredContent":{"text":"hi"}}`)},
		},
	}
	c := NewClient(ft)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	result, err := c.CallTool(context.Background(), "echo", map[string]interface{}{"text": "hi"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}

	result, err = c.CallTool(context.Background(), "nope", nil)
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if result.Success || result.ErrorCode != -32602 {
		t.Fatalf("expected invalid-params failure, got %+v", result)
	}
}

func TestNewTransportSelection(t *testing.T) {
	if _, err := NewTransport(ServerConfig{Protocol: ProtocolStdio}, nil, 0); err == nil {
		t.Errorf("stdio without argv should fail")
	}
	if _, err := NewTransport(ServerConfig{Protocol: ProtocolHTTP}, nil, 0); err == nil {
		t.Errorf("http without base_url should fail")
	}
	tr, err := NewTransport(ServerConfig{Protocol: ProtocolStdio}, []string{"python", "server.py"}, 0)
	if err != nil {
		t.Fatalf("stdio transport: %v", err)
	}
	if _, ok := tr.(*StdioTransport); !ok {
		t.Errorf("expected StdioTransport, got %T", tr)
	}
	tr, err = NewTransport(ServerConfig{Protocol: ProtocolHTTP, BaseURL: "http://localhost:8000/mcp"}, nil, 0)
	if err != nil {
		t.Fatalf("http transport: %v", err)
	}
	if _, ok := tr.(*HTTPTransport); !ok {
		t.Errorf("expected HTTPTransport, got %T", tr)
	}
	if _, err := NewTransport(ServerConfig{Protocol: "carrier-pigeon"}, nil, 0); err == nil {
		t.Errorf("unknown protocol should fail")
	}
}
