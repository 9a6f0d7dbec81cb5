package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/thearchitectit/mcp-runtime/internal/backend"
	"github.com/thearchitectit/mcp-runtime/internal/protocol"
)

func newTestDispatcher() *Dispatcher {
	b := backend.NewDemoBackend("test-server", "0.0.0-test")
	return New(b, Meta{
		ProtocolVersion: "2025-11-25",
		Instructions:    "test instructions",
		Capabilities:    DefaultCapabilities(),
	})
}

func req(method string, params interface{}) *protocol.Request {
	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	return &protocol.Request{JSONRPC: protocol.Version, ID: protocol.NewNumberID(1), Method: method, Params: raw}
}

func TestDispatchInitialize(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("initialize", map[string]interface{}{
		"protocolVersion": "2025-11-25",
		"clientInfo":      map[string]interface{}{"name": "test-client", "version": "1.0"},
	}))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(protocol.InitializeResult)
	if !ok {
		t.Fatalf("expected InitializeResult, got %T", resp.Result)
	}
	if result.ServerInfo.Name != "test-server" {
		t.Fatalf("unexpected server name: %s", result.ServerInfo.Name)
	}
}

func TestDispatchInitializeMissingProtocolVersion(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("initialize", map[string]interface{}{}))
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected InvalidParams, got %+v", resp.Error)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("nope/nope", nil))
	if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Fatalf("expected MethodNotFound, got %+v", resp.Error)
	}
}

func TestDispatchBadEnvelope(t *testing.T) {
	d := newTestDispatcher()
	r := &protocol.Request{JSONRPC: "1.0", ID: protocol.NewNumberID(1), Method: "ping"}
	resp := d.Dispatch(context.Background(), r)
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
		t.Fatalf("expected InvalidRequest, got %+v", resp.Error)
	}
}

func TestDispatchPing(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("ping", nil))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestDispatchToolsList(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("tools/list", nil))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(protocol.ListToolsResult)
	if !ok {
		t.Fatalf("expected ListToolsResult, got %T", resp.Result)
	}
	if len(result.Tools) == 0 {
		t.Fatal("expected at least one tool")
	}
}

func TestDispatchToolsListInvalidLimit(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("tools/list", map[string]interface{}{"limit": 0}))
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected InvalidParams for limit=0, got %+v", resp.Error)
	}

	resp = d.Dispatch(context.Background(), req("tools/list", map[string]interface{}{"limit": 5000}))
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected InvalidParams for limit>1000, got %+v", resp.Error)
	}
}

func TestDispatchToolsCallEcho(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("tools/call", protocol.CallToolParams{
		Name:      "echo",
		Arguments: map[string]interface{}{"text": "hello"},
	}))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(protocol.CallToolResult)
	if !ok {
		t.Fatalf("expected CallToolResult, got %T", resp.Result)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hello" {
		t.Fatalf("unexpected content: %+v", result.Content)
	}
}

func TestDispatchToolsCallMissingRequiredArgument(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("tools/call", protocol.CallToolParams{
		Name:      "echo",
		Arguments: map[string]interface{}{},
	}))
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected InvalidParams for missing required arg, got %+v", resp.Error)
	}
}

func TestDispatchToolsCallInvalidName(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("tools/call", protocol.CallToolParams{
		Name: "not a valid name!",
	}))
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected InvalidParams for invalid tool name, got %+v", resp.Error)
	}
}

func TestDispatchToolsCallNotFound(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("tools/call", protocol.CallToolParams{Name: "nonexistent"}))
	if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Fatalf("expected MethodNotFound for unknown tool, got %+v", resp.Error)
	}
}

func TestDispatchResourcesReadInvalidURI(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("resources/read", protocol.ReadResourceParams{URI: ""}))
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected InvalidParams for empty uri, got %+v", resp.Error)
	}
}

func TestDispatchResourcesRead(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("resources/read", protocol.ReadResourceParams{URI: "demo://about"}))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(protocol.ReadResourceResult)
	if !ok || len(result.Contents) != 1 {
		t.Fatalf("unexpected result: %+v", resp.Result)
	}
}

func TestDispatchPromptsGet(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), req("prompts/get", protocol.GetPromptParams{
		Name:      "greet",
		Arguments: map[string]interface{}{"name": "Ada"},
	}))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(protocol.GetPromptResult)
	if !ok || len(result.Messages) != 1 {
		t.Fatalf("unexpected result: %+v", resp.Result)
	}
}

func TestMapBackendErrClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"tool not found", backend.ErrToolNotFound, protocol.CodeMethodNotFound},
		{"not supported", protocol.ErrNotSupported, protocol.CodeMethodNotFound},
		{"auth", backend.Classify(backend.ClassAuth, backend.ErrToolNotFound), protocol.CodeMethodNotFound},
		{"client", backend.Classify(backend.ClassClient, backendTestErr{"bad input"}), protocol.CodeInvalidParams},
		{"timeout", backend.Classify(backend.ClassTimeout, backendTestErr{"slow"}), protocol.CodeInternalError},
		{"unclassified", backendTestErr{"boom"}, protocol.CodeInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapBackendErr(tc.err, "subject")
			if got.Code != tc.code {
				t.Fatalf("mapBackendErr(%v) code = %d, want %d", tc.err, got.Code, tc.code)
			}
		})
	}
}

type backendTestErr struct{ msg string }

func (e backendTestErr) Error() string { return e.msg }
