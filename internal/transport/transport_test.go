package transport

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/thearchitectit/mcp-runtime/internal/backend"
	"github.com/thearchitectit/mcp-runtime/internal/dispatcher"
	"github.com/thearchitectit/mcp-runtime/internal/middleware"
	"github.com/thearchitectit/mcp-runtime/internal/protocol"
)

func newTestEngine() *Engine {
	d := dispatcher.New(backend.NewDemoBackend("demo", "0.1.0"), dispatcher.Meta{
		ProtocolVersion: "2025-11-25",
		Capabilities:    dispatcher.DefaultCapabilities(),
	})
	p := middleware.New(middleware.Config{MaxMessageSize: 1 << 20})
	return NewEngine(p, d)
}

func TestEngineHandleSingleRequest(t *testing.T) {
	e := newTestEngine()
	result := e.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`), middleware.RequestMeta{ClientIP: "127.0.0.1"})
	if result.Body == nil {
		t.Fatal("expected a response body for a request with an id")
	}
	var resp protocol.Response
	if err := json.Unmarshal(result.Body, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestEngineHandleNotificationProducesNoBody(t *testing.T) {
	e := newTestEngine()
	result := e.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"ping"}`), middleware.RequestMeta{ClientIP: "127.0.0.1"})
	if result.Body != nil {
		t.Fatalf("expected nil body for a notification, got %s", result.Body)
	}
}

func TestEngineHandleBatchMixedNotifications(t *testing.T) {
	e := newTestEngine()
	raw := []byte(`[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","method":"ping"}]`)
	result := e.HandleMessage(context.Background(), raw, middleware.RequestMeta{ClientIP: "127.0.0.1"})
	var responses []protocol.Response
	if err := json.Unmarshal(result.Body, &responses); err != nil {
		t.Fatalf("unmarshal batch response: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("expected exactly one response for the one non-notification element, got %d", len(responses))
	}
}

func TestEngineHandleParseErrorProducesNullID(t *testing.T) {
	e := newTestEngine()
	result := e.HandleMessage(context.Background(), []byte(`not json`), middleware.RequestMeta{ClientIP: "127.0.0.1"})
	var resp protocol.Response
	if err := json.Unmarshal(result.Body, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != protocol.CodeParseError {
		t.Fatalf("expected ParseError, got %+v", resp.Error)
	}
	if !resp.ID.IsNull() {
		t.Fatalf("expected null id on a parse error, got %s", resp.ID.String())
	}
}

func TestEngineHandleEmptyBatchIsInvalidRequest(t *testing.T) {
	e := newTestEngine()
	result := e.HandleMessage(context.Background(), []byte(`[]`), middleware.RequestMeta{ClientIP: "127.0.0.1"})
	var resp protocol.Response
	if err := json.Unmarshal(result.Body, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
		t.Fatalf("expected InvalidRequest for an empty batch, got %+v", resp.Error)
	}
}
