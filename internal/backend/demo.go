package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/thearchitectit/mcp-runtime/internal/protocol"
)

// DemoBackend is a minimal reference Backend used by tests and the
// framework's own example server: an echo tool, a clock tool, and a
// health-check tool, plus one static resource and one static prompt.
// Structurally grounded on the teacher's handleToolCall/handleReadResource
// name-switch dispatch in internal/mcp/server.go, generalized away from
// guardrail-specific tool names to a generic demo set.
type DemoBackend struct {
	name    string
	version string
}

// NewDemoBackend constructs a DemoBackend identifying itself as name/version
// in ServerInfo and initialize responses.
func NewDemoBackend(name, version string) *DemoBackend {
	return &DemoBackend{name: name, version: version}
}

func (b *DemoBackend) ServerInfo() protocol.ServerInfo {
	return protocol.ServerInfo{Name: b.name, Version: b.version}
}

func (b *DemoBackend) HealthCheck(ctx context.Context) error {
	return nil
}

func (b *DemoBackend) ListTools(ctx context.Context, page protocol.Pagination) ([]protocol.ToolDescriptor, string, error) {
	return []protocol.ToolDescriptor{
		{
			Name:        "echo",
			Description: "Echoes back the supplied text",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{"type": "string", "description": "text to echo"},
				},
				"required": []string{"text"},
			},
		},
		{
			Name:        "time",
			Description: "Returns the current server time in RFC3339",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "health",
			Description: "Reports backend health status",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}, "", nil
}

func (b *DemoBackend) CallTool(ctx context.Context, name string, arguments map[string]interface{}) ([]protocol.ContentBlock, bool, error) {
	switch name {
	case "echo":
		text, _ := arguments["text"].(string)
		return []protocol.ContentBlock{{Type: "text", Text: text}}, false, nil
	case "time":
		return []protocol.ContentBlock{{Type: "text", Text: time.Now().UTC().Format(time.RFC3339)}}, false, nil
	case "health":
		if err := b.HealthCheck(ctx); err != nil {
			return []protocol.ContentBlock{{Type: "text", Text: err.Error()}}, true, nil
		}
		return []protocol.ContentBlock{{Type: "text", Text: "ok"}}, false, nil
	default:
		return nil, false, ErrToolNotFound
	}
}

func (b *DemoBackend) ListResources(ctx context.Context, page protocol.Pagination) ([]protocol.ResourceDescriptor, string, error) {
	return []protocol.ResourceDescriptor{
		{URI: "demo://about", Name: "about", MimeType: "text/plain", Description: "describes this demo backend"},
	}, "", nil
}

func (b *DemoBackend) ReadResource(ctx context.Context, uri string) ([]protocol.ResourceContent, error) {
	switch uri {
	case "demo://about":
		return []protocol.ResourceContent{{
			URI:      uri,
			MimeType: "text/plain",
			Text:     fmt.Sprintf("%s %s demo backend: echo, time, health tools", b.name, b.version),
		}}, nil
	default:
		return nil, ErrResourceNotFound
	}
}

func (b *DemoBackend) ListPrompts(ctx context.Context, page protocol.Pagination) ([]protocol.PromptDescriptor, string, error) {
	return []protocol.PromptDescriptor{
		{
			Name:        "greet",
			Description: "Produces a greeting prompt",
			Arguments:   []protocol.PromptArgument{{Name: "name", Description: "who to greet", Required: true}},
		},
	}, "", nil
}

func (b *DemoBackend) GetPrompt(ctx context.Context, name string, arguments map[string]interface{}) (string, []protocol.PromptMessage, error) {
	switch name {
	case "greet":
		who, _ := arguments["name"].(string)
		if who == "" {
			who = "there"
		}
		return "a friendly greeting", []protocol.PromptMessage{
			{Role: "user", Content: protocol.ContentBlock{Type: "text", Text: fmt.Sprintf("Say hello to %s", who)}},
		}, nil
	default:
		return "", nil, ErrPromptNotFound
	}
}
