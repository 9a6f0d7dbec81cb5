// Package dispatcher implements the MCP method table (§4.9): it routes a
// decoded, envelope-valid request to the configured Backend, validates
// arguments against each tool's declared schema, and classifies whatever
// the Backend returns into a JSON-RPC Response. It never touches the wire
// format (internal/protocol) or auth/session state (internal/middleware)
// directly — those are composed around it by the caller.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/thearchitectit/mcp-runtime/internal/backend"
	"github.com/thearchitectit/mcp-runtime/internal/protocol"
	"github.com/thearchitectit/mcp-runtime/internal/security"
)

// Meta carries the static identity/capability fields the `initialize`
// handshake answers with, kept separate from the Backend's per-call
// methods since they rarely change at runtime.
type Meta struct {
	ProtocolVersion string
	Instructions    string
	Capabilities    protocol.Capabilities
}

// DefaultCapabilities advertises tools/resources/prompts support with no
// change-notification streams, the capability set the demo backend and
// most simple Backend implementations satisfy.
func DefaultCapabilities() protocol.Capabilities {
	return protocol.Capabilities{
		Tools:     &protocol.ToolsCapability{},
		Resources: &protocol.ResourcesCapability{},
		Prompts:   &protocol.PromptsCapability{},
	}
}

// Dispatcher owns the method table and is safe for concurrent use: it
// holds no mutable state of its own, and the Backend it drives is
// required by contract (§4.3) to be safe for concurrent invocation.
type Dispatcher struct {
	backend backend.Backend
	meta    Meta
}

// New builds a Dispatcher over backend b.
func New(b backend.Backend, meta Meta) *Dispatcher {
	return &Dispatcher{backend: b, meta: meta}
}

// Dispatch routes a single request to its handler. Callers must not invoke
// Dispatch for a notification (req.IsNotification()) — per §3 a
// notification must produce no response bytes, a decision the caller
// (internal/middleware) makes before reaching the dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	if rpcErr := protocol.ValidateEnvelope(req); rpcErr != nil {
		return protocol.NewErrorResponse(req.ID, rpcErr)
	}

	switch req.Method {
	case "initialize":
		return d.handleInitialize(req)
	case "ping":
		return protocol.NewResultResponse(req.ID, struct{}{})
	case "tools/list":
		return d.handleToolsList(ctx, req)
	case "tools/call":
		return d.handleToolsCall(ctx, req)
	case "resources/list":
		return d.handleResourcesList(ctx, req)
	case "resources/read":
		return d.handleResourcesRead(ctx, req)
	case "prompts/list":
		return d.handlePromptsList(ctx, req)
	case "prompts/get":
		return d.handlePromptsGet(ctx, req)
	default:
		return protocol.NewErrorResponse(req.ID, protocol.NewError(
			protocol.CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil))
	}
}

func (d *Dispatcher) handleInitialize(req *protocol.Request) *protocol.Response {
	var params protocol.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.NewError(
				protocol.CodeInvalidParams, "invalid initialize params", nil))
		}
	}
	if params.ProtocolVersion == "" {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(
			protocol.CodeInvalidParams, "protocolVersion is required", nil))
	}

	return protocol.NewResultResponse(req.ID, protocol.InitializeResult{
		ProtocolVersion: d.meta.ProtocolVersion,
		Capabilities:    d.meta.Capabilities,
		ServerInfo:      d.backend.ServerInfo(),
		Instructions:    d.meta.Instructions,
	})
}

func (d *Dispatcher) handleToolsList(ctx context.Context, req *protocol.Request) *protocol.Response {
	page, rpcErr := parsePagination(req.Params)
	if rpcErr != nil {
		return protocol.NewErrorResponse(req.ID, rpcErr)
	}
	tools, next, err := d.backend.ListTools(ctx, page)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, mapBackendErr(err, "tools/list"))
	}
	if tools == nil {
		tools = []protocol.ToolDescriptor{}
	}
	return protocol.NewResultResponse(req.ID, protocol.ListToolsResult{Tools: tools, NextCursor: next})
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req *protocol.Request) *protocol.Response {
	var params protocol.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(
			protocol.CodeInvalidParams, "invalid tools/call params", nil))
	}
	if !protocol.ValidateToolName(params.Name) {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(
			protocol.CodeInvalidParams, "invalid tool name", map[string]string{"field": "name"}))
	}

	if tool, err := d.findTool(ctx, params.Name); err == nil && tool != nil {
		if rpcErr := validateArguments(tool.InputSchema, params.Arguments); rpcErr != nil {
			return protocol.NewErrorResponse(req.ID, rpcErr)
		}
	}

	content, isErr, err := d.backend.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, mapBackendErr(err, params.Name))
	}
	if content == nil {
		content = []protocol.ContentBlock{}
	}
	return protocol.NewResultResponse(req.ID, protocol.CallToolResult{Content: content, IsError: isErr})
}

func (d *Dispatcher) handleResourcesList(ctx context.Context, req *protocol.Request) *protocol.Response {
	page, rpcErr := parsePagination(req.Params)
	if rpcErr != nil {
		return protocol.NewErrorResponse(req.ID, rpcErr)
	}
	resources, next, err := d.backend.ListResources(ctx, page)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, mapBackendErr(err, "resources/list"))
	}
	if resources == nil {
		resources = []protocol.ResourceDescriptor{}
	}
	return protocol.NewResultResponse(req.ID, protocol.ListResourcesResult{Resources: resources, NextCursor: next})
}

func (d *Dispatcher) handleResourcesRead(ctx context.Context, req *protocol.Request) *protocol.Response {
	var params protocol.ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(
			protocol.CodeInvalidParams, "invalid resources/read params", nil))
	}
	if !protocol.ValidateResourceURI(params.URI) {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(
			protocol.CodeInvalidParams, "invalid resource uri", map[string]string{"field": "uri"}))
	}

	contents, err := d.backend.ReadResource(ctx, params.URI)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, mapBackendErr(err, params.URI))
	}
	if contents == nil {
		contents = []protocol.ResourceContent{}
	}
	return protocol.NewResultResponse(req.ID, protocol.ReadResourceResult{Contents: contents})
}

func (d *Dispatcher) handlePromptsList(ctx context.Context, req *protocol.Request) *protocol.Response {
	page, rpcErr := parsePagination(req.Params)
	if rpcErr != nil {
		return protocol.NewErrorResponse(req.ID, rpcErr)
	}
	prompts, next, err := d.backend.ListPrompts(ctx, page)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, mapBackendErr(err, "prompts/list"))
	}
	if prompts == nil {
		prompts = []protocol.PromptDescriptor{}
	}
	return protocol.NewResultResponse(req.ID, protocol.ListPromptsResult{Prompts: prompts, NextCursor: next})
}

func (d *Dispatcher) handlePromptsGet(ctx context.Context, req *protocol.Request) *protocol.Response {
	var params protocol.GetPromptParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(
			protocol.CodeInvalidParams, "invalid prompts/get params", nil))
	}
	if !protocol.ValidatePromptName(params.Name) {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(
			protocol.CodeInvalidParams, "invalid prompt name", map[string]string{"field": "name"}))
	}

	description, messages, err := d.backend.GetPrompt(ctx, params.Name, params.Arguments)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, mapBackendErr(err, params.Name))
	}
	if messages == nil {
		messages = []protocol.PromptMessage{}
	}
	return protocol.NewResultResponse(req.ID, protocol.GetPromptResult{Description: description, Messages: messages})
}

// findTool pages through the backend's tool list looking for name,
// stopping once a page repeats a cursor or a hard page cap is reached, so
// a misbehaving Backend can't wedge a single request in an infinite loop.
const maxFindToolPages = 100

func (d *Dispatcher) findTool(ctx context.Context, name string) (*protocol.ToolDescriptor, error) {
	cursor := ""
	for i := 0; i < maxFindToolPages; i++ {
		tools, next, err := d.backend.ListTools(ctx, protocol.Pagination{Cursor: cursor})
		if err != nil {
			return nil, err
		}
		for i := range tools {
			if tools[i].Name == name {
				return &tools[i], nil
			}
		}
		if next == "" || next == cursor {
			return nil, nil
		}
		cursor = next
	}
	return nil, nil
}

// mapBackendErr classifies a Backend-returned error into the JSON-RPC
// error it surfaces as (§7 Backend errors / §4.3). subject labels the
// tool/resource/prompt name or method the error concerns.
func mapBackendErr(err error, subject string) *protocol.Error {
	switch {
	case errors.Is(err, backend.ErrToolNotFound), errors.Is(err, backend.ErrResourceNotFound), errors.Is(err, backend.ErrPromptNotFound):
		return protocol.NewError(protocol.CodeMethodNotFound, fmt.Sprintf("not found: %s", subject), nil)
	case errors.Is(err, protocol.ErrNotSupported):
		return protocol.NewError(protocol.CodeMethodNotFound, "not supported", nil)
	}

	switch backend.ClassOf(err) {
	case backend.ClassAuth:
		return protocol.NewError(protocol.CodeUnauthorized, "unauthorized", nil)
	case backend.ClassTimeout:
		return protocol.NewError(protocol.CodeInternalError, "internal error", "timeout")
	case backend.ClassClient:
		return protocol.NewError(protocol.CodeInvalidParams, security.Sanitize(err.Error()), nil)
	default: // connection, retryable, and any unclassified error fail safe toward InternalError
		return protocol.NewError(protocol.CodeInternalError, "internal error", nil)
	}
}
