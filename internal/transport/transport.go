// Package transport implements the three wire transports the framework
// exposes a Dispatcher over (§4.8): newline-delimited stdio, plain HTTP
// POST, and Streamable-HTTP+SSE. Each transport decodes raw bytes into a
// JSON-RPC message, drives it through the shared middleware pipeline and
// dispatcher via Engine, and re-encodes whatever Engine returns — none of
// them touch dispatch or auth logic directly.
package transport

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/thearchitectit/mcp-runtime/internal/dispatcher"
	"github.com/thearchitectit/mcp-runtime/internal/middleware"
	"github.com/thearchitectit/mcp-runtime/internal/protocol"
)

// ErrBroadcastUnsupported is returned by Broadcast on a transport that
// cannot push unsolicited messages to a client, preserving the original
// implementation's behavior of simply not supporting server push outside
// of the streaming transport (§9 Open Questions).
var ErrBroadcastUnsupported = errors.New("transport: broadcast not supported")

// Transport is the common contract every wire transport implements.
type Transport interface {
	// Start binds resources and begins accepting requests. It must return
	// once the transport is ready, running its accept loop in the
	// background.
	Start(ctx context.Context) error
	// Stop shuts the transport down. Idempotent: calling Stop twice must
	// not error.
	Stop(ctx context.Context) error
	// HealthCheck succeeds iff the transport is currently accepting
	// requests.
	HealthCheck(ctx context.Context) error
	// Broadcast pushes msg to connected clients without an incoming
	// request to respond to. Transports that cannot do this return
	// ErrBroadcastUnsupported.
	Broadcast(ctx context.Context, msg *protocol.Request) error
}

// Engine glues the middleware pipeline and dispatcher together into the
// single entry point every transport drives: decode raw bytes, run the
// pipeline (which invokes the dispatcher as its terminal handler), encode
// whatever comes back. This is the transport-agnostic request lifecycle
// every one of §4.8's transports shares, kept out of any single transport
// file so stdio/HTTP/SSE don't each reimplement batch/notification
// handling.
type Engine struct {
	Pipeline   *middleware.Pipeline
	Dispatcher *dispatcher.Dispatcher
}

// NewEngine builds an Engine over a configured pipeline and dispatcher.
func NewEngine(p *middleware.Pipeline, d *dispatcher.Dispatcher) *Engine {
	return &Engine{Pipeline: p, Dispatcher: d}
}

// Result is what a single HandleMessage call produces: the bytes to write
// back (nil when the request was a pure notification or an
// all-notification batch, per §3/§4.1), and the most recent session ID
// bound or created while processing, for the transport to stamp onto a
// session header.
type Result struct {
	Body      []byte
	SessionID string
	IsError   bool
}

// HandleMessage decodes raw, drives every contained request (a batch
// produces independent per-element handling, §4.1) through the pipeline,
// and encodes the response(s). A top-level decode failure still produces
// a single JSON-RPC error response with a null ID, since the client needs
// something to read even when no request could be parsed far enough to
// carry an ID.
func (e *Engine) HandleMessage(ctx context.Context, raw []byte, meta middleware.RequestMeta) Result {
	msg, decodeErr := protocol.Decode(raw)
	if decodeErr != nil {
		resp := protocol.NewErrorResponse(protocol.ID{}, decodeErr)
		body, _ := json.Marshal(resp)
		return Result{Body: body, IsError: true}
	}

	if !msg.IsBatch() {
		return e.handleSingle(ctx, raw, meta, msg.Single)
	}

	var responses []*protocol.Response
	var lastSession string
	anyError := false
	for i := range msg.Batch {
		req := &msg.Batch[i]
		out := e.Pipeline.Handle(ctx, raw, meta, req, e.Dispatcher.Dispatch)
		if out.SessionID != "" {
			lastSession = out.SessionID
		}
		if out.IsError {
			anyError = true
		}
		if !req.IsNotification() {
			responses = append(responses, out.Response)
		}
	}

	if len(responses) == 0 {
		return Result{SessionID: lastSession}
	}
	body, _ := json.Marshal(responses)
	return Result{Body: body, SessionID: lastSession, IsError: anyError}
}

func (e *Engine) handleSingle(ctx context.Context, raw []byte, meta middleware.RequestMeta, req *protocol.Request) Result {
	out := e.Pipeline.Handle(ctx, raw, meta, req, e.Dispatcher.Dispatch)
	if req.IsNotification() {
		return Result{SessionID: out.SessionID, IsError: out.IsError}
	}
	body, _ := json.Marshal(out.Response)
	return Result{Body: body, SessionID: out.SessionID, IsError: out.IsError}
}
