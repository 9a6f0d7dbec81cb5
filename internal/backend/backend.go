// Package backend defines the pluggable contract the framework dispatches
// MCP tool/resource/prompt operations through, and classifies the errors a
// Backend implementation returns so the dispatcher can map them onto the
// correct JSON-RPC error code (§4.3, §7).
package backend

import (
	"context"
	"errors"

	"github.com/thearchitectit/mcp-runtime/internal/protocol"
)

// Backend is implemented by user code and driven by the dispatcher. Every
// method must be safe for concurrent invocation; the framework never
// serializes calls to a single Backend.
type Backend interface {
	ServerInfo() protocol.ServerInfo
	HealthCheck(ctx context.Context) error

	ListTools(ctx context.Context, page protocol.Pagination) ([]protocol.ToolDescriptor, string, error)
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) ([]protocol.ContentBlock, bool, error)

	ListResources(ctx context.Context, page protocol.Pagination) ([]protocol.ResourceDescriptor, string, error)
	ReadResource(ctx context.Context, uri string) ([]protocol.ResourceContent, error)

	ListPrompts(ctx context.Context, page protocol.Pagination) ([]protocol.PromptDescriptor, string, error)
	GetPrompt(ctx context.Context, name string, arguments map[string]interface{}) (string, []protocol.PromptMessage, error)
}

// Lifecycle is implemented optionally by a Backend that needs to run setup
// or teardown work alongside the server's own startup/shutdown sequence.
type Lifecycle interface {
	OnStartup(ctx context.Context) error
	OnShutdown(ctx context.Context) error
}

// Class is the error classification a Backend error is sorted into before
// being mapped onto a JSON-RPC error code (§7).
type Class string

const (
	ClassAuth       Class = "auth"
	ClassConnection Class = "connection"
	ClassTimeout    Class = "timeout"
	ClassRetryable  Class = "retryable"
	ClassClient     Class = "client"
)

// ClassifiedError pairs an underlying error with its Class so the
// dispatcher doesn't need to inspect error text or type-switch on driver
// specific error types to decide how to respond.
type ClassifiedError struct {
	Class Class
	Err   error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify wraps err with class, the constructor Backend implementations
// use to report a failure's kind.
func Classify(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err}
}

// ClassOf extracts the Class from err, defaulting to ClassRetryable for an
// unclassified error (internal failures should fail safe toward a retry
// rather than leaking internal detail as a client-fixable InvalidParams).
func ClassOf(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassRetryable
}

// ErrToolNotFound is returned by CallTool for an unknown tool name; the
// dispatcher maps it to MethodNotFound.
var ErrToolNotFound = errors.New("backend: tool not found")

// ErrResourceNotFound is returned by ReadResource for an unknown URI.
var ErrResourceNotFound = errors.New("backend: resource not found")

// ErrPromptNotFound is returned by GetPrompt for an unknown prompt name.
var ErrPromptNotFound = errors.New("backend: prompt not found")
