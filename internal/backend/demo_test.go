package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/thearchitectit/mcp-runtime/internal/protocol"
)

func TestDemoBackendEcho(t *testing.T) {
	b := NewDemoBackend("demo", "0.1.0")
	content, isErr, err := b.CallTool(context.Background(), "echo", map[string]interface{}{"text": "hi"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if isErr {
		t.Fatalf("expected isErr=false")
	}
	if len(content) != 1 || content[0].Text != "hi" {
		t.Errorf("content = %+v, want echoed text", content)
	}
}

func TestDemoBackendUnknownTool(t *testing.T) {
	b := NewDemoBackend("demo", "0.1.0")
	_, _, err := b.CallTool(context.Background(), "nope", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("err = %v, want ErrToolNotFound", err)
	}
}

func TestDemoBackendListTools(t *testing.T) {
	b := NewDemoBackend("demo", "0.1.0")
	tools, cursor, err := b.ListTools(context.Background(), protocol.Pagination{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if cursor != "" {
		t.Errorf("cursor = %q, want empty", cursor)
	}
	if len(tools) != 3 {
		t.Errorf("len(tools) = %d, want 3", len(tools))
	}
}

func TestClassify(t *testing.T) {
	base := errors.New("boom")
	err := Classify(ClassTimeout, base)
	if ClassOf(err) != ClassTimeout {
		t.Errorf("ClassOf = %v, want timeout", ClassOf(err))
	}
	if !errors.Is(err, err) {
		t.Fatalf("identity check failed")
	}
	if ClassOf(base) != ClassRetryable {
		t.Errorf("unclassified error should default to retryable, got %v", ClassOf(base))
	}
}
