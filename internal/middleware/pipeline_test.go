package middleware

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/thearchitectit/mcp-runtime/internal/auth"
	"github.com/thearchitectit/mcp-runtime/internal/credential"
	"github.com/thearchitectit/mcp-runtime/internal/protocol"
	"github.com/thearchitectit/mcp-runtime/internal/session"
)

func echoHandler(ctx context.Context, req *protocol.Request) *protocol.Response {
	return protocol.NewResultResponse(req.ID, map[string]string{"ok": "true"})
}

func newTestCredentialStore(t *testing.T, secret string) credential.Store {
	t.Helper()
	store := credential.NewMemoryStore()
	cred := &credential.Credential{
		ID:         "cred-1",
		Name:       "test",
		SecretHash: credential.HashSecret(secret),
		Role:       credential.RoleOperator,
	}
	if _, err := store.Create(context.Background(), cred); err != nil {
		t.Fatalf("create credential: %v", err)
	}
	return store
}

func TestPipelineAnonymousMethodBypassesAuth(t *testing.T) {
	p := New(Config{MaxMessageSize: 1 << 20})
	defer p.Stop()

	req := &protocol.Request{JSONRPC: protocol.Version, ID: protocol.NewNumberID(1), Method: "ping"}
	out := p.Handle(context.Background(), []byte(`{}`), RequestMeta{ClientIP: "127.0.0.1"}, req, echoHandler)
	if out.Response.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Response.Error)
	}
}

func TestPipelineRequiresAuthForNonAnonymousMethod(t *testing.T) {
	p := New(Config{MaxMessageSize: 1 << 20})
	defer p.Stop()

	req := &protocol.Request{JSONRPC: protocol.Version, ID: protocol.NewNumberID(1), Method: "tools/list"}
	out := p.Handle(context.Background(), []byte(`{}`), RequestMeta{ClientIP: "127.0.0.1"}, req, echoHandler)
	if out.Response.Error == nil || out.Response.Error.Code != protocol.CodeUnauthorized {
		t.Fatalf("expected Unauthorized, got %+v", out.Response.Error)
	}
}

func TestPipelineAPIKeyAuthSucceeds(t *testing.T) {
	store := newTestCredentialStore(t, "s3cr3t-key-value")
	p := New(Config{
		MaxMessageSize:  1 << 20,
		APIKeyValidator: auth.NewAPIKeyValidator(store),
	})
	defer p.Stop()

	headers := http.Header{}
	headers.Set("X-API-Key", "s3cr3t-key-value")

	req := &protocol.Request{JSONRPC: protocol.Version, ID: protocol.NewNumberID(1), Method: "tools/list"}
	out := p.Handle(context.Background(), []byte(`{}`), RequestMeta{ClientIP: "127.0.0.1", Headers: headers}, req, echoHandler)
	if out.Response.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Response.Error)
	}
	if out.AuthContext == nil || out.AuthContext.APIKeyID != "cred-1" {
		t.Fatalf("unexpected auth context: %+v", out.AuthContext)
	}
}

func TestPipelineAPIKeyAuthFailsOnWrongSecret(t *testing.T) {
	store := newTestCredentialStore(t, "s3cr3t-key-value")
	p := New(Config{
		MaxMessageSize:  1 << 20,
		APIKeyValidator: auth.NewAPIKeyValidator(store),
	})
	defer p.Stop()

	headers := http.Header{}
	headers.Set("X-API-Key", "wrong-key")

	req := &protocol.Request{JSONRPC: protocol.Version, ID: protocol.NewNumberID(1), Method: "tools/list"}
	out := p.Handle(context.Background(), []byte(`{}`), RequestMeta{ClientIP: "127.0.0.1", Headers: headers}, req, echoHandler)
	if out.Response.Error == nil || out.Response.Error.Code != protocol.CodeUnauthorized {
		t.Fatalf("expected Unauthorized, got %+v", out.Response.Error)
	}
}

func TestPipelineSessionAutoCreateAndBind(t *testing.T) {
	store := newTestCredentialStore(t, "s3cr3t-key-value")
	sessions := session.NewManager(session.DefaultConfig(), session.NewMemoryStore())

	p := New(Config{
		MaxMessageSize:    1 << 20,
		APIKeyValidator:   auth.NewAPIKeyValidator(store),
		Sessions:          sessions,
		SessionAutoCreate: true,
		SessionTTL:        time.Hour,
	})
	defer p.Stop()

	headers := http.Header{}
	headers.Set("X-API-Key", "s3cr3t-key-value")

	req := &protocol.Request{JSONRPC: protocol.Version, ID: protocol.NewNumberID(1), Method: "tools/list"}
	out := p.Handle(context.Background(), []byte(`{}`), RequestMeta{ClientIP: "127.0.0.1", Headers: headers}, req, echoHandler)
	if out.Response.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Response.Error)
	}
	if !out.NewSession || out.SessionID == "" {
		t.Fatalf("expected a new session to be created, got %+v", out)
	}

	headers2 := http.Header{}
	headers2.Set(mcpSessionHeader, out.SessionID)
	req2 := &protocol.Request{JSONRPC: protocol.Version, ID: protocol.NewNumberID(2), Method: "tools/list"}
	out2 := p.Handle(context.Background(), []byte(`{}`), RequestMeta{ClientIP: "127.0.0.1", Headers: headers2}, req2, echoHandler)
	if out2.Response.Error != nil {
		t.Fatalf("unexpected error on session-bound request: %+v", out2.Response.Error)
	}
	if out2.NewSession {
		t.Fatal("expected existing session to be reused, not recreated")
	}
	if out2.AuthContext == nil || out2.AuthContext.APIKeyID != "cred-1" {
		t.Fatalf("expected auth context reconstructed from session, got %+v", out2.AuthContext)
	}
}

func TestPipelineRequestTooLarge(t *testing.T) {
	p := New(Config{MaxMessageSize: 4})
	defer p.Stop()

	req := &protocol.Request{JSONRPC: protocol.Version, ID: protocol.NewNumberID(1), Method: "ping"}
	out := p.Handle(context.Background(), []byte(`{"too":"big"}`), RequestMeta{ClientIP: "127.0.0.1"}, req, echoHandler)
	if out.Response.Error == nil || out.Response.Error.Code != protocol.CodeInvalidRequest {
		t.Fatalf("expected InvalidRequest for oversized body, got %+v", out.Response.Error)
	}
}

func TestPipelineRateLimiting(t *testing.T) {
	p := New(Config{
		MaxMessageSize: 1 << 20,
		RateLimit: RateLimitConfig{
			Enabled:     true,
			MaxRequests: 1,
			Window:      time.Minute,
			BurstFactor: 1,
		},
	})
	defer p.Stop()

	req := &protocol.Request{JSONRPC: protocol.Version, ID: protocol.NewNumberID(1), Method: "ping"}
	out1 := p.Handle(context.Background(), []byte(`{}`), RequestMeta{ClientIP: "10.0.0.1"}, req, echoHandler)
	if out1.Response.Error != nil {
		t.Fatalf("unexpected error on first request: %+v", out1.Response.Error)
	}

	out2 := p.Handle(context.Background(), []byte(`{}`), RequestMeta{ClientIP: "10.0.0.1"}, req, echoHandler)
	if out2.Response.Error == nil || out2.Response.Error.Code != protocol.CodeRateLimited {
		t.Fatalf("expected RateLimited on second request, got %+v", out2.Response.Error)
	}
}

func TestPipelinePanicRecovered(t *testing.T) {
	p := New(Config{MaxMessageSize: 1 << 20})
	defer p.Stop()

	req := &protocol.Request{JSONRPC: protocol.Version, ID: protocol.NewNumberID(1), Method: "ping"}
	out := p.Handle(context.Background(), []byte(`{}`), RequestMeta{ClientIP: "127.0.0.1"}, req, func(ctx context.Context, req *protocol.Request) *protocol.Response {
		panic("boom")
	})
	if out.Response.Error == nil || out.Response.Error.Code != protocol.CodeInternalError {
		t.Fatalf("expected InternalError after recovered panic, got %+v", out.Response.Error)
	}
}
