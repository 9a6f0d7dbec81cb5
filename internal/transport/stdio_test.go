package transport

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestStdioEchoesResponseForEachLine(t *testing.T) {
	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" +
			`{"jsonrpc":"2.0","method":"ping"}` + "\n",
	)
	var out bytes.Buffer

	s := NewStdio(newTestEngine(), in, &out)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Count(out.String(), "\n") >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one response line (the notification produces none), got %d: %q", len(lines), out.String())
	}
	if !strings.Contains(lines[0], `"id":1`) {
		t.Fatalf("expected the response to carry id 1, got %q", lines[0])
	}
}
