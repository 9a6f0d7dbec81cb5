package transport

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/thearchitectit/mcp-runtime/internal/middleware"
	"github.com/thearchitectit/mcp-runtime/internal/protocol"
)

// maxStdioLineSize is the largest single line bufio.Scanner will accept
// before Scan starts returning bufio.ErrTooLong; it mirrors the HTTP
// transport's MaxMessageSize so an oversized stdio message fails the same
// way an oversized HTTP body does, rather than crashing the scanner.
const maxStdioLineSize = 10 << 20

// Stdio implements the newline-delimited JSON transport (§4.8): one
// JSON-RPC message per line on stdin, one response per line on stdout.
// There is no Origin, no session header, and no rate limiting by IP —
// ClientIP is reported as "stdio" so the pipeline's rate limiter (if
// enabled) buckets every stdio caller together, matching a single local
// process talking to a single local server.
type Stdio struct {
	engine *Engine
	in     io.Reader
	out    io.Writer

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewStdio builds a Stdio transport over the given engine and streams.
func NewStdio(engine *Engine, in io.Reader, out io.Writer) *Stdio {
	return &Stdio{engine: engine, in: in, out: out}
}

// Start launches the read loop in a background goroutine and returns
// immediately; the loop runs until ctx is canceled or stdin hits EOF.
func (s *Stdio) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	go s.loop(runCtx)
	return nil
}

func (s *Stdio) loop(ctx context.Context) {
	defer close(s.done)

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStdioLineSize)

	var writeMu sync.Mutex
	meta := middleware.RequestMeta{ClientIP: "stdio"}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}

		go func(line []byte) {
			result := s.engine.HandleMessage(ctx, line, meta)
			if result.Body == nil {
				return
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			if _, err := s.out.Write(result.Body); err != nil {
				slog.Error("stdio transport: write failed", "error", err)
				return
			}
			if _, err := s.out.Write([]byte("\n")); err != nil {
				slog.Error("stdio transport: write newline failed", "error", err)
			}
		}(line)
	}
	if err := scanner.Err(); err != nil {
		slog.Error("stdio transport: scan failed", "error", err)
	}
}

// Stop cancels the read loop and waits for it to exit. Reading from stdin
// itself cannot be interrupted once Scan is blocked on it, so Stop returns
// once the current line (if any) finishes processing and the loop
// observes ctx cancellation on its next iteration — consistent with the
// teacher's other background loops, which likewise rely on a check at the
// top of each iteration rather than forcibly closing the OS handle.
func (s *Stdio) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// HealthCheck reports the loop is running; stdio has no deeper dependency
// to probe.
func (s *Stdio) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return io.ErrClosedPipe
	}
	return nil
}

// Broadcast is unsupported: stdio has no addressable client set to push
// to outside of a response to its own request.
func (s *Stdio) Broadcast(ctx context.Context, msg *protocol.Request) error {
	return ErrBroadcastUnsupported
}
