package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/thearchitectit/mcp-runtime/internal/metrics"
	"github.com/thearchitectit/mcp-runtime/internal/middleware"
	"github.com/thearchitectit/mcp-runtime/internal/protocol"
	"github.com/thearchitectit/mcp-runtime/internal/session"
)

// sseKeepAliveInterval is the idle keep-alive cadence (§4.8), ported
// directly from the Rust original's 30-second ping comment.
const sseKeepAliveInterval = 30 * time.Second

// sseRingBufferSize bounds how many events a single (session, stream) pair
// retains for Last-Event-ID replay. Replaying from a bounded ring rather
// than an unbounded log is the enrichment §9 calls out over the Rust
// original, which only logs Last-Event-ID without actually replaying.
const sseRingBufferSize = 256

// SSEConfig configures the Streamable-HTTP+SSE transport (§4.8).
type SSEConfig struct {
	Addr                    string
	Path                    string
	LegacyMessagesPath      string
	LegacySSEPath           string
	MaxMessageSize          int64
	AllowedOrigins          []string
	EnforceOriginValidation bool
	Resumable               bool
	RetryMs                 int
	Sessions                *session.Manager
	SessionTTL              time.Duration
}

// sseEvent is one framed Server-Sent Event, tagged with the monotonic ID
// the ring buffer replays from.
type sseEvent struct {
	id   string
	name string
	data string
}

// sseEventID is the "{session}:{stream}:{sequence}" encoding the Rust
// original uses for Last-Event-ID, ported verbatim (§4.8).
type sseEventID struct {
	sessionID string
	streamID  string
	sequence  uint64
}

func (id sseEventID) encode() string {
	return fmt.Sprintf("%s:%s:%d", id.sessionID, id.streamID, id.sequence)
}

// parseSSEEventID parses a Last-Event-ID header value via a strict
// 3-field colon split; any other shape is treated as absent rather than
// an error, per the original's tolerant parsing.
func parseSSEEventID(raw string) (sseEventID, bool) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return sseEventID{}, false
	}
	seq, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return sseEventID{}, false
	}
	return sseEventID{sessionID: parts[0], streamID: parts[1], sequence: seq}, true
}

// streamBuffer is the per-(session,stream) ring buffer of recently sent
// events plus the monotonic counter that mints new event IDs. subscribers
// are the live connections currently reading this stream; append fans a
// copy of the new event out to each of them so Broadcast reaches an open
// connection immediately rather than only on the next reconnect's replay.
type streamBuffer struct {
	mu          sync.Mutex
	sequence    uint64
	events      []sseEvent
	subscribers map[chan sseEvent]struct{}
}

func (b *streamBuffer) append(name, data string, sessionID, streamID string) sseEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sequence++
	ev := sseEvent{
		id:   sseEventID{sessionID: sessionID, streamID: streamID, sequence: b.sequence}.encode(),
		name: name,
		data: data,
	}
	b.events = append(b.events, ev)
	if len(b.events) > sseRingBufferSize {
		b.events = b.events[len(b.events)-sseRingBufferSize:]
	}
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// subscribe registers a channel to receive every future append. The
// caller must unsubscribe when the connection closes.
func (b *streamBuffer) subscribe() chan sseEvent {
	ch := make(chan sseEvent, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers == nil {
		b.subscribers = make(map[chan sseEvent]struct{})
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

func (b *streamBuffer) unsubscribe(ch chan sseEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, ch)
}

// replayAfter returns the events strictly after the given sequence number
// still held in the ring, or false when that sequence has already aged
// out of the buffer (the client must reconnect fresh in that case).
func (b *streamBuffer) replayAfter(sequence uint64) ([]sseEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil, sequence == 0
	}
	oldestSeq := b.sequence - uint64(len(b.events)) + 1
	if sequence+1 < oldestSeq {
		return nil, false
	}
	var out []sseEvent
	for _, ev := range b.events {
		id, ok := parseSSEEventID(ev.id)
		if ok && id.sequence > sequence {
			out = append(out, ev)
		}
	}
	return out, true
}

// SSE implements the Streamable-HTTP+SSE transport (§4.8): POST /mcp (+
// legacy /messages) for client→server, GET /mcp (+ legacy /sse) to open a
// server→client event stream with resumable replay via Last-Event-ID.
type SSE struct {
	cfg    SSEConfig
	engine *Engine
	srv    *http.Server

	mu      sync.Mutex
	buffers map[string]*streamBuffer // "sessionID:streamID" -> buffer
}

// NewSSE builds an SSE transport, defaulting unset paths to the spec's
// canonical and legacy routes.
func NewSSE(engine *Engine, cfg SSEConfig) *SSE {
	if cfg.Path == "" {
		cfg.Path = "/mcp"
	}
	if cfg.LegacyMessagesPath == "" {
		cfg.LegacyMessagesPath = "/messages"
	}
	if cfg.LegacySSEPath == "" {
		cfg.LegacySSEPath = "/sse"
	}
	if cfg.RetryMs <= 0 {
		cfg.RetryMs = 2000
	}
	return &SSE{cfg: cfg, engine: engine, buffers: make(map[string]*streamBuffer)}
}

func (s *SSE) Start(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.CorrelationID())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.PanicRecovery())
	e.Use(echomw.BodyLimit(bodyLimitString(s.cfg.MaxMessageSize)))

	e.POST(s.cfg.Path, s.handlePost)
	e.POST(s.cfg.LegacyMessagesPath, s.handlePost)
	e.GET(s.cfg.Path, s.handleStream)
	e.GET(s.cfg.LegacySSEPath, s.handleStream)

	s.srv = &http.Server{Addr: s.cfg.Addr, Handler: e}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("sse transport: serve failed", "error", err)
		}
	}()
	return nil
}

func (s *SSE) handlePost(c echo.Context) error {
	req := c.Request()

	if !s.validateOrigin(req.Header.Get("Origin")) {
		metrics.RecordRateLimitHit("origin", req.URL.Path)
		middleware.WriteForbiddenOrigin(c.Response())
		return nil
	}

	sessionID, err := s.ensureSession(req.Context(), req.Header.Get(mcpSessionHeader))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session allocation failed")
	}

	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	meta := middleware.RequestMeta{
		ClientIP:  c.RealIP(),
		Origin:    req.Header.Get("Origin"),
		UserAgent: req.UserAgent(),
		Headers:   req.Header,
	}
	headers := req.Header.Clone()
	headers.Set(mcpSessionHeader, sessionID)
	meta.Headers = headers

	result := s.engine.HandleMessage(req.Context(), raw, meta)
	respSession := sessionID
	if result.SessionID != "" {
		respSession = result.SessionID
	}
	c.Response().Header().Set(mcpSessionHeader, respSession)

	if result.Body == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSONBlob(http.StatusOK, result.Body)
}

// handleStream implements GET /mcp and GET /sse: opens an SSE connection,
// emits the retry directive, a priming event, and a connection event, then
// replays anything after Last-Event-ID before settling into an idle
// keep-alive loop until the client disconnects.
func (s *SSE) handleStream(c echo.Context) error {
	req := c.Request()
	w := c.Response()

	if !s.validateOrigin(req.Header.Get("Origin")) {
		metrics.RecordRateLimitHit("origin", req.URL.Path)
		middleware.WriteForbiddenOrigin(w)
		return nil
	}

	flusher, ok := http.ResponseWriter(w).(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	sessionID, err := s.ensureSession(req.Context(), req.Header.Get(mcpSessionHeader))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session allocation failed")
	}

	// Resuming a stream means continuing the SAME (session, streamID) the
	// client was previously reading, so the replay the Last-Event-ID asks
	// for actually has retained history to serve from. Minting a fresh
	// streamID here would hand the client a brand-new, empty buffer and
	// make replay vacuous. Only fall back to a new stream when no prior
	// buffer for that stream survives (evicted or never existed).
	var streamID string
	var buf *streamBuffer
	var replay []sseEvent
	if s.cfg.Resumable {
		if lastEventID := req.Header.Get("Last-Event-ID"); lastEventID != "" {
			if parsed, ok := parseSSEEventID(lastEventID); ok && parsed.sessionID == sessionID {
				if oldBuf, ok := s.lookupBuffer(sessionID, parsed.streamID); ok {
					if events, found := oldBuf.replayAfter(parsed.sequence); found {
						streamID = parsed.streamID
						buf = oldBuf
						replay = events
					}
				}
			}
		}
	}
	if buf == nil {
		streamID = uuid.NewString()
		buf = s.bufferFor(sessionID, streamID)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(mcpSessionHeader, sessionID)
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "retry: %d\n", s.cfg.RetryMs)
	priming := buf.append("", "", sessionID, streamID)
	fmt.Fprintf(w, "id: %s\ndata: \n\n", priming.id)
	flusher.Flush()

	connEvent := buf.append("connection", "", sessionID, streamID)
	connData := fmt.Sprintf(
		`{"type":"connection","status":"connected","sessionId":%q,"streamId":%q,"transport":"sse","resumable":%t}`,
		sessionID, streamID, s.cfg.Resumable,
	)
	fmt.Fprintf(w, "event: connection\nid: %s\ndata: %s\n\n", connEvent.id, connData)
	flusher.Flush()

	if replay != nil {
		for _, ev := range replay {
			writeEvent(w, ev)
		}
		flusher.Flush()
	}

	sub := buf.subscribe()
	defer buf.unsubscribe(sub)

	ticker := time.NewTicker(sseKeepAliveInterval)
	defer ticker.Stop()
	ctx := req.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sub:
			writeEvent(w, ev)
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev sseEvent) {
	if ev.name != "" {
		fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", ev.name, ev.id, ev.data)
		return
	}
	fmt.Fprintf(w, "id: %s\ndata: %s\n\n", ev.id, ev.data)
}

func (s *SSE) bufferFor(sessionID, streamID string) *streamBuffer {
	key := sessionID + ":" + streamID
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[key]
	if !ok {
		b = &streamBuffer{}
		s.buffers[key] = b
	}
	return b
}

// lookupBuffer returns the existing buffer for (sessionID, streamID) without
// creating one, so callers can tell "prior stream still retained" from
// "prior stream evicted or never existed".
func (s *SSE) lookupBuffer(sessionID, streamID string) (*streamBuffer, bool) {
	key := sessionID + ":" + streamID
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[key]
	return b, ok
}

// ensureSession preserves a client-supplied session ID that the store
// doesn't yet know about by creating it under that exact ID, rather than
// silently replacing it with a fresh one — the behavior the Rust
// original's ensure_session implements.
func (s *SSE) ensureSession(ctx context.Context, clientSessionID string) (string, error) {
	if s.cfg.Sessions == nil {
		if clientSessionID != "" {
			return clientSessionID, nil
		}
		return uuid.NewString(), nil
	}

	if clientSessionID != "" {
		if _, err := s.cfg.Sessions.Validate(ctx, clientSessionID, true); err == nil {
			return clientSessionID, nil
		}
		if _, err := s.cfg.Sessions.CreateWithID(ctx, clientSessionID, "", s.cfg.SessionTTL); err == nil {
			return clientSessionID, nil
		}
	}

	sess, err := s.cfg.Sessions.Create(ctx, "", s.cfg.SessionTTL, "", "")
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

func (s *SSE) validateOrigin(origin string) bool {
	if !s.cfg.EnforceOriginValidation {
		return true
	}
	return middleware.OriginAllowed(origin, s.cfg.AllowedOrigins)
}

func (s *SSE) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *SSE) HealthCheck(ctx context.Context) error {
	if s.srv == nil {
		return http.ErrServerClosed
	}
	return nil
}

// Broadcast pushes msg to every open stream's ring buffer as a "message"
// event; this is the one transport capable of server push, since the
// others have no standing connection to write to outside of a request's
// own response.
func (s *SSE) Broadcast(ctx context.Context, msg *protocol.Request) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, buf := range s.buffers {
		parts := strings.SplitN(key, ":", 2)
		if len(parts) != 2 {
			continue
		}
		buf.append("message", string(data), parts[0], parts[1])
	}
	return nil
}
