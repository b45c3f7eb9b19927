package handler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/streamware/wsbridge/internal/backend"
	"github.com/streamware/wsbridge/internal/sse"
)

type sessionState int

const (
	stateConnecting sessionState = iota
	stateStreaming
	stateClosing
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateStreaming:
		return "streaming"
	case stateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// SessionConfig bounds a session's I/O. There is deliberately no overall
// deadline: a healthy backend stream may legitimately run for hours.
type SessionConfig struct {
	FirstFrameTimeout  time.Duration
	BackendIdleTimeout time.Duration
	WriteTimeout       time.Duration
	MaxFrameSize       int64
}

var errBackendStalled = errors.New("backend stalled: no chunk within the idle timeout")

// errorFrame mirrors the error payload the bridge sends before closing on a
// backend failure, so clients can tell a backend 5xx from a dead socket.
type errorFrame struct {
	Error   bool   `json:"error"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

// Session owns one client WebSocket and at most one backend stream. The
// client sends a single JSON request; every SSE event decoded from the
// backend's response becomes one text frame carrying the event's data
// verbatim. All state is session-local, sessions never interact.
type Session struct {
	conn    *websocket.Conn
	backend *backend.Client
	cfg     SessionConfig
	traceId string
	state   sessionState
	log     *log.Entry
}

func NewSession(conn *websocket.Conn, client *backend.Client, cfg SessionConfig, traceId string) *Session {
	return &Session{
		conn:    conn,
		backend: client,
		cfg:     cfg,
		traceId: traceId,
		state:   stateConnecting,
		log:     log.WithField("prefix", "Session").WithField("trace_id", traceId),
	}
}

// Run drives the session from Connecting to Closed and only returns once
// both sides are released. It never panics the listener: the recover
// middleware above it catches what slips through.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.close()

	activeSessionsMetric.Inc()
	defer activeSessionsMetric.Dec()
	sessionsTotalMetric.Inc()

	// Connecting: exactly one request frame per connection lifetime.
	s.conn.SetReadLimit(s.cfg.MaxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.FirstFrameTimeout))
	msgType, payload, err := s.conn.ReadMessage()
	if err != nil {
		s.log.Infof("client went away before sending a request: %v", err)
		return
	}
	if msgType != websocket.TextMessage || !sonic.Valid(payload) {
		sessionErrorsMetric.WithLabelValues("client_protocol").Inc()
		s.log.Info("first frame is not a JSON text frame")
		s.closeWith(websocket.ClosePolicyViolation, "request must be a single JSON text frame")
		return
	}

	s.transition(stateStreaming)
	body, err := s.backend.Stream(ctx, payload)
	if err != nil {
		sessionErrorsMetric.WithLabelValues("backend_connect").Inc()
		s.log.Errorf("backend connect failed: %v", err)
		var statusErr *backend.StatusError
		if errors.As(err, &statusErr) {
			s.writeErrorFrame(statusErr.Code, statusErr.Body)
		}
		s.closeWith(websocket.CloseInternalServerErr, "backend unavailable")
		return
	}
	defer body.Close()

	// From here the client is only read to detect disconnects. A client
	// that goes away must tear down the backend request with it.
	go s.watchClient(cancel)

	err = s.pump(ctx, cancel, body)
	switch {
	case err == nil:
		s.closeWith(websocket.CloseNormalClosure, "")
	case errors.Is(err, errBackendStalled):
		sessionErrorsMetric.WithLabelValues("backend_stream").Inc()
		s.log.Error(err)
		s.closeWith(websocket.CloseInternalServerErr, "backend stalled")
	case ctx.Err() != nil:
		// client disconnect cancelled the backend read, normal path
		s.log.Debug("client disconnected, backend request cancelled")
	default:
		sessionErrorsMetric.WithLabelValues("backend_stream").Inc()
		s.log.Errorf("backend stream failed: %v", err)
		s.closeWith(websocket.CloseInternalServerErr, "backend stream failed")
	}
}

// pump is the Streaming state: read backend chunks, feed the decoder,
// forward completed events in decode order. Exactly one producer and one
// consumer, so ordering holds by construction.
func (s *Session) pump(ctx context.Context, cancel context.CancelFunc, body io.Reader) error {
	// The response body has no deadline knob, so a stalled backend is
	// bounded by cancelling the request context instead.
	var idleFired atomic.Bool
	idle := time.AfterFunc(s.cfg.BackendIdleTimeout, func() {
		idleFired.Store(true)
		cancel()
	})
	defer idle.Stop()

	var dec sse.Decoder
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if err != nil && idleFired.Load() {
			return errBackendStalled
		}
		idle.Reset(s.cfg.BackendIdleTimeout)
		if n > 0 {
			events, derr := dec.Feed(buf[:n])
			if werr := s.forward(events); werr != nil {
				return werr
			}
			if derr != nil {
				return derr
			}
		}
		if err == io.EOF {
			// the backend may end the stream without a final blank line
			events, derr := dec.Flush()
			if werr := s.forward(events); werr != nil {
				return werr
			}
			return derr
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) forward(events []sse.Event) error {
	for _, ev := range events {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, []byte(ev.Data)); err != nil {
			return err
		}
		forwardedEventsMetric.Inc()
	}
	return nil
}

// watchClient blocks on the client socket after the request frame was
// consumed. Any further read result means the client closed, failed, or
// broke the one-request contract; all of them cancel the backend request.
func (s *Session) watchClient(cancel context.CancelFunc) {
	defer cancel()
	_ = s.conn.SetReadDeadline(time.Time{})
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
		// Extra frames are drained and dropped. Re-arming for a second
		// request would need an explicit Connecting reset, which the
		// one-shot contract rules out.
	}
}

func (s *Session) writeErrorFrame(status int, message string) {
	payload, err := sonic.Marshal(errorFrame{Error: true, Status: status, Message: message})
	if err != nil {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_ = s.conn.WriteMessage(websocket.TextMessage, payload)
}

// closeWith sends a deterministic close code so the client never has to
// guess why the stream ended.
func (s *Session) closeWith(code int, reason string) {
	s.transition(stateClosing)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
}

func (s *Session) close() {
	if s.state != stateClosing {
		s.transition(stateClosing)
	}
	_ = s.conn.Close()
	s.transition(stateClosed)
}

func (s *Session) transition(next sessionState) {
	s.log.Debugf("session state %v -> %v", s.state, next)
	s.state = next
}
