package broadcast

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

var ErrSinkClosed = errors.New("sink closed")

// Sink is one subscriber connection. Send and Ping are only called from the
// subscriber's writer goroutine; Close may be called from anywhere and more than once.
type Sink interface {
	Send(data []byte) error
	Ping() error
	// Close ends the connection. A non-empty reason is sent to the client first when the transport allows it.
	Close(reason string) error
	Transport() string
}

// SSESink writes Server-Sent Events frames to an HTTP response.
// Once closed it never touches the ResponseWriter again, so the handler can return safely.
type SSESink struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	clock  clockwork.Clock
	closed bool
}

func NewSSESink(w http.ResponseWriter, clock clockwork.Clock) *SSESink {
	return &SSESink{w: w, rc: http.NewResponseController(w), clock: clock}
}

func (s *SSESink) Send(data []byte) error {
	return s.write("data: %s\n\n", data)
}

func (s *SSESink) Ping() error {
	return s.write(": ping\n\n")
}

func (s *SSESink) Close(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if reason != "" {
		_ = s.writeLocked("event: close\ndata: %s\n\n", reason)
	}
	s.closed = true
	return nil
}

func (s *SSESink) Transport() string { return TransportSSE }

func (s *SSESink) write(format string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	return s.writeLocked(format, args...)
}

func (s *SSESink) writeLocked(format string, args ...any) error {
	// Not every ResponseWriter supports deadlines (httptest.ResponseRecorder does not).
	_ = s.rc.SetWriteDeadline(s.clock.Now().Add(writeDeadline))

	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		return err
	}
	return s.rc.Flush()
}

// WebSocketSink writes text frames to a gorilla connection.
type WebSocketSink struct {
	conn      *websocket.Conn
	clock     clockwork.Clock
	closeOnce sync.Once
}

// NewWebSocketSink takes over the connection's keepalive: every pong extends the read deadline.
// The caller must keep reading from the connection so control frames are processed.
func NewWebSocketSink(conn *websocket.Conn, clock clockwork.Clock) *WebSocketSink {
	s := &WebSocketSink{conn: conn, clock: clock}
	s.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})
	return s
}

func (s *WebSocketSink) Send(data []byte) error {
	_ = s.conn.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *WebSocketSink) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, s.clock.Now().Add(writeDeadline))
}

// Close sends a normal-closure frame carrying reason (when given) and closes the connection.
// WriteControl and Close are safe to call concurrently with the writer goroutine.
func (s *WebSocketSink) Close(reason string) error {
	var err error
	s.closeOnce.Do(func() {
		if reason != "" {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, s.clock.Now().Add(writeDeadline))
		}
		err = s.conn.Close()
	})
	return err
}

func (s *WebSocketSink) Transport() string { return TransportWebSocket }

func (s *WebSocketSink) extendReadDeadline() {
	_ = s.conn.SetReadDeadline(s.clock.Now().Add(pongDeadline))
}

var (
	_ Sink = (*SSESink)(nil)
	_ Sink = (*WebSocketSink)(nil)
)

// pongDeadline must exceed pingInterval so one missed pong is tolerated.
const pongDeadline = 2 * pingInterval

