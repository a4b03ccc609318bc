package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one established, framed duplex connection.
// ReadMessage is called from a single goroutine; the write methods may be
// called concurrently with it.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte, deadline time.Time) error
	Ping(deadline time.Time) error
	WriteClose(code int, reason string, deadline time.Time) error
	Close() error
}

// Dialer opens Transports.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Transport, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	PongTimeout      time.Duration
}

// Dial opens a WebSocket connection.
func (d WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocketTransport(conn, d.PongTimeout), nil
}

// wsTransport adapts a *websocket.Conn. gorilla allows one concurrent
// writer, so data writes are serialized; control frames are already safe.
type wsTransport struct {
	conn        *websocket.Conn
	pongTimeout time.Duration
	writeMu     sync.Mutex
}

// NewWebSocketTransport wraps an established connection. With a positive
// pongTimeout the read deadline is pushed forward on every frame, ping and
// pong, so a silent peer surfaces as a read error.
func NewWebSocketTransport(conn *websocket.Conn, pongTimeout time.Duration) Transport {
	t := &wsTransport{conn: conn, pongTimeout: pongTimeout}

	t.extendDeadline()
	conn.SetPongHandler(func(string) error {
		t.extendDeadline()
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		t.extendDeadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	return t
}

func (t *wsTransport) extendDeadline() {
	if t.pongTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.pongTimeout))
	}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: ce.Code, Reason: ce.Text}
		}
		return nil, err
	}
	t.extendDeadline()
	return data, nil
}

func (t *wsTransport) WriteMessage(data []byte, deadline time.Time) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping(deadline time.Time) error {
	return t.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (t *wsTransport) WriteClose(code int, reason string, deadline time.Time) error {
	return t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
