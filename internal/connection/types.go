package connection

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rickgao/storetwin/internal/codec"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrSendBufferFull  = errors.New("send buffer full")
	ErrStaleConnection = errors.New("connection stale (no pong)")
)

// Close codes from RFC 6455 section 7.4.1.
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseAbnormalClosure = 1006 // Never sent on the wire
	ClosePolicyViolation = 1008
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CloseError is returned by a Transport when the peer sent a close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket closed: %d %s", e.Code, e.Reason)
}

// CloseEvent describes a transport closure that the session did not
// initiate.
type CloseEvent struct {
	Code   int
	Reason string
	Clean  bool  // Peer sent a normal or going-away close frame
	Err    error // Underlying transport error
}

// closeEventFrom classifies a read error. Anything that is not a close frame
// from the peer is reported as an abnormal closure.
func closeEventFrom(err error) CloseEvent {
	var ce *CloseError
	if errors.As(err, &ce) {
		return CloseEvent{
			Code:   ce.Code,
			Reason: ce.Reason,
			Clean:  ce.Code == CloseNormalClosure || ce.Code == CloseGoingAway,
			Err:    err,
		}
	}
	return CloseEvent{Code: CloseAbnormalClosure, Reason: err.Error(), Err: err}
}

// Executor runs callbacks on the consumer's processing context.
// *router.Router implements it.
type Executor interface {
	Post(fn func()) bool
}

// Handlers are the session callbacks. Any of them may be nil.
type Handlers struct {
	OnConnected func()
	OnMessage   func(codec.Frame)
	OnClosed    func(CloseEvent)
}

// Config configures a Session.
type Config struct {
	URL    string      // WebSocket URL (e.g., ws://localhost:8080/ws)
	Token  string      // Sent as an auth envelope on every connect; empty = none
	Header http.Header // Extra handshake headers

	HandshakeTimeout time.Duration // Dial + upgrade deadline
	WriteTimeout     time.Duration // Write deadline for each frame
	PingInterval     time.Duration // Client ping period
	PongTimeout      time.Duration // Max time without any inbound traffic
	SendBufferSize   int           // Outbound queue length

	Reconnect         bool          // Redial after transport loss
	ReconnectBaseWait time.Duration // First backoff interval
	ReconnectMaxWait  time.Duration // Backoff ceiling
	ReconnectMaxTime  time.Duration // Give up after this long, 0 = never

	Dialer   Dialer   // nil = WebSocketDialer
	Executor Executor // nil = run callbacks on the session goroutine; Close then races in-flight callbacks
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		SendBufferSize:    256,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
	}
}
