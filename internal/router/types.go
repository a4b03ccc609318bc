package router

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rickgao/storetwin/internal/codec"
)

// Config holds configuration for the Event Router.
type Config struct {
	MailboxSize  int // Initial mailbox capacity. Default: 256
	MailboxLimit int // Max queued jobs, 0 = unbounded. Default: 65536

	// OnError observes decode errors and listener failures. It runs on the
	// dispatching goroutine and must not call Dispatch.
	OnError ErrorHandler
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		MailboxSize:  256,
		MailboxLimit: 65536,
	}
}

// Listener handles one envelope. A returned error or a panic is reported as
// a *ListenerError and does not stop the remaining listeners.
type Listener func(ctx context.Context, env codec.Envelope) error

// ErrorHandler is called with a *codec.DecodeError or a *ListenerError.
// For envelope decode errors env carries only Source and ReceivedAt.
type ErrorHandler func(env codec.Envelope, err error)

// Subscription identifies one registration. The zero value is not
// registered and can be passed to Unsubscribe safely.
type Subscription struct {
	id      uint64
	msgType string
}

// Type returns the message type the subscription listens to.
func (s Subscription) Type() string { return s.msgType }

// ID returns the registration id, or 0 for the zero Subscription.
func (s Subscription) ID() uint64 { return s.id }

// ListenerError reports a listener that returned an error or panicked.
type ListenerError struct {
	Type           string
	SubscriptionID uint64
	Panicked       bool
	Err            error
}

func (e *ListenerError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("listener %d for %q panicked: %v", e.SubscriptionID, e.Type, e.Err)
	}
	return fmt.Sprintf("listener %d for %q: %v", e.SubscriptionID, e.Type, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

// Stats contains runtime statistics.
type Stats struct {
	FramesReceived   int64
	FramesRouted     int64
	FramesDropped    int64 // Valid frames with no listener
	DecodeErrors     int64
	ListenerFailures int64
	Subscriptions    int
	Mailbox          QueueStats
}

// registration is one listener entry. active is cleared on Unsubscribe so a
// pass that already snapshotted it skips the call.
type registration struct {
	id       uint64
	listener Listener
	active   atomic.Bool
}

// job is one unit of mailbox work: either a frame to dispatch or a function
// to run on the processing goroutine.
type job struct {
	frame codec.Frame
	fn    func()
}
