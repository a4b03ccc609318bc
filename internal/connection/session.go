package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rickgao/storetwin/internal/codec"
	"github.com/rickgao/storetwin/internal/model"
)

// Session is one logical client connection:
// Disconnected -> Connecting -> Connected -> Closing -> Disconnected.
type Session struct {
	cfg      Config
	logger   *slog.Logger
	dialer   Dialer
	exec     Executor
	handlers Handlers

	mu        sync.RWMutex
	state     State
	epoch     uint64 // Bumped on Connect and Close; stale callbacks compare against it
	closed    bool
	transport Transport
	outbound  chan []byte
	cancel    context.CancelFunc
}

// NewSession creates a session. Nothing is dialed until Connect.
func NewSession(cfg Config, handlers Handlers, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaults.SendBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = defaults.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = defaults.ReconnectMaxWait
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = WebSocketDialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			PongTimeout:      cfg.PongTimeout,
		}
	}

	return &Session{
		cfg:      cfg,
		logger:   logger.With("url", cfg.URL),
		dialer:   dialer,
		exec:     cfg.Executor,
		handlers: handlers,
	}
}

// Connect starts connecting in the background and returns immediately.
// OnConnected or OnClosed reports the outcome. ctx bounds the whole
// connection, including reconnect attempts. Calling Connect while already
// connecting or connected is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrAlreadyClosed
	}
	if s.state != StateDisconnected {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateConnecting
	s.epoch++

	go s.run(runCtx, s.epoch)
	return nil
}

// Send queues data for the writer. It fails with ErrNotConnected unless the
// session is connected; frames are never held across a disconnect.
func (s *Session) Send(data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateConnected {
		return ErrNotConnected
	}

	select {
	case s.outbound <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendMessage encodes a typed message and sends it.
func (s *Session) SendMessage(msgType string, fields map[string]any) error {
	data, err := codec.Encode(msgType, fields)
	if err != nil {
		return err
	}
	return s.Send(data)
}

// Close closes the session. It is safe to call in any state and more than
// once; a closed session cannot be reconnected. Callbacks not yet started
// are skipped. Called from the Executor's goroutine, no callback runs after
// Close returns; from any other goroutine a callback that already passed
// its liveness check may still finish.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.epoch++
	s.state = StateClosing
	t := s.transport
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t != nil {
		t.WriteClose(CloseNormalClosure, "", time.Now().Add(time.Second))
		t.Close()
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.transport = nil
	s.outbound = nil
	s.mu.Unlock()

	s.logger.Debug("session closed")
	return nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsConnected reports whether the session is connected.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// run dials, serves and optionally redials until ctx is done or the session
// is closed.
func (s *Session) run(ctx context.Context, epoch uint64) {
	for {
		t, err := s.dial(ctx)
		if err != nil {
			if !s.live(epoch) {
				return
			}
			s.logger.Warn("connect failed", "error", err)
			s.disconnected(epoch, CloseEvent{Code: CloseAbnormalClosure, Reason: err.Error(), Err: err})
			return
		}

		ev, ok := s.serve(ctx, epoch, t)
		if !ok {
			return
		}

		s.logger.Info("connection lost", "code", ev.Code, "reason", ev.Reason, "clean", ev.Clean)
		s.disconnected(epoch, ev)

		if !s.cfg.Reconnect || ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectBaseWait):
		}
		if !s.transition(epoch, StateDisconnected, StateConnecting) {
			return
		}
	}
}

// dial opens a transport, retrying with exponential backoff when
// reconnection is enabled.
func (s *Session) dial(ctx context.Context) (Transport, error) {
	if !s.cfg.Reconnect {
		return s.dialOnce(ctx)
	}

	var t Transport
	operation := func() error {
		tr, err := s.dialOnce(ctx)
		if err != nil {
			return err
		}
		t = tr
		return nil
	}

	backoffStrategy := backoff.WithContext(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(s.cfg.ReconnectBaseWait),
			backoff.WithMaxInterval(s.cfg.ReconnectMaxWait),
			backoff.WithMaxElapsedTime(s.cfg.ReconnectMaxTime),
		),
		ctx,
	)

	err := backoff.RetryNotify(operation, backoffStrategy, func(err error, d time.Duration) {
		s.logger.Warn("dial failed, retrying", "error", err, "wait", d)
	})
	return t, err
}

func (s *Session) dialOnce(ctx context.Context) (Transport, error) {
	s.logger.Debug("dialing")
	return s.dialer.Dial(ctx, s.cfg.URL, s.cfg.Header)
}

// serve runs one established transport until it fails. ok is false when
// the session was closed or superseded, in which case nothing is reported.
func (s *Session) serve(ctx context.Context, epoch uint64, t Transport) (ev CloseEvent, ok bool) {
	out := make(chan []byte, s.cfg.SendBufferSize)

	if s.cfg.Token != "" {
		auth, err := model.EncodeAuth(s.cfg.Token)
		if err != nil {
			s.logger.Error("failed to encode auth", "error", err)
		} else {
			out <- auth
		}
	}

	s.mu.Lock()
	if s.closed || s.epoch != epoch {
		s.mu.Unlock()
		t.Close()
		return CloseEvent{}, false
	}
	s.transport = t
	s.outbound = out
	s.state = StateConnected
	s.mu.Unlock()

	s.logger.Info("connected", "auth", s.cfg.Token != "")
	s.post(epoch, s.handlers.OnConnected)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writeLoop(t, out, done)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			t.WriteClose(CloseGoingAway, "", time.Now().Add(time.Second))
			t.Close()
		case <-done:
		}
	}()

	ev = s.readLoop(epoch, t)
	close(done)
	t.Close()
	wg.Wait()

	s.mu.Lock()
	if s.transport == t {
		s.transport = nil
		s.outbound = nil
	}
	stale := s.closed || s.epoch != epoch
	if !stale {
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	return ev, !stale
}

// readLoop delivers inbound frames until the transport fails.
func (s *Session) readLoop(epoch uint64, t Transport) CloseEvent {
	for {
		data, err := t.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			return closeEventFrom(err)
		}

		if s.handlers.OnMessage == nil {
			continue
		}
		f := codec.Frame{Data: data, Source: s.cfg.URL, ReceivedAt: receivedAt}
		s.post(epoch, func() { s.handlers.OnMessage(f) })
	}
}

// writeLoop drains the outbound queue and sends pings.
func (s *Session) writeLoop(t Transport, out <-chan []byte, done <-chan struct{}) {
	var ping <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case data := <-out:
			if err := t.WriteMessage(data, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.logger.Warn("write failed", "error", err)
				t.Close()
				return
			}
		case <-ping:
			if err := t.Ping(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

// disconnected moves a live session to Disconnected and reports ev.
func (s *Session) disconnected(epoch uint64, ev CloseEvent) {
	s.mu.Lock()
	if s.closed || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.mu.Unlock()

	if h := s.handlers.OnClosed; h != nil {
		s.post(epoch, func() { h(ev) })
	}
}

// transition moves from one state to another if the session is still live
// and in the expected state.
func (s *Session) transition(epoch uint64, from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.epoch != epoch || s.state != from {
		return false
	}
	s.state = to
	return true
}

// live reports whether epoch is still the session's current epoch.
func (s *Session) live(epoch uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && s.epoch == epoch
}

// post runs fn through the executor, skipping it if the session was closed
// or reconnected by the time it starts. The check and fn are not atomic
// with respect to Close on another goroutine.
func (s *Session) post(epoch uint64, fn func()) {
	if fn == nil {
		return
	}
	guarded := func() {
		if s.live(epoch) {
			fn()
		}
	}
	if s.exec == nil {
		guarded()
		return
	}
	if !s.exec.Post(guarded) {
		s.logger.Warn("executor rejected callback")
	}
}
