package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/storetwin/internal/codec"
)

// Router classifies frames by their type discriminator and fans them out to
// the listeners registered for that type.
//
// All listener calls for one Router are serialized by the dispatch lock,
// whether frames arrive through Run or through direct Dispatch calls.
// Subscribe and Unsubscribe are safe from any goroutine, including from
// inside a listener. Listeners must not call Dispatch; use Enqueue instead.
// Functions queued with Post run on the Run goroutine and may call Dispatch.
type Router struct {
	cfg    Config
	logger *slog.Logger

	subsMu sync.RWMutex
	subs   map[string][]*registration
	nextID uint64

	dispatchMu sync.Mutex
	mailbox    *Queue[job]

	// Stats
	mu               sync.RWMutex
	received         int64
	routed           int64
	dropped          int64
	decodeErrors     int64
	listenerFailures int64
}

// New creates an Event Router.
func New(cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = DefaultConfig().MailboxSize
	}

	return &Router{
		cfg:     cfg,
		logger:  logger,
		subs:    make(map[string][]*registration),
		mailbox: NewQueue[job](cfg.MailboxSize, cfg.MailboxLimit),
	}
}

// Subscribe registers listener for msgType. Listeners for the same type run
// in subscription order. A listener added while a frame of msgType is being
// dispatched first runs for the next frame.
func (r *Router) Subscribe(msgType string, listener Listener) Subscription {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	r.nextID++
	reg := &registration{id: r.nextID, listener: listener}
	reg.active.Store(true)

	// Copy on write so in-flight snapshots stay untouched.
	current := r.subs[msgType]
	next := make([]*registration, len(current), len(current)+1)
	copy(next, current)
	r.subs[msgType] = append(next, reg)

	r.logger.Debug("listener subscribed", "type", msgType, "subscription", reg.id)
	return Subscription{id: reg.id, msgType: msgType}
}

// Unsubscribe removes a registration. Removing an unknown or already
// removed subscription is a no-op.
func (r *Router) Unsubscribe(sub Subscription) {
	if sub.id == 0 {
		return
	}

	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	current := r.subs[sub.msgType]
	for i, reg := range current {
		if reg.id != sub.id {
			continue
		}
		reg.active.Store(false)

		if len(current) == 1 {
			delete(r.subs, sub.msgType)
		} else {
			next := make([]*registration, 0, len(current)-1)
			next = append(next, current[:i]...)
			next = append(next, current[i+1:]...)
			r.subs[sub.msgType] = next
		}
		r.logger.Debug("listener unsubscribed", "type", sub.msgType, "subscription", sub.id)
		return
	}
}

// Listeners returns the number of listeners registered for msgType.
func (r *Router) Listeners(msgType string) int {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	return len(r.subs[msgType])
}

// Dispatch decodes f and invokes every listener registered for its type.
// The returned error is the envelope decode error, for reporting only;
// listener failures are handled internally. Frames without listeners are
// dropped silently.
func (r *Router) Dispatch(ctx context.Context, f codec.Frame) error {
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()

	return r.dispatch(ctx, f)
}

func (r *Router) dispatch(ctx context.Context, f codec.Frame) error {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	env, err := codec.DecodeFrame(f)
	if err != nil {
		r.mu.Lock()
		r.decodeErrors++
		r.mu.Unlock()

		r.logger.Warn("failed to decode frame", "source", f.Source, "error", err)
		r.report(codec.Envelope{Source: f.Source, ReceivedAt: f.ReceivedAt}, err)
		return err
	}

	regs := r.snapshot(env.Type)
	if len(regs) == 0 {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()

		r.logger.Debug("no listeners for message type", "type", env.Type)
		return nil
	}

	for _, reg := range regs {
		if !reg.active.Load() {
			continue
		}
		if err := r.invoke(ctx, reg, env); err != nil {
			r.fail(env, reg, err)
		}
	}

	r.mu.Lock()
	r.routed++
	r.mu.Unlock()
	return nil
}

// snapshot returns the registration slice for msgType. Slices are never
// mutated in place, so the caller may iterate without the lock.
func (r *Router) snapshot(msgType string) []*registration {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	return r.subs[msgType]
}

// invoke calls one listener, converting a panic into a *ListenerError.
func (r *Router) invoke(ctx context.Context, reg *registration, env codec.Envelope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ListenerError{
				Type:           env.Type,
				SubscriptionID: reg.id,
				Panicked:       true,
				Err:            fmt.Errorf("%v", p),
			}
		}
	}()
	return reg.listener(ctx, env)
}

// fail records a listener error. Stage-two decode errors are counted as
// decode errors; everything else is a listener failure.
func (r *Router) fail(env codec.Envelope, reg *registration, err error) {
	var decErr *codec.DecodeError
	if errors.As(err, &decErr) {
		r.mu.Lock()
		r.decodeErrors++
		r.mu.Unlock()

		r.logger.Warn("failed to decode payload",
			"type", env.Type,
			"source", env.Source,
			"error", err,
		)
		r.report(env, decErr)
		return
	}

	var lerr *ListenerError
	if !errors.As(err, &lerr) {
		lerr = &ListenerError{Type: env.Type, SubscriptionID: reg.id, Err: err}
	}

	r.mu.Lock()
	r.listenerFailures++
	r.mu.Unlock()

	r.logger.Warn("listener failed",
		"type", env.Type,
		"subscription", reg.id,
		"panicked", lerr.Panicked,
		"error", lerr.Err,
	)
	r.report(env, lerr)
}

func (r *Router) report(env codec.Envelope, err error) {
	if r.cfg.OnError == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("error handler panicked", "panic", p)
		}
	}()
	r.cfg.OnError(env, err)
}

// -----------------------------------------------------------------------------
// Mailbox
// -----------------------------------------------------------------------------

// Enqueue queues f for dispatch by Run. It is safe from any goroutine and
// returns false when the router is closed or the mailbox is full.
func (r *Router) Enqueue(f codec.Frame) bool {
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = time.Now()
	}
	if !r.mailbox.Push(job{frame: f}) {
		r.logger.Warn("mailbox rejected frame", "source", f.Source)
		return false
	}
	return true
}

// Post queues fn to run on the Run goroutine, in order with queued frames.
// It returns false when the router is closed or the mailbox is full.
func (r *Router) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	return r.mailbox.Push(job{fn: fn})
}

// Run drains the mailbox until ctx is done or Close is called. Jobs queued
// before shutdown are still processed. Run must be called at most once.
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("event router started",
		"mailbox_size", r.cfg.MailboxSize,
		"mailbox_limit", r.cfg.MailboxLimit,
	)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.mailbox.Close()
		case <-stop:
		}
	}()

	for {
		j, ok := r.mailbox.Pop()
		if !ok {
			r.logger.Info("event router stopped")
			return ctx.Err()
		}
		r.run(ctx, j)
	}
}

// run executes one mailbox job. Posted functions run without the dispatch
// lock so they may call Dispatch themselves.
func (r *Router) run(ctx context.Context, j job) {
	if j.fn != nil {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("posted function panicked", "panic", p)
			}
		}()
		j.fn()
		return
	}
	_ = r.Dispatch(ctx, j.frame)
}

// Close stops accepting new jobs. Run returns after the queued jobs finish.
func (r *Router) Close() {
	r.mailbox.Close()
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.subsMu.RLock()
	subs := 0
	for _, regs := range r.subs {
		subs += len(regs)
	}
	r.subsMu.RUnlock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		FramesReceived:   r.received,
		FramesRouted:     r.routed,
		FramesDropped:    r.dropped,
		DecodeErrors:     r.decodeErrors,
		ListenerFailures: r.listenerFailures,
		Subscriptions:    subs,
		Mailbox:          r.mailbox.Stats(),
	}
}
