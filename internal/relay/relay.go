package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/storetwin/internal/codec"
)

// SourcePrefix prefixes the channel name in a relayed frame's source.
const SourcePrefix = "redis:"

// ErrNoChannels is returned by Run when nothing is configured to subscribe.
var ErrNoChannels = errors.New("no redis channels configured")

// errSubscriptionClosed ends one subscription attempt so it is retried.
var errSubscriptionClosed = errors.New("redis subscription closed")

// Sink accepts frames for dispatch. *router.Router implements it.
type Sink interface {
	Enqueue(f codec.Frame) bool
}

// Config holds relay configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channels []string

	DialTimeout  time.Duration
	RetryInitial time.Duration // First resubscribe wait (default: 100ms)
	RetryMax     time.Duration // Max resubscribe wait (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		RetryInitial: 100 * time.Millisecond,
		RetryMax:     5 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Received      int64
	Rejected      int64
	Subscriptions int64
}

// Relay subscribes to Redis channels and enqueues every message on a Sink.
type Relay struct {
	cfg    Config
	client *redis.Client
	sink   Sink
	logger *slog.Logger

	received      atomic.Int64
	rejected      atomic.Int64
	subscriptions atomic.Int64
}

// New creates a relay with its own Redis client. No connection is made
// until Ping or Run.
func New(cfg Config, sink Sink, logger *slog.Logger) *Relay {
	defaults := DefaultConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	return NewWithClient(cfg, client, sink, logger)
}

// NewWithClient creates a relay over an existing client.
func NewWithClient(cfg Config, client *redis.Client, sink Sink, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = defaults.RetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = defaults.RetryMax
	}
	return &Relay{
		cfg:    cfg,
		client: client,
		sink:   sink,
		logger: logger.With("component", "relay"),
	}
}

// Ping checks that Redis is reachable.
func (r *Relay) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// Run subscribes and relays until ctx is done. It returns ctx.Err() on
// shutdown.
func (r *Relay) Run(ctx context.Context) error {
	if len(r.cfg.Channels) == 0 {
		return ErrNoChannels
	}

	operation := func() error {
		err := r.subscribe(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	backoffStrategy := backoff.WithContext(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(r.cfg.RetryInitial),
			backoff.WithMaxInterval(r.cfg.RetryMax),
			backoff.WithMaxElapsedTime(0),
		),
		ctx,
	)

	err := backoff.RetryNotify(operation, backoffStrategy, func(err error, d time.Duration) {
		r.logger.Warn("redis subscription failed, retrying", "error", err, "wait", d)
	})
	if ctx.Err() != nil {
		r.logger.Info("relay stopped")
		return ctx.Err()
	}
	return err
}

// subscribe runs one subscription until it ends.
func (r *Relay) subscribe(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.cfg.Channels...)
	defer pubsub.Close()

	// Confirm the subscription before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %v: %w", r.cfg.Channels, err)
	}
	r.subscriptions.Add(1)
	r.logger.Info("relay subscribed", "channels", r.cfg.Channels)

	msgChan := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgChan:
			if !ok {
				return errSubscriptionClosed
			}
			r.relay(msg)
		}
	}
}

// relay enqueues one message.
func (r *Relay) relay(msg *redis.Message) {
	r.received.Add(1)
	if !r.sink.Enqueue(Frame(msg, time.Now())) {
		r.rejected.Add(1)
		r.logger.Warn("sink rejected relayed frame", "channel", msg.Channel)
	}
}

// Frame converts a pub/sub message into a router frame.
func Frame(msg *redis.Message, receivedAt time.Time) codec.Frame {
	return codec.Frame{
		Data:       []byte(msg.Payload),
		Source:     SourcePrefix + msg.Channel,
		ReceivedAt: receivedAt,
	}
}

// Stats returns current statistics.
func (r *Relay) Stats() Stats {
	return Stats{
		Received:      r.received.Load(),
		Rejected:      r.rejected.Load(),
		Subscriptions: r.subscriptions.Load(),
	}
}

// Close closes the Redis client.
func (r *Relay) Close() error {
	return r.client.Close()
}
