package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/storetwin/internal/model"
	"github.com/rickgao/storetwin/internal/router"
)

// Target receives encoded status frames. *hub.Hub implements it.
type Target interface {
	Broadcast(data []byte) int
}

// ClientCounter reports connected clients. *hub.Registry implements it.
type ClientCounter interface {
	Len() int
}

// SensorSource provides the latest readings. *sensors.Store implements it.
type SensorSource interface {
	All() []model.SensorReading
}

// StatsSource provides router counters. *router.Router implements it.
type StatsSource interface {
	Stats() router.Stats
}

// Sources are the inputs of a snapshot. Nil sources are left out.
type Sources struct {
	Clients ClientCounter
	Sensors SensorSource
	Router  StatsSource
}

// Config holds broadcaster configuration.
type Config struct {
	Interval time.Duration // Broadcast interval (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Second}
}

// Snapshot is the data member of a status_update envelope.
type Snapshot struct {
	Clients int                   `json:"clients"`
	Sensors []model.SensorReading `json:"sensors"`
	Router  *RouterStatus         `json:"router,omitempty"`
}

// RouterStatus is the subset of router.Stats published to clients.
type RouterStatus struct {
	Received         int64 `json:"received"`
	Routed           int64 `json:"routed"`
	Dropped          int64 `json:"dropped"`
	DecodeErrors     int64 `json:"decode_errors"`
	ListenerFailures int64 `json:"listener_failures"`
	MailboxDepth     int   `json:"mailbox_depth"`
}

// Broadcaster periodically pushes status_update to a Target and builds the
// initial_data snapshot for new clients.
type Broadcaster struct {
	cfg     Config
	target  Target
	sources Sources
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Broadcaster.
func New(cfg Config, target Target, sources Sources, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Broadcaster{
		cfg:     cfg,
		target:  target,
		sources: sources,
		logger:  logger,
		now:     time.Now,
	}
}

// Start begins the broadcast loop.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.run()

	b.logger.Info("status broadcaster started", "interval", b.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the broadcaster.
func (b *Broadcaster) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("status broadcaster stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broadcaster) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.BroadcastOnce(); err != nil {
				b.logger.Warn("failed to broadcast status", "error", err)
			}
		}
	}
}

// Snapshot collects the current status.
func (b *Broadcaster) Snapshot() Snapshot {
	snap := Snapshot{Sensors: []model.SensorReading{}}
	if b.sources.Clients != nil {
		snap.Clients = b.sources.Clients.Len()
	}
	if b.sources.Sensors != nil {
		snap.Sensors = b.sources.Sensors.All()
	}
	if b.sources.Router != nil {
		st := b.sources.Router.Stats()
		snap.Router = &RouterStatus{
			Received:         st.FramesReceived,
			Routed:           st.FramesRouted,
			Dropped:          st.FramesDropped,
			DecodeErrors:     st.DecodeErrors,
			ListenerFailures: st.ListenerFailures,
			MailboxDepth:     st.Mailbox.Depth,
		}
	}
	return snap
}

// InitialData encodes the current snapshot as an initial_data frame for a
// newly connected client.
func (b *Broadcaster) InitialData() ([]byte, error) {
	data, err := model.EncodeInitialData(b.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("encode initial_data: %w", err)
	}
	return data, nil
}

// BroadcastOnce sends one status_update and returns how many clients got it.
func (b *Broadcaster) BroadcastOnce() (int, error) {
	data, err := model.EncodeStatusUpdate(b.now(), b.Snapshot())
	if err != nil {
		return 0, fmt.Errorf("encode status_update: %w", err)
	}

	n := b.target.Broadcast(data)
	b.logger.Debug("status broadcast", "clients", n, "bytes", len(data))
	return n, nil
}
