package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/storetwin/internal/auth"
	"github.com/rickgao/storetwin/internal/codec"
	"github.com/rickgao/storetwin/internal/connection"
	"github.com/rickgao/storetwin/internal/model"
	"github.com/rickgao/storetwin/internal/router"
)

// Config configures the Hub.
type Config struct {
	WriteTimeout   time.Duration // Time allowed to write a frame to a peer
	PongTimeout    time.Duration // Time allowed between inbound frames or pongs
	PingInterval   time.Duration // Must be less than PongTimeout
	SendBufferSize int           // Per-peer outbound queue
	ReadLimit      int64         // Max inbound frame size in bytes

	RateLimit float64 // Inbound frames/sec per peer, 0 = unlimited
	RateBurst int

	RequireAuth  bool     // Drop non-auth frames from unauthenticated peers
	ForwardTypes []string // Types rebroadcast to every other client
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	pongTimeout := 60 * time.Second
	return Config{
		WriteTimeout:   10 * time.Second,
		PongTimeout:    pongTimeout,
		PingInterval:   (pongTimeout * 9) / 10,
		SendBufferSize: 256,
		ReadLimit:      64 * 1024,
		RateLimit:      10,
		RateBurst:      20,
		ForwardTypes: []string{
			model.TypeSensorUpdate,
			model.TypeSecurityEvent,
			model.TypeInventoryEvent,
			model.TypeCustomerEvent,
			model.TypeLayoutEvent,
			model.TypeLayoutWarning,
		},
	}
}

// TokenVerifier validates auth tokens. *auth.Credentials implements it.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// SensorLookup answers sensor_request messages. *sensors.Store implements it.
type SensorLookup interface {
	Get(sensorID string) (model.SensorReading, bool)
}

// SnapshotFunc builds the initial_data frame sent to each new client right
// after its welcome. *status.Broadcaster's InitialData is one.
type SnapshotFunc func() ([]byte, error)

// Stats contains runtime statistics.
type Stats struct {
	Clients       int
	Authenticated int
	Forwarded     int64
	Throttled     int64
	Unauthorized  int64
}

// Hub is the multi-client server: it accepts WebSocket peers, registers
// them, feeds their frames into a router and answers on that router.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	registry *Registry
	router   *router.Router
	verifier TokenVerifier
	sensors  SensorLookup
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	subs   []router.Subscription

	mu       sync.RWMutex
	authed   map[string]string // client id -> token subject
	snapshot SnapshotFunc

	forwarded    atomic.Int64
	throttled    atomic.Int64
	unauthorized atomic.Int64
}

// New creates a Hub and subscribes its handlers on r. verifier and sensors
// may be nil: without a verifier every auth envelope is accepted, without a
// sensor lookup sensor_request is ignored.
func New(cfg Config, r *router.Router, verifier TokenVerifier, sensors SensorLookup, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaults.SendBufferSize
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaults.RateBurst
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:      cfg,
		logger:   logger,
		registry: NewRegistry(logger),
		router:   r,
		verifier: verifier,
		sensors:  sensors,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		authed: make(map[string]string),
	}
	h.subscribe()
	return h
}

// Registry returns the client registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// SetSnapshot installs the initial_data builder. nil disables the snapshot.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

// ServeWS upgrades an HTTP request and registers the new peer.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if h.cfg.ReadLimit > 0 {
		conn.SetReadLimit(h.cfg.ReadLimit)
	}

	c := newClient(h, connection.NewWebSocketTransport(conn, h.cfg.PongTimeout))
	id, err := h.registry.Connect(c)
	if err != nil {
		h.logger.Error("failed to register client", "remote", r.RemoteAddr, "error", err)
		c.Close(connection.CloseGoingAway, "server full")
		return
	}
	c.id = id
	c.logger = h.logger.With("client_id", id)
	h.sendSnapshot(c)

	go c.writePump()
	go c.readPump()
}

// Broadcast sends data to every connected client.
func (h *Hub) Broadcast(data []byte) int {
	return h.registry.Broadcast(data)
}

// SendTo sends data to one client.
func (h *Hub) SendTo(clientID string, data []byte) error {
	return h.registry.SendTo(clientID, data)
}

// Stats returns current statistics.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	authed := len(h.authed)
	h.mu.RUnlock()

	return Stats{
		Clients:       h.registry.Len(),
		Authenticated: authed,
		Forwarded:     h.forwarded.Load(),
		Throttled:     h.throttled.Load(),
		Unauthorized:  h.unauthorized.Load(),
	}
}

// Shutdown unsubscribes the handlers and closes every client with
// "going away".
func (h *Hub) Shutdown() {
	h.cancel()
	for _, sub := range h.subs {
		h.router.Unsubscribe(sub)
	}
	h.registry.CloseAll(connection.CloseGoingAway, "server shutting down")

	h.mu.Lock()
	h.authed = make(map[string]string)
	h.mu.Unlock()
	h.logger.Info("hub shut down")
}

// sendSnapshot queues the initial_data frame for a newly registered client.
func (h *Hub) sendSnapshot(c *client) {
	h.mu.RLock()
	fn := h.snapshot
	h.mu.RUnlock()
	if fn == nil {
		return
	}

	data, err := fn()
	if err != nil {
		c.logger.Warn("failed to build initial data", "error", err)
		return
	}
	if err := c.Send(data); err != nil {
		c.logger.Warn("failed to send initial data", "error", err)
	}
}

// deliver hands a client frame to the router's processing goroutine. The
// auth gate runs there too, so it observes every auth handled before it.
func (h *Hub) deliver(clientID string, f codec.Frame) {
	ok := h.router.Post(func() {
		if !h.admit(clientID, f) {
			return
		}
		_ = h.router.Dispatch(h.ctx, f)
	})
	if !ok {
		h.logger.Warn("router rejected client frame", "client_id", clientID)
	}
}

// admit applies RequireAuth: until a peer authenticates only auth frames
// pass.
func (h *Hub) admit(clientID string, f codec.Frame) bool {
	if !h.cfg.RequireAuth || h.isAuthenticated(clientID) {
		return true
	}
	env, err := codec.Decode(f.Data)
	if err != nil {
		// Let the router count and report it.
		return true
	}
	if env.Type == model.TypeAuth {
		return true
	}
	h.unauthorized.Add(1)
	h.logger.Debug("dropping frame from unauthenticated client", "client_id", clientID, "type", env.Type)
	return false
}

func (h *Hub) isAuthenticated(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.authed[clientID]
	return ok
}

// disconnect unregisters a peer and closes it.
func (h *Hub) disconnect(p Peer) {
	id, ok := h.registry.Disconnect(p)
	if ok {
		h.mu.Lock()
		delete(h.authed, id)
		h.mu.Unlock()
	}
	p.Close(connection.CloseNormalClosure, "")
}
