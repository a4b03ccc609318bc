package hub

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/storetwin/internal/model"
)

// Errors
var (
	ErrClientNotFound = errors.New("client not found")
	ErrPeerClosed     = errors.New("peer closed")
	ErrIDExhausted    = errors.New("could not allocate unique client id")
)

// maxIDAttempts bounds client id generation when ids collide.
const maxIDAttempts = 5

// Peer is one connected client as seen by the registry.
type Peer interface {
	Send(data []byte) error
	Close(code int, reason string) error
}

// Registry tracks connected peers keyed by client id, with a reverse index
// for disconnect lookups.
type Registry struct {
	logger *slog.Logger
	newID  func() string

	mu      sync.RWMutex
	clients map[string]Peer
	ids     map[Peer]string
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		newID:   uuid.NewString,
		clients: make(map[string]Peer),
		ids:     make(map[Peer]string),
	}
}

// Connect registers p under a fresh client id and sends it a welcome
// envelope. The welcome is queued before p becomes visible to Broadcast, so
// it is always the first frame p receives. Registering the same peer twice
// returns its existing id.
func (r *Registry) Connect(p Peer) (string, error) {
	r.mu.Lock()
	if id, ok := r.ids[p]; ok {
		r.mu.Unlock()
		r.logger.Warn("peer already registered", "client_id", id)
		return id, nil
	}

	id, collisions := r.allocateID()
	if id == "" {
		r.mu.Unlock()
		return "", ErrIDExhausted
	}

	welcome, err := model.EncodeWelcome(id)
	if err != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("encode welcome: %w", err)
	}
	// Peer.Send only queues, so it is safe under the lock.
	sendErr := p.Send(welcome)

	r.clients[id] = p
	r.ids[p] = id
	total := len(r.clients)
	r.mu.Unlock()

	if collisions > 0 {
		r.logger.Warn("client id collision, retried", "client_id", id, "collisions", collisions)
	}
	if sendErr != nil {
		r.logger.Warn("failed to send welcome", "client_id", id, "error", sendErr)
	}
	r.logger.Info("client connected", "client_id", id, "clients", total)
	return id, nil
}

// allocateID returns an unused id, or "" after maxIDAttempts collisions.
// Caller holds r.mu.
func (r *Registry) allocateID() (id string, collisions int) {
	for collisions < maxIDAttempts {
		id = r.newID()
		if _, taken := r.clients[id]; !taken {
			return id, collisions
		}
		collisions++
	}
	return "", collisions
}

// Disconnect removes p. It returns the removed id, or false when p was not
// registered.
func (r *Registry) Disconnect(p Peer) (string, bool) {
	r.mu.Lock()
	id, ok := r.ids[p]
	if ok {
		delete(r.ids, p)
		delete(r.clients, id)
	}
	total := len(r.clients)
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("disconnect for unknown peer")
		return "", false
	}
	r.logger.Info("client disconnected", "client_id", id, "clients", total)
	return id, true
}

// Broadcast sends data to every registered peer and returns how many sends
// succeeded. A failing peer does not stop delivery to the rest.
func (r *Registry) Broadcast(data []byte) int {
	return r.BroadcastExcept(data, "")
}

// BroadcastExcept is Broadcast skipping one client id.
func (r *Registry) BroadcastExcept(data []byte, skipID string) int {
	r.mu.RLock()
	targets := make(map[string]Peer, len(r.clients))
	for id, p := range r.clients {
		if id != skipID {
			targets[id] = p
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for id, p := range targets {
		if err := p.Send(data); err != nil {
			r.logger.Warn("broadcast send failed", "client_id", id, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// SendTo sends data to one client.
func (r *Registry) SendTo(id string, data []byte) error {
	p, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	return p.Send(data)
}

// Lookup returns the peer registered under id.
func (r *Registry) Lookup(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.clients[id]
	return p, ok
}

// IDs returns the registered client ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes and removes every peer.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.Lock()
	peers := r.clients
	r.clients = make(map[string]Peer)
	r.ids = make(map[Peer]string)
	r.mu.Unlock()

	for id, p := range peers {
		if err := p.Close(code, reason); err != nil {
			r.logger.Debug("close peer", "client_id", id, "error", err)
		}
	}
}
