package hub

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/storetwin/internal/codec"
	"github.com/rickgao/storetwin/internal/connection"
)

// client is a server-side WebSocket peer with its own read and write pumps.
type client struct {
	id        string
	hub       *Hub
	transport connection.Transport
	send      chan []byte
	limiter   *rate.Limiter
	logger    *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(h *Hub, t connection.Transport) *client {
	limit := rate.Inf
	if h.cfg.RateLimit > 0 {
		limit = rate.Limit(h.cfg.RateLimit)
	}
	return &client{
		hub:       h,
		transport: t,
		send:      make(chan []byte, h.cfg.SendBufferSize),
		limiter:   rate.NewLimiter(limit, h.cfg.RateBurst),
		logger:    h.logger,
		done:      make(chan struct{}),
	}
}

// Send queues data for the write pump.
func (c *client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrPeerClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return connection.ErrSendBufferFull
	}
}

// Close sends a close frame and tears the connection down. Safe to call more
// than once.
func (c *client) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.transport.WriteClose(code, reason, time.Now().Add(c.hub.cfg.WriteTimeout))
		err = c.transport.Close()
	})
	return err
}

// readPump forwards inbound frames to the hub until the connection fails.
func (c *client) readPump() {
	defer c.hub.disconnect(c)

	for {
		data, err := c.transport.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("client read ended", "client_id", c.id, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.hub.throttled.Add(1)
			c.logger.Warn("client rate limited, dropping frame", "client_id", c.id)
			continue
		}

		c.hub.deliver(c.id, codec.Frame{Data: data, Source: c.id, ReceivedAt: receivedAt})
	}
}

// writePump drains the send queue and pings the peer.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.transport.WriteMessage(data, time.Now().Add(c.hub.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("client write failed", "client_id", c.id, "error", err)
				c.transport.Close()
				return
			}
		case <-ticker.C:
			if err := c.transport.Ping(time.Now().Add(c.hub.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("client ping failed", "client_id", c.id, "error", err)
			}
		}
	}
}
