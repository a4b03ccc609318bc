package hub

import (
	"context"
	"errors"

	"github.com/rickgao/storetwin/internal/codec"
	"github.com/rickgao/storetwin/internal/connection"
	"github.com/rickgao/storetwin/internal/model"
	"github.com/rickgao/storetwin/internal/router"
)

// subscribe registers the server-side handlers on the hub's router.
func (h *Hub) subscribe() {
	h.subs = append(h.subs,
		router.On(h.router, model.TypeAuth, model.DecodeAuth, h.handleAuth),
		router.On(h.router, model.TypeSensorRequest, model.DecodeSensorRequest, h.handleSensorRequest),
	)

	for _, msgType := range h.cfg.ForwardTypes {
		if msgType == model.TypeSensorUpdate {
			h.subs = append(h.subs, router.On(h.router, msgType, model.DecodeSensorUpdate,
				func(_ context.Context, env codec.Envelope, _ model.SensorReading) error {
					h.forward(env)
					return nil
				}))
			continue
		}
		h.subs = append(h.subs, router.On(h.router, msgType, model.DecodeDomainEvent,
			func(_ context.Context, env codec.Envelope, _ model.DomainEvent) error {
				h.forward(env)
				return nil
			}))
	}
}

// handleAuth verifies a client's token. A client that fails is closed with
// a policy violation.
func (h *Hub) handleAuth(_ context.Context, env codec.Envelope, a model.Auth) error {
	p, ok := h.registry.Lookup(env.Source)
	if !ok {
		h.logger.Debug("auth from unregistered source", "source", env.Source)
		return nil
	}

	subject := "anonymous"
	if h.verifier != nil {
		claims, err := h.verifier.Verify(a.Token)
		if err != nil {
			h.logger.Warn("client auth failed", "client_id", env.Source, "error", err)
			p.Close(connection.ClosePolicyViolation, "invalid token")
			h.disconnect(p)
			return nil
		}
		subject = claims.Subject
	}

	h.mu.Lock()
	h.authed[env.Source] = subject
	h.mu.Unlock()

	h.logger.Info("client authenticated", "client_id", env.Source, "subject", subject)
	return nil
}

// handleSensorRequest replies to the requester with the latest reading of
// the requested sensor. Unknown sensors get no reply.
func (h *Hub) handleSensorRequest(_ context.Context, env codec.Envelope, req model.SensorRequest) error {
	if h.sensors == nil {
		return nil
	}
	reading, ok := h.sensors.Get(req.Sensor)
	if !ok {
		h.logger.Debug("sensor_request for unknown sensor", "client_id", env.Source, "sensor", req.Sensor)
		return nil
	}

	data, err := model.EncodeSensorUpdate(reading)
	if err != nil {
		return err
	}
	if err := h.registry.SendTo(env.Source, data); err != nil {
		if errors.Is(err, ErrClientNotFound) {
			h.logger.Debug("sensor_request source is not a client", "source", env.Source)
			return nil
		}
		return err
	}
	return nil
}

// forward rebroadcasts a validated frame to every client except its sender.
func (h *Hub) forward(env codec.Envelope) {
	n := h.registry.BroadcastExcept(env.Raw, env.Source)
	h.forwarded.Add(1)
	h.logger.Debug("forwarded event", "type", env.Type, "source", env.Source, "delivered", n)
}
