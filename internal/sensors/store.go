package sensors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/storetwin/internal/codec"
	"github.com/rickgao/storetwin/internal/model"
	"github.com/rickgao/storetwin/internal/router"
)

// Sender sends an encoded frame. *connection.Session and the hub's peers
// implement it.
type Sender interface {
	Send(data []byte) error
}

// Store is the latest-reading cache for every sensor.
type Store struct {
	logger *slog.Logger
	state  *sensorState

	mu        sync.RWMutex
	observers []func(Change)

	router *router.Router
	sub    router.Subscription
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger: logger,
		state:  newState(),
	}
}

// Attach subscribes the store to sensor_update on r. Attaching again moves
// the subscription to the new router.
func (s *Store) Attach(r *router.Router) {
	s.Detach()

	sub := router.On(r, model.TypeSensorUpdate, model.DecodeSensorUpdate,
		func(_ context.Context, _ codec.Envelope, reading model.SensorReading) error {
			s.Update(reading)
			return nil
		})

	s.mu.Lock()
	s.router = r
	s.sub = sub
	s.mu.Unlock()
}

// Detach removes the store's subscription, if any.
func (s *Store) Detach() {
	s.mu.Lock()
	r, sub := s.router, s.sub
	s.router = nil
	s.sub = router.Subscription{}
	s.mu.Unlock()

	if r != nil {
		r.Unsubscribe(sub)
	}
}

// OnUpdate registers fn to run after every stored reading. Observers run on
// the goroutine that delivered the reading, in registration order.
func (s *Store) OnUpdate(fn func(Change)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Update stores reading and notifies observers.
func (s *Store) Update(reading model.SensorReading) Change {
	change := s.state.upsert(reading)

	if change.New {
		s.logger.Info("new sensor", "sensor", reading.SensorID, "kind", reading.Kind, "location", reading.Location)
	} else {
		s.logger.Debug("sensor updated", "sensor", reading.SensorID, "value", reading.Value)
	}

	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(change)
	}
	return change
}

// Get returns the latest reading for a sensor.
func (s *Store) Get(sensorID string) (model.SensorReading, bool) {
	return s.state.get(sensorID)
}

// All returns every latest reading, sorted by sensor id.
func (s *Store) All() []model.SensorReading {
	return s.state.all()
}

// Len returns the number of known sensors.
func (s *Store) Len() int {
	return s.state.len()
}

// Request asks the other end of sender for the current value of a sensor.
// The reply arrives as an ordinary sensor_update.
func Request(sender Sender, sensorID string) error {
	if sensorID == "" {
		return fmt.Errorf("request sensor: %w", codec.MissingField(model.TypeSensorRequest, "sensor"))
	}
	data, err := model.EncodeSensorRequest(sensorID)
	if err != nil {
		return fmt.Errorf("encode sensor_request: %w", err)
	}
	if err := sender.Send(data); err != nil {
		return fmt.Errorf("send sensor_request: %w", err)
	}
	return nil
}
