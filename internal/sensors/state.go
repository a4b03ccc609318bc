package sensors

import (
	"sort"
	"sync"

	"github.com/rickgao/storetwin/internal/model"
)

// Change describes one stored reading replacing another.
type Change struct {
	Previous model.SensorReading // Zero when the sensor was new
	Current  model.SensorReading
	New      bool
}

// sensorState holds the thread-safe reading cache.
type sensorState struct {
	mu       sync.RWMutex
	readings map[string]model.SensorReading
}

func newState() *sensorState {
	return &sensorState{readings: make(map[string]model.SensorReading)}
}

// get returns a reading by sensor id (read-locked).
func (s *sensorState) get(id string) (model.SensorReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.readings[id]
	return r, ok
}

// all returns a copy of every reading sorted by sensor id (read-locked).
func (s *sensorState) all() []model.SensorReading {
	s.mu.RLock()
	result := make([]model.SensorReading, 0, len(s.readings))
	for _, r := range s.readings {
		result = append(result, r)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].SensorID < result[j].SensorID })
	return result
}

// upsert stores r and reports what it replaced (write-locked).
func (s *sensorState) upsert(r model.SensorReading) Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.readings[r.SensorID]
	s.readings[r.SensorID] = r
	return Change{Previous: prev, Current: r, New: !ok}
}

func (s *sensorState) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}
