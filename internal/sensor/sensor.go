// Package sensor defines the Sensor interface and a Registry that reads a
// set of sensors concurrently. Readings become belief percepts during belief
// revision.
package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/agentropic/internal/belief"
	perrors "github.com/p-blackswan/agentropic/internal/errors"
)

// Reading is one fact observed by a sensor.
type Reading struct {
	SensorID  string
	Predicate string
	Args      []any

	// Certainty is optional; nil means the sensor did not weight the fact.
	Certainty *float64

	// Retract reports that the fact no longer holds.
	Retract bool

	ObservedAt time.Time
}

// Percept converts the reading into a belief revision instruction.
func (r Reading) Percept() belief.Percept {
	b := belief.New(r.Predicate, r.Args...)
	b.Certainty = r.Certainty
	if r.Retract {
		return belief.Percept{Op: belief.OpRetract, Belief: b}
	}
	return belief.Percept{Op: belief.OpAssert, Belief: b}
}

// Percepts converts readings in order.
func Percepts(rs []Reading) []belief.Percept {
	out := make([]belief.Percept, len(rs))
	for i, r := range rs {
		out[i] = r.Percept()
	}
	return out
}

// Sensor is implemented by anything an agent can perceive through.
type Sensor interface {
	// ID returns a stable identifier for this sensor.
	ID() string

	// Read performs one observation. An empty slice means nothing changed.
	Read(ctx context.Context) ([]Reading, error)
}

// Func adapts a function into a Sensor.
type Func struct {
	Name string
	Fn   func(ctx context.Context) ([]Reading, error)
}

func (f Func) ID() string { return f.Name }

func (f Func) Read(ctx context.Context) ([]Reading, error) { return f.Fn(ctx) }

// Registry holds an ordered set of sensors. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sensors []Sensor
	limit   int
	logger  zerolog.Logger
}

// NewRegistry creates an empty Registry. limit bounds concurrent reads; zero
// or less means one goroutine per sensor.
func NewRegistry(limit int, logger zerolog.Logger) *Registry {
	return &Registry{
		limit:  limit,
		logger: logger.With().Str("component", "sensor").Logger(),
	}
}

// Register adds a sensor. Returns an error if the id is already registered.
func (r *Registry) Register(s Sensor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sensors {
		if existing.ID() == s.ID() {
			return fmt.Errorf("sensor: %q already registered", s.ID())
		}
	}
	r.sensors = append(r.sensors, s)
	return nil
}

// Unregister removes a sensor by id.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sensors {
		if s.ID() == id {
			r.sensors = append(r.sensors[:i], r.sensors[i+1:]...)
			return
		}
	}
}

// List returns the sensors in registration order.
func (r *Registry) List() []Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Sensor(nil), r.sensors...)
}

// Count returns the number of registered sensors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sensors)
}

// ReadAll reads every sensor concurrently. Readings are returned grouped by
// sensor in registration order, including those from sensors that succeeded
// when others failed. The first failure is returned as a *SensorError.
func (r *Registry) ReadAll(ctx context.Context) ([]Reading, error) {
	sensors := r.List()
	if len(sensors) == 0 {
		return nil, nil
	}

	results := make([][]Reading, len(sensors))
	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for i, s := range sensors {
		g.Go(func() error {
			rs, err := s.Read(ctx)
			if err != nil {
				r.logger.Warn().Err(err).Str("sensor", s.ID()).Msg("sensor read failed")
				return &perrors.SensorError{SensorID: s.ID(), Err: err}
			}
			now := time.Now().UTC()
			for j := range rs {
				rs[j].SensorID = s.ID()
				if rs[j].ObservedAt.IsZero() {
					rs[j].ObservedAt = now
				}
			}
			results[i] = rs
			return nil
		})
	}
	err := g.Wait()

	var all []Reading
	for _, rs := range results {
		all = append(all, rs...)
	}
	return all, err
}
