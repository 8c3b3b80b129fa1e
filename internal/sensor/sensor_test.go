package sensor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/agentropic/internal/belief"
	perrors "github.com/p-blackswan/agentropic/internal/errors"
	"github.com/p-blackswan/agentropic/internal/sensor"
)

type stubSensor struct {
	id       string
	readings []sensor.Reading
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (s *stubSensor) ID() string { return s.id }

func (s *stubSensor) Read(ctx context.Context) ([]sensor.Reading, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := append([]sensor.Reading(nil), s.readings...)
	return out, s.err
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := sensor.NewRegistry(0, zerolog.Nop())
	require.NoError(t, r.Register(&stubSensor{id: "gps"}))
	err := r.Register(&stubSensor{id: "gps"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Unregister(t *testing.T) {
	r := sensor.NewRegistry(0, zerolog.Nop())
	require.NoError(t, r.Register(&stubSensor{id: "a"}))
	require.NoError(t, r.Register(&stubSensor{id: "b"}))
	r.Unregister("a")
	r.Unregister("missing")
	require.Len(t, r.List(), 1)
	assert.Equal(t, "b", r.List()[0].ID())
}

func TestRegistry_ReadAll_Empty(t *testing.T) {
	r := sensor.NewRegistry(0, zerolog.Nop())
	rs, err := r.ReadAll(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, rs)
}

func TestRegistry_ReadAll_OrderedBySensor(t *testing.T) {
	r := sensor.NewRegistry(2, zerolog.Nop())
	require.NoError(t, r.Register(&stubSensor{
		id:       "slow",
		delay:    20 * time.Millisecond,
		readings: []sensor.Reading{{Predicate: "at", Args: []any{"depot"}}},
	}))
	require.NoError(t, r.Register(&stubSensor{
		id:       "fast",
		readings: []sensor.Reading{{Predicate: "fuel", Args: []any{80}}},
	}))

	rs, err := r.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "slow", rs[0].SensorID)
	assert.Equal(t, "fast", rs[1].SensorID)
	assert.False(t, rs[0].ObservedAt.IsZero())
}

func TestRegistry_ReadAll_PartialFailure(t *testing.T) {
	r := sensor.NewRegistry(0, zerolog.Nop())
	boom := errors.New("camera offline")
	require.NoError(t, r.Register(&stubSensor{id: "camera", err: boom}))
	require.NoError(t, r.Register(&stubSensor{
		id:       "gps",
		readings: []sensor.Reading{{Predicate: "at", Args: []any{"dock"}}},
	}))

	rs, err := r.ReadAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrSensorReadFailed)
	assert.ErrorIs(t, err, boom)

	var se *perrors.SensorError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "camera", se.SensorID)

	require.Len(t, rs, 1)
	assert.Equal(t, "gps", rs[0].SensorID)
}

func TestReading_Percept(t *testing.T) {
	c := 0.9
	p := sensor.Reading{Predicate: "at", Args: []any{"dock"}, Certainty: &c}.Percept()
	assert.Equal(t, belief.OpAssert, p.Op)
	assert.Equal(t, "at", p.Belief.Predicate)
	require.NotNil(t, p.Belief.Certainty)
	assert.Equal(t, 0.9, *p.Belief.Certainty)

	p = sensor.Reading{Predicate: "at", Args: []any{"dock"}, Retract: true}.Percept()
	assert.Equal(t, belief.OpRetract, p.Op)

	bb := belief.NewBase()
	bb.Revise(sensor.Percepts([]sensor.Reading{
		{Predicate: "at", Args: []any{"dock"}},
		{Predicate: "fuel", Args: []any{10}},
	})...)
	assert.True(t, bb.Holds("at", "dock"))
	assert.True(t, bb.Holds("fuel", 10))
}

func TestFunc(t *testing.T) {
	s := sensor.Func{Name: "clock", Fn: func(context.Context) ([]sensor.Reading, error) {
		return []sensor.Reading{{Predicate: "tick"}}, nil
	}}
	assert.Equal(t, "clock", s.ID())
	rs, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, rs, 1)
}
