// Package demo wires a dispatcher and a fleet of courier agents into a
// runtime. The dispatcher hands parcels out round-robin; couriers carry each
// parcel once their traffic sensor reports a clear road and report back.
package demo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/agentropic/internal/agent"
	"github.com/p-blackswan/agentropic/internal/bdi"
	"github.com/p-blackswan/agentropic/internal/belief"
	"github.com/p-blackswan/agentropic/internal/goal"
	"github.com/p-blackswan/agentropic/internal/message"
	"github.com/p-blackswan/agentropic/internal/planner"
	"github.com/p-blackswan/agentropic/internal/runtime"
	"github.com/p-blackswan/agentropic/internal/sensor"
)

// DispatcherID is the fixed id of the dispatcher agent.
const DispatcherID message.AgentID = "dispatcher"

const (
	deliverPrefix = "deliver:"
	donePrefix    = "delivered:"
	shiftOver     = "shift_over"
)

// Config sizes the scenario.
type Config struct {
	Couriers   int
	Deliveries int

	// JamEvery makes every JamEvery-th traffic reading report a jammed road.
	// Zero keeps roads clear.
	JamEvery int

	// DeliveryTimeout bounds each delivery intention. Zero means no limit.
	DeliveryTimeout time.Duration
}

// Apply overlays agents declared in a runtime config file. Worker entries
// add couriers (their counts replace Couriers); a coordinator entry may set
// the "deliveries" and "jam_every" settings.
func (c Config) Apply(agents []runtime.AgentSettings) (Config, error) {
	workers := 0
	for _, a := range agents {
		switch a.Role {
		case agent.RoleWorker:
			workers += a.Count
		case agent.RoleCoordinator:
			for key, dst := range map[string]*int{"deliveries": &c.Deliveries, "jam_every": &c.JamEvery} {
				raw, ok := a.Settings[key]
				if !ok {
					continue
				}
				n, err := strconv.Atoi(raw)
				if err != nil || n < 0 {
					return Config{}, fmt.Errorf("demo: agent %s: invalid %s %q", a.ID, key, raw)
				}
				*dst = n
			}
		}
	}
	if workers > 0 {
		c.Couriers = workers
	}
	return c, nil
}

// Scenario is a spawned demo.
type Scenario struct {
	Dispatcher *bdi.Agent
	Couriers   []*bdi.Agent
}

// Delivered returns how many parcels the dispatcher has seen delivered. Call
// it only after the runtime has stopped.
func (s *Scenario) Delivered() int {
	return len(s.Dispatcher.Engine().Beliefs().Match("delivered"))
}

// Spawn builds the scenario's agents and spawns them into rt.
func Spawn(rt *runtime.Runtime, cfg Config, logger zerolog.Logger) (*Scenario, error) {
	if cfg.Couriers < 1 {
		return nil, fmt.Errorf("demo: need at least one courier, got %d", cfg.Couriers)
	}
	logger = logger.With().Str("component", "demo").Logger()

	ids := make([]message.AgentID, cfg.Couriers)
	for i := range ids {
		ids[i] = message.AgentID(fmt.Sprintf("courier-%d", i+1))
	}

	dispatcher, err := newDispatcher(rt, ids, cfg.Deliveries, logger)
	if err != nil {
		return nil, err
	}
	s := &Scenario{Dispatcher: dispatcher}
	if _, err := rt.Spawn(s.Dispatcher); err != nil {
		return nil, err
	}

	for _, id := range ids {
		c, err := newCourier(rt, id, cfg, logger)
		if err != nil {
			return nil, err
		}
		reg := sensor.NewRegistry(1, logger)
		if err := reg.Register(trafficSensor(id, cfg.JamEvery)); err != nil {
			return nil, err
		}
		if _, err := rt.Spawn(c, runtime.WithSensors(reg)); err != nil {
			return nil, err
		}
		s.Couriers = append(s.Couriers, c)
	}

	logger.Info().
		Int("couriers", cfg.Couriers).
		Int("deliveries", cfg.Deliveries).
		Msg("demo scenario spawned")
	return s, nil
}

func parcelID(n int) string { return fmt.Sprintf("parcel-%03d", n) }

func newDispatcher(rt *runtime.Runtime, couriers []message.AgentID, deliveries int, logger zerolog.Logger) (*bdi.Agent, error) {
	identity, err := agent.NewIdentity(DispatcherID, "dispatcher", agent.RoleCoordinator)
	if err != nil {
		return nil, err
	}
	var next atomic.Uint64
	lib := planner.NewLibrary(
		planner.Rule{
			Name:    "assign parcel",
			Trigger: "dispatch",
			Build: func(g goal.Goal, _ belief.View) []planner.Step {
				parcel, _ := g.Payload.(string)
				to := couriers[int(next.Add(1)-1)%len(couriers)]
				return []planner.Step{
					planner.Tell(to, message.Request, []byte(deliverPrefix+parcel)),
					planner.AssertBelief("assigned", parcel, to.String()),
				}
			},
		},
		planner.Rule{
			Name:    "close shift",
			Trigger: "close_shift",
			Steps: []planner.Step{
				planner.Do("broadcast shift over", func(env planner.Env) (planner.Outcome, error) {
					if err := env.Broadcast(couriers, message.Inform, []byte(shiftOver)); err != nil {
						return planner.Fail, err
					}
					return planner.Continue, nil
				}),
			},
		},
	)

	var goals []goal.Goal
	allDelivered := make([]belief.Condition, 0, deliveries)
	for i := 1; i <= deliveries; i++ {
		p := parcelID(i)
		goals = append(goals, goal.New("dispatch", 1, goal.WithID("dispatch-"+p), goal.WithPayload(p)))
		allDelivered = append(allDelivered, belief.Holds("delivered", p))
	}
	goals = append(goals, goal.New("close_shift", 0,
		goal.WithID("close-shift"),
		goal.WithPrecondition(belief.All(allDelivered...)),
	))

	engine := bdi.NewEngine(lib, logger)
	return bdi.NewAgent(engine,
		bdi.WithIdentity(identity),
		bdi.WithGoals(goals...),
		bdi.WithInterpreter(bdi.InterpreterFunc(func(msg message.Message, _ belief.View) bdi.Interpretation {
			if parcel, ok := strings.CutPrefix(msg.Text(), donePrefix); ok && msg.Performative() == message.Inform {
				return bdi.Interpretation{Percepts: []belief.Percept{belief.Assert("delivered", parcel)}}
			}
			return bdi.Interpretation{}
		})),
		bdi.WithCycleHook(func(ctx agent.Context, rep bdi.Report) {
			if engine.Desires().Len() == 0 {
				ctx.Logger().Info().Int("delivered", len(engine.Beliefs().Match("delivered"))).Msg("all parcels delivered")
				_ = rt.Despawn(ctx.Self())
			}
		}),
	), nil
}

func newCourier(rt *runtime.Runtime, id message.AgentID, cfg Config, logger zerolog.Logger) (*bdi.Agent, error) {
	identity, err := agent.NewIdentity(id, "", agent.RoleWorker)
	if err != nil {
		return nil, err
	}
	lib := planner.NewLibrary(planner.Rule{
		Name:    "carry parcel",
		Trigger: "deliver",
		Build: func(g goal.Goal, _ belief.View) []planner.Step {
			parcel, _ := g.Payload.(string)
			return []planner.Step{
				planner.AssertBelief("carrying", parcel),
				planner.Await("wait for clear road", belief.Holds("road", "clear")),
				planner.RetractBelief("carrying", parcel),
				planner.Tell(DispatcherID, message.Inform, []byte(donePrefix+parcel)),
			}
		},
	})

	engine := bdi.NewEngine(lib, logger)
	return bdi.NewAgent(engine,
		bdi.WithIdentity(identity),
		bdi.WithInterpreter(bdi.InterpreterFunc(func(msg message.Message, _ belief.View) bdi.Interpretation {
			switch {
			case msg.Performative() == message.Request && strings.HasPrefix(msg.Text(), deliverPrefix):
				parcel := strings.TrimPrefix(msg.Text(), deliverPrefix)
				opts := []goal.Option{goal.WithID("deliver-" + parcel), goal.WithPayload(parcel)}
				if cfg.DeliveryTimeout > 0 {
					opts = append(opts, goal.WithTimeout(cfg.DeliveryTimeout))
				}
				return bdi.Interpretation{Goals: []goal.Goal{goal.New("deliver", 1, opts...)}}
			case msg.Performative() == message.Inform && msg.Text() == shiftOver:
				return bdi.Interpretation{Percepts: []belief.Percept{belief.Assert(shiftOver)}}
			}
			return bdi.Interpretation{}
		})),
		bdi.WithCycleHook(func(ctx agent.Context, _ bdi.Report) {
			if engine.Beliefs().Holds(shiftOver) && engine.Desires().Len() == 0 {
				_ = rt.Despawn(ctx.Self())
			}
		}),
		bdi.WithShutdown(func(ctx agent.Context, e *bdi.Engine) error {
			ctx.Logger().Info().Int("delivered", e.Achieved()).Msg("courier off shift")
			return nil
		}),
	), nil
}

// trafficSensor alternates the road between clear and jammed.
func trafficSensor(id message.AgentID, jamEvery int) sensor.Sensor {
	var reads atomic.Uint64
	return sensor.Func{
		Name: "traffic-" + id.String(),
		Fn: func(ctx context.Context) ([]sensor.Reading, error) {
			n := reads.Add(1)
			now := time.Now()
			jammed := jamEvery > 0 && n%uint64(jamEvery) == 0
			road := func(state string, retract bool) sensor.Reading {
				return sensor.Reading{Predicate: "road", Args: []any{state}, Retract: retract, ObservedAt: now}
			}
			if jammed {
				return []sensor.Reading{road("clear", true), road("jammed", false)}, nil
			}
			return []sensor.Reading{road("jammed", true), road("clear", false)}, nil
		},
	}
}
