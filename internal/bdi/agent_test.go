package bdi_test

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/agentropic/internal/agent"
	"github.com/p-blackswan/agentropic/internal/bdi"
	"github.com/p-blackswan/agentropic/internal/belief"
	"github.com/p-blackswan/agentropic/internal/goal"
	"github.com/p-blackswan/agentropic/internal/mailbox"
	"github.com/p-blackswan/agentropic/internal/message"
	"github.com/p-blackswan/agentropic/internal/planner"
	"github.com/p-blackswan/agentropic/internal/sensor"
)

type captureRouter struct {
	mu   sync.Mutex
	sent []message.Message
}

func (c *captureRouter) Send(m message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	return nil
}

func hostFor(t *testing.T, a agent.Agent, sensors *sensor.Registry) (*agent.Host, *captureRouter) {
	t.Helper()
	r := &captureRouter{}
	h := agent.NewHost(agent.HostConfig{
		ID:      "courier",
		Agent:   a,
		Mailbox: mailbox.New(mailbox.Unbounded, mailbox.RejectNew),
		Router:  r,
		Sensors: sensors,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, h.Admit())
	return h, r
}

func TestAgent_MessageBecomesBeliefWithinOneTick(t *testing.T) {
	lib := planner.NewLibrary(planner.Rule{Trigger: "collect", Steps: []planner.Step{
		planner.Await("await package", belief.Exists("package_ready")),
		planner.AssertBelief("has_package", true),
		planner.Tell("dispatcher", message.Inform, []byte("collected")),
	}})
	engine := bdi.NewEngine(lib, zerolog.Nop())
	a := bdi.NewAgent(engine,
		bdi.WithName("courier-1"),
		bdi.WithGoals(goal.New("collect", 1, goal.WithID("collect"))),
		bdi.WithInitialBeliefs(belief.New("has_package", false)),
	)
	h, router := hostFor(t, a, nil)
	assert.Equal(t, "courier-1", h.Name())

	h.Tick(context.Background())
	assert.True(t, engine.Beliefs().Holds("has_package", false))

	_, _, err := h.Mailbox().Enqueue(message.NewText("dispatcher", h.ID(), message.Inform, "package_ready"))
	require.NoError(t, err)
	require.Equal(t, 1, h.Mailbox().Len())

	h.Tick(context.Background())
	assert.Equal(t, 0, h.Mailbox().Len())
	assert.True(t, engine.Beliefs().Holds("package_ready", "dispatcher"))
	assert.Equal(t, planner.Continue, a.LastReport().Outcome)

	h.Tick(context.Background())
	h.Tick(context.Background())
	require.Len(t, router.sent, 1)
	assert.Equal(t, "collected", router.sent[0].Text())
	assert.Equal(t, 1, engine.Achieved())

	p := a.Progress()
	assert.Equal(t, "idle", p.Stage)
	assert.Equal(t, 1, p.Done)
	assert.Equal(t, 1, p.Total)
}

func TestAgent_InterpreterAdoptsGoals(t *testing.T) {
	lib := planner.NewLibrary(planner.Rule{Trigger: "deliver", Steps: []planner.Step{planner.Achieve()}})
	engine := bdi.NewEngine(lib, zerolog.Nop())
	interp := bdi.InterpreterFunc(func(msg message.Message, _ belief.View) bdi.Interpretation {
		if msg.Performative() != message.Request {
			return bdi.Interpretation{}
		}
		return bdi.Interpretation{Goals: []goal.Goal{goal.New("deliver", 1, goal.WithID(msg.Text()))}}
	})
	var reports []bdi.Report
	a := bdi.NewAgent(engine, bdi.WithInterpreter(interp), bdi.WithCycleHook(func(_ agent.Context, r bdi.Report) {
		reports = append(reports, r)
	}))
	h, _ := hostFor(t, a, nil)
	h.Tick(context.Background())

	for _, id := range []string{"p1", "p1", "p2"} {
		_, _, err := h.Mailbox().Enqueue(message.NewText("dispatcher", h.ID(), message.Request, id))
		require.NoError(t, err)
	}
	h.Tick(context.Background())
	assert.Equal(t, 1, engine.Achieved(), "duplicate goal ids are not adopted twice")
	assert.Equal(t, 1, engine.Desires().Len())
	require.Len(t, reports, 1)
	assert.Equal(t, []string{"p1"}, reports[0].Achieved)
}

func TestAgent_SensorsFeedBeliefRevision(t *testing.T) {
	reg := sensor.NewRegistry(0, zerolog.Nop())
	require.NoError(t, reg.Register(sensor.Func{Name: "gps", Fn: func(context.Context) ([]sensor.Reading, error) {
		return []sensor.Reading{{Predicate: "at", Args: []any{"depot"}}}, nil
	}}))
	engine := bdi.NewEngine(planner.NewLibrary(), zerolog.Nop())
	h, _ := hostFor(t, bdi.NewAgent(engine), reg)

	h.Tick(context.Background())
	h.Tick(context.Background())
	assert.True(t, engine.Beliefs().Holds("at", "depot"))
	assert.Equal(t, agent.StateRunning, h.State())
}

func TestAgent_IdentityAndShutdownHook(t *testing.T) {
	called := false
	a := bdi.NewAgent(bdi.NewEngine(planner.NewLibrary(), zerolog.Nop()),
		bdi.WithID("dispatcher"),
		bdi.WithShutdown(func(agent.Context, *bdi.Engine) error {
			called = true
			return nil
		}),
	)
	assert.Equal(t, message.AgentID("dispatcher"), a.AgentID())

	h, _ := hostFor(t, a, nil)
	h.Tick(context.Background())
	h.Stop()
	h.Tick(context.Background())
	assert.True(t, called)
	assert.Equal(t, agent.StateTerminated, h.State())
}

func TestInformAsBelief(t *testing.T) {
	in := bdi.InformAsBelief.Interpret(message.NewText("a", "b", message.Inform, "door_open"), belief.NewBase())
	require.Len(t, in.Percepts, 1)
	assert.Equal(t, "door_open", in.Percepts[0].Belief.Predicate)
	assert.Equal(t, []any{"a"}, in.Percepts[0].Belief.Args)

	in = bdi.InformAsBelief.Interpret(message.NewText("a", "b", message.Request, "door_open"), belief.NewBase())
	assert.Empty(t, in.Percepts)
}
