package bdi

import (
	"sync"

	"github.com/p-blackswan/agentropic/internal/agent"
	"github.com/p-blackswan/agentropic/internal/belief"
	"github.com/p-blackswan/agentropic/internal/goal"
	"github.com/p-blackswan/agentropic/internal/message"
	"github.com/p-blackswan/agentropic/internal/sensor"
)

// Interpretation is what an incoming message means to the agent.
type Interpretation struct {
	Percepts []belief.Percept
	Goals    []goal.Goal
	Drop     []string // goal ids to abandon
}

// MessageInterpreter turns messages into percepts and goals.
type MessageInterpreter interface {
	Interpret(msg message.Message, beliefs belief.View) Interpretation
}

// InterpreterFunc adapts a function into a MessageInterpreter.
type InterpreterFunc func(msg message.Message, beliefs belief.View) Interpretation

func (f InterpreterFunc) Interpret(msg message.Message, beliefs belief.View) Interpretation {
	return f(msg, beliefs)
}

// InformAsBelief asserts the text of every Inform message as a belief with
// the sender as its only argument. Other performatives are ignored.
var InformAsBelief = InterpreterFunc(func(msg message.Message, _ belief.View) Interpretation {
	if msg.Performative() != message.Inform || msg.Text() == "" {
		return Interpretation{}
	}
	return Interpretation{Percepts: []belief.Percept{belief.Assert(msg.Text(), msg.Sender().String())}}
})

// AgentOption customises a BDI agent.
type AgentOption func(*Agent)

// WithName sets the display name.
func WithName(name string) AgentOption { return func(a *Agent) { a.identity.Name = name } }

// WithID gives the agent a fixed id instead of a generated one.
func WithID(id message.AgentID) AgentOption { return func(a *Agent) { a.identity.ID = id } }

// WithIdentity sets id, name and role together.
func WithIdentity(id agent.Identity) AgentOption { return func(a *Agent) { a.identity = id } }

// WithInterpreter replaces InformAsBelief.
func WithInterpreter(mi MessageInterpreter) AgentOption {
	return func(a *Agent) { a.interpreter = mi }
}

// WithGoals adopts goals during Initialize.
func WithGoals(gs ...goal.Goal) AgentOption {
	return func(a *Agent) { a.initialGoals = append(a.initialGoals, gs...) }
}

// WithInitialBeliefs asserts beliefs during Initialize.
func WithInitialBeliefs(bs ...belief.Belief) AgentOption {
	return func(a *Agent) { a.initialBeliefs = append(a.initialBeliefs, bs...) }
}

// WithShutdown runs fn during Shutdown.
func WithShutdown(fn func(agent.Context, *Engine) error) AgentOption {
	return func(a *Agent) { a.onShutdown = fn }
}

// WithCycleHook is called after every cycle with its report.
func WithCycleHook(fn func(agent.Context, Report)) AgentOption {
	return func(a *Agent) { a.onCycle = fn }
}

// Agent adapts an Engine to the agent.Agent contract. Each Execute drains
// the mailbox, reads sensors and runs one cycle.
type Agent struct {
	identity       agent.Identity
	engine         *Engine
	interpreter    MessageInterpreter
	initialGoals   []goal.Goal
	initialBeliefs []belief.Belief
	onShutdown     func(agent.Context, *Engine) error
	onCycle        func(agent.Context, Report)

	mu       sync.RWMutex
	progress agent.Progress
	last     Report
}

// NewAgent wraps engine.
func NewAgent(engine *Engine, opts ...AgentOption) *Agent {
	a := &Agent{engine: engine, interpreter: InformAsBelief}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AgentID implements agent.Identified. A zero id lets the runtime generate one.
func (a *Agent) AgentID() message.AgentID { return a.identity.ID }

func (a *Agent) Name() string { return a.identity.Name }

// Identity returns the configured identity. Role is empty unless set with
// WithIdentity.
func (a *Agent) Identity() agent.Identity { return a.identity }

// Engine exposes the wrapped engine to the owning agent's own code.
func (a *Agent) Engine() *Engine { return a.engine }

func (a *Agent) Initialize(ctx agent.Context) error {
	for _, b := range a.initialBeliefs {
		a.engine.Beliefs().Assert(b)
	}
	for _, g := range a.initialGoals {
		if err := a.engine.Adopt(g); err != nil {
			return err
		}
	}
	a.publish(Report{})
	ctx.Logger().Debug().
		Int("goals", len(a.initialGoals)).
		Int("beliefs", len(a.initialBeliefs)).
		Msg("bdi agent initialized")
	return nil
}

func (a *Agent) Execute(ctx agent.Context) error {
	var percepts []belief.Percept
	for {
		msg, ok := ctx.TryReceive()
		if !ok {
			break
		}
		in := a.interpreter.Interpret(msg, a.engine.Beliefs())
		percepts = append(percepts, in.Percepts...)
		for _, g := range in.Goals {
			if err := a.engine.Adopt(g); err != nil {
				ctx.Logger().Warn().Err(err).Str("goal_id", g.ID).Msg("goal from message not adopted")
			}
		}
		for _, id := range in.Drop {
			a.engine.Drop(id)
		}
	}

	readings, err := ctx.ReadSensors()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ctx.Logger().Warn().Err(err).Msg("sensor read incomplete")
	}
	percepts = append(percepts, sensor.Percepts(readings)...)

	rep := a.engine.Cycle(ctx, percepts)
	a.publish(rep)
	if a.onCycle != nil {
		a.onCycle(ctx, rep)
	}
	return nil
}

func (a *Agent) Shutdown(ctx agent.Context) error {
	if a.onShutdown != nil {
		return a.onShutdown(ctx, a.engine)
	}
	return nil
}

// LastReport returns the report of the most recent cycle.
func (a *Agent) LastReport() Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Progress implements agent.ProgressReporter.
func (a *Agent) Progress() agent.Progress {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p := a.progress
	p.Details = make(map[string]any, len(a.progress.Details))
	for k, v := range a.progress.Details {
		p.Details[k] = v
	}
	return p
}

// publish snapshots engine state for observers on other goroutines.
func (a *Agent) publish(rep Report) {
	stage := "idle"
	if in, ok := a.engine.Intentions().Top(); ok {
		stage = in.Goal.Name
	}
	achieved := a.engine.Achieved()
	p := agent.Progress{
		Stage: stage,
		Done:  achieved,
		Total: achieved + a.engine.Desires().Len(),
		Details: map[string]any{
			"beliefs":    a.engine.Beliefs().Len(),
			"intentions": a.engine.Intentions().Len(),
		},
	}
	a.mu.Lock()
	a.progress = p
	a.last = rep
	a.mu.Unlock()
}
