// Package bdi runs the belief-desire-intention cycle: revise beliefs, select
// a goal, plan for it, and advance the current intention by one step.
package bdi

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/agentropic/internal/agent"
	"github.com/p-blackswan/agentropic/internal/belief"
	perrors "github.com/p-blackswan/agentropic/internal/errors"
	"github.com/p-blackswan/agentropic/internal/goal"
	"github.com/p-blackswan/agentropic/internal/planner"
)

// ErrIntentionExpired is recorded on a goal whose intention timed out.
var ErrIntentionExpired = errors.New("bdi: intention expired")

// Report describes what one cycle did.
type Report struct {
	Revised  int
	Selected string // goal id, empty if none qualified
	Planned  bool
	PlanErr  error

	Executed bool
	GoalID   string
	Step     string
	Outcome  planner.Outcome
	StepErr  error

	Achieved []string
	Requeued []string
	Expired  []string
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides time.Now, for intention expiry.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithBeliefs seeds the engine with an existing belief base.
func WithBeliefs(bb *belief.Base) Option { return func(e *Engine) { e.beliefs = bb } }

// Engine holds one agent's BDI state. It is touched only from that agent's
// ticks and is not safe for concurrent use.
type Engine struct {
	beliefs    *belief.Base
	desires    *goal.DesireSet
	intentions *IntentionStack
	planner    planner.Planner
	logger     zerolog.Logger
	now        func() time.Time
	achieved   int
}

// NewEngine creates an engine that plans with p.
func NewEngine(p planner.Planner, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		beliefs:    belief.NewBase(),
		desires:    goal.NewDesireSet(),
		intentions: &IntentionStack{},
		planner:    p,
		logger:     logger.With().Str("component", "bdi").Logger(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Beliefs() *belief.Base { return e.beliefs }
func (e *Engine) Desires() *goal.DesireSet { return e.desires }
func (e *Engine) Intentions() *IntentionStack { return e.intentions }
func (e *Engine) Achieved() int { return e.achieved }

// Adopt adds a goal to the desire set.
func (e *Engine) Adopt(g goal.Goal) error {
	return e.desires.Add(g)
}

// Drop abandons a goal and any intention committed to it.
func (e *Engine) Drop(goalID string) bool {
	e.intentions.Remove(goalID)
	_, ok := e.desires.Drop(goalID)
	return ok
}

// Cycle runs one reasoning cycle. At most one plan step executes.
func (e *Engine) Cycle(ctx agent.Context, percepts []belief.Percept) Report {
	var rep Report
	rep.Revised = e.beliefs.Revise(percepts...)
	e.expire(&rep)

	if g, ok := e.desires.Select(e.beliefs); ok {
		rep.Selected = g.ID
		if !e.intentions.Has(g.ID) {
			e.plan(ctx, g, &rep)
		}
	}

	e.execute(ctx, &rep)
	return rep
}

func (e *Engine) expire(rep *Report) {
	now := e.now()
	for _, in := range e.intentions.List() {
		if !in.Expired(now) {
			continue
		}
		e.intentions.Remove(in.Goal.ID)
		e.desires.Requeue(in.Goal.ID, ErrIntentionExpired)
		rep.Expired = append(rep.Expired, in.Goal.ID)
		e.logger.Debug().Str("goal_id", in.Goal.ID).Str("goal", in.Goal.Name).Msg("intention expired")
	}
}

func (e *Engine) plan(ctx agent.Context, g goal.Goal, rep *Report) {
	plan, err := e.planner.Plan(ctx, g, e.beliefs.Snapshot())
	if err != nil {
		perr := &perrors.PlanningError{GoalID: g.ID, Err: err}
		e.desires.Block(g.ID, e.beliefs.Version(), perr)
		rep.PlanErr = perr
		e.logger.Debug().Err(err).Str("goal_id", g.ID).Str("goal", g.Name).Msg("planning failed")
		return
	}
	// Push cannot fail: Has was checked by the caller.
	_ = e.intentions.Push(newIntention(g, plan, e.now()))
	e.desires.Activate(g.ID)
	rep.Planned = true
}

func (e *Engine) execute(ctx agent.Context, rep *Report) {
	in, ok := e.intentions.Top()
	if !ok {
		return
	}
	rep.GoalID = in.Goal.ID

	step, ok := in.Current()
	if !ok {
		e.complete(in, rep)
		return
	}

	rep.Executed = true
	rep.Step = step.Name
	outcome, err := step.Run(planner.Env{Context: ctx, Beliefs: e.beliefs, Goal: in.Goal})
	if err != nil {
		outcome = planner.Fail
		rep.StepErr = err
	}
	rep.Outcome = outcome

	switch outcome {
	case planner.Continue:
		in.Cursor++
		if in.Finished() {
			e.complete(in, rep)
		}
	case planner.Complete:
		e.complete(in, rep)
	case planner.Fail:
		e.intentions.Remove(in.Goal.ID)
		e.desires.Requeue(in.Goal.ID, err)
		rep.Requeued = append(rep.Requeued, in.Goal.ID)
		e.logger.Debug().Err(err).Str("goal_id", in.Goal.ID).Str("step", step.Name).Msg("intention failed")
	case planner.Pending:
	}
}

func (e *Engine) complete(in *Intention, rep *Report) {
	e.intentions.Remove(in.Goal.ID)
	if _, ok := e.desires.Achieve(in.Goal.ID); ok {
		e.achieved++
	}
	rep.Achieved = append(rep.Achieved, in.Goal.ID)
	e.logger.Debug().Str("goal_id", in.Goal.ID).Str("goal", in.Goal.Name).Msg("goal achieved")
}
