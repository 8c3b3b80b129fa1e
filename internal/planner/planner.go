// Package planner turns goals into plans: ordered steps an intention executes
// one per tick. Planning is pluggable; Library is the default rule-based
// planner.
package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/p-blackswan/agentropic/internal/agent"
	"github.com/p-blackswan/agentropic/internal/belief"
	"github.com/p-blackswan/agentropic/internal/goal"
)

// ErrNoApplicablePlan is returned when no rule matches a goal.
var ErrNoApplicablePlan = errors.New("planner: no applicable plan")

// Outcome is what a step reports after running.
type Outcome int

const (
	// Continue advances to the next step; past the last step the intention
	// completes.
	Continue Outcome = iota
	// Complete achieves the goal immediately.
	Complete
	// Fail abandons the intention; the goal is queued for replanning.
	Fail
	// Pending keeps the intention on the same step, e.g. awaiting a reply.
	Pending
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Complete:
		return "complete"
	case Fail:
		return "fail"
	case Pending:
		return "pending"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Env is what a step sees: the agent's context, its beliefs, and the goal
// being pursued.
type Env struct {
	agent.Context
	Beliefs *belief.Base
	Goal    goal.Goal
}

// Action is the body of a step. A non-nil error is treated as Fail.
type Action func(env Env) (Outcome, error)

// Step is one unit of plan execution.
type Step struct {
	Name string
	Do   Action
}

// Run executes the step. A step without an action continues.
func (s Step) Run(env Env) (Outcome, error) {
	if s.Do == nil {
		return Continue, nil
	}
	return s.Do(env)
}

// Plan is an ordered list of steps produced once per intention.
type Plan struct {
	Name  string
	Steps []Step
}

// Len returns the number of steps.
func (p Plan) Len() int { return len(p.Steps) }

// Planner produces a plan for a goal given a snapshot of beliefs.
type Planner interface {
	Plan(ctx context.Context, g goal.Goal, beliefs belief.View) (Plan, error)
}

// Func adapts a function into a Planner.
type Func func(ctx context.Context, g goal.Goal, beliefs belief.View) (Plan, error)

func (f Func) Plan(ctx context.Context, g goal.Goal, beliefs belief.View) (Plan, error) {
	return f(ctx, g, beliefs)
}

// Chain tries planners in order and returns the first plan produced.
type Chain []Planner

func (c Chain) Plan(ctx context.Context, g goal.Goal, beliefs belief.View) (Plan, error) {
	if len(c) == 0 {
		return Plan{}, ErrNoApplicablePlan
	}
	var errs []error
	for _, p := range c {
		plan, err := p.Plan(ctx, g, beliefs)
		if err == nil {
			return plan, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Plan{}, ctxErr
		}
		errs = append(errs, err)
	}
	return Plan{}, errors.Join(errs...)
}
