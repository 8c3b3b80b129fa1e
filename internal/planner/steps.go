package planner

import (
	"github.com/p-blackswan/agentropic/internal/belief"
	"github.com/p-blackswan/agentropic/internal/message"
)

// Do wraps an action as a named step.
func Do(name string, fn Action) Step { return Step{Name: name, Do: fn} }

// AssertBelief adds a belief and continues.
func AssertBelief(predicate string, args ...any) Step {
	b := belief.New(predicate, args...)
	return Step{Name: "assert " + predicate, Do: func(env Env) (Outcome, error) {
		env.Beliefs.Assert(b)
		return Continue, nil
	}}
}

// RetractBelief removes a belief and continues.
func RetractBelief(predicate string, args ...any) Step {
	args = append([]any(nil), args...)
	return Step{Name: "retract " + predicate, Do: func(env Env) (Outcome, error) {
		env.Beliefs.Retract(predicate, args...)
		return Continue, nil
	}}
}

// Tell sends a message and continues. A routing error fails the step.
func Tell(to message.AgentID, p message.Performative, content []byte, opts ...message.Option) Step {
	return Step{Name: "tell " + to.String(), Do: func(env Env) (Outcome, error) {
		if err := env.Tell(to, p, content, opts...); err != nil {
			return Fail, err
		}
		return Continue, nil
	}}
}

// Await stays pending until cond holds, then continues.
func Await(name string, cond belief.Condition) Step {
	return Step{Name: name, Do: func(env Env) (Outcome, error) {
		if cond.Eval(env.Beliefs) {
			return Continue, nil
		}
		return Pending, nil
	}}
}

// Achieve completes the goal.
func Achieve() Step {
	return Step{Name: "achieve", Do: func(Env) (Outcome, error) { return Complete, nil }}
}
