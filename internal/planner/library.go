package planner

import (
	"context"
	"fmt"
	"sync"

	"github.com/p-blackswan/agentropic/internal/belief"
	"github.com/p-blackswan/agentropic/internal/goal"
)

// Rule is a plan-library entry: when a goal named Trigger is selected and
// Context holds, the body becomes the plan.
type Rule struct {
	Name    string
	Trigger string
	Context belief.Condition

	// Steps is used as the body unless Build is set.
	Steps []Step
	Build func(g goal.Goal, beliefs belief.View) []Step
}

func (r Rule) body(g goal.Goal, v belief.View) []Step {
	if r.Build != nil {
		return r.Build(g, v)
	}
	return append([]Step(nil), r.Steps...)
}

// Library is a planner backed by an ordered rule set. The first applicable
// rule wins. It is safe for concurrent use.
type Library struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewLibrary builds a library from rules in priority order.
func NewLibrary(rules ...Rule) *Library {
	return &Library{rules: append([]Rule(nil), rules...)}
}

// Add appends a rule.
func (l *Library) Add(r Rule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules = append(l.rules, r)
}

// Len returns the number of rules.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rules)
}

// Plan implements Planner.
func (l *Library) Plan(ctx context.Context, g goal.Goal, beliefs belief.View) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}
	l.mu.RLock()
	rules := l.rules
	l.mu.RUnlock()

	for _, r := range rules {
		if r.Trigger != g.Name || !r.Context.Eval(beliefs) {
			continue
		}
		name := r.Name
		if name == "" {
			name = r.Trigger
		}
		return Plan{Name: name, Steps: r.body(g, beliefs)}, nil
	}
	return Plan{}, fmt.Errorf("%w for goal %q", ErrNoApplicablePlan, g.Name)
}
