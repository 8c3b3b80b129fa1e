package bdi

import (
	"errors"
	"time"

	"github.com/p-blackswan/agentropic/internal/goal"
	"github.com/p-blackswan/agentropic/internal/planner"
)

// ErrDuplicateIntention is returned when a goal already has an intention.
var ErrDuplicateIntention = errors.New("bdi: goal already has an intention")

// Intention is a commitment to a goal with a plan and a cursor into it.
type Intention struct {
	Goal      goal.Goal
	Plan      planner.Plan
	Cursor    int
	AdoptedAt time.Time
	Expiry    time.Time // zero means no expiry
}

func newIntention(g goal.Goal, p planner.Plan, now time.Time) *Intention {
	in := &Intention{Goal: g, Plan: p, AdoptedAt: now}
	if g.Timeout > 0 {
		in.Expiry = now.Add(g.Timeout)
	}
	return in
}

// Expired reports whether the goal's timeout has elapsed at now.
func (in *Intention) Expired(now time.Time) bool {
	return !in.Expiry.IsZero() && !now.Before(in.Expiry)
}

// Finished reports whether every step has run.
func (in *Intention) Finished() bool { return in.Cursor >= in.Plan.Len() }

// Current returns the step under the cursor.
func (in *Intention) Current() (planner.Step, bool) {
	if in.Finished() {
		return planner.Step{}, false
	}
	return in.Plan.Steps[in.Cursor], true
}

// IntentionStack is LIFO; the top intention is the one being executed. A
// goal appears in at most one intention.
type IntentionStack struct {
	items []*Intention
}

// Push places in on top.
func (s *IntentionStack) Push(in *Intention) error {
	if s.Has(in.Goal.ID) {
		return ErrDuplicateIntention
	}
	s.items = append(s.items, in)
	return nil
}

// Top returns the current intention.
func (s *IntentionStack) Top() (*Intention, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	return s.items[len(s.items)-1], true
}

// Pop removes and returns the top intention.
func (s *IntentionStack) Pop() (*Intention, bool) {
	in, ok := s.Top()
	if ok {
		s.items = s.items[:len(s.items)-1]
	}
	return in, ok
}

// Remove drops the intention for goalID wherever it sits.
func (s *IntentionStack) Remove(goalID string) bool {
	for i, in := range s.items {
		if in.Goal.ID == goalID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Has reports whether goalID has an intention.
func (s *IntentionStack) Has(goalID string) bool {
	for _, in := range s.items {
		if in.Goal.ID == goalID {
			return true
		}
	}
	return false
}

// Len returns the stack depth.
func (s *IntentionStack) Len() int { return len(s.items) }

// List returns copies of the intentions, top first.
func (s *IntentionStack) List() []Intention {
	out := make([]Intention, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		out = append(out, *s.items[i])
	}
	return out
}
