// Package goal defines desires: goals an agent may pursue, ordered by
// priority, and the bookkeeping that decides which one to pursue next.
package goal

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/p-blackswan/agentropic/internal/belief"
)

// ErrDuplicateGoal is returned when a goal id is added twice.
var ErrDuplicateGoal = errors.New("goal: duplicate goal id")

// Status tracks a held desire. Achieved and dropped goals leave the set.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"  // an intention is committed to it
	StatusBlocked Status = "blocked" // planning failed at the current belief version
)

// Goal is a desired state of affairs.
type Goal struct {
	ID       string
	Name     string
	Priority float64 // larger is more urgent

	// Precondition must hold for the goal to be selected. Nil always holds.
	Precondition belief.Condition

	// Timeout bounds how long an intention for this goal may stay
	// committed. Zero means no expiry.
	Timeout time.Duration

	Payload any
}

// Option customises a Goal built by New.
type Option func(*Goal)

// WithID overrides the generated goal id.
func WithID(id string) Option { return func(g *Goal) { g.ID = id } }

// WithPrecondition sets the goal's precondition.
func WithPrecondition(c belief.Condition) Option {
	return func(g *Goal) { g.Precondition = c }
}

// WithTimeout sets the intention timeout.
func WithTimeout(d time.Duration) Option { return func(g *Goal) { g.Timeout = d } }

// WithPayload attaches arbitrary data for planners and steps.
func WithPayload(p any) Option { return func(g *Goal) { g.Payload = p } }

// New creates a goal with a generated id.
func New(name string, priority float64, opts ...Option) Goal {
	g := Goal{
		ID:       "goal_" + uuid.NewString(),
		Name:     name,
		Priority: priority,
	}
	for _, o := range opts {
		o(&g)
	}
	return g
}

// Applicable reports whether the precondition holds under v.
func (g Goal) Applicable(v belief.View) bool {
	return g.Precondition.Eval(v)
}

func (g Goal) String() string {
	return fmt.Sprintf("%s(%s, priority=%g)", g.Name, g.ID, g.Priority)
}
