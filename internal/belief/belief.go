// Package belief implements an agent's fact store.
//
// A Base is owned by exactly one agent and is only touched from that
// agent's ticks, so it carries no locking.
package belief

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Belief is a fact: a predicate over an ordered argument list, with an
// optional certainty weight.
type Belief struct {
	Predicate string
	Args      []any
	Certainty *float64
}

// New builds a belief. The argument slice is copied.
func New(predicate string, args ...any) Belief {
	return Belief{Predicate: predicate, Args: append([]any(nil), args...)}
}

// WithCertainty returns a copy of b weighted by c.
func (b Belief) WithCertainty(c float64) Belief {
	b.Certainty = &c
	return b
}

// Key identifies a belief by predicate and arguments.
type Key string

// KeyOf builds the key for predicate(args...). Every part is quoted, so
// no predicate or argument text can spell out another belief's key.
func KeyOf(predicate string, args ...any) Key {
	var sb strings.Builder
	sb.WriteString(strconv.Quote(predicate))
	for _, a := range args {
		sb.WriteString(strconv.Quote(fmt.Sprintf("%T", a)))
		sb.WriteString(strconv.Quote(fmt.Sprint(a)))
	}
	return Key(sb.String())
}

// Key returns the identity of b.
func (b Belief) Key() Key { return KeyOf(b.Predicate, b.Args...) }

func (b Belief) String() string {
	parts := make([]string, len(b.Args))
	for i, a := range b.Args {
		parts[i] = fmt.Sprintf("%v", a)
	}
	s := fmt.Sprintf("%s(%s)", b.Predicate, strings.Join(parts, ", "))
	if b.Certainty != nil {
		s += fmt.Sprintf("[%.2f]", *b.Certainty)
	}
	return s
}

func sameCertainty(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// View is read access to a set of beliefs.
type View interface {
	Get(predicate string, args ...any) (Belief, bool)
	Holds(predicate string, args ...any) bool
	Match(predicate string) []Belief
	Len() int
	Version() uint64
}

// Base maps (predicate, args) to beliefs. Assertion overwrites, retraction
// removes. Version increases on every effective change.
type Base struct {
	beliefs map[Key]Belief
	version uint64
}

// NewBase creates an empty belief base.
func NewBase() *Base {
	return &Base{beliefs: make(map[Key]Belief)}
}

// Assert stores b, replacing any belief with the same key. It returns false
// when an identical belief was already present.
func (bb *Base) Assert(b Belief) bool {
	b.Args = append([]any(nil), b.Args...)
	k := b.Key()
	if prev, ok := bb.beliefs[k]; ok && sameCertainty(prev.Certainty, b.Certainty) {
		return false
	}
	bb.beliefs[k] = b
	bb.version++
	return true
}

// Retract removes predicate(args...). It returns false if nothing was removed.
func (bb *Base) Retract(predicate string, args ...any) bool {
	k := KeyOf(predicate, args...)
	if _, ok := bb.beliefs[k]; !ok {
		return false
	}
	delete(bb.beliefs, k)
	bb.version++
	return true
}

// RetractAll removes every belief with the given predicate and returns how
// many were removed.
func (bb *Base) RetractAll(predicate string) int {
	n := 0
	for k, b := range bb.beliefs {
		if b.Predicate == predicate {
			delete(bb.beliefs, k)
			n++
		}
	}
	if n > 0 {
		bb.version++
	}
	return n
}

// Revise applies percepts in order and returns how many changed the base.
func (bb *Base) Revise(percepts ...Percept) int {
	changed := 0
	for _, p := range percepts {
		var ok bool
		switch p.Op {
		case OpAssert:
			ok = bb.Assert(p.Belief)
		case OpRetract:
			ok = bb.Retract(p.Belief.Predicate, p.Belief.Args...)
		}
		if ok {
			changed++
		}
	}
	return changed
}

// Get returns predicate(args...) if believed.
func (bb *Base) Get(predicate string, args ...any) (Belief, bool) {
	b, ok := bb.beliefs[KeyOf(predicate, args...)]
	return b, ok
}

// Holds reports whether predicate(args...) is believed.
func (bb *Base) Holds(predicate string, args ...any) bool {
	_, ok := bb.beliefs[KeyOf(predicate, args...)]
	return ok
}

// Match returns all beliefs with the given predicate ordered by key.
func (bb *Base) Match(predicate string) []Belief {
	return match(bb.beliefs, predicate)
}

// Len returns the number of beliefs.
func (bb *Base) Len() int { return len(bb.beliefs) }

// Version returns the change counter.
func (bb *Base) Version() uint64 { return bb.version }

// All returns every belief ordered by key.
func (bb *Base) All() []Belief { return match(bb.beliefs, "") }

// Snapshot returns an immutable copy of the current beliefs.
func (bb *Base) Snapshot() Snapshot {
	cp := make(map[Key]Belief, len(bb.beliefs))
	for k, b := range bb.beliefs {
		cp[k] = b
	}
	return Snapshot{beliefs: cp, version: bb.version}
}

// Snapshot is a frozen view of a Base, safe to hand to planners.
type Snapshot struct {
	beliefs map[Key]Belief
	version uint64
}

func (s Snapshot) Get(predicate string, args ...any) (Belief, bool) {
	b, ok := s.beliefs[KeyOf(predicate, args...)]
	return b, ok
}

func (s Snapshot) Holds(predicate string, args ...any) bool {
	_, ok := s.beliefs[KeyOf(predicate, args...)]
	return ok
}

func (s Snapshot) Match(predicate string) []Belief { return match(s.beliefs, predicate) }
func (s Snapshot) Len() int { return len(s.beliefs) }
func (s Snapshot) Version() uint64 { return s.version }

// match filters by predicate; empty predicate matches everything.
func match(beliefs map[Key]Belief, predicate string) []Belief {
	keys := make([]Key, 0, len(beliefs))
	for k, b := range beliefs {
		if predicate == "" || b.Predicate == predicate {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]Belief, len(keys))
	for i, k := range keys {
		out[i] = beliefs[k]
	}
	return out
}
