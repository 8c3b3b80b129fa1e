package goal

import (
	"sort"

	"github.com/p-blackswan/agentropic/internal/belief"
)

type desire struct {
	goal   Goal
	seq    uint64
	status Status

	// blockedAt is the belief version at which planning last failed.
	blockedAt uint64
	lastErr   error
	attempts  int
}

// Desire is a read-only view of one entry in a DesireSet.
type Desire struct {
	Goal     Goal
	Status   Status
	Attempts int
	LastErr  error
}

// DesireSet holds an agent's pending goals ordered by priority, then by the
// order in which they were queued. Not safe for concurrent use; it belongs to
// one agent.
type DesireSet struct {
	byID map[string]*desire
	seq  uint64
}

// NewDesireSet creates an empty set.
func NewDesireSet() *DesireSet {
	return &DesireSet{byID: make(map[string]*desire)}
}

// Add queues a goal. Adding an id already present fails with ErrDuplicateGoal.
func (s *DesireSet) Add(g Goal) error {
	if _, ok := s.byID[g.ID]; ok {
		return ErrDuplicateGoal
	}
	s.seq++
	s.byID[g.ID] = &desire{goal: g, seq: s.seq, status: StatusPending}
	return nil
}

// Get returns the desire for id.
func (s *DesireSet) Get(id string) (Desire, bool) {
	d, ok := s.byID[id]
	if !ok {
		return Desire{}, false
	}
	return d.view(), true
}

// Len returns the number of goals held.
func (s *DesireSet) Len() int { return len(s.byID) }

// Select returns the highest-priority goal whose precondition holds under v.
// Goals blocked at v's version are skipped; a version change unblocks them.
func (s *DesireSet) Select(v belief.View) (Goal, bool) {
	for _, d := range s.ordered() {
		if d.status == StatusBlocked {
			if d.blockedAt == v.Version() {
				continue
			}
			d.status = StatusPending
		}
		if d.goal.Applicable(v) {
			return d.goal, true
		}
	}
	return Goal{}, false
}

// Activate marks a goal as committed to by an intention.
func (s *DesireSet) Activate(id string) {
	if d, ok := s.byID[id]; ok {
		d.status = StatusActive
		d.attempts++
	}
}

// Block records a planning failure for id at the given belief version.
func (s *DesireSet) Block(id string, version uint64, err error) {
	if d, ok := s.byID[id]; ok {
		d.status = StatusBlocked
		d.blockedAt = version
		d.lastErr = err
	}
}

// Requeue returns a goal to pending behind every goal of equal priority.
func (s *DesireSet) Requeue(id string, err error) {
	if d, ok := s.byID[id]; ok {
		s.seq++
		d.seq = s.seq
		d.status = StatusPending
		d.lastErr = err
	}
}

// Achieve removes a goal that has been accomplished.
func (s *DesireSet) Achieve(id string) (Goal, bool) {
	return s.remove(id)
}

// Drop removes a goal without achieving it.
func (s *DesireSet) Drop(id string) (Goal, bool) {
	return s.remove(id)
}

func (s *DesireSet) remove(id string) (Goal, bool) {
	d, ok := s.byID[id]
	if !ok {
		return Goal{}, false
	}
	delete(s.byID, id)
	return d.goal, true
}

// List returns all desires in selection order.
func (s *DesireSet) List() []Desire {
	ds := s.ordered()
	out := make([]Desire, len(ds))
	for i, d := range ds {
		out[i] = d.view()
	}
	return out
}

func (s *DesireSet) ordered() []*desire {
	ds := make([]*desire, 0, len(s.byID))
	for _, d := range s.byID {
		ds = append(ds, d)
	}
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].goal.Priority != ds[j].goal.Priority {
			return ds[i].goal.Priority > ds[j].goal.Priority
		}
		return ds[i].seq < ds[j].seq
	})
	return ds
}

func (d *desire) view() Desire {
	return Desire{Goal: d.goal, Status: d.status, Attempts: d.attempts, LastErr: d.lastErr}
}
