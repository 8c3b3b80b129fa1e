package belief

// Op is the kind of change a percept requests.
type Op int

const (
	OpAssert Op = iota
	OpRetract
)

func (o Op) String() string {
	if o == OpRetract {
		return "retract"
	}
	return "assert"
}

// Percept is a perceived fact to fold into the belief base during belief
// revision.
type Percept struct {
	Op     Op
	Belief Belief
}

// Assert builds a percept asserting predicate(args...).
func Assert(predicate string, args ...any) Percept {
	return Percept{Op: OpAssert, Belief: New(predicate, args...)}
}

// Retract builds a percept retracting predicate(args...).
func Retract(predicate string, args ...any) Percept {
	return Percept{Op: OpRetract, Belief: New(predicate, args...)}
}
