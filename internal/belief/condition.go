package belief

// Condition is a predicate over beliefs, used for goal preconditions and
// plan context conditions.
type Condition func(View) bool

// Always is satisfied by any belief set.
func Always() Condition { return func(View) bool { return true } }

// Holds is satisfied when predicate(args...) is believed.
func Holds(predicate string, args ...any) Condition {
	args = append([]any(nil), args...)
	return func(v View) bool { return v.Holds(predicate, args...) }
}

// Exists is satisfied when any belief with the predicate is present.
func Exists(predicate string) Condition {
	return func(v View) bool { return len(v.Match(predicate)) > 0 }
}

// Not negates c.
func Not(c Condition) Condition {
	return func(v View) bool { return !c.Eval(v) }
}

// All is satisfied when every condition is.
func All(cs ...Condition) Condition {
	return func(v View) bool {
		for _, c := range cs {
			if !c.Eval(v) {
				return false
			}
		}
		return true
	}
}

// Any is satisfied when at least one condition is.
func Any(cs ...Condition) Condition {
	return func(v View) bool {
		for _, c := range cs {
			if c.Eval(v) {
				return true
			}
		}
		return false
	}
}

// Eval evaluates c against v. A nil condition is satisfied.
func (c Condition) Eval(v View) bool {
	if c == nil {
		return true
	}
	return c(v)
}
