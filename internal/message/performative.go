package message

import "fmt"

// Performative classifies the communicative intent of a message,
// independent of its payload.
type Performative int

// The performative set is closed. Adding a value is a wire change and
// requires bumping WireVersion.
const (
	Inform Performative = iota + 1
	Request
	Query
	Propose
	Accept
	Reject
	Failure
	Agree
	Refuse
	CallForProposal
	Subscribe
	Cancel
	NotUnderstood
)

var performativeNames = map[Performative]string{
	Inform:          "inform",
	Request:         "request",
	Query:           "query",
	Propose:         "propose",
	Accept:          "accept",
	Reject:          "reject",
	Failure:         "failure",
	Agree:           "agree",
	Refuse:          "refuse",
	CallForProposal: "call-for-proposal",
	Subscribe:       "subscribe",
	Cancel:          "cancel",
	NotUnderstood:   "not-understood",
}

var performativesByName = func() map[string]Performative {
	m := make(map[string]Performative, len(performativeNames))
	for p, name := range performativeNames {
		m[name] = p
	}
	return m
}()

// Valid reports whether p is a member of the closed set.
func (p Performative) Valid() bool {
	_, ok := performativeNames[p]
	return ok
}

func (p Performative) String() string {
	if name, ok := performativeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("performative(%d)", int(p))
}

// ParsePerformative returns the performative with the given wire name.
func ParsePerformative(name string) (Performative, error) {
	p, ok := performativesByName[name]
	if !ok {
		return 0, fmt.Errorf("message: unknown performative %q", name)
	}
	return p, nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Performative) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("message: invalid performative %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Performative) UnmarshalText(text []byte) error {
	parsed, err := ParsePerformative(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
