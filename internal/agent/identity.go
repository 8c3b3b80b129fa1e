package agent

import (
	"fmt"

	"github.com/p-blackswan/agentropic/internal/message"
)

// Role classifies an agent's function in a population.
type Role string

const (
	RoleGeneral     Role = "general"
	RoleCoordinator Role = "coordinator" // assigns work to other agents
	RoleWorker      Role = "worker"      // carries out assigned work
	RoleObserver    Role = "observer"    // only perceives and reports
)

// Identified agents declare their own id instead of receiving a generated
// one at spawn.
type Identified interface {
	AgentID() message.AgentID
}

// Identity can be embedded in an agent struct to make it Identified and Named.
type Identity struct {
	ID   message.AgentID `yaml:"id" json:"id"`
	Name string          `yaml:"name" json:"name"`
	Role Role            `yaml:"role" json:"role"`
}

// NewIdentity builds a validated identity.
func NewIdentity(id message.AgentID, name string, role Role) (Identity, error) {
	i := Identity{ID: id, Name: name, Role: role}
	if err := i.Validate(); err != nil {
		return Identity{}, err
	}
	return i, nil
}

// Validate checks required fields and fills defaults.
func (i *Identity) Validate() error {
	if i.ID.IsZero() {
		return fmt.Errorf("identity: id is required")
	}
	if i.Name == "" {
		i.Name = i.ID.String()
	}
	if i.Role == "" {
		i.Role = RoleGeneral
	}
	return nil
}

// AgentID implements Identified.
func (i Identity) AgentID() message.AgentID { return i.ID }

// DisplayName returns the name used in logs. Embedders that also want Named
// can forward Name to it.
func (i Identity) DisplayName() string {
	if i.Name == "" {
		return i.ID.String()
	}
	return i.Name
}

func (i Identity) String() string {
	return fmt.Sprintf("Identity{id=%s name=%s role=%s}", i.ID, i.DisplayName(), i.Role)
}
