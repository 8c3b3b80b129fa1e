package statusapi

import (
	"time"

	"github.com/p-blackswan/agentropic/internal/agent"
	"github.com/p-blackswan/agentropic/internal/health"
	"github.com/p-blackswan/agentropic/internal/message"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// AgentResponse is the wire form of an agent status snapshot.
type AgentResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	State        string          `json:"state"`
	Fault        string          `json:"fault,omitempty"`
	Ticks        uint64          `json:"ticks"`
	MailboxDepth int             `json:"mailbox_depth"`
	Dropped      uint64          `json:"dropped"`
	Progress     *agent.Progress `json:"progress,omitempty"`
	SpawnedAt    time.Time       `json:"spawned_at"`
	TerminatedAt *time.Time      `json:"terminated_at,omitempty"`
}

// AgentListResponse is returned by GET /api/v1/agents.
type AgentListResponse struct {
	Agents []AgentResponse `json:"agents"`
	Count  int             `json:"count"`
}

// ReadinessResponse is returned by GET /readyz.
type ReadinessResponse struct {
	Status string                   `json:"status"`
	Checks map[string]health.Status `json:"checks,omitempty"`
}

// SendMessageRequest is the body of POST /api/v1/agents/:id/messages.
// Performative uses its lower-case name, e.g. "inform".
type SendMessageRequest struct {
	Sender         string               `json:"sender,omitempty"`
	Performative   message.Performative `json:"performative"`
	Content        string               `json:"content"`
	ConversationID string               `json:"conversation_id,omitempty"`
}

// SendMessageResponse acknowledges an injected message.
type SendMessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func toAgentResponse(st agent.Status) AgentResponse {
	resp := AgentResponse{
		ID:           string(st.ID),
		Name:         st.Name,
		State:        st.State.String(),
		Ticks:        st.Ticks,
		MailboxDepth: st.MailboxDepth,
		Dropped:      st.Dropped,
		Progress:     st.Progress,
		SpawnedAt:    st.SpawnedAt,
	}
	if st.Fault != nil {
		resp.Fault = st.Fault.Error()
	}
	if !st.TerminatedAt.IsZero() {
		t := st.TerminatedAt
		resp.TerminatedAt = &t
	}
	return resp
}
