package statusapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/agentropic/internal/agent"
	perrors "github.com/p-blackswan/agentropic/internal/errors"
	"github.com/p-blackswan/agentropic/internal/health"
	"github.com/p-blackswan/agentropic/internal/message"
)

// Registry is the part of the runtime the API reads and controls.
type Registry interface {
	Statuses() []agent.Status
	Status(id message.AgentID) (agent.Status, error)
	Despawn(id message.AgentID) error
	Send(msg message.Message) error
}

// DefaultSender is the sender id used for injected messages that name none.
const DefaultSender message.AgentID = "status-api"

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	registry  Registry
	checker   *health.Checker
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(registry Registry, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		registry:  registry,
		checker:   checker,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker == nil {
		return c.JSON(ReadinessResponse{Status: "ready"})
	}
	rep := h.checker.Check(c.UserContext())
	if !rep.Ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ReadinessResponse{
			Status: "not_ready",
			Checks: rep.Checks,
		})
	}
	return c.JSON(ReadinessResponse{Status: "ready", Checks: rep.Checks})
}

// ListAgents handles GET /api/v1/agents. The optional state query parameter
// filters by lifecycle state.
func (h *Handlers) ListAgents(c *fiber.Ctx) error {
	filter := c.Query("state")
	statuses := h.registry.Statuses()
	out := make([]AgentResponse, 0, len(statuses))
	for _, st := range statuses {
		if filter != "" && st.State.String() != filter {
			continue
		}
		out = append(out, toAgentResponse(st))
	}
	return c.JSON(AgentListResponse{Agents: out, Count: len(out)})
}

// GetAgent handles GET /api/v1/agents/:id.
func (h *Handlers) GetAgent(c *fiber.Ctx) error {
	id := message.AgentID(c.Params("id"))
	st, err := h.registry.Status(id)
	if err != nil {
		return h.registryError(c, err)
	}
	return c.JSON(toAgentResponse(st))
}

// DespawnAgent handles DELETE /api/v1/agents/:id.
func (h *Handlers) DespawnAgent(c *fiber.Ctx) error {
	id := message.AgentID(c.Params("id"))
	if err := h.registry.Despawn(id); err != nil {
		return h.registryError(c, err)
	}
	h.logger.Info().
		Str("agent_id", string(id)).
		Str("request_id", requestID(c)).
		Msg("despawn requested via status api")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":     string(id),
		"status": "shutting-down",
	})
}

// SendMessage handles POST /api/v1/agents/:id/messages.
func (h *Handlers) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if !req.Performative.Valid() {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_performative", "Bad Request",
			"performative is required")
	}

	sender := message.AgentID(req.Sender)
	if sender.IsZero() {
		sender = DefaultSender
	}
	var opts []message.Option
	if req.ConversationID != "" {
		opts = append(opts, message.WithConversation(req.ConversationID))
	}
	msg := message.NewText(sender, message.AgentID(c.Params("id")), req.Performative, req.Content, opts...)

	if err := h.registry.Send(msg); err != nil {
		switch {
		case errors.Is(err, perrors.ErrUnknownRecipient):
			return problemResponse(c, fiber.StatusNotFound,
				"agent_not_found", "Not Found",
				"No live agent with id "+c.Params("id"))
		case errors.Is(err, perrors.ErrMailboxOverflow):
			return problemResponse(c, fiber.StatusTooManyRequests,
				"mailbox_full", "Too Many Requests",
				"Recipient mailbox is full. Please try again later.")
		case errors.Is(err, perrors.ErrMailboxClosed):
			return problemResponse(c, fiber.StatusConflict,
				"mailbox_closed", "Conflict",
				"Recipient is shutting down")
		}
		return err
	}

	h.logger.Debug().
		Str("message_id", msg.ID()).
		Str("receiver", c.Params("id")).
		Str("performative", msg.Performative().String()).
		Msg("message injected")
	return c.Status(fiber.StatusAccepted).JSON(SendMessageResponse{
		ID:             msg.ID(),
		ConversationID: msg.ConversationID(),
	})
}

func (h *Handlers) registryError(c *fiber.Ctx, err error) error {
	if errors.Is(err, perrors.ErrUnknownAgent) {
		return problemResponse(c, fiber.StatusNotFound,
			"agent_not_found", "Not Found",
			"No agent with id "+c.Params("id"))
	}
	return err
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}
