package agent

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/agentropic/internal/message"
	"github.com/p-blackswan/agentropic/internal/sensor"
)

// Router delivers messages to registered agents.
type Router interface {
	Send(msg message.Message) error
}

// Context is the handle passed to every lifecycle callback. It is valid only
// for the duration of the callback. Done is closed when the agent is asked to
// stop or the tick deadline passes.
type Context interface {
	context.Context

	// Self returns the calling agent's id.
	Self() message.AgentID

	// Send routes msg through the runtime. Errors are returned synchronously.
	Send(msg message.Message) error

	// Tell builds a message from Self to `to` and sends it.
	Tell(to message.AgentID, p message.Performative, content []byte, opts ...message.Option) error

	// Broadcast tells each recipient in turn and returns the errors joined.
	Broadcast(to []message.AgentID, p message.Performative, content []byte, opts ...message.Option) error

	// TryReceive dequeues the oldest message without blocking.
	TryReceive() (message.Message, bool)

	// Pending returns the number of queued messages.
	Pending() int

	// ReadSensors reads every sensor attached to the agent.
	ReadSensors() ([]sensor.Reading, error)

	Logger() *zerolog.Logger

	// Tick returns the host's tick counter, starting at 1 for the first tick.
	Tick() uint64
}

type tickContext struct {
	context.Context
	host *Host
	tick uint64

	// stoppable is false during Shutdown, which may still send.
	stoppable bool
}

func (c *tickContext) live() error {
	if c.stoppable && c.host.StopRequested() {
		return context.Canceled
	}
	return c.Err()
}

func (c *tickContext) Self() message.AgentID { return c.host.id }

func (c *tickContext) Send(msg message.Message) error {
	if err := c.live(); err != nil {
		return err
	}
	return c.host.router.Send(msg)
}

func (c *tickContext) Tell(to message.AgentID, p message.Performative, content []byte, opts ...message.Option) error {
	return c.Send(message.New(c.host.id, to, p, content, opts...))
}

func (c *tickContext) Broadcast(to []message.AgentID, p message.Performative, content []byte, opts ...message.Option) error {
	var errs []error
	for _, id := range to {
		if err := c.Tell(id, p, content, opts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *tickContext) TryReceive() (message.Message, bool) { return c.host.mailbox.TryReceive() }

func (c *tickContext) Pending() int { return c.host.mailbox.Len() }

func (c *tickContext) ReadSensors() ([]sensor.Reading, error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	if c.host.sensors == nil {
		return nil, nil
	}
	return c.host.sensors.ReadAll(c)
}

func (c *tickContext) Logger() *zerolog.Logger { return &c.host.logger }

func (c *tickContext) Tick() uint64 { return c.tick }
