package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/agentropic/internal/errors"
	"github.com/p-blackswan/agentropic/internal/mailbox"
	"github.com/p-blackswan/agentropic/internal/message"
	"github.com/p-blackswan/agentropic/internal/sensor"
)

// HostConfig describes how to build a Host.
type HostConfig struct {
	ID      message.AgentID
	Agent   Agent
	Mailbox *mailbox.Mailbox
	Router  Router
	Sensors *sensor.Registry // optional
	Logger  zerolog.Logger

	// TickTimeout bounds each callback. Zero disables the deadline.
	TickTimeout time.Duration
}

// Status is a point-in-time snapshot of a host.
type Status struct {
	ID           message.AgentID
	Name         string
	State        State
	Fault        error
	Ticks        uint64
	MailboxDepth int
	Dropped      uint64
	Progress     *Progress
	SpawnedAt    time.Time
	TerminatedAt time.Time
}

// TickResult describes what one tick did.
type TickResult struct {
	Ran      bool // false if the host was busy or already terminated
	Phase    perrors.Phase
	From, To State
	Err      error
	Duration time.Duration
}

// Host owns one agent, its mailbox and its lifecycle state. Ticks on a host
// never overlap.
type Host struct {
	id      message.AgentID
	name    string
	agent   Agent
	mailbox *mailbox.Mailbox
	router  Router
	sensors *sensor.Registry
	logger  zerolog.Logger
	timeout time.Duration

	stopCtx context.Context
	stop    context.CancelFunc
	busy    atomic.Bool

	mu           sync.RWMutex
	state        State
	fault        error
	ticks        uint64
	spawnedAt    time.Time
	terminatedAt time.Time
}

type displayNamer interface {
	DisplayName() string
}

// NewHost builds a host in the Created state.
func NewHost(cfg HostConfig) *Host {
	name := cfg.ID.String()
	switch a := cfg.Agent.(type) {
	case Named:
		if n := a.Name(); n != "" {
			name = n
		}
	case displayNamer:
		name = a.DisplayName()
	}
	mb := cfg.Mailbox
	if mb == nil {
		mb = mailbox.New(mailbox.Unbounded, mailbox.RejectNew)
	}
	stopCtx, stop := context.WithCancel(context.Background())
	return &Host{
		id:      cfg.ID,
		name:    name,
		agent:   cfg.Agent,
		mailbox: mb,
		router:  cfg.Router,
		sensors: cfg.Sensors,
		timeout: cfg.TickTimeout,
		logger: cfg.Logger.With().
			Str("agent_id", cfg.ID.String()).
			Str("agent_name", name).
			Logger(),
		stopCtx:   stopCtx,
		stop:      stop,
		state:     StateCreated,
		spawnedAt: time.Now().UTC(),
	}
}

func (h *Host) ID() message.AgentID { return h.id }
func (h *Host) Name() string { return h.name }
func (h *Host) Agent() Agent { return h.agent }
func (h *Host) Mailbox() *mailbox.Mailbox { return h.mailbox }
func (h *Host) Logger() *zerolog.Logger { return &h.logger }
func (h *Host) Busy() bool { return h.busy.Load() }
func (h *Host) StopRequested() bool { return h.stopCtx.Err() != nil }
func (h *Host) Done() <-chan struct{} { return h.stopCtx.Done() }

// State returns the current lifecycle state.
func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Fault returns the first recorded callback failure, if any.
func (h *Host) Fault() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fault
}

// Admit moves a freshly registered host from Created to Initializing.
func (h *Host) Admit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateCreated {
		return fmt.Errorf("host %s: admit in state %s", h.id, h.state)
	}
	h.state = StateInitializing
	return nil
}

// Stop requests a cooperative stop. The host moves to ShuttingDown at the
// start of its next tick. Calling Stop more than once is harmless.
func (h *Host) Stop() { h.stop() }

// Status returns a snapshot of the host.
func (h *Host) Status() Status {
	h.mu.RLock()
	st := Status{
		ID:           h.id,
		Name:         h.name,
		State:        h.state,
		Fault:        h.fault,
		Ticks:        h.ticks,
		SpawnedAt:    h.spawnedAt,
		TerminatedAt: h.terminatedAt,
	}
	h.mu.RUnlock()

	st.MailboxDepth = h.mailbox.Len()
	st.Dropped = h.mailbox.Dropped()
	if pr, ok := h.agent.(ProgressReporter); ok {
		p := pr.Progress()
		st.Progress = &p
	}
	return st
}

// Tick runs one step of the lifecycle. ctx carries the caller's deadline and
// trace; the agent additionally observes the host's stop request through it.
func (h *Host) Tick(ctx context.Context) TickResult {
	if !h.busy.CompareAndSwap(false, true) {
		return TickResult{}
	}
	defer h.busy.Store(false)

	h.mu.Lock()
	from := h.state
	if from.Terminal() {
		h.mu.Unlock()
		return TickResult{From: from, To: from}
	}
	h.ticks++
	tick := h.ticks
	if from == StateCreated {
		h.state = StateInitializing
	}
	if h.StopRequested() && h.state != StateShuttingDown {
		h.logger.Debug().Str("from", h.state.String()).Msg("stop requested")
		h.state = StateShuttingDown
	}
	state := h.state
	h.mu.Unlock()

	start := time.Now()
	res := TickResult{Ran: true, From: from}

	switch state {
	case StateInitializing:
		res.Phase = perrors.PhaseInitialize
		if err := h.invoke(ctx, tick, res.Phase, h.agent.Initialize); err != nil {
			res.Err = err
			h.fail(err)
		} else {
			h.transition(StateInitializing, StateRunning)
		}

	case StateRunning:
		res.Phase = perrors.PhaseExecute
		if err := h.invoke(ctx, tick, res.Phase, h.agent.Execute); err != nil {
			res.Err = err
			h.fail(err)
		}

	case StateShuttingDown:
		res.Phase = perrors.PhaseShutdown
		if err := h.invoke(ctx, tick, res.Phase, h.agent.Shutdown); err != nil {
			res.Err = err
			h.recordFault(err)
		}
		h.terminate()
	}

	res.To = h.State()
	res.Duration = time.Since(start)
	return res
}

// invoke runs one callback with panic recovery and the tick deadline. The
// Shutdown callback does not observe the stop request, only the deadline.
func (h *Host) invoke(ctx context.Context, tick uint64, phase perrors.Phase, fn func(Context) error) (err error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if phase != perrors.PhaseShutdown {
		unhook := context.AfterFunc(h.stopCtx, cancel)
		defer unhook()
	}

	var deadlineCtx context.Context = cctx
	if h.timeout > 0 {
		var cancelTimeout context.CancelFunc
		deadlineCtx, cancelTimeout = context.WithTimeout(cctx, h.timeout)
		defer cancelTimeout()
	}

	defer func() {
		if r := recover(); r != nil {
			err = perrors.NewCallbackError(h.id.String(), phase, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			h.logger.Error().Err(err).Str("phase", string(phase)).Msg("lifecycle callback failed")
		}
	}()

	cbErr := fn(&tickContext{
		Context:   deadlineCtx,
		host:      h,
		tick:      tick,
		stoppable: phase != perrors.PhaseShutdown,
	})
	if errors.Is(cbErr, context.Canceled) && h.StopRequested() {
		// The agent honoured the stop request.
		return nil
	}
	if h.timeout > 0 && errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) && cctx.Err() == nil {
		if cbErr != nil {
			cbErr = fmt.Errorf("%w: %w", perrors.ErrTickTimeout, cbErr)
		} else {
			cbErr = perrors.ErrTickTimeout
		}
	}
	if cbErr != nil {
		return perrors.NewCallbackError(h.id.String(), phase, cbErr)
	}
	return nil
}

func (h *Host) transition(from, to State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == from {
		h.state = to
		h.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state changed")
	}
}

// fail records err and moves the host to ShuttingDown; Shutdown runs next tick.
func (h *Host) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fault == nil {
		h.fault = err
	}
	h.state = StateShuttingDown
}

func (h *Host) recordFault(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fault == nil {
		h.fault = err
	}
}

func (h *Host) terminate() {
	h.mu.Lock()
	h.state = StateTerminated
	h.terminatedAt = time.Now().UTC()
	h.mu.Unlock()
	h.stop()
	h.logger.Info().Msg("agent terminated")
}
