// Package runtime implements the agent scheduler: it owns the registry of
// agent hosts, drives them in rounds on a bounded worker pool, and routes
// messages between them.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/p-blackswan/agentropic/internal/agent"
	perrors "github.com/p-blackswan/agentropic/internal/errors"
	"github.com/p-blackswan/agentropic/internal/lru"
	"github.com/p-blackswan/agentropic/internal/mailbox"
	"github.com/p-blackswan/agentropic/internal/message"
	"github.com/p-blackswan/agentropic/internal/metrics"
	"github.com/p-blackswan/agentropic/internal/sensor"
	"github.com/p-blackswan/agentropic/internal/telemetry"
)

// Config holds runtime configuration.
type Config struct {
	// MaxConcurrency bounds how many agents tick in parallel.
	MaxConcurrency int

	// MailboxCapacity applies to mailboxes the runtime creates. Zero means
	// unbounded.
	MailboxCapacity int

	OverflowPolicy mailbox.OverflowPolicy

	// TickTimeout bounds each lifecycle callback. Zero disables it.
	TickTimeout time.Duration

	// RoundInterval is the pause between scheduler rounds.
	RoundInterval time.Duration

	// TombstoneLimit bounds how many terminated agents keep answering
	// Status. The least recently queried are forgotten first.
	TombstoneLimit int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:  4,
		MailboxCapacity: mailbox.Unbounded,
		OverflowPolicy:  mailbox.RejectNew,
		RoundInterval:   5 * time.Millisecond,
		TombstoneLimit:  1024,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("runtime: max concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.MailboxCapacity < 0 {
		return fmt.Errorf("runtime: mailbox capacity must not be negative, got %d", c.MailboxCapacity)
	}
	if c.TombstoneLimit < 1 {
		return fmt.Errorf("runtime: tombstone limit must be at least 1, got %d", c.TombstoneLimit)
	}
	if c.TickTimeout < 0 || c.RoundInterval < 0 {
		return fmt.Errorf("runtime: durations must not be negative")
	}
	return nil
}

// Option customises a Runtime.
type Option func(*Runtime)

// WithMetrics records scheduler and routing metrics on m.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Runtime) { r.metrics = m } }

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option { return func(r *Runtime) { r.tracer = t } }

// SpawnOption customises a single spawn.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	id      message.AgentID
	mailbox *mailbox.Mailbox
	sensors *sensor.Registry
}

// WithMailbox attaches a mailbox obtained from CreateMailbox. A mailbox
// serves one agent only; spawning a second agent on it fails with
// ErrMailboxInUse.
func WithMailbox(mb *mailbox.Mailbox) SpawnOption {
	return func(c *spawnConfig) { c.mailbox = mb }
}

// WithSensors attaches sensors the agent reads through its context.
func WithSensors(reg *sensor.Registry) SpawnOption {
	return func(c *spawnConfig) { c.sensors = reg }
}

// WithAgentID fixes the id, overriding any id the agent declares.
func WithAgentID(id message.AgentID) SpawnOption {
	return func(c *spawnConfig) { c.id = id }
}

// Runtime schedules agent hosts. It is safe for concurrent use; agents may
// be spawned and despawned while Run is active.
type Runtime struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu         sync.RWMutex
	hosts      map[message.AgentID]*agent.Host
	order      []*agent.Host
	tombstones *lru.Cache[message.AgentID, agent.Status]
	stopping   bool

	stopOnce sync.Once
	stopCh   chan struct{}
	running  atomic.Bool
}

// New creates a Runtime. Invalid settings fall back to DefaultConfig values.
func New(cfg Config, logger zerolog.Logger, opts ...Option) *Runtime {
	def := DefaultConfig()
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.MailboxCapacity < 0 {
		cfg.MailboxCapacity = def.MailboxCapacity
	}
	if cfg.TombstoneLimit < 1 {
		cfg.TombstoneLimit = def.TombstoneLimit
	}
	r := &Runtime{
		cfg:        cfg,
		logger:     logger.With().Str("component", "runtime").Logger(),
		hosts:      make(map[message.AgentID]*agent.Host),
		tombstones: lru.New[message.AgentID, agent.Status](cfg.TombstoneLimit),
		stopCh:     make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.tracer == nil {
		r.tracer = telemetry.Tracer()
	}
	return r
}

// Config returns the effective configuration.
func (r *Runtime) Config() Config { return r.cfg }

// Metrics returns the runtime's metrics.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// CreateMailbox builds a mailbox with the configured capacity and policy.
func (r *Runtime) CreateMailbox() *mailbox.Mailbox {
	return mailbox.New(r.cfg.MailboxCapacity, r.cfg.OverflowPolicy)
}

// Spawn registers a and schedules it for initialization on the next round.
func (r *Runtime) Spawn(a agent.Agent, opts ...SpawnOption) (message.AgentID, error) {
	var sc spawnConfig
	for _, o := range opts {
		o(&sc)
	}
	id := resolveID(a, sc.id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopping {
		return "", fmt.Errorf("runtime: spawn %s: %w", id, perrors.ErrRuntimeStopped)
	}
	if _, exists := r.hosts[id]; exists {
		r.metrics.RecordSpawn("duplicate")
		return "", fmt.Errorf("runtime: spawn %s: %w", id, perrors.ErrDuplicateIdentity)
	}
	if err := r.register(id, a, sc); err != nil {
		return "", err
	}
	return id, nil
}

// SpawnMany registers a batch. Either every agent is registered or none is.
func (r *Runtime) SpawnMany(agents []agent.Agent, opts ...SpawnOption) ([]message.AgentID, error) {
	var sc spawnConfig
	for _, o := range opts {
		o(&sc)
	}
	if sc.id != "" || sc.mailbox != nil {
		return nil, fmt.Errorf("runtime: spawn many: agent id and mailbox options are per-agent")
	}

	ids := make([]message.AgentID, len(agents))
	seen := make(map[message.AgentID]struct{}, len(agents))
	for i, a := range agents {
		ids[i] = resolveID(a, "")
		if _, dup := seen[ids[i]]; dup {
			return nil, fmt.Errorf("runtime: spawn many: %s appears twice: %w", ids[i], perrors.ErrDuplicateIdentity)
		}
		seen[ids[i]] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopping {
		return nil, fmt.Errorf("runtime: spawn many: %w", perrors.ErrRuntimeStopped)
	}
	for _, id := range ids {
		if _, exists := r.hosts[id]; exists {
			r.metrics.RecordSpawn("duplicate")
			return nil, fmt.Errorf("runtime: spawn many: %s: %w", id, perrors.ErrDuplicateIdentity)
		}
	}
	for i, a := range agents {
		if err := r.register(ids[i], a, sc); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func resolveID(a agent.Agent, override message.AgentID) message.AgentID {
	if !override.IsZero() {
		return override
	}
	if ia, ok := a.(agent.Identified); ok && !ia.AgentID().IsZero() {
		return ia.AgentID()
	}
	return message.NewAgentID()
}

// register must be called with r.mu held for writing.
func (r *Runtime) register(id message.AgentID, a agent.Agent, sc spawnConfig) error {
	mb := sc.mailbox
	if mb == nil {
		mb = r.CreateMailbox()
	}
	if err := mb.Attach(); err != nil {
		return fmt.Errorf("runtime: spawn %s: %w", id, err)
	}
	h := agent.NewHost(agent.HostConfig{
		ID:          id,
		Agent:       a,
		Mailbox:     mb,
		Router:      r,
		Sensors:     sc.sensors,
		Logger:      r.logger,
		TickTimeout: r.cfg.TickTimeout,
	})
	if err := h.Admit(); err != nil {
		mb.Release()
		return fmt.Errorf("runtime: spawn %s: %w", id, err)
	}
	r.hosts[id] = h
	r.order = append(r.order, h)
	r.tombstones.Delete(id)
	r.metrics.RecordSpawn("ok")
	h.Logger().Info().Msg("agent spawned")
	return nil
}

// Despawn asks an agent to stop. It reaches ShuttingDown on its next tick.
// Despawning a terminated agent is a no-op.
func (r *Runtime) Despawn(id message.AgentID) error {
	r.mu.RLock()
	h, live := r.hosts[id]
	dead := r.tombstones.Contains(id)
	r.mu.RUnlock()

	switch {
	case live:
		h.Stop()
		h.Logger().Info().Msg("despawn requested")
		return nil
	case dead:
		return nil
	default:
		return fmt.Errorf("runtime: despawn %s: %w", id, perrors.ErrUnknownAgent)
	}
}

// Stop despawns every agent and refuses further spawns. Run returns once all
// agents have terminated.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopping = true
		hosts := append([]*agent.Host(nil), r.order...)
		r.mu.Unlock()

		for _, h := range hosts {
			h.Stop()
		}
		close(r.stopCh)
		r.logger.Info().Int("agents", len(hosts)).Msg("runtime stopping")
	})
}

// Running reports whether Run is active.
func (r *Runtime) Running() bool { return r.running.Load() }

// Len returns the number of registered agents.
func (r *Runtime) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hosts)
}

// Status returns a snapshot for a registered or terminated agent.
func (r *Runtime) Status(id message.AgentID) (agent.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.hosts[id]; ok {
		return h.Status(), nil
	}
	if st, ok := r.tombstones.Get(id); ok {
		return st, nil
	}
	return agent.Status{}, fmt.Errorf("runtime: status %s: %w", id, perrors.ErrUnknownAgent)
}

// Statuses returns registered agents in spawn order, then terminated ones
// by id.
func (r *Runtime) Statuses() []agent.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dead := r.tombstones.Values()
	out := make([]agent.Status, 0, len(r.order)+len(dead))
	for _, h := range r.order {
		out = append(out, h.Status())
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i].ID < dead[j].ID })
	return append(out, dead...)
}

// Run drives every agent until all have terminated. A Stop or a cancelled
// ctx despawns everything and Run keeps ticking until shutdown completes; it
// then returns nil after Stop or ctx.Err() after cancellation.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("runtime: already running")
	}
	defer r.running.Store(false)

	r.logger.Info().
		Int("agents", r.Len()).
		Int("concurrency", r.cfg.MaxConcurrency).
		Msg("runtime started")

	var cancelErr error
	for round := uint64(1); ; round++ {
		if cancelErr == nil && ctx.Err() != nil {
			cancelErr = ctx.Err()
			ctx = context.WithoutCancel(ctx)
			r.Stop()
		}

		hosts := r.live()
		if len(hosts) == 0 {
			r.logger.Info().Uint64("rounds", round-1).Msg("runtime quiescent")
			return cancelErr
		}

		r.round(ctx, round, hosts)
		r.reap()

		if r.cfg.RoundInterval > 0 {
			r.pause(ctx)
		}
	}
}

func (r *Runtime) pause(ctx context.Context) {
	t := time.NewTimer(r.cfg.RoundInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-r.stopCh:
	}
}

func (r *Runtime) live() []*agent.Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*agent.Host(nil), r.order...)
}

// round offers each host one tick on a pool of MaxConcurrency workers.
func (r *Runtime) round(ctx context.Context, n uint64, hosts []*agent.Host) {
	ctx, span := r.tracer.Start(ctx, "scheduler.round", trace.WithAttributes(
		attribute.Int64("round", int64(n)),
		attribute.Int("agents", len(hosts)),
	))
	defer span.End()

	workers := min(r.cfg.MaxConcurrency, len(hosts))
	work := make(chan *agent.Host)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for h := range work {
				r.tick(ctx, h)
			}
		}()
	}
	for _, h := range hosts {
		work <- h
	}
	close(work)
	wg.Wait()
	r.metrics.RecordRound()
}

func (r *Runtime) tick(ctx context.Context, h *agent.Host) {
	ctx, span := r.tracer.Start(ctx, "agent.tick",
		trace.WithAttributes(telemetry.AgentAttrs(h.ID().String(), h.Name())...))
	defer span.End()

	res := h.Tick(ctx)
	if !res.Ran {
		return
	}
	span.SetAttributes(
		attribute.String("agent.phase", string(res.Phase)),
		attribute.String("agent.state", res.To.String()),
	)
	r.metrics.ObserveTick(string(res.Phase), res.Duration.Seconds())
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "lifecycle callback failed")
		r.metrics.RecordFault(string(res.Phase))
	}
}

// reap deregisters terminated hosts. Taking the write lock excludes Send, so
// no message is routed to a host whose mailbox is being closed.
func (r *Runtime) reap() {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int, len(agent.AllStates()))
	kept := r.order[:0]
	for _, h := range r.order {
		st := h.State()
		if !st.Terminal() {
			kept = append(kept, h)
			counts[st.String()]++
			continue
		}
		h.Mailbox().Close()
		delete(r.hosts, h.ID())
		if old, ok := r.tombstones.Put(h.ID(), h.Status()); ok {
			r.logger.Debug().Str("agent_id", old.String()).Msg("tombstone evicted")
		}
		ev := h.Logger().Info()
		if f := h.Fault(); f != nil {
			ev = h.Logger().Warn().Err(f)
		}
		ev.Msg("agent deregistered")
	}
	for i := len(kept); i < len(r.order); i++ {
		r.order[i] = nil
	}
	r.order = kept
	r.metrics.SetHostStates(counts)
}
