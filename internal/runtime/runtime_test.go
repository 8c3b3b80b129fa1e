package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/agentropic/internal/agent"
	"github.com/p-blackswan/agentropic/internal/bdi"
	"github.com/p-blackswan/agentropic/internal/belief"
	perrors "github.com/p-blackswan/agentropic/internal/errors"
	"github.com/p-blackswan/agentropic/internal/goal"
	"github.com/p-blackswan/agentropic/internal/mailbox"
	"github.com/p-blackswan/agentropic/internal/message"
	"github.com/p-blackswan/agentropic/internal/planner"
	"github.com/p-blackswan/agentropic/internal/runtime"
)

func newRuntime(cfg runtime.Config) *runtime.Runtime {
	return runtime.New(cfg, zerolog.Nop())
}

// run drives rt to quiescence and fails the test if that takes too long.
func run(t *testing.T, ctx context.Context, rt *runtime.Runtime) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		rt.Stop()
		t.Fatal("runtime did not reach quiescence")
		return nil
	}
}

// namedAgent has a fixed id.
type namedAgent struct {
	agent.Funcs
	id message.AgentID
}

func (n *namedAgent) AgentID() message.AgentID { return n.id }

func fixed(id string, f agent.Funcs) *namedAgent {
	f.AgentName = id
	return &namedAgent{Funcs: f, id: message.AgentID(id)}
}

// stopAfter returns an Execute func that despawns its own agent after n ticks.
func stopAfter(rt *runtime.Runtime, n int, each func(agent.Context)) func(agent.Context) error {
	count := 0
	return func(ctx agent.Context) error {
		count++
		if each != nil {
			each(ctx)
		}
		if count >= n {
			return rt.Despawn(ctx.Self())
		}
		return nil
	}
}

func TestRun_EmptyRuntimeIsQuiescent(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	assert.NoError(t, run(t, context.Background(), rt))
	assert.Equal(t, 4, rt.Config().MaxConcurrency)
}

func TestRun_AlreadyRunning(t *testing.T) {
	rt := newRuntime(runtime.Config{MaxConcurrency: 1})
	release := make(chan struct{})
	_, err := rt.Spawn(&agent.Funcs{OnExecute: func(ctx agent.Context) error {
		<-release
		return rt.Despawn(ctx.Self())
	}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()
	require.Eventually(t, rt.Running, time.Second, time.Millisecond)
	assert.Error(t, rt.Run(context.Background()))
	close(release)
	assert.NoError(t, <-done)
}

func TestSpawn_DuplicateIdentityLeavesRegistryUnchanged(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	id, err := rt.Spawn(fixed("dispatcher", agent.Funcs{}))
	require.NoError(t, err)
	assert.Equal(t, message.AgentID("dispatcher"), id)

	_, err = rt.Spawn(fixed("dispatcher", agent.Funcs{}))
	assert.ErrorIs(t, err, perrors.ErrDuplicateIdentity)
	assert.Equal(t, 1, rt.Len())

	st, err := rt.Status("dispatcher")
	require.NoError(t, err)
	assert.Equal(t, agent.StateInitializing, st.State)
	assert.Equal(t, 2.0, testutil.ToFloat64(rt.Metrics().SpawnsTotal.WithLabelValues("ok"))+
		testutil.ToFloat64(rt.Metrics().SpawnsTotal.WithLabelValues("duplicate")))
}

func TestSpawn_GeneratedIDsAreUnique(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	seen := map[message.AgentID]bool{}
	for i := 0; i < 50; i++ {
		id, err := rt.Spawn(&agent.Funcs{})
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Equal(t, 50, rt.Len())
}

func TestSpawn_WithAgentIDOverride(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	id, err := rt.Spawn(fixed("declared", agent.Funcs{}), runtime.WithAgentID("override"))
	require.NoError(t, err)
	assert.Equal(t, message.AgentID("override"), id)
}

func TestSpawnMany_AllOrNothing(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	_, err := rt.Spawn(fixed("taken", agent.Funcs{}))
	require.NoError(t, err)

	_, err = rt.SpawnMany([]agent.Agent{fixed("a", agent.Funcs{}), fixed("taken", agent.Funcs{})})
	assert.ErrorIs(t, err, perrors.ErrDuplicateIdentity)
	assert.Equal(t, 1, rt.Len())

	_, err = rt.SpawnMany([]agent.Agent{fixed("b", agent.Funcs{}), fixed("b", agent.Funcs{})})
	assert.ErrorIs(t, err, perrors.ErrDuplicateIdentity)
	assert.Equal(t, 1, rt.Len())

	ids, err := rt.SpawnMany([]agent.Agent{fixed("a", agent.Funcs{}), &agent.Funcs{}, &agent.Funcs{}})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, message.AgentID("a"), ids[0])
	assert.Equal(t, 4, rt.Len())

	_, err = rt.SpawnMany([]agent.Agent{&agent.Funcs{}}, runtime.WithMailbox(rt.CreateMailbox()))
	assert.Error(t, err)
}

func TestSend_UnknownRecipient(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	id, err := rt.Spawn(fixed("b", agent.Funcs{}))
	require.NoError(t, err)

	err = rt.Send(message.NewText(id, "nobody", message.Inform, "hello"))
	assert.ErrorIs(t, err, perrors.ErrUnknownRecipient)
	var re *perrors.RoutingError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "nobody", re.Receiver)

	st, _ := rt.Status(id)
	assert.Equal(t, 0, st.MailboxDepth)
}

func TestSend_ToTerminatedAgentFails(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	id, err := rt.Spawn(fixed("short-lived", agent.Funcs{}))
	require.NoError(t, err)
	require.NoError(t, rt.Despawn(id))
	require.NoError(t, run(t, context.Background(), rt))

	err = rt.Send(message.NewText("x", id, message.Inform, "late"))
	assert.ErrorIs(t, err, perrors.ErrUnknownRecipient)

	st, err := rt.Status(id)
	require.NoError(t, err, "terminated agents keep a status")
	assert.Equal(t, agent.StateTerminated, st.State)
	assert.Equal(t, 0, rt.Len())
	assert.NoError(t, rt.Despawn(id), "despawn is idempotent for terminated agents")
}

func TestDespawn_UnknownAgent(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	assert.ErrorIs(t, rt.Despawn("ghost"), perrors.ErrUnknownAgent)
	_, err := rt.Status("ghost")
	assert.ErrorIs(t, err, perrors.ErrUnknownAgent)
}

func TestSend_CapacityOneRejectNew(t *testing.T) {
	rt := newRuntime(runtime.Config{MailboxCapacity: 1, OverflowPolicy: mailbox.RejectNew})
	id, err := rt.Spawn(fixed("b", agent.Funcs{}))
	require.NoError(t, err)

	require.NoError(t, rt.Send(message.NewText("a", id, message.Inform, "first")))
	err = rt.Send(message.NewText("a", id, message.Inform, "second"))
	assert.ErrorIs(t, err, perrors.ErrMailboxOverflow)
	assert.True(t, perrors.IsRetryable(err))

	st, _ := rt.Status(id)
	assert.Equal(t, 1, st.MailboxDepth)
	assert.Equal(t, 1.0, testutil.ToFloat64(rt.Metrics().MessagesRejected.WithLabelValues("overflow")))
}

func TestSend_DropOldest(t *testing.T) {
	rt := newRuntime(runtime.Config{MailboxCapacity: 2, OverflowPolicy: mailbox.DropOldest})
	var got []string
	b := fixed("b", agent.Funcs{OnExecute: func(ctx agent.Context) error {
		for {
			m, ok := ctx.TryReceive()
			if !ok {
				break
			}
			got = append(got, m.Text())
		}
		return rt.Despawn(ctx.Self())
	}})
	_, err := rt.Spawn(b)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		require.NoError(t, rt.Send(message.NewText("a", "b", message.Inform, strconv.Itoa(i))))
	}
	require.NoError(t, run(t, context.Background(), rt))
	assert.Equal(t, []string{"2", "3"}, got)

	st, _ := rt.Status("b")
	assert.Equal(t, uint64(1), st.Dropped)
}

func TestSend_WithCreatedMailbox(t *testing.T) {
	rt := newRuntime(runtime.Config{MailboxCapacity: 3})
	mb := rt.CreateMailbox()
	assert.Equal(t, 3, mb.Capacity())

	id, err := rt.Spawn(&agent.Funcs{}, runtime.WithMailbox(mb))
	require.NoError(t, err)
	require.NoError(t, rt.Send(message.NewText("x", id, message.Inform, "hi")))
	assert.Equal(t, 1, mb.Len())
}

func TestSpawn_MailboxServesOneAgent(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	mb := rt.CreateMailbox()

	_, err := rt.Spawn(fixed("a", agent.Funcs{}), runtime.WithMailbox(mb))
	require.NoError(t, err)
	_, err = rt.Spawn(fixed("b", agent.Funcs{}), runtime.WithMailbox(mb))
	assert.ErrorIs(t, err, perrors.ErrMailboxInUse)
	assert.True(t, mb.Attached())

	_, err = rt.Status("b")
	assert.ErrorIs(t, err, perrors.ErrUnknownAgent)

	require.NoError(t, rt.Send(message.NewText("x", "a", message.Inform, "hi")))
	assert.Equal(t, 1, mb.Len())
}

func TestRouting_FIFOPerSender(t *testing.T) {
	const n = 200
	rt := newRuntime(runtime.Config{MaxConcurrency: 4})

	var mu sync.Mutex
	received := map[message.AgentID][]int{}
	receiver := fixed("receiver", agent.Funcs{OnExecute: func(ctx agent.Context) error {
		for {
			m, ok := ctx.TryReceive()
			if !ok {
				break
			}
			seq, err := strconv.Atoi(m.Text())
			if err != nil {
				return err
			}
			mu.Lock()
			received[m.Sender()] = append(received[m.Sender()], seq)
			total := 0
			for _, v := range received {
				total += len(v)
			}
			mu.Unlock()
			if total == 3*n {
				return rt.Despawn(ctx.Self())
			}
		}
		return nil
	}})
	_, err := rt.Spawn(receiver)
	require.NoError(t, err)

	for s := 0; s < 3; s++ {
		next := 0
		_, err := rt.Spawn(&agent.Funcs{OnExecute: func(ctx agent.Context) error {
			for i := 0; i < 10 && next < n; i++ {
				if err := ctx.Tell("receiver", message.Inform, []byte(strconv.Itoa(next))); err != nil {
					return err
				}
				next++
			}
			if next == n {
				return rt.Despawn(ctx.Self())
			}
			return nil
		}})
		require.NoError(t, err)
	}

	require.NoError(t, run(t, context.Background(), rt))
	require.Len(t, received, 3)
	for sender, seqs := range received {
		require.Len(t, seqs, n, "sender %s", sender)
		for i, v := range seqs {
			require.Equal(t, i, v, "sender %s out of order", sender)
		}
	}
}

func TestLifecycle_DespawnWithinOneTick(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	var execs, shutdownAt atomic.Int32
	var lastTick atomic.Uint64
	a := fixed("a", agent.Funcs{
		OnExecute: stopAfter(rt, 3, func(ctx agent.Context) {
			execs.Add(1)
			lastTick.Store(ctx.Tick())
		}),
		OnShutdown: func(ctx agent.Context) error {
			shutdownAt.Store(int32(ctx.Tick()))
			return nil
		},
	})
	_, err := rt.Spawn(a)
	require.NoError(t, err)
	require.NoError(t, run(t, context.Background(), rt))

	assert.Equal(t, int32(3), execs.Load(), "no execute after the despawn request")
	assert.Equal(t, int32(lastTick.Load()+1), shutdownAt.Load(), "shutdown on the very next tick")

	st, _ := rt.Status("a")
	assert.Equal(t, agent.StateTerminated, st.State)
	assert.NoError(t, st.Fault)
}

func TestLifecycle_InitializeFailure(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	var execs, shutdowns atomic.Int32
	_, err := rt.Spawn(fixed("broken", agent.Funcs{
		OnInit:     func(agent.Context) error { return errors.New("bad wiring") },
		OnExecute:  func(agent.Context) error { execs.Add(1); return nil },
		OnShutdown: func(agent.Context) error { shutdowns.Add(1); return nil },
	}))
	require.NoError(t, err)
	require.NoError(t, run(t, context.Background(), rt))

	st, err := rt.Status("broken")
	require.NoError(t, err)
	assert.Equal(t, agent.StateTerminated, st.State)
	assert.ErrorIs(t, st.Fault, perrors.ErrLifecycleCallbackFailed)
	var cbErr *perrors.LifecycleCallbackError
	require.ErrorAs(t, st.Fault, &cbErr)
	assert.Equal(t, perrors.PhaseInitialize, cbErr.Phase)
	assert.Equal(t, int32(0), execs.Load())
	assert.Equal(t, int32(1), shutdowns.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(rt.Metrics().FaultsTotal.WithLabelValues("initialize")))
}

func TestLifecycle_FaultDoesNotAffectOthers(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	var healthy atomic.Int32
	_, err := rt.Spawn(fixed("panicky", agent.Funcs{OnExecute: func(agent.Context) error { panic("boom") }}))
	require.NoError(t, err)
	_, err = rt.Spawn(fixed("healthy", agent.Funcs{OnExecute: stopAfter(rt, 5, func(agent.Context) { healthy.Add(1) })}))
	require.NoError(t, err)

	require.NoError(t, run(t, context.Background(), rt))
	assert.Equal(t, int32(5), healthy.Load())

	st, _ := rt.Status("panicky")
	assert.ErrorContains(t, st.Fault, "panic: boom")
	st, _ = rt.Status("healthy")
	assert.NoError(t, st.Fault)
}

func TestScheduler_RespectsMaxConcurrency(t *testing.T) {
	const limit = 2
	rt := newRuntime(runtime.Config{MaxConcurrency: limit})
	var inFlight, peak atomic.Int32
	var overlaps atomic.Int32

	for i := 0; i < 6; i++ {
		var busy atomic.Bool
		_, err := rt.Spawn(&agent.Funcs{OnExecute: stopAfter(rt, 5, func(agent.Context) {
			if !busy.CompareAndSwap(false, true) {
				overlaps.Add(1)
			}
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			busy.Store(false)
		})})
		require.NoError(t, err)
	}

	require.NoError(t, run(t, context.Background(), rt))
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, int32(0), overlaps.Load())
}

func TestRun_StopDrainsAllAgents(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	var shutdowns atomic.Int32
	for i := 0; i < 5; i++ {
		_, err := rt.Spawn(&agent.Funcs{
			OnShutdown: func(agent.Context) error { shutdowns.Add(1); return nil },
		})
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	rt.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}
	assert.Equal(t, int32(5), shutdowns.Load())
	assert.Equal(t, 0, rt.Len())

	_, err := rt.Spawn(&agent.Funcs{})
	assert.ErrorIs(t, err, perrors.ErrRuntimeStopped)
}

func TestRun_ContextCancelShutsDownAgents(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	var shutdowns atomic.Int32
	for _, id := range []string{"observer", "worker"} {
		_, err := rt.Spawn(fixed(id, agent.Funcs{
			OnShutdown: func(agent.Context) error { shutdowns.Add(1); return nil },
		}))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := run(t, ctx, rt)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, int32(2), shutdowns.Load())
	statuses := rt.Statuses()
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.Equal(t, agent.StateTerminated, st.State, "agent %s", st.ID)
	}
	assert.False(t, rt.Running())
}

func TestRun_AgentsSpawnedDuringRunJoin(t *testing.T) {
	rt := newRuntime(runtime.Config{})
	var childTicks atomic.Int32
	spawned := false
	_, err := rt.Spawn(fixed("parent", agent.Funcs{OnExecute: func(ctx agent.Context) error {
		if !spawned {
			spawned = true
			_, err := rt.Spawn(fixed("child", agent.Funcs{
				OnExecute: stopAfter(rt, 2, func(agent.Context) { childTicks.Add(1) }),
			}))
			return err
		}
		return rt.Despawn(ctx.Self())
	}}))
	require.NoError(t, err)

	require.NoError(t, run(t, context.Background(), rt))
	assert.Equal(t, int32(2), childTicks.Load())
	assert.Len(t, rt.Statuses(), 2)
}

func TestPackageReadyScenario(t *testing.T) {
	rt := newRuntime(runtime.Config{MaxConcurrency: 1})
	depthBefore, depthAfter := -1, -1
	var got message.Message

	_, err := rt.Spawn(fixed("A", agent.Funcs{OnExecute: func(ctx agent.Context) error {
		if err := ctx.Tell("B", message.Inform, []byte("package_ready")); err != nil {
			return err
		}
		st, err := rt.Status("B")
		if err != nil {
			return err
		}
		depthBefore = st.MailboxDepth
		return rt.Despawn(ctx.Self())
	}}))
	require.NoError(t, err)

	waiting := true
	_, err = rt.Spawn(fixed("B", agent.Funcs{OnExecute: func(ctx agent.Context) error {
		if !waiting {
			return rt.Despawn(ctx.Self())
		}
		if ctx.Pending() == 0 {
			return nil
		}
		m, ok := ctx.TryReceive()
		if !ok {
			return fmt.Errorf("pending but nothing received")
		}
		got = m
		depthAfter = ctx.Pending()
		waiting = false
		return nil
	}}))
	require.NoError(t, err)

	require.NoError(t, run(t, context.Background(), rt))
	assert.Equal(t, 1, depthBefore)
	assert.Equal(t, 0, depthAfter)
	assert.Equal(t, "package_ready", got.Text())
	assert.Equal(t, message.AgentID("A"), got.Sender())
	assert.Equal(t, message.Inform, got.Performative())
}

// TestFairness_EqualPriorityGoalsAcrossAgents runs several BDI agents that
// each hold equal-priority goals whose plans send to a shared sink. Every
// goal must be achieved: no agent or goal is starved.
func TestFairness_EqualPriorityGoalsAcrossAgents(t *testing.T) {
	const agents, goalsPerAgent = 5, 4
	rt := newRuntime(runtime.Config{MaxConcurrency: 3})

	arrivals := map[string]int{}
	drain := func(ctx agent.Context) error {
		for {
			m, ok := ctx.TryReceive()
			if !ok {
				return nil
			}
			arrivals[m.Text()]++
		}
	}
	_, err := rt.Spawn(fixed("sink", agent.Funcs{OnExecute: drain, OnShutdown: drain}))
	require.NoError(t, err)

	lib := planner.NewLibrary(planner.Rule{
		Trigger: "report",
		Build: func(g goal.Goal, _ belief.View) []planner.Step {
			return []planner.Step{
				planner.Tell("sink", message.Inform, []byte(g.ID)),
				planner.AssertBelief("reported", g.ID),
			}
		},
	})

	var engines []*bdi.Engine
	for i := 0; i < agents; i++ {
		e := bdi.NewEngine(lib, zerolog.Nop())
		engines = append(engines, e)
		var gs []goal.Goal
		for j := 0; j < goalsPerAgent; j++ {
			gs = append(gs, goal.New("report", 1, goal.WithID(fmt.Sprintf("a%d-g%d", i, j))))
		}
		_, err := rt.Spawn(bdi.NewAgent(e,
			bdi.WithID(message.AgentID(fmt.Sprintf("worker-%d", i))),
			bdi.WithGoals(gs...),
			bdi.WithCycleHook(func(ctx agent.Context, _ bdi.Report) {
				if e.Desires().Len() == 0 {
					_ = rt.Despawn(ctx.Self())
				}
			}),
		))
		require.NoError(t, err)
	}

	go func() {
		for rt.Len() > 1 {
			time.Sleep(time.Millisecond)
		}
		_ = rt.Despawn("sink")
	}()
	require.NoError(t, run(t, context.Background(), rt))

	for i, e := range engines {
		assert.Equal(t, goalsPerAgent, e.Achieved(), "worker-%d starved", i)
		for j := 0; j < goalsPerAgent; j++ {
			id := fmt.Sprintf("a%d-g%d", i, j)
			assert.True(t, e.Beliefs().Holds("reported", id))
			assert.Equal(t, 1, arrivals[id], "goal %s", id)
		}
	}
}

func TestTombstones_BoundedByLimit(t *testing.T) {
	rt := newRuntime(runtime.Config{TombstoneLimit: 2})
	for _, id := range []string{"a", "b", "c"} {
		_, err := rt.Spawn(fixed(id, agent.Funcs{}))
		require.NoError(t, err)
		require.NoError(t, rt.Despawn(message.AgentID(id)))
	}
	require.NoError(t, run(t, context.Background(), rt))

	statuses := rt.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, message.AgentID("b"), statuses[0].ID)
	assert.Equal(t, message.AgentID("c"), statuses[1].ID)

	_, err := rt.Status("a")
	assert.ErrorIs(t, err, perrors.ErrUnknownAgent)

	_, err = rt.Spawn(fixed("b", agent.Funcs{}))
	require.NoError(t, err, "a terminated id can be reused")
	assert.Len(t, rt.Statuses(), 2)
}
