// Package driver runs one background loop per session. Each cycle collects
// agent actions (external submissions plus optional LLM fan-out), steps the
// engine, and pushes the resulting events and a state snapshot to stream
// subscribers. Pacing follows the world kind: Society advances on a fixed
// tick interval; Debate, Game, and Logic advance once every eligible agent
// has acted or a deadline elapses.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentarium/worldengine/pkg/engine"
	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/world"
)

// ErrStopped is returned by Submit once the driver has been stopped.
var ErrStopped = errors.New("driver stopped")

// Built-in pacing defaults, overridable through Params.
const (
	defaultTickInterval   = 500 * time.Millisecond
	defaultActionDeadline = 5 * time.Second
	defaultCollectTimeout = 30 * time.Second
)

// Broadcaster receives everything the driver pushes to subscribers. Calls
// arrive from the loop goroutine in order; implementations must not block
// on slow clients.
type Broadcaster interface {
	WorldEvent(sessionID string, event world.Event)
	StateUpdate(sessionID string, state *world.State)
	SimulationEnded(sessionID, reason string)
}

// Actor produces one agent's next action during autopilot fan-out. A nil
// action with nil error means the agent idles this step. The state snapshot
// is a deep copy shared read-only across the whole fan-out.
type Actor interface {
	NextAction(ctx context.Context, agentID string, state *world.State) (*world.Action, error)
}

// Params configures a session driver. Engine, Store, and Broadcast are
// required. Actor may be nil; autopilot then collects nothing.
type Params struct {
	Engine    engine.Engine
	Store     eventlog.Store
	Broadcast Broadcaster
	Actor     Actor

	// TickInterval paces interval-driven worlds (Society).
	TickInterval time.Duration
	// ActionDeadline bounds how long event-driven worlds wait for agent
	// actions before stepping with whatever arrived.
	ActionDeadline time.Duration
	// CollectTimeout bounds each per-agent actor call during fan-out.
	CollectTimeout time.Duration

	Logger *slog.Logger

	// OnEnded runs after the loop broadcast a natural termination.
	OnEnded func(reason string)
	// OnFailed runs after an event log failure halted the session.
	OnFailed func(reason string)
}

// Driver is the per-session loop. It owns the action inbox: Submit appends
// under the mutex, the step consumes whatever is present when it fires, and
// late arrivals roll over to the next step.
type Driver struct {
	engine    engine.Engine
	store     eventlog.Store
	broadcast Broadcaster
	actor     Actor

	sessionID      string
	eventDriven    bool
	interval       time.Duration
	collectTimeout time.Duration
	logger         *slog.Logger
	onEnded        func(string)
	onFailed       func(string)

	// ctx is cancelled on Stop so in-flight actor calls unwind promptly.
	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopCh    chan struct{}
	stopOnce  sync.Once
	kickCh    chan struct{}
	wg        sync.WaitGroup

	mu        sync.Mutex
	inbox     []world.Action
	autopilot bool
	paused    bool
	gateCh    chan struct{}

	// lastSeq is touched only from the loop goroutine.
	lastSeq int64
}

// New builds a driver for the session's engine. Pacing is chosen by world
// kind: Society steps every TickInterval, the other kinds wait for agent
// actions up to ActionDeadline.
func New(p Params) *Driver {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tick := p.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}
	deadline := p.ActionDeadline
	if deadline <= 0 {
		deadline = defaultActionDeadline
	}
	collect := p.CollectTimeout
	if collect <= 0 {
		collect = defaultCollectTimeout
	}

	eventDriven := p.Engine.Kind() != world.KindSociety
	interval := tick
	if eventDriven {
		interval = deadline
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		engine:         p.Engine,
		store:          p.Store,
		broadcast:      p.Broadcast,
		actor:          p.Actor,
		sessionID:      p.Engine.SessionID(),
		eventDriven:    eventDriven,
		interval:       interval,
		collectTimeout: collect,
		logger:         logger,
		onEnded:        p.OnEnded,
		onFailed:       p.OnFailed,
		ctx:            ctx,
		cancel:         cancel,
		stopCh:         make(chan struct{}),
		kickCh:         make(chan struct{}, 1),
	}
}

// Start launches the loop goroutine. Calling Start again is a no-op.
func (d *Driver) Start() {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.run()
	})
}

// Stop signals the loop to exit without waiting for it. It is safe to call
// multiple times and from the loop's own callbacks.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.cancel()
	})
}

// Wait blocks until the loop goroutine has exited.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Pause parks the loop at its next boundary. An in-flight step completes
// first. Pausing a paused driver is a no-op.
func (d *Driver) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.paused {
		d.paused = true
		d.gateCh = make(chan struct{})
	}
}

// Resume releases a paused loop. Resuming a running driver is a no-op.
func (d *Driver) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paused {
		d.paused = false
		close(d.gateCh)
	}
}

// SetAutopilot toggles LLM-driven action collection. Enabling it kicks
// event-driven worlds so the first fan-out does not wait out a full
// deadline.
func (d *Driver) SetAutopilot(on bool) {
	d.mu.Lock()
	d.autopilot = on
	d.mu.Unlock()
	if on {
		d.kick()
	}
}

// Submit queues actions for the next step. An event-driven world steps
// early once every currently eligible agent has an action queued.
func (d *Driver) Submit(actions []world.Action) error {
	if d.stopped() {
		return ErrStopped
	}
	if len(actions) == 0 {
		return nil
	}
	d.mu.Lock()
	d.inbox = append(d.inbox, actions...)
	d.mu.Unlock()
	if d.eventDriven && d.inboxCovers(d.engine.EligibleAgents()) {
		d.kick()
	}
	return nil
}

func (d *Driver) stopped() bool {
	select {
	case <-d.stopCh:
		return true
	default:
		return false
	}
}

// kick nudges an event-driven loop to step now instead of waiting out the
// deadline. Interval-driven worlds keep their fixed cadence.
func (d *Driver) kick() {
	if !d.eventDriven {
		return
	}
	select {
	case d.kickCh <- struct{}{}:
	default:
	}
}

func (d *Driver) inboxCovers(agents []string) bool {
	if len(agents) == 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	have := make(map[string]bool, len(d.inbox))
	for _, a := range d.inbox {
		have[a.AgentID] = true
	}
	for _, id := range agents {
		if !have[id] {
			return false
		}
	}
	return true
}

// gate returns the channel the loop must wait on while paused, or nil when
// the loop may proceed.
func (d *Driver) gate() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.paused {
		return nil
	}
	return d.gateCh
}

// run is the main loop.
func (d *Driver) run() {
	defer d.wg.Done()

	log := d.logger.With("session_id", d.sessionID, "world_kind", d.engine.Kind())
	log.Info("Session driver started", "interval", d.interval)

	for {
		if gate := d.gate(); gate != nil {
			log.Debug("Driver paused")
			select {
			case <-d.stopCh:
				log.Info("Driver stopping while paused")
				return
			case <-gate:
				log.Debug("Driver resumed")
			}
		}

		select {
		case <-d.stopCh:
			log.Info("Driver stopping")
			return
		case <-d.kickCh:
		case <-time.After(d.interval):
		}

		if done := d.stepOnce(log); done {
			return
		}
	}
}

// stepOnce runs one collect/step/publish cycle. It returns true when the
// loop should exit: stop was signalled, the world terminated, or the event
// log failed.
func (d *Driver) stepOnce(log *slog.Logger) bool {
	if d.stopped() {
		return true
	}

	actions := d.collect()
	if d.stopped() {
		// Stop arrived during collection. Discard the actions and unwind
		// without touching the world.
		return true
	}

	// Submissions may arrive without ids or timestamps; arbiter drop
	// reporting keys off the action id, so stamp them here.
	now := time.Now()
	for i := range actions {
		if actions[i].ActionID == "" {
			actions[i].ActionID = uuid.New().String()
		}
		if actions[i].Timestamp.IsZero() {
			actions[i].Timestamp = now
		}
	}

	results, err := d.engine.Step(d.ctx, actions)
	if err != nil {
		reason := fmt.Sprintf("event log failure: %v", err)
		log.Error("Step failed, halting session", "error", err)
		d.publishEnded(reason)
		if d.onFailed != nil {
			d.onFailed(reason)
		}
		return true
	}

	d.publishNew(log)
	log.Debug("Step complete", "actions", len(actions), "results", len(results))

	if d.engine.Terminated() {
		reason := d.engine.TerminationReason()
		log.Info("World terminated", "reason", reason)
		d.publishEnded(reason)
		if d.onEnded != nil {
			d.onEnded(reason)
		}
		return true
	}
	return false
}

// collect drains the inbox and, under autopilot, fans out one actor call
// per eligible agent that has not already submitted. Actor failures leave
// the agent idle this step.
func (d *Driver) collect() []world.Action {
	d.mu.Lock()
	actions := d.inbox
	d.inbox = nil
	auto := d.autopilot
	d.mu.Unlock()

	if !auto || d.actor == nil {
		return actions
	}

	queued := make(map[string]bool, len(actions))
	for _, a := range actions {
		queued[a.AgentID] = true
	}
	var poll []string
	for _, id := range d.engine.EligibleAgents() {
		if !queued[id] {
			poll = append(poll, id)
		}
	}
	if len(poll) == 0 {
		return actions
	}

	snapshot := d.engine.WorldState()

	var (
		mu        sync.Mutex
		collected []world.Action
		wg        sync.WaitGroup
	)
	for _, agentID := range poll {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(d.ctx, d.collectTimeout)
			defer cancel()
			action, err := d.actor.NextAction(ctx, agentID, snapshot)
			if err != nil {
				d.logger.Warn("Agent produced no action",
					"session_id", d.sessionID, "agent_id", agentID, "error", err)
				return
			}
			if action == nil {
				return
			}
			action.AgentID = agentID
			mu.Lock()
			collected = append(collected, *action)
			mu.Unlock()
		}(agentID)
	}
	wg.Wait()

	// Fan-out completion order is nondeterministic; arbiters expect a
	// stable input order.
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].AgentID < collected[j].AgentID
	})
	return append(actions, collected...)
}

// publishNew pushes every event appended since the last publish, in
// sequence order, then one state snapshot. It reads with a background
// context: the driver context unwinds on Stop but final events still go
// out.
func (d *Driver) publishNew(log *slog.Logger) {
	events, err := d.store.GetAfterSequence(context.Background(), d.sessionID, d.lastSeq, 0)
	if err != nil {
		log.Warn("Reading new events failed, skipping publish", "error", err)
		return
	}
	for _, ev := range events {
		d.broadcast.WorldEvent(d.sessionID, ev)
		d.lastSeq = ev.Sequence
	}
	d.broadcast.StateUpdate(d.sessionID, d.engine.WorldState())
}

// publishEnded broadcasts termination unless stop was already signalled;
// a manager-initiated end broadcasts from the manager instead.
func (d *Driver) publishEnded(reason string) {
	if d.stopped() {
		return
	}
	d.broadcast.SimulationEnded(d.sessionID, reason)
}
