package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/narrator"
	"github.com/agentarium/worldengine/pkg/world"
)

// KernelParams wires one world engine instance.
type KernelParams struct {
	SessionID string
	State     *world.State
	Rules     RuleEngine
	Arbiter   Arbiter
	Scheduler Scheduler
	Hooks     StepHooks
	Log       eventlog.Store
	Narrator  narrator.Narrator // optional
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Kernel owns one world's state and runs the shared step loop:
// arbitrate, validate+apply, enforce constraints, advance, terminate.
// All mutation happens under its lock; snapshots are deep copies.
type Kernel struct {
	mu        sync.Mutex
	sessionID string
	state     *world.State
	initial   *world.State
	rules     RuleEngine
	arbiter   Arbiter
	scheduler Scheduler
	hooks     StepHooks
	log       eventlog.Store
	narr      narrator.Narrator
	logger    *slog.Logger
	clock     func() time.Time
}

// NewKernel builds a kernel around an already-initialized state. The
// initial state is retained as the Reset target.
func NewKernel(p KernelParams) *Kernel {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Kernel{
		sessionID: p.SessionID,
		state:     p.State,
		initial:   p.State.Clone(),
		rules:     p.Rules,
		arbiter:   p.Arbiter,
		scheduler: p.Scheduler,
		hooks:     p.Hooks,
		log:       p.Log,
		narr:      p.Narrator,
		logger:    logger.With("session_id", p.SessionID, "world_type", p.State.WorldType),
		clock:     clock,
	}
}

// SessionID returns the owning session's id.
func (k *Kernel) SessionID() string { return k.sessionID }

// Kind returns the world kind this kernel drives.
func (k *Kernel) Kind() world.Kind {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.WorldType
}

// Narrator returns the attached narrator, or nil when none is configured.
func (k *Kernel) Narrator() narrator.Narrator { return k.narr }

// Logger returns the kernel's contextual logger for use by kind hooks.
func (k *Kernel) Logger() *slog.Logger { return k.logger }

// Now returns the kernel clock's current time.
func (k *Kernel) Now() time.Time { return k.clock() }

// Scheduler returns the kind scheduler for use by session-level callers
// (time scale adjustment).
func (k *Kernel) Scheduler() Scheduler { return k.scheduler }

// Step implements the kernel step algorithm. It is a no-op returning empty
// results once the world has terminated.
func (k *Kernel) Step(ctx context.Context, actions []world.Action) ([]world.ActionResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.state.IsTerminated {
		return []world.ActionResult{}, nil
	}

	results := make([]world.ActionResult, 0, len(actions))

	// Kind-specific step opening.
	if err := k.appendAll(ctx, k.hooks.StepStartEvents(k.state)); err != nil {
		return nil, err
	}

	// Arbitration. Kinds that report dropped actions (Game) get one
	// failing result and one event per drop, in submission order.
	resolved := k.arbiter.ResolveConflicts(actions, k.state)
	if rejType, reason := k.hooks.ArbiterRejection(); rejType != "" {
		resolvedIDs := make(map[string]bool, len(resolved))
		for _, a := range resolved {
			resolvedIDs[a.ActionID] = true
		}
		for _, a := range actions {
			if resolvedIDs[a.ActionID] {
				continue
			}
			ev := world.Event{
				EventType: rejType,
				Source:    world.SourceSystem,
				Content:   reason,
				Meta: map[string]any{
					"agentId":    a.AgentID,
					"actionType": a.ActionType,
					"reason":     reason,
				},
			}
			if err := k.append(ctx, &ev); err != nil {
				return nil, err
			}
			results = append(results, world.ActionResult{
				Action:        a,
				Success:       false,
				FailureReason: reason,
				Events:        []world.Event{ev},
			})
		}
	}

	// Validate and apply in arbiter order. Events from one action are
	// appended before the next action runs.
	applied := 0
	for _, a := range resolved {
		v := k.rules.Validate(a, k.state)
		if !v.IsValid {
			reason := strings.Join(v.Errors, "; ")
			ev := world.Event{
				EventType: k.hooks.ValidationRejectionType(),
				Source:    world.SourceSystem,
				Content:   reason,
				Meta: map[string]any{
					"agentId":    a.AgentID,
					"actionType": a.ActionType,
					"errors":     v.Errors,
				},
			}
			if err := k.append(ctx, &ev); err != nil {
				return nil, err
			}
			results = append(results, world.ActionResult{
				Action:        a,
				Success:       false,
				FailureReason: reason,
				Events:        []world.Event{ev},
			})
			continue
		}
		if len(v.Warnings) > 0 {
			k.logger.Warn("action validated with warnings",
				"agent_id", a.AgentID,
				"action_type", a.ActionType,
				"warnings", strings.Join(v.Warnings, "; "))
		}

		r := k.rules.Apply(a, k.state)
		for i := range r.Events {
			if err := k.append(ctx, &r.Events[i]); err != nil {
				return nil, err
			}
		}
		if r.Success {
			applied++
			k.hooks.PostApply(a, &r, k.state)
		}
		results = append(results, r)
	}

	// Idle escalation when nothing was applied this step.
	if applied == 0 {
		if err := k.appendAll(ctx, k.hooks.IdleStep(ctx, k.state)); err != nil {
			return nil, err
		}
	}

	// Constraint sweep.
	cr := k.rules.EnforceConstraints(k.state)
	if err := k.appendAll(ctx, cr.Events); err != nil {
		return nil, err
	}

	// Time advancement: phase switches, turn rotation, tick increments.
	if err := k.appendAll(ctx, k.hooks.Advance(ctx, k.state)); err != nil {
		return nil, err
	}

	// Termination check.
	if !k.state.IsTerminated {
		if done, reason := k.scheduler.ShouldTerminate(k.state); done {
			k.state.IsTerminated = true
			k.state.TerminationReason = reason
			ev := k.hooks.EndEvent(ctx, k.state, reason)
			if err := k.append(ctx, &ev); err != nil {
				return nil, err
			}
			k.logger.Info("world terminated", "reason", reason)
		}
	}

	return results, nil
}

// append stamps identity, time, and sequence onto the event and stores it.
// A store failure is fatal for the session and is surfaced unwrapped by
// Step so the driver can fail the session.
func (k *Kernel) append(ctx context.Context, ev *world.Event) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = k.clock()
	}
	if ev.Source == "" {
		ev.Source = world.SourceSystem
	}
	if err := k.log.Append(ctx, k.sessionID, ev); err != nil {
		return fmt.Errorf("failed to append %s event: %w", ev.EventType, err)
	}
	return nil
}

func (k *Kernel) appendAll(ctx context.Context, events []world.Event) error {
	for i := range events {
		if err := k.append(ctx, &events[i]); err != nil {
			return err
		}
	}
	return nil
}

// WorldState returns a deep-copied snapshot of the current state.
func (k *Kernel) WorldState() *world.State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.Clone()
}

// Terminated reports whether the world has reached a terminal state.
func (k *Kernel) Terminated() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.IsTerminated
}

// Time returns the current world clock without cloning full state.
func (k *Kernel) Time() world.TimeInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.CurrentTime
}

// ActiveAgents counts agent entities still active in the world,
// independent of whose turn it is.
func (k *Kernel) ActiveAgents() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for _, e := range k.state.Entities {
		if e.Type == world.EntityAgent && e.Status == world.EntityActive {
			n++
		}
	}
	return n
}

// TerminationReason returns the recorded reason, or "" while running.
func (k *Kernel) TerminationReason() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.TerminationReason
}

// Events returns up to limit recent events ascending by sequence.
func (k *Kernel) Events(ctx context.Context, limit int) ([]world.Event, error) {
	return k.log.GetRecent(ctx, k.sessionID, limit)
}

// EligibleAgents defaults to every active agent entity. Kinds with
// stricter turn-taking override this.
func (k *Kernel) EligibleAgents() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	var ids []string
	for id, e := range k.state.Entities {
		if e.Type == world.EntityAgent && e.Status == world.EntityActive {
			ids = append(ids, id)
		}
	}
	return ids
}

// RegisterEntity adds an entity to the world.
func (k *Kernel) RegisterEntity(e *world.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("entity requires an id")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid entity type: %s", e.Type)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.state.Entities[e.ID]; exists {
		return fmt.Errorf("entity %s already registered", e.ID)
	}
	if e.Status == "" {
		e.Status = world.EntityActive
	}
	k.state.Entities[e.ID] = e
	return nil
}

// UnregisterEntity removes an entity from the world.
func (k *Kernel) UnregisterEntity(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.state.Entities[id]; !exists {
		return fmt.Errorf("entity %s not registered", id)
	}
	delete(k.state.Entities, id)
	return nil
}

// Reset restores the post-initialization state and clears the event log.
func (k *Kernel) Reset(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.log.Clear(ctx, k.sessionID); err != nil {
		return fmt.Errorf("failed to clear event log: %w", err)
	}
	k.state = k.initial.Clone()
	return nil
}

// Locked runs fn under the kernel lock. Kind engines use it for
// initialization-time mutation (agent seeding) that must not race Step.
func (k *Kernel) Locked(fn func(s *world.State)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	fn(k.state)
}

// AppendInit appends an event outside a step, used during initialization
// (problem statements, opening turn markers).
func (k *Kernel) AppendInit(ctx context.Context, ev *world.Event) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.append(ctx, ev)
}

// RefreshInitial re-captures the current state as the Reset target. Kind
// engines call this after agent seeding so Reset lands on a fully seeded
// world.
func (k *Kernel) RefreshInitial() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.initial = k.state.Clone()
}
