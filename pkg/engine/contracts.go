// Package engine defines the world-engine kernel: the contracts every
// world kind implements (rules, arbitration, scheduling) and the shared
// step loop that orchestrates them. Kind-specific behavior lives in the
// debate, game, society, and logic sub-packages.
package engine

import (
	"context"

	"github.com/agentarium/worldengine/pkg/world"
)

// ConstraintResult is what a rule engine reports after the per-step
// constraint sweep: descriptive diffs plus any events to append.
type ConstraintResult struct {
	Changes []world.StateChange
	Events  []world.Event
}

// RuleEngine validates actions against world invariants and applies their
// effects. Apply may mutate state and must emit events describing every
// observable change. EnforceConstraints runs once per step after all
// actions have been applied.
type RuleEngine interface {
	Validate(action world.Action, state *world.State) world.Validation
	Apply(action world.Action, state *world.State) world.ActionResult
	EnforceConstraints(state *world.State) ConstraintResult
}

// Arbiter chooses which proposed actions may execute this step and in
// which order. Actions it drops are not validated or applied.
type Arbiter interface {
	ResolveConflicts(actions []world.Action, state *world.State) []world.Action
}

// Scheduler tracks world time and phase progression and decides
// termination. Time mutation itself happens in kind step hooks so each
// world controls when its clock moves relative to constraint checks.
type Scheduler interface {
	CurrentTime(state *world.State) world.TimeInfo
	ShouldAdvancePhase(state *world.State) bool
	NextPhase(currentPhaseID string) *world.PhaseConfig
	ShouldTerminate(state *world.State) (bool, string)
	SetTimeScale(scale float64)
}

// Engine is the kernel contract every world kind satisfies. Step is
// single-threaded per session: it holds exclusive access to the world
// state for its duration.
type Engine interface {
	Kind() world.Kind
	SessionID() string

	// Step advances the world by one tick/turn/round, consuming the given
	// proposed actions. A terminated engine returns empty results and
	// leaves state untouched. The returned error is reserved for event
	// log failures, which are fatal for the session.
	Step(ctx context.Context, actions []world.Action) ([]world.ActionResult, error)

	// WorldState returns a deep-copied snapshot. Callers never see the
	// engine's live state.
	WorldState() *world.State

	Terminated() bool
	TerminationReason() string

	// Time returns the current world clock without cloning full state.
	Time() world.TimeInfo

	// ActiveAgents counts agent entities still active in the world.
	ActiveAgents() int

	// Events returns up to limit recent events, ascending by sequence.
	Events(ctx context.Context, limit int) ([]world.Event, error)

	// EligibleAgents lists the agents the driver should poll for actions
	// this step.
	EligibleAgents() []string

	RegisterEntity(e *world.Entity) error
	UnregisterEntity(id string) error

	// Reset restores the post-initialization state and clears the
	// session's event log.
	Reset(ctx context.Context) error
}

// StepHooks are the kind-specific moments inside the kernel step loop.
// The kind engine itself implements them, with full access to its
// scheduler, config, and RNG.
type StepHooks interface {
	// StepStartEvents runs before arbitration; Society opens the tick
	// here, Game checks the win condition left by the previous turn.
	StepStartEvents(s *world.State) []world.Event

	// ArbiterRejection describes how to report actions the arbiter
	// dropped. An empty event type means dropped actions are silent and
	// produce no result (all kinds except Game).
	ArbiterRejection() (eventType, reason string)

	// ValidationRejectionType names the event emitted when validation
	// fails (speech_rejected, action_rejected, ACTION_REJECTED).
	ValidationRejectionType() string

	// PostApply runs after each successful apply for bookkeeping that
	// spans actions: speaker rotation, last-action ticks.
	PostApply(a world.Action, r *world.ActionResult, s *world.State)

	// IdleStep runs when no action applied successfully this step,
	// whether arbitration resolved nothing or every resolved action
	// failed validation. Debate escalates its cold-start intervention
	// ladder here.
	IdleStep(ctx context.Context, s *world.State) []world.Event

	// Advance moves world time: phase switches, turn rotation, tick
	// increments. Runs after constraint enforcement.
	Advance(ctx context.Context, s *world.State) []world.Event

	// EndEvent builds the kind-specific termination event.
	EndEvent(ctx context.Context, s *world.State, reason string) world.Event
}

// BaseHooks provides no-op defaults so kinds only implement the moments
// they use.
type BaseHooks struct{}

func (BaseHooks) StepStartEvents(*world.State) []world.Event { return nil }

func (BaseHooks) ArbiterRejection() (string, string) { return "", "" }

func (BaseHooks) PostApply(world.Action, *world.ActionResult, *world.State) {}

func (BaseHooks) IdleStep(context.Context, *world.State) []world.Event { return nil }
