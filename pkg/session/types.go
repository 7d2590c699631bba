// Package session owns the lifecycle of simulation sessions: it maps
// session ids to their world engines, enforces status transitions, and
// hands running sessions to a background driver.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentarium/worldengine/pkg/engine"
	"github.com/agentarium/worldengine/pkg/world"
)

// Status represents the current state of a session
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
	StatusFailed  Status = "failed"
)

// IsValid checks if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusPaused, StatusEnded, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusFailed
}

// AgentSpec describes one agent in a create request. Kind-specific
// fields are ignored by the other world kinds.
type AgentSpec struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Stance aligns a debate agent with a side of the topic.
	Stance string `json:"stance,omitempty"`
	// Role, Resources and Mood seed society agents.
	Role      string  `json:"role,omitempty"`
	Resources float64 `json:"resources,omitempty"`
	Mood      float64 `json:"mood,omitempty"`
	// HP and Cards seed game players.
	HP    int      `json:"hp,omitempty"`
	Cards []string `json:"cards,omitempty"`
}

// CreateRequest carries everything needed to build a session's engine.
type CreateRequest struct {
	Kind      world.Kind  `json:"kind"`
	Title     string      `json:"title"`
	Topic     string      `json:"topic,omitempty"`
	Scenario  string      `json:"scenario,omitempty"`
	CreatedBy string      `json:"createdBy,omitempty"`
	Agents    []AgentSpec `json:"agents"`

	// MaxRounds bounds the session: turns for game, ticks for society,
	// rounds for logic. Zero keeps the configured default. Debate flows
	// carry their own round budgets.
	MaxRounds int `json:"maxRounds,omitempty"`
	// RoundTimeLimit overrides the driver's action deadline, in seconds.
	RoundTimeLimit float64 `json:"roundTimeLimit,omitempty"`
	// Seed makes game and society runs reproducible. Zero draws one.
	Seed int64 `json:"seed,omitempty"`
	// LLMConfig is carried opaquely for the host's provider wiring.
	LLMConfig map[string]any `json:"llmConfig,omitempty"`

	// Debate options.
	Alignment     *world.Alignment `json:"alignment,omitempty"`
	SpeakingOrder string           `json:"speakingOrder,omitempty"`
	Flow          *world.Flow      `json:"flow,omitempty"`

	// Logic options. Statement falls back to Topic.
	Statement  string              `json:"statement,omitempty"`
	Hypotheses []world.Proposition `json:"hypotheses,omitempty"`
	Goals      []world.Proposition `json:"goals,omitempty"`
}

// Driver is the per-session background loop a running session owns.
// Stop signals shutdown without waiting; it is safe to call twice.
type Driver interface {
	Start()
	Pause()
	Resume()
	Stop()
	// Submit queues externally provided actions for the next step.
	Submit(actions []world.Action) error
	// SetAutopilot toggles LLM-driven action collection.
	SetAutopilot(on bool)
}

// DriverFactory builds the background driver when a session starts.
type DriverFactory func(s *Session) Driver

// Broadcaster is the slice of the stream hub the manager needs: manual
// session ends must still reach subscribers.
type Broadcaster interface {
	SimulationEnded(sessionID, reason string)
}

// Session binds one world engine to its lifecycle state. Immutable
// request fields are plain; mutable lifecycle state is guarded.
type Session struct {
	ID             string
	Title          string
	Topic          string
	Scenario       string
	Kind           world.Kind
	CreatedBy      string
	Agents         []AgentSpec
	LLMConfig      map[string]any
	RoundTimeLimit time.Duration
	CreatedAt      time.Time

	engine engine.Engine

	mu        sync.RWMutex
	status    Status
	startedAt time.Time
	endedAt   time.Time
	endReason string
	errMsg    string
	updatedAt time.Time
	drv       Driver
}

// Engine returns the session's world engine.
func (s *Session) Engine() engine.Engine { return s.engine }

// Status returns the current lifecycle status (thread-safe).
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Summary is the read-only view of a session served by listings.
type Summary struct {
	ID           string     `json:"sessionId"`
	Title        string     `json:"title"`
	Topic        string     `json:"topic,omitempty"`
	Scenario     string     `json:"scenario,omitempty"`
	Kind         world.Kind `json:"kind"`
	CreatedBy    string     `json:"createdBy,omitempty"`
	Status       Status     `json:"status"`
	CurrentRound int        `json:"currentRound"`
	ActiveAgents int        `json:"activeAgents"`
	Terminated   bool       `json:"terminated"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	EndReason    string     `json:"endReason,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Summary builds a safe snapshot for listing and detail responses.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	sum := Summary{
		ID:        s.ID,
		Title:     s.Title,
		Topic:     s.Topic,
		Scenario:  s.Scenario,
		Kind:      s.Kind,
		CreatedBy: s.CreatedBy,
		Status:    s.status,
		CreatedAt: s.CreatedAt,
		EndReason: s.endReason,
		Error:     s.errMsg,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		sum.StartedAt = &t
	}
	if !s.endedAt.IsZero() {
		t := s.endedAt
		sum.EndedAt = &t
	}
	s.mu.RUnlock()

	sum.CurrentRound = s.engine.Time().Round
	sum.ActiveAgents = s.engine.ActiveAgents()
	sum.Terminated = s.engine.Terminated()
	return sum
}

// start moves pending→running.
func (s *Session) start(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPending {
		return fmt.Errorf("%w: cannot start a %s session", ErrInvalidTransition, s.status)
	}
	s.status = StatusRunning
	s.startedAt = now
	s.updatedAt = now
	return nil
}

// pause moves running→paused.
func (s *Session) pause(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return fmt.Errorf("%w: cannot pause a %s session", ErrInvalidTransition, s.status)
	}
	s.status = StatusPaused
	s.updatedAt = now
	return nil
}

// resume moves paused→running.
func (s *Session) resume(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return fmt.Errorf("%w: cannot resume a %s session", ErrInvalidTransition, s.status)
	}
	s.status = StatusRunning
	s.updatedAt = now
	return nil
}

// end moves any non-terminal status to ended. The bool reports whether
// the call changed anything; ending twice is a no-op.
func (s *Session) end(reason string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.status = StatusEnded
	s.endReason = reason
	s.endedAt = now
	s.updatedAt = now
	return true
}

// fail marks the session failed with the given error message.
func (s *Session) fail(msg string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.status = StatusFailed
	s.errMsg = msg
	s.endedAt = now
	s.updatedAt = now
	return true
}

func (s *Session) setDriver(d Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drv = d
}

func (s *Session) driver() Driver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drv
}
