package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/engine"
	"github.com/agentarium/worldengine/pkg/engine/debate"
	"github.com/agentarium/worldengine/pkg/engine/game"
	"github.com/agentarium/worldengine/pkg/engine/logic"
	"github.com/agentarium/worldengine/pkg/engine/society"
	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/narrator"
	"github.com/agentarium/worldengine/pkg/world"
)

// pruneTimeout bounds the async log prune after Delete.
const pruneTimeout = 10 * time.Second

// ManagerParams wires the manager's collaborators.
type ManagerParams struct {
	Config *config.Config
	Store  eventlog.Store
	// Narrator may be nil; engines run without narrated content.
	Narrator narrator.Narrator
	// Factory builds per-session drivers. Nil disables background
	// driving; sessions then step only through direct engine calls.
	Factory DriverFactory
	// Broadcast may be nil; manual End calls then reach no subscribers.
	Broadcast Broadcaster
	Logger    *slog.Logger
	Clock     func() time.Time
	// Seed derives per-session RNG seeds when requests carry none.
	Seed func() int64
}

// Manager manages sessions in memory.
type Manager struct {
	cfg       *config.Config
	store     eventlog.Store
	narr      narrator.Narrator
	factory   DriverFactory
	broadcast Broadcaster
	logger    *slog.Logger
	clock     func() time.Time
	seed      func() int64

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager.
func NewManager(p ManagerParams) *Manager {
	cfg := p.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	store := p.Store
	if store == nil {
		store = eventlog.NewMemoryStore()
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	seed := p.Seed
	if seed == nil {
		seed = func() int64 { return time.Now().UnixNano() }
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		narr:      p.Narrator,
		factory:   p.Factory,
		broadcast: p.Broadcast,
		logger:    logger,
		clock:     clock,
		seed:      seed,
		sessions:  make(map[string]*Session),
	}
}

// Store returns the event log backing every session.
func (m *Manager) Store() eventlog.Store { return m.store }

// Create validates the request, builds and seeds the world engine, and
// registers the session as pending.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if !req.Kind.IsValid() {
		return nil, NewValidationError("kind", fmt.Sprintf("unknown world kind %q", req.Kind))
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, NewValidationError("title", "required")
	}
	if len(req.Agents) == 0 {
		return nil, NewValidationError("agents", "at least one agent is required")
	}
	for i, a := range req.Agents {
		if a.ID == "" {
			return nil, NewValidationError(fmt.Sprintf("agents[%d].id", i), "required")
		}
	}

	sessionID := uuid.New().String()
	eng, err := m.buildEngine(ctx, sessionID, req)
	if err != nil {
		// InitializeAgents may have appended opening events already.
		if clearErr := m.store.Clear(ctx, sessionID); clearErr != nil {
			m.logger.Warn("failed to clear log of aborted session",
				"session_id", sessionID, "error", clearErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	now := m.clock()
	s := &Session{
		ID:             sessionID,
		Title:          strings.TrimSpace(req.Title),
		Topic:          req.Topic,
		Scenario:       req.Scenario,
		Kind:           req.Kind,
		CreatedBy:      req.CreatedBy,
		Agents:         append([]AgentSpec(nil), req.Agents...),
		LLMConfig:      req.LLMConfig,
		RoundTimeLimit: time.Duration(req.RoundTimeLimit * float64(time.Second)),
		CreatedAt:      now,
		engine:         eng,
		status:         StatusPending,
		updatedAt:      now,
	}

	m.mu.Lock()
	m.sessions[sessionID] = s
	m.mu.Unlock()

	m.logger.Info("session created",
		"session_id", sessionID, "kind", req.Kind, "agents", len(req.Agents))
	return s, nil
}

func (m *Manager) buildEngine(ctx context.Context, sessionID string, req CreateRequest) (engine.Engine, error) {
	seed := req.Seed
	if seed == 0 {
		seed = m.seed()
	}

	switch req.Kind {
	case world.KindDebate:
		var alignment world.Alignment
		if req.Alignment != nil {
			alignment = *req.Alignment
		}
		e, err := debate.New(debate.Params{
			SessionID:     sessionID,
			Topic:         req.Topic,
			Alignment:     alignment,
			Flow:          req.Flow,
			SpeakingOrder: world.SpeakingOrder(req.SpeakingOrder),
			Config:        m.cfg.Debate,
			Store:         m.store,
			Narrator:      m.narr,
			Logger:        m.logger,
			Clock:         m.clock,
		})
		if err != nil {
			return nil, err
		}
		agents := make([]debate.Agent, 0, len(req.Agents))
		for _, a := range req.Agents {
			agents = append(agents, debate.Agent{ID: a.ID, Name: a.Name, Stance: a.Stance})
		}
		if err := e.InitializeAgents(ctx, agents); err != nil {
			return nil, err
		}
		return e, nil

	case world.KindGame:
		e, err := game.New(game.Params{
			SessionID: sessionID,
			Config:    m.cfg.Game,
			MaxTurns:  req.MaxRounds,
			Seed:      seed,
			Store:     m.store,
			Logger:    m.logger,
			Clock:     m.clock,
		})
		if err != nil {
			return nil, err
		}
		agents := make([]game.Agent, 0, len(req.Agents))
		for _, a := range req.Agents {
			agents = append(agents, game.Agent{ID: a.ID, Name: a.Name, HP: a.HP, Cards: a.Cards})
		}
		if err := e.InitializeAgents(ctx, agents); err != nil {
			return nil, err
		}
		return e, nil

	case world.KindSociety:
		e, err := society.New(society.Params{
			SessionID: sessionID,
			Config:    m.cfg.Society,
			MaxTicks:  int64(req.MaxRounds),
			Seed:      seed,
			Store:     m.store,
			Narrator:  m.narr,
			Logger:    m.logger,
			Clock:     m.clock,
		})
		if err != nil {
			return nil, err
		}
		agents := make([]society.Agent, 0, len(req.Agents))
		for _, a := range req.Agents {
			agents = append(agents, society.Agent{
				ID:        a.ID,
				Name:      a.Name,
				Role:      world.SocietyRole(a.Role),
				Resources: a.Resources,
				Mood:      a.Mood,
			})
		}
		if err := e.InitializeAgents(ctx, agents); err != nil {
			return nil, err
		}
		return e, nil

	case world.KindLogic:
		statement := req.Statement
		if strings.TrimSpace(statement) == "" {
			statement = req.Topic
		}
		e, err := logic.New(logic.Params{
			SessionID:  sessionID,
			Statement:  statement,
			Hypotheses: req.Hypotheses,
			Goals:      req.Goals,
			Config:     m.cfg.Logic,
			MaxRounds:  req.MaxRounds,
			Store:      m.store,
			Narrator:   narrator.Styled(m.narr, narrator.StyleLaTeX),
			Logger:     m.logger,
			Clock:      m.clock,
		})
		if err != nil {
			return nil, err
		}
		agents := make([]logic.Agent, 0, len(req.Agents))
		for _, a := range req.Agents {
			agents = append(agents, logic.Agent{ID: a.ID, Name: a.Name})
		}
		if err := e.InitializeAgents(ctx, agents); err != nil {
			return nil, err
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown world kind %q", req.Kind)
	}
}

// Get retrieves a session by ID.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return s, nil
}

// State returns a deep-copied snapshot of the session's world state.
func (m *Manager) State(sessionID string) (*world.State, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.engine.WorldState(), nil
}

// Start moves a pending session to running and spawns its driver.
func (m *Manager) Start(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	if err := s.start(m.clock()); err != nil {
		return err
	}
	if m.factory != nil {
		d := m.factory(s)
		s.setDriver(d)
		d.Start()
	}
	m.logger.Info("session started", "session_id", sessionID)
	return nil
}

// Pause parks a running session; its driver blocks until resumed.
func (m *Manager) Pause(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	if err := s.pause(m.clock()); err != nil {
		return err
	}
	if d := s.driver(); d != nil {
		d.Pause()
	}
	m.logger.Info("session paused", "session_id", sessionID)
	return nil
}

// Resume unparks a paused session.
func (m *Manager) Resume(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	if err := s.resume(m.clock()); err != nil {
		return err
	}
	if d := s.driver(); d != nil {
		d.Resume()
	}
	m.logger.Info("session resumed", "session_id", sessionID)
	return nil
}

// End stops the session from any non-terminal status. A second call is
// a no-op. Subscribers receive simulation_ended with the given reason.
func (m *Manager) End(sessionID, reason string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "session ended"
	}
	if !s.end(reason, m.clock()) {
		return nil
	}
	if d := s.driver(); d != nil {
		d.Stop()
	}
	if m.broadcast != nil {
		m.broadcast.SimulationEnded(sessionID, reason)
	}
	m.logger.Info("session ended", "session_id", sessionID, "reason", reason)
	return nil
}

// MarkEnded records a termination the session's own driver observed.
// The driver has already broadcast simulation_ended and is unwinding.
func (m *Manager) MarkEnded(sessionID, reason string) {
	s, err := m.Get(sessionID)
	if err != nil {
		return
	}
	if s.end(reason, m.clock()) {
		m.logger.Info("session ended", "session_id", sessionID, "reason", reason)
	}
}

// MarkFailed records a fatal driver failure (log append errors).
func (m *Manager) MarkFailed(sessionID, reason string) {
	s, err := m.Get(sessionID)
	if err != nil {
		return
	}
	if s.fail(reason, m.clock()) {
		m.logger.Error("session failed", "session_id", sessionID, "reason", reason)
	}
}

// Delete removes a non-running session and prunes its event log in the
// background.
func (m *Manager) Delete(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	if s.Status() == StatusRunning {
		return fmt.Errorf("%w: cannot delete a running session", ErrInvalidTransition)
	}
	if d := s.driver(); d != nil {
		d.Stop()
	}

	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
		defer cancel()
		if err := m.store.Clear(ctx, sessionID); err != nil {
			m.logger.Warn("event log prune failed", "session_id", sessionID, "error", err)
		}
	}()

	m.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// SubmitActions queues external actions with the session's driver. The
// step consumes whatever arrived by its deadline; later submissions
// roll over to the next step. Paused sessions accept actions too and
// drain them on resume.
func (m *Manager) SubmitActions(sessionID string, actions []world.Action) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	switch st := s.Status(); st {
	case StatusRunning, StatusPaused:
	default:
		return fmt.Errorf("%w: cannot submit actions to a %s session", ErrInvalidTransition, st)
	}
	d := s.driver()
	if d == nil {
		return fmt.Errorf("%w: session has no driver", ErrInvalidTransition)
	}
	return d.Submit(actions)
}

// StartAuto ensures the session is running and switches its driver to
// LLM-driven action collection.
func (m *Manager) StartAuto(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	switch s.Status() {
	case StatusPending:
		if err := m.Start(sessionID); err != nil {
			return err
		}
	case StatusPaused:
		if err := m.Resume(sessionID); err != nil {
			return err
		}
	case StatusRunning:
	default:
		return fmt.Errorf("%w: cannot auto-drive a %s session", ErrInvalidTransition, s.Status())
	}
	if d := s.driver(); d != nil {
		d.SetAutopilot(true)
	}
	return nil
}

// List returns all sessions, newest first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	summaries := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, s.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries
}

// ListByUser returns the sessions created by the given user, newest
// first.
func (m *Manager) ListByUser(userID string) []Summary {
	all := m.List()
	out := make([]Summary, 0, len(all))
	for _, s := range all {
		if s.CreatedBy == userID {
			out = append(out, s)
		}
	}
	return out
}

// Shutdown ends every live session. Called on process exit.
func (m *Manager) Shutdown() {
	for _, sum := range m.List() {
		if sum.Status.Terminal() {
			continue
		}
		if err := m.End(sum.ID, "server shutting down"); err != nil {
			m.logger.Warn("failed to end session during shutdown",
				"session_id", sum.ID, "error", err)
		}
	}
}
