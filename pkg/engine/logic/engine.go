package logic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/engine"
	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/narrator"
	"github.com/agentarium/worldengine/pkg/world"
)

// Agent describes one researcher.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Params configures a logic engine. Hypotheses are the problem's givens
// and Goals the target statements; both use Proposition's id+latex
// shape.
type Params struct {
	SessionID string
	// ProblemID defaults to the session id.
	ProblemID  string
	Statement  string
	Hypotheses []world.Proposition
	Goals      []world.Proposition
	Config     *config.LogicConfig
	// MaxRounds overrides the configured round budget when positive.
	MaxRounds int
	Store     eventlog.Store
	Narrator  narrator.Narrator
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Engine drives a logic world. It embeds the shared kernel and
// implements its step hooks: round counting and the problem wrap-up.
type Engine struct {
	*engine.Kernel
	engine.BaseHooks
	cfg   *config.LogicConfig
	sched *Scheduler
}

// New builds a logic engine with an empty researcher roster. Call
// InitializeAgents before stepping.
func New(p Params) (*Engine, error) {
	if p.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(p.Statement) == "" {
		return nil, fmt.Errorf("problem statement is required")
	}
	cfg := p.Config
	if cfg == nil {
		cfg = config.DefaultLogicConfig()
	}
	maxRounds := cfg.MaxRounds
	if p.MaxRounds > 0 {
		maxRounds = p.MaxRounds
	}
	problemID := p.ProblemID
	if problemID == "" {
		problemID = p.SessionID
	}

	hypotheses := make(map[string]*world.Proposition, len(p.Hypotheses))
	for _, h := range p.Hypotheses {
		if h.ID == "" || strings.TrimSpace(h.LaTeX) == "" {
			return nil, fmt.Errorf("hypotheses need an id and a statement")
		}
		if _, dup := hypotheses[h.ID]; dup {
			return nil, fmt.Errorf("duplicate hypothesis id %s", h.ID)
		}
		hc := h
		hypotheses[h.ID] = &hc
	}
	goals := make(map[string]*world.Goal, len(p.Goals))
	for _, g := range p.Goals {
		if g.ID == "" || strings.TrimSpace(g.LaTeX) == "" {
			return nil, fmt.Errorf("goals need an id and a statement")
		}
		if _, dup := goals[g.ID]; dup {
			return nil, fmt.Errorf("duplicate goal id %s", g.ID)
		}
		goals[g.ID] = &world.Goal{ID: g.ID, LaTeX: g.LaTeX, Status: world.GoalOpen}
	}

	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}

	state := &world.State{
		WorldID:     p.SessionID,
		WorldType:   world.KindLogic,
		CurrentTime: world.TimeInfo{TimeScale: 1},
		CurrentPhase: world.Phase{
			PhaseID:        "research",
			PhaseType:      "research",
			PhaseMaxRounds: maxRounds,
			StartedAt:      clock(),
		},
		Entities: map[string]*world.Entity{},
		Logic: &world.LogicState{
			Problem: world.Problem{
				ProblemID:        problemID,
				Statement:        p.Statement,
				Hypotheses:       hypotheses,
				Conclusions:      map[string]*world.Conclusion{},
				PendingProposals: map[string]*world.Conclusion{},
				Goals:            goals,
				Refutations:      map[string]*world.Refutation{},
			},
			Researchers: map[string]*world.ResearcherStats{},
			Discussion:  world.Discussion{MaxRounds: maxRounds, Mode: "collaborative"},
		},
	}

	e := &Engine{cfg: cfg, sched: NewScheduler()}
	e.Kernel = engine.NewKernel(engine.KernelParams{
		SessionID: p.SessionID,
		State:     state,
		Rules:     NewRules(cfg),
		Arbiter:   NewArbiter(),
		Scheduler: e.sched,
		Hooks:     e,
		Log:       p.Store,
		Narrator:  p.Narrator,
		Logger:    p.Logger,
		Clock:     clock,
	})
	return e, nil
}

// InitializeAgents registers the researchers and emits PROBLEM_START.
func (e *Engine) InitializeAgents(ctx context.Context, agents []Agent) error {
	if len(agents) < 2 {
		return fmt.Errorf("collaboration needs at least two researchers, got %d", len(agents))
	}
	names := make([]string, 0, len(agents))
	stats := make(map[string]*world.ResearcherStats, len(agents))
	for _, a := range agents {
		if a.ID == "" {
			return fmt.Errorf("researcher id is required")
		}
		name := a.Name
		if name == "" {
			name = a.ID
		}
		if err := e.RegisterEntity(&world.Entity{
			ID:     a.ID,
			Type:   world.EntityAgent,
			Name:   name,
			Status: world.EntityActive,
		}); err != nil {
			return err
		}
		stats[a.ID] = &world.ResearcherStats{}
		names = append(names, name)
	}

	var (
		statement  string
		problemID  string
		hypotheses map[string]string
		goals      map[string]string
	)
	e.Locked(func(s *world.State) {
		l := s.Logic
		l.Researchers = stats
		statement = l.Problem.Statement
		problemID = l.Problem.ProblemID
		hypotheses = make(map[string]string, len(l.Problem.Hypotheses))
		for id, h := range l.Problem.Hypotheses {
			hypotheses[id] = h.LaTeX
		}
		goals = make(map[string]string, len(l.Problem.Goals))
		for id, g := range l.Problem.Goals {
			goals[id] = g.LaTeX
		}
	})

	content := fmt.Sprintf("Researchers %s take on: %s", strings.Join(names, ", "), statement)
	if narr := e.Narrator(); narr != nil {
		opening, err := narr.Opening(ctx, narrator.Digest{Topic: statement, Participants: names})
		if err != nil {
			e.Logger().Warn("narrator opening failed", "error", err)
		} else {
			content = opening
		}
	}
	ev := world.Event{
		EventType: EventProblemStart,
		Source:    world.SourceSystem,
		Content:   content,
		Meta: map[string]any{
			"problemId":          problemID,
			"statement":          statement,
			"hypotheses":         hypotheses,
			"goals":              goals,
			"participants":       names,
			world.MetaVisibility: world.VisibilityPublic,
		},
	}
	if err := e.AppendInit(ctx, &ev); err != nil {
		return err
	}
	e.RefreshInitial()
	return nil
}

// ValidationRejectionType implements engine.StepHooks.
func (e *Engine) ValidationRejectionType() string { return EventActionRejected }

// PostApply implements engine.StepHooks: track who spoke last.
func (e *Engine) PostApply(a world.Action, _ *world.ActionResult, s *world.State) {
	s.Logic.Discussion.CurrentSpeaker = a.AgentID
}

// Advance implements engine.StepHooks: one step is one research round.
func (e *Engine) Advance(_ context.Context, s *world.State) []world.Event {
	d := &s.Logic.Discussion
	d.CurrentRound++
	s.CurrentTime.Tick++
	s.CurrentTime.Round = d.CurrentRound
	s.CurrentPhase.PhaseRound = d.CurrentRound
	return nil
}

// EndEvent implements engine.StepHooks.
func (e *Engine) EndEvent(ctx context.Context, s *world.State, reason string) world.Event {
	content := fmt.Sprintf("The research session has ended: %s.", reason)
	if narr := e.Narrator(); narr != nil {
		closing, err := narr.Closing(ctx, e.digest(s))
		if err != nil {
			e.Logger().Warn("narrator closing failed", "error", err)
		} else {
			content = closing
		}
	}
	p := s.Logic.Problem
	proved := 0
	for _, g := range p.Goals {
		if g.Status == world.GoalProved {
			proved++
		}
	}
	return world.Event{
		EventType: EventProblemEnd,
		Source:    world.SourceSystem,
		Content:   content,
		Meta: map[string]any{
			"reason":             reason,
			"isSolved":           p.IsSolved,
			"rounds":             s.Logic.Discussion.CurrentRound,
			"conclusions":        len(p.Conclusions),
			"provedGoals":        proved,
			world.MetaVisibility: world.VisibilityPublic,
		},
	}
}

func (e *Engine) digest(s *world.State) narrator.Digest {
	names := make([]string, 0, len(s.Logic.Researchers))
	for id := range s.Logic.Researchers {
		names = append(names, researcherName(s, id))
	}
	sort.Strings(names)
	p := s.Logic.Problem
	return narrator.Digest{
		Topic:        p.Statement,
		Phase:        s.CurrentPhase.PhaseType,
		Participants: names,
		Notes: fmt.Sprintf("%d conclusions accepted, %d proposals pending",
			len(p.Conclusions), len(p.PendingProposals)),
	}
}
