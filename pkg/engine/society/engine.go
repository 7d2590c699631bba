package society

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/engine"
	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/narrator"
	"github.com/agentarium/worldengine/pkg/world"
)

// Agent describes one society member. An empty role defaults to
// neutral; zero resources and mood take the configured initial values.
type Agent struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Role      world.SocietyRole `json:"role,omitempty"`
	Resources float64           `json:"resources,omitempty"`
	Mood      float64           `json:"mood,omitempty"`
}

// Params configures a society engine.
type Params struct {
	SessionID string
	Config    *config.SocietyConfig
	// MaxTicks overrides the configured tick budget when positive.
	MaxTicks int64
	// Seed drives work rolls, escalation rolls, and shock sampling.
	Seed     int64
	Store    eventlog.Store
	Narrator narrator.Narrator
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Engine drives a society world. It embeds the shared kernel and
// implements its step hooks: tick bookkeeping, environment
// regeneration, and the per-tick state delta.
type Engine struct {
	*engine.Kernel
	engine.BaseHooks
	cfg   *config.SocietyConfig
	sched *Scheduler
	rules *Rules
}

// New builds a society engine with an empty population. Call
// InitializeAgents before stepping.
func New(p Params) (*Engine, error) {
	if p.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	cfg := p.Config
	if cfg == nil {
		cfg = config.DefaultSocietyConfig()
	}
	if len(cfg.WorkReward) < 3 || len(cfg.ConflictResourceLoss) < 3 {
		return nil, fmt.Errorf("work reward and conflict loss tables need three intensity tiers")
	}
	maxTicks := cfg.MaxTicks
	if p.MaxTicks > 0 {
		maxTicks = p.MaxTicks
	}

	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}

	state := &world.State{
		WorldID:     p.SessionID,
		WorldType:   world.KindSociety,
		CurrentTime: world.TimeInfo{TimeScale: 1},
		CurrentPhase: world.Phase{
			PhaseID:        "simulation",
			PhaseType:      "simulation",
			PhaseMaxRounds: -1,
			StartedAt:      clock(),
		},
		Entities: map[string]*world.Entity{},
		Society: &world.SocietyState{
			Agents: map[string]*world.SocietyAgent{},
			Global: world.GlobalResources{
				CommunityPool:    cfg.InitialCommunityPool,
				EnvironmentPool:  cfg.InitialEnvironmentPool,
				RegenerationRate: cfg.RegenerationRate,
			},
		},
	}

	e := &Engine{
		cfg:   cfg,
		sched: NewScheduler(maxTicks),
		rules: NewRules(cfg, world.NewRand(p.Seed)),
	}
	e.Kernel = engine.NewKernel(engine.KernelParams{
		SessionID: p.SessionID,
		State:     state,
		Rules:     e.rules,
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

// InitializeAgents registers the population and emits SOCIETY_START.
func (e *Engine) InitializeAgents(ctx context.Context, agents []Agent) error {
	if len(agents) < 2 {
		return fmt.Errorf("a society needs at least two agents, got %d", len(agents))
	}
	names := make([]string, 0, len(agents))
	roles := make(map[string]string, len(agents))
	members := make(map[string]*world.SocietyAgent, len(agents))
	for _, a := range agents {
		if a.ID == "" {
			return fmt.Errorf("agent id is required")
		}
		role := a.Role
		if role == "" {
			role = world.RoleNeutral
		}
		if !role.IsValid() {
			return fmt.Errorf("invalid society role %q", a.Role)
		}
		name := a.Name
		if name == "" {
			name = a.ID
		}
		resources := a.Resources
		if resources <= 0 {
			resources = e.cfg.InitialResources
		}
		mood := world.ClampSigned(a.Mood)
		if a.Mood == 0 {
			mood = world.ClampSigned(e.cfg.InitialMood)
		}
		if err := e.RegisterEntity(&world.Entity{
			ID:         a.ID,
			Type:       world.EntityAgent,
			Name:       name,
			Status:     world.EntityActive,
			Attributes: map[string]any{"role": string(role)},
		}); err != nil {
			return err
		}
		members[a.ID] = &world.SocietyAgent{
			Name:          name,
			Role:          role,
			Resources:     resources,
			Mood:          mood,
			Relationships: map[string]float64{},
			IsActive:      true,
		}
		names = append(names, name)
		roles[a.ID] = string(role)
	}

	e.Locked(func(s *world.State) {
		s.Society.Agents = members
		recomputeStats(s.Society)
	})

	content := fmt.Sprintf("A society of %d agents begins.", len(agents))
	if narr := e.Narrator(); narr != nil {
		opening, err := narr.Opening(ctx, e.digest(e.WorldState()))
		if err != nil {
			e.Logger().Warn("narrator opening failed", "error", err)
		} else {
			content = opening
		}
	}
	ev := world.Event{
		EventType: EventSocietyStart,
		Source:    world.SourceSystem,
		Content:   content,
		Meta: map[string]any{
			"participants":       names,
			"roles":              roles,
			world.MetaVisibility: world.VisibilityPublic,
		},
	}
	if err := e.AppendInit(ctx, &ev); err != nil {
		return err
	}
	e.RefreshInitial()
	return nil
}

// StepStartEvents implements engine.StepHooks: it opens the tick that
// this step will close.
func (e *Engine) StepStartEvents(s *world.State) []world.Event {
	tick := s.Society.TimeTick + 1
	return []world.Event{{
		EventType: EventTickStart,
		Source:    world.SourceSystem,
		Content:   fmt.Sprintf("Tick %d begins.", tick),
		Meta: map[string]any{
			"tick":               tick,
			world.MetaVisibility: world.VisibilityPublic,
		},
	}}
}

// ValidationRejectionType implements engine.StepHooks.
func (e *Engine) ValidationRejectionType() string { return EventActionRejected }

// PostApply implements engine.StepHooks: stamp the tick the action
// landed in, which is the one Advance is about to count.
func (e *Engine) PostApply(a world.Action, _ *world.ActionResult, s *world.State) {
	if ag, ok := s.Society.Agents[a.AgentID]; ok {
		ag.LastActionTick = s.Society.TimeTick + 1
	}
}

// Advance implements engine.StepHooks: count the tick, regenerate the
// environment, and close with TICK_END plus a STATE_DELTA snapshot.
func (e *Engine) Advance(_ context.Context, s *world.State) []world.Event {
	so := s.Society
	so.TimeTick++
	so.Global.EnvironmentPool += so.Global.RegenerationRate
	s.CurrentTime.Tick = so.TimeTick
	s.CurrentTime.Round = int(so.TimeTick)
	s.CurrentPhase.PhaseRound = int(so.TimeTick)

	return []world.Event{
		{
			EventType: EventTickEnd,
			Source:    world.SourceSystem,
			Content:   fmt.Sprintf("Tick %d ends.", so.TimeTick),
			Meta: map[string]any{
				"tick":               so.TimeTick,
				world.MetaVisibility: world.VisibilityPublic,
			},
		},
		{
			EventType: EventStateDelta,
			Source:    world.SourceSystem,
			Content:   fmt.Sprintf("Society snapshot at tick %d.", so.TimeTick),
			Meta: map[string]any{
				"tick":               so.TimeTick,
				"activeAgents":       so.Stats.ActiveAgents,
				"avgMood":            so.Stats.AvgMood,
				"avgResources":       so.Stats.AvgResources,
				"totalResources":     so.Stats.TotalResources,
				"gini":               so.Stats.Gini,
				"stabilityIndex":     so.StabilityIndex,
				"communityPool":      so.Global.CommunityPool,
				"environmentPool":    so.Global.EnvironmentPool,
				world.MetaVisibility: world.VisibilityPublic,
			},
		},
	}
}

// EndEvent implements engine.StepHooks.
func (e *Engine) EndEvent(ctx context.Context, s *world.State, reason string) world.Event {
	content := fmt.Sprintf("The society simulation has ended: %s.", reason)
	if narr := e.Narrator(); narr != nil {
		closing, err := narr.Closing(ctx, e.digest(s))
		if err != nil {
			e.Logger().Warn("narrator closing failed", "error", err)
		} else {
			content = closing
		}
	}
	so := s.Society
	return world.Event{
		EventType: EventSocietyEnd,
		Source:    world.SourceSystem,
		Content:   content,
		Meta: map[string]any{
			"reason":             reason,
			"tick":               so.TimeTick,
			"activeAgents":       so.Stats.ActiveAgents,
			"stabilityIndex":     so.StabilityIndex,
			world.MetaVisibility: world.VisibilityPublic,
		},
	}
}

func (e *Engine) digest(s *world.State) narrator.Digest {
	so := s.Society
	names := make([]string, 0, len(so.Agents))
	for _, ag := range so.Agents {
		names = append(names, ag.Name)
	}
	sort.Strings(names)
	return narrator.Digest{
		Topic:        "life in a simulated society",
		Phase:        s.CurrentPhase.PhaseType,
		Participants: names,
		Notes:        fmt.Sprintf("tick %d, stability index %.2f", so.TimeTick, so.StabilityIndex),
	}
}
