package debate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/engine"
	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/narrator"
	"github.com/agentarium/worldengine/pkg/world"
)

// Agent describes one debate participant.
type Agent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Stance string `json:"stance,omitempty"`
}

// Params configures a debate engine.
type Params struct {
	SessionID     string
	Topic         string
	Alignment     world.Alignment
	Flow          *world.Flow // nil selects the default three-phase flow
	SpeakingOrder world.SpeakingOrder
	Config        *config.DebateConfig
	Store         eventlog.Store
	Narrator      narrator.Narrator
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Engine drives a debate world. It embeds the shared kernel and
// implements its step hooks: speaker rotation, the cold-start
// intervention ladder, phase switching, and narrated summaries.
type Engine struct {
	*engine.Kernel
	cfg   *config.DebateConfig
	sched *Scheduler
}

// New builds a debate engine with an empty participant list. Call
// InitializeAgents before stepping.
func New(p Params) (*Engine, error) {
	if p.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if p.Topic == "" {
		return nil, fmt.Errorf("debate topic is required")
	}
	cfg := p.Config
	if cfg == nil {
		cfg = config.DefaultDebateConfig()
	}
	order := p.SpeakingOrder
	if order == "" {
		order = world.SpeakingFree
	}
	if !order.IsValid() {
		return nil, fmt.Errorf("invalid speaking order %q", order)
	}

	flow := defaultFlow(cfg, order)
	if p.Flow != nil && len(p.Flow.Phases) > 0 {
		flow = *p.Flow
	}
	if err := validateFlow(flow); err != nil {
		return nil, err
	}

	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}

	first := flow.Phases[0]
	state := &world.State{
		WorldID:      p.SessionID,
		WorldType:    world.KindDebate,
		CurrentTime:  world.TimeInfo{TimeScale: 1},
		CurrentPhase: startPhase(first, clock()),
		Entities:     map[string]*world.Entity{},
		GlobalVars:   map[string]any{},
		RuleStates:   map[string]bool{},
		Debate: &world.DebateState{
			Topic:              p.Topic,
			Alignment:          p.Alignment,
			Flow:               flow,
			SpeakingOrder:      phaseOrder(first, order),
			AllowInterrupt:     first.AllowInterrupt,
			InterventionLevel:  cfg.InterventionLevel,
			ColdThreshold:      cfg.ColdThreshold,
			SpeakCounts:        map[string]int{},
			ForceSummary:       first.ForceSummary,
			MaxTokensPerSpeech: first.MaxTokensPerSpeech,
			MaxSpeakRatio:      cfg.MaxSpeakRatio,
		},
	}

	e := &Engine{cfg: cfg, sched: NewScheduler(flow, clock)}
	e.Kernel = engine.NewKernel(engine.KernelParams{
		SessionID: p.SessionID,
		State:     state,
		Rules:     NewRules(cfg, p.Logger),
		Arbiter:   NewArbiter(cfg),
		Scheduler: e.sched,
		Hooks:     e,
		Log:       p.Store,
		Narrator:  p.Narrator,
		Logger:    p.Logger,
		Clock:     clock,
	})
	return e, nil
}

// defaultFlow is used when a session supplies no phases: an opening
// statement round, the main discussion, and a summarized closing round.
func defaultFlow(cfg *config.DebateConfig, order world.SpeakingOrder) world.Flow {
	return world.Flow{
		Phases: []world.PhaseConfig{
			{
				PhaseID:       "opening",
				PhaseType:     "opening",
				MaxRounds:     1,
				EndCondition:  world.PhaseEndByRounds,
				SpeakingOrder: world.SpeakingRoundRobin,
			},
			{
				PhaseID:        "discussion",
				PhaseType:      "discussion",
				MaxRounds:      cfg.DefaultPhaseRounds,
				EndCondition:   world.PhaseEndByRounds,
				AllowInterrupt: true,
				SpeakingOrder:  order,
			},
			{
				PhaseID:       "closing",
				PhaseType:     "closing",
				MaxRounds:     1,
				EndCondition:  world.PhaseEndByRounds,
				SpeakingOrder: world.SpeakingRoundRobin,
				ForceSummary:  true,
			},
		},
		GlobalTimeout: cfg.GlobalTimeout.Std(),
	}
}

func validateFlow(flow world.Flow) error {
	seen := map[string]bool{}
	for _, pc := range flow.Phases {
		if pc.PhaseID == "" {
			return fmt.Errorf("every phase needs an id")
		}
		if seen[pc.PhaseID] {
			return fmt.Errorf("duplicate phase id %q", pc.PhaseID)
		}
		seen[pc.PhaseID] = true
		if pc.MaxRounds == 0 && !(pc.EndCondition == world.PhaseEndByTimeout && pc.Timeout > 0) {
			return fmt.Errorf("phase %q needs a round budget or a timeout", pc.PhaseID)
		}
	}
	return nil
}

func startPhase(pc world.PhaseConfig, now time.Time) world.Phase {
	maxRounds := pc.MaxRounds
	if maxRounds == 0 && pc.EndCondition == world.PhaseEndByTimeout {
		// Timeout-only phases have no round budget.
		maxRounds = -1
	}
	return world.Phase{
		PhaseID:        pc.PhaseID,
		PhaseType:      pc.PhaseType,
		PhaseRound:     0,
		PhaseMaxRounds: maxRounds,
		StartedAt:      now,
	}
}

func phaseOrder(pc world.PhaseConfig, fallback world.SpeakingOrder) world.SpeakingOrder {
	if pc.SpeakingOrder.IsValid() {
		return pc.SpeakingOrder
	}
	return fallback
}

// InitializeAgents registers the participants, seeds speak counts, and
// emits the opening event. Reset restores the world to the state left
// here.
func (e *Engine) InitializeAgents(ctx context.Context, agents []Agent) error {
	if len(agents) < 2 {
		return fmt.Errorf("a debate needs at least two participants, got %d", len(agents))
	}
	ids := make([]string, 0, len(agents))
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		if a.ID == "" {
			return fmt.Errorf("participant id is required")
		}
		name := a.Name
		if name == "" {
			name = a.ID
		}
		attrs := map[string]any{}
		if a.Stance != "" {
			attrs["stance"] = a.Stance
		}
		if err := e.RegisterEntity(&world.Entity{
			ID:         a.ID,
			Type:       world.EntityAgent,
			Name:       name,
			Attributes: attrs,
			Status:     world.EntityActive,
		}); err != nil {
			return err
		}
		ids = append(ids, a.ID)
		names = append(names, name)
	}

	var topic string
	e.Locked(func(s *world.State) {
		d := s.Debate
		d.AgentIDs = ids
		for _, id := range ids {
			d.SpeakCounts[id] = 0
		}
		topic = d.Topic
	})

	content := fmt.Sprintf("Debate on %q begins with %s.", topic, strings.Join(names, ", "))
	if narr := e.Narrator(); narr != nil {
		opening, err := narr.Opening(ctx, narrator.Digest{Topic: topic, Participants: names})
		if err != nil {
			e.Logger().Warn("narrator opening failed", "error", err)
		} else {
			content = opening
		}
	}
	ev := world.Event{
		EventType: EventDebateStart,
		Source:    world.SourceSystem,
		Content:   content,
		Meta: map[string]any{
			"topic":              topic,
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

// StepStartEvents implements engine.StepHooks.
func (e *Engine) StepStartEvents(*world.State) []world.Event { return nil }

// ArbiterRejection implements engine.StepHooks. Debate drops are silent.
func (e *Engine) ArbiterRejection() (string, string) { return "", "" }

// ValidationRejectionType implements engine.StepHooks.
func (e *Engine) ValidationRejectionType() string { return EventSpeechRejected }

// PostApply implements engine.StepHooks: speaker bookkeeping and round
// accounting after each accepted action.
func (e *Engine) PostApply(a world.Action, _ *world.ActionResult, s *world.State) {
	d := s.Debate
	s.CurrentTime.Tick++

	if isSpeechType(a.ActionType) {
		if a.AgentID == d.LastSpeakerID {
			d.ConsecutiveSpeaks++
		} else {
			d.LastSpeakerID = a.AgentID
			d.ConsecutiveSpeaks = 1
		}
		d.ActiveSpeaker = a.AgentID
		d.SpeakCounts[a.AgentID]++
		d.IdleRounds = 0
	}

	if d.SpeakingOrder == world.SpeakingRoundRobin {
		// Only the expected speaker consumes a rotation slot; a phase
		// round completes when the rotation wraps.
		if len(d.AgentIDs) > 0 && a.AgentID == d.ExpectedSpeaker() {
			d.RoundRobinIndex++
			if d.RoundRobinIndex%len(d.AgentIDs) == 0 {
				s.CurrentPhase.PhaseRound++
				s.CurrentTime.Round++
			}
		}
	} else {
		s.CurrentPhase.PhaseRound++
		s.CurrentTime.Round++
	}
}

// IdleStep implements engine.StepHooks: the cold-start intervention
// ladder. Quiet steps accumulate; past the threshold the moderator calls
// on the quietest participant, and with a narrator at full escalation it
// asks them a pointed question instead.
func (e *Engine) IdleStep(ctx context.Context, s *world.State) []world.Event {
	d := s.Debate
	d.IdleRounds++
	if d.InterventionLevel < 1 {
		return nil
	}
	threshold := d.ColdThreshold
	if d.InterventionLevel == 1 {
		threshold *= 2
	}
	if threshold < 1 {
		threshold = 1
	}
	if d.IdleRounds < threshold {
		return nil
	}

	target := quietestAgent(d)
	if target == "" {
		return nil
	}
	d.IdleRounds = 0
	level := d.InterventionLevel
	if level < 3 {
		d.InterventionLevel = level + 1
	}
	name := agentName(s, target)

	if level >= 3 {
		if narr := e.Narrator(); narr != nil {
			q, err := narr.GuidingQuestion(ctx, e.digest(s), name)
			if err == nil {
				return []world.Event{{
					EventType: EventModeratorQuestion,
					Source:    world.SourceSystem,
					Content:   q,
					Meta: map[string]any{
						"targetAgent":        target,
						world.MetaVisibility: world.VisibilityPublic,
					},
				}}
			}
			e.Logger().Warn("narrator guiding question failed", "error", err)
		}
	}

	return []world.Event{{
		EventType: EventModeratorCall,
		Source:    world.SourceSystem,
		Content:   fmt.Sprintf("The moderator invites %s to weigh in.", name),
		Meta: map[string]any{
			"targetAgent":        target,
			world.MetaVisibility: world.VisibilityPublic,
		},
	}}
}

// Advance implements engine.StepHooks: phase switching with optional
// narrated summaries of the outgoing phase.
func (e *Engine) Advance(ctx context.Context, s *world.State) []world.Event {
	if !e.sched.ShouldAdvancePhase(s) {
		return nil
	}
	d := s.Debate
	var events []world.Event

	if d.ForceSummary {
		if narr := e.Narrator(); narr != nil {
			summary, err := narr.PhaseSummary(ctx, e.digestWithRecent(ctx, s))
			if err != nil {
				e.Logger().Warn("narrator phase summary failed",
					"phase_id", s.CurrentPhase.PhaseID, "error", err)
			} else {
				events = append(events, world.Event{
					EventType: EventPhaseSummary,
					Source:    world.SourceSystem,
					Content:   summary,
					Meta: map[string]any{
						"phaseId":            s.CurrentPhase.PhaseID,
						world.MetaVisibility: world.VisibilityPublic,
					},
				})
			}
		}
	}

	next := e.sched.NextPhase(s.CurrentPhase.PhaseID)
	if next == nil {
		// Last phase exhausted; the termination check follows.
		return events
	}

	from := s.CurrentPhase.PhaseID
	s.CurrentPhase = startPhase(*next, e.Now())
	d.SpeakingOrder = phaseOrder(*next, d.SpeakingOrder)
	d.AllowInterrupt = next.AllowInterrupt
	d.ForceSummary = next.ForceSummary
	d.MaxTokensPerSpeech = next.MaxTokensPerSpeech

	events = append(events, world.Event{
		EventType: EventPhaseSwitch,
		Source:    world.SourceSystem,
		Content:   fmt.Sprintf("Phase %s begins.", next.PhaseID),
		Meta: map[string]any{
			"fromPhase":          from,
			"toPhase":            next.PhaseID,
			"speakingOrder":      string(d.SpeakingOrder),
			"allowInterrupt":     d.AllowInterrupt,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})
	return events
}

// EndEvent implements engine.StepHooks.
func (e *Engine) EndEvent(ctx context.Context, s *world.State, reason string) world.Event {
	content := fmt.Sprintf("The debate has ended: %s.", reason)
	if narr := e.Narrator(); narr != nil {
		closing, err := narr.Closing(ctx, e.digest(s))
		if err != nil {
			e.Logger().Warn("narrator closing failed", "error", err)
		} else {
			content = closing
		}
	}
	counts := make(map[string]int, len(s.Debate.SpeakCounts))
	for id, c := range s.Debate.SpeakCounts {
		counts[id] = c
	}
	return world.Event{
		EventType: EventDebateEnd,
		Source:    world.SourceSystem,
		Content:   content,
		Meta: map[string]any{
			"reason":             reason,
			"speakCounts":        counts,
			world.MetaVisibility: world.VisibilityPublic,
		},
	}
}

func (e *Engine) digest(s *world.State) narrator.Digest {
	d := s.Debate
	names := make([]string, 0, len(d.AgentIDs))
	for _, id := range d.AgentIDs {
		names = append(names, agentName(s, id))
	}
	return narrator.Digest{
		Topic:        d.Topic,
		Phase:        s.CurrentPhase.PhaseType,
		Participants: names,
	}
}

// digestWithRecent folds the latest speeches into the digest so summaries
// reflect what was actually said.
func (e *Engine) digestWithRecent(ctx context.Context, s *world.State) narrator.Digest {
	dg := e.digest(s)
	recent, err := e.Events(ctx, 20)
	if err != nil {
		e.Logger().Warn("failed to load recent events for summary", "error", err)
		return dg
	}
	for _, ev := range recent {
		if ev.EventType != EventSpeech {
			continue
		}
		dg.CondensedEvents = append(dg.CondensedEvents,
			fmt.Sprintf("%s: %s", agentName(s, ev.Source), ev.Content))
	}
	return dg
}

func quietestAgent(d *world.DebateState) string {
	target := ""
	for _, id := range d.AgentIDs {
		if target == "" || d.SpeakCounts[id] < d.SpeakCounts[target] {
			target = id
		}
	}
	return target
}

func agentName(s *world.State, id string) string {
	if ent, ok := s.Entities[id]; ok && ent.Name != "" {
		return ent.Name
	}
	return id
}
