package game

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/engine"
	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/world"
)

// Agent describes one player. Zero HP and a nil hand take the
// configured defaults; the hand default is drawn from the card set.
type Agent struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	HP    int      `json:"hp,omitempty"`
	Cards []string `json:"cards,omitempty"`
}

// Params configures a game engine.
type Params struct {
	SessionID string
	Config    *config.GameConfig
	// MaxTurns overrides the configured turn budget when positive.
	MaxTurns int
	// Seed drives card draws and the initial hand deal.
	Seed   int64
	Store  eventlog.Store
	Logger *slog.Logger
	Clock  func() time.Time
}

// Engine drives a card-game world. It embeds the shared kernel and
// implements its step hooks: the win check at step start, turn
// rotation, and turn-order rejection reporting.
type Engine struct {
	*engine.Kernel
	engine.BaseHooks
	cfg   *config.GameConfig
	sched *Scheduler
	rng   *rand.Rand
}

// New builds a game engine with an empty player roster. Call
// InitializeAgents before stepping.
func New(p Params) (*Engine, error) {
	if p.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	cfg := p.Config
	if cfg == nil {
		cfg = config.DefaultGameConfig()
	}
	if len(cfg.CardSet) == 0 {
		return nil, fmt.Errorf("card set must not be empty")
	}
	maxTurns := cfg.MaxTurns
	if p.MaxTurns > 0 {
		maxTurns = p.MaxTurns
	}

	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}

	state := &world.State{
		WorldID:     p.SessionID,
		WorldType:   world.KindGame,
		CurrentTime: world.TimeInfo{TimeScale: 1},
		CurrentPhase: world.Phase{
			PhaseID:        "playing",
			PhaseType:      "playing",
			PhaseMaxRounds: -1,
			StartedAt:      clock(),
		},
		Entities: map[string]*world.Entity{},
		Game: &world.GameState{
			Agents:    map[string]*world.GameAgent{},
			MaxTurns:  maxTurns,
			GamePhase: world.GamePlaying,
		},
	}

	e := &Engine{cfg: cfg, sched: NewScheduler(), rng: world.NewRand(p.Seed)}
	e.Kernel = engine.NewKernel(engine.KernelParams{
		SessionID: p.SessionID,
		State:     state,
		Rules:     NewRules(cfg, e.rng),
		Arbiter:   NewArbiter(),
		Scheduler: e.sched,
		Hooks:     e,
		Log:       p.Store,
		Logger:    p.Logger,
		Clock:     clock,
	})
	return e, nil
}

// InitializeAgents registers the players, deals starting hands, and
// emits game_start plus the opening turn_start. The roster order is the
// turn order; the first player takes the first turn.
func (e *Engine) InitializeAgents(ctx context.Context, agents []Agent) error {
	if len(agents) < 2 {
		return fmt.Errorf("a game needs at least two players, got %d", len(agents))
	}
	ids := make([]string, 0, len(agents))
	names := make([]string, 0, len(agents))
	players := make(map[string]*world.GameAgent, len(agents))
	for _, a := range agents {
		if a.ID == "" {
			return fmt.Errorf("player id is required")
		}
		name := a.Name
		if name == "" {
			name = a.ID
		}
		hp := a.HP
		if hp <= 0 {
			hp = e.cfg.InitialHP
		}
		if err := e.RegisterEntity(&world.Entity{
			ID:     a.ID,
			Type:   world.EntityAgent,
			Name:   name,
			Status: world.EntityActive,
		}); err != nil {
			return err
		}
		players[a.ID] = &world.GameAgent{
			Name:    name,
			HP:      hp,
			MaxHP:   hp,
			Hand:    e.startingHand(a.Cards),
			IsAlive: true,
		}
		ids = append(ids, a.ID)
		names = append(names, name)
	}

	var maxTurns int
	e.Locked(func(s *world.State) {
		g := s.Game
		g.Agents = players
		g.TurnOrder = ids
		g.TurnIndex = 0
		g.CurrentTurnAgentID = ids[0]
		maxTurns = g.MaxTurns
	})

	start := world.Event{
		EventType: EventGameStart,
		Source:    world.SourceSystem,
		Content:   fmt.Sprintf("A card game begins between %s.", strings.Join(names, ", ")),
		Meta: map[string]any{
			"turnOrder":          ids,
			"maxTurns":           maxTurns,
			world.MetaVisibility: world.VisibilityPublic,
		},
	}
	if err := e.AppendInit(ctx, &start); err != nil {
		return err
	}
	first := world.Event{
		EventType: EventTurnStart,
		Source:    world.SourceSystem,
		Content:   fmt.Sprintf("It is %s's turn.", names[0]),
		Meta: map[string]any{
			"agentId":            ids[0],
			world.MetaVisibility: world.VisibilityPublic,
		},
	}
	if err := e.AppendInit(ctx, &first); err != nil {
		return err
	}
	e.RefreshInitial()
	return nil
}

// startingHand deals the opening hand: the explicit cards when given,
// otherwise a random deal of the configured size.
func (e *Engine) startingHand(cards []string) []string {
	if cards != nil {
		return append([]string(nil), cards...)
	}
	hand := make([]string, 0, e.cfg.InitialHandSize)
	for i := 0; i < e.cfg.InitialHandSize; i++ {
		hand = append(hand, e.cfg.CardSet[e.rng.IntN(len(e.cfg.CardSet))])
	}
	return hand
}

// StepStartEvents implements engine.StepHooks: the win check. A kill
// made last turn settles here so the dying turn still completed its
// rotation before game_end fires.
func (e *Engine) StepStartEvents(s *world.State) []world.Event {
	g := s.Game
	if g.GamePhase != world.GamePlaying {
		return nil
	}
	living := g.LivingAgents()
	switch len(living) {
	case 1:
		g.WinnerID = living[0]
		g.GamePhase = world.GameEnded
	case 0:
		g.GamePhase = world.GameEnded
	}
	return nil
}

// ArbiterRejection implements engine.StepHooks. Dropped actions are
// reported, one failing result per drop.
func (e *Engine) ArbiterRejection() (string, string) {
	return EventActionRejected, RejectionNotYourTurn
}

// ValidationRejectionType implements engine.StepHooks.
func (e *Engine) ValidationRejectionType() string { return EventActionRejected }

// Advance implements engine.StepHooks: close the turn and rotate to the
// next living player. Skipped once the win check has ended the game so
// no turn opens after the final kill settles.
func (e *Engine) Advance(_ context.Context, s *world.State) []world.Event {
	g := s.Game
	if g.GamePhase != world.GamePlaying {
		return nil
	}

	events := []world.Event{{
		EventType: EventTurnEnd,
		Source:    world.SourceSystem,
		Content:   fmt.Sprintf("%s ends their turn.", agentName(s, g.CurrentTurnAgentID)),
		Meta: map[string]any{
			"agentId":            g.CurrentTurnAgentID,
			"totalTurns":         g.TotalTurns + 1,
			world.MetaVisibility: world.VisibilityPublic,
		},
	}}

	advanceTurn(g)
	s.CurrentTime.Tick++
	s.CurrentTime.Round = g.TotalTurns
	s.CurrentPhase.PhaseRound = g.TotalTurns

	if g.GamePhase == world.GamePlaying && g.CurrentTurnAgentID != "" {
		events = append(events, world.Event{
			EventType: EventTurnStart,
			Source:    world.SourceSystem,
			Content:   fmt.Sprintf("It is %s's turn.", agentName(s, g.CurrentTurnAgentID)),
			Meta: map[string]any{
				"agentId":            g.CurrentTurnAgentID,
				world.MetaVisibility: world.VisibilityPublic,
			},
		})
	}
	return events
}

// advanceTurn hands the turn to the next living player in turn order.
// With nobody left alive the game ends and the turn clears.
func advanceTurn(g *world.GameState) {
	g.TotalTurns++
	n := len(g.TurnOrder)
	for i := 1; i <= n; i++ {
		idx := (g.TurnIndex + i) % n
		id := g.TurnOrder[idx]
		if a, ok := g.Agents[id]; ok && a.IsAlive {
			g.TurnIndex = idx
			g.CurrentTurnAgentID = id
			return
		}
	}
	g.GamePhase = world.GameEnded
	g.CurrentTurnAgentID = ""
}

// EndEvent implements engine.StepHooks.
func (e *Engine) EndEvent(_ context.Context, s *world.State, reason string) world.Event {
	g := s.Game
	meta := map[string]any{
		"reason":             reason,
		"totalTurns":         g.TotalTurns,
		world.MetaVisibility: world.VisibilityPublic,
	}
	if g.WinnerID != "" {
		meta["winnerId"] = g.WinnerID
	}
	return world.Event{
		EventType: EventGameEnd,
		Source:    world.SourceSystem,
		Content:   fmt.Sprintf("The game has ended: %s.", reason),
		Meta:      meta,
	}
}

// EligibleAgents returns only the current turn holder; the driver polls
// one player per turn.
func (e *Engine) EligibleAgents() []string {
	var ids []string
	e.Locked(func(s *world.State) {
		g := s.Game
		if !s.IsTerminated && g.GamePhase == world.GamePlaying && g.CurrentTurnAgentID != "" {
			ids = []string{g.CurrentTurnAgentID}
		}
	})
	return ids
}
