package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/world"
)

func newTestEngine(t *testing.T, mut func(*Params), agents []Agent) (*Engine, *eventlog.MemoryStore) {
	t.Helper()
	store := eventlog.NewMemoryStore()
	p := Params{
		SessionID: "game-1",
		Seed:      7,
		Store:     store,
	}
	if mut != nil {
		mut(&p)
	}
	e, err := New(p)
	require.NoError(t, err)
	if agents == nil {
		agents = []Agent{
			{ID: "a", Name: "Alice", Cards: []string{CardAttack, CardHeal, CardDraw}},
			{ID: "b", Name: "Bob", Cards: []string{CardAttack, CardHeal, CardDraw}},
		}
	}
	require.NoError(t, e.InitializeAgents(context.Background(), agents))
	return e, store
}

func playCard(agentID, card, targetID string) world.Action {
	a := world.Action{
		ActionID:   agentID + "-" + card,
		AgentID:    agentID,
		ActionType: ActionPlayCard,
		Params:     map[string]any{"card": card},
		Confidence: 0.9,
	}
	if targetID != "" {
		a.Target = &world.ActionTarget{Type: "agent", ID: targetID}
	}
	return a
}

func pass(agentID string) world.Action {
	return world.Action{
		ActionID:   agentID + "-pass",
		AgentID:    agentID,
		ActionType: ActionPass,
		Confidence: 0.5,
	}
}

func eventTypes(events []world.Event) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.EventType)
	}
	return types
}

func TestLethalAttackFinishesTurnThenDeclaresWinner(t *testing.T) {
	// Bob holds the turn against a 20 hp Alice; one attack is lethal.
	e, store := newTestEngine(t, nil, []Agent{
		{ID: "b", Name: "Bob", HP: 100, Cards: []string{CardAttack}},
		{ID: "a", Name: "Alice", HP: 20, Cards: []string{CardHeal}},
	})

	results, err := e.Step(context.Background(), []world.Action{playCard("b", CardAttack, "a")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	events, err := store.GetBySession(context.Background(), "game-1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		EventGameStart, EventTurnStart,
		EventCardPlayed, EventDamageDealt, EventAgentDied, EventTurnEnd, EventTurnStart,
	}, eventTypes(events))

	damage := events[3]
	assert.Equal(t, 20, damage.Meta["oldHp"])
	assert.Equal(t, 0, damage.Meta["newHp"])
	assert.Equal(t, "a", events[4].Meta["agentId"])
	// Alice is dead, so the turn wraps back to Bob.
	assert.Equal(t, "b", events[6].Meta["agentId"])

	snap := e.WorldState()
	assert.False(t, snap.Game.Agents["a"].IsAlive)
	assert.Equal(t, 0, snap.Game.Agents["a"].HP)
	assert.Equal(t, world.GamePlaying, snap.Game.GamePhase)
	assert.False(t, e.Terminated())

	// The win settles at the start of the next step.
	results, err = e.Step(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.True(t, e.Terminated())
	assert.Equal(t, "Bob wins the game", e.TerminationReason())

	events, err = store.GetBySession(context.Background(), "game-1")
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, EventGameEnd, last.EventType)
	assert.Equal(t, "b", last.Meta["winnerId"])

	snap = e.WorldState()
	assert.Equal(t, world.GameEnded, snap.Game.GamePhase)
	assert.Equal(t, "b", snap.Game.WinnerID)
}

func TestAttackDamageFloorsAtZero(t *testing.T) {
	e, store := newTestEngine(t, nil, []Agent{
		{ID: "a", Name: "Alice", HP: 100, Cards: []string{CardAttack}},
		{ID: "b", Name: "Bob", HP: 10, Cards: []string{CardHeal}},
	})

	_, err := e.Step(context.Background(), []world.Action{playCard("a", CardAttack, "b")})
	require.NoError(t, err)

	dealt, err := store.GetByType(context.Background(), "game-1", EventDamageDealt)
	require.NoError(t, err)
	require.Len(t, dealt, 1)
	assert.Equal(t, 10, dealt[0].Meta["oldHp"])
	assert.Equal(t, 0, dealt[0].Meta["newHp"])
	assert.Equal(t, 0, e.WorldState().Game.Agents["b"].HP)
}

func TestHealCapsAtMaxHP(t *testing.T) {
	e, store := newTestEngine(t, nil, []Agent{
		{ID: "b", Name: "Bob", HP: 100, Cards: []string{CardAttack}},
		{ID: "a", Name: "Alice", HP: 100, Cards: []string{CardHeal, CardHeal}},
	})
	ctx := context.Background()

	// Bob knocks Alice to 80; her first heal lands in full, the second
	// clips against maxHp.
	_, err := e.Step(ctx, []world.Action{playCard("b", CardAttack, "a")})
	require.NoError(t, err)
	_, err = e.Step(ctx, []world.Action{playCard("a", CardHeal, "")})
	require.NoError(t, err)
	_, err = e.Step(ctx, []world.Action{pass("b")})
	require.NoError(t, err)
	_, err = e.Step(ctx, []world.Action{playCard("a", CardHeal, "")})
	require.NoError(t, err)

	heals, err := store.GetByType(ctx, "game-1", EventHealApplied)
	require.NoError(t, err)
	require.Len(t, heals, 2)
	assert.Equal(t, 80, heals[0].Meta["oldHp"])
	assert.Equal(t, 95, heals[0].Meta["newHp"])
	assert.Equal(t, 95, heals[1].Meta["oldHp"])
	assert.Equal(t, 100, heals[1].Meta["newHp"])
	assert.Equal(t, 100, e.WorldState().Game.Agents["a"].HP)
}

func TestOutOfTurnActionIsRejectedAndReported(t *testing.T) {
	e, store := newTestEngine(t, nil, nil)

	results, err := e.Step(context.Background(), []world.Action{playCard("b", CardHeal, "")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, RejectionNotYourTurn, results[0].FailureReason)

	rejected, err := store.GetByType(context.Background(), "game-1", EventActionRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "b", rejected[0].Meta["agentId"])

	// The missed turn still closes and rotates to Bob.
	assert.Equal(t, "b", e.WorldState().Game.CurrentTurnAgentID)
}

func TestDuplicateSubmissionsKeepHighestPriority(t *testing.T) {
	e, _ := newTestEngine(t, nil, nil)

	low := pass("a")
	low.Priority = 1
	high := playCard("a", CardHeal, "")
	high.Priority = 5

	results, err := e.Step(context.Background(), []world.Action{low, high})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The dropped duplicate is reported first, then the winner's result.
	assert.False(t, results[0].Success)
	assert.Equal(t, ActionPass, results[0].Action.ActionType)
	assert.True(t, results[1].Success)
	assert.Equal(t, ActionPlayCard, results[1].Action.ActionType)
}

func TestValidationRejections(t *testing.T) {
	tests := []struct {
		name    string
		action  world.Action
		wantErr string
	}{
		{
			name:    "card not in hand",
			action:  playCard("a", CardDraw, ""),
			wantErr: "not in hand",
		},
		{
			name: "missing card parameter",
			action: world.Action{
				ActionID: "x", AgentID: "a", ActionType: ActionPlayCard,
			},
			wantErr: "requires a card parameter",
		},
		{
			name:    "attack without target",
			action:  playCard("a", CardAttack, ""),
			wantErr: "requires a target",
		},
		{
			name:    "attack self",
			action:  playCard("a", CardAttack, "a"),
			wantErr: "cannot attack itself",
		},
		{
			name:    "attack unknown target",
			action:  playCard("a", CardAttack, "ghost"),
			wantErr: "not in this game",
		},
		{
			name: "unknown action type",
			action: world.Action{
				ActionID: "x", AgentID: "a", ActionType: "juggle",
			},
			wantErr: "unknown game action type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store := newTestEngine(t, nil, []Agent{
				{ID: "a", Name: "Alice", Cards: []string{CardAttack, CardHeal}},
				{ID: "b", Name: "Bob", Cards: []string{CardAttack, CardHeal}},
			})

			results, err := e.Step(context.Background(), []world.Action{tt.action})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.False(t, results[0].Success)
			assert.Contains(t, results[0].FailureReason, tt.wantErr)

			rejected, err := store.GetByType(context.Background(), "game-1", EventActionRejected)
			require.NoError(t, err)
			require.Len(t, rejected, 1)
			assert.Equal(t, "a", rejected[0].Meta["agentId"])
		})
	}
}

func TestTurnRotationSkipsDeadAgents(t *testing.T) {
	e, store := newTestEngine(t, nil, []Agent{
		{ID: "a", Name: "Alice", HP: 100, Cards: []string{CardAttack}},
		{ID: "b", Name: "Bob", HP: 20, Cards: []string{CardHeal}},
		{ID: "c", Name: "Cleo", HP: 100, Cards: []string{CardHeal}},
	})
	ctx := context.Background()

	// Alice kills Bob; the next turn belongs to Cleo, not the dead Bob.
	_, err := e.Step(ctx, []world.Action{playCard("a", CardAttack, "b")})
	require.NoError(t, err)
	assert.Equal(t, "c", e.WorldState().Game.CurrentTurnAgentID)

	// Cleo passes; rotation wraps past Bob back to Alice.
	_, err = e.Step(ctx, []world.Action{pass("c")})
	require.NoError(t, err)
	assert.Equal(t, "a", e.WorldState().Game.CurrentTurnAgentID)

	starts, err := store.GetByType(ctx, "game-1", EventTurnStart)
	require.NoError(t, err)
	holders := make([]string, 0, len(starts))
	for _, ev := range starts {
		holders = append(holders, ev.Meta["agentId"].(string))
	}
	assert.Equal(t, []string{"a", "c", "a"}, holders)
}

func TestMaxTurnsEndsGame(t *testing.T) {
	e, store := newTestEngine(t, func(p *Params) { p.MaxTurns = 2 }, nil)
	ctx := context.Background()

	_, err := e.Step(ctx, []world.Action{pass("a")})
	require.NoError(t, err)
	assert.False(t, e.Terminated())

	_, err = e.Step(ctx, []world.Action{pass("b")})
	require.NoError(t, err)
	require.True(t, e.Terminated())
	assert.Equal(t, "maximum turns reached", e.TerminationReason())

	events, err := store.GetBySession(ctx, "game-1")
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, EventGameEnd, last.EventType)
	assert.Nil(t, last.Meta["winnerId"])
	assert.Equal(t, 2, last.Meta["totalTurns"])

	// Terminated worlds ignore further steps.
	before, err := store.Count(ctx, "game-1")
	require.NoError(t, err)
	results, err := e.Step(ctx, []world.Action{pass("a")})
	require.NoError(t, err)
	assert.Empty(t, results)
	after, err := store.Count(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDrawIsDeterministicForSeed(t *testing.T) {
	draw := func() (string, world.Event) {
		e, store := newTestEngine(t, func(p *Params) { p.Seed = 42 }, []Agent{
			{ID: "a", Name: "Alice", Cards: []string{CardDraw}},
			{ID: "b", Name: "Bob", Cards: []string{CardHeal}},
		})
		_, err := e.Step(context.Background(), []world.Action{playCard("a", CardDraw, "")})
		require.NoError(t, err)

		drawn, err := store.GetByType(context.Background(), "game-1", EventCardDrawn)
		require.NoError(t, err)
		require.Len(t, drawn, 1)

		hand := e.WorldState().Game.Agents["a"].Hand
		require.Len(t, hand, 1)
		return hand[0], drawn[0]
	}

	card1, ev1 := draw()
	card2, ev2 := draw()
	assert.Equal(t, card1, card2)
	assert.Contains(t, config.DefaultGameConfig().CardSet, card1)

	// Draws are private to the drawing agent.
	assert.True(t, ev1.VisibleTo("a"))
	assert.False(t, ev2.VisibleTo("b"))
}

func TestEligibleAgentsFollowsTurn(t *testing.T) {
	e, _ := newTestEngine(t, func(p *Params) { p.MaxTurns = 1 }, nil)

	assert.Equal(t, []string{"a"}, e.EligibleAgents())

	_, err := e.Step(context.Background(), []world.Action{pass("a")})
	require.NoError(t, err)
	require.True(t, e.Terminated())
	assert.Empty(t, e.EligibleAgents())
}

func TestInitializeAgentsAppliesDefaults(t *testing.T) {
	e, _ := newTestEngine(t, nil, []Agent{
		{ID: "a", Name: "Alice"},
		{ID: "b", Name: "Bob", HP: 40, Cards: []string{CardHeal}},
	})
	cfg := config.DefaultGameConfig()

	snap := e.WorldState()
	alice := snap.Game.Agents["a"]
	assert.Equal(t, cfg.InitialHP, alice.HP)
	assert.Equal(t, cfg.InitialHP, alice.MaxHP)
	require.Len(t, alice.Hand, cfg.InitialHandSize)
	for _, card := range alice.Hand {
		assert.Contains(t, cfg.CardSet, card)
	}

	bob := snap.Game.Agents["b"]
	assert.Equal(t, 40, bob.HP)
	assert.Equal(t, 40, bob.MaxHP)
	assert.Equal(t, []string{CardHeal}, bob.Hand)

	assert.Equal(t, []string{"a", "b"}, snap.Game.TurnOrder)
	assert.Equal(t, "a", snap.Game.CurrentTurnAgentID)
}

func TestNewRejectsBadParams(t *testing.T) {
	store := eventlog.NewMemoryStore()

	_, err := New(Params{Store: store})
	require.ErrorContains(t, err, "session id")

	cfg := config.DefaultGameConfig()
	cfg.CardSet = nil
	_, err = New(Params{SessionID: "game-1", Config: cfg, Store: store})
	require.ErrorContains(t, err, "card set")
}

func TestInitializeAgentsRequiresTwoPlayers(t *testing.T) {
	e, err := New(Params{SessionID: "game-1", Store: eventlog.NewMemoryStore()})
	require.NoError(t, err)
	err = e.InitializeAgents(context.Background(), []Agent{{ID: "solo"}})
	require.ErrorContains(t, err, "at least two players")
}
