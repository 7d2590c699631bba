// Package game implements the turn-based card game world kind: one
// agent acts per turn, cards deal damage, heal, or draw, and the last
// agent standing wins.
package game

import (
	"fmt"
	"math/rand/v2"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/engine"
	"github.com/agentarium/worldengine/pkg/world"
)

// Action types accepted by the game rule engine.
const (
	ActionPlayCard = "play_card"
	ActionPass     = "pass"
)

// Card names recognized by the rule engine.
const (
	CardAttack = "attack"
	CardHeal   = "heal"
	CardDraw   = "draw"
)

// Event types emitted by game worlds.
const (
	EventGameStart      = "game_start"
	EventCardPlayed     = "card_played"
	EventDamageDealt    = "damage_dealt"
	EventHealApplied    = "heal_applied"
	EventCardDrawn      = "card_drawn"
	EventAgentDied      = "agent_died"
	EventTurnEnd        = "turn_end"
	EventTurnStart      = "turn_start"
	EventActionRejected = "action_rejected"
	EventGameEnd        = "game_end"
)

// RejectionNotYourTurn is the reason attached to out-of-turn actions.
const RejectionNotYourTurn = "not your turn"

// Rules validates and applies card plays.
type Rules struct {
	cfg *config.GameConfig
	rng *rand.Rand
}

// NewRules builds the game rule set around a seeded source for draws.
func NewRules(cfg *config.GameConfig, rng *rand.Rand) *Rules {
	return &Rules{cfg: cfg, rng: rng}
}

// Validate implements engine.RuleEngine.
func (r *Rules) Validate(a world.Action, s *world.State) world.Validation {
	g := s.Game
	if g.GamePhase != world.GamePlaying {
		return world.Invalid("the game is over")
	}
	if a.AgentID != g.CurrentTurnAgentID {
		return world.Invalid(RejectionNotYourTurn)
	}
	agent, ok := g.Agents[a.AgentID]
	if !ok {
		return world.Invalid(fmt.Sprintf("agent %s is not in this game", a.AgentID))
	}
	if !agent.IsAlive {
		return world.Invalid(fmt.Sprintf("agent %s is dead", a.AgentID))
	}

	switch a.ActionType {
	case ActionPass:
		return world.Valid()
	case ActionPlayCard:
	default:
		return world.Invalid(fmt.Sprintf("unknown game action type %q", a.ActionType))
	}

	card := a.ParamString("card")
	if card == "" {
		return world.Invalid("play_card requires a card parameter")
	}
	if !agent.HasCard(card) {
		return world.Invalid(fmt.Sprintf("card %q is not in hand", card))
	}

	switch card {
	case CardAttack:
		if a.Target == nil || a.Target.ID == "" {
			return world.Invalid("attack requires a target")
		}
		if a.Target.ID == a.AgentID {
			return world.Invalid("an agent cannot attack itself")
		}
		target, ok := g.Agents[a.Target.ID]
		if !ok {
			return world.Invalid(fmt.Sprintf("target %s is not in this game", a.Target.ID))
		}
		if !target.IsAlive {
			return world.Invalid(fmt.Sprintf("target %s is already dead", a.Target.ID))
		}
	case CardHeal, CardDraw:
	default:
		return world.Invalid(fmt.Sprintf("unknown card type %q", card))
	}
	return world.Valid()
}

// Apply implements engine.RuleEngine. The played card leaves the hand
// first; its effect follows as separate events so subscribers can render
// the play and its outcome independently.
func (r *Rules) Apply(a world.Action, s *world.State) world.ActionResult {
	if a.ActionType == ActionPass {
		return world.ActionResult{Action: a, Success: true}
	}

	g := s.Game
	agent := g.Agents[a.AgentID]
	card := a.ParamString("card")
	agent.RemoveCard(card)

	result := world.ActionResult{Action: a, Success: true}
	result.Effects = append(result.Effects, world.StateChange{
		ChangeType: world.ChangeDelete,
		EntityType: "card",
		EntityID:   a.AgentID,
		FieldPath:  "hand",
		OldValue:   card,
	})

	played := world.Event{
		EventType: EventCardPlayed,
		Source:    a.AgentID,
		Content:   fmt.Sprintf("%s plays %s", agentName(s, a.AgentID), card),
		Meta: map[string]any{
			"card":               card,
			world.MetaVisibility: world.VisibilityPublic,
		},
	}
	if a.Target != nil {
		played.Meta["targetId"] = a.Target.ID
	}
	result.Events = append(result.Events, played)

	switch card {
	case CardAttack:
		r.applyAttack(a, s, &result)
	case CardHeal:
		r.applyHeal(a, s, &result)
	case CardDraw:
		r.applyDraw(a, s, &result)
	}
	return result
}

func (r *Rules) applyAttack(a world.Action, s *world.State, result *world.ActionResult) {
	g := s.Game
	target := g.Agents[a.Target.ID]
	oldHP := target.HP
	target.HP = oldHP - r.cfg.AttackDamage
	if target.HP < 0 {
		target.HP = 0
	}

	result.Effects = append(result.Effects, world.StateChange{
		ChangeType: world.ChangeUpdate,
		EntityType: "agent",
		EntityID:   a.Target.ID,
		FieldPath:  "hp",
		OldValue:   oldHP,
		NewValue:   target.HP,
	})
	result.Events = append(result.Events, world.Event{
		EventType: EventDamageDealt,
		Source:    a.AgentID,
		Content: fmt.Sprintf("%s hits %s for %d damage",
			agentName(s, a.AgentID), agentName(s, a.Target.ID), r.cfg.AttackDamage),
		Meta: map[string]any{
			"targetId":           a.Target.ID,
			"damage":             r.cfg.AttackDamage,
			"oldHp":              oldHP,
			"newHp":              target.HP,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})

	if target.HP <= 0 && target.IsAlive {
		target.IsAlive = false
		if ent, ok := s.Entities[a.Target.ID]; ok {
			ent.Status = world.EntityDestroyed
		}
		result.Effects = append(result.Effects, world.StateChange{
			ChangeType: world.ChangeUpdate,
			EntityType: "agent",
			EntityID:   a.Target.ID,
			FieldPath:  "isAlive",
			OldValue:   true,
			NewValue:   false,
		})
		result.Events = append(result.Events, world.Event{
			EventType: EventAgentDied,
			Source:    world.SourceSystem,
			Content:   fmt.Sprintf("%s has fallen", agentName(s, a.Target.ID)),
			Meta: map[string]any{
				"agentId":            a.Target.ID,
				world.MetaVisibility: world.VisibilityPublic,
			},
		})
	}
}

func (r *Rules) applyHeal(a world.Action, s *world.State, result *world.ActionResult) {
	agent := s.Game.Agents[a.AgentID]
	oldHP := agent.HP
	agent.HP = oldHP + r.cfg.HealAmount
	if agent.HP > agent.MaxHP {
		agent.HP = agent.MaxHP
	}

	result.Effects = append(result.Effects, world.StateChange{
		ChangeType: world.ChangeUpdate,
		EntityType: "agent",
		EntityID:   a.AgentID,
		FieldPath:  "hp",
		OldValue:   oldHP,
		NewValue:   agent.HP,
	})
	result.Events = append(result.Events, world.Event{
		EventType: EventHealApplied,
		Source:    a.AgentID,
		Content:   fmt.Sprintf("%s heals for %d", agentName(s, a.AgentID), agent.HP-oldHP),
		Meta: map[string]any{
			"oldHp":              oldHP,
			"newHp":              agent.HP,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})
}

func (r *Rules) applyDraw(a world.Action, s *world.State, result *world.ActionResult) {
	agent := s.Game.Agents[a.AgentID]
	drawn := r.cfg.CardSet[r.rng.IntN(len(r.cfg.CardSet))]
	agent.Hand = append(agent.Hand, drawn)

	result.Effects = append(result.Effects, world.StateChange{
		ChangeType: world.ChangeCreate,
		EntityType: "card",
		EntityID:   a.AgentID,
		FieldPath:  "hand",
		NewValue:   drawn,
	})
	// The drawn card is visible only to the drawing agent.
	result.Events = append(result.Events, world.Event{
		EventType: EventCardDrawn,
		Source:    a.AgentID,
		Content:   fmt.Sprintf("%s draws a card", agentName(s, a.AgentID)),
		Meta: map[string]any{
			"card":          drawn,
			world.MetaScope: []string{a.AgentID},
		},
	})
}

// EnforceConstraints implements engine.RuleEngine. The win condition is
// checked at the start of the next step so the dying turn still
// completes its rotation; see Engine.StepStartEvents.
func (r *Rules) EnforceConstraints(*world.State) engine.ConstraintResult {
	return engine.ConstraintResult{}
}

func agentName(s *world.State, id string) string {
	if ent, ok := s.Entities[id]; ok && ent.Name != "" {
		return ent.Name
	}
	return id
}
