// Package logic implements the collaborative formal-derivation world
// kind: registered researchers propose conclusions from established
// premises, challenge each other's pending proposals, and race to
// derive the problem's goal statements.
package logic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/engine"
	"github.com/agentarium/worldengine/pkg/world"
)

// Action types accepted by the logic rule engine.
const (
	ActionDerive = "derive"
	ActionRefute = "refute"
	ActionExtend = "extend"
	ActionAccept = "accept"
)

// Event types emitted by logic worlds.
const (
	EventProblemStart   = "PROBLEM_START"
	EventProposal       = "PROPOSAL"
	EventAccepted       = "ACCEPTED"
	EventRejected       = "REJECTED"
	EventContradiction  = "CONTRADICTION"
	EventGoalProved     = "GOAL_PROVED"
	EventActionRejected = "ACTION_REJECTED"
	EventProblemEnd     = "PROBLEM_END"
)

// RefutationContradiction marks a refutation that exposes an outright
// contradiction rather than a gap in the derivation.
const RefutationContradiction = "contradiction"

// Rules validates and applies derivation actions. Accepted conclusions
// are final: refutation reaches pending proposals only.
type Rules struct {
	cfg *config.LogicConfig
}

// NewRules builds the logic rule set.
func NewRules(cfg *config.LogicConfig) *Rules {
	return &Rules{cfg: cfg}
}

// Validate implements engine.RuleEngine.
func (r *Rules) Validate(a world.Action, s *world.State) world.Validation {
	l := s.Logic
	if _, ok := l.Researchers[a.AgentID]; !ok {
		return world.Invalid(fmt.Sprintf("agent %s is not a registered researcher", a.AgentID))
	}
	p := &l.Problem

	switch a.ActionType {
	case ActionDerive:
		return r.validateDerive(a, p)
	case ActionRefute:
		targetID := a.ParamString("targetId")
		if targetID == "" {
			return world.Invalid("refute requires a targetId")
		}
		if _, accepted := p.Conclusions[targetID]; accepted {
			return world.Invalid(fmt.Sprintf("conclusion %s is accepted and final", targetID))
		}
		if _, pending := p.PendingProposals[targetID]; !pending {
			return world.Invalid(fmt.Sprintf("proposal %s does not exist", targetID))
		}
		if strings.TrimSpace(a.ParamString("reason")) == "" {
			return world.Invalid("refute requires a reason")
		}
	case ActionExtend:
		baseID := a.ParamString("baseId")
		if baseID == "" {
			return world.Invalid("extend requires a baseId")
		}
		if _, accepted := p.Conclusions[baseID]; !accepted {
			return world.Invalid(fmt.Sprintf("base %s is not an accepted conclusion", baseID))
		}
		if strings.TrimSpace(a.ParamString("conclusion")) == "" {
			return world.Invalid("extend requires a conclusion")
		}
	case ActionAccept:
		proposalID := a.ParamString("proposalId")
		if proposalID == "" {
			return world.Invalid("accept requires a proposalId")
		}
		if _, pending := p.PendingProposals[proposalID]; !pending {
			return world.Invalid(fmt.Sprintf("proposal %s is not pending", proposalID))
		}
	default:
		return world.Invalid(fmt.Sprintf("unknown logic action type %q", a.ActionType))
	}
	return world.Valid()
}

func (r *Rules) validateDerive(a world.Action, p *world.Problem) world.Validation {
	if strings.TrimSpace(a.ParamString("conclusion")) == "" {
		return world.Invalid("derive requires a conclusion")
	}
	for _, id := range a.ParamStrings("premises") {
		if _, ok := p.Hypotheses[id]; ok {
			continue
		}
		if _, ok := p.Conclusions[id]; ok {
			continue
		}
		return world.Invalid(fmt.Sprintf("premise %s is not an established statement", id))
	}
	var warnings []string
	rule := strings.ReplaceAll(a.ParamString("rule"), "_", "-")
	if rule == "modus-ponens" && len(a.ParamStrings("premises")) != 2 {
		warnings = append(warnings,
			fmt.Sprintf("modus ponens expects 2 premises, got %d", len(a.ParamStrings("premises"))))
	}
	return world.Valid(warnings...)
}

// Apply implements engine.RuleEngine.
func (r *Rules) Apply(a world.Action, s *world.State) world.ActionResult {
	result := world.ActionResult{Action: a, Success: true}
	switch a.ActionType {
	case ActionDerive:
		r.applyDerive(a, s, a.ParamStrings("premises"), a.ParamString("rule"), &result)
	case ActionRefute:
		r.applyRefute(a, s, &result)
	case ActionExtend:
		// Extension is derivation from a single accepted base.
		rule := a.ParamString("rule")
		if rule == "" {
			rule = "extension"
		}
		r.applyDerive(a, s, []string{a.ParamString("baseId")}, rule, &result)
	case ActionAccept:
		r.applyAccept(a, s, &result)
	}
	return result
}

func (r *Rules) applyDerive(a world.Action, s *world.State, premises []string, rule string, result *world.ActionResult) {
	l := s.Logic
	p := &l.Problem

	p.NextProposalSeq++
	id := fmt.Sprintf("p%d", p.NextProposalSeq)
	round := l.Discussion.CurrentRound + 1
	c := &world.Conclusion{
		ID:         id,
		LaTeX:      strings.TrimSpace(a.ParamString("conclusion")),
		Premises:   append([]string(nil), premises...),
		Rule:       rule,
		ProposedBy: a.AgentID,
		Status:     world.ProposalPending,
		Round:      round,
	}
	p.PendingProposals[id] = c
	l.Researchers[a.AgentID].ProposalsSubmitted++

	result.Effects = append(result.Effects, world.StateChange{
		ChangeType: world.ChangeCreate,
		EntityType: "proposal",
		EntityID:   id,
		NewValue:   c.LaTeX,
	})
	result.Events = append(result.Events, world.Event{
		EventType: EventProposal,
		Source:    a.AgentID,
		Content:   fmt.Sprintf("%s proposes %s via %s", researcherName(s, a.AgentID), c.LaTeX, rule),
		Meta: map[string]any{
			"proposalId":         id,
			"latex":              c.LaTeX,
			"rule":               rule,
			"premises":           append([]string(nil), premises...),
			"round":              round,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})
}

func (r *Rules) applyRefute(a world.Action, s *world.State, result *world.ActionResult) {
	l := s.Logic
	p := &l.Problem
	targetID := a.ParamString("targetId")
	reason := strings.TrimSpace(a.ParamString("reason"))
	refType := a.ParamString("type")

	target := p.PendingProposals[targetID]
	target.Status = world.ProposalRejected
	delete(p.PendingProposals, targetID)

	refID := fmt.Sprintf("ref%d", len(p.Refutations)+1)
	p.Refutations[refID] = &world.Refutation{
		ID:        refID,
		TargetID:  targetID,
		Reason:    reason,
		Type:      refType,
		RefutedBy: a.AgentID,
		Round:     l.Discussion.CurrentRound + 1,
	}
	l.Researchers[a.AgentID].SuccessfulRefutations++
	if stats, ok := l.Researchers[target.ProposedBy]; ok {
		stats.RejectedProposals++
	}

	result.Effects = append(result.Effects,
		world.StateChange{
			ChangeType: world.ChangeDelete, EntityType: "proposal", EntityID: targetID,
			FieldPath: "status", OldValue: world.ProposalPending, NewValue: world.ProposalRejected,
		},
		world.StateChange{
			ChangeType: world.ChangeCreate, EntityType: "refutation", EntityID: refID,
			NewValue: reason,
		},
	)
	result.Events = append(result.Events, world.Event{
		EventType: EventRejected,
		Source:    a.AgentID,
		Content: fmt.Sprintf("%s refutes %s: %s",
			researcherName(s, a.AgentID), target.LaTeX, reason),
		Meta: map[string]any{
			"targetId":           targetID,
			"refutationId":       refID,
			"reason":             reason,
			"type":               refType,
			"proposedBy":         target.ProposedBy,
			"round":              l.Discussion.CurrentRound + 1,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})
	if refType == RefutationContradiction {
		result.Events = append(result.Events, world.Event{
			EventType: EventContradiction,
			Source:    a.AgentID,
			Content: fmt.Sprintf("%s exposes a contradiction in %s",
				researcherName(s, a.AgentID), target.LaTeX),
			Meta: map[string]any{
				"targetId":           targetID,
				"refutationId":       refID,
				world.MetaVisibility: world.VisibilityPublic,
			},
		})
	}
}

func (r *Rules) applyAccept(a world.Action, s *world.State, result *world.ActionResult) {
	l := s.Logic
	p := &l.Problem
	proposalID := a.ParamString("proposalId")

	c := p.PendingProposals[proposalID]
	delete(p.PendingProposals, proposalID)
	c.Status = world.ProposalAccepted
	c.Contributors = append(c.Contributors, c.ProposedBy)
	p.Conclusions[proposalID] = c
	if stats, ok := l.Researchers[c.ProposedBy]; ok {
		stats.AcceptedProposals++
	}

	result.Effects = append(result.Effects, world.StateChange{
		ChangeType: world.ChangeUpdate, EntityType: "proposal", EntityID: proposalID,
		FieldPath: "status", OldValue: world.ProposalPending, NewValue: world.ProposalAccepted,
	})
	result.Events = append(result.Events, world.Event{
		EventType: EventAccepted,
		Source:    a.AgentID,
		Content: fmt.Sprintf("%s accepts %s into the body of conclusions",
			researcherName(s, a.AgentID), c.LaTeX),
		Meta: map[string]any{
			"proposalId":         proposalID,
			"latex":              c.LaTeX,
			"proposedBy":         c.ProposedBy,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})

	// An accepted conclusion that matches an open goal settles it.
	goalIDs := make([]string, 0, len(p.Goals))
	for id := range p.Goals {
		goalIDs = append(goalIDs, id)
	}
	sort.Strings(goalIDs)
	for _, id := range goalIDs {
		g := p.Goals[id]
		if g.Status != world.GoalOpen {
			continue
		}
		if strings.TrimSpace(g.LaTeX) != strings.TrimSpace(c.LaTeX) {
			continue
		}
		g.Status = world.GoalProved
		g.ProvedBy = c.ProposedBy
		result.Effects = append(result.Effects, world.StateChange{
			ChangeType: world.ChangeUpdate, EntityType: "goal", EntityID: id,
			FieldPath: "status", OldValue: world.GoalOpen, NewValue: world.GoalProved,
		})
		result.Events = append(result.Events, world.Event{
			EventType: EventGoalProved,
			Source:    world.SourceSystem,
			Content:   fmt.Sprintf("Goal %s is proved: %s", id, g.LaTeX),
			Meta: map[string]any{
				"goalId":             id,
				"latex":              g.LaTeX,
				"provedBy":           g.ProvedBy,
				"proposalId":         proposalID,
				world.MetaVisibility: world.VisibilityPublic,
			},
		})
	}
}

// EnforceConstraints implements engine.RuleEngine: once every goal is
// proved the problem is solved and the scheduler ends the session.
func (r *Rules) EnforceConstraints(s *world.State) engine.ConstraintResult {
	p := &s.Logic.Problem
	var cr engine.ConstraintResult
	if p.IsSolved || len(p.Goals) == 0 {
		return cr
	}
	for _, g := range p.Goals {
		if g.Status != world.GoalProved {
			return cr
		}
	}
	p.IsSolved = true
	cr.Changes = append(cr.Changes, world.StateChange{
		ChangeType: world.ChangeUpdate, EntityType: "problem", EntityID: p.ProblemID,
		FieldPath: "isSolved", OldValue: false, NewValue: true,
	})
	return cr
}

func researcherName(s *world.State, id string) string {
	if ent, ok := s.Entities[id]; ok && ent.Name != "" {
		return ent.Name
	}
	return id
}
