// Package debate implements the debate world kind: phased discussion
// between agents with speaking-order arbitration, interrupt handling,
// moderator interventions, and optional narrated summaries.
package debate

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/engine"
	"github.com/agentarium/worldengine/pkg/world"
)

// Action types accepted by the debate rule engine.
const (
	ActionSpeak     = "speak"
	ActionRespond   = "respond"
	ActionQuestion  = "question"
	ActionInterrupt = "interrupt"
	ActionVote      = "vote"
	ActionPass      = "pass"
)

// Event types emitted by debate worlds.
const (
	EventDebateStart       = "debate_start"
	EventSpeech            = "speech"
	EventSpeechRejected    = "speech_rejected"
	EventVote              = "vote"
	EventPhaseSwitch       = "phase_switch"
	EventPhaseSummary      = "phase_summary"
	EventModeratorCall     = "moderator_call"
	EventModeratorQuestion = "moderator_question"
	EventDebateEnd         = "debate_end"
)

func isSpeechType(actionType string) bool {
	switch actionType {
	case ActionSpeak, ActionRespond, ActionQuestion, ActionInterrupt:
		return true
	default:
		return false
	}
}

// Rules validates and applies debate actions. Checks run in priority
// order: participant membership, then the consecutive-speak limit, then
// interrupt permission.
type Rules struct {
	cfg    *config.DebateConfig
	logger *slog.Logger
}

// NewRules builds the debate rule set.
func NewRules(cfg *config.DebateConfig, logger *slog.Logger) *Rules {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rules{cfg: cfg, logger: logger}
}

// Validate implements engine.RuleEngine.
func (r *Rules) Validate(a world.Action, s *world.State) world.Validation {
	d := s.Debate
	if !slices.Contains(d.AgentIDs, a.AgentID) {
		return world.Invalid(fmt.Sprintf("agent %s is not a debate participant", a.AgentID))
	}

	switch a.ActionType {
	case ActionSpeak, ActionRespond:
		if a.AgentID == d.LastSpeakerID && d.ConsecutiveSpeaks >= r.cfg.ConsecutiveSpeakLimit {
			return world.Invalid(fmt.Sprintf(
				"agent %s has held the floor for %d consecutive speeches", a.AgentID, d.ConsecutiveSpeaks))
		}
	case ActionInterrupt:
		if !d.AllowInterrupt {
			return world.Invalid("interrupts are not allowed in the current phase")
		}
		if a.Priority < r.cfg.InterruptMinPriority {
			return world.Invalid(fmt.Sprintf(
				"interrupt priority %d is below the required %d", a.Priority, r.cfg.InterruptMinPriority))
		}
	case ActionQuestion, ActionVote, ActionPass:
	default:
		return world.Invalid(fmt.Sprintf("unknown debate action type %q", a.ActionType))
	}

	var warnings []string
	if isSpeechType(a.ActionType) && a.ParamString("content") == "" {
		warnings = append(warnings, "speech has no content")
	}
	return world.Valid(warnings...)
}

// Apply implements engine.RuleEngine. Speech-like actions emit a speech
// event, votes are tallied into global vars, and a pass changes nothing.
func (r *Rules) Apply(a world.Action, s *world.State) world.ActionResult {
	switch a.ActionType {
	case ActionSpeak, ActionRespond, ActionQuestion, ActionInterrupt:
		ev := world.Event{
			EventType: EventSpeech,
			Source:    a.AgentID,
			Content:   a.ParamString("content"),
			Meta: map[string]any{
				"actionType":         a.ActionType,
				"phaseId":            s.CurrentPhase.PhaseID,
				world.MetaVisibility: world.VisibilityPublic,
			},
		}
		if a.ActionType == ActionInterrupt {
			ev.Meta["isInterrupt"] = true
		}
		if a.Target != nil {
			ev.Meta["targetId"] = a.Target.ID
		}
		return world.ActionResult{Action: a, Success: true, Events: []world.Event{ev}}

	case ActionVote:
		choice := a.ParamString("choice")
		if choice == "" {
			choice = a.ParamString("content")
		}
		votes, _ := s.GlobalVars["votes"].(map[string]any)
		if votes == nil {
			votes = map[string]any{}
			s.GlobalVars["votes"] = votes
		}
		prior := votes[a.AgentID]
		votes[a.AgentID] = choice
		ev := world.Event{
			EventType: EventVote,
			Source:    a.AgentID,
			Content:   choice,
			Meta: map[string]any{
				"choice":             choice,
				"phaseId":            s.CurrentPhase.PhaseID,
				world.MetaVisibility: world.VisibilityPublic,
			},
		}
		return world.ActionResult{
			Action:  a,
			Success: true,
			Effects: []world.StateChange{{
				ChangeType: world.ChangeUpdate,
				EntityType: "world",
				EntityID:   s.WorldID,
				FieldPath:  "globalVars.votes." + a.AgentID,
				OldValue:   prior,
				NewValue:   choice,
			}},
			Events: []world.Event{ev},
		}

	case ActionPass:
		return world.ActionResult{Action: a, Success: true}
	}

	return world.ActionResult{
		Action:        a,
		Success:       false,
		FailureReason: fmt.Sprintf("unknown debate action type %q", a.ActionType),
	}
}

// EnforceConstraints implements engine.RuleEngine. The speak-ratio check
// only warns: a dominant speaker is flagged in rule states and logged,
// never blocked.
func (r *Rules) EnforceConstraints(s *world.State) engine.ConstraintResult {
	d := s.Debate
	if d.MaxSpeakRatio <= 0 {
		return engine.ConstraintResult{}
	}
	total := 0
	for _, c := range d.SpeakCounts {
		total += c
	}
	if total == 0 {
		return engine.ConstraintResult{}
	}
	for _, id := range d.AgentIDs {
		key := "max_speak_ratio:" + id
		share := float64(d.SpeakCounts[id]) / float64(total)
		if share > d.MaxSpeakRatio {
			if !s.RuleStates[key] {
				r.logger.Warn("speak ratio exceeded",
					"agent_id", id,
					"share", share,
					"max_ratio", d.MaxSpeakRatio)
			}
			s.RuleStates[key] = true
		} else {
			delete(s.RuleStates, key)
		}
	}
	return engine.ConstraintResult{}
}
