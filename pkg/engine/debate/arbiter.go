package debate

import (
	"sort"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/world"
)

// Arbiter decides who takes the floor each step. Passes never compete,
// interrupts outrank ordinary speech, and the configured speaking order
// picks the single action allowed to proceed.
type Arbiter struct {
	cfg *config.DebateConfig
}

// NewArbiter builds the debate arbiter.
func NewArbiter(cfg *config.DebateConfig) *Arbiter {
	return &Arbiter{cfg: cfg}
}

// ResolveConflicts implements engine.Arbiter.
func (arb *Arbiter) ResolveConflicts(actions []world.Action, s *world.State) []world.Action {
	d := s.Debate
	if d == nil {
		return nil
	}

	candidates := make([]world.Action, 0, len(actions))
	for _, a := range actions {
		if a.ActionType == ActionPass {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil
	}

	// An agent at the consecutive-speak limit loses arbitration whenever
	// anyone else wants the floor. When their action is the only one, it
	// passes through so the rule engine can reject it visibly.
	atLimit := func(a world.Action) bool {
		return a.AgentID == d.LastSpeakerID && d.ConsecutiveSpeaks >= arb.cfg.ConsecutiveSpeakLimit
	}
	kept := make([]world.Action, 0, len(candidates))
	for _, a := range candidates {
		if !atLimit(a) {
			kept = append(kept, a)
		}
	}
	if len(kept) > 0 {
		candidates = kept
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ai, aj := candidates[i], candidates[j]
		if (ai.ActionType == ActionInterrupt) != (aj.ActionType == ActionInterrupt) {
			return ai.ActionType == ActionInterrupt
		}
		if ai.Priority != aj.Priority {
			return ai.Priority > aj.Priority
		}
		return ai.Confidence > aj.Confidence
	})

	switch d.SpeakingOrder {
	case world.SpeakingRoundRobin:
		expected := d.ExpectedSpeaker()
		for _, a := range candidates {
			if a.AgentID == expected {
				return []world.Action{a}
			}
		}
		if d.AllowInterrupt {
			for _, a := range candidates {
				if a.ActionType == ActionInterrupt && a.Priority >= arb.cfg.InterruptOverride {
					return []world.Action{a}
				}
			}
		}
		return nil

	case world.SpeakingModerated:
		best := candidates[0]
		for _, a := range candidates[1:] {
			if d.SpeakCounts[a.AgentID] < d.SpeakCounts[best.AgentID] {
				best = a
			}
		}
		return []world.Action{best}

	default: // free
		return candidates[:1]
	}
}
