package game

import (
	"sort"

	"github.com/agentarium/worldengine/pkg/world"
)

// Arbiter enforces turn order: only the current turn holder's actions
// survive arbitration, and of those only the highest-priority one. The
// kernel reports everything dropped here as action_rejected.
type Arbiter struct{}

// NewArbiter builds the game arbiter.
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

// ResolveConflicts implements engine.Arbiter.
func (arb *Arbiter) ResolveConflicts(actions []world.Action, s *world.State) []world.Action {
	g := s.Game
	if g == nil || g.CurrentTurnAgentID == "" {
		return nil
	}
	mine := make([]world.Action, 0, 1)
	for _, a := range actions {
		if a.AgentID == g.CurrentTurnAgentID {
			mine = append(mine, a)
		}
	}
	if len(mine) == 0 {
		return nil
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].Priority > mine[j].Priority
	})
	return mine[:1]
}
