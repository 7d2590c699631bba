package society

import "github.com/agentarium/worldengine/pkg/world"

// Arbiter lets every active agent act once per tick. When an agent
// submits several actions the first non-idle one wins; duplicates are
// dropped silently. Submission order is preserved across agents.
type Arbiter struct{}

// NewArbiter builds the society arbiter.
func NewArbiter() *Arbiter { return &Arbiter{} }

// ResolveConflicts implements engine.Arbiter.
func (arb *Arbiter) ResolveConflicts(actions []world.Action, _ *world.State) []world.Action {
	chosen := make(map[string]int, len(actions))
	out := make([]world.Action, 0, len(actions))
	for _, a := range actions {
		i, ok := chosen[a.AgentID]
		if !ok {
			chosen[a.AgentID] = len(out)
			out = append(out, a)
			continue
		}
		if out[i].ActionType == ActionIdle && a.ActionType != ActionIdle {
			out[i] = a
		}
	}
	return out
}
