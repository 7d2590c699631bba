package logic

import (
	"sort"

	"github.com/agentarium/worldengine/pkg/world"
)

// Arbiter admits one action per researcher per round and orders the
// retained set so the review queue drains before it grows: accepts
// first, then refutations, then new derivations, ties broken by
// confidence.
type Arbiter struct{}

// NewArbiter builds the logic arbiter.
func NewArbiter() *Arbiter { return &Arbiter{} }

func rank(actionType string) int {
	switch actionType {
	case ActionAccept:
		return 2
	case ActionRefute:
		return 1
	default:
		return 0
	}
}

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
		held := out[i]
		if rank(a.ActionType) > rank(held.ActionType) ||
			(rank(a.ActionType) == rank(held.ActionType) && a.Confidence > held.Confidence) {
			out[i] = a
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].ActionType), rank(out[j].ActionType)
		if ri != rj {
			return ri > rj
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
