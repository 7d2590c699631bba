package logic

import (
	"fmt"

	"github.com/agentarium/worldengine/pkg/world"
)

// ReplayProblem rebuilds the derivation workspace from an event log in
// sequence order. The chain's events carry everything the problem needs;
// runtime fields outside it (researcher stats, round counters) are not
// reconstructed. Meta readers tolerate both native and JSON-decoded
// value types so redis-backed logs replay the same as in-memory ones.
func ReplayProblem(events []world.Event) (*world.Problem, error) {
	p := &world.Problem{
		Hypotheses:       map[string]*world.Proposition{},
		Conclusions:      map[string]*world.Conclusion{},
		PendingProposals: map[string]*world.Conclusion{},
		Goals:            map[string]*world.Goal{},
		Refutations:      map[string]*world.Refutation{},
	}

	for _, ev := range events {
		switch ev.EventType {
		case EventProblemStart:
			p.ProblemID = ev.MetaString("problemId")
			p.Statement = ev.MetaString("statement")
			for id, latex := range metaStringMap(ev, "hypotheses") {
				p.Hypotheses[id] = &world.Proposition{ID: id, LaTeX: latex}
			}
			for id, latex := range metaStringMap(ev, "goals") {
				p.Goals[id] = &world.Goal{ID: id, LaTeX: latex, Status: world.GoalOpen}
			}

		case EventProposal:
			id := ev.MetaString("proposalId")
			if id == "" {
				return nil, fmt.Errorf("PROPOSAL event %s carries no proposalId", ev.EventID)
			}
			p.PendingProposals[id] = &world.Conclusion{
				ID:         id,
				LaTeX:      ev.MetaString("latex"),
				Premises:   metaStrings(ev, "premises"),
				Rule:       ev.MetaString("rule"),
				ProposedBy: ev.Source,
				Status:     world.ProposalPending,
				Round:      metaInt(ev, "round"),
			}
			p.NextProposalSeq++

		case EventAccepted:
			id := ev.MetaString("proposalId")
			c, ok := p.PendingProposals[id]
			if !ok {
				return nil, fmt.Errorf("ACCEPTED references unknown proposal %s", id)
			}
			delete(p.PendingProposals, id)
			c.Status = world.ProposalAccepted
			c.Contributors = append(c.Contributors, c.ProposedBy)
			p.Conclusions[id] = c

		case EventRejected:
			targetID := ev.MetaString("targetId")
			c, ok := p.PendingProposals[targetID]
			if !ok {
				return nil, fmt.Errorf("REJECTED references unknown proposal %s", targetID)
			}
			c.Status = world.ProposalRejected
			delete(p.PendingProposals, targetID)
			refID := ev.MetaString("refutationId")
			if refID == "" {
				refID = fmt.Sprintf("ref%d", len(p.Refutations)+1)
			}
			p.Refutations[refID] = &world.Refutation{
				ID:        refID,
				TargetID:  targetID,
				Reason:    ev.MetaString("reason"),
				Type:      ev.MetaString("type"),
				RefutedBy: ev.Source,
				Round:     metaInt(ev, "round"),
			}

		case EventGoalProved:
			g, ok := p.Goals[ev.MetaString("goalId")]
			if !ok {
				return nil, fmt.Errorf("GOAL_PROVED references unknown goal %s", ev.MetaString("goalId"))
			}
			g.Status = world.GoalProved
			g.ProvedBy = ev.MetaString("provedBy")

		case EventProblemEnd:
			p.IsSolved = metaBool(ev, "isSolved")
		}
	}
	return p, nil
}

func metaStrings(ev world.Event, key string) []string {
	switch v := ev.Meta[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func metaStringMap(ev world.Event, key string) map[string]string {
	out := map[string]string{}
	switch v := ev.Meta[key].(type) {
	case map[string]string:
		for k, s := range v {
			out[k] = s
		}
	case map[string]any:
		for k, e := range v {
			if s, ok := e.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

func metaInt(ev world.Event, key string) int {
	switch v := ev.Meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func metaBool(ev world.Event, key string) bool {
	b, _ := ev.Meta[key].(bool)
	return b
}
