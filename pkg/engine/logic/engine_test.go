package logic

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
		SessionID: "logic-1",
		Statement: "Show that a+b>0 given a>0 and b>0",
		Hypotheses: []world.Proposition{
			{ID: "H1", LaTeX: "a>0"},
			{ID: "H2", LaTeX: "b>0"},
		},
		Goals: []world.Proposition{
			{ID: "G1", LaTeX: "a+b>0"},
		},
		Store: store,
	}
	if mut != nil {
		mut(&p)
	}
	e, err := New(p)
	require.NoError(t, err)
	if agents == nil {
		agents = []Agent{
			{ID: "r1", Name: "Rena"},
			{ID: "r2", Name: "Sam"},
		}
	}
	require.NoError(t, e.InitializeAgents(context.Background(), agents))
	return e, store
}

func deriveAction(agentID, conclusion string, premises []string, rule string) world.Action {
	return world.Action{
		ActionID:   agentID + "-derive-" + conclusion,
		AgentID:    agentID,
		ActionType: ActionDerive,
		Params: map[string]any{
			"conclusion": conclusion,
			"premises":   premises,
			"rule":       rule,
		},
		Confidence: 0.8,
	}
}

func acceptAction(agentID, proposalID string) world.Action {
	return world.Action{
		ActionID:   agentID + "-accept-" + proposalID,
		AgentID:    agentID,
		ActionType: ActionAccept,
		Params:     map[string]any{"proposalId": proposalID},
		Confidence: 0.7,
	}
}

func refuteAction(agentID, targetID, reason, refType string) world.Action {
	return world.Action{
		ActionID:   agentID + "-refute-" + targetID,
		AgentID:    agentID,
		ActionType: ActionRefute,
		Params: map[string]any{
			"targetId": targetID,
			"reason":   reason,
			"type":     refType,
		},
		Confidence: 0.6,
	}
}

func extendAction(agentID, baseID, conclusion string) world.Action {
	return world.Action{
		ActionID:   agentID + "-extend-" + baseID,
		AgentID:    agentID,
		ActionType: ActionExtend,
		Params: map[string]any{
			"baseId":     baseID,
			"conclusion": conclusion,
		},
		Confidence: 0.7,
	}
}

func eventTypes(events []world.Event) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.EventType)
	}
	return types
}

func TestDeriveThenAcceptProvesGoal(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, nil, nil)

	results, err := e.Step(ctx, []world.Action{
		deriveAction("r1", "a+b>0", []string{"H1", "H2"}, "conjunction"),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	st := e.WorldState()
	proposal := st.Logic.Problem.PendingProposals["p1"]
	require.NotNil(t, proposal)
	assert.Equal(t, world.ProposalPending, proposal.Status)
	assert.Equal(t, "r1", proposal.ProposedBy)
	assert.Equal(t, []string{"H1", "H2"}, proposal.Premises)
	assert.Equal(t, 1, proposal.Round)
	assert.Equal(t, 1, st.Logic.Researchers["r1"].ProposalsSubmitted)
	assert.Equal(t, "r1", st.Logic.Discussion.CurrentSpeaker)

	results, err = e.Step(ctx, []world.Action{acceptAction("r2", "p1")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	assert.True(t, e.Terminated())
	assert.Equal(t, "all goals proved", e.TerminationReason())

	events, err := store.GetBySession(ctx, "logic-1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		EventProblemStart,
		EventProposal,
		EventAccepted,
		EventGoalProved,
		EventProblemEnd,
	}, eventTypes(events))

	assert.Equal(t, "p1", events[1].Meta["proposalId"])
	assert.Equal(t, "r1", events[2].Meta["proposedBy"])
	assert.Equal(t, "G1", events[3].Meta["goalId"])
	assert.Equal(t, "r1", events[3].Meta["provedBy"])
	assert.Equal(t, true, events[4].Meta["isSolved"])

	st = e.WorldState()
	p := st.Logic.Problem
	assert.True(t, p.IsSolved)
	assert.Empty(t, p.PendingProposals)
	accepted := p.Conclusions["p1"]
	require.NotNil(t, accepted)
	assert.Equal(t, world.ProposalAccepted, accepted.Status)
	assert.Equal(t, []string{"r1"}, accepted.Contributors)
	assert.Equal(t, world.GoalProved, p.Goals["G1"].Status)
	assert.Equal(t, "r1", p.Goals["G1"].ProvedBy)
	assert.Equal(t, 1, st.Logic.Researchers["r1"].AcceptedProposals)
	assert.Equal(t, 2, st.Logic.Discussion.CurrentRound)
}

func TestRefuteRemovesPendingProposal(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, nil, nil)

	_, err := e.Step(ctx, []world.Action{
		deriveAction("r1", "a-b>0", []string{"H1", "H2"}, "subtraction"),
	})
	require.NoError(t, err)

	results, err := e.Step(ctx, []world.Action{
		refuteAction("r2", "p1", "does not follow from the premises", RefutationContradiction),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	rejected, err := store.GetByType(ctx, "logic-1", EventRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "p1", rejected[0].Meta["targetId"])
	assert.Equal(t, "r1", rejected[0].Meta["proposedBy"])

	contradictions, err := store.GetByType(ctx, "logic-1", EventContradiction)
	require.NoError(t, err)
	require.Len(t, contradictions, 1)

	st := e.WorldState()
	p := st.Logic.Problem
	assert.Empty(t, p.PendingProposals)
	assert.Empty(t, p.Conclusions)
	ref := p.Refutations["ref1"]
	require.NotNil(t, ref)
	assert.Equal(t, "p1", ref.TargetID)
	assert.Equal(t, "r2", ref.RefutedBy)
	assert.Equal(t, RefutationContradiction, ref.Type)
	assert.Equal(t, 1, st.Logic.Researchers["r2"].SuccessfulRefutations)
	assert.Equal(t, 1, st.Logic.Researchers["r1"].RejectedProposals)
	assert.False(t, e.Terminated())

	// The proposal is gone; a second refutation has nothing to hit.
	results, err = e.Step(ctx, []world.Action{refuteAction("r1", "p1", "still wrong", "")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].FailureReason, "does not exist")
}

func TestRefuteAcceptedConclusionFails(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, nil, nil)

	_, err := e.Step(ctx, []world.Action{deriveAction("r1", "2a>0", []string{"H1"}, "scaling")})
	require.NoError(t, err)
	_, err = e.Step(ctx, []world.Action{acceptAction("r2", "p1")})
	require.NoError(t, err)

	results, err := e.Step(ctx, []world.Action{refuteAction("r1", "p1", "changed my mind", "")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].FailureReason, "accepted and final")

	st := e.WorldState()
	assert.NotNil(t, st.Logic.Problem.Conclusions["p1"])
	assert.Empty(t, st.Logic.Problem.Refutations)
}

func TestExtendBuildsOnAcceptedConclusion(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, nil, nil)

	_, err := e.Step(ctx, []world.Action{deriveAction("r1", "2a>0", []string{"H1"}, "scaling")})
	require.NoError(t, err)
	_, err = e.Step(ctx, []world.Action{acceptAction("r2", "p1")})
	require.NoError(t, err)

	results, err := e.Step(ctx, []world.Action{extendAction("r1", "p1", "4a>0")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	st := e.WorldState()
	p2 := st.Logic.Problem.PendingProposals["p2"]
	require.NotNil(t, p2)
	assert.Equal(t, []string{"p1"}, p2.Premises)
	assert.Equal(t, "extension", p2.Rule)

	proposals, err := store.GetByType(ctx, "logic-1", EventProposal)
	require.NoError(t, err)
	require.Len(t, proposals, 2)
	assert.Equal(t, "p2", proposals[1].Meta["proposalId"])

	// A pending proposal cannot anchor an extension.
	results, err = e.Step(ctx, []world.Action{extendAction("r2", "p2", "8a>0")})
	require.NoError(t, err)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].FailureReason, "not an accepted conclusion")

	// Neither can a bare hypothesis.
	results, err = e.Step(ctx, []world.Action{extendAction("r2", "H1", "3a>0")})
	require.NoError(t, err)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].FailureReason, "not an accepted conclusion")
}

func TestAcceptIsAtomicAndSingleUse(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, nil, nil)

	_, err := e.Step(ctx, []world.Action{deriveAction("r1", "2a>0", []string{"H1"}, "scaling")})
	require.NoError(t, err)
	_, err = e.Step(ctx, []world.Action{acceptAction("r2", "p1")})
	require.NoError(t, err)

	st := e.WorldState()
	_, pending := st.Logic.Problem.PendingProposals["p1"]
	_, concluded := st.Logic.Problem.Conclusions["p1"]
	assert.False(t, pending)
	assert.True(t, concluded)

	results, err := e.Step(ctx, []world.Action{acceptAction("r1", "p1")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].FailureReason, "not pending")
}

func TestProposerMayAcceptOwnProposal(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, nil, nil)

	_, err := e.Step(ctx, []world.Action{deriveAction("r1", "2b>0", []string{"H2"}, "scaling")})
	require.NoError(t, err)
	results, err := e.Step(ctx, []world.Action{acceptAction("r1", "p1")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	st := e.WorldState()
	assert.Equal(t, []string{"r1"}, st.Logic.Problem.Conclusions["p1"].Contributors)
}

func TestArbiterOrdersReviewBeforeNewWork(t *testing.T) {
	arb := NewArbiter()

	resolved := arb.ResolveConflicts([]world.Action{
		deriveAction("r1", "c1", nil, "axiom"),
		refuteAction("r2", "p1", "gap", ""),
		acceptAction("r3", "p2"),
	}, nil)
	require.Len(t, resolved, 3)
	assert.Equal(t, ActionAccept, resolved[0].ActionType)
	assert.Equal(t, ActionRefute, resolved[1].ActionType)
	assert.Equal(t, ActionDerive, resolved[2].ActionType)

	// One action per researcher: rank wins, then confidence.
	lowConf := deriveAction("r1", "c1", nil, "axiom")
	lowConf.Confidence = 0.3
	highConf := deriveAction("r1", "c2", nil, "axiom")
	highConf.Confidence = 0.9
	resolved = arb.ResolveConflicts([]world.Action{lowConf, highConf}, nil)
	require.Len(t, resolved, 1)
	assert.Equal(t, "c2", resolved[0].ParamString("conclusion"))

	weakAccept := acceptAction("r1", "p1")
	weakAccept.Confidence = 0.1
	resolved = arb.ResolveConflicts([]world.Action{highConf, weakAccept}, nil)
	require.Len(t, resolved, 1)
	assert.Equal(t, ActionAccept, resolved[0].ActionType)
}

func TestMaxRoundsEndsResearch(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, func(p *Params) { p.MaxRounds = 2 }, nil)

	for i := 0; i < 2; i++ {
		_, err := e.Step(ctx, nil)
		require.NoError(t, err)
	}

	assert.True(t, e.Terminated())
	assert.Equal(t, "maximum rounds reached", e.TerminationReason())

	ends, err := store.GetByType(ctx, "logic-1", EventProblemEnd)
	require.NoError(t, err)
	require.Len(t, ends, 1)
	assert.Equal(t, false, ends[0].Meta["isSolved"])
	assert.Equal(t, 2, ends[0].Meta["rounds"])

	// A terminated world ignores further steps.
	before, err := store.Count(ctx, "logic-1")
	require.NoError(t, err)
	results, err := e.Step(ctx, []world.Action{deriveAction("r1", "c", nil, "axiom")})
	require.NoError(t, err)
	assert.Empty(t, results)
	after, err := store.Count(ctx, "logic-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestValidationRejections(t *testing.T) {
	pendingSetup := func(e *Engine) {
		_, err := e.Step(context.Background(), []world.Action{
			deriveAction("r1", "2a>0", []string{"H1"}, "scaling"),
		})
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		setup  func(e *Engine)
		action world.Action
		reason string
	}{
		{
			name:   "unregistered researcher",
			action: deriveAction("zed", "c>0", nil, "axiom"),
			reason: "not a registered researcher",
		},
		{
			name:   "derive without conclusion",
			action: deriveAction("r1", "  ", nil, "axiom"),
			reason: "derive requires a conclusion",
		},
		{
			name:   "derive from unknown premise",
			action: deriveAction("r1", "c>0", []string{"H9"}, "axiom"),
			reason: "premise H9 is not an established statement",
		},
		{
			name:   "refute without target",
			action: refuteAction("r1", "", "gap", ""),
			reason: "refute requires a targetId",
		},
		{
			name:   "refute unknown proposal",
			action: refuteAction("r1", "p9", "gap", ""),
			reason: "proposal p9 does not exist",
		},
		{
			name:   "refute without reason",
			setup:  pendingSetup,
			action: refuteAction("r2", "p1", "   ", ""),
			reason: "refute requires a reason",
		},
		{
			name:   "extend without base",
			action: extendAction("r1", "", "c>0"),
			reason: "extend requires a baseId",
		},
		{
			name:   "accept without proposal id",
			action: acceptAction("r1", ""),
			reason: "accept requires a proposalId",
		},
		{
			name:   "accept unknown proposal",
			action: acceptAction("r1", "p9"),
			reason: "proposal p9 is not pending",
		},
		{
			name: "unknown action type",
			action: world.Action{
				ActionID: "r1-ponder", AgentID: "r1", ActionType: "ponder",
			},
			reason: `unknown logic action type "ponder"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store := newTestEngine(t, nil, nil)
			if tt.setup != nil {
				tt.setup(e)
			}
			results, err := e.Step(context.Background(), []world.Action{tt.action})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.False(t, results[0].Success)
			assert.Contains(t, results[0].FailureReason, tt.reason)

			rejected, err := store.GetByType(context.Background(), "logic-1", EventActionRejected)
			require.NoError(t, err)
			require.Len(t, rejected, 1)
			assert.Equal(t, tt.action.AgentID, rejected[0].Meta["agentId"])
		})
	}
}

func TestModusPonensWarnsOnPremiseCount(t *testing.T) {
	e, _ := newTestEngine(t, nil, nil)
	r := NewRules(config.DefaultLogicConfig())
	st := e.WorldState()

	v := r.Validate(deriveAction("r1", "b>0", []string{"H1"}, "modus-ponens"), st)
	assert.True(t, v.IsValid)
	require.Len(t, v.Warnings, 1)
	assert.Contains(t, v.Warnings[0], "modus ponens expects 2 premises")

	v = r.Validate(deriveAction("r1", "b>0", []string{"H1"}, "modus_ponens"), st)
	assert.True(t, v.IsValid)
	assert.Len(t, v.Warnings, 1)

	v = r.Validate(deriveAction("r1", "b>0", []string{"H1", "H2"}, "modus-ponens"), st)
	assert.True(t, v.IsValid)
	assert.Empty(t, v.Warnings)
}

func TestReplayRebuildsProblem(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, nil, nil)

	steps := [][]world.Action{
		{deriveAction("r1", "2a>0", []string{"H1"}, "scaling")},
		{refuteAction("r2", "p1", "scaling is unjustified here", RefutationContradiction)},
		{deriveAction("r2", "a+b>0", []string{"H1", "H2"}, "conjunction")},
		{acceptAction("r1", "p2")},
	}
	for _, actions := range steps {
		_, err := e.Step(ctx, actions)
		require.NoError(t, err)
	}
	require.True(t, e.Terminated())

	events, err := store.GetBySession(ctx, "logic-1")
	require.NoError(t, err)
	rebuilt, err := ReplayProblem(events)
	require.NoError(t, err)

	live := e.WorldState().Logic.Problem
	assert.Equal(t, live, *rebuilt)
}

func TestReplayRejectsBrokenChains(t *testing.T) {
	_, err := ReplayProblem([]world.Event{
		{EventType: EventAccepted, Meta: map[string]any{"proposalId": "p9"}},
	})
	assert.ErrorContains(t, err, "unknown proposal p9")

	_, err = ReplayProblem([]world.Event{
		{EventType: EventRejected, Meta: map[string]any{"targetId": "p9"}},
	})
	assert.ErrorContains(t, err, "unknown proposal p9")

	_, err = ReplayProblem([]world.Event{
		{EventType: EventGoalProved, Meta: map[string]any{"goalId": "G9"}},
	})
	assert.ErrorContains(t, err, "unknown goal G9")
}

func TestNewRejectsBadParams(t *testing.T) {
	base := func() Params {
		return Params{
			SessionID:  "logic-1",
			Statement:  "prove it",
			Hypotheses: []world.Proposition{{ID: "H1", LaTeX: "a>0"}},
			Goals:      []world.Proposition{{ID: "G1", LaTeX: "a>0"}},
			Store:      eventlog.NewMemoryStore(),
		}
	}

	p := base()
	p.SessionID = ""
	_, err := New(p)
	assert.ErrorContains(t, err, "session id is required")

	p = base()
	p.Statement = "  "
	_, err = New(p)
	assert.ErrorContains(t, err, "problem statement is required")

	p = base()
	p.Hypotheses = append(p.Hypotheses, world.Proposition{ID: "H1", LaTeX: "b>0"})
	_, err = New(p)
	assert.ErrorContains(t, err, "duplicate hypothesis id H1")

	p = base()
	p.Goals = append(p.Goals, world.Proposition{ID: "G1", LaTeX: "b>0"})
	_, err = New(p)
	assert.ErrorContains(t, err, "duplicate goal id G1")

	p = base()
	p.Hypotheses = []world.Proposition{{ID: "", LaTeX: "a>0"}}
	_, err = New(p)
	assert.ErrorContains(t, err, "hypotheses need an id")
}

func TestInitializeAgentsRequiresTwoResearchers(t *testing.T) {
	e, err := New(Params{
		SessionID: "logic-1",
		Statement: "prove it",
		Store:     eventlog.NewMemoryStore(),
	})
	require.NoError(t, err)

	err = e.InitializeAgents(context.Background(), []Agent{{ID: "solo"}})
	assert.ErrorContains(t, err, "at least two researchers")

	err = e.InitializeAgents(context.Background(), []Agent{{ID: "a"}, {}})
	assert.ErrorContains(t, err, "researcher id is required")
}
