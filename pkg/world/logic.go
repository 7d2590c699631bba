package world

// Proposition is an axiom or hypothesis given with the problem
type Proposition struct {
	ID          string `json:"id"`
	LaTeX       string `json:"latex"`
	Description string `json:"description,omitempty"`
}

// ProposalStatus tracks a conclusion through review
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

// Conclusion is a derived statement, pending until accepted
type Conclusion struct {
	ID           string         `json:"id"`
	LaTeX        string         `json:"latex"`
	Premises     []string       `json:"premises"`
	Rule         string         `json:"rule"`
	ProposedBy   string         `json:"proposedBy"`
	Status       ProposalStatus `json:"status"`
	Contributors []string       `json:"contributors,omitempty"`
	Round        int            `json:"round"`
}

// GoalStatus tracks whether a target statement has been proved
type GoalStatus string

const (
	GoalOpen   GoalStatus = "open"
	GoalProved GoalStatus = "proved"
)

// Goal is a target statement the researchers try to derive
type Goal struct {
	ID       string     `json:"id"`
	LaTeX    string     `json:"latex"`
	Status   GoalStatus `json:"status"`
	ProvedBy string     `json:"provedBy,omitempty"`
}

// Refutation records a successful challenge against a pending proposal
type Refutation struct {
	ID        string `json:"id"`
	TargetID  string `json:"targetId"`
	Reason    string `json:"reason"`
	Type      string `json:"type,omitempty"`
	RefutedBy string `json:"refutedBy"`
	Round     int    `json:"round"`
}

// ResearcherStats aggregates one researcher's contribution record
type ResearcherStats struct {
	ProposalsSubmitted    int `json:"proposalsSubmitted"`
	AcceptedProposals     int `json:"acceptedProposals"`
	RejectedProposals     int `json:"rejectedProposals"`
	SuccessfulRefutations int `json:"successfulRefutations"`
}

// Problem holds the derivation workspace: givens, goals, and the growing
// body of pending and accepted conclusions.
type Problem struct {
	ProblemID        string                  `json:"problemId"`
	Statement        string                  `json:"statement"`
	Hypotheses       map[string]*Proposition `json:"hypotheses"`
	Conclusions      map[string]*Conclusion  `json:"conclusions"`
	PendingProposals map[string]*Conclusion  `json:"pendingProposals"`
	Goals            map[string]*Goal        `json:"goals"`
	Refutations      map[string]*Refutation  `json:"refutations"`
	IsSolved         bool                    `json:"isSolved"`
	NextProposalSeq  int                     `json:"nextProposalSeq"`
}

// Discussion tracks round progress of the research session
type Discussion struct {
	CurrentRound   int    `json:"currentRound"`
	MaxRounds      int    `json:"maxRounds"`
	CurrentSpeaker string `json:"currentSpeaker,omitempty"`
	Mode           string `json:"mode,omitempty"`
}

// LogicState is the formal-derivation extension of State
type LogicState struct {
	Problem     Problem                     `json:"problem"`
	Researchers map[string]*ResearcherStats `json:"researchers"`
	Discussion  Discussion                  `json:"discussion"`
}

func (l *LogicState) clone() *LogicState {
	if l == nil {
		return nil
	}
	out := *l
	p := &out.Problem
	p.Hypotheses = make(map[string]*Proposition, len(l.Problem.Hypotheses))
	for id, h := range l.Problem.Hypotheses {
		hc := *h
		p.Hypotheses[id] = &hc
	}
	p.Conclusions = cloneConclusions(l.Problem.Conclusions)
	p.PendingProposals = cloneConclusions(l.Problem.PendingProposals)
	p.Goals = make(map[string]*Goal, len(l.Problem.Goals))
	for id, g := range l.Problem.Goals {
		gc := *g
		p.Goals[id] = &gc
	}
	p.Refutations = make(map[string]*Refutation, len(l.Problem.Refutations))
	for id, r := range l.Problem.Refutations {
		rc := *r
		p.Refutations[id] = &rc
	}
	out.Researchers = make(map[string]*ResearcherStats, len(l.Researchers))
	for id, r := range l.Researchers {
		rc := *r
		out.Researchers[id] = &rc
	}
	return &out
}

func cloneConclusions(in map[string]*Conclusion) map[string]*Conclusion {
	out := make(map[string]*Conclusion, len(in))
	for id, c := range in {
		cc := *c
		cc.Premises = copyStringSlice(c.Premises)
		cc.Contributors = copyStringSlice(c.Contributors)
		out[id] = &cc
	}
	return out
}
