package world

import "time"

// SpeakingOrder controls who may take the floor each step
type SpeakingOrder string

const (
	// SpeakingRoundRobin cycles through agentIds in order
	SpeakingRoundRobin SpeakingOrder = "round-robin"
	// SpeakingFree lets the arbiter's top-ranked action through
	SpeakingFree SpeakingOrder = "free"
	// SpeakingModerated favors the agent who has spoken least
	SpeakingModerated SpeakingOrder = "moderated"
)

// IsValid checks if the speaking order is valid
func (o SpeakingOrder) IsValid() bool {
	switch o {
	case SpeakingRoundRobin, SpeakingFree, SpeakingModerated:
		return true
	default:
		return false
	}
}

// AlignmentType describes how debate participants are grouped
type AlignmentType string

const (
	AlignmentOpposing     AlignmentType = "opposing"
	AlignmentFree         AlignmentType = "free"
	AlignmentMultiFaction AlignmentType = "multi-faction"
)

// Faction groups agents on one side of a debate
type Faction struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Stance   string   `json:"stance,omitempty"`
	AgentIDs []string `json:"agentIds"`
}

// Alignment captures the debate's side structure
type Alignment struct {
	Type     AlignmentType `json:"type"`
	Factions []Faction     `json:"factions,omitempty"`
}

// PhaseEndCondition selects how a debate phase decides it is over
type PhaseEndCondition string

const (
	PhaseEndByRounds  PhaseEndCondition = "rounds"
	PhaseEndByTimeout PhaseEndCondition = "timeout"
)

// PhaseConfig is one element of a debate flow. The scheduler copies its
// control flags into the live phase and debate sub-record on each switch.
type PhaseConfig struct {
	PhaseID            string            `json:"phaseId"`
	PhaseType          string            `json:"phaseType"`
	MaxRounds          int               `json:"maxRounds"`
	EndCondition       PhaseEndCondition `json:"endCondition"`
	Timeout            time.Duration     `json:"timeout,omitempty"`
	AllowInterrupt     bool              `json:"allowInterrupt"`
	SpeakingOrder      SpeakingOrder     `json:"speakingOrder"`
	ForceSummary       bool              `json:"forceSummary"`
	MaxTokensPerSpeech int               `json:"maxTokensPerSpeech,omitempty"`
}

// Flow is the linear phase plan of a debate
type Flow struct {
	Phases        []PhaseConfig `json:"phases"`
	GlobalTimeout time.Duration `json:"globalTimeout,omitempty"`
}

// DebateState is the debate-specific extension of State
type DebateState struct {
	Topic     string    `json:"topic"`
	Alignment Alignment `json:"alignment"`
	Flow      Flow      `json:"flow"`

	SpeakingOrder      SpeakingOrder  `json:"speakingOrder"`
	ActiveSpeaker      string         `json:"activeSpeaker,omitempty"`
	LastSpeakerID      string         `json:"lastSpeakerId,omitempty"`
	ConsecutiveSpeaks  int            `json:"consecutiveSpeaks"`
	IdleRounds         int            `json:"idleRounds"`
	AllowInterrupt     bool           `json:"allowInterrupt"`
	InterventionLevel  int            `json:"interventionLevel"`
	ColdThreshold      int            `json:"coldThreshold"`
	SpeakCounts        map[string]int `json:"speakCounts"`
	RoundRobinIndex    int            `json:"roundRobinIndex"`
	AgentIDs           []string       `json:"agentIds"`
	ForceSummary       bool           `json:"forceSummary"`
	MaxTokensPerSpeech int            `json:"maxTokensPerSpeech,omitempty"`
	MaxSpeakRatio      float64        `json:"maxSpeakRatio,omitempty"`
}

// ExpectedSpeaker returns the agent whose turn it is under round-robin.
func (d *DebateState) ExpectedSpeaker() string {
	if len(d.AgentIDs) == 0 {
		return ""
	}
	return d.AgentIDs[d.RoundRobinIndex%len(d.AgentIDs)]
}

func (d *DebateState) clone() *DebateState {
	if d == nil {
		return nil
	}
	out := *d
	out.Alignment.Factions = make([]Faction, len(d.Alignment.Factions))
	for i, f := range d.Alignment.Factions {
		fc := f
		fc.AgentIDs = copyStringSlice(f.AgentIDs)
		out.Alignment.Factions[i] = fc
	}
	out.Flow.Phases = append([]PhaseConfig(nil), d.Flow.Phases...)
	out.SpeakCounts = copyIntMap(d.SpeakCounts)
	out.AgentIDs = copyStringSlice(d.AgentIDs)
	return &out
}
