package world

import "time"

// TimeInfo tracks world time at tick granularity
type TimeInfo struct {
	Tick      int64   `json:"tick"`
	Round     int     `json:"round"`
	TimeScale float64 `json:"timeScale"`
}

// Phase is the currently active segment of a world's flow
type Phase struct {
	PhaseID        string         `json:"phaseId"`
	PhaseType      string         `json:"phaseType"`
	PhaseRound     int            `json:"phaseRound"`
	PhaseMaxRounds int            `json:"phaseMaxRounds"`
	StartedAt      time.Time      `json:"startedAt"`
	PhaseRules     map[string]any `json:"phaseRules,omitempty"`
}

// Unbounded reports whether the phase has no round budget.
// A negative max means the phase never exhausts by rounds.
func (p Phase) Unbounded() bool {
	return p.PhaseMaxRounds < 0
}

// Position locates an entity in space for worlds that care
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Entity is anything registered with the world: agents, objects, locations
type Entity struct {
	ID         string         `json:"id"`
	Type       EntityType     `json:"type"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Position   *Position      `json:"position,omitempty"`
	Status     EntityStatus   `json:"status"`
}

// Relationship links two entities with a signed strength
type Relationship struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// Resource is a world-level stock tracked by id
type Resource struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Owner    string  `json:"owner,omitempty"`
}

// State is the authoritative, engine-owned record of world facts. Exactly
// one of the kind sub-records is non-nil, matching WorldType. External
// consumers only ever see deep copies produced by Clone.
type State struct {
	WorldID           string               `json:"worldId"`
	WorldType         Kind                 `json:"worldType"`
	CurrentTime       TimeInfo             `json:"currentTime"`
	CurrentPhase      Phase                `json:"currentPhase"`
	Entities          map[string]*Entity   `json:"entities"`
	Relationships     []Relationship       `json:"relationships,omitempty"`
	Resources         map[string]*Resource `json:"resources,omitempty"`
	GlobalVars        map[string]any       `json:"globalVars,omitempty"`
	RuleStates        map[string]bool      `json:"ruleStates,omitempty"`
	IsTerminated      bool                 `json:"isTerminated"`
	TerminationReason string               `json:"terminationReason,omitempty"`

	Debate  *DebateState  `json:"debate,omitempty"`
	Game    *GameState    `json:"game,omitempty"`
	Society *SocietyState `json:"society,omitempty"`
	Logic   *LogicState   `json:"logic,omitempty"`
}

// Clone produces a deep copy safe to hand to external readers.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.CurrentPhase.PhaseRules = copyAnyMap(s.CurrentPhase.PhaseRules)
	out.Entities = make(map[string]*Entity, len(s.Entities))
	for id, e := range s.Entities {
		ec := *e
		ec.Attributes = copyAnyMap(e.Attributes)
		if e.Position != nil {
			p := *e.Position
			ec.Position = &p
		}
		out.Entities[id] = &ec
	}
	out.Relationships = append([]Relationship(nil), s.Relationships...)
	if s.Resources != nil {
		out.Resources = make(map[string]*Resource, len(s.Resources))
		for id, r := range s.Resources {
			rc := *r
			out.Resources[id] = &rc
		}
	}
	out.GlobalVars = copyAnyMap(s.GlobalVars)
	if s.RuleStates != nil {
		out.RuleStates = make(map[string]bool, len(s.RuleStates))
		for k, v := range s.RuleStates {
			out.RuleStates[k] = v
		}
	}
	out.Debate = s.Debate.clone()
	out.Game = s.Game.clone()
	out.Society = s.Society.clone()
	out.Logic = s.Logic.clone()
	return &out
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringSlice(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
