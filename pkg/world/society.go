package world

// SocietyRole shapes an agent's bonuses in the social simulation
type SocietyRole string

const (
	RoleWorker   SocietyRole = "worker"
	RoleMerchant SocietyRole = "merchant"
	RoleLeader   SocietyRole = "leader"
	RoleHelper   SocietyRole = "helper"
	RoleNeutral  SocietyRole = "neutral"
)

// IsValid checks if the society role is valid
func (r SocietyRole) IsValid() bool {
	switch r {
	case RoleWorker, RoleMerchant, RoleLeader, RoleHelper, RoleNeutral:
		return true
	default:
		return false
	}
}

// SocietyAgent is one participant in the social simulation
type SocietyAgent struct {
	Name              string             `json:"name,omitempty"`
	Role              SocietyRole        `json:"role"`
	Resources         float64            `json:"resources"`
	Mood              float64            `json:"mood"`
	Relationships     map[string]float64 `json:"relationships"`
	IsActive          bool               `json:"isActive"`
	ZeroResourceTicks int                `json:"zeroResourceTicks"`
	LowMoodTicks      int                `json:"lowMoodTicks"`
	LastActionTick    int64              `json:"lastActionTick"`
}

// GlobalResources are society-wide pools outside any single agent
type GlobalResources struct {
	CommunityPool    float64 `json:"communityPool"`
	EnvironmentPool  float64 `json:"environmentPool"`
	RegenerationRate float64 `json:"regenerationRate"`
}

// SocietyStats are aggregates recomputed every tick over active agents
type SocietyStats struct {
	ActiveAgents   int     `json:"activeAgents"`
	AvgMood        float64 `json:"avgMood"`
	AvgResources   float64 `json:"avgResources"`
	TotalResources float64 `json:"totalResources"`
	Gini           float64 `json:"gini"`
}

// SocietyState is the social-simulation extension of State
type SocietyState struct {
	TimeTick       int64                    `json:"timeTick"`
	Agents         map[string]*SocietyAgent `json:"agents"`
	Global         GlobalResources          `json:"globalResources"`
	StabilityIndex float64                  `json:"stabilityIndex"`
	Stats          SocietyStats             `json:"statistics"`
}

// ActiveAgentIDs returns ids of agents still participating, unordered.
func (s *SocietyState) ActiveAgentIDs() []string {
	var ids []string
	for id, a := range s.Agents {
		if a.IsActive {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *SocietyState) clone() *SocietyState {
	if s == nil {
		return nil
	}
	out := *s
	out.Agents = make(map[string]*SocietyAgent, len(s.Agents))
	for id, a := range s.Agents {
		ac := *a
		ac.Relationships = copyFloatMap(a.Relationships)
		out.Agents[id] = &ac
	}
	return &out
}
