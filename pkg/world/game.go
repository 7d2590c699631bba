package world

// GamePhase is the coarse game lifecycle
type GamePhase string

const (
	GamePlaying GamePhase = "playing"
	GameEnded   GamePhase = "ended"
)

// GameAgent is one player's combat record
type GameAgent struct {
	Name    string   `json:"name,omitempty"`
	HP      int      `json:"hp"`
	MaxHP   int      `json:"maxHp"`
	Hand    []string `json:"hand"`
	IsAlive bool     `json:"isAlive"`
}

// HasCard reports whether the card is currently in hand.
func (g *GameAgent) HasCard(card string) bool {
	for _, c := range g.Hand {
		if c == card {
			return true
		}
	}
	return false
}

// RemoveCard drops the first occurrence of card from the hand.
func (g *GameAgent) RemoveCard(card string) bool {
	for i, c := range g.Hand {
		if c == card {
			g.Hand = append(g.Hand[:i], g.Hand[i+1:]...)
			return true
		}
	}
	return false
}

// GameState is the card-game extension of State
type GameState struct {
	Agents             map[string]*GameAgent `json:"agents"`
	CurrentTurnAgentID string                `json:"currentTurnAgentId"`
	TurnOrder          []string              `json:"turnOrder"`
	TurnIndex          int                   `json:"turnIndex"`
	TotalTurns         int                   `json:"totalTurns"`
	MaxTurns           int                   `json:"maxTurns"`
	GamePhase          GamePhase             `json:"gamePhase"`
	WinnerID           string                `json:"winnerId,omitempty"`
}

// LivingAgents returns the ids of agents still alive, in turn order.
func (g *GameState) LivingAgents() []string {
	var alive []string
	for _, id := range g.TurnOrder {
		if a, ok := g.Agents[id]; ok && a.IsAlive {
			alive = append(alive, id)
		}
	}
	return alive
}

func (g *GameState) clone() *GameState {
	if g == nil {
		return nil
	}
	out := *g
	out.Agents = make(map[string]*GameAgent, len(g.Agents))
	for id, a := range g.Agents {
		ac := *a
		ac.Hand = copyStringSlice(a.Hand)
		out.Agents[id] = &ac
	}
	out.TurnOrder = copyStringSlice(g.TurnOrder)
	return &out
}
