package game

import (
	"fmt"
	"sync"

	"github.com/agentarium/worldengine/pkg/world"
)

// Scheduler runs the game's single implicit phase. The game ends when
// the win condition has set gamePhase to ended or the turn budget runs
// out.
type Scheduler struct {
	mu        sync.Mutex
	timeScale float64
}

// NewScheduler builds the game scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timeScale: 1}
}

// CurrentTime implements engine.Scheduler.
func (s *Scheduler) CurrentTime(st *world.State) world.TimeInfo { return st.CurrentTime }

// ShouldAdvancePhase implements engine.Scheduler. Games have one phase.
func (s *Scheduler) ShouldAdvancePhase(*world.State) bool { return false }

// NextPhase implements engine.Scheduler.
func (s *Scheduler) NextPhase(string) *world.PhaseConfig { return nil }

// ShouldTerminate implements engine.Scheduler.
func (s *Scheduler) ShouldTerminate(st *world.State) (bool, string) {
	g := st.Game
	if g == nil {
		return false, ""
	}
	if g.GamePhase == world.GameEnded {
		if g.WinnerID != "" {
			return true, fmt.Sprintf("%s wins the game", agentName(st, g.WinnerID))
		}
		return true, "no agents remain"
	}
	if g.MaxTurns > 0 && g.TotalTurns >= g.MaxTurns {
		return true, "maximum turns reached"
	}
	return false, ""
}

// SetTimeScale implements engine.Scheduler.
func (s *Scheduler) SetTimeScale(scale float64) {
	if scale <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeScale = scale
}

// TimeScale returns the current scale factor.
func (s *Scheduler) TimeScale() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeScale
}
