package logic

import (
	"sync"

	"github.com/agentarium/worldengine/pkg/world"
)

// Scheduler runs the single research phase. The session ends when the
// problem is solved or the round budget is spent.
type Scheduler struct {
	mu        sync.Mutex
	timeScale float64
}

// NewScheduler builds a logic scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timeScale: 1}
}

// CurrentTime implements engine.Scheduler.
func (s *Scheduler) CurrentTime(st *world.State) world.TimeInfo { return st.CurrentTime }

// ShouldAdvancePhase implements engine.Scheduler. Research is a single
// phase that never switches.
func (s *Scheduler) ShouldAdvancePhase(*world.State) bool { return false }

// NextPhase implements engine.Scheduler.
func (s *Scheduler) NextPhase(string) *world.PhaseConfig { return nil }

// ShouldTerminate implements engine.Scheduler.
func (s *Scheduler) ShouldTerminate(st *world.State) (bool, string) {
	l := st.Logic
	if l.Problem.IsSolved {
		return true, "all goals proved"
	}
	if l.Discussion.MaxRounds > 0 && l.Discussion.CurrentRound >= l.Discussion.MaxRounds {
		return true, "maximum rounds reached"
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

// TimeScale returns the current pacing multiplier.
func (s *Scheduler) TimeScale() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeScale
}
