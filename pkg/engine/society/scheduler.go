package society

import (
	"sync"

	"github.com/agentarium/worldengine/pkg/world"
)

// Scheduler runs the single open-ended simulation phase. The world ends
// when the last active agent leaves or the tick budget runs out.
type Scheduler struct {
	mu        sync.Mutex
	maxTicks  int64
	timeScale float64
}

// NewScheduler builds a society scheduler. A maxTicks of zero means the
// simulation runs until the society empties.
func NewScheduler(maxTicks int64) *Scheduler {
	return &Scheduler{maxTicks: maxTicks, timeScale: 1}
}

// CurrentTime implements engine.Scheduler.
func (s *Scheduler) CurrentTime(st *world.State) world.TimeInfo { return st.CurrentTime }

// ShouldAdvancePhase implements engine.Scheduler. Society has a single
// phase that never switches.
func (s *Scheduler) ShouldAdvancePhase(*world.State) bool { return false }

// NextPhase implements engine.Scheduler.
func (s *Scheduler) NextPhase(string) *world.PhaseConfig { return nil }

// ShouldTerminate implements engine.Scheduler.
func (s *Scheduler) ShouldTerminate(st *world.State) (bool, string) {
	so := st.Society
	if len(so.ActiveAgentIDs()) == 0 {
		return true, "no active agents remain"
	}
	s.mu.Lock()
	maxTicks := s.maxTicks
	s.mu.Unlock()
	if maxTicks > 0 && so.TimeTick >= maxTicks {
		return true, "maximum ticks reached"
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
