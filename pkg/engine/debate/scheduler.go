package debate

import (
	"sync"
	"time"

	"github.com/agentarium/worldengine/pkg/world"
)

// Scheduler walks the linear phase flow. Phases end by round budget or
// timeout; the debate ends when the last phase is exhausted or the
// global timeout elapses.
type Scheduler struct {
	mu        sync.Mutex
	flow      world.Flow
	startedAt time.Time
	timeScale float64
	clock     func() time.Time
}

// NewScheduler builds a scheduler over the given flow. The global
// timeout is measured from construction.
func NewScheduler(flow world.Flow, clock func() time.Time) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{flow: flow, startedAt: clock(), timeScale: 1, clock: clock}
}

// CurrentTime implements engine.Scheduler.
func (s *Scheduler) CurrentTime(st *world.State) world.TimeInfo { return st.CurrentTime }

func (s *Scheduler) phaseIndex(phaseID string) int {
	for i, p := range s.flow.Phases {
		if p.PhaseID == phaseID {
			return i
		}
	}
	return -1
}

// ShouldAdvancePhase implements engine.Scheduler.
func (s *Scheduler) ShouldAdvancePhase(st *world.State) bool {
	p := st.CurrentPhase
	if !p.Unbounded() && p.PhaseRound >= p.PhaseMaxRounds {
		return true
	}
	if i := s.phaseIndex(p.PhaseID); i >= 0 {
		cfg := s.flow.Phases[i]
		if cfg.EndCondition == world.PhaseEndByTimeout && cfg.Timeout > 0 &&
			s.clock().Sub(p.StartedAt) >= cfg.Timeout {
			return true
		}
	}
	return false
}

// NextPhase implements engine.Scheduler. It returns nil when the current
// phase is the last one.
func (s *Scheduler) NextPhase(currentPhaseID string) *world.PhaseConfig {
	i := s.phaseIndex(currentPhaseID)
	if i < 0 || i+1 >= len(s.flow.Phases) {
		return nil
	}
	next := s.flow.Phases[i+1]
	return &next
}

// ShouldTerminate implements engine.Scheduler.
func (s *Scheduler) ShouldTerminate(st *world.State) (bool, string) {
	if s.flow.GlobalTimeout > 0 && s.clock().Sub(s.startedAt) >= s.flow.GlobalTimeout {
		return true, "global debate timeout reached"
	}
	if s.phaseIndex(st.CurrentPhase.PhaseID) == len(s.flow.Phases)-1 && s.ShouldAdvancePhase(st) {
		return true, "all debate phases completed"
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
