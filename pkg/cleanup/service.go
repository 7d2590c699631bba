// Package cleanup provides the event log retention sweeper. Sessions keep
// appending events while they run; once a session reaches a terminal
// status its log is capped to a configured number of most recent events.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/session"
)

// Service periodically prunes the event logs of ended and failed
// sessions. Pruning is idempotent; running the sweep twice drops nothing
// new.
type Service struct {
	keep     int
	interval time.Duration
	mgr      *session.Manager
	store    eventlog.Store
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates the sweeper. keep <= 0 disables it.
func NewService(keep int, interval time.Duration, mgr *session.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{
		keep:     keep,
		interval: interval,
		mgr:      mgr,
		store:    mgr.Store(),
		logger:   logger.With("component", "cleanup"),
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.keep <= 0 {
		s.logger.Info("Retention sweeper disabled")
		return
	}
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Retention sweeper started",
		"keep_events", s.keep,
		"interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Retention sweeper stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep prunes every terminal session's log down to the retention cap.
func (s *Service) sweep(ctx context.Context) {
	var pruned, dropped int
	for _, sum := range s.mgr.List() {
		if !sum.Status.Terminal() {
			continue
		}
		n, err := s.store.Prune(ctx, sum.ID, s.keep)
		if err != nil {
			s.logger.Error("Retention: prune failed",
				"session_id", sum.ID, "error", err)
			continue
		}
		if n > 0 {
			pruned++
			dropped += n
		}
	}
	if dropped > 0 {
		s.logger.Info("Retention: pruned event logs",
			"sessions", pruned, "events_dropped", dropped)
	}
}
