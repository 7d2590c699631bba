package eventlog

import (
	"context"
	"sync"

	"github.com/agentarium/worldengine/pkg/world"
)

// MemoryStore keeps one ordered slice and one sequence counter per session.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryLog
}

type memoryLog struct {
	seq    int64
	events []world.Event
}

// NewMemoryStore builds an empty in-memory event log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memoryLog)}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, sessionID string, event *world.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.sessions[sessionID]
	if !ok {
		log = &memoryLog{}
		s.sessions[sessionID] = log
	}
	log.seq++
	event.Sequence = log.seq
	log.events = append(log.events, *event)
	return nil
}

// GetRecent implements Store.
func (s *MemoryStore) GetRecent(_ context.Context, sessionID string, limit int) ([]world.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return append([]world.Event(nil), tail(log.events, limit)...), nil
}

// GetBySession implements Store.
func (s *MemoryStore) GetBySession(_ context.Context, sessionID string) ([]world.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return append([]world.Event(nil), log.events...), nil
}

// GetByType implements Store.
func (s *MemoryStore) GetByType(_ context.Context, sessionID, eventType string) ([]world.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	var out []world.Event
	for _, e := range log.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetAfterSequence implements Store.
func (s *MemoryStore) GetAfterSequence(_ context.Context, sessionID string, seq int64, limit int) ([]world.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	var out []world.Event
	for _, e := range log.events {
		if e.Sequence > seq {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// GetAgentVisible implements Store.
func (s *MemoryStore) GetAgentVisible(_ context.Context, sessionID, agentID string, limit int) ([]world.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return filterVisible(log.events, agentID, limit), nil
}

// Prune implements Store.
func (s *MemoryStore) Prune(_ context.Context, sessionID string, keepCount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.sessions[sessionID]
	if !ok {
		return 0, nil
	}
	if keepCount < 0 {
		keepCount = 0
	}
	dropped := len(log.events) - keepCount
	if dropped <= 0 {
		return 0, nil
	}
	log.events = append([]world.Event(nil), log.events[dropped:]...)
	return dropped, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, sessionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.sessions[sessionID]
	if !ok {
		return 0, nil
	}
	return int64(len(log.events)), nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
