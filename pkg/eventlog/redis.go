package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentarium/worldengine/pkg/world"
)

// DefaultTTL is how long Redis-backed logs outlive their last append.
const DefaultTTL = 24 * time.Hour

func listKey(sessionID string) string { return fmt.Sprintf("we:events:%s:list", sessionID) }
func seqKey(sessionID string) string  { return fmt.Sprintf("we:events:%s:seq", sessionID) }

// RedisStore keeps one list key and one integer counter key per session.
// Appends for the same session are serialized in-process so list order
// always matches sequence order; the counter itself is advanced with INCR
// and stays monotonic regardless.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRedisStore wraps an existing client. A non-positive ttl falls back to
// DefaultTTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, locks: make(map[string]*sync.Mutex)}
}

func (s *RedisStore) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, sessionID string, event *world.Event) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	seq, err := s.rdb.Incr(ctx, seqKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to advance event sequence: %w", err)
	}
	event.Sequence = seq

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, listKey(sessionID), data)
	pipe.Expire(ctx, listKey(sessionID), s.ttl)
	pipe.Expire(ctx, seqKey(sessionID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *RedisStore) rangeEvents(ctx context.Context, sessionID string, start, stop int64) ([]world.Event, error) {
	raw, err := s.rdb.LRange(ctx, listKey(sessionID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	events := make([]world.Event, 0, len(raw))
	for _, r := range raw {
		var e world.Event
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// GetRecent implements Store.
func (s *RedisStore) GetRecent(ctx context.Context, sessionID string, limit int) ([]world.Event, error) {
	if limit <= 0 {
		return s.rangeEvents(ctx, sessionID, 0, -1)
	}
	return s.rangeEvents(ctx, sessionID, int64(-limit), -1)
}

// GetBySession implements Store.
func (s *RedisStore) GetBySession(ctx context.Context, sessionID string) ([]world.Event, error) {
	return s.rangeEvents(ctx, sessionID, 0, -1)
}

// GetByType implements Store.
func (s *RedisStore) GetByType(ctx context.Context, sessionID, eventType string) ([]world.Event, error) {
	all, err := s.rangeEvents(ctx, sessionID, 0, -1)
	if err != nil {
		return nil, err
	}
	var out []world.Event
	for _, e := range all {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetAfterSequence implements Store.
func (s *RedisStore) GetAfterSequence(ctx context.Context, sessionID string, seq int64, limit int) ([]world.Event, error) {
	all, err := s.rangeEvents(ctx, sessionID, 0, -1)
	if err != nil {
		return nil, err
	}
	var out []world.Event
	for _, e := range all {
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
func (s *RedisStore) GetAgentVisible(ctx context.Context, sessionID, agentID string, limit int) ([]world.Event, error) {
	all, err := s.rangeEvents(ctx, sessionID, 0, -1)
	if err != nil {
		return nil, err
	}
	return filterVisible(all, agentID, limit), nil
}

// Prune implements Store.
func (s *RedisStore) Prune(ctx context.Context, sessionID string, keepCount int) (int, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if keepCount < 0 {
		keepCount = 0
	}
	total, err := s.rdb.LLen(ctx, listKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	dropped := int(total) - keepCount
	if dropped <= 0 {
		return 0, nil
	}
	if keepCount == 0 {
		if err := s.rdb.Del(ctx, listKey(sessionID)).Err(); err != nil {
			return 0, fmt.Errorf("failed to prune events: %w", err)
		}
		return dropped, nil
	}
	if err := s.rdb.LTrim(ctx, listKey(sessionID), int64(-keepCount), -1).Err(); err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return dropped, nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context, sessionID string) (int64, error) {
	n, err := s.rdb.LLen(ctx, listKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.rdb.Del(ctx, listKey(sessionID), seqKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear event log: %w", err)
	}
	s.mu.Lock()
	delete(s.locks, sessionID)
	s.mu.Unlock()
	return nil
}
