// Package eventlog provides the per-session append-only event log backing
// every world engine. Two backends implement the same contract: an
// in-memory store for tests and single-node deployments, and a Redis store
// for deployments that want the log to survive the process within a TTL.
// Sequences are assigned inside Append and never rewritten; concurrent
// appends for the same session always produce distinct, strictly
// increasing sequences.
package eventlog

import (
	"context"

	"github.com/agentarium/worldengine/pkg/world"
)

// Store is the event log contract. No component outside this package
// depends on which backend is in use. Queries against a session with no
// log yet return empty results, not errors.
type Store interface {
	// Append assigns the next per-session sequence to the event and stores
	// it. The passed event's Sequence field is set before return.
	Append(ctx context.Context, sessionID string, event *world.Event) error

	// GetRecent returns up to limit most recent events, ascending by
	// sequence. limit <= 0 returns everything.
	GetRecent(ctx context.Context, sessionID string, limit int) ([]world.Event, error)

	// GetBySession returns all events of the session ascending by sequence.
	GetBySession(ctx context.Context, sessionID string) ([]world.Event, error)

	// GetByType returns all events with the given type, ascending.
	GetByType(ctx context.Context, sessionID, eventType string) ([]world.Event, error)

	// GetAfterSequence returns events with sequence > seq, ascending,
	// capped at limit when limit > 0. Incremental subscribers poll this.
	GetAfterSequence(ctx context.Context, sessionID string, seq int64, limit int) ([]world.Event, error)

	// GetAgentVisible returns the most recent events the agent may observe
	// (meta.visibility=public or agent in meta.scope), ascending.
	GetAgentVisible(ctx context.Context, sessionID, agentID string, limit int) ([]world.Event, error)

	// Prune retains the most recent keepCount events and reports how many
	// were dropped.
	Prune(ctx context.Context, sessionID string, keepCount int) (int, error)

	// Count returns the number of stored events for the session.
	Count(ctx context.Context, sessionID string) (int64, error)

	// Clear removes the session's log entirely, including its sequence
	// counter.
	Clear(ctx context.Context, sessionID string) error
}

func tail(events []world.Event, limit int) []world.Event {
	if limit > 0 && len(events) > limit {
		return events[len(events)-limit:]
	}
	return events
}

func filterVisible(events []world.Event, agentID string, limit int) []world.Event {
	visible := make([]world.Event, 0, len(events))
	for _, e := range events {
		if e.VisibleTo(agentID) {
			visible = append(visible, e)
		}
	}
	return tail(visible, limit)
}
