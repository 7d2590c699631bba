package world

import "time"

// SourceSystem marks events emitted by the engine rather than an agent.
const SourceSystem = "system"

// Meta keys consulted by visibility filtering.
const (
	MetaVisibility = "visibility"
	MetaScope      = "scope"

	// VisibilityPublic makes an event visible to every agent.
	VisibilityPublic = "public"
)

// Event is an immutable, sequenced record of something that happened in the
// world. Sequence is assigned per session by the event log at append time
// and is never rewritten.
type Event struct {
	EventID   string         `json:"eventId"`
	EventType string         `json:"eventType"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Content   string         `json:"content,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Sequence  int64          `json:"sequence"`
}

// MetaString reads a string meta field, returning "" when absent.
func (e Event) MetaString(key string) string {
	if e.Meta == nil {
		return ""
	}
	s, _ := e.Meta[key].(string)
	return s
}

// VisibleTo reports whether an agent may observe this event. Events are
// visible when meta.visibility is public or when the agent id appears in
// meta.scope. Events with no visibility meta are engine-internal and hidden
// from agent views.
func (e Event) VisibleTo(agentID string) bool {
	if e.MetaString(MetaVisibility) == VisibilityPublic {
		return true
	}
	if e.Meta == nil {
		return false
	}
	switch scope := e.Meta[MetaScope].(type) {
	case []string:
		for _, id := range scope {
			if id == agentID {
				return true
			}
		}
	case []any:
		for _, v := range scope {
			if id, ok := v.(string); ok && id == agentID {
				return true
			}
		}
	}
	return false
}
