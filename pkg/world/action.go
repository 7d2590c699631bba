package world

import "time"

// ActionTarget points an action at another entity
type ActionTarget struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Action is one agent-proposed move submitted to a single step.
// Actions are immutable by convention and live for exactly one step.
type Action struct {
	ActionID   string         `json:"actionId"`
	AgentID    string         `json:"agentId"`
	ActionType string         `json:"actionType"`
	Params     map[string]any `json:"params,omitempty"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
	Target     *ActionTarget  `json:"target,omitempty"`
	Priority   int            `json:"priority,omitempty"`
}

// ParamString reads a string parameter, returning "" when absent or mistyped.
func (a Action) ParamString(key string) string {
	if a.Params == nil {
		return ""
	}
	s, _ := a.Params[key].(string)
	return s
}

// ParamFloat reads a numeric parameter. JSON decoding produces float64 for
// all numbers, so int-valued params are normalized here too.
func (a Action) ParamFloat(key string, fallback float64) float64 {
	if a.Params == nil {
		return fallback
	}
	switch v := a.Params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

// ParamInt reads an integer parameter with a fallback for absent values.
func (a Action) ParamInt(key string, fallback int) int {
	return int(a.ParamFloat(key, float64(fallback)))
}

// ParamStrings reads a []string parameter tolerating []any from JSON decoding.
func (a Action) ParamStrings(key string) []string {
	if a.Params == nil {
		return nil
	}
	switch v := a.Params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ChangeType classifies a state diff record
type ChangeType string

const (
	ChangeCreate   ChangeType = "create"
	ChangeUpdate   ChangeType = "update"
	ChangeDelete   ChangeType = "delete"
	ChangeTransfer ChangeType = "transfer"
)

// StateChange is a descriptive diff of a mutation that has already been
// applied to the world state when the record is emitted.
type StateChange struct {
	ChangeType ChangeType `json:"changeType"`
	EntityType string     `json:"entityType"`
	EntityID   string     `json:"entityId"`
	FieldPath  string     `json:"fieldPath,omitempty"`
	OldValue   any        `json:"oldValue,omitempty"`
	NewValue   any        `json:"newValue,omitempty"`
}

// ActionResult reports the outcome of one action within a step
type ActionResult struct {
	Action        Action        `json:"action"`
	Success       bool          `json:"success"`
	FailureReason string        `json:"failureReason,omitempty"`
	Effects       []StateChange `json:"effects,omitempty"`
	Events        []Event       `json:"events,omitempty"`
}

// Validation carries the outcome of a rule check
type Validation struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Valid returns a passing validation, optionally with warnings attached.
func Valid(warnings ...string) Validation {
	return Validation{IsValid: true, Warnings: warnings}
}

// Invalid returns a failing validation carrying the given errors.
func Invalid(errors ...string) Validation {
	return Validation{IsValid: false, Errors: errors}
}
