// Package narrator generates phase summaries, openings, closings, and
// guiding questions from filtered world digests. A narrator never mutates
// world state and is always optional: engines run deterministically
// without one.
package narrator

import "context"

// Style selects the output register.
type Style string

const (
	// StyleProse is plain prose, used by debate and society worlds.
	StyleProse Style = "prose"
	// StyleLaTeX is mathematical prose with LaTeX fragments, used by
	// logic worlds.
	StyleLaTeX Style = "latex"
)

// Digest is the read-only slice of world state handed to a narrator.
// Engines build digests from snapshots; nothing in a digest aliases
// live state.
type Digest struct {
	Topic           string   `json:"topic"`
	Phase           string   `json:"phase,omitempty"`
	Participants    []string `json:"participants,omitempty"`
	CondensedEvents []string `json:"condensedEvents,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// Narrator produces commentary strings for world milestones.
type Narrator interface {
	// Opening introduces the session.
	Opening(ctx context.Context, d Digest) (string, error)
	// PhaseSummary condenses a finished phase.
	PhaseSummary(ctx context.Context, d Digest) (string, error)
	// GuidingQuestion nudges a specific quiet participant.
	GuidingQuestion(ctx context.Context, d Digest, target string) (string, error)
	// Closing wraps up a terminated session.
	Closing(ctx context.Context, d Digest) (string, error)
}
