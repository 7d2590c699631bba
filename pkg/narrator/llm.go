package narrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentarium/worldengine/pkg/llm"
)

const defaultMaxTokens = 512

// LLMNarrator implements Narrator over a completion provider.
type LLMNarrator struct {
	provider  llm.Provider
	style     Style
	maxTokens int
}

// NewLLM builds a narrator in the given style.
func NewLLM(provider llm.Provider, style Style) *LLMNarrator {
	if style != StyleLaTeX {
		style = StyleProse
	}
	return &LLMNarrator{provider: provider, style: style, maxTokens: defaultMaxTokens}
}

// WithStyle returns a copy of the narrator in the given style.
func (n *LLMNarrator) WithStyle(style Style) *LLMNarrator {
	return NewLLM(n.provider, style)
}

// Styled restyles n when it supports restyling. Other implementations,
// including test fakes, pass through unchanged.
func Styled(n Narrator, style Style) Narrator {
	if ln, ok := n.(*LLMNarrator); ok {
		return ln.WithStyle(style)
	}
	return n
}

func (n *LLMNarrator) system() string {
	if n.style == StyleLaTeX {
		return "You are the narrator of a collaborative mathematical derivation. " +
			"Write concise mathematical prose; use LaTeX for formulas."
	}
	return "You are the neutral narrator of a multi-agent simulation. " +
		"Write concise, vivid prose. Never invent facts beyond the digest."
}

func (n *LLMNarrator) generate(ctx context.Context, prompt string) (string, error) {
	out, err := n.provider.Generate(ctx, llm.Request{
		System:    n.system(),
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens: n.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("narrator generation failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (d Digest) render(task string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", d.Topic)
	if d.Phase != "" {
		fmt.Fprintf(&b, "Phase: %s\n", d.Phase)
	}
	if len(d.Participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(d.Participants, ", "))
	}
	if len(d.CondensedEvents) > 0 {
		b.WriteString("Recent events:\n")
		for _, e := range d.CondensedEvents {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	if d.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", d.Notes)
	}
	b.WriteString("\n")
	b.WriteString(task)
	return b.String()
}

// Opening implements Narrator.
func (n *LLMNarrator) Opening(ctx context.Context, d Digest) (string, error) {
	return n.generate(ctx, d.render("Write a short opening that frames the topic and introduces the participants."))
}

// PhaseSummary implements Narrator.
func (n *LLMNarrator) PhaseSummary(ctx context.Context, d Digest) (string, error) {
	return n.generate(ctx, d.render("Summarize what happened in this phase in at most four sentences."))
}

// GuidingQuestion implements Narrator.
func (n *LLMNarrator) GuidingQuestion(ctx context.Context, d Digest, target string) (string, error) {
	task := fmt.Sprintf("Participant %q has been quiet. Pose one pointed question that invites them back into the discussion.", target)
	return n.generate(ctx, d.render(task))
}

// Closing implements Narrator.
func (n *LLMNarrator) Closing(ctx context.Context, d Digest) (string, error) {
	return n.generate(ctx, d.render("Write a short closing that states how the session ended."))
}
