package narrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentarium/worldengine/pkg/llm"
)

func TestLLMNarrator_RendersDigestIntoPrompt(t *testing.T) {
	var captured llm.Request
	provider := llm.Func(func(_ context.Context, req llm.Request) (string, error) {
		captured = req
		return "  A heated opening exchange.  ", nil
	})

	n := NewLLM(provider, StyleProse)
	out, err := n.PhaseSummary(context.Background(), Digest{
		Topic:           "Should cities ban cars?",
		Phase:           "opening",
		Participants:    []string{"ada", "bo"},
		CondensedEvents: []string{"ada: cars waste space", "bo: transit is underfunded"},
	})
	require.NoError(t, err)
	assert.Equal(t, "A heated opening exchange.", out)

	require.Len(t, captured.Messages, 1)
	assert.Contains(t, captured.Messages[0].Content, "Should cities ban cars?")
	assert.Contains(t, captured.Messages[0].Content, "ada, bo")
	assert.Contains(t, captured.Messages[0].Content, "cars waste space")
	assert.Contains(t, captured.System, "narrator")
}

func TestLLMNarrator_LaTeXStyleChangesSystemPrompt(t *testing.T) {
	var captured llm.Request
	provider := llm.Func(func(_ context.Context, req llm.Request) (string, error) {
		captured = req
		return "ok", nil
	})

	n := NewLLM(provider, StyleLaTeX)
	_, err := n.Closing(context.Background(), Digest{Topic: "a+b>0"})
	require.NoError(t, err)
	assert.Contains(t, captured.System, "LaTeX")
}

func TestStyledRestylesLLMNarrator(t *testing.T) {
	var captured llm.Request
	provider := llm.Func(func(_ context.Context, req llm.Request) (string, error) {
		captured = req
		return "ok", nil
	})

	restyled := Styled(NewLLM(provider, StyleProse), StyleLaTeX)
	_, err := restyled.Closing(context.Background(), Digest{Topic: "a+b>0"})
	require.NoError(t, err)
	assert.Contains(t, captured.System, "LaTeX")
}

func TestStyledPassesThroughOtherImplementations(t *testing.T) {
	fake := fakeNarrator{}
	assert.Equal(t, Narrator(fake), Styled(fake, StyleLaTeX))
}

type fakeNarrator struct{}

func (fakeNarrator) Opening(context.Context, Digest) (string, error)      { return "", nil }
func (fakeNarrator) PhaseSummary(context.Context, Digest) (string, error) { return "", nil }
func (fakeNarrator) GuidingQuestion(context.Context, Digest, string) (string, error) {
	return "", nil
}
func (fakeNarrator) Closing(context.Context, Digest) (string, error) { return "", nil }

func TestLLMNarrator_GuidingQuestionNamesTarget(t *testing.T) {
	var captured llm.Request
	provider := llm.Func(func(_ context.Context, req llm.Request) (string, error) {
		captured = req
		return "What would change your mind?", nil
	})

	n := NewLLM(provider, StyleProse)
	out, err := n.GuidingQuestion(context.Background(), Digest{Topic: "t"}, "bo")
	require.NoError(t, err)
	assert.Equal(t, "What would change your mind?", out)
	assert.Contains(t, captured.Messages[0].Content, `"bo"`)
}

func TestLLMNarrator_WrapsProviderErrors(t *testing.T) {
	provider := llm.Func(func(_ context.Context, _ llm.Request) (string, error) {
		return "", errors.New("upstream unavailable")
	})

	n := NewLLM(provider, StyleProse)
	_, err := n.Opening(context.Background(), Digest{Topic: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "narrator generation failed")
}
