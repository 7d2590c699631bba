// Package llm defines the boundary to language-model providers. The engine
// core only ever sees this interface; wire formats and vendor SDKs live on
// the other side of it.
package llm

import "context"

// Message roles understood by providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion request.
type Request struct {
	SessionID   string    `json:"sessionId,omitempty"`
	AgentID     string    `json:"agentId,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Provider generates completions. Implementations must be safe for
// concurrent use; the driver fans out one call per agent within a step.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Provider interface. Tests script providers
// with closures instead of building mock types.
type Func func(ctx context.Context, req Request) (string, error)

// Generate implements Provider.
func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
