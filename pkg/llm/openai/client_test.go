package openai_test

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/agentarium/worldengine/pkg/llm"
	openaillm "github.com/agentarium/worldengine/pkg/llm/openai"
)

func TestClientGenerate(t *testing.T) {
	mock := &mockChatClient{}
	client, err := openaillm.New(openaillm.Options{Client: mock, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	mock.response = openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{
				FinishReason: "stop",
				Message: openai.ChatCompletionMessage{
					Role:    "assistant",
					Content: "A carbon tax without rebates is regressive.",
				},
			},
		},
	}

	reply, err := client.Generate(context.Background(), llm.Request{
		SessionID: "sess-1",
		AgentID:   "a1",
		System:    "You are Nova, arguing pro.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Make your opening argument."},
		},
		MaxTokens:   256,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	require.Equal(t, "A carbon tax without rebates is regressive.", reply)

	req := mock.captured
	require.Equal(t, "gpt-4o", req.Model)
	require.Len(t, req.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	require.Equal(t, "You are Nova, arguing pro.", req.Messages[0].Content)
	require.Equal(t, openai.ChatMessageRoleUser, req.Messages[1].Role)
	require.Equal(t, "Make your opening argument.", req.Messages[1].Content)
	require.Equal(t, 256, req.MaxTokens)
	require.Equal(t, float32(0.7), req.Temperature)
	require.Equal(t, "a1", req.User)
}

func TestClientGenerateRequiresMessages(t *testing.T) {
	client, err := openaillm.New(openaillm.Options{Client: &mockChatClient{}, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), llm.Request{})
	require.ErrorContains(t, err, "messages are required")
}

func TestClientGenerateNoChoices(t *testing.T) {
	mock := &mockChatClient{}
	client, err := openaillm.New(openaillm.Options{Client: mock, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "ping"}},
	})
	require.ErrorContains(t, err, "no choices")
}

func TestClientGenerateProviderError(t *testing.T) {
	mock := &mockChatClient{err: errors.New("rate limited")}
	client, err := openaillm.New(openaillm.Options{Client: mock, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "ping"}},
	})
	require.ErrorIs(t, err, mock.err)
}

func TestClientRequiresDefaultModel(t *testing.T) {
	_, err := openaillm.New(openaillm.Options{Client: &mockChatClient{}})
	require.Error(t, err)
}

func TestClientRequiresChatClient(t *testing.T) {
	_, err := openaillm.New(openaillm.Options{DefaultModel: "gpt-4o"})
	require.Error(t, err)
}

func TestNewFromAPIKeyRequiresKey(t *testing.T) {
	_, err := openaillm.NewFromAPIKey("", "", "gpt-4o")
	require.Error(t, err)
}

type mockChatClient struct {
	response openai.ChatCompletionResponse
	captured openai.ChatCompletionRequest
	err      error
}

func (m *mockChatClient) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
	openai.ChatCompletionResponse, error) {
	m.captured = request
	return m.response, m.err
}
