package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/itish2003/docchat/models"
)

type fakeLLM struct {
	got  []llms.MessageContent
	resp *llms.ContentResponse
	err  error
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	return f.resp, f.err
}

var promptMessages = []models.Message{
	{Role: models.RoleSystem, Content: "be brief"},
	{Role: models.RoleUser, Content: "hi"},
	{Role: models.RoleAssistant, Content: "hello"},
	{Role: models.RoleUser, Content: "refunds?"},
}

func TestGroqGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("Maps roles and returns the first choice", func(t *testing.T) {
		llm := &fakeLLM{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "30 days"}}}}
		g := &GroqGenerator{llm: llm}

		reply, err := g.Generate(ctx, promptMessages)

		require.NoError(t, err)
		assert.Equal(t, "30 days", reply)
		require.Len(t, llm.got, 4)
		assert.Equal(t, llms.ChatMessageTypeSystem, llm.got[0].Role)
		assert.Equal(t, llms.ChatMessageTypeHuman, llm.got[1].Role)
		assert.Equal(t, llms.ChatMessageTypeAI, llm.got[2].Role)
		assert.Equal(t, llms.TextContent{Text: "refunds?"}, llm.got[3].Parts[0])
	})

	t.Run("Fails on an empty choice list", func(t *testing.T) {
		g := &GroqGenerator{llm: &fakeLLM{resp: &llms.ContentResponse{}}}

		_, err := g.Generate(ctx, promptMessages)

		assert.Error(t, err)
	})

	t.Run("Passes provider errors through", func(t *testing.T) {
		g := &GroqGenerator{llm: &fakeLLM{err: errors.New("rate limited")}}

		_, err := g.Generate(ctx, promptMessages)

		assert.ErrorContains(t, err, "rate limited")
	})

	t.Run("Requires an API key", func(t *testing.T) {
		_, err := NewGroqGenerator("", "https://api.groq.com/openai/v1", "llama-3.3-70b-versatile")

		assert.ErrorIs(t, err, models.ErrConfiguration)
	})
}

func TestGeminiContents(t *testing.T) {
	t.Run("Moves system text into the instruction and maps roles", func(t *testing.T) {
		system, contents := toGeminiContents(promptMessages)

		require.NotNil(t, system)
		assert.Equal(t, "be brief", system.Parts[0].Text)
		require.Len(t, contents, 3)
		assert.Equal(t, "user", contents[0].Role)
		assert.Equal(t, "model", contents[1].Role)
		assert.Equal(t, "refunds?", contents[2].Parts[0].Text)
	})

	t.Run("Omits the instruction without a system message", func(t *testing.T) {
		system, contents := toGeminiContents(promptMessages[1:])

		assert.Nil(t, system)
		assert.Len(t, contents, 3)
	})

	t.Run("Requires an API key", func(t *testing.T) {
		_, err := NewGeminiGenerator(context.Background(), "", "gemini-2.5-flash")

		assert.ErrorIs(t, err, models.ErrConfiguration)
	})
}

func TestUnavailableGenerator(t *testing.T) {
	cause := errors.New("missing key")

	_, err := NewUnavailableGenerator(cause).Generate(context.Background(), nil)

	assert.ErrorIs(t, err, cause)
}
