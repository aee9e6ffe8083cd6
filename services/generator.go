package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"

	"github.com/itish2003/docchat/models"
)

// Generator produces a reply for an ordered list of prompt messages.
type Generator interface {
	Generate(ctx context.Context, messages []models.Message) (string, error)
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// GroqGenerator talks to Groq through its OpenAI-compatible API.
type GroqGenerator struct {
	llm contentGenerator
}

func NewGroqGenerator(apiKey, baseURL, model string) (*GroqGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GROQ_API_KEY is not set", models.ErrConfiguration)
	}
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create groq client: %w", models.ErrConfiguration, err)
	}
	return &GroqGenerator{llm: llm}, nil
}

func (g *GroqGenerator) Generate(ctx context.Context, messages []models.Message) (string, error) {
	resp, err := g.llm.GenerateContent(ctx, toLangchainMessages(messages))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func toLangchainMessages(messages []models.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

// GeminiGenerator calls Gemini with the system message as the system
// instruction and the remaining turns as chat contents.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", models.ErrConfiguration)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gemini client: %w", models.ErrConfiguration, err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, messages []models.Message) (string, error) {
	system, contents := toGeminiContents(messages)

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: system,
	})
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var responseText strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		if p.Text != "" {
			responseText.WriteString(p.Text)
		}
	}
	return responseText.String(), nil
}

func toGeminiContents(messages []models.Message) (*genai.Content, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			system = append(system, m.Content)
		case models.RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(system) == 0 {
		return nil, contents
	}
	return genai.Text(strings.Join(system, "\n"))[0], contents
}

// unavailableGenerator stands in when the provider could not be configured;
// every call reports the configuration error so chat turns still complete.
type unavailableGenerator struct {
	err error
}

func NewUnavailableGenerator(err error) Generator {
	return unavailableGenerator{err: err}
}

func (u unavailableGenerator) Generate(context.Context, []models.Message) (string, error) {
	return "", u.err
}
