package services

import (
	"context"
	"fmt"

	"github.com/itish2003/docchat/models"
)

const (
	DefaultHistoryWindow   = 4
	DefaultHistoryMaxChars = 500
)

type recentHistory interface {
	Recent(ctx context.Context, n int) ([]models.ChatTurn, error)
}

// ContextAssembler builds the message list sent to the generator: system
// prompt, the recent conversation window and the new user query.
type ContextAssembler struct {
	history  recentHistory
	window   int
	maxChars int
}

func NewContextAssembler(history recentHistory, window, maxChars int) *ContextAssembler {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if maxChars <= 0 {
		maxChars = DefaultHistoryMaxChars
	}
	return &ContextAssembler{history: history, window: window, maxChars: maxChars}
}

func (a *ContextAssembler) Assemble(ctx context.Context, persona Persona, retrieval models.RetrievalResult, query string) ([]models.Message, error) {
	turns, err := a.history.Recent(ctx, a.window)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation window: %w", err)
	}

	messages := make([]models.Message, 0, len(turns)+2)
	messages = append(messages, models.Message{
		Role:    models.RoleSystem,
		Content: SystemPrompt(persona, retrieval.Context),
	})
	for _, t := range turns {
		messages = append(messages, models.Message{
			Role:    t.Role,
			Content: truncateChars(t.Content, a.maxChars),
		})
	}
	messages = append(messages, models.Message{Role: models.RoleUser, Content: query})
	return messages, nil
}

func truncateChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
