package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itish2003/docchat/models"
)

// ChatState names the steps a chat exchange moves through.
type ChatState string

const (
	StateReceived          ChatState = "RECEIVED"
	StatePersistedUserTurn ChatState = "PERSISTED_USER_TURN"
	StateRetrieved         ChatState = "RETRIEVED"
	StateAssembled         ChatState = "ASSEMBLED"
	StateGenerated         ChatState = "GENERATED"
	StatePersistedReply    ChatState = "PERSISTED_REPLY"
	StateDone              ChatState = "DONE"
	StateError             ChatState = "ERROR"
)

const systemErrorPrefix = "System Error: "

var greetingKeywords = []string{"hello", "hi", "hey", "good morning", "good evening", "thanks", "thank you"}

// RAGService interface defines the chat and history operations exposed to
// the transport layer.
type RAGService interface {
	Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
	History(ctx context.Context) ([]models.ChatTurn, error)
	ClearHistory(ctx context.Context) error
}

// ConversationStore is the durable chat log.
type ConversationStore interface {
	Append(ctx context.Context, role models.Role, content string) (models.ChatTurn, error)
	All(ctx context.Context) ([]models.ChatTurn, error)
	Recent(ctx context.Context, n int) ([]models.ChatTurn, error)
	Clear(ctx context.Context) error
}

type ChatOptions struct {
	TopK              int
	MaxContextBytes   int
	GenerationTimeout time.Duration
}

type ragServiceImpl struct {
	history   ConversationStore
	retriever *Retriever
	assembler *ContextAssembler
	generator Generator
	opts      ChatOptions
	log       *slog.Logger
}

// NewRAGService creates a new RAG service instance
func NewRAGService(history ConversationStore, retriever *Retriever, assembler *ContextAssembler, generator Generator, opts ChatOptions, log *slog.Logger) RAGService {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 60 * time.Second
	}
	return &ragServiceImpl{
		history:   history,
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		opts:      opts,
		log:       log,
	}
}

// Chat runs one exchange. The user turn is stored before anything else and
// an assistant turn is always stored after it, including when retrieval or
// generation fails; in that case the reply carries the error text.
func (r *ragServiceImpl) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	query := req.Query
	if strings.TrimSpace(query) == "" {
		return models.ChatResponse{}, fmt.Errorf("%w: query is empty", models.ErrEmptyInput)
	}
	persona := ParsePersona(req.Role)
	log := r.log.With(slog.String("persona", persona.String()))
	r.transition(log, StateReceived)

	if _, err := r.history.Append(ctx, models.RoleUser, query); err != nil {
		chatRequests.WithLabelValues(persona.String(), "error").Inc()
		return models.ChatResponse{}, fmt.Errorf("failed to persist user turn: %w", err)
	}
	r.transition(log, StatePersistedUserTurn)

	retrieval, err := r.retriever.Retrieve(ctx, query, r.opts.TopK, r.opts.MaxContextBytes)
	if err != nil {
		return r.fail(ctx, log, persona, fmt.Errorf("retrieval failed: %w", err))
	}
	r.transition(log, StateRetrieved, slog.Int("chunks", len(retrieval.Chunks)), slog.Any("sources", retrieval.Sources))

	messages, err := r.assembler.Assemble(ctx, persona, retrieval, query)
	if err != nil {
		return r.fail(ctx, log, persona, err)
	}
	r.transition(log, StateAssembled, slog.Int("messages", len(messages)))

	reply, genErr := r.generate(ctx, messages)
	outcome := "success"
	if genErr != nil {
		outcome = "generation_error"
		r.transition(log, StateError)
		log.Error("Generation failed", slog.Any("error", genErr))
		reply = systemErrorPrefix + errorDetail(genErr)
	} else {
		r.transition(log, StateGenerated)
		if !IsGreeting(query) && len(retrieval.Sources) > 0 {
			reply += FormatCitation(retrieval.Sources)
		}
	}

	if _, err := r.history.Append(ctx, models.RoleAssistant, reply); err != nil {
		chatRequests.WithLabelValues(persona.String(), "error").Inc()
		return models.ChatResponse{Reply: reply, Sources: retrieval.Sources}, fmt.Errorf("failed to persist assistant turn: %w", err)
	}
	r.transition(log, StatePersistedReply)
	chatRequests.WithLabelValues(persona.String(), outcome).Inc()
	r.transition(log, StateDone)

	return models.ChatResponse{Reply: reply, Sources: retrieval.Sources}, nil
}

func (r *ragServiceImpl) generate(ctx context.Context, messages []models.Message) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, r.opts.GenerationTimeout)
	defer cancel()

	start := time.Now()
	reply, err := r.generator.Generate(genCtx, messages)
	generationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("generation timed out after %s: %w", r.opts.GenerationTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}
	return reply, nil
}

// fail completes the exchange with an error reply when the pipeline breaks
// before generation, and returns the cause to the caller.
func (r *ragServiceImpl) fail(ctx context.Context, log *slog.Logger, persona Persona, cause error) (models.ChatResponse, error) {
	r.transition(log, StateError)
	log.Error("Chat failed", slog.Any("error", cause))
	chatRequests.WithLabelValues(persona.String(), "error").Inc()

	reply := systemErrorPrefix + cause.Error()
	if _, err := r.history.Append(ctx, models.RoleAssistant, reply); err != nil {
		log.Error("Failed to persist error reply", slog.Any("error", err))
	}
	return models.ChatResponse{Reply: reply, Error: cause.Error()}, cause
}

func (r *ragServiceImpl) transition(log *slog.Logger, state ChatState, attrs ...any) {
	log.Debug("Chat state", append([]any{slog.String("state", string(state))}, attrs...)...)
}

func (r *ragServiceImpl) History(ctx context.Context) ([]models.ChatTurn, error) {
	return r.history.All(ctx)
}

func (r *ragServiceImpl) ClearHistory(ctx context.Context) error {
	if err := r.history.Clear(ctx); err != nil {
		return err
	}
	r.log.Info("Chat history cleared")
	return nil
}

// IsGreeting reports whether query is short chit-chat that should not get a
// citation footer: it contains a greeting keyword and is under 20 characters.
func IsGreeting(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range greetingKeywords {
		if strings.Contains(lower, kw) {
			return utf8.RuneCountInString(query) < 20
		}
	}
	return false
}

func FormatCitation(sources []string) string {
	return "\n\n**📚 Sources:** " + strings.Join(sources, ", ")
}

// errorDetail strips the generation kind prefix so the user sees the
// provider's message.
func errorDetail(err error) string {
	return strings.TrimPrefix(err.Error(), models.ErrGeneration.Error()+": ")
}
