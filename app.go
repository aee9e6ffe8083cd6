package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"

	"github.com/itish2003/docchat/config"
	"github.com/itish2003/docchat/logger"
	"github.com/itish2003/docchat/services"
	"github.com/itish2003/docchat/store"
)

// app holds the wired services shared by every command.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	rag      services.RAGService
	indexing *services.IndexingService
	archive  *services.DocumentArchive
	closers  []io.Closer
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log.Level)
	slog.SetDefault(log)
	a := &app{cfg: cfg, log: log}

	if err := services.ConfigurePDFLicense(cfg.PDF.LicenseKey); err != nil {
		log.Warn("PDF extraction disabled until a license key is configured", slog.Any("error", err))
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create data directory: %w", err)
	}

	vectors, err := a.openVectorStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	historyDB, err := store.OpenSQLite(filepath.Join(cfg.Storage.DataDir, "chat_history.db"))
	if err != nil {
		a.Close()
		return nil, err
	}
	history, err := store.NewHistoryStore(historyDB)
	if err != nil {
		historyDB.Close()
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, history)

	embedder := services.NewOllamaEmbedder(&http.Client{Timeout: cfg.Embedding.Timeout}, cfg.Embedding.BaseURL, cfg.Embedding.Model)
	index := services.NewEmbeddingIndex(vectors, embedder, cfg.Index.BatchSize, log)

	generator, err := newGenerator(ctx, cfg.Generation)
	if err != nil {
		log.Error("Generation provider unavailable, chat replies will report the error", slog.String("provider", cfg.Generation.Provider), slog.Any("error", err))
		generator = services.NewUnavailableGenerator(err)
	}

	a.rag = services.NewRAGService(
		history,
		services.NewRetriever(index),
		services.NewContextAssembler(history, cfg.History.Window, cfg.History.MaxChars),
		generator,
		services.ChatOptions{
			TopK:              cfg.Retrieval.TopK,
			MaxContextBytes:   cfg.Retrieval.MaxContextBytes,
			GenerationTimeout: cfg.Generation.Timeout,
		},
		log,
	)

	a.archive, err = services.NewDocumentArchive(cfg.Docs.Dir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.indexing = services.NewIndexingService(index, a.archive, log)
	return a, nil
}

type vectorStore interface {
	services.VectorStore
	io.Closer
}

func (a *app) openVectorStore(ctx context.Context) (vectorStore, error) {
	var (
		vectors vectorStore
		err     error
	)
	switch a.cfg.Index.Backend {
	case "chroma":
		vectors, err = openChroma(ctx, a.cfg.Index)
	case "pgvector":
		vectors, err = openPgVector(a.cfg.Index)
	default:
		vectors, err = openSQLiteVectors(a.cfg.Storage)
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, vectors)
	a.log.Info("Vector index ready", slog.String("backend", a.cfg.Index.Backend))
	return vectors, nil
}

func openSQLiteVectors(cfg config.StorageConfig) (vectorStore, error) {
	db, err := store.OpenSQLite(filepath.Join(cfg.DataDir, "vectors.db"))
	if err != nil {
		return nil, err
	}
	s, err := store.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openChroma(ctx context.Context, cfg config.IndexConfig) (vectorStore, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(cfg.ChromaURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	collection, err := store.OpenChromaCollection(ctx, client, cfg.Collection)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &chromaVectors{ChromaStore: store.NewChromaStore(collection), client: client}, nil
}

// chromaVectors releases the HTTP client together with the store.
type chromaVectors struct {
	*store.ChromaStore
	client chromago.Client
}

func (c *chromaVectors) Close() error {
	return errors.Join(c.ChromaStore.Close(), c.client.Close())
}

func openPgVector(cfg config.IndexConfig) (vectorStore, error) {
	db, err := store.OpenPostgres(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	s, err := store.NewPgVectorStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newGenerator(ctx context.Context, cfg config.GenerationConfig) (services.Generator, error) {
	if cfg.Provider == "gemini" {
		return services.NewGeminiGenerator(ctx, cfg.APIKey(), cfg.Model)
	}
	return services.NewGroqGenerator(cfg.APIKey(), cfg.BaseURL, cfg.Model)
}

// Close releases the stores in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
