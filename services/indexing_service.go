package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/itish2003/docchat/models"
)

// IndexingService owns every write path into the embedding index: uploads,
// deletes, directory ingestion, explicit rebuilds and the folder watcher.
// Writes are serialized so a watcher event cannot interleave with an upload
// of the same file.
type IndexingService struct {
	index   *EmbeddingIndex
	archive *DocumentArchive
	log     *slog.Logger

	mu     sync.Mutex
	hashes map[string]string // source -> hash of the ingested content
}

// NewIndexingService creates a new indexing service. archive may be nil, in
// which case uploads are indexed but not kept on disk.
func NewIndexingService(index *EmbeddingIndex, archive *DocumentArchive, log *slog.Logger) *IndexingService {
	return &IndexingService{
		index:   index,
		archive: archive,
		log:     log,
		hashes:  make(map[string]string),
	}
}

// Upload ingests one document, replacing any chunks previously stored under
// the same filename. Unsupported and empty documents leave all state
// untouched and are reported through the result status.
func (s *IndexingService) Upload(ctx context.Context, filename string, data []byte) (models.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ingest(ctx, filepath.Base(filename), data, true)
}

func (s *IndexingService) ingest(ctx context.Context, source string, data []byte, archive bool) (models.UploadResult, error) {
	result, err := s.ingestDocument(ctx, source, data, archive)
	uploads.WithLabelValues(result.Status).Inc()
	if err != nil {
		result.Message = err.Error()
		s.log.Warn("Document not indexed", slog.String("source", source), slog.String("status", result.Status), slog.Any("error", err))
		return result, err
	}
	s.log.Info("Indexed document", slog.String("source", source), slog.Int("chunks", result.Chunks))
	return result, nil
}

func (s *IndexingService) ingestDocument(ctx context.Context, source string, data []byte, archive bool) (models.UploadResult, error) {
	result := models.UploadResult{Status: models.StatusError, Filename: source}

	if !IsSupportedFile(source) {
		return result, fmt.Errorf("%w: %s is not a .pdf, .txt or .md file", models.ErrUnsupportedInput, source)
	}

	text, err := ExtractText(source, data)
	if err != nil {
		return result, fmt.Errorf("could not read %s: %w", source, err)
	}

	pieces := ChunkText(text)
	if len(pieces) == 0 {
		result.Status = models.StatusWarning
		return result, fmt.Errorf("%w: %s contains no text", models.ErrEmptyInput, source)
	}

	chunks := make([]models.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, models.Chunk{
			ID:     fmt.Sprintf("%s_%d_%s", source, i, uuid.New().String()[:8]),
			Text:   piece,
			Source: source,
		})
	}

	if err := s.index.Replace(ctx, source, chunks); err != nil {
		return result, err
	}

	if archive && s.archive != nil {
		if _, err := s.archive.Save(source, data); err != nil {
			s.log.Warn("Indexed document could not be archived", slog.String("source", source), slog.Any("error", err))
			result.Message = "indexed but not archived: " + err.Error()
		}
	}

	s.hashes[source] = hashBytes(data)
	result.Status = models.StatusSuccess
	result.Chunks = len(chunks)
	return result, nil
}

// DeleteDocument removes a document from the index and the archive. Deleting
// an unknown document succeeds.
func (s *IndexingService) DeleteDocument(ctx context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	source := filepath.Base(filename)
	if err := s.index.Delete(ctx, source); err != nil {
		return err
	}
	delete(s.hashes, source)
	if s.archive != nil {
		if err := s.archive.Remove(source); err != nil {
			s.log.Warn("Failed to remove archived document", slog.String("source", source), slog.Any("error", err))
		}
	}
	s.log.Info("Deleted document", slog.String("source", source))
	return nil
}

// ListDocuments returns the indexed source names, sorted.
func (s *IndexingService) ListDocuments(ctx context.Context) ([]string, error) {
	return s.index.ListSources(ctx)
}

// IngestDirectory indexes every supported file directly inside dir. Each
// file replaces its previous chunks; nothing else in the index is touched.
// Per-file failures are reported in the results and do not stop the run.
func (s *IndexingService) IngestDirectory(ctx context.Context, dir string) ([]models.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ingestDirectory(ctx, dir)
}

func (s *IndexingService) ingestDirectory(ctx context.Context, dir string) ([]models.UploadResult, error) {
	entries, err := readDocsDir(dir)
	if err != nil {
		return nil, err
	}
	return s.ingestEntries(ctx, dir, entries)
}

func readDocsDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	return entries, nil
}

func (s *IndexingService) ingestEntries(ctx context.Context, dir string, entries []os.DirEntry) ([]models.UploadResult, error) {
	s.log.Info("Starting directory ingest", slog.String("dir", dir), slog.Int("entries", len(entries)))
	results := []models.UploadResult{}
	for _, entry := range entries {
		if entry.IsDir() || !IsSupportedFile(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			results = append(results, models.UploadResult{
				Status:   models.StatusError,
				Filename: entry.Name(),
				Message:  err.Error(),
			})
			continue
		}
		result, _ := s.ingest(ctx, entry.Name(), data, false)
		results = append(results, result)
	}
	s.log.Info("Directory ingest finished", slog.String("dir", dir), slog.Int("documents", len(results)))
	return results, nil
}

// RebuildIndex drops the whole index, including its recorded embedding
// dimension, and re-ingests dir. It is the only operation that clears
// documents it was not asked to replace. An unreadable dir fails before
// anything is dropped.
func (s *IndexingService) RebuildIndex(ctx context.Context, dir string) ([]models.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := readDocsDir(dir)
	if err != nil {
		return nil, err
	}

	s.log.Warn("Rebuilding index from scratch", slog.String("dir", dir))
	if err := s.index.Reset(ctx); err != nil {
		return nil, err
	}
	s.hashes = make(map[string]string)
	return s.ingestEntries(ctx, dir, entries)
}

// WatchDirectory re-indexes files in dir as they are created or modified
// and drops the ones that are removed. It blocks until ctx is cancelled.
func (s *IndexingService) WatchDirectory(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	s.log.Info("Watching directory", slog.String("dir", dir))

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !IsSupportedFile(event.Name) {
				continue
			}
			s.handleWatchEvent(ctx, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Error("Watcher error", slog.Any("error", err))

		case <-ctx.Done():
			s.log.Info("Watcher stopped", slog.String("dir", dir))
			return nil
		}
	}
}

func (s *IndexingService) handleWatchEvent(ctx context.Context, event fsnotify.Event) {
	source := filepath.Base(event.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Editors often save through several events; the hash check makes the
	// repeats no-ops.
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		hash, err := calculateFileHash(event.Name)
		if err != nil {
			s.log.Warn("Could not hash file", slog.String("path", event.Name), slog.Any("error", err))
			return
		}
		if s.hashes[source] == hash {
			return
		}
		data, err := os.ReadFile(event.Name)
		if err != nil {
			s.log.Warn("Could not read file", slog.String("path", event.Name), slog.Any("error", err))
			return
		}
		_, _ = s.ingest(ctx, source, data, false)
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if err := s.index.Delete(ctx, source); err != nil {
			s.log.Error("Failed to drop removed file", slog.String("source", source), slog.Any("error", err))
			return
		}
		delete(s.hashes, source)
		s.log.Info("Dropped removed file from index", slog.String("source", source))
	}
}
