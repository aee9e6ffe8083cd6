package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Uses defaults without a config file", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := Load("")

		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Index.Backend)
		assert.Equal(t, "knowledge_base", cfg.Index.Collection)
		assert.Equal(t, 100, cfg.Index.BatchSize)
		assert.Equal(t, 3, cfg.Retrieval.TopK)
		assert.Equal(t, 2500, cfg.Retrieval.MaxContextBytes)
		assert.Equal(t, 4, cfg.History.Window)
		assert.Equal(t, 500, cfg.History.MaxChars)
		assert.Equal(t, "groq", cfg.Generation.Provider)
		assert.Equal(t, "llama-3.3-70b-versatile", cfg.Generation.Model)
		assert.Equal(t, 60*time.Second, cfg.Generation.Timeout)
	})

	t.Run("Keeps the default server port off the default Chroma port", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("CHROMA_URL", "")
		t.Setenv("DOCCHAT_INDEX_CHROMA_URL", "")
		t.Setenv("DOCCHAT_SERVER_ADDRESS", "")

		cfg, err := Load("")

		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Address)
		assert.Equal(t, "http://localhost:8000", cfg.Index.ChromaURL)
	})

	t.Run("Reads a YAML file and lets the environment override it", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "docchat.yaml")
		content := "retrieval:\n  top_k: 5\ngeneration:\n  provider: gemini\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		t.Setenv("DOCCHAT_RETRIEVAL_TOP_K", "7")
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg, err := Load(path)

		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Retrieval.TopK)
		assert.Equal(t, "gemini", cfg.Generation.Provider)
		assert.Equal(t, "gemini-2.5-flash", cfg.Generation.Model)
		assert.Equal(t, "gem-key", cfg.Generation.APIKey())
	})

	t.Run("Reads the legacy Groq key", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("GROQ_API_KEY", "groq-key")

		cfg, err := Load("")

		require.NoError(t, err)
		assert.Equal(t, "groq-key", cfg.Generation.APIKey())
	})

	t.Run("Rejects an unknown index backend", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("DOCCHAT_INDEX_BACKEND", "faiss")

		_, err := Load("")

		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("Requires a DSN for pgvector", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("DOCCHAT_INDEX_BACKEND", "pgvector")
		t.Setenv("DOCCHAT_INDEX_POSTGRES_DSN", "")
		t.Setenv("DATABASE_URL", "")

		_, err := Load("")

		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("Fails on a missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

		assert.ErrorIs(t, err, ErrInvalid)
	})
}
