package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Docs       DocsConfig       `mapstructure:"docs"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Index      IndexConfig      `mapstructure:"index"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Generation GenerationConfig `mapstructure:"generation"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	History    HistoryConfig    `mapstructure:"history"`
	PDF        PDFConfig        `mapstructure:"pdf"`
	Watch      WatchConfig      `mapstructure:"watch"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DocsConfig struct {
	Dir string `mapstructure:"dir"`
}

// StorageConfig holds the on-disk location of the SQLite databases.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type IndexConfig struct {
	Backend     string `mapstructure:"backend"` // sqlite | chroma | pgvector
	Collection  string `mapstructure:"collection"`
	ChromaURL   string `mapstructure:"chroma_url"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	BatchSize   int    `mapstructure:"batch_size"`
}

type EmbeddingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GenerationConfig struct {
	Provider     string        `mapstructure:"provider"` // groq | gemini
	Model        string        `mapstructure:"model"`
	BaseURL      string        `mapstructure:"base_url"`
	GroqAPIKey   string        `mapstructure:"groq_api_key"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type RetrievalConfig struct {
	TopK            int `mapstructure:"top_k"`
	MaxContextBytes int `mapstructure:"max_context_bytes"`
}

type HistoryConfig struct {
	Window   int `mapstructure:"window"`
	MaxChars int `mapstructure:"max_chars"`
}

type PDFConfig struct {
	LicenseKey string `mapstructure:"license_key"`
}

type WatchConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from an optional file, the environment and a
// local .env file, in increasing order of precedence for the environment.
// An empty path searches ./config and the working directory for config.yaml
// and tolerates its absence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DOCCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: reading config file: %w", ErrInvalid, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding config: %w", ErrInvalid, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ErrInvalid marks configuration that cannot be used to start the service.
var ErrInvalid = errors.New("invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("docs.dir", "docs")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("index.backend", "sqlite")
	v.SetDefault("index.collection", "knowledge_base")
	v.SetDefault("index.chroma_url", "http://localhost:8000")
	v.SetDefault("index.postgres_dsn", "")
	v.SetDefault("index.batch_size", 100)
	v.SetDefault("embedding.base_url", "http://localhost:11434")
	v.SetDefault("embedding.model", "nomic-embed-text:v1.5")
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("generation.provider", "groq")
	v.SetDefault("generation.model", "")
	v.SetDefault("generation.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("generation.groq_api_key", "")
	v.SetDefault("generation.gemini_api_key", "")
	v.SetDefault("generation.timeout", 60*time.Second)
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.max_context_bytes", 2500)
	v.SetDefault("history.window", 4)
	v.SetDefault("history.max_chars", 500)
	v.SetDefault("pdf.license_key", "")
	v.SetDefault("watch.enabled", false)
}

// bindLegacyEnv keeps the unprefixed variable names used by existing
// deployments working alongside the DOCCHAT_* names.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"generation.groq_api_key":   {"DOCCHAT_GENERATION_GROQ_API_KEY", "GROQ_API_KEY"},
		"generation.gemini_api_key": {"DOCCHAT_GENERATION_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"pdf.license_key":           {"DOCCHAT_PDF_LICENSE_KEY", "UNIDOC_LICENSE_KEY"},
		"embedding.base_url":        {"DOCCHAT_EMBEDDING_BASE_URL", "OLLAMA_URL"},
		"index.chroma_url":          {"DOCCHAT_INDEX_CHROMA_URL", "CHROMA_URL"},
		"index.postgres_dsn":        {"DOCCHAT_INDEX_POSTGRES_DSN", "DATABASE_URL"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("binding env for %s: %w", key, err)
		}
	}
	return nil
}

// Normalize fills zero values left by a partial config file.
func (c *Config) Normalize() {
	c.Index.Backend = strings.ToLower(strings.TrimSpace(c.Index.Backend))
	c.Generation.Provider = strings.ToLower(strings.TrimSpace(c.Generation.Provider))
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = 100
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 3
	}
	if c.Retrieval.MaxContextBytes <= 0 {
		c.Retrieval.MaxContextBytes = 2500
	}
	if c.History.Window <= 0 {
		c.History.Window = 4
	}
	if c.History.MaxChars <= 0 {
		c.History.MaxChars = 500
	}
	if c.Generation.Model == "" {
		switch c.Generation.Provider {
		case "gemini":
			c.Generation.Model = "gemini-2.5-flash"
		default:
			c.Generation.Model = "llama-3.3-70b-versatile"
		}
	}
}

func (c *Config) Validate() error {
	switch c.Index.Backend {
	case "sqlite", "chroma":
	case "pgvector":
		if strings.TrimSpace(c.Index.PostgresDSN) == "" {
			return fmt.Errorf("%w: index.postgres_dsn required for the pgvector backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown index.backend %q", ErrInvalid, c.Index.Backend)
	}
	switch c.Generation.Provider {
	case "groq", "gemini":
	default:
		return fmt.Errorf("%w: unknown generation.provider %q", ErrInvalid, c.Generation.Provider)
	}
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("%w: generation.timeout must be positive", ErrInvalid)
	}
	return nil
}

// APIKey returns the credential for the configured generation provider.
func (g GenerationConfig) APIKey() string {
	if g.Provider == "gemini" {
		return g.GeminiAPIKey
	}
	return g.GroqAPIKey
}
