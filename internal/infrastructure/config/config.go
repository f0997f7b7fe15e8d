// Package config loads the application configuration from a YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider kinds for the embedder and the chat model.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai" // any OpenAI-compatible endpoint, DashScope included
)

// DashScopeBaseURL is the OpenAI-compatible endpoint of DashScope.
const DashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// IngestConfig configures chunking, deduplication and file ingestion.
type IngestConfig struct {
	ChunkSize          int      `yaml:"chunk_size"`
	ChunkOverlap       int      `yaml:"chunk_overlap"`
	Separators         []string `yaml:"separators,omitempty"`
	MaxSplitCharNumber int      `yaml:"max_split_char_number"`
	Operator           string   `yaml:"operator"`
	LedgerPath         string   `yaml:"ledger_path"`
	Concurrency        int      `yaml:"concurrency"`
}

// HistoryConfig configures the conversation history store.
type HistoryConfig struct {
	Dir        string `yaml:"dir"`
	MaxHistory int    `yaml:"max_history"`
	Window     int    `yaml:"window"` // messages included in each prompt
}

// VectorStoreConfig configures the SQLite vector index.
type VectorStoreConfig struct {
	Dir        string `yaml:"dir"`
	Collection string `yaml:"collection"`
}

// RetrievalConfig configures the retrieval chain.
type RetrievalConfig struct {
	TopK         int    `yaml:"top_k"`
	SystemPrompt string `yaml:"system_prompt,omitempty"`
}

// ModelConfig configures a remote or local model endpoint.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env,omitempty"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	BatchSize   int     `yaml:"batch_size,omitempty"`  // embedder only
	Temperature float32 `yaml:"temperature,omitempty"` // chat only
}

// APIKey reads the key from the configured environment variable.
func (m ModelConfig) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

// Timeout returns TimeoutSecs as a duration.
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSecs) * time.Second
}

// WatchConfig configures directory watching.
type WatchConfig struct {
	Extensions []string `yaml:"extensions,omitempty"`
	DebounceMS int      `yaml:"debounce_ms"`
}

// Debounce returns DebounceMS as a duration.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr      string `yaml:"addr,omitempty"`
	Namespace string `yaml:"namespace"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	SessionID   string            `yaml:"session_id"`
	Log         LogConfig         `yaml:"log"`
	Ingest      IngestConfig      `yaml:"ingest"`
	History     HistoryConfig     `yaml:"history"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Embedder    ModelConfig       `yaml:"embedder"`
	Chat        ModelConfig       `yaml:"chat"`
	Watch       WatchConfig       `yaml:"watch"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Load reads a config from path. If the file does not exist, it returns the
// defaults. Numbers are taken as written, so an explicit 0 stays 0 and is then
// subject to Validate; only empty strings are replaced by defaults.
func Load(path string) (*AppConfig, error) {
	cfg := numericDefaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	cfg := numericDefaults()
	applyDefaults(cfg)
	return cfg
}

// numericDefaults is the base a config file is decoded onto. Model endpoints
// and names are left empty since they depend on the provider the file picks.
func numericDefaults() *AppConfig {
	return &AppConfig{
		Ingest: IngestConfig{
			ChunkSize:          1000,
			ChunkOverlap:       100,
			MaxSplitCharNumber: 1000,
			Concurrency:        4,
		},
		History:   HistoryConfig{MaxHistory: 10, Window: 5},
		Retrieval: RetrievalConfig{TopK: 1},
		Embedder:  ModelConfig{TimeoutSecs: 60, BatchSize: 10},
		Chat:      ModelConfig{TimeoutSecs: 300},
		Watch:     WatchConfig{DebounceMS: 300},
	}
}

// LoadEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyDefaults fills in settings left empty.
func applyDefaults(cfg *AppConfig) {
	if cfg.SessionID == "" {
		cfg.SessionID = "default"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.Ingest.Operator == "" {
		cfg.Ingest.Operator = "ragchat"
	}
	if cfg.Ingest.LedgerPath == "" {
		cfg.Ingest.LedgerPath = "./data/fingerprints.txt"
	}

	if cfg.History.Dir == "" {
		cfg.History.Dir = "./data/conversation_history"
	}

	if cfg.VectorStore.Dir == "" {
		cfg.VectorStore.Dir = "./data/vector_db"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "rag"
	}

	applyModelDefaults(&cfg.Embedder, "text-embedding-v4", "nomic-embed-text")
	applyModelDefaults(&cfg.Chat, "qwen3-max", "llama3.2")

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "ragchat"
	}
}

func applyModelDefaults(m *ModelConfig, remoteModel, localModel string) {
	if m.Provider == "" {
		m.Provider = ProviderOpenAI
	}
	switch m.Provider {
	case ProviderOpenAI:
		if m.BaseURL == "" {
			m.BaseURL = DashScopeBaseURL
		}
		if m.Model == "" {
			m.Model = remoteModel
		}
		if m.APIKeyEnv == "" {
			m.APIKeyEnv = "DASHSCOPE_API_KEY"
		}
	case ProviderOllama:
		if m.BaseURL == "" {
			m.BaseURL = "http://localhost:11434"
		}
		if m.Model == "" {
			m.Model = localModel
		}
	}
}

// Validate reports the first inconsistent setting.
func (c *AppConfig) Validate() error {
	switch {
	case c.Ingest.ChunkSize <= 0:
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	case c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize:
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap)
	case c.Ingest.MaxSplitCharNumber < 0:
		return fmt.Errorf("ingest.max_split_char_number must not be negative, got %d", c.Ingest.MaxSplitCharNumber)
	case c.Ingest.Concurrency < 1:
		return fmt.Errorf("ingest.concurrency must be at least 1, got %d", c.Ingest.Concurrency)
	case c.History.MaxHistory < 1:
		return fmt.Errorf("history.max_history must be at least 1, got %d", c.History.MaxHistory)
	case c.History.Window < 1:
		return fmt.Errorf("history.window must be at least 1, got %d", c.History.Window)
	case c.Retrieval.TopK < 1:
		return fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK)
	case c.Embedder.BatchSize < 1:
		return fmt.Errorf("embedder.batch_size must be at least 1, got %d", c.Embedder.BatchSize)
	case c.Embedder.TimeoutSecs < 0 || c.Chat.TimeoutSecs < 0:
		return fmt.Errorf("timeout_secs must not be negative")
	case c.Watch.DebounceMS < 0:
		return fmt.Errorf("watch.debounce_ms must not be negative, got %d", c.Watch.DebounceMS)
	}
	if err := validateProvider("embedder", c.Embedder.Provider); err != nil {
		return err
	}
	return validateProvider("chat", c.Chat.Provider)
}

func validateProvider(section, provider string) error {
	switch provider {
	case ProviderOllama, ProviderOpenAI:
		return nil
	default:
		return fmt.Errorf("%s.provider must be %q or %q, got %q", section, ProviderOllama, ProviderOpenAI, provider)
	}
}
