// Package config loads application configuration for the kbase binaries.
//
// Settings come from a YAML file, then a .env file, then KBASE_* environment
// variables, each layer overriding the one before. Missing files are not an
// error; defaults apply.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/kbase/ai"
	"gopkg.in/yaml.v3"
)

// Vector store backends.
const (
	VectorStoreBadger   = "badger"
	VectorStorePgvector = "pgvector"
)

// Server transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "kbase.yaml"

// AIConfig configures the embedding and synthesis endpoints.
type AIConfig struct {
	EmbeddingHost      string `yaml:"embedding_host"`
	SynthesisHost      string `yaml:"synthesis_host"`
	EmbeddingModel     string `yaml:"embedding_model"`
	SynthesisModel     string `yaml:"synthesis_model"`
	DisableSynthesis   bool   `yaml:"disable_synthesis"`
	APIKeyEnv          string `yaml:"api_key_env"`
	EmbeddingBatchSize int    `yaml:"embedding_batch_size"`
}

// PostgresConfig holds pgvector connection details.
type PostgresConfig struct {
	DSN       string `yaml:"dsn"`
	DSNEnv    string `yaml:"dsn_env"`
	Dimension int    `yaml:"dimension"`
	Table     string `yaml:"table"`
}

// VectorStoreConfig selects the vector index backend.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

// IngestionConfig tunes the ingestion coordinator.
type IngestionConfig struct {
	PoolSize         int `yaml:"pool_size"`
	BatchSize        int `yaml:"batch_size"`
	ChunkSize        int `yaml:"chunk_size"`
	ChunkStride      int `yaml:"chunk_stride"`
	MaxAttempts      int `yaml:"max_attempts"`
	RetryBaseDelayMS int `yaml:"retry_base_delay_ms"`
}

// RetrievalConfig tunes query answering.
type RetrievalConfig struct {
	K                    int  `yaml:"k"`
	SynthesisTimeoutSecs int  `yaml:"synthesis_timeout_secs"`
	GraphContext         bool `yaml:"graph_context"`
}

// ServerConfig configures the tool server.
type ServerConfig struct {
	Transport string `yaml:"transport"`
	Addr      string `yaml:"addr"`
}

// Config is the root application configuration.
type Config struct {
	DataDir     string            `yaml:"data_dir"`
	InMemory    bool              `yaml:"in_memory"`
	LogLevel    string            `yaml:"log_level"`
	AI          AIConfig          `yaml:"ai"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Server      ServerConfig      `yaml:"server"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a config from path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is ignored.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return errors.New("config: data_dir is required unless in_memory is set")
	}
	switch c.VectorStore.Type {
	case VectorStoreBadger:
	case VectorStorePgvector:
		pg := c.VectorStore.Postgres
		if pg == nil || pg.DSN == "" {
			return errors.New("config: vector_store.postgres.dsn is required for pgvector")
		}
		if pg.Dimension <= 0 {
			return errors.New("config: vector_store.postgres.dimension must be positive")
		}
	default:
		return fmt.Errorf("config: unknown vector_store.type %q", c.VectorStore.Type)
	}
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("config: unknown server.transport %q", c.Server.Transport)
	}
	if c.Ingestion.ChunkStride > c.Ingestion.ChunkSize {
		return errors.New("config: ingestion.chunk_stride must not exceed chunk_size")
	}
	return c.AIConfig().Validate()
}

// AIConfig converts the AI section into an ai.Config. The API key is read
// from the environment variable named by api_key_env.
func (c *Config) AIConfig() *ai.Config {
	synthesisModel := c.AI.SynthesisModel
	if c.AI.DisableSynthesis {
		synthesisModel = ""
	}
	opts := []ai.ConfigOption{
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithSynthesisHost(c.AI.SynthesisHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithSynthesisModel(synthesisModel),
		ai.WithEmbeddingBatchSize(c.AI.EmbeddingBatchSize),
	}
	if key := os.Getenv(c.AI.APIKeyEnv); key != "" {
		opts = append(opts, ai.WithAPIKey(key))
	}
	return ai.NewConfig(opts...)
}

// RetryBaseDelay returns the ingestion retry base delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Ingestion.RetryBaseDelayMS) * time.Millisecond
}

// SynthesisTimeout returns the synthesis deadline.
func (c *Config) SynthesisTimeout() time.Duration {
	return time.Duration(c.Retrieval.SynthesisTimeoutSecs) * time.Second
}

func applyDefaults(cfg *Config) {
	def := ai.DefaultConfig()
	if cfg.DataDir == "" && !cfg.InMemory {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AI.EmbeddingHost == "" {
		cfg.AI.EmbeddingHost = def.EmbeddingHost
	}
	if cfg.AI.SynthesisHost == "" {
		cfg.AI.SynthesisHost = cfg.AI.EmbeddingHost
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = def.EmbeddingModel
	}
	if cfg.AI.SynthesisModel == "" {
		cfg.AI.SynthesisModel = def.SynthesisModel
	}
	if cfg.AI.APIKeyEnv == "" {
		cfg.AI.APIKeyEnv = "KBASE_API_KEY"
	}
	if cfg.AI.EmbeddingBatchSize == 0 {
		cfg.AI.EmbeddingBatchSize = def.EmbeddingBatchSize
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = VectorStoreBadger
	}
	if pg := cfg.VectorStore.Postgres; pg != nil {
		if pg.DSNEnv == "" {
			pg.DSNEnv = "KBASE_PG_DSN"
		}
		if pg.Table == "" {
			pg.Table = "kbase_vectors"
		}
		if pg.Dimension == 0 {
			pg.Dimension = 768
		}
	}
	if cfg.Ingestion.BatchSize == 0 {
		cfg.Ingestion.BatchSize = 32
	}
	if cfg.Ingestion.ChunkSize == 0 {
		cfg.Ingestion.ChunkSize = 500
	}
	if cfg.Ingestion.ChunkStride == 0 {
		cfg.Ingestion.ChunkStride = 450
	}
	if cfg.Ingestion.MaxAttempts == 0 {
		cfg.Ingestion.MaxAttempts = 3
	}
	if cfg.Ingestion.RetryBaseDelayMS == 0 {
		cfg.Ingestion.RetryBaseDelayMS = 200
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 5
	}
	if cfg.Retrieval.SynthesisTimeoutSecs == 0 {
		cfg.Retrieval.SynthesisTimeoutSecs = 30
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportStdio
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "localhost:8080"
	}
}

// applyEnv overrides settings from KBASE_* variables.
func applyEnv(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	setString("KBASE_DATA_DIR", &cfg.DataDir)
	setString("KBASE_LOG_LEVEL", &cfg.LogLevel)
	setString("KBASE_EMBEDDING_HOST", &cfg.AI.EmbeddingHost)
	setString("KBASE_SYNTHESIS_HOST", &cfg.AI.SynthesisHost)
	setString("KBASE_EMBEDDING_MODEL", &cfg.AI.EmbeddingModel)
	setString("KBASE_SYNTHESIS_MODEL", &cfg.AI.SynthesisModel)
	setString("KBASE_VECTOR_STORE", &cfg.VectorStore.Type)
	setString("KBASE_TRANSPORT", &cfg.Server.Transport)
	setString("KBASE_HTTP_ADDR", &cfg.Server.Addr)

	if v, ok := os.LookupEnv("KBASE_POOL_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KBASE_POOL_SIZE: %w", err)
		}
		cfg.Ingestion.PoolSize = n
	}
	if v, ok := os.LookupEnv("KBASE_IN_MEMORY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KBASE_IN_MEMORY: %w", err)
		}
		cfg.InMemory = b
	}

	if cfg.VectorStore.Type == VectorStorePgvector {
		if cfg.VectorStore.Postgres == nil {
			cfg.VectorStore.Postgres = &PostgresConfig{}
			applyDefaults(cfg)
		}
		pg := cfg.VectorStore.Postgres
		if v := os.Getenv(pg.DSNEnv); v != "" {
			pg.DSN = v
		}
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "kbase-data"
	}
	return filepath.Join(home, ".local", "share", "kbase")
}
