package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, VectorStoreBadger, cfg.VectorStore.Type)
	assert.Equal(t, 500, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 450, cfg.Ingestion.ChunkStride)
	assert.Equal(t, 5, cfg.Retrieval.K)
	assert.Equal(t, 30*time.Second, cfg.SynthesisTimeout())
	assert.Equal(t, 200*time.Millisecond, cfg.RetryBaseDelay())
	assert.Equal(t, TransportStdio, cfg.Server.Transport)
	assert.NotEmpty(t, cfg.DataDir)
	require.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbase.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/kbase
ai:
  embedding_host: http://embed:11434
  synthesis_model: llama3.1:8b
vector_store:
  type: pgvector
  postgres:
    dsn: postgres://kbase@db/kbase?sslmode=disable
    dimension: 1024
retrieval:
  k: 8
  graph_context: true
server:
  transport: http
  addr: ":9000"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/kbase", cfg.DataDir)
	assert.Equal(t, "http://embed:11434", cfg.AI.EmbeddingHost)
	assert.Equal(t, "http://embed:11434", cfg.AI.SynthesisHost, "synthesis host follows embedding host")
	assert.Equal(t, "llama3.1:8b", cfg.AI.SynthesisModel)
	assert.Equal(t, VectorStorePgvector, cfg.VectorStore.Type)
	assert.Equal(t, 1024, cfg.VectorStore.Postgres.Dimension)
	assert.Equal(t, "kbase_vectors", cfg.VectorStore.Postgres.Table)
	assert.Equal(t, 8, cfg.Retrieval.K)
	assert.True(t, cfg.Retrieval.GraphContext)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	require.NoError(t, cfg.Validate())

	aiCfg := cfg.AIConfig()
	assert.Equal(t, "http://embed:11434/v1", aiCfg.EmbeddingHost)
	assert.True(t, aiCfg.SynthesisEnabled())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbase.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ai: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KBASE_DATA_DIR", "/tmp/kb")
	t.Setenv("KBASE_EMBEDDING_MODEL", "mxbai-embed-large")
	t.Setenv("KBASE_POOL_SIZE", "3")
	t.Setenv("KBASE_VECTOR_STORE", "pgvector")
	t.Setenv("KBASE_PG_DSN", "postgres://env")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/kb", cfg.DataDir)
	assert.Equal(t, "mxbai-embed-large", cfg.AI.EmbeddingModel)
	assert.Equal(t, 3, cfg.Ingestion.PoolSize)
	require.NotNil(t, cfg.VectorStore.Postgres)
	assert.Equal(t, "postgres://env", cfg.VectorStore.Postgres.DSN)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("KBASE_POOL_SIZE", "many")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("KBASE_TEST_ONLY_KEY=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("KBASE_TEST_ONLY_KEY") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-dotenv", os.Getenv("KBASE_TEST_ONLY_KEY"))

	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "absent.env")))
}

func TestAIConfig_APIKeyAndDisable(t *testing.T) {
	t.Setenv("KBASE_API_KEY", "sk-test")
	cfg := Default()
	cfg.AI.DisableSynthesis = true

	aiCfg := cfg.AIConfig()
	assert.Equal(t, "sk-test", aiCfg.APIKey)
	assert.False(t, aiCfg.SynthesisEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no data dir", func(c *Config) { c.DataDir = "" }},
		{"unknown store", func(c *Config) { c.VectorStore.Type = "qdrant" }},
		{"pgvector without dsn", func(c *Config) { c.VectorStore.Type = VectorStorePgvector }},
		{"unknown transport", func(c *Config) { c.Server.Transport = "grpc" }},
		{"stride over size", func(c *Config) { c.Ingestion.ChunkStride = 600 }},
		{"no embedding model", func(c *Config) { c.AI.EmbeddingModel = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("in memory needs no data dir", func(t *testing.T) {
		cfg := Default()
		cfg.DataDir = ""
		cfg.InMemory = true
		assert.NoError(t, cfg.Validate())
	})
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kbase.yaml")
	cfg := Default()
	cfg.Retrieval.K = 9

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Retrieval.K)
}
