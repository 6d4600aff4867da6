package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.ChatModel)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, 1536, cfg.OpenAI.Dimensions)
	assert.InDelta(t, 0.3, cfg.OpenAI.Temperature, 0.0001)
	assert.Equal(t, 800, cfg.OpenAI.MaxTokens)
	assert.Equal(t, 20*time.Second, cfg.OpenAI.Timeout)
	assert.Equal(t, 3, cfg.OpenAI.MaxRetries)
	assert.Equal(t, 100, cfg.OpenAI.EmbedBatchSize)
	assert.Equal(t, 50, cfg.Conversation.MaxMessages)
	assert.Equal(t, 24*time.Hour, cfg.Conversation.TTL)
	assert.Equal(t, 50, cfg.Retrieval.TopK)
	assert.Equal(t, 5, cfg.Retrieval.RerankTopN)
	assert.Equal(t, "chroma", cfg.VectorStore.Provider)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "9090")
	t.Setenv("VECTOR_STORE", "memory")
	t.Setenv("CONVERSATION_STORE", "memory")
	t.Setenv("CHROMA_COLLECTION", "catalog")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.VectorStore.Provider)
	assert.Equal(t, "memory", cfg.Conversation.Store)
	assert.Equal(t, "catalog", cfg.VectorStore.Chroma.Collection)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "assistant.yaml")
	content := []byte(`
retrieval:
  top_k: 20
  rerank_top_n: 3
vector_store:
  provider: milvus
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.Retrieval.RerankTopN)
	assert.Equal(t, "milvus", cfg.VectorStore.Provider)
	assert.Equal(t, "localhost:19530", cfg.VectorStore.Milvus.Address)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		errText string
	}{
		{
			name:    "missing api key and base url",
			mutate:  func(c *Config) { c.OpenAI.APIKey = ""; c.OpenAI.BaseURL = "" },
			wantErr: ErrMissingAPIKey,
		},
		{
			name:   "base url without key is allowed",
			mutate: func(c *Config) { c.OpenAI.APIKey = ""; c.OpenAI.BaseURL = "http://localhost:11434/v1" },
		},
		{
			name:    "unknown vector store",
			mutate:  func(c *Config) { c.VectorStore.Provider = "pinecone" },
			errText: "invalid configuration",
		},
		{
			name:    "zero retries",
			mutate:  func(c *Config) { c.OpenAI.MaxRetries = 0 },
			errText: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Env: "Development"}}
	assert.True(t, cfg.IsDevelopment())

	cfg.Server.Env = "production"
	assert.False(t, cfg.IsDevelopment())
}
