package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the typed application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	VectorStore  VectorStoreConfig  `mapstructure:"vector_store"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval"`
	SizeGuide    SizeGuideConfig    `mapstructure:"size_guide"`
	Ingest       IngestConfig       `mapstructure:"ingest"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Env             string        `mapstructure:"env"`
	PublicURL       string        `mapstructure:"public_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type OpenAIConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	ChatModel         string        `mapstructure:"chat_model" validate:"required"`
	EmbeddingModel    string        `mapstructure:"embedding_model" validate:"required"`
	Dimensions        int           `mapstructure:"dimensions" validate:"gt=0"`
	Temperature       float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int           `mapstructure:"max_tokens" validate:"gt=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=1"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" validate:"gte=0"`
	EmbedBatchSize    int           `mapstructure:"embed_batch_size" validate:"gt=0"`
	EmbedParallelism  int           `mapstructure:"embed_parallelism" validate:"gte=1"`
}

type VectorStoreConfig struct {
	Provider string       `mapstructure:"provider" validate:"oneof=chroma milvus memory"`
	Chroma   ChromaConfig `mapstructure:"chroma"`
	Milvus   MilvusConfig `mapstructure:"milvus"`
}

type ChromaConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Tenant     string        `mapstructure:"tenant"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type MilvusConfig struct {
	Address    string `mapstructure:"address"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	TLS        bool   `mapstructure:"tls"`
}

type ConversationConfig struct {
	Store       string        `mapstructure:"store" validate:"oneof=redis memory"`
	MaxMessages int           `mapstructure:"max_messages" validate:"gt=0"`
	TTL         time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type RetrievalConfig struct {
	TopK          int  `mapstructure:"top_k" validate:"gt=0"`
	RerankTopN    int  `mapstructure:"rerank_top_n" validate:"gt=0"`
	RerankEnabled bool `mapstructure:"rerank_enabled"`
}

type SizeGuideConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

type IngestConfig struct {
	Concurrency     int  `mapstructure:"concurrency" validate:"gte=1"`
	UseLLMProposals bool `mapstructure:"use_llm_propositions"`
}

// ErrMissingAPIKey is returned when a remote provider is configured without a key
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is required")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "production")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("log.level", "info")

	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.dimensions", 1536)
	v.SetDefault("openai.temperature", 0.3)
	v.SetDefault("openai.max_tokens", 800)
	v.SetDefault("openai.timeout", 20*time.Second)
	v.SetDefault("openai.max_retries", 3)
	v.SetDefault("openai.requests_per_minute", 60)
	v.SetDefault("openai.embed_batch_size", 100)
	v.SetDefault("openai.embed_parallelism", 1)

	v.SetDefault("vector_store.provider", "chroma")
	v.SetDefault("vector_store.chroma.host", "localhost")
	v.SetDefault("vector_store.chroma.port", 8000)
	v.SetDefault("vector_store.chroma.tenant", "default_tenant")
	v.SetDefault("vector_store.chroma.database", "default_database")
	v.SetDefault("vector_store.chroma.collection", "product_propositions")
	v.SetDefault("vector_store.chroma.timeout", 30*time.Second)
	v.SetDefault("vector_store.milvus.address", "localhost:19530")
	v.SetDefault("vector_store.milvus.database", "default")
	v.SetDefault("vector_store.milvus.collection", "product_propositions")

	v.SetDefault("conversation.store", "redis")
	v.SetDefault("conversation.max_messages", 50)
	v.SetDefault("conversation.ttl", 24*time.Hour)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("retrieval.top_k", 50)
	v.SetDefault("retrieval.rerank_top_n", 5)
	v.SetDefault("retrieval.rerank_enabled", true)

	v.SetDefault("size_guide.path", "")
	v.SetDefault("size_guide.watch", false)

	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.use_llm_propositions", true)
}

// envBindings maps the conventional deployment variables onto config keys
var envBindings = map[string]string{
	"server.port":                    "PORT",
	"server.env":                     "ENV",
	"log.level":                      "LOG_LEVEL",
	"openai.api_key":                 "OPENAI_API_KEY",
	"openai.base_url":                "OPENAI_BASE_URL",
	"openai.chat_model":              "OPENAI_CHAT_MODEL",
	"openai.embedding_model":         "OPENAI_EMBEDDING_MODEL",
	"vector_store.provider":          "VECTOR_STORE",
	"vector_store.chroma.host":       "CHROMA_HOST",
	"vector_store.chroma.port":       "CHROMA_PORT",
	"vector_store.chroma.tenant":     "CHROMA_TENANT",
	"vector_store.chroma.database":   "CHROMA_DATABASE",
	"vector_store.chroma.collection": "CHROMA_COLLECTION",
	"vector_store.milvus.address":    "MILVUS_ADDRESS",
	"vector_store.milvus.username":   "MILVUS_USERNAME",
	"vector_store.milvus.password":   "MILVUS_PASSWORD",
	"conversation.store":             "CONVERSATION_STORE",
	"redis.host":                     "REDIS_HOST",
	"redis.port":                     "REDIS_PORT",
	"redis.password":                 "REDIS_PASSWORD",
	"redis.db":                       "REDIS_DB",
	"size_guide.path":                "SIZE_GUIDE_PATH",
}

// Load reads configuration from defaults, an optional config file, .env and the
// environment, in increasing order of precedence.
func Load(configFile string) (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("ASSISTANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, "ASSISTANT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints and cross-field requirements
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.OpenAI.APIKey == "" && c.OpenAI.BaseURL == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Env, "development")
}
