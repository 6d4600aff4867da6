package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"shop-assistant/config"
	"shop-assistant/internal/db"
	"shop-assistant/internal/metrics"
	"shop-assistant/internal/repositories"
	"shop-assistant/internal/services"
	"shop-assistant/internal/workers"
)

const connectTimeout = 5 * time.Second

// App is the wired dependency graph shared by the server and the CLI commands
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	LLM        *services.OpenAIProvider
	Embedder   *services.EmbeddingService
	Store      repositories.VectorStore
	Classifier *services.IntentClassifier
	SizeGuide  *services.SizeGuide
	Chat       *services.RAGService
	Ingestion  *services.IngestionService
	Workers    *workers.WorkerPool

	closers []func() error
}

// NewApp connects the backends named in cfg and builds the services on top.
// An unreachable Chroma or Redis degrades the app instead of failing it.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{Config: cfg, Logger: logger}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = metrics.New(app.Registry)

	store, err := app.initializeVectorStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	conversations, orders := app.initializeRedisStores(ctx)

	client := services.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	app.LLM = services.NewOpenAIProvider(client, services.OpenAIConfig{
		APIKey:            cfg.OpenAI.APIKey,
		BaseURL:           cfg.OpenAI.BaseURL,
		Model:             cfg.OpenAI.ChatModel,
		Temperature:       cfg.OpenAI.Temperature,
		MaxTokens:         cfg.OpenAI.MaxTokens,
		Timeout:           cfg.OpenAI.Timeout,
		MaxAttempts:       cfg.OpenAI.MaxRetries,
		RequestsPerMinute: cfg.OpenAI.RequestsPerMinute,
	}, logger, app.Metrics)
	app.Embedder = services.NewEmbeddingService(client, services.EmbeddingConfig{
		Model:       cfg.OpenAI.EmbeddingModel,
		Dimensions:  cfg.OpenAI.Dimensions,
		MaxParallel: cfg.OpenAI.EmbedParallelism,
		Timeout:     cfg.OpenAI.Timeout,
		MaxAttempts: cfg.OpenAI.MaxRetries,
	}, logger, app.Metrics)

	guide, err := services.NewSizeGuide(cfg.SizeGuide.Path, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to load size guide: %w", err)
	}
	app.SizeGuide = guide

	app.Classifier = services.NewIntentClassifier(app.LLM, services.NewEntityExtractor(), logger)
	reranker := services.NewRerankingService(app.LLM, cfg.Retrieval.RerankEnabled, logger, app.Metrics)

	advisors := services.Advisors{
		Product: services.NewProductAdvisor(app.Embedder, store, reranker, app.LLM,
			cfg.Retrieval.TopK, cfg.Retrieval.RerankTopN, logger, app.Metrics),
		Size:  services.NewSizeAdvisor(guide, app.LLM, logger),
		Style: services.NewStyleAdvisor(app.Embedder, store, reranker, app.LLM, cfg.Retrieval.RerankTopN, logger, app.Metrics),
		Order: services.NewOrderLookupAdvisor(orders, logger),
	}
	app.Chat = services.NewRAGService(app.Classifier, advisors,
		services.NewConversationManager(conversations, logger).WithMaxMessages(cfg.Conversation.MaxMessages),
		store, logger, app.Metrics)

	app.Ingestion = services.NewIngestionService(app.LLM, app.Embedder, store, services.IngestionConfig{
		Concurrency: cfg.Ingest.Concurrency,
		UseLLM:      cfg.Ingest.UseLLMProposals,
	}, logger, app.Metrics)

	app.Workers = workers.NewWorkerPool()
	if cfg.SizeGuide.Watch && cfg.SizeGuide.Path != "" {
		app.Workers.AddWorker(workers.NewLoopWorker(workers.DefaultWorkerConfig("size-guide-watcher"),
			func(ctx context.Context) error {
				if err := services.WatchSizeGuide(ctx, guide); err != nil {
					return err
				}
				<-ctx.Done()
				return ctx.Err()
			}, logger))
	}

	return app, nil
}

// initializeVectorStore creates the configured index client. Milvus dials
// eagerly, so an unreachable Milvus is a startup error; Chroma is connected
// lazily and reported through the health endpoint.
func (a *App) initializeVectorStore(ctx context.Context) (repositories.VectorStore, error) {
	cfg := a.Config
	dims := cfg.OpenAI.Dimensions

	var store repositories.VectorStore
	switch cfg.VectorStore.Provider {
	case "milvus":
		mc := cfg.VectorStore.Milvus
		a.Logger.Info("Connecting to Milvus", zap.String("address", mc.Address), zap.String("database", mc.Database))
		client, err := db.NewMilvusClient(ctx, db.MilvusConfig{
			Address:  mc.Address,
			Username: mc.Username,
			Password: mc.Password,
			Database: mc.Database,
			UseTLS:   mc.TLS,
		})
		if err != nil {
			return nil, err
		}
		store = repositories.NewMilvusVectorStore(client, mc.Collection, dims, a.Logger)
	case "memory":
		store = repositories.NewMemoryVectorStore(dims)
	default:
		cc := cfg.VectorStore.Chroma
		a.Logger.Info("Connecting to ChromaDB", zap.String("host", cc.Host), zap.Int("port", cc.Port))
		client := db.NewChromaDBClient(db.ChromaDBConfig{
			Host:     cc.Host,
			Port:     cc.Port,
			Tenant:   cc.Tenant,
			Database: cc.Database,
			Timeout:  cc.Timeout,
		})
		store = repositories.NewChromaVectorStore(client, cc.Collection, dims, a.Logger)
	}
	a.closers = append(a.closers, store.Close)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := store.Connect(connectCtx); err != nil {
		a.Logger.Error("Vector store connection failed, retrieval will be unavailable",
			zap.String("backend", store.Backend()),
			zap.Error(err))
		return store, nil
	}
	a.Logger.Info("Vector store connected", zap.String("backend", store.Backend()))
	return store, nil
}

// initializeRedisStores returns the conversation and order stores. Without a
// reachable Redis both fall back to process memory.
func (a *App) initializeRedisStores(ctx context.Context) (repositories.ConversationStore, repositories.OrderRepository) {
	cfg := a.Config
	memory := func() (repositories.ConversationStore, repositories.OrderRepository) {
		return repositories.NewMemoryConversationStore(cfg.Conversation.TTL), repositories.NewMemoryOrderRepository()
	}
	if cfg.Conversation.Store == "memory" {
		return memory()
	}

	redisConfig := db.DefaultRedisConfig()
	redisConfig.Host = cfg.Redis.Host
	redisConfig.Port = cfg.Redis.Port
	redisConfig.Password = cfg.Redis.Password
	redisConfig.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize > 0 {
		redisConfig.PoolSize = cfg.Redis.PoolSize
	}
	a.Logger.Info("Connecting to Redis",
		zap.String("host", redisConfig.Host),
		zap.Int("port", redisConfig.Port),
		zap.Int("db", redisConfig.DB))

	client := db.NewRedisClient(redisConfig)
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		a.Logger.Warn("Redis connection failed, keeping conversations in memory", zap.Error(err))
		_ = client.Close()
		return memory()
	}
	a.closers = append(a.closers, client.Close)
	a.Logger.Info("Redis connected successfully")

	return repositories.NewRedisConversationStore(client, cfg.Conversation.TTL), repositories.NewRedisOrderRepository(client)
}

// Close releases backend connections in reverse order of creation
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
