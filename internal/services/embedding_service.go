package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shop-assistant/internal/metrics"
	"shop-assistant/internal/ragerr"
)

const (
	DefaultEmbeddingModel      = "text-embedding-3-small"
	DefaultEmbeddingDimensions = 1536

	// embeddingChunkSize is the maximum number of inputs per provider request
	embeddingChunkSize = 100
)

type EmbeddingConfig struct {
	Model       string
	Dimensions  int
	MaxParallel int
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
}

// EmbeddingService turns text into fixed-dimension vectors through the OpenAI
// embeddings API
type EmbeddingService struct {
	client *openai.Client
	config EmbeddingConfig
	retry  *retryPolicy
	logger *zap.Logger
}

func NewEmbeddingService(client *openai.Client, config EmbeddingConfig, logger *zap.Logger, m *metrics.Metrics) *EmbeddingService {
	if config.Model == "" {
		config.Model = DefaultEmbeddingModel
	}
	if config.Dimensions == 0 {
		config.Dimensions = DefaultEmbeddingDimensions
	}
	if config.MaxParallel < 1 {
		config.MaxParallel = 1
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "embedding_service"))

	return &EmbeddingService{
		client: client,
		config: config,
		retry:  newRetryPolicy(config.MaxAttempts, config.BaseBackoff, config.Timeout, 0, logger, m),
		logger: logger,
	}
}

func (s *EmbeddingService) Dimensions() int {
	return s.config.Dimensions
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in chunks of 100. Chunks run with at most
// MaxParallel requests in flight; the result keeps input order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ragerr.Validation("texts", "at least one input is required")
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ragerr.Validation(fmt.Sprintf("texts[%d]", i), "input must not be empty")
		}
	}

	results := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxParallel)

	for start := 0; start < len(texts); start += embeddingChunkSize {
		start := start
		end := start + embeddingChunkSize
		if end > len(texts) {
			end = len(texts)
		}

		g.Go(func() error {
			vectors, err := s.embedChunk(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(results[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("Embedded batch",
		zap.Int("inputs", len(texts)),
		zap.Int("dimensions", s.config.Dimensions))
	return results, nil
}

func (s *EmbeddingService) embedChunk(ctx context.Context, chunk []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      chunk,
		Model:      openai.EmbeddingModel(s.config.Model),
		Dimensions: s.config.Dimensions,
	}

	var resp openai.EmbeddingResponse
	err := s.retry.do(ctx, "embed", func(callCtx context.Context) error {
		var err error
		resp, err = s.client.CreateEmbeddings(callCtx, req)
		return err
	})
	if err != nil {
		if ragerr.Is(err, ragerr.KindTimeout) {
			return nil, err
		}
		return nil, ragerr.Embedding("embed", err)
	}

	if len(resp.Data) != len(chunk) {
		return nil, ragerr.Embedding("embed", fmt.Errorf("provider returned %d vectors for %d inputs", len(resp.Data), len(chunk)))
	}

	vectors := make([][]float32, len(chunk))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(chunk) {
			return nil, ragerr.Embedding("embed", fmt.Errorf("provider returned out of range index %d", item.Index))
		}
		if len(item.Embedding) != s.config.Dimensions {
			return nil, ragerr.Configuration("embed",
				fmt.Sprintf("embedding dimension mismatch: got %d, configured %d", len(item.Embedding), s.config.Dimensions))
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
