package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"shop-assistant/internal/metrics"
	"shop-assistant/internal/repositories"
)

// Reranker reorders vector search candidates by relevance to the literal query
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []repositories.RetrievalResult, topN int) []repositories.RetrievalResult
}

type rerankScore struct {
	Index int     `json:"index" validate:"gte=0"`
	Score float64 `json:"score" validate:"gte=0,lte=1"`
}

type rerankResponse struct {
	Scores []rerankScore `json:"scores" validate:"required,dive"`
}

// RerankingService scores candidates with one LLM call. Failures fall back to
// vector order and are never surfaced to the caller.
type RerankingService struct {
	llm     LLMProvider
	enabled bool
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRerankingService(llm LLMProvider, enabled bool, logger *zap.Logger, m *metrics.Metrics) *RerankingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RerankingService{
		llm:     llm,
		enabled: enabled,
		logger:  logger.With(zap.String("component", "reranker")),
		metrics: m,
	}
}

// Rerank returns exactly min(topN, len(candidates)) items drawn from
// candidates, ordered by non-increasing Score. On success Score holds the
// model's relevance judgement; candidates the model skipped score 0.
func (s *RerankingService) Rerank(ctx context.Context, query string, candidates []repositories.RetrievalResult, topN int) []repositories.RetrievalResult {
	if topN > len(candidates) {
		topN = len(candidates)
	}
	if topN <= 0 {
		return []repositories.RetrievalResult{}
	}
	if len(candidates) == 1 || !s.enabled || s.llm == nil {
		return vectorOrder(candidates, topN)
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Document
	}

	var resp rerankResponse
	err := s.llm.JSONCompletion(ctx, RerankPrompt(query, texts), &resp, CompletionOptions{
		Temperature: Float32(0),
		Operation:   "rerank",
	})
	if err == nil {
		err = checkRerankIndexes(resp, len(candidates))
	}
	if err != nil {
		s.metrics.RerankFallback()
		s.logger.Warn("Rerank failed, using vector order",
			zap.Int("candidates", len(candidates)),
			zap.Error(err))
		return vectorOrder(candidates, topN)
	}

	relevance := make([]float64, len(candidates))
	scored := make([]bool, len(candidates))
	for _, sc := range resp.Scores {
		if scored[sc.Index] {
			continue
		}
		scored[sc.Index] = true
		relevance[sc.Index] = sc.Score
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return relevance[order[a]] > relevance[order[b]]
	})

	out := make([]repositories.RetrievalResult, topN)
	for i := 0; i < topN; i++ {
		out[i] = candidates[order[i]]
		out[i].Score = relevance[order[i]]
	}
	return out
}

func checkRerankIndexes(resp rerankResponse, n int) error {
	for _, sc := range resp.Scores {
		if sc.Index < 0 || sc.Index >= n {
			return fmt.Errorf("rerank index %d out of range for %d candidates", sc.Index, n)
		}
	}
	return nil
}

func vectorOrder(candidates []repositories.RetrievalResult, topN int) []repositories.RetrievalResult {
	out := make([]repositories.RetrievalResult, topN)
	copy(out, candidates[:topN])
	return out
}
