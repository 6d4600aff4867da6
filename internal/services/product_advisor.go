package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"shop-assistant/internal/metrics"
	"shop-assistant/internal/models"
	"shop-assistant/internal/repositories"
)

const (
	DefaultRetrievalTopK = 50
	DefaultRerankTopN    = 5

	// queries this short are treated as follow-ups about the last product
	followUpMaxWords = 4
)

type ProductAdvisor struct {
	embedder Embedder
	store    repositories.VectorStore
	reranker Reranker
	llm      LLMProvider
	topK     int
	topN     int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewProductAdvisor(embedder Embedder, store repositories.VectorStore, reranker Reranker, llm LLMProvider, topK, topN int, logger *zap.Logger, m *metrics.Metrics) *ProductAdvisor {
	if topK <= 0 {
		topK = DefaultRetrievalTopK
	}
	if topN <= 0 {
		topN = DefaultRerankTopN
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductAdvisor{
		embedder: embedder,
		store:    store,
		reranker: reranker,
		llm:      llm,
		topK:     topK,
		topN:     topN,
		logger:   logger.With(zap.String("component", "product_advisor")),
		metrics:  m,
	}
}

func (a *ProductAdvisor) Advise(ctx context.Context, req AdviceRequest) (*AdviceResult, error) {
	query := enrichFollowUp(req.Query, req.History)

	vector, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var filter map[string]interface{}
	if req.Entities.Category != "" {
		filter = map[string]interface{}{"category": req.Entities.Category}
	}

	results, err := a.store.Query(ctx, vector, a.topK, filter)
	a.metrics.VectorQuery(a.store.Backend(), err)
	if err != nil {
		return nil, err
	}
	results = withinBudget(results, req.Entities.MaxPrice)

	if len(results) == 0 {
		a.logger.Info("No products matched",
			zap.String("category", req.Entities.Category),
			zap.Float64("max_price", req.Entities.MaxPrice))
		return staticAnswer(req, ProductNotFoundMessage), nil
	}

	ranked := a.reranker.Rerank(ctx, query, results, a.topN)

	answer, err := generate(ctx, a.llm, req,
		ProductAdvicePrompt(req.Query, productContext(ranked), ConversationExcerpt(req.History)),
		"product_advice")
	if err != nil {
		return nil, err
	}

	result := &AdviceResult{
		Answer:            answer,
		SuggestedProducts: suggestedProducts(ranked, maxSuggestedProducts),
	}
	if len(result.SuggestedProducts) == 1 {
		product := result.SuggestedProducts[0]
		result.SuggestedAction = &models.ActionSpec{
			Type:      ActionAddToCart,
			Prompt:    fmt.Sprintf("Bạn muốn thêm **%s** vào giỏ hàng?", product.Name),
			VariantID: product.VariantID,
			Product:   &product,
		}
	}
	return result, nil
}

// enrichFollowUp appends the last suggested product name to short follow-ups
// such as "còn hàng không" so retrieval has something to match
func enrichFollowUp(query string, history []models.ChatMessage) string {
	if len(strings.Fields(query)) > followUpMaxWords {
		return query
	}
	name := lastProductName(history)
	if name == "" || strings.Contains(strings.ToLower(query), strings.ToLower(name)) {
		return query
	}
	return query + " " + name
}

// withinBudget drops hits whose cheapest variant exceeds the ceiling
func withinBudget(results []repositories.RetrievalResult, maxPrice float64) []repositories.RetrievalResult {
	if maxPrice <= 0 {
		return results
	}
	kept := make([]repositories.RetrievalResult, 0, len(results))
	for _, r := range results {
		if models.MetaFloat(r.Metadata, "min_price") <= maxPrice {
			kept = append(kept, r)
		}
	}
	return kept
}
