package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"shop-assistant/internal/metrics"
	"shop-assistant/internal/models"
	"shop-assistant/internal/repositories"
)

// items pulled per category before merging
const stylePerCategoryTopK = 10

// complementaryCategories lists what pairs well with each category
var complementaryCategories = map[string][]string{
	"ao-polo":    {"quan", "quan-short", "phu-kien"},
	"ao-thun":    {"quan", "quan-short", "ao-khoac"},
	"ao-so-mi":   {"quan", "ao-khoac", "phu-kien"},
	"ao-khoac":   {"ao-thun", "quan", "phu-kien"},
	"quan":       {"ao-polo", "ao-so-mi", "ao-thun"},
	"quan-short": {"ao-polo", "ao-thun", "phu-kien"},
	"phu-kien":   {"ao-polo", "ao-so-mi", "quan"},
}

var occasionStyleTags = map[string][]string{
	"work":    {"công sở", "lịch sự", "thanh lịch"},
	"party":   {"sang trọng", "nổi bật"},
	"date":    {"lịch lãm", "trẻ trung"},
	"wedding": {"trang trọng", "lịch sự"},
	"casual":  {"năng động", "thoải mái"},
	"sport":   {"thể thao", "năng động"},
	"travel":  {"thoải mái", "du lịch"},
}

// StyleAdvisor composes outfits from the shopper's category and the
// categories that complement it
type StyleAdvisor struct {
	embedder Embedder
	store    repositories.VectorStore
	reranker Reranker
	llm      LLMProvider
	topN     int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewStyleAdvisor(embedder Embedder, store repositories.VectorStore, reranker Reranker, llm LLMProvider, topN int, logger *zap.Logger, m *metrics.Metrics) *StyleAdvisor {
	if topN <= 0 {
		topN = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StyleAdvisor{
		embedder: embedder,
		store:    store,
		reranker: reranker,
		llm:      llm,
		topN:     topN,
		logger:   logger.With(zap.String("component", "style_advisor")),
		metrics:  m,
	}
}

func (a *StyleAdvisor) Advise(ctx context.Context, req AdviceRequest) (*AdviceResult, error) {
	query := styleQuery(req.Query, req.Entities.Occasion)

	vector, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var merged []repositories.RetrievalResult
	seen := make(map[string]bool)
	for _, category := range styleCategories(req.Entities.Category) {
		filter := map[string]interface{}{"type": models.PropositionProductInfo}
		if category != "" {
			filter["category"] = category
		}

		results, err := a.store.Query(ctx, vector, stylePerCategoryTopK, filter)
		a.metrics.VectorQuery(a.store.Backend(), err)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if !seen[r.ID] {
				seen[r.ID] = true
				merged = append(merged, r)
			}
		}
	}

	if len(merged) == 0 {
		return staticAnswer(req, StyleClarifyMessage), nil
	}

	ranked := a.reranker.Rerank(ctx, query, merged, a.topN)

	answer, err := generate(ctx, a.llm, req,
		StylePrompt(req.Query, productContext(ranked), ConversationExcerpt(req.History)),
		"style_matching")
	if err != nil {
		return nil, err
	}

	return &AdviceResult{
		Answer:            answer,
		SuggestedProducts: suggestedProducts(ranked, maxSuggestedProducts),
	}, nil
}

// styleCategories is the shopper's category followed by its complements, or a
// single unfiltered pass when no category is known
func styleCategories(category string) []string {
	complements, ok := complementaryCategories[category]
	if !ok {
		return []string{""}
	}
	return append([]string{category}, complements...)
}

func styleQuery(query, occasion string) string {
	tags := occasionStyleTags[occasion]
	if len(tags) == 0 {
		return query
	}
	return query + " " + strings.Join(tags, " ")
}
