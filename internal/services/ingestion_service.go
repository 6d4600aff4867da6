package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"shop-assistant/internal/metrics"
	"shop-assistant/internal/models"
	"shop-assistant/internal/ragerr"
	"shop-assistant/internal/repositories"
	"shop-assistant/internal/workers"
)

// propositionNamespace seeds the name-based uuids so re-ingestion overwrites
var propositionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("devenir/propositions"))

const maxDescriptionSentences = 5

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

type propositionResponse struct {
	Propositions []string `json:"propositions" validate:"min=1,dive,required"`
}

// IngestReport summarizes one catalog run
type IngestReport struct {
	Products     int      `json:"products"`
	Propositions int      `json:"propositions"`
	Failed       int      `json:"failed"`
	FailedIDs    []string `json:"failed_ids,omitempty"`
}

type IngestionConfig struct {
	Concurrency int
	// UseLLM asks the model for propositions; otherwise only the
	// deterministic set is built
	UseLLM bool
}

// IngestionService indexes catalog products as propositions in the vector store
type IngestionService struct {
	llm      LLMProvider
	embedder Embedder
	store    repositories.VectorStore
	config   IngestionConfig
	validate *validator.Validate
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewIngestionService(llm LLMProvider, embedder Embedder, store repositories.VectorStore, config IngestionConfig, logger *zap.Logger, m *metrics.Metrics) *IngestionService {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		llm:      llm,
		embedder: embedder,
		store:    store,
		config:   config,
		validate: validator.New(),
		logger:   logger.With(zap.String("component", "ingestion")),
		metrics:  m,
	}
}

// IngestProducts indexes every product on a bounded worker pool. A failing
// product is counted and skipped.
func (s *IngestionService) IngestProducts(ctx context.Context, products []models.Product) (*IngestReport, error) {
	config := workers.DefaultWorkerConfig("ingest")
	config.Concurrency = s.config.Concurrency
	worker := workers.NewIngestWorker(config, s.IngestProduct, s.logger)

	results, err := worker.Run(ctx, products)

	report := &IngestReport{Products: len(products)}
	for _, r := range results {
		s.metrics.Ingested(r.Err == nil)
		if r.Err != nil {
			report.Failed++
			report.FailedIDs = append(report.FailedIDs, r.ProductID)
			continue
		}
		report.Propositions += r.Propositions
	}
	// products never submitted because ctx ended
	if missing := len(products) - len(results); missing > 0 {
		report.Failed += missing
	}

	s.logger.Info("Catalog ingestion finished",
		zap.Int("products", report.Products),
		zap.Int("propositions", report.Propositions),
		zap.Int("failed", report.Failed))
	return report, err
}

// IngestProduct builds, embeds and stores the propositions of one product
func (s *IngestionService) IngestProduct(ctx context.Context, product models.Product) (int, error) {
	if err := s.validate.Struct(product); err != nil {
		return 0, ragerr.Validation("product", err.Error()).WithDetail("product_id", product.ID)
	}

	props := s.BuildPropositions(ctx, product)
	if len(props) == 0 {
		return 0, nil
	}

	texts := make([]string, len(props))
	for i, p := range props {
		texts[i] = p.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed propositions for %s: %w", product.ID, err)
	}

	// facts that no longer exist must not outlive a re-ingest
	if err := s.store.DeleteWhere(ctx, map[string]interface{}{"product_id": product.ID}); err != nil {
		return 0, fmt.Errorf("clear propositions for %s: %w", product.ID, err)
	}

	records := make([]repositories.VectorRecord, len(props))
	for i, p := range props {
		records[i] = repositories.VectorRecord{
			ID:        p.ID,
			Document:  p.Text,
			Embedding: vectors[i],
			Metadata:  p.Metadata,
		}
	}
	if err := s.store.UpsertBatch(ctx, records); err != nil {
		return 0, fmt.Errorf("store propositions for %s: %w", product.ID, err)
	}
	return len(records), nil
}

// BuildPropositions returns the product-level facts followed by one fact per
// variant. The LLM path falls back to the deterministic facts on any failure.
func (s *IngestionService) BuildPropositions(ctx context.Context, product models.Product) []models.Proposition {
	var facts []string
	if s.config.UseLLM && s.llm != nil {
		var resp propositionResponse
		err := s.llm.JSONCompletion(ctx, PropositionPrompt(product), &resp, CompletionOptions{
			Temperature: Float32(DefaultTemperature),
			Operation:   "propositions",
		})
		if err == nil {
			facts = resp.Propositions
		} else {
			s.logger.Warn("LLM propositions failed, using deterministic facts",
				zap.String("product_id", product.ID),
				zap.Error(err))
		}
	}
	if len(facts) == 0 {
		facts = DeterministicFacts(product)
	}

	props := make([]models.Proposition, 0, len(facts)+len(product.Variants))
	for i, fact := range facts {
		props = append(props, models.Proposition{
			ID:       PropositionID(product.ID, models.PropositionProductInfo, strconv.Itoa(i)),
			Text:     fact,
			Metadata: models.ProductMetadata(product, models.PropositionProductInfo),
		})
	}
	for i, v := range product.Variants {
		key := v.ID
		if key == "" {
			key = "#" + strconv.Itoa(i)
		}
		meta := models.ProductMetadata(product, models.PropositionVariantInfo)
		meta["variant_id"] = v.ID
		meta["size"] = v.Size
		meta["color"] = v.Color
		meta["price"] = v.Price
		meta["in_stock"] = v.Quantity > 0
		props = append(props, models.Proposition{
			ID:       PropositionID(product.ID, models.PropositionVariantInfo, key),
			Text:     variantFact(product.Name, v),
			Metadata: meta,
		})
	}
	return props
}

// PropositionID is stable for a product, kind and key. Product facts are keyed
// by position, variant facts by variant id.
func PropositionID(productID, kind, key string) string {
	return uuid.NewSHA1(propositionNamespace, []byte(productID+":"+kind+":"+key)).String()
}

// DeterministicFacts describes a product without the LLM
func DeterministicFacts(p models.Product) []string {
	category := p.Category
	if category == "" {
		category = "Sản phẩm"
	}
	brand := p.Brand
	if brand == "" {
		brand = storeName
	}
	facts := []string{fmt.Sprintf("%s - %s của %s", p.Name, category, brand)}

	if p.Description != "" {
		count := 0
		for _, sentence := range sentenceSplit.Split(p.Description, -1) {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			facts = append(facts, fmt.Sprintf("%s: %s", p.Name, sentence))
			count++
			if count == maxDescriptionSentences {
				break
			}
		}
	}
	if sizes := p.Sizes(); len(sizes) > 0 {
		facts = append(facts, fmt.Sprintf("%s có các size: %s", p.Name, strings.Join(sizes, ", ")))
	}
	if colors := p.Colors(); len(colors) > 0 {
		facts = append(facts, fmt.Sprintf("%s có các màu: %s", p.Name, strings.Join(colors, ", ")))
	}
	if min, max, ok := p.PriceRange(); ok {
		if min == max {
			facts = append(facts, fmt.Sprintf("%s có giá %s", p.Name, models.FormatPrice(min)))
		} else {
			facts = append(facts, fmt.Sprintf("%s có giá từ %s đến %s", p.Name, models.FormatPrice(min), models.FormatPrice(max)))
		}
	}
	if len(p.Tags) > 0 {
		facts = append(facts, fmt.Sprintf("%s - %s", p.Name, strings.Join(p.Tags, ", ")))
	}
	return facts
}

func variantFact(name string, v models.Variant) string {
	var parts []string
	if v.Color != "" {
		parts = append(parts, "màu "+v.Color)
	}
	if v.Size != "" {
		parts = append(parts, "size "+v.Size)
	}
	stock := "hết hàng"
	if v.Quantity > 0 {
		stock = fmt.Sprintf("còn %d sản phẩm", v.Quantity)
	}
	return fmt.Sprintf("%s %s giá %s, %s", name, strings.Join(parts, " "), models.FormatPrice(v.Price), stock)
}

type catalogFile struct {
	Products []models.Product `json:"products" yaml:"products"`
}

// LoadCatalog reads products from a JSON or YAML file with a top-level
// "products" list
func LoadCatalog(path string) ([]models.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var catalog catalogFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &catalog)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &catalog)
	default:
		return nil, ragerr.Configuration("load_catalog", "unsupported catalog format: "+filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return catalog.Products, nil
}
