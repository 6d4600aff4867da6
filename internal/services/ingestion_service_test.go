package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shop-assistant/internal/models"
	"shop-assistant/internal/ragerr"
	"shop-assistant/internal/repositories"
)

func samplePolo() models.Product {
	return models.Product{
		ID:          "p-polo",
		Name:        "Polo Classic",
		Slug:        "polo-classic",
		Description: "Áo polo cotton thoáng mát. Phù hợp đi làm! Dễ phối với quần chinos",
		Category:    "ao-polo",
		Brand:       "DEVENIR",
		Tags:        []string{"basic", "cotton"},
		Variants: []models.Variant{
			{ID: "v1", Size: "M", Color: "Navy", Price: 45, Quantity: 3},
			{ID: "v2", Size: "L", Color: "Navy", Price: 45, Quantity: 0},
			{ID: "v3", Size: "L", Color: "White", Price: 50, Quantity: 2},
		},
	}
}

func TestDeterministicFacts(t *testing.T) {
	facts := DeterministicFacts(samplePolo())

	assert.Equal(t, []string{
		"Polo Classic - ao-polo của DEVENIR",
		"Polo Classic: Áo polo cotton thoáng mát",
		"Polo Classic: Phù hợp đi làm",
		"Polo Classic: Dễ phối với quần chinos",
		"Polo Classic có các size: M, L",
		"Polo Classic có các màu: Navy, White",
		"Polo Classic có giá từ $45 đến $50",
		"Polo Classic - basic, cotton",
	}, facts)
}

func TestDeterministicFacts_LimitsDescription(t *testing.T) {
	p := models.Product{ID: "p", Name: "Tee", Description: "A. B. C. D. E. F. G."}
	facts := DeterministicFacts(p)

	assert.Len(t, facts, 1+maxDescriptionSentences)
	assert.Equal(t, "Tee - Sản phẩm của DEVENIR", facts[0])
}

func TestPropositionID_Stable(t *testing.T) {
	a := PropositionID("p1", models.PropositionProductInfo, "0")

	assert.Equal(t, a, PropositionID("p1", models.PropositionProductInfo, "0"))
	assert.NotEqual(t, a, PropositionID("p1", models.PropositionProductInfo, "1"))
	assert.NotEqual(t, a, PropositionID("p1", models.PropositionVariantInfo, "0"))
	assert.NotEqual(t, a, PropositionID("p2", models.PropositionProductInfo, "0"))
}

func TestBuildPropositions(t *testing.T) {
	t.Run("llm facts plus variants", func(t *testing.T) {
		llm := new(MockLLM)
		llm.On("JSONCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(`{"propositions":["Polo Classic làm từ cotton","Polo Classic hợp đi làm"]}`, nil)
		svc := NewIngestionService(llm, nil, nil, IngestionConfig{UseLLM: true}, nil, nil)

		props := svc.BuildPropositions(context.Background(), samplePolo())

		require.Len(t, props, 5)
		assert.Equal(t, "Polo Classic làm từ cotton", props[0].Text)
		assert.Equal(t, models.PropositionProductInfo, props[0].Metadata["type"])
		assert.Equal(t, "p-polo", props[0].Metadata["product_id"])

		variant := props[3]
		assert.Equal(t, models.PropositionVariantInfo, variant.Metadata["type"])
		assert.Equal(t, "v2", variant.Metadata["variant_id"])
		assert.Equal(t, false, variant.Metadata["in_stock"])
		assert.Equal(t, "Polo Classic màu Navy size L giá $45, hết hàng", variant.Text)
	})

	t.Run("llm failure falls back", func(t *testing.T) {
		llm := new(MockLLM)
		llm.On("JSONCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", ragerr.LLMProvider("propositions", "model returned invalid JSON twice", nil))
		svc := NewIngestionService(llm, nil, nil, IngestionConfig{UseLLM: true}, nil, nil)

		props := svc.BuildPropositions(context.Background(), samplePolo())

		require.Len(t, props, 8+3)
		assert.Equal(t, "Polo Classic - ao-polo của DEVENIR", props[0].Text)
	})

	t.Run("llm disabled", func(t *testing.T) {
		llm := new(MockLLM)
		svc := NewIngestionService(llm, nil, nil, IngestionConfig{UseLLM: false}, nil, nil)

		props := svc.BuildPropositions(context.Background(), samplePolo())

		assert.Len(t, props, 11)
		llm.AssertNotCalled(t, "JSONCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIngestProducts(t *testing.T) {
	embedder := new(MockEmbedder)
	vectors := make([][]float32, 11)
	for i := range vectors {
		vectors[i] = []float32{float32(i), 0, 1}
	}
	embedder.On("EmbedBatch", mock.Anything, mock.MatchedBy(func(texts []string) bool {
		return len(texts) == 11
	})).Return(vectors, nil)

	store := repositories.NewMemoryVectorStore(3)
	require.NoError(t, store.Connect(context.Background()))
	svc := NewIngestionService(nil, embedder, store, IngestionConfig{Concurrency: 2}, nil, nil)

	invalid := models.Product{ID: "", Name: "No id"}
	products := []models.Product{samplePolo(), invalid}

	report, err := svc.IngestProducts(context.Background(), products)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Products)
	assert.Equal(t, 11, report.Propositions)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{""}, report.FailedIDs)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, count)

	// re-ingesting overwrites by id
	_, err = svc.IngestProducts(context.Background(), []models.Product{samplePolo()})
	require.NoError(t, err)
	count, err = store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, count)
}

func embedAny(embedder *MockEmbedder, n int) {
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = []float32{float32(i), 0, 1}
	}
	embedder.On("EmbedBatch", mock.Anything, mock.MatchedBy(func(texts []string) bool {
		return len(texts) == n
	})).Return(vectors, nil)
}

func TestIngestProducts_ReingestDropsStaleFacts(t *testing.T) {
	embedder := new(MockEmbedder)
	embedAny(embedder, 11)
	embedAny(embedder, 5)
	// name, size, price and one variant of the tee
	embedAny(embedder, 4)
	store := repositories.NewMemoryVectorStore(3)
	require.NoError(t, store.Connect(context.Background()))
	svc := NewIngestionService(nil, embedder, store, IngestionConfig{Concurrency: 1}, nil, nil)
	ctx := context.Background()

	other := models.Product{ID: "p-tee", Name: "Tee", Variants: []models.Variant{{ID: "t1", Size: "M", Price: 20, Quantity: 1}}}
	_, err := svc.IngestProducts(ctx, []models.Product{samplePolo(), other})
	require.NoError(t, err)

	shrunk := samplePolo()
	shrunk.Description = ""
	shrunk.Tags = nil
	shrunk.Variants = []models.Variant{{ID: "v3", Size: "L", Color: "White", Price: 50, Quantity: 2}}
	report, err := svc.IngestProducts(ctx, []models.Product{shrunk})
	require.NoError(t, err)
	require.Equal(t, 5, report.Propositions)

	results, err := store.Query(ctx, []float32{0, 0, 1}, 50, map[string]interface{}{"product_id": "p-polo"})
	require.NoError(t, err)
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.Len(t, ids, 5)
	assert.Contains(t, ids, PropositionID("p-polo", models.PropositionVariantInfo, "v3"))
	assert.NotContains(t, ids, PropositionID("p-polo", models.PropositionVariantInfo, "v1"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5+4, count, "other products keep their facts")
}

func TestIngestProducts_EmbeddingFailure(t *testing.T) {
	embedder := new(MockEmbedder)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, ragerr.Embedding("embed", errors.New("401")))
	store := new(MockVectorStore)
	svc := NewIngestionService(nil, embedder, store, IngestionConfig{Concurrency: 1}, nil, nil)

	report, err := svc.IngestProducts(context.Background(), []models.Product{samplePolo()})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Propositions)
	store.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"products":[{"id":"p1","name":"Polo","variants":[{"id":"v1","size":"M","price":45}]}]}`), 0o644))

	yamlPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("products:\n  - id: p2\n    name: Chinos\n    category: quan\n"), 0o644))

	products, err := LoadCatalog(jsonPath)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "v1", products[0].Variants[0].ID)
	assert.Equal(t, 45.0, products[0].Variants[0].Price)

	products, err = LoadCatalog(yamlPath)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "quan", products[0].Category)

	_, err = LoadCatalog(filepath.Join(dir, "catalog.csv"))
	assert.Error(t, err)

	_, err = LoadCatalog(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
