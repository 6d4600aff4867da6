package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-assistant/internal/ragerr"
)

func setupMemoryStore(t *testing.T) *MemoryVectorStore {
	t.Helper()
	store := NewMemoryVectorStore(3)
	require.NoError(t, store.Connect(context.Background()))

	require.NoError(t, store.UpsertBatch(context.Background(), []VectorRecord{
		{ID: "polo", Document: "Áo polo nam", Embedding: []float32{1, 0, 0}, Metadata: map[string]interface{}{"category": "ao-polo", "type": "product_info"}},
		{ID: "tee", Document: "Áo thun", Embedding: []float32{0.9, 0.1, 0}, Metadata: map[string]interface{}{"category": "ao-thun", "type": "product_info"}},
		{ID: "pants", Document: "Quần kaki", Embedding: []float32{0, 1, 0}, Metadata: map[string]interface{}{"category": "quan", "type": "variant_info"}},
	}))
	return store
}

// ============================================================================
// Query
// ============================================================================

func TestMemoryVectorStore_Query(t *testing.T) {
	store := setupMemoryStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		topK    int
		filter  map[string]interface{}
		wantIDs []string
	}{
		{name: "ordered by similarity", topK: 3, wantIDs: []string{"polo", "tee", "pants"}},
		{name: "topK truncates", topK: 1, wantIDs: []string{"polo"}},
		{name: "filter applied", topK: 3, filter: map[string]interface{}{"category": "ao-thun"}, wantIDs: []string{"tee"}},
		{name: "conjunctive filter", topK: 3, filter: map[string]interface{}{"type": "product_info", "category": "quan"}, wantIDs: []string{}},
		{name: "zero topK", topK: 0, wantIDs: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := store.Query(ctx, []float32{1, 0, 0}, tt.topK, tt.filter)
			require.NoError(t, err)

			ids := make([]string, 0, len(results))
			for _, r := range results {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)

			for i := 1; i < len(results); i++ {
				assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
			}
		})
	}
}

func TestMemoryVectorStore_UpsertIsIdempotent(t *testing.T) {
	store := setupMemoryStore(t)
	ctx := context.Background()

	record := VectorRecord{ID: "polo", Document: "Áo polo mới", Embedding: []float32{1, 0, 0}, Metadata: map[string]interface{}{"category": "ao-polo"}}
	require.NoError(t, store.Upsert(ctx, record))
	require.NoError(t, store.Upsert(ctx, record))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := store.Query(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "Áo polo mới", results[0].Document)
}

func TestMemoryVectorStore_NotConnected(t *testing.T) {
	store := NewMemoryVectorStore(3)
	ctx := context.Background()

	_, err := store.Query(ctx, []float32{1, 0, 0}, 5, nil)
	assert.True(t, ragerr.Is(err, ragerr.KindVectorSearch))

	err = store.Upsert(ctx, VectorRecord{ID: "x", Embedding: []float32{1, 0, 0}})
	assert.True(t, ragerr.Is(err, ragerr.KindVectorSearch))

	_, err = store.Count(ctx)
	assert.True(t, ragerr.Is(err, ragerr.KindVectorSearch))
}

func TestMemoryVectorStore_DimensionMismatch(t *testing.T) {
	store := NewMemoryVectorStore(3)
	require.NoError(t, store.Connect(context.Background()))

	err := store.Upsert(context.Background(), VectorRecord{ID: "x", Embedding: []float32{1, 0}})
	assert.True(t, ragerr.Is(err, ragerr.KindConfiguration))
}

func TestMemoryVectorStore_Delete(t *testing.T) {
	store := setupMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, []string{"tee"}))

	results, err := store.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "polo", results[0].ID)
	assert.Equal(t, "pants", results[1].ID)
}

func TestMemoryVectorStore_DeleteWhere(t *testing.T) {
	store := setupMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.DeleteWhere(ctx, map[string]interface{}{"type": "product_info"}))

	results, err := store.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pants", results[0].ID)

	err = store.DeleteWhere(ctx, nil)
	assert.True(t, ragerr.Is(err, ragerr.KindVectorSearch))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryVectorStore_CanceledContext(t *testing.T) {
	store := setupMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Query(ctx, []float32{1, 0, 0}, 5, nil)
	assert.True(t, ragerr.Is(err, ragerr.KindVectorSearch))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 1}))
}
