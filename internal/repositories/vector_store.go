package repositories

import (
	"context"
	"math"
	"sort"

	"shop-assistant/internal/ragerr"
)

// VectorStore abstracts the vector index holding product propositions.
// Implementations must be safe for concurrent use after Connect returns.
type VectorStore interface {
	// Connect prepares the backing collection. Every other call fails fast
	// with a VectorSearch error until Connect has succeeded.
	Connect(ctx context.Context) error

	// Upsert inserts or replaces a record by id
	Upsert(ctx context.Context, record VectorRecord) error
	UpsertBatch(ctx context.Context, records []VectorRecord) error

	// Query returns at most topK results ordered by descending score. filter is
	// an exact-match metadata predicate evaluated by the index.
	Query(ctx context.Context, vector []float32, topK int, filter map[string]interface{}) ([]RetrievalResult, error)

	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, ids []string) error
	// DeleteWhere removes every record matching an exact-match filter. An
	// empty filter is rejected rather than clearing the collection.
	DeleteWhere(ctx context.Context, filter map[string]interface{}) error
	Ping(ctx context.Context) error
	Backend() string
	Close() error
}

// VectorRecord is one indexed proposition
type VectorRecord struct {
	ID        string                 `json:"id"`
	Document  string                 `json:"document"`
	Embedding []float32              `json:"embedding"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// RetrievalResult is a single similarity search hit
type RetrievalResult struct {
	ID       string                 `json:"id"`
	Document string                 `json:"document"`
	Score    float64                `json:"score"` // higher is more similar
	Metadata map[string]interface{} `json:"metadata"`
}

// VectorStoreError represents errors from a vector store backend
type VectorStoreError struct {
	Backend   string
	Operation string
	Err       error
	Message   string
}

func (e *VectorStoreError) Error() string {
	prefix := e.Backend + " " + e.Operation
	if e.Message != "" {
		return prefix + ": " + e.Message
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *VectorStoreError) Unwrap() error {
	return e.Err
}

// newVectorStoreError wraps a backend failure as a VectorSearch pipeline error
func newVectorStoreError(backend, operation string, err error, message string) error {
	return ragerr.VectorSearch(operation, &VectorStoreError{
		Backend:   backend,
		Operation: operation,
		Err:       err,
		Message:   message,
	})
}

func emptyFilterError(backend string) error {
	return newVectorStoreError(backend, "delete_where", nil, "filter must not be empty")
}

func notConnectedError(backend, operation string) error {
	return newVectorStoreError(backend, operation, nil, "store is not connected")
}

func validateRecord(backend string, dim int, r VectorRecord) error {
	if r.ID == "" {
		return newVectorStoreError(backend, "upsert", nil, "record id is required")
	}
	if len(r.Embedding) == 0 {
		return newVectorStoreError(backend, "upsert", nil, "record "+r.ID+" has no embedding")
	}
	if dim > 0 && len(r.Embedding) != dim {
		return ragerr.Configuration("upsert", "embedding dimension mismatch for record "+r.ID)
	}
	return nil
}

// cosineSimilarity returns the cosine of the angle between a and b, 0 when
// either vector is zero or the lengths differ
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// sortByScore orders results by descending score, keeping index order on ties
func sortByScore(results []RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
