package repositories

import (
	"context"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"shop-assistant/internal/db"
)

const chromaBackend = "chroma"

// ChromaVectorStore implements VectorStore on a ChromaDB collection
type ChromaVectorStore struct {
	client     *db.ChromaDBClient
	collection string
	dimensions int
	logger     *zap.Logger
	connected  atomic.Bool
}

// NewChromaVectorStore creates a store bound to one collection. dimensions is
// the expected embedding length; 0 disables the check.
func NewChromaVectorStore(client *db.ChromaDBClient, collection string, dimensions int, logger *zap.Logger) *ChromaVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromaVectorStore{
		client:     client,
		collection: collection,
		dimensions: dimensions,
		logger:     logger.With(zap.String("component", "chroma_store")),
	}
}

func (s *ChromaVectorStore) Backend() string { return chromaBackend }

// Connect checks the server heartbeat and gets or creates the collection
func (s *ChromaVectorStore) Connect(ctx context.Context) error {
	if err := s.client.Heartbeat(ctx); err != nil {
		return newVectorStoreError(chromaBackend, "connect", err, "")
	}

	collection, err := s.client.GetOrCreateCollection(ctx, s.collection)
	if err != nil {
		return newVectorStoreError(chromaBackend, "connect", err, "")
	}

	s.connected.Store(true)
	s.logger.Info("Connected to vector store",
		zap.String("collection", collection.Name),
		zap.String("collection_id", collection.ID))
	return nil
}

func (s *ChromaVectorStore) Upsert(ctx context.Context, record VectorRecord) error {
	return s.UpsertBatch(ctx, []VectorRecord{record})
}

func (s *ChromaVectorStore) UpsertBatch(ctx context.Context, records []VectorRecord) error {
	if !s.connected.Load() {
		return notConnectedError(chromaBackend, "upsert")
	}
	if len(records) == 0 {
		return nil
	}

	req := db.UpsertRequest{
		IDs:        make([]string, len(records)),
		Documents:  make([]string, len(records)),
		Embeddings: make([][]float32, len(records)),
		Metadatas:  make([]map[string]interface{}, len(records)),
	}
	for i, r := range records {
		if err := validateRecord(chromaBackend, s.dimensions, r); err != nil {
			return err
		}
		req.IDs[i] = r.ID
		req.Documents[i] = r.Document
		req.Embeddings[i] = r.Embedding
		req.Metadatas[i] = r.Metadata
	}

	if err := s.client.Upsert(ctx, s.collection, req); err != nil {
		return newVectorStoreError(chromaBackend, "upsert", err, "")
	}
	return nil
}

func (s *ChromaVectorStore) Query(ctx context.Context, vector []float32, topK int, filter map[string]interface{}) ([]RetrievalResult, error) {
	if !s.connected.Load() {
		return nil, notConnectedError(chromaBackend, "query")
	}
	if topK <= 0 {
		return []RetrievalResult{}, nil
	}

	resp, err := s.client.Query(ctx, s.collection, db.QueryRequest{
		QueryEmbeddings: [][]float32{vector},
		NResults:        topK,
		Where:           ChromaWhere(filter),
	})
	if err != nil {
		return nil, newVectorStoreError(chromaBackend, "query", err, "")
	}

	results := make([]RetrievalResult, 0)
	if len(resp.IDs) == 0 {
		return results, nil
	}

	for i, id := range resp.IDs[0] {
		result := RetrievalResult{ID: id, Metadata: map[string]interface{}{}}
		if len(resp.Documents) > 0 && len(resp.Documents[0]) > i {
			result.Document = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && len(resp.Metadatas[0]) > i && resp.Metadatas[0][i] != nil {
			result.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && len(resp.Distances[0]) > i {
			// cosine space: similarity = 1 - distance
			result.Score = 1 - float64(resp.Distances[0][i])
		}
		results = append(results, result)
	}

	sortByScore(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *ChromaVectorStore) Count(ctx context.Context) (int, error) {
	if !s.connected.Load() {
		return 0, notConnectedError(chromaBackend, "count")
	}
	n, err := s.client.Count(ctx, s.collection)
	if err != nil {
		return 0, newVectorStoreError(chromaBackend, "count", err, "")
	}
	return n, nil
}

func (s *ChromaVectorStore) Delete(ctx context.Context, ids []string) error {
	if !s.connected.Load() {
		return notConnectedError(chromaBackend, "delete")
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.DeleteRecords(ctx, s.collection, ids); err != nil {
		return newVectorStoreError(chromaBackend, "delete", err, "")
	}
	return nil
}

func (s *ChromaVectorStore) DeleteWhere(ctx context.Context, filter map[string]interface{}) error {
	if !s.connected.Load() {
		return notConnectedError(chromaBackend, "delete_where")
	}
	if len(filter) == 0 {
		return emptyFilterError(chromaBackend)
	}
	if err := s.client.DeleteWhere(ctx, s.collection, ChromaWhere(filter)); err != nil {
		return newVectorStoreError(chromaBackend, "delete_where", err, "")
	}
	return nil
}

func (s *ChromaVectorStore) Ping(ctx context.Context) error {
	if err := s.client.Heartbeat(ctx); err != nil {
		return newVectorStoreError(chromaBackend, "ping", err, "")
	}
	return nil
}

func (s *ChromaVectorStore) Close() error {
	s.client.Close()
	return nil
}

// ChromaWhere translates an exact-match filter into a Chroma where clause.
// Keys are emitted in sorted order; nil or empty filters yield nil.
func ChromaWhere(filter map[string]interface{}) map[string]interface{} {
	if len(filter) == 0 {
		return nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, map[string]interface{}{
			k: map[string]interface{}{"$eq": filter[k]},
		})
	}

	if len(clauses) == 1 {
		return clauses[0].(map[string]interface{})
	}
	return map[string]interface{}{"$and": clauses}
}
