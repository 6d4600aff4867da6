package repositories

import (
	"context"
	"fmt"
	"sync"
)

const memoryBackend = "memory"

// MemoryVectorStore is a brute-force cosine index for development and tests
type MemoryVectorStore struct {
	mu         sync.RWMutex
	records    map[string]VectorRecord
	order      []string
	dimensions int
	connected  bool
}

func NewMemoryVectorStore(dimensions int) *MemoryVectorStore {
	return &MemoryVectorStore{
		records:    make(map[string]VectorRecord),
		dimensions: dimensions,
	}
}

func (s *MemoryVectorStore) Backend() string { return memoryBackend }

func (s *MemoryVectorStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryVectorStore) Upsert(ctx context.Context, record VectorRecord) error {
	return s.UpsertBatch(ctx, []VectorRecord{record})
}

func (s *MemoryVectorStore) UpsertBatch(ctx context.Context, records []VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return notConnectedError(memoryBackend, "upsert")
	}
	for _, r := range records {
		if err := validateRecord(memoryBackend, s.dimensions, r); err != nil {
			return err
		}
	}

	for _, r := range records {
		if _, exists := s.records[r.ID]; !exists {
			s.order = append(s.order, r.ID)
		}
		meta := make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		s.records[r.ID] = VectorRecord{
			ID:        r.ID,
			Document:  r.Document,
			Embedding: append([]float32(nil), r.Embedding...),
			Metadata:  meta,
		}
	}
	return nil
}

func (s *MemoryVectorStore) Query(ctx context.Context, vector []float32, topK int, filter map[string]interface{}) ([]RetrievalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return nil, notConnectedError(memoryBackend, "query")
	}
	if err := ctx.Err(); err != nil {
		return nil, newVectorStoreError(memoryBackend, "query", err, "")
	}
	if topK <= 0 {
		return []RetrievalResult{}, nil
	}

	results := make([]RetrievalResult, 0)
	for _, id := range s.order {
		r := s.records[id]
		if !matchesFilter(r.Metadata, filter) {
			continue
		}
		results = append(results, RetrievalResult{
			ID:       r.ID,
			Document: r.Document,
			Score:    cosineSimilarity(vector, r.Embedding),
			Metadata: r.Metadata,
		})
	}

	sortByScore(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *MemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return 0, notConnectedError(memoryBackend, "count")
	}
	return len(s.records), nil
}

func (s *MemoryVectorStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return notConnectedError(memoryBackend, "delete")
	}

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		delete(s.records, id)
		remove[id] = true
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

func (s *MemoryVectorStore) DeleteWhere(ctx context.Context, filter map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return notConnectedError(memoryBackend, "delete_where")
	}
	if len(filter) == 0 {
		return emptyFilterError(memoryBackend)
	}

	kept := s.order[:0]
	for _, id := range s.order {
		if matchesFilter(s.records[id].Metadata, filter) {
			delete(s.records, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

func (s *MemoryVectorStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryVectorStore) Close() error { return nil }

func matchesFilter(meta map[string]interface{}, filter map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
