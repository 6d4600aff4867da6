package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

const (
	milvusBackend = "milvus"

	milvusFieldID       = "id"
	milvusFieldDocument = "document"
	milvusFieldMetadata = "metadata"
	milvusFieldVector   = "vector"
)

// MilvusVectorStore implements VectorStore on a Milvus collection with an
// HNSW/COSINE index. Metadata lives in a JSON field so filters can address any key.
type MilvusVectorStore struct {
	client     client.Client
	collection string
	dimensions int
	logger     *zap.Logger
	connected  atomic.Bool
}

func NewMilvusVectorStore(c client.Client, collection string, dimensions int, logger *zap.Logger) *MilvusVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MilvusVectorStore{
		client:     c,
		collection: collection,
		dimensions: dimensions,
		logger:     logger.With(zap.String("component", "milvus_store")),
	}
}

func (s *MilvusVectorStore) Backend() string { return milvusBackend }

// Connect creates the collection and index when missing and loads it for search
func (s *MilvusVectorStore) Connect(ctx context.Context) error {
	if s.client == nil {
		return newVectorStoreError(milvusBackend, "connect", nil, "client is not configured")
	}

	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return newVectorStoreError(milvusBackend, "connect", err, "")
	}

	if !exists {
		if err := s.client.CreateCollection(ctx, MilvusSchema(s.collection, s.dimensions), entity.DefaultShardNumber); err != nil {
			return newVectorStoreError(milvusBackend, "connect", err, "failed to create collection")
		}

		index, err := entity.NewIndexHNSW(entity.COSINE, 8, 64)
		if err != nil {
			return newVectorStoreError(milvusBackend, "connect", err, "")
		}
		if err := s.client.CreateIndex(ctx, s.collection, milvusFieldVector, index, false); err != nil {
			return newVectorStoreError(milvusBackend, "connect", err, "failed to create index")
		}
		s.logger.Info("Created vector collection", zap.String("collection", s.collection), zap.Int("dimensions", s.dimensions))
	}

	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return newVectorStoreError(milvusBackend, "connect", err, "failed to load collection")
	}

	s.connected.Store(true)
	return nil
}

func (s *MilvusVectorStore) Upsert(ctx context.Context, record VectorRecord) error {
	return s.UpsertBatch(ctx, []VectorRecord{record})
}

func (s *MilvusVectorStore) UpsertBatch(ctx context.Context, records []VectorRecord) error {
	if !s.connected.Load() {
		return notConnectedError(milvusBackend, "upsert")
	}
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := validateRecord(milvusBackend, s.dimensions, r); err != nil {
			return err
		}
	}

	columns, err := milvusColumns(records, s.dimensions)
	if err != nil {
		return newVectorStoreError(milvusBackend, "upsert", err, "")
	}

	if _, err := s.client.Upsert(ctx, s.collection, "", columns...); err != nil {
		return newVectorStoreError(milvusBackend, "upsert", err, "")
	}
	if err := s.client.Flush(ctx, s.collection, false); err != nil {
		s.logger.Warn("Flush after upsert failed", zap.Error(err))
	}
	return nil
}

func (s *MilvusVectorStore) Query(ctx context.Context, vector []float32, topK int, filter map[string]interface{}) ([]RetrievalResult, error) {
	if !s.connected.Load() {
		return nil, notConnectedError(milvusBackend, "query")
	}
	if topK <= 0 {
		return []RetrievalResult{}, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, newVectorStoreError(milvusBackend, "query", err, "")
	}

	searchResults, err := s.client.Search(
		ctx,
		s.collection,
		[]string{},
		MilvusFilterExpr(filter),
		[]string{milvusFieldDocument, milvusFieldMetadata},
		[]entity.Vector{entity.FloatVector(vector)},
		milvusFieldVector,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, newVectorStoreError(milvusBackend, "query", err, "")
	}
	if len(searchResults) == 0 {
		return []RetrievalResult{}, nil
	}
	if searchResults[0].Err != nil {
		return nil, newVectorStoreError(milvusBackend, "query", searchResults[0].Err, "")
	}

	results := milvusResults(searchResults[0])
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *MilvusVectorStore) Count(ctx context.Context) (int, error) {
	if !s.connected.Load() {
		return 0, notConnectedError(milvusBackend, "count")
	}
	stats, err := s.client.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return 0, newVectorStoreError(milvusBackend, "count", err, "")
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, newVectorStoreError(milvusBackend, "count", err, "unexpected row_count")
	}
	return n, nil
}

func (s *MilvusVectorStore) Delete(ctx context.Context, ids []string) error {
	if !s.connected.Load() {
		return notConnectedError(milvusBackend, "delete")
	}
	if len(ids) == 0 {
		return nil
	}

	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	expr := fmt.Sprintf("%s in [%s]", milvusFieldID, strings.Join(quoted, ", "))

	if err := s.client.Delete(ctx, s.collection, "", expr); err != nil {
		return newVectorStoreError(milvusBackend, "delete", err, "")
	}
	return nil
}

func (s *MilvusVectorStore) DeleteWhere(ctx context.Context, filter map[string]interface{}) error {
	if !s.connected.Load() {
		return notConnectedError(milvusBackend, "delete_where")
	}
	if len(filter) == 0 {
		return emptyFilterError(milvusBackend)
	}
	if err := s.client.Delete(ctx, s.collection, "", MilvusFilterExpr(filter)); err != nil {
		return newVectorStoreError(milvusBackend, "delete_where", err, "")
	}
	return nil
}

func (s *MilvusVectorStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return newVectorStoreError(milvusBackend, "ping", nil, "client is not configured")
	}
	if _, err := s.client.HasCollection(ctx, s.collection); err != nil {
		return newVectorStoreError(milvusBackend, "ping", err, "")
	}
	return nil
}

func (s *MilvusVectorStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// MilvusSchema describes the proposition collection
func MilvusSchema(name string, dimensions int) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    "Product propositions",
		Fields: []*entity.Field{
			{
				Name:       milvusFieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       milvusFieldDocument,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:     milvusFieldMetadata,
				DataType: entity.FieldTypeJSON,
			},
			{
				Name:       milvusFieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dimensions)},
			},
		},
	}
}

// MilvusFilterExpr translates an exact-match filter into a boolean expression
// over the JSON metadata field, e.g. metadata["category"] == "ao-polo"
func MilvusFilterExpr(filter map[string]interface{}) string {
	if len(filter) == 0 {
		return ""
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, fmt.Sprintf("%s[%s] == %s", milvusFieldMetadata, strconv.Quote(k), milvusLiteral(filter[k])))
	}
	return strings.Join(clauses, " && ")
}

func milvusLiteral(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return strconv.Quote(fmt.Sprint(val))
	}
}

func milvusColumns(records []VectorRecord, dimensions int) ([]entity.Column, error) {
	ids := make([]string, len(records))
	docs := make([]string, len(records))
	metas := make([][]byte, len(records))
	vectors := make([][]float32, len(records))

	for i, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata for %s: %w", r.ID, err)
		}
		ids[i] = r.ID
		docs[i] = r.Document
		metas[i] = meta
		vectors[i] = r.Embedding
	}

	if dimensions <= 0 && len(vectors) > 0 {
		dimensions = len(vectors[0])
	}

	return []entity.Column{
		entity.NewColumnVarChar(milvusFieldID, ids),
		entity.NewColumnVarChar(milvusFieldDocument, docs),
		entity.NewColumnJSONBytes(milvusFieldMetadata, metas),
		entity.NewColumnFloatVector(milvusFieldVector, dimensions, vectors),
	}, nil
}

func milvusResults(result client.SearchResult) []RetrievalResult {
	var ids, docs []string
	var metas [][]byte

	if col, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = col.Data()
	}
	for _, field := range result.Fields {
		switch col := field.(type) {
		case *entity.ColumnVarChar:
			if col.Name() == milvusFieldDocument {
				docs = col.Data()
			}
		case *entity.ColumnJSONBytes:
			if col.Name() == milvusFieldMetadata {
				metas = col.Data()
			}
		}
	}

	results := make([]RetrievalResult, 0, result.ResultCount)
	for i := 0; i < result.ResultCount && i < len(ids); i++ {
		r := RetrievalResult{ID: ids[i], Metadata: map[string]interface{}{}}
		if i < len(docs) {
			r.Document = docs[i]
		}
		if i < len(metas) && len(metas[i]) > 0 {
			_ = json.Unmarshal(metas[i], &r.Metadata)
		}
		if i < len(result.Scores) {
			r.Score = float64(result.Scores[i])
		}
		results = append(results, r)
	}

	sortByScore(results)
	return results
}
