package services

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"shop-assistant/internal/models"
	"shop-assistant/internal/repositories"
)

// ============================================================================
// Mock LLM
// ============================================================================

type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Completion(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	args := m.Called(ctx, messages, opts)
	return args.String(0), args.Error(1)
}

// JSONCompletion decodes the first return value (a JSON string) into out
func (m *MockLLM) JSONCompletion(ctx context.Context, messages []Message, out interface{}, opts CompletionOptions) error {
	args := m.Called(ctx, messages, out, opts)
	if raw := args.String(0); raw != "" {
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return err
		}
	}
	return args.Error(1)
}

// StreamingCompletion emits the first return value as one token unless it errors
func (m *MockLLM) StreamingCompletion(ctx context.Context, messages []Message, onToken func(string), opts CompletionOptions) (string, error) {
	args := m.Called(ctx, messages, onToken, opts)
	text := args.String(0)
	if args.Error(1) == nil && onToken != nil && text != "" {
		onToken(text)
	}
	return text, args.Error(1)
}

// ============================================================================
// Mock Embedder
// ============================================================================

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) Dimensions() int {
	return 3
}

// ============================================================================
// Mock VectorStore
// ============================================================================

type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockVectorStore) Upsert(ctx context.Context, record repositories.VectorRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockVectorStore) UpsertBatch(ctx context.Context, records []repositories.VectorRecord) error {
	return m.Called(ctx, records).Error(0)
}

func (m *MockVectorStore) Query(ctx context.Context, vector []float32, topK int, filter map[string]interface{}) ([]repositories.RetrievalResult, error) {
	args := m.Called(ctx, vector, topK, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.RetrievalResult), args.Error(1)
}

func (m *MockVectorStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockVectorStore) Delete(ctx context.Context, ids []string) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *MockVectorStore) DeleteWhere(ctx context.Context, filter map[string]interface{}) error {
	return m.Called(ctx, filter).Error(0)
}

func (m *MockVectorStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockVectorStore) Backend() string {
	return "mock"
}

func (m *MockVectorStore) Close() error {
	return nil
}

// ============================================================================
// Mock OrderRepository
// ============================================================================

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) RecentOrders(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrderRepository) FindOrder(ctx context.Context, userID string, code string) (*models.Order, error) {
	args := m.Called(ctx, userID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) Save(ctx context.Context, order models.Order) error {
	return m.Called(ctx, order).Error(0)
}

// ============================================================================
// Fixtures
// ============================================================================

func productHit(productID, name, category string, minPrice, score float64) repositories.RetrievalResult {
	return repositories.RetrievalResult{
		ID:       productID + "-info-0",
		Document: name + " thuộc danh mục " + category,
		Score:    score,
		Metadata: map[string]interface{}{
			"type":         models.PropositionProductInfo,
			"product_id":   productID,
			"product_name": name,
			"slug":         productID,
			"category":     category,
			"min_price":    minPrice,
			"max_price":    minPrice + 30,
		},
	}
}
