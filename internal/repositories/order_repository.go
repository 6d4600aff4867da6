package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"shop-assistant/internal/db"
	"shop-assistant/internal/models"
)

// ErrOrderNotFound is returned when no order of the user matches
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository is the read model of customer orders. Every lookup is scoped
// to one user; no method returns another user's orders.
type OrderRepository interface {
	RecentOrders(ctx context.Context, userID string, limit int) ([]models.Order, error)
	// FindOrder matches code against the full order id or its short code
	FindOrder(ctx context.Context, userID string, code string) (*models.Order, error)
	Save(ctx context.Context, order models.Order) error
}

// OrderRepositoryError represents errors from the order repository
type OrderRepositoryError struct {
	Operation string
	UserID    string
	Err       error
}

func (e *OrderRepositoryError) Error() string {
	return fmt.Sprintf("order repository %s (user %s): %v", e.Operation, e.UserID, e.Err)
}

func (e *OrderRepositoryError) Unwrap() error {
	return e.Err
}

const (
	orderKeyPrefix   = "order:"
	userOrdersKeyFmt = "user:%s:orders"
	maxOrdersScanned = 100
)

// RedisOrderRepository stores order snapshots as JSON with a per-user sorted
// set index scored by creation time
type RedisOrderRepository struct {
	client *db.RedisClient
}

func NewRedisOrderRepository(client *db.RedisClient) *RedisOrderRepository {
	return &RedisOrderRepository{client: client}
}

func (r *RedisOrderRepository) Save(ctx context.Context, order models.Order) error {
	if order.ID == "" || order.UserID == "" {
		return &OrderRepositoryError{Operation: "save", UserID: order.UserID, Err: errors.New("order id and user id are required")}
	}

	data, err := json.Marshal(order)
	if err != nil {
		return &OrderRepositoryError{Operation: "save", UserID: order.UserID, Err: err}
	}
	if err := r.client.Set(ctx, orderKeyPrefix+order.ID, data, 0); err != nil {
		return &OrderRepositoryError{Operation: "save", UserID: order.UserID, Err: err}
	}
	score := float64(order.CreatedAt.Unix())
	if err := r.client.ZAdd(ctx, fmt.Sprintf(userOrdersKeyFmt, order.UserID), score, order.ID); err != nil {
		return &OrderRepositoryError{Operation: "save", UserID: order.UserID, Err: err}
	}
	return nil
}

func (r *RedisOrderRepository) RecentOrders(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 5
	}
	return r.load(ctx, "recent_orders", userID, int64(limit))
}

func (r *RedisOrderRepository) FindOrder(ctx context.Context, userID string, code string) (*models.Order, error) {
	orders, err := r.load(ctx, "find_order", userID, maxOrdersScanned)
	if err != nil {
		return nil, err
	}
	if order := matchOrder(orders, code); order != nil {
		return order, nil
	}
	return nil, ErrOrderNotFound
}

func (r *RedisOrderRepository) load(ctx context.Context, op, userID string, limit int64) ([]models.Order, error) {
	ids, err := r.client.ZRevRange(ctx, fmt.Sprintf(userOrdersKeyFmt, userID), 0, limit-1)
	if err != nil {
		return nil, &OrderRepositoryError{Operation: op, UserID: userID, Err: err}
	}
	if len(ids) == 0 {
		return []models.Order{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = orderKeyPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...)
	if err != nil {
		return nil, &OrderRepositoryError{Operation: op, UserID: userID, Err: err}
	}

	orders := make([]models.Order, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var order models.Order
		if err := json.Unmarshal([]byte(s), &order); err != nil {
			continue
		}
		// the index is per user, but never trust it over the record itself
		if order.UserID != userID {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// MemoryOrderRepository is an in-process OrderRepository
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string][]models.Order
}

func NewMemoryOrderRepository(orders ...models.Order) *MemoryOrderRepository {
	repo := &MemoryOrderRepository{orders: make(map[string][]models.Order)}
	for _, o := range orders {
		_ = repo.Save(context.Background(), o)
	}
	return repo
}

func (r *MemoryOrderRepository) Save(ctx context.Context, order models.Order) error {
	if order.ID == "" || order.UserID == "" {
		return &OrderRepositoryError{Operation: "save", UserID: order.UserID, Err: errors.New("order id and user id are required")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.orders[order.UserID]
	for i, existing := range list {
		if existing.ID == order.ID {
			list[i] = order
			return nil
		}
	}
	list = append(list, order)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	r.orders[order.UserID] = list
	return nil
}

func (r *MemoryOrderRepository) RecentOrders(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.orders[userID]
	if limit <= 0 {
		limit = 5
	}
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]models.Order, len(list))
	copy(out, list)
	return out, nil
}

func (r *MemoryOrderRepository) FindOrder(ctx context.Context, userID string, code string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if order := matchOrder(r.orders[userID], code); order != nil {
		return order, nil
	}
	return nil, ErrOrderNotFound
}

func matchOrder(orders []models.Order, code string) *models.Order {
	code = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(code)), "#")
	if code == "" {
		return nil
	}
	for _, o := range orders {
		if strings.EqualFold(o.ID, code) || o.ShortCode() == code {
			order := o
			return &order
		}
	}
	return nil
}
