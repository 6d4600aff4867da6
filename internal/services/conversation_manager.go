package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shop-assistant/internal/models"
	"shop-assistant/internal/repositories"
)

// MaxHistoryMessages caps every conversation; older messages are dropped
const MaxHistoryMessages = 50

// ResolveIdentity builds the caller identity. Guests without a session id get
// a fresh one.
func ResolveIdentity(userID, sessionID string) models.Identity {
	if userID == "" && sessionID == "" {
		sessionID = uuid.NewString()
	}
	return models.Identity{UserID: userID, SessionID: sessionID}
}

// keyedMutex hands out one mutex per key and forgets it when unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// ConversationManager owns per-session history. Writes for one key are
// applied in arrival order.
type ConversationManager struct {
	store  repositories.ConversationStore
	max    int
	locks  keyedMutex
	logger *zap.Logger
}

func NewConversationManager(store repositories.ConversationStore, logger *zap.Logger) *ConversationManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationManager{
		store:  store,
		max:    MaxHistoryMessages,
		logger: logger.With(zap.String("component", "conversation_manager")),
	}
}

// WithMaxMessages lowers the per-session cap. Values outside
// 1..MaxHistoryMessages are ignored.
func (m *ConversationManager) WithMaxMessages(n int) *ConversationManager {
	if n > 0 && n <= MaxHistoryMessages {
		m.max = n
	}
	return m
}

func (m *ConversationManager) Backend() string {
	return m.store.Backend()
}

// AppendTurn records a user message and the assistant's reply
func (m *ConversationManager) AppendTurn(ctx context.Context, key string, user, assistant models.ChatMessage) error {
	unlock := m.locks.Lock(key)
	defer unlock()
	return m.store.Append(ctx, key, m.max, user, assistant)
}

func (m *ConversationManager) GetHistory(ctx context.Context, key string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > m.max {
		limit = m.max
	}
	return m.store.History(ctx, key, limit)
}

func (m *ConversationManager) Clear(ctx context.Context, key string) error {
	unlock := m.locks.Lock(key)
	defer unlock()
	return m.store.Clear(ctx, key)
}

// Merge returns the stored history for key. An empty session is seeded from
// the client-supplied history first, keeping its newest messages.
func (m *ConversationManager) Merge(ctx context.Context, key string, client []models.ChatMessage) ([]models.ChatMessage, error) {
	unlock := m.locks.Lock(key)
	defer unlock()
	return m.merge(ctx, key, client)
}

// Turn holds the session lock for a whole chat turn: it merges the history,
// runs fn and appends the messages fn returns. A later turn on the same key
// waits, so it sees this one in its history. An empty result records nothing.
func (m *ConversationManager) Turn(ctx context.Context, key string, client []models.ChatMessage,
	fn func(history []models.ChatMessage, err error) []models.ChatMessage) error {
	unlock := m.locks.Lock(key)
	defer unlock()

	history, err := m.merge(ctx, key, client)
	record := fn(history, err)
	if len(record) == 0 {
		return nil
	}
	return m.store.Append(ctx, key, m.max, record...)
}

func (m *ConversationManager) merge(ctx context.Context, key string, client []models.ChatMessage) ([]models.ChatMessage, error) {
	stored, err := m.store.History(ctx, key, m.max)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 || len(client) == 0 {
		return stored, nil
	}

	if len(client) > m.max {
		client = client[len(client)-m.max:]
	}
	if err := m.store.Append(ctx, key, m.max, client...); err != nil {
		return nil, err
	}
	m.logger.Debug("Seeded conversation from client history",
		zap.String("key", key),
		zap.Int("messages", len(client)))
	return client, nil
}
