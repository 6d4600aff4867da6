package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"shop-assistant/internal/db"
	"shop-assistant/internal/models"
	"shop-assistant/internal/ragerr"
)

// ConversationStore persists per-session chat history as an append-only,
// capped list. Callers serialize writes per key.
type ConversationStore interface {
	// Append adds messages at the tail and drops the oldest entries beyond max
	Append(ctx context.Context, key string, max int, messages ...models.ChatMessage) error
	// History returns at most limit of the newest messages, oldest first.
	// limit <= 0 returns everything.
	History(ctx context.Context, key string, limit int) ([]models.ChatMessage, error)
	Clear(ctx context.Context, key string) error
	Backend() string
}

const conversationKeyPrefix = "chat:history:"

// RedisConversationStore keeps each conversation in a Redis list
type RedisConversationStore struct {
	client *db.RedisClient
	ttl    time.Duration
}

func NewRedisConversationStore(client *db.RedisClient, ttl time.Duration) *RedisConversationStore {
	return &RedisConversationStore{client: client, ttl: ttl}
}

func (s *RedisConversationStore) Backend() string { return "redis" }

func (s *RedisConversationStore) Append(ctx context.Context, key string, max int, messages ...models.ChatMessage) error {
	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return ragerr.ContextRetrieval(key, fmt.Errorf("marshal message: %w", err))
		}
		values = append(values, data)
	}

	if err := s.client.AppendCapped(ctx, conversationKeyPrefix+key, max, s.ttl, values...); err != nil {
		return ragerr.ContextRetrieval(key, err)
	}
	return nil
}

func (s *RedisConversationStore) History(ctx context.Context, key string, limit int) ([]models.ChatMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := s.client.LRange(ctx, conversationKeyPrefix+key, start, -1)
	if err != nil {
		return nil, ragerr.ContextRetrieval(key, err)
	}

	messages := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			// skip entries written by an incompatible version
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (s *RedisConversationStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, conversationKeyPrefix+key); err != nil {
		return ragerr.ContextRetrieval(key, err)
	}
	return nil
}

// MemoryConversationStore keeps conversations in process memory with lazy
// TTL expiry
type MemoryConversationStore struct {
	mu      sync.Mutex
	entries map[string]*memoryConversation
	ttl     time.Duration
	now     func() time.Time
}

type memoryConversation struct {
	messages  []models.ChatMessage
	expiresAt time.Time
}

func NewMemoryConversationStore(ttl time.Duration) *MemoryConversationStore {
	return &MemoryConversationStore{
		entries: make(map[string]*memoryConversation),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryConversationStore) Backend() string { return "memory" }

func (s *MemoryConversationStore) Append(ctx context.Context, key string, max int, messages ...models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.live(key)
	if entry == nil {
		entry = &memoryConversation{}
		s.entries[key] = entry
	}

	entry.messages = append(entry.messages, messages...)
	if max > 0 && len(entry.messages) > max {
		trimmed := make([]models.ChatMessage, max)
		copy(trimmed, entry.messages[len(entry.messages)-max:])
		entry.messages = trimmed
	}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	return nil
}

func (s *MemoryConversationStore) History(ctx context.Context, key string, limit int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.live(key)
	if entry == nil {
		return []models.ChatMessage{}, nil
	}

	messages := entry.messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	out := make([]models.ChatMessage, len(messages))
	copy(out, messages)
	return out, nil
}

func (s *MemoryConversationStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// live returns the entry for key, evicting it when expired. Caller holds mu.
func (s *MemoryConversationStore) live(key string) *memoryConversation {
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return entry
}
