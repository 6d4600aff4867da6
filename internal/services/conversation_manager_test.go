package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-assistant/internal/models"
	"shop-assistant/internal/repositories"
)

func setupTestConversations() *ConversationManager {
	return NewConversationManager(repositories.NewMemoryConversationStore(0), nil)
}

func userMsg(content string) models.ChatMessage {
	return models.ChatMessage{Role: models.RoleUser, Content: content}
}

func assistantMsg(content string) models.ChatMessage {
	return models.ChatMessage{Role: models.RoleAssistant, Content: content}
}

func TestResolveIdentity(t *testing.T) {
	t.Run("authenticated", func(t *testing.T) {
		id := ResolveIdentity("u1", "")
		assert.Equal(t, "user:u1", id.ConversationKey())
		assert.False(t, id.IsGuest())
	})

	t.Run("guest keeps session", func(t *testing.T) {
		id := ResolveIdentity("", "abc")
		assert.Equal(t, "guest:abc", id.ConversationKey())
	})

	t.Run("guest gets fresh session", func(t *testing.T) {
		a := ResolveIdentity("", "")
		b := ResolveIdentity("", "")
		assert.NotEmpty(t, a.SessionID)
		assert.NotEqual(t, a.SessionID, b.SessionID)
		assert.True(t, a.IsGuest())
	})
}

func TestConversationManager_CapsHistory(t *testing.T) {
	cm := setupTestConversations()
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		require.NoError(t, cm.AppendTurn(ctx, "user:u1", userMsg(fmt.Sprintf("q%d", i)), assistantMsg(fmt.Sprintf("a%d", i))))
	}

	history, err := cm.GetHistory(ctx, "user:u1", 0)
	require.NoError(t, err)
	require.Len(t, history, MaxHistoryMessages)
	assert.Equal(t, "q5", history[0].Content)
	assert.Equal(t, "a29", history[len(history)-1].Content)

	recent, err := cm.GetHistory(ctx, "user:u1", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"q28", "a28", "q29", "a29"}, contents(recent))
}

func TestConversationManager_Merge(t *testing.T) {
	ctx := context.Background()
	client := []models.ChatMessage{userMsg("áo polo"), assistantMsg("Polo Classic")}

	t.Run("seeds empty session", func(t *testing.T) {
		cm := setupTestConversations()
		merged, err := cm.Merge(ctx, "guest:s1", client)
		require.NoError(t, err)
		assert.Equal(t, client, merged)

		stored, err := cm.GetHistory(ctx, "guest:s1", 0)
		require.NoError(t, err)
		assert.Equal(t, client, stored)
	})

	t.Run("stored history wins", func(t *testing.T) {
		cm := setupTestConversations()
		require.NoError(t, cm.AppendTurn(ctx, "guest:s1", userMsg("xin chào"), assistantMsg("chào bạn")))

		merged, err := cm.Merge(ctx, "guest:s1", client)
		require.NoError(t, err)
		assert.Equal(t, []string{"xin chào", "chào bạn"}, contents(merged))
	})

	t.Run("oversized client history keeps newest", func(t *testing.T) {
		cm := setupTestConversations()
		var long []models.ChatMessage
		for i := 0; i < 60; i++ {
			long = append(long, userMsg(fmt.Sprintf("m%d", i)))
		}
		merged, err := cm.Merge(ctx, "guest:s2", long)
		require.NoError(t, err)
		require.Len(t, merged, MaxHistoryMessages)
		assert.Equal(t, "m10", merged[0].Content)
	})
}

func TestConversationManager_Turn(t *testing.T) {
	ctx := context.Background()

	t.Run("appends what fn returns", func(t *testing.T) {
		cm := setupTestConversations()
		client := []models.ChatMessage{userMsg("áo polo"), assistantMsg("Polo Classic")}

		err := cm.Turn(ctx, "guest:s1", client, func(history []models.ChatMessage, err error) []models.ChatMessage {
			require.NoError(t, err)
			assert.Equal(t, client, history)
			return []models.ChatMessage{userMsg("size M"), assistantMsg("còn size M")}
		})
		require.NoError(t, err)

		stored, err := cm.GetHistory(ctx, "guest:s1", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"áo polo", "Polo Classic", "size M", "còn size M"}, contents(stored))
	})

	t.Run("empty result records nothing", func(t *testing.T) {
		cm := setupTestConversations()
		err := cm.Turn(ctx, "guest:s2", nil, func([]models.ChatMessage, error) []models.ChatMessage { return nil })
		require.NoError(t, err)

		stored, err := cm.GetHistory(ctx, "guest:s2", 0)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})
}

func TestConversationManager_Clear(t *testing.T) {
	cm := setupTestConversations()
	ctx := context.Background()
	require.NoError(t, cm.AppendTurn(ctx, "user:u1", userMsg("q"), assistantMsg("a")))
	require.NoError(t, cm.AppendTurn(ctx, "user:u2", userMsg("q"), assistantMsg("a")))

	require.NoError(t, cm.Clear(ctx, "user:u1"))

	h1, err := cm.GetHistory(ctx, "user:u1", 0)
	require.NoError(t, err)
	assert.Empty(t, h1)
	h2, err := cm.GetHistory(ctx, "user:u2", 0)
	require.NoError(t, err)
	assert.Len(t, h2, 2)
}

func TestConversationManager_ConcurrentTurnsStayPaired(t *testing.T) {
	cm := setupTestConversations()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cm.AppendTurn(ctx, "user:u1", userMsg(fmt.Sprintf("q%d", i)), assistantMsg(fmt.Sprintf("a%d", i)))
		}(i)
	}
	wg.Wait()

	history, err := cm.GetHistory(ctx, "user:u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 40)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, models.RoleUser, history[i].Role)
		assert.Equal(t, "a"+history[i].Content[1:], history[i+1].Content)
	}
	assert.Empty(t, cm.locks.locks)
}

func contents(msgs []models.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestConversationManager_WithMaxMessages(t *testing.T) {
	tests := []struct {
		name string
		max  int
		want int
	}{
		{"lower cap", 10, 10},
		{"zero ignored", 0, MaxHistoryMessages},
		{"above default ignored", 80, MaxHistoryMessages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := NewConversationManager(repositories.NewMemoryConversationStore(0), nil).WithMaxMessages(tt.max)
			assert.Equal(t, tt.want, cm.max)
		})
	}
}
