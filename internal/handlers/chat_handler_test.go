package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shop-assistant/internal/models"
	"shop-assistant/internal/ragerr"
	"shop-assistant/internal/services"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Answer(ctx context.Context, req models.ChatRequest, identity models.Identity) (*models.ChatResponse, error) {
	args := m.Called(ctx, req, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatResponse), args.Error(1)
}

func (m *MockChatService) AnswerStream(ctx context.Context, req models.ChatRequest, identity models.Identity, onToken func(string)) (*models.ChatResponse, error) {
	args := m.Called(ctx, req, identity, onToken)
	if tokens, ok := args.Get(2).([]string); ok {
		for _, tok := range tokens {
			onToken(tok)
		}
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatResponse), args.Error(1)
}

func (m *MockChatService) History(ctx context.Context, identity models.Identity, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, identity, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MockChatService) ClearHistory(ctx context.Context, identity models.Identity) error {
	return m.Called(ctx, identity).Error(0)
}

func (m *MockChatService) Health(ctx context.Context) services.HealthStatus {
	return m.Called(ctx).Get(0).(services.HealthStatus)
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func setupTestChatHandler() (*ChatHandler, *MockChatService) {
	svc := new(MockChatService)
	h := NewChatHandler(svc, nil)
	h.now = func() time.Time { return fixedNow }
	return h, svc
}

func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ============================================================================
// POST /api/chat
// ============================================================================

func TestChatHandler_Chat(t *testing.T) {
	h, svc := setupTestChatHandler()
	svc.On("Answer", mock.Anything, models.ChatRequest{Message: "áo polo"}, models.Identity{UserID: "u1"}).
		Return(&models.ChatResponse{
			Answer:            "Mình gợi ý **Polo Classic**.",
			Intent:            models.IntentProductAdvice,
			SuggestedProducts: []models.ProductRef{{ID: "p1", Name: "Polo Classic"}},
			RequestID:         "req-1",
		}, nil)

	req := postJSON("/api/chat", `{"message":"áo polo"}`)
	req.Header.Set(UserIDHeader, "u1")
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "product_advice", body["intent"])
	assert.Equal(t, "Mình gợi ý **Polo Classic**.", body["answer"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, "2026-03-14T09:30:00Z", body["timestamp"])
	assert.Len(t, body["suggested_products"], 1)
	svc.AssertExpectations(t)
}

func TestChatHandler_ChatRejections(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		body       string
		serviceErr error
		wantStatus int
		wantError  string
		wantCode   string
	}{
		{
			name:       "missing user header",
			body:       `{"message":"hi"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "malformed json",
			userID:     "u1",
			body:       `{"message":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:   "empty message",
			userID: "u1",
			body:   `{"message":"  "}`,
			serviceErr: ragerr.Validation("message", "message is required").
				WithDetail("user_message", services.EmptyMessageText),
			wantStatus: http.StatusBadRequest,
			wantError:  services.EmptyMessageText,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "configuration failure hides details",
			userID:     "u1",
			body:       `{"message":"hi"}`,
			serviceErr: ragerr.Configuration("embed", "dimension mismatch: got 768, want 1536"),
			wantStatus: http.StatusInternalServerError,
			wantError:  ragerr.GenericMessage,
			wantCode:   "CONFIGURATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := setupTestChatHandler()
			if tt.serviceErr != nil {
				svc.On("Answer", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.serviceErr)
			}

			req := postJSON("/api/chat", tt.body)
			if tt.userID != "" {
				req.Header.Set(UserIDHeader, tt.userID)
			}
			rec := httptest.NewRecorder()
			h.Chat(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantCode, body["code"])
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			}
			assert.NotContains(t, rec.Body.String(), "dimension mismatch")
			if tt.serviceErr == nil {
				svc.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

// ============================================================================
// POST /api/chat/guest
// ============================================================================

func TestChatHandler_GuestChat(t *testing.T) {
	t.Run("keeps the supplied session", func(t *testing.T) {
		h, svc := setupTestChatHandler()
		svc.On("Answer", mock.Anything, mock.Anything, models.Identity{SessionID: "s-9"}).
			Return(&models.ChatResponse{Answer: "Chào bạn", Intent: models.IntentGeneral, SessionID: "s-9"}, nil)

		rec := httptest.NewRecorder()
		h.GuestChat(rec, postJSON("/api/chat/guest", `{"message":"xin chào","session_id":"s-9"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "s-9", decodeBody(t, rec)["session_id"])
		svc.AssertExpectations(t)
	})

	t.Run("issues a session when missing", func(t *testing.T) {
		h, svc := setupTestChatHandler()
		svc.On("Answer", mock.Anything, mock.Anything, mock.MatchedBy(func(id models.Identity) bool {
			return id.IsGuest() && id.SessionID != ""
		})).Return(&models.ChatResponse{Answer: "Chào bạn", Intent: models.IntentGeneral}, nil)

		rec := httptest.NewRecorder()
		h.GuestChat(rec, postJSON("/api/chat/guest", `{"message":"xin chào"}`))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})
}

// ============================================================================
// POST /api/chat/stream
// ============================================================================

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.name != "" {
				events = append(events, current)
			}
			current = sseEvent{}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestChatHandler_Stream(t *testing.T) {
	h, svc := setupTestChatHandler()
	svc.On("AnswerStream", mock.Anything, mock.Anything, models.Identity{UserID: "u1"}, mock.Anything).
		Return(&models.ChatResponse{Answer: "Size **L** nhé.", Intent: models.IntentSizeRecommendation}, nil, []string{"Size ", "**L** nhé."})

	req := postJSON("/api/chat/stream", `{"message":"cao 175cm nặng 70kg"}`)
	req.Header.Set(UserIDHeader, "u1")
	rec := httptest.NewRecorder()
	h.Stream(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := readEvents(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "token", events[0].name)
	assert.JSONEq(t, `{"token":"Size "}`, events[0].data)
	assert.Equal(t, "token", events[1].name)
	assert.Equal(t, "done", events[2].name)

	var done map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(events[2].data), &done))
	assert.Equal(t, "Size **L** nhé.", done["answer"])
	assert.Equal(t, "size_recommendation", done["intent"])
	assert.Equal(t, true, done["success"])
}

func TestChatHandler_StreamValidationIsPlainJSON(t *testing.T) {
	h, svc := setupTestChatHandler()
	svc.On("AnswerStream", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, ragerr.Validation("message", "message is required").WithDetail("user_message", services.EmptyMessageText), nil)

	rec := httptest.NewRecorder()
	h.Stream(rec, postJSON("/api/chat/stream", `{"message":""}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, services.EmptyMessageText, decodeBody(t, rec)["error"])
}

func TestChatHandler_StreamErrorAfterTokens(t *testing.T) {
	h, svc := setupTestChatHandler()
	svc.On("AnswerStream", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, ragerr.Configuration("stream", "model missing"), []string{"Xin "})

	rec := httptest.NewRecorder()
	h.Stream(rec, postJSON("/api/chat/stream", `{"message":"hi","session_id":"s1"}`))

	events := readEvents(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "error", events[1].name)
	assert.Contains(t, events[1].data, "CONFIGURATION_ERROR")
	assert.NotContains(t, events[1].data, "model missing")
}

// ============================================================================
// History, clear and health
// ============================================================================

func TestChatHandler_History(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		userID     string
		identity   models.Identity
		limit      int
		wantStatus int
	}{
		{"user", "/api/chat/history?limit=10", "u1", models.Identity{UserID: "u1"}, 10, http.StatusOK},
		{"guest", "/api/chat/history?session_id=s1", "", models.Identity{SessionID: "s1"}, 0, http.StatusOK},
		{"guest without session", "/api/chat/history", "", models.Identity{}, 0, http.StatusBadRequest},
		{"bad limit", "/api/chat/history?limit=abc", "u1", models.Identity{}, 0, http.StatusBadRequest},
		{"negative limit", "/api/chat/history?limit=-1", "u1", models.Identity{}, 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := setupTestChatHandler()
			svc.On("History", mock.Anything, tt.identity, tt.limit).Return([]models.ChatMessage{
				{Role: models.RoleUser, Content: "xin chào"},
				{Role: models.RoleAssistant, Content: "Chào bạn"},
			}, nil).Maybe()

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.userID != "" {
				req.Header.Set(UserIDHeader, tt.userID)
			}
			rec := httptest.NewRecorder()
			h.History(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				svc.AssertNotCalled(t, "History", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			body := decodeBody(t, rec)
			assert.Equal(t, float64(2), body["count"])
			assert.Len(t, body["messages"], 2)
		})
	}
}

func TestChatHandler_HistoryEmptyIsArray(t *testing.T) {
	h, svc := setupTestChatHandler()
	svc.On("History", mock.Anything, mock.Anything, 0).Return(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history?session_id=s1", nil)
	rec := httptest.NewRecorder()
	h.History(rec, req)

	assert.Contains(t, rec.Body.String(), `"messages":[]`)
}

func TestChatHandler_Clear(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h, svc := setupTestChatHandler()
		svc.On("ClearHistory", mock.Anything, models.Identity{UserID: "u1"}).Return(nil)

		req := httptest.NewRequest(http.MethodDelete, "/api/chat/clear", nil)
		req.Header.Set(UserIDHeader, "u1")
		rec := httptest.NewRecorder()
		h.Clear(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["success"])
	})

	t.Run("store failure", func(t *testing.T) {
		h, svc := setupTestChatHandler()
		svc.On("ClearHistory", mock.Anything, mock.Anything).
			Return(ragerr.ContextRetrieval("guest:s1", errors.New("connection refused")))

		req := httptest.NewRequest(http.MethodDelete, "/api/chat/clear?session_id=s1", nil)
		rec := httptest.NewRecorder()
		h.Clear(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func TestChatHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		status     services.HealthStatus
		wantStatus int
	}{
		{"healthy", services.HealthStatus{Status: "healthy", VectorStore: "chroma", VectorCount: 120}, http.StatusOK},
		{"degraded", services.HealthStatus{Status: "degraded", VectorStore: "chroma", Error: "vector store unreachable"}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := setupTestChatHandler()
			svc.On("Health", mock.Anything).Return(tt.status)

			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/chat/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.status.Status, decodeBody(t, rec)["status"])
		})
	}
}

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])
}
