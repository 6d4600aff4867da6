package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"shop-assistant/internal/models"
	"shop-assistant/internal/ragerr"
	"shop-assistant/internal/services"
)

const (
	// UserIDHeader carries the caller id resolved by the upstream auth layer
	UserIDHeader = "X-User-ID"

	maxRequestBytes = 1 << 20
)

// ChatService is the chat pipeline as seen by the HTTP layer
type ChatService interface {
	Answer(ctx context.Context, req models.ChatRequest, identity models.Identity) (*models.ChatResponse, error)
	AnswerStream(ctx context.Context, req models.ChatRequest, identity models.Identity, onToken func(string)) (*models.ChatResponse, error)
	History(ctx context.Context, identity models.Identity, limit int) ([]models.ChatMessage, error)
	ClearHistory(ctx context.Context, identity models.Identity) error
	Health(ctx context.Context) services.HealthStatus
}

// ChatHandler handles HTTP requests for the shop assistant
type ChatHandler struct {
	chat   ChatService
	logger *zap.Logger
	now    func() time.Time
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat ChatService, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		chat:   chat,
		logger: logger.With(zap.String("component", "chat_handler")),
		now:    time.Now,
	}
}

// Chat answers a message from an authenticated shopper
// @Summary Chat (authenticated)
// @Description Answer a shopper message. The caller id is read from the X-User-ID header set by the auth layer.
// @Tags chat
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Authenticated user id"
// @Param request body models.ChatRequest true "Chat request"
// @Success 200 {object} ChatEnvelope
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/chat [post]
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if userID == "" {
		h.sendError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Bạn cần đăng nhập để sử dụng tính năng này.")
		return
	}

	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.chat.Answer(r.Context(), req, models.Identity{UserID: userID, SessionID: req.SessionID})
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, h.envelope(resp))
}

// GuestChat answers a message from a shopper who is not logged in
// @Summary Chat (guest)
// @Description Answer a guest message. A session id is issued when the request has none.
// @Tags chat
// @Accept json
// @Produce json
// @Param request body models.ChatRequest true "Chat request"
// @Success 200 {object} ChatEnvelope
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/chat/guest [post]
func (h *ChatHandler) GuestChat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.chat.Answer(r.Context(), req, services.ResolveIdentity("", req.SessionID))
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, h.envelope(resp))
}

// Stream answers a message as server-sent events
// @Summary Chat (streaming)
// @Description Stream the answer as "token" events followed by one "done" event carrying the full response. X-User-ID is optional; without it the caller is a guest.
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Param X-User-ID header string false "Authenticated user id"
// @Param request body models.ChatRequest true "Chat request"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/chat/stream [post]
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.sendError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", ragerr.GenericMessage)
		return
	}

	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	stream := &eventStream{w: w, flusher: flusher}
	resp, err := h.chat.AnswerStream(r.Context(), req, h.identity(r, req.SessionID), func(token string) {
		if err := stream.send("token", tokenEvent{Token: token}); err != nil {
			h.logger.Debug("Client went away mid-stream", zap.Error(err))
		}
	})
	if err != nil {
		if !stream.started {
			h.sendServiceError(w, err)
			return
		}
		status, body := h.errorBody(err)
		h.logger.Warn("Stream ended with error", zap.Int("status", status), zap.Error(err))
		_ = stream.send("error", body)
		return
	}

	if err := stream.send("done", h.envelope(resp)); err != nil {
		h.logger.Debug("Client went away before done event", zap.Error(err))
	}
}

// History returns the stored conversation of the caller
// @Summary Conversation history
// @Description Return the caller's conversation, oldest first. Guests pass session_id.
// @Tags chat
// @Produce json
// @Param X-User-ID header string false "Authenticated user id"
// @Param session_id query string false "Guest session id"
// @Param limit query int false "Maximum number of messages" default(50)
// @Success 200 {object} HistoryResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/chat/history [get]
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.historyIdentity(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.sendError(w, http.StatusBadRequest, ragerr.KindValidation.String(), "Tham số limit không hợp lệ.")
			return
		}
		limit = parsed
	}

	messages, err := h.chat.History(r.Context(), identity, limit)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	h.sendJSON(w, http.StatusOK, HistoryResponse{
		Success:   true,
		SessionID: identity.SessionID,
		Messages:  messages,
		Count:     len(messages),
		Timestamp: h.now().UTC(),
	})
}

// Clear deletes the stored conversation of the caller
// @Summary Clear conversation
// @Description Delete the caller's conversation. Guests pass session_id.
// @Tags chat
// @Produce json
// @Param X-User-ID header string false "Authenticated user id"
// @Param session_id query string false "Guest session id"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/chat/clear [delete]
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.historyIdentity(w, r)
	if !ok {
		return
	}
	if err := h.chat.ClearHistory(r.Context(), identity); err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Đã xóa lịch sử trò chuyện."})
}

// Health reports the state of the chat pipeline
// @Summary Chat pipeline health
// @Tags health
// @Produce json
// @Success 200 {object} services.HealthStatus
// @Failure 503 {object} services.HealthStatus
// @Router /api/chat/health [get]
func (h *ChatHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.chat.Health(r.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	h.sendJSON(w, code, status)
}

// HealthCheckHandler godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} SuccessResponse
// @Router /health [get]
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(SuccessResponse{Success: true, Message: "Server is healthy"}); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *ChatHandler) decodeChatRequest(w http.ResponseWriter, r *http.Request) (models.ChatRequest, bool) {
	var req models.ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("Failed to decode chat request", zap.Error(err))
		h.sendError(w, http.StatusBadRequest, ragerr.KindValidation.String(), "Dữ liệu gửi lên không hợp lệ.")
		return req, false
	}
	return req, true
}

// identity treats a request without X-User-ID as a guest
func (h *ChatHandler) identity(r *http.Request, sessionID string) models.Identity {
	if userID := strings.TrimSpace(r.Header.Get(UserIDHeader)); userID != "" {
		return models.Identity{UserID: userID, SessionID: sessionID}
	}
	return services.ResolveIdentity("", sessionID)
}

func (h *ChatHandler) historyIdentity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if userID := strings.TrimSpace(r.Header.Get(UserIDHeader)); userID != "" {
		return models.Identity{UserID: userID, SessionID: sessionID}, true
	}
	if sessionID == "" {
		h.sendError(w, http.StatusBadRequest, ragerr.KindValidation.String(), "Thiếu session_id cho khách chưa đăng nhập.")
		return models.Identity{}, false
	}
	return models.Identity{SessionID: sessionID}, true
}

func (h *ChatHandler) envelope(resp *models.ChatResponse) ChatEnvelope {
	return ChatEnvelope{ChatResponse: resp, Success: true, Timestamp: h.now().UTC()}
}

// errorBody maps err to a status and client-safe body. Raw error text is
// never included.
func (h *ChatHandler) errorBody(err error) (int, ErrorResponse) {
	kind := ragerr.KindOf(err)
	message := ragerr.UserMessage(err)

	var rerr *ragerr.Error
	if errors.As(err, &rerr) {
		if custom, ok := rerr.Details["user_message"].(string); ok && custom != "" {
			message = custom
		}
	}

	status := kind.HTTPStatus()
	return status, ErrorResponse{Success: false, Error: message, Code: kind.String(), Status: status}
}

func (h *ChatHandler) sendServiceError(w http.ResponseWriter, err error) {
	status, body := h.errorBody(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Chat request failed", zap.Int("status", status), zap.Error(err))
	}
	h.sendJSON(w, status, body)
}

// Helper methods

func (h *ChatHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("Failed to encode JSON", zap.Error(err))
	}
}

func (h *ChatHandler) sendError(w http.ResponseWriter, status int, code, message string) {
	h.sendJSON(w, status, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
		Status:  status,
	})
}

// eventStream writes server-sent events. Headers go out with the first event so
// a request rejected before any token still gets a plain JSON error.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *eventStream) send(event string, data interface{}) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Response types

// ChatEnvelope is the chat response with the transport fields
type ChatEnvelope struct {
	*models.ChatResponse
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryResponse struct {
	Success   bool                 `json:"success"`
	SessionID string               `json:"session_id,omitempty"`
	Messages  []models.ChatMessage `json:"messages"`
	Count     int                  `json:"count"`
	Timestamp time.Time            `json:"timestamp"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Status  int    `json:"status"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type tokenEvent struct {
	Token string `json:"token"`
}
