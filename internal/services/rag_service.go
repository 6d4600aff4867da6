package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"shop-assistant/internal/metrics"
	"shop-assistant/internal/models"
	"shop-assistant/internal/ragerr"
	"shop-assistant/internal/repositories"
)

const (
	// MaxMessageRunes bounds a shopper message
	MaxMessageRunes = 5000

	EmptyMessageText   = "Vui lòng nhập nội dung tin nhắn."
	MessageTooLongText = "Tin nhắn quá dài, vui lòng rút gọn dưới 5000 ký tự."

	messagePreviewRunes = 80
)

type requestIDKey struct{}

// WithRequestID stores the id a chat turn is logged and answered under
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id set by WithRequestID, if any
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type chatInput struct {
	Message string `validate:"required,max=5000"`
}

// Advisors holds one advisor per intent
type Advisors struct {
	Product        Advisor
	Size           Advisor
	Style          Advisor
	Order          Advisor
	ReturnExchange Advisor
	General        Advisor
}

// RAGService is the entry point for a chat turn: validate, classify, dispatch
// to the intent's advisor and record the turn
type RAGService struct {
	classifier    *IntentClassifier
	advisors      Advisors
	conversations *ConversationManager
	store         repositories.VectorStore
	validate      *validator.Validate
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

func NewRAGService(classifier *IntentClassifier, advisors Advisors, conversations *ConversationManager, store repositories.VectorStore, logger *zap.Logger, m *metrics.Metrics) *RAGService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if advisors.General == nil {
		advisors.General = GeneralAdvisor{}
	}
	if advisors.ReturnExchange == nil {
		advisors.ReturnExchange = ReturnExchangeAdvisor{}
	}
	return &RAGService{
		classifier:    classifier,
		advisors:      advisors,
		conversations: conversations,
		store:         store,
		validate:      validator.New(),
		logger:        logger.With(zap.String("component", "rag_service")),
		metrics:       m,
	}
}

// Answer runs one chat turn
func (s *RAGService) Answer(ctx context.Context, req models.ChatRequest, identity models.Identity) (*models.ChatResponse, error) {
	return s.answer(ctx, req, identity, nil)
}

// AnswerStream runs one chat turn, emitting the answer through onToken as it is
// produced. The returned response carries the full answer.
func (s *RAGService) AnswerStream(ctx context.Context, req models.ChatRequest, identity models.Identity, onToken func(string)) (*models.ChatResponse, error) {
	if onToken == nil {
		onToken = func(string) {}
	}
	return s.answer(ctx, req, identity, onToken)
}

func (s *RAGService) answer(ctx context.Context, req models.ChatRequest, identity models.Identity, onToken func(string)) (*models.ChatResponse, error) {
	start := time.Now()
	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	message, err := s.validateMessage(req.Message)
	if err != nil {
		s.metrics.ObserveChat("none", "invalid", time.Since(start))
		return nil, err
	}

	if identity.IsGuest() && identity.SessionID == "" {
		identity = ResolveIdentity("", req.SessionID)
	}
	key := identity.ConversationKey()

	var (
		resp     *models.ChatResponse
		cls      Classification
		outcome  = "ok"
		intent   models.Intent
		fatalErr error
	)
	clientHistory := s.validHistory(req.ConversationHistory)
	saveErr := s.conversations.Turn(ctx, key, clientHistory, func(history []models.ChatMessage, err error) []models.ChatMessage {
		if err != nil {
			s.logger.Warn("Conversation history unavailable, using client history",
				zap.String("request_id", requestID),
				zap.Error(err))
			history = clientHistory
		}

		cls = s.classifier.Classify(ctx, message, history)
		intent = cls.Intent

		emitted := false
		var tokenSink func(string)
		if onToken != nil {
			tokenSink = func(tok string) {
				emitted = true
				onToken(tok)
			}
		}

		result, err := s.advisorFor(cls.Intent).Advise(ctx, AdviceRequest{
			Query:    message,
			Entities: cls.Entities,
			History:  history,
			Identity: identity,
			OnToken:  tokenSink,
		})
		if err != nil {
			if ragerr.Is(err, ragerr.KindConfiguration) {
				fatalErr = err
				return nil
			}

			s.logger.Error("Chat pipeline degraded",
				zap.String("request_id", requestID),
				zap.String("intent", string(intent)),
				zap.String("stage", "advise"),
				zap.String("error_code", ragerr.KindOf(err).String()),
				zap.String("message_preview", truncateRunes(message, messagePreviewRunes)),
				zap.Error(err))

			outcome = "degraded"
			intent = models.IntentGeneral
			result = &AdviceResult{Answer: ragerr.UserMessage(err)}
			if onToken != nil {
				if emitted {
					onToken("\n\n")
				}
				onToken(result.Answer)
			}
		}

		resp = &models.ChatResponse{
			Answer:            result.Answer,
			Intent:            intent,
			SuggestedProducts: result.SuggestedProducts,
			SuggestedAction:   result.SuggestedAction,
			StoreLocation:     result.StoreLocation,
			SessionID:         identity.SessionID,
			RequestID:         requestID,
		}
		if resp.SuggestedProducts == nil {
			resp.SuggestedProducts = []models.ProductRef{}
		}

		return []models.ChatMessage{
			{Role: models.RoleUser, Content: message},
			{Role: models.RoleAssistant, Content: resp.Answer, SuggestedProducts: resp.SuggestedProducts},
		}
	})
	if fatalErr != nil {
		s.metrics.ObserveChat(string(intent), "error", time.Since(start))
		return nil, fatalErr
	}
	if saveErr != nil {
		s.logger.Warn("Failed to save conversation turn",
			zap.String("request_id", requestID),
			zap.Error(saveErr))
	}

	elapsed := time.Since(start)
	s.metrics.ObserveChat(string(intent), outcome, elapsed)
	s.logger.Info("Chat answered",
		zap.String("request_id", requestID),
		zap.String("intent", string(intent)),
		zap.String("classified_by", cls.Source),
		zap.Float64("confidence", cls.Confidence),
		zap.Int("products", len(resp.SuggestedProducts)),
		zap.Duration("duration", elapsed))

	return resp, nil
}

// advisorFor maps every intent to its advisor
func (s *RAGService) advisorFor(intent models.Intent) Advisor {
	switch intent {
	case models.IntentProductAdvice:
		return s.advisors.Product
	case models.IntentSizeRecommendation:
		return s.advisors.Size
	case models.IntentStyleMatching:
		return s.advisors.Style
	case models.IntentOrderLookup:
		return s.advisors.Order
	case models.IntentReturnExchange:
		return s.advisors.ReturnExchange
	case models.IntentGeneral:
		return s.advisors.General
	default:
		return s.advisors.General
	}
}

func (s *RAGService) validateMessage(raw string) (string, error) {
	message := strings.TrimSpace(raw)
	if err := s.validate.Struct(chatInput{Message: message}); err != nil {
		if message == "" {
			return "", ragerr.Validation("message", "message is required").
				WithDetail("user_message", EmptyMessageText)
		}
		return "", ragerr.Validation("message", "message exceeds 5000 characters").
			WithDetail("user_message", MessageTooLongText).
			WithDetail("length", utf8.RuneCountInString(message))
	}
	return message, nil
}

// validHistory drops client history entries whose role is not user or assistant
func (s *RAGService) validHistory(history []models.ChatMessage) []models.ChatMessage {
	kept := make([]models.ChatMessage, 0, len(history))
	for _, msg := range history {
		if s.validate.Struct(msg) == nil {
			kept = append(kept, msg)
		}
	}
	return kept
}

// History returns the caller's stored conversation, oldest first
func (s *RAGService) History(ctx context.Context, identity models.Identity, limit int) ([]models.ChatMessage, error) {
	return s.conversations.GetHistory(ctx, identity.ConversationKey(), limit)
}

func (s *RAGService) ClearHistory(ctx context.Context, identity models.Identity) error {
	return s.conversations.Clear(ctx, identity.ConversationKey())
}

// HealthStatus summarizes the state of the pipeline's dependencies
type HealthStatus struct {
	Status        string   `json:"status"`
	VectorStore   string   `json:"vector_store"`
	VectorCount   int      `json:"vector_count"`
	Conversations string   `json:"conversations"`
	Intents       []string `json:"intents"`
	Error         string   `json:"error,omitempty"`
}

// Health pings the vector store; a failure marks the service degraded
func (s *RAGService) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:        "healthy",
		VectorStore:   s.store.Backend(),
		Conversations: s.conversations.Backend(),
		Intents:       models.IntentNames(),
	}

	if err := s.store.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Error = "vector store unreachable"
		s.logger.Warn("Vector store health check failed", zap.Error(err))
		return status
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Warn("Vector store count failed", zap.Error(err))
	}
	status.VectorCount = count
	return status
}
