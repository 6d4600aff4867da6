package services

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"shop-assistant/internal/models"
)

// Classification sources
const (
	SourceHeuristic = "heuristic"
	SourceLLM       = "llm"
	SourceFallback  = "fallback"
)

const conclusiveConfidence = 0.8

// Classification is the routing decision for one message
type Classification struct {
	Intent     models.Intent `json:"intent"`
	Confidence float64       `json:"confidence"`
	Source     string        `json:"source"`
	Entities   Entities      `json:"entities"`
}

type intentVerdict struct {
	Intent     string  `json:"intent" validate:"required,oneof=product_advice size_recommendation style_matching order_lookup return_exchange general"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

var intentKeywords = map[models.Intent][]string{
	models.IntentSizeRecommendation: {
		"size", "cỡ", "số đo", "chiều cao", "cân nặng", "form", "vừa", "rộng", "chật", "cao", "nặng", "kg", "cm",
	},
	models.IntentStyleMatching: {
		"phối", "mix", "match", "outfit", "kết hợp", "mặc với",
		"đi làm", "đi chơi", "dự tiệc", "hẹn hò", "wedding",
	},
	models.IntentOrderLookup: {
		"đơn hàng", "theo dõi", "tracking", "vận chuyển", "mã đơn", "order",
	},
	models.IntentReturnExchange: {
		"đổi trả", "đổi", "trả", "hoàn tiền", "refund", "bảo hành",
		"thanh toán", "ship", "giao hàng", "chính sách",
	},
	models.IntentProductAdvice: {
		"tìm", "muốn", "cần", "gợi ý", "tư vấn", "áo", "quần", "giá", "bao nhiêu", "còn hàng",
	},
}

// heuristic scan order; ties between intents are inconclusive
var heuristicOrder = []models.Intent{
	models.IntentSizeRecommendation,
	models.IntentStyleMatching,
	models.IntentOrderLookup,
	models.IntentReturnExchange,
	models.IntentProductAdvice,
}

var greetingKeywords = []string{"xin chào", "chào", "hello", "hi", "hey", "cảm ơn", "thanks", "thank you", "alo"}

var measurementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+ ?cm`),
	regexp.MustCompile(`\d+ ?kg`),
	regexp.MustCompile(`1m[5-9]\d?`),
}

// IntentClassifier routes a message to one intent: a keyword pass first, the
// LLM only when the keywords are inconclusive
type IntentClassifier struct {
	llm       LLMProvider
	extractor *EntityExtractor
	logger    *zap.Logger
}

func NewIntentClassifier(llm LLMProvider, extractor *EntityExtractor, logger *zap.Logger) *IntentClassifier {
	if extractor == nil {
		extractor = NewEntityExtractor()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntentClassifier{
		llm:       llm,
		extractor: extractor,
		logger:    logger.With(zap.String("component", "intent_classifier")),
	}
}

// Classify never fails and always returns a member of models.AllIntents.
// Entity extraction problems are logged and leave Entities partially filled.
func (c *IntentClassifier) Classify(ctx context.Context, message string, history []models.ChatMessage) Classification {
	entities, err := c.extractor.Extract(message)
	if err != nil {
		c.logger.Warn("Entity extraction failed", zap.Error(err))
	}

	intent, confidence, conclusive := c.heuristic(message, entities)
	if conclusive {
		return Classification{Intent: intent, Confidence: confidence, Source: SourceHeuristic, Entities: entities}
	}

	if c.llm != nil && strings.TrimSpace(message) != "" {
		var verdict intentVerdict
		err := c.llm.JSONCompletion(ctx, IntentClassificationPrompt(message, history), &verdict, CompletionOptions{
			Temperature: Float32(0),
			MaxTokens:   100,
			Operation:   "classify",
		})
		if err == nil {
			return Classification{
				Intent:     models.ParseIntent(verdict.Intent),
				Confidence: verdict.Confidence,
				Source:     SourceLLM,
				Entities:   entities,
			}
		}
		c.logger.Warn("LLM intent classification failed, using heuristic", zap.Error(err))
	}

	if confidence == 0 {
		intent = models.IntentGeneral
	}
	return Classification{Intent: intent, Confidence: confidence, Source: SourceFallback, Entities: entities}
}

// Heuristic exposes the keyword pass on its own, for the classify command
func (c *IntentClassifier) Heuristic(message string) (models.Intent, float64, bool) {
	entities, _ := c.extractor.Extract(message)
	return c.heuristic(message, entities)
}

func (c *IntentClassifier) heuristic(message string, entities Entities) (models.Intent, float64, bool) {
	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return models.IntentGeneral, 0, false
	}

	for _, re := range measurementPatterns {
		if re.MatchString(text) {
			return models.IntentSizeRecommendation, 0.95, true
		}
	}
	if entities.HasMeasurements() {
		return models.IntentSizeRecommendation, 0.9, true
	}
	if entities.OrderCode != "" {
		return models.IntentOrderLookup, 0.9, true
	}

	padded := " " + normalizeForMatch(text) + " "

	best := models.IntentGeneral
	bestHits, tied := 0, false
	for _, intent := range heuristicOrder {
		hits := countPhrases(padded, intentKeywords[intent])
		switch {
		case hits > bestHits:
			best, bestHits, tied = intent, hits, false
		case hits > 0 && hits == bestHits:
			tied = true
		}
	}

	if bestHits == 0 {
		words := strings.Fields(padded)
		if len(words) <= 5 && countPhrases(padded, greetingKeywords) > 0 {
			return models.IntentGeneral, 0.85, true
		}
		return models.IntentGeneral, 0, false
	}
	if tied {
		return best, 0.5, false
	}

	var confidence float64
	switch bestHits {
	case 1:
		confidence = 0.65
	case 2:
		confidence = 0.8
	default:
		confidence = 0.95
	}
	return best, confidence, confidence >= conclusiveConfidence
}

// normalizeForMatch replaces punctuation with spaces so keywords match on
// word boundaries
func normalizeForMatch(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			return r
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

func countPhrases(padded string, phrases []string) int {
	hits := 0
	for _, phrase := range phrases {
		if strings.Contains(padded, " "+phrase+" ") {
			hits++
		}
	}
	return hits
}
