package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"shop-assistant/internal/metrics"
	"shop-assistant/internal/ragerr"
)

const (
	DefaultChatModel   = "gpt-4o-mini"
	DefaultTemperature = float32(0.3)
	DefaultMaxTokens   = 800
	DefaultLLMTimeout  = 20 * time.Second

	defaultPenalty = float32(0.1)

	jsonCorrectionMessage = "Return only valid JSON matching the requested schema"
)

// OpenAIConfig configures the chat completion provider
type OpenAIConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       float32
	MaxTokens         int
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerMinute int
	// BaseBackoff is the first retry delay; it doubles on every retry
	BaseBackoff time.Duration
}

// UsageStats is the cumulative token accounting of a provider
type UsageStats struct {
	Requests         int64 `json:"requests"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// OpenAIProvider implements LLMProvider on the OpenAI chat completions API or
// any compatible endpoint
type OpenAIProvider struct {
	client   *openai.Client
	config   OpenAIConfig
	retry    *retryPolicy
	validate *validator.Validate
	logger   *zap.Logger
	metrics  *metrics.Metrics

	requests         atomic.Int64
	promptTokens     atomic.Int64
	completionTokens atomic.Int64
}

// NewOpenAIClient builds the shared go-openai client used by the chat provider
// and the embedding service
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

func NewOpenAIProvider(client *openai.Client, config OpenAIConfig, logger *zap.Logger, m *metrics.Metrics) *OpenAIProvider {
	if config.Model == "" {
		config.Model = DefaultChatModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultLLMTimeout
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm_provider"))

	return &OpenAIProvider{
		client:   client,
		config:   config,
		retry:    newRetryPolicy(config.MaxAttempts, config.BaseBackoff, config.Timeout, config.RequestsPerMinute, logger, m),
		validate: validator.New(),
		logger:   logger,
		metrics:  m,
	}
}

func (p *OpenAIProvider) Completion(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	return p.complete(ctx, operation(opts, "completion"), messages, opts, false)
}

func (p *OpenAIProvider) JSONCompletion(ctx context.Context, messages []Message, out interface{}, opts CompletionOptions) error {
	op := operation(opts, "json_completion")

	content, err := p.complete(ctx, op, messages, opts, true)
	if err != nil {
		return err
	}
	firstErr := p.decodeJSON(content, out)
	if firstErr == nil {
		return nil
	}

	p.logger.Debug("Invalid JSON from model, retrying with correction",
		zap.String("operation", op), zap.Error(firstErr))

	corrected := make([]Message, 0, len(messages)+2)
	corrected = append(corrected, messages...)
	corrected = append(corrected, AssistantMessage(content), UserMessage(jsonCorrectionMessage))

	content, err = p.complete(ctx, op, corrected, opts, true)
	if err != nil {
		return err
	}
	if err := p.decodeJSON(content, out); err != nil {
		return ragerr.LLMProvider(op, "model returned invalid JSON twice", err)
	}
	return nil
}

func (p *OpenAIProvider) StreamingCompletion(ctx context.Context, messages []Message, onToken func(string), opts CompletionOptions) (string, error) {
	op := operation(opts, "stream")
	req := p.buildRequest(messages, opts, false)
	req.Stream = true

	var full strings.Builder
	err := p.retry.do(ctx, op, func(callCtx context.Context) error {
		stream, err := p.client.CreateChatCompletionStream(callCtx, req)
		if err != nil {
			return err
		}
		defer stream.Close()

		emitted := false
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				if emitted {
					return &permanentError{err: err}
				}
				return err
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			emitted = true
			full.WriteString(delta)
			if onToken != nil {
				onToken(delta)
			}
		}
	})
	p.requests.Add(1)
	if err != nil {
		return full.String(), err
	}
	return full.String(), nil
}

// UsageStats returns cumulative request and token counts
func (p *OpenAIProvider) UsageStats() UsageStats {
	return UsageStats{
		Requests:         p.requests.Load(),
		PromptTokens:     p.promptTokens.Load(),
		CompletionTokens: p.completionTokens.Load(),
	}
}

func (p *OpenAIProvider) complete(ctx context.Context, op string, messages []Message, opts CompletionOptions, jsonMode bool) (string, error) {
	req := p.buildRequest(messages, opts, jsonMode)

	var resp openai.ChatCompletionResponse
	err := p.retry.do(ctx, op, func(callCtx context.Context) error {
		var err error
		resp, err = p.client.CreateChatCompletion(callCtx, req)
		return err
	})
	p.requests.Add(1)
	if err != nil {
		return "", err
	}

	p.promptTokens.Add(int64(resp.Usage.PromptTokens))
	p.completionTokens.Add(int64(resp.Usage.CompletionTokens))
	p.metrics.LLMTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", ragerr.LLMProvider(op, "model returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) buildRequest(messages []Message, opts CompletionOptions, jsonMode bool) openai.ChatCompletionRequest {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	temperature := p.config.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := p.config.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	req := openai.ChatCompletionRequest{
		Model:            p.config.Model,
		Messages:         converted,
		Temperature:      temperature,
		MaxTokens:        maxTokens,
		PresencePenalty:  defaultPenalty,
		FrequencyPenalty: defaultPenalty,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

// decodeJSON parses content into out and runs struct validation
func (p *OpenAIProvider) decodeJSON(content string, out interface{}) error {
	if err := json.Unmarshal([]byte(stripCodeFence(content)), out); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}

	v := reflect.ValueOf(out)
	if v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Struct {
		if err := p.validate.Struct(out); err != nil {
			return fmt.Errorf("schema validation: %w", err)
		}
	}
	return nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func operation(opts CompletionOptions, fallback string) string {
	if opts.Operation != "" {
		return opts.Operation
	}
	return fallback
}
