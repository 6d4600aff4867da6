// Package ragerr defines the error taxonomy shared by the chat pipeline.
//
// Every failure raised by a pipeline component is an *Error carrying a Kind, so
// callers can branch on the failure class with errors.As or KindOf instead of
// comparing strings.
package ragerr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a pipeline failure
type Kind int

const (
	KindUnknown Kind = iota
	KindIntentClassification
	KindProductNotFound
	KindVectorSearch
	KindLLMProvider
	KindLLMRateLimit
	KindEntityExtraction
	KindContextRetrieval
	KindValidation
	KindTimeout
	KindEmbedding
	KindConfiguration
)

var kindCodes = map[Kind]string{
	KindUnknown:              "UNKNOWN_ERROR",
	KindIntentClassification: "INTENT_CLASSIFICATION_FAILED",
	KindProductNotFound:      "PRODUCT_NOT_FOUND",
	KindVectorSearch:         "VECTOR_SEARCH_FAILED",
	KindLLMProvider:          "LLM_PROVIDER_FAILED",
	KindLLMRateLimit:         "LLM_RATE_LIMIT_EXCEEDED",
	KindEntityExtraction:     "ENTITY_EXTRACTION_FAILED",
	KindContextRetrieval:     "CONTEXT_RETRIEVAL_FAILED",
	KindValidation:           "VALIDATION_FAILED",
	KindTimeout:              "TIMEOUT",
	KindEmbedding:            "EMBEDDING_FAILED",
	KindConfiguration:        "CONFIGURATION_ERROR",
}

// String returns the machine-readable code for the kind
func (k Kind) String() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindUnknown]
}

// HTTPStatus returns the status code used when the kind reaches the HTTP layer
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindProductNotFound:
		return http.StatusNotFound
	case KindLLMRateLimit:
		return http.StatusTooManyRequests
	case KindLLMProvider:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is the base error type for the chat pipeline
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
	Details map[string]interface{}

	// RetryAfter is set on rate limit errors when the provider supplied a hint
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the machine-readable code of the error kind
func (e *Error) Code() string {
	return e.Kind.String()
}

// HTTPStatus returns the HTTP status associated with the error kind
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// Retryable reports whether the operation may succeed if attempted again
func (e *Error) Retryable() bool {
	return e.Kind == KindLLMRateLimit
}

// New creates an error of the given kind
func New(kind Kind, op string, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// WithDetail attaches a debugging detail and returns the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of the first *Error in the chain, or KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Wrap converts any error into an *Error, preserving an existing kind
func Wrap(err error, op string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(KindUnknown, op, "", err)
}

// Common constructors

func IntentClassification(op string, err error) *Error {
	return New(KindIntentClassification, op, "failed to classify user intent", err)
}

func ProductNotFound(identifier string) *Error {
	return New(KindProductNotFound, "lookup_product", fmt.Sprintf("product not found: %s", identifier), nil).
		WithDetail("identifier", identifier)
}

func VectorSearch(op string, err error) *Error {
	return New(KindVectorSearch, op, "vector search operation failed", err)
}

func LLMProvider(op string, message string, err error) *Error {
	if message == "" {
		message = "LLM provider request failed"
	}
	return New(KindLLMProvider, op, message, err)
}

func LLMRateLimit(op string, retryAfter time.Duration, err error) *Error {
	e := New(KindLLMRateLimit, op, "LLM rate limit exceeded", err)
	e.RetryAfter = retryAfter
	return e
}

func EntityExtraction(op string, err error) *Error {
	return New(KindEntityExtraction, op, "failed to extract entities from message", err)
}

func ContextRetrieval(key string, err error) *Error {
	return New(KindContextRetrieval, "context_retrieval", "failed to retrieve context for "+key, err).
		WithDetail("key", key)
}

func Validation(field string, reason string) *Error {
	return New(KindValidation, "validate", fmt.Sprintf("validation failed for %s: %s", field, reason), nil).
		WithDetail("field", field)
}

func Timeout(op string, after time.Duration, err error) *Error {
	return New(KindTimeout, op, fmt.Sprintf("operation timed out after %s", after), err)
}

func Embedding(op string, err error) *Error {
	return New(KindEmbedding, op, "failed to generate embeddings", err)
}

func Configuration(op string, message string) *Error {
	return New(KindConfiguration, op, message, nil)
}

var userMessages = map[Kind]string{
	KindIntentClassification: "Xin lỗi, mình chưa hiểu ý bạn. Bạn có thể diễn đạt lại được không?",
	KindProductNotFound:      "Xin lỗi, mình không tìm thấy sản phẩm phù hợp. Bạn có thể mô tả rõ hơn không?",
	KindVectorSearch:         "Xin lỗi, hệ thống tìm kiếm đang gặp sự cố. Vui lòng thử lại sau.",
	KindLLMProvider:          "Xin lỗi, dịch vụ AI đang bận. Vui lòng thử lại sau ít phút.",
	KindLLMRateLimit:         "Hệ thống đang quá tải. Vui lòng đợi một chút rồi thử lại.",
	KindValidation:           "Thông tin bạn cung cấp chưa hợp lệ. Vui lòng kiểm tra lại.",
	KindTimeout:              "Yêu cầu mất quá nhiều thời gian. Vui lòng thử lại.",
}

// GenericMessage is shown when no kind-specific copy exists
const GenericMessage = "Xin lỗi, mình gặp sự cố khi xử lý yêu cầu của bạn. Vui lòng thử lại sau ít phút."

// UserMessage returns end-user safe copy for err. It never exposes err's text.
func UserMessage(err error) string {
	if msg, ok := userMessages[KindOf(err)]; ok {
		return msg
	}
	return GenericMessage
}
