package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "assistant"

// Metrics holds the Prometheus collectors of the chat pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	chatRequests   *prometheus.CounterVec
	chatDuration   *prometheus.HistogramVec
	llmRequests    *prometheus.CounterVec
	llmRetries     prometheus.Counter
	llmTokens      *prometheus.CounterVec
	rerankFallback prometheus.Counter
	vectorQueries  *prometheus.CounterVec
	ingested       *prometheus.CounterVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Labels: intent, outcome (success, degraded, rejected)
		chatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Total chat requests by resolved intent and outcome",
		}, []string{"intent", "outcome"}),

		chatDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_duration_seconds",
			Help:      "End-to-end chat pipeline latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"intent"}),

		// Labels: operation (completion, json, stream, embed), status (success, error)
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total LLM provider requests",
		}, []string{"operation", "status"}),

		llmRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Total LLM request retries after rate limits or transient errors",
		}),

		// Labels: type (prompt, completion)
		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total tokens consumed",
		}, []string{"type"}),

		rerankFallback: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rerank",
			Name:      "fallbacks_total",
			Help:      "Total reranking calls that fell back to vector order",
		}),

		// Labels: backend (chroma, milvus, memory), status
		vectorQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "queries_total",
			Help:      "Total vector index queries",
		}, []string{"backend", "status"}),

		// Labels: status (indexed, failed)
		ingested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "products_total",
			Help:      "Total products processed by ingestion",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveChat(intent string, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(intent, outcome).Inc()
	m.chatDuration.WithLabelValues(intent).Observe(elapsed.Seconds())
}

func (m *Metrics) LLMRequest(operation string, err error) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(operation, status(err)).Inc()
}

func (m *Metrics) LLMRetry() {
	if m == nil {
		return
	}
	m.llmRetries.Inc()
}

func (m *Metrics) LLMTokens(prompt, completion int) {
	if m == nil {
		return
	}
	m.llmTokens.WithLabelValues("prompt").Add(float64(prompt))
	m.llmTokens.WithLabelValues("completion").Add(float64(completion))
}

func (m *Metrics) RerankFallback() {
	if m == nil {
		return
	}
	m.rerankFallback.Inc()
}

func (m *Metrics) VectorQuery(backend string, err error) {
	if m == nil {
		return
	}
	m.vectorQueries.WithLabelValues(backend, status(err)).Inc()
}

func (m *Metrics) Ingested(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.ingested.WithLabelValues("indexed").Inc()
		return
	}
	m.ingested.WithLabelValues("failed").Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
