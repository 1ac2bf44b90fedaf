package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects gateway-wide Prometheus metrics. Create once at startup;
// the collectors register with the default registry and are served at
// /metrics.
type Metrics struct {
	// FrameCounter counts WebSocket frames by direction and kind.
	// Labels: direction (inbound|outbound), kind (request|response|event)
	FrameCounter *prometheus.CounterVec

	// MethodCounter counts protocol method invocations.
	// Labels: method, status (ok|error)
	MethodCounter *prometheus.CounterVec

	// MethodDuration measures method handling latency in seconds.
	// Labels: method
	MethodDuration *prometheus.HistogramVec

	// ActiveConnections gauges currently connected WebSocket clients.
	ActiveConnections prometheus.Gauge

	// ChannelMessageCounter counts channel messages by channel id and direction.
	// Labels: channel, direction (inbound|outbound)
	ChannelMessageCounter *prometheus.CounterVec

	// LLMRequestCounter counts model calls.
	// Labels: provider, model, status (success|error|cancelled)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures model call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool, status (success|error|blocked)
	ToolExecutionCounter *prometheus.CounterVec

	// CompactionCounter counts history compactions.
	// Labels: mode (summary|truncate)
	CompactionCounter *prometheus.CounterVec

	// MemorySearchDuration measures hybrid memory search latency in seconds.
	MemorySearchDuration prometheus.Histogram

	// CronRunCounter counts scheduled job runs.
	// Labels: job, status (success|error)
	CronRunCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors. Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		FrameCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "haya_frames_total",
				Help: "Total WebSocket frames by direction and kind",
			},
			[]string{"direction", "kind"},
		),
		MethodCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "haya_method_calls_total",
				Help: "Total protocol method invocations by method and status",
			},
			[]string{"method", "status"},
		),
		MethodDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "haya_method_duration_seconds",
				Help:    "Protocol method handling latency in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"method"},
		),
		ActiveConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "haya_ws_connections",
				Help: "Currently connected WebSocket clients",
			},
		),
		ChannelMessageCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "haya_channel_messages_total",
				Help: "Total channel messages by channel and direction",
			},
			[]string{"channel", "direction"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "haya_llm_requests_total",
				Help: "Total model calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "haya_llm_request_duration_seconds",
				Help:    "Model call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "haya_llm_tokens_total",
				Help: "Total tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "haya_tool_executions_total",
				Help: "Total tool invocations by tool and status",
			},
			[]string{"tool", "status"},
		),
		CompactionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "haya_compactions_total",
				Help: "Total history compactions by mode",
			},
			[]string{"mode"},
		),
		MemorySearchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "haya_memory_search_duration_seconds",
				Help:    "Hybrid memory search latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		CronRunCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "haya_cron_runs_total",
				Help: "Total scheduled job runs by job and status",
			},
			[]string{"job", "status"},
		),
	}
}

// RecordMethod records one protocol method invocation.
func (m *Metrics) RecordMethod(method, status string, durationSeconds float64) {
	m.MethodCounter.WithLabelValues(method, status).Inc()
	m.MethodDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordLLMRequest records one model call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(tool, status string) {
	m.ToolExecutionCounter.WithLabelValues(tool, status).Inc()
}

// RecordChannelMessage records one channel message.
func (m *Metrics) RecordChannelMessage(channel, direction string) {
	m.ChannelMessageCounter.WithLabelValues(channel, direction).Inc()
}
