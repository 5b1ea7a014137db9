package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage names used as metric labels.
const (
	StageSTT = "stt"
	StageLLM = "llm"
	StageTTS = "tts"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_companion_active_sessions",
		Help: "Number of connected conversation sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_companion_sessions_total",
		Help: "Total number of conversation sessions opened",
	})

	// Turn metrics
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_turns_total",
		Help: "Total number of conversation turns by outcome",
	}, []string{"outcome"}) // outcome: "success", "no_speech", "failed", "cleared"

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_companion_turn_duration_seconds",
		Help:    "Duration of conversation turns in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
	})

	// Per-stage remote call metrics
	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_stage_requests_total",
		Help: "Total number of remote stage requests",
	}, []string{"stage", "status"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_companion_stage_latency_seconds",
		Help:    "Remote stage latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 15.0},
	}, []string{"stage"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_retries_total",
		Help: "Total number of retried remote requests",
	}, []string{"service"})

	// Cache metrics
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_tts_cache_lookups_total",
		Help: "TTS cache lookups by result",
	}, []string{"result"}) // result: "hit" or "miss"

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_companion_tts_cache_evictions_total",
		Help: "Total number of evicted TTS cache clips",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_errors_total",
		Help: "Total number of errors",
	}, []string{"kind", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_companion_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Metrics tracks metrics for a single conversation session
type Metrics struct {
	sessionID string
	startTime time.Time

	mu         sync.Mutex
	turnStart  time.Time
	stageStart map[string]time.Time
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID:  sessionID,
		startTime:  time.Now(),
		stageStart: make(map[string]time.Time),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
}

// RecordTurnStart records the start of a conversation turn
func (m *Metrics) RecordTurnStart() {
	m.mu.Lock()
	m.turnStart = time.Now()
	m.mu.Unlock()
}

// RecordTurnEnd records the end of a conversation turn
func (m *Metrics) RecordTurnEnd(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.turnStart.IsZero() {
		turnDuration.Observe(time.Since(m.turnStart).Seconds())
		m.turnStart = time.Time{}
	}
	turnsTotal.WithLabelValues(outcome).Inc()
}

// RecordStageStart records the start of a remote stage (stt, llm, tts)
func (m *Metrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stageStart[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd records the end of a remote stage
func (m *Metrics) RecordStageEnd(stage string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if start, ok := m.stageStart[stage]; ok {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		delete(m.stageStart, stage)
	}

	status := "success"
	if !success {
		status = "error"
	}
	stageRequests.WithLabelValues(stage, status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(kind, component string) {
	RecordError(kind, component)
}

// RecordError records an error outside of a session
func RecordError(kind, component string) {
	errorsTotal.WithLabelValues(kind, component).Inc()
}

// RecordRetry counts one retried request against a service
func RecordRetry(service string) {
	retriesTotal.WithLabelValues(service).Inc()
}

// RecordCacheLookup records a TTS cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheEvictions records evicted clips
func RecordCacheEvictions(n int) {
	if n > 0 {
		cacheEvictions.Add(float64(n))
	}
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(direction string, bytes int) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
