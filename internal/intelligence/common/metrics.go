package common

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// IntelligenceMetrics is the telemetry sink for the prediction pipeline.
// Encoding, inference and enrichment all report through it so the backend
// (Prometheus, in-memory, noop) can be swapped without touching callers.
type IntelligenceMetrics interface {
	// RecordInference records a single estimator call.
	RecordInference(ctx context.Context, params *InferenceMetricParams)

	// RecordBatchProcessing records one run of a BatchProcessor.
	RecordBatchProcessing(ctx context.Context, params *BatchMetricParams)

	// RecordCacheAccess records a reference-store lookup against tier.
	RecordCacheAccess(ctx context.Context, hit bool, tier string)

	// RecordEnrichment records one external lookup and its outcome.
	RecordEnrichment(ctx context.Context, outcome string, durationMs float64)

	// RecordModelLoad records an artifact load attempt.
	RecordModelLoad(ctx context.Context, modelName string, durationMs float64, success bool)

	// GetCurrentStats returns a point-in-time snapshot. The readiness
	// endpoint reports it.
	GetCurrentStats() *IntelligenceStats
}

// ---------------------------------------------------------------------------
// Parameter structs
// ---------------------------------------------------------------------------

// InferenceMetricParams carries the data for a single inference call.
type InferenceMetricParams struct {
	ModelName  string  `json:"model_name"`
	Scheme     string  `json:"scheme"`
	DurationMs float64 `json:"duration_ms"`
	Success    bool    `json:"success"`
	BatchSize  int     `json:"batch_size"`
}

// BatchMetricParams carries the data for a batch processing run.
type BatchMetricParams struct {
	BatchName         string  `json:"batch_name"`
	TotalItems        int     `json:"total_items"`
	SuccessItems      int     `json:"success_items"`
	FailedItems       int     `json:"failed_items"`
	TimeoutItems      int     `json:"timeout_items"`
	CancelledItems    int     `json:"cancelled_items"`
	TotalDurationMs   float64 `json:"total_duration_ms"`
	AvgItemDurationMs float64 `json:"avg_item_duration_ms"`
	MaxConcurrency    int     `json:"max_concurrency"`
}

// IntelligenceStats is a point-in-time snapshot of pipeline metrics.
type IntelligenceStats struct {
	TotalInferences       int64            `json:"total_inferences"`
	SuccessfulInferences  int64            `json:"successful_inferences"`
	FailedInferences      int64            `json:"failed_inferences"`
	AvgInferenceLatencyMs float64          `json:"avg_inference_latency_ms"`
	P50LatencyMs          float64          `json:"p50_latency_ms"`
	P95LatencyMs          float64          `json:"p95_latency_ms"`
	P99LatencyMs          float64          `json:"p99_latency_ms"`
	CacheHitRate          float64          `json:"cache_hit_rate"`
	EnrichmentOutcomes    map[string]int64 `json:"enrichment_outcomes"`
}

// Enrichment outcomes.
const (
	EnrichmentFound    = "found"
	EnrichmentNotFound = "not_found"
	EnrichmentError    = "error"
	EnrichmentTimeout  = "timeout"
)

// ---------------------------------------------------------------------------
// Prometheus implementation
// ---------------------------------------------------------------------------

const metricsPrefix = "ami_intelligence_"

var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000}

type prometheusIntelligenceMetrics struct {
	inferenceLatency        *prometheus.HistogramVec
	inferenceTotal          *prometheus.CounterVec
	inferenceRows           *prometheus.CounterVec
	batchProcessingDuration *prometheus.HistogramVec
	batchItemsTotal         *prometheus.CounterVec
	cacheAccessTotal        *prometheus.CounterVec
	enrichmentTotal         *prometheus.CounterVec
	enrichmentDuration      *prometheus.HistogramVec
	modelLoadDuration       *prometheus.HistogramVec

	latencyHist *latencyHistogram
	totalInf    atomic.Int64
	successInf  atomic.Int64
	failedInf   atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	outcomes    sync.Map // outcome -> *atomic.Int64
}

// NewPrometheusIntelligenceMetrics creates a Prometheus-backed collector and
// registers it with registerer (the default registerer when nil).
func NewPrometheusIntelligenceMetrics(registerer prometheus.Registerer) (IntelligenceMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &prometheusIntelligenceMetrics{
		latencyHist: newLatencyHistogram(),
	}

	m.inferenceLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "inference_duration_milliseconds",
		Help:    "Histogram of estimator latency in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"model_name", "scheme"})

	m.inferenceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "inference_total",
		Help: "Total number of estimator calls.",
	}, []string{"model_name", "scheme", "status"})

	m.inferenceRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "inference_rows_total",
		Help: "Total number of structures scored.",
	}, []string{"model_name"})

	m.batchProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "batch_processing_duration_milliseconds",
		Help:    "Histogram of batch stage duration in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"batch_name"})

	m.batchItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "batch_items_total",
		Help: "Total number of items processed in batch stages.",
	}, []string{"batch_name", "status"})

	m.cacheAccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "cache_access_total",
		Help: "Total number of reference cache lookups.",
	}, []string{"tier", "result"})

	m.enrichmentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "enrichment_total",
		Help: "Total number of external reference lookups by outcome.",
	}, []string{"outcome"})

	m.enrichmentDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "enrichment_duration_milliseconds",
		Help:    "Histogram of external reference lookup latency in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"outcome"})

	m.modelLoadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "model_load_duration_milliseconds",
		Help:    "Histogram of model artifact load duration in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"model_name", "status"})

	collectors := []prometheus.Collector{
		m.inferenceLatency,
		m.inferenceTotal,
		m.inferenceRows,
		m.batchProcessingDuration,
		m.batchItemsTotal,
		m.cacheAccessTotal,
		m.enrichmentTotal,
		m.enrichmentDuration,
		m.modelLoadDuration,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *prometheusIntelligenceMetrics) RecordInference(_ context.Context, p *InferenceMetricParams) {
	if p == nil {
		return
	}
	m.inferenceLatency.WithLabelValues(p.ModelName, p.Scheme).Observe(p.DurationMs)
	m.inferenceTotal.WithLabelValues(p.ModelName, p.Scheme, statusLabel(p.Success)).Inc()
	if p.Success {
		m.inferenceRows.WithLabelValues(p.ModelName).Add(float64(p.BatchSize))
	}

	m.latencyHist.Observe(p.DurationMs)
	m.totalInf.Add(1)
	if p.Success {
		m.successInf.Add(1)
	} else {
		m.failedInf.Add(1)
	}
}

func (m *prometheusIntelligenceMetrics) RecordBatchProcessing(_ context.Context, p *BatchMetricParams) {
	if p == nil {
		return
	}
	m.batchProcessingDuration.WithLabelValues(p.BatchName).Observe(p.TotalDurationMs)
	m.batchItemsTotal.WithLabelValues(p.BatchName, "success").Add(float64(p.SuccessItems))
	m.batchItemsTotal.WithLabelValues(p.BatchName, "failed").Add(float64(p.FailedItems))
	m.batchItemsTotal.WithLabelValues(p.BatchName, "timeout").Add(float64(p.TimeoutItems))
	m.batchItemsTotal.WithLabelValues(p.BatchName, "cancelled").Add(float64(p.CancelledItems))
}

func (m *prometheusIntelligenceMetrics) RecordCacheAccess(_ context.Context, hit bool, tier string) {
	result := "miss"
	if hit {
		result = "hit"
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
	m.cacheAccessTotal.WithLabelValues(tier, result).Inc()
}

func (m *prometheusIntelligenceMetrics) RecordEnrichment(_ context.Context, outcome string, durationMs float64) {
	m.enrichmentTotal.WithLabelValues(outcome).Inc()
	m.enrichmentDuration.WithLabelValues(outcome).Observe(durationMs)
	c, _ := m.outcomes.LoadOrStore(outcome, new(atomic.Int64))
	c.(*atomic.Int64).Add(1)
}

func (m *prometheusIntelligenceMetrics) RecordModelLoad(_ context.Context, modelName string, durationMs float64, success bool) {
	m.modelLoadDuration.WithLabelValues(modelName, statusLabel(success)).Observe(durationMs)
}

func (m *prometheusIntelligenceMetrics) GetCurrentStats() *IntelligenceStats {
	total := m.totalInf.Load()

	var avgLatency float64
	if total > 0 {
		avgLatency = m.latencyHist.Sum() / float64(total)
	}

	outcomes := make(map[string]int64)
	m.outcomes.Range(func(key, value any) bool {
		outcomes[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	return &IntelligenceStats{
		TotalInferences:       total,
		SuccessfulInferences:  m.successInf.Load(),
		FailedInferences:      m.failedInf.Load(),
		AvgInferenceLatencyMs: avgLatency,
		P50LatencyMs:          m.latencyHist.Percentile(50),
		P95LatencyMs:          m.latencyHist.Percentile(95),
		P99LatencyMs:          m.latencyHist.Percentile(99),
		CacheHitRate:          hitRate(m.cacheHits.Load(), m.cacheMisses.Load()),
		EnrichmentOutcomes:    outcomes,
	}
}

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// ---------------------------------------------------------------------------
// Noop implementation
// ---------------------------------------------------------------------------

type noopIntelligenceMetrics struct{}

// NewNoopIntelligenceMetrics returns a metrics sink that discards everything.
func NewNoopIntelligenceMetrics() IntelligenceMetrics {
	return &noopIntelligenceMetrics{}
}

func (n *noopIntelligenceMetrics) RecordInference(context.Context, *InferenceMetricParams)  {}
func (n *noopIntelligenceMetrics) RecordBatchProcessing(context.Context, *BatchMetricParams) {}
func (n *noopIntelligenceMetrics) RecordCacheAccess(context.Context, bool, string)           {}
func (n *noopIntelligenceMetrics) RecordEnrichment(context.Context, string, float64)         {}
func (n *noopIntelligenceMetrics) RecordModelLoad(context.Context, string, float64, bool)    {}

func (n *noopIntelligenceMetrics) GetCurrentStats() *IntelligenceStats {
	return &IntelligenceStats{EnrichmentOutcomes: map[string]int64{}}
}

// ---------------------------------------------------------------------------
// In-memory implementation (for testing)
// ---------------------------------------------------------------------------

// InMemoryIntelligenceMetrics records every event for later inspection.
type InMemoryIntelligenceMetrics struct {
	mu sync.Mutex

	inferences  []*InferenceMetricParams
	batches     []*BatchMetricParams
	cacheHits   int64
	cacheMisses int64
	outcomes    map[string]int64
	modelLoads  []ModelLoadRecord
	latencyHist *latencyHistogram
}

// ModelLoadRecord is one RecordModelLoad call.
type ModelLoadRecord struct {
	ModelName  string
	DurationMs float64
	Success    bool
	Timestamp  time.Time
}

// NewInMemoryIntelligenceMetrics returns an in-memory metrics implementation
// suitable for unit tests.
func NewInMemoryIntelligenceMetrics() *InMemoryIntelligenceMetrics {
	return &InMemoryIntelligenceMetrics{
		outcomes:    make(map[string]int64),
		latencyHist: newLatencyHistogram(),
	}
}

func (m *InMemoryIntelligenceMetrics) RecordInference(_ context.Context, p *InferenceMetricParams) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.inferences = append(m.inferences, &cp)
	m.latencyHist.Observe(p.DurationMs)
}

func (m *InMemoryIntelligenceMetrics) RecordBatchProcessing(_ context.Context, p *BatchMetricParams) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.batches = append(m.batches, &cp)
}

func (m *InMemoryIntelligenceMetrics) RecordCacheAccess(_ context.Context, hit bool, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

func (m *InMemoryIntelligenceMetrics) RecordEnrichment(_ context.Context, outcome string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *InMemoryIntelligenceMetrics) RecordModelLoad(_ context.Context, modelName string, durationMs float64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelLoads = append(m.modelLoads, ModelLoadRecord{
		ModelName:  modelName,
		DurationMs: durationMs,
		Success:    success,
		Timestamp:  time.Now(),
	})
}

func (m *InMemoryIntelligenceMetrics) GetCurrentStats() *IntelligenceStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := int64(len(m.inferences))
	var success, failed int64
	var sumLatency float64
	for _, inf := range m.inferences {
		if inf.Success {
			success++
		} else {
			failed++
		}
		sumLatency += inf.DurationMs
	}

	var avgLatency float64
	if total > 0 {
		avgLatency = sumLatency / float64(total)
	}

	outcomes := make(map[string]int64, len(m.outcomes))
	for k, v := range m.outcomes {
		outcomes[k] = v
	}

	return &IntelligenceStats{
		TotalInferences:       total,
		SuccessfulInferences:  success,
		FailedInferences:      failed,
		AvgInferenceLatencyMs: avgLatency,
		P50LatencyMs:          m.latencyHist.Percentile(50),
		P95LatencyMs:          m.latencyHist.Percentile(95),
		P99LatencyMs:          m.latencyHist.Percentile(99),
		CacheHitRate:          hitRate(m.cacheHits, m.cacheMisses),
		EnrichmentOutcomes:    outcomes,
	}
}

// Inferences returns a copy of all recorded inference params.
func (m *InMemoryIntelligenceMetrics) Inferences() []*InferenceMetricParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*InferenceMetricParams, len(m.inferences))
	for i, p := range m.inferences {
		cp := *p
		out[i] = &cp
	}
	return out
}

// Batches returns a copy of all recorded batch params.
func (m *InMemoryIntelligenceMetrics) Batches() []*BatchMetricParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*BatchMetricParams, len(m.batches))
	for i, p := range m.batches {
		cp := *p
		out[i] = &cp
	}
	return out
}

// CacheHits returns the number of cache hits recorded.
func (m *InMemoryIntelligenceMetrics) CacheHits() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheHits
}

// CacheMisses returns the number of cache misses recorded.
func (m *InMemoryIntelligenceMetrics) CacheMisses() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheMisses
}

// ModelLoads returns a copy of all model load records.
func (m *InMemoryIntelligenceMetrics) ModelLoads() []ModelLoadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ModelLoadRecord, len(m.modelLoads))
	copy(out, m.modelLoads)
	return out
}

// ---------------------------------------------------------------------------
// latencyHistogram
// ---------------------------------------------------------------------------

// latencyWindow caps the samples kept for percentiles; a long-running
// server reports over its most recent inferences.
const latencyWindow = 4096

// latencyHistogram keeps the last latencyWindow samples in a ring and a
// running count and sum over every sample.
type latencyHistogram struct {
	mu      sync.Mutex
	samples []float64
	next    int
	count   int64
	sum     float64
}

func newLatencyHistogram() *latencyHistogram {
	return &latencyHistogram{
		samples: make([]float64, 0, 256),
	}
}

func (h *latencyHistogram) Observe(durationMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) < latencyWindow {
		h.samples = append(h.samples, durationMs)
	} else {
		h.samples[h.next] = durationMs
		h.next = (h.next + 1) % latencyWindow
	}
	h.count++
	h.sum += durationMs
}

// Percentile returns the value at percentile p (0–100) over the window using
// linear interpolation between the two nearest ranks.
func (h *latencyHistogram) Percentile(p float64) float64 {
	h.mu.Lock()
	sorted := append([]float64(nil), h.samples...)
	h.mu.Unlock()

	n := len(sorted)
	if n == 0 {
		return 0
	}
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	rank := (p / 100) * float64(n-1)
	lower := int(math.Floor(rank))
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

func (h *latencyHistogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *latencyHistogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

var (
	_ IntelligenceMetrics = (*prometheusIntelligenceMetrics)(nil)
	_ IntelligenceMetrics = (*noopIntelligenceMetrics)(nil)
	_ IntelligenceMetrics = (*InMemoryIntelligenceMetrics)(nil)
)
