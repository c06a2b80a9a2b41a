package common

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrometheusIntelligenceMetrics_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewPrometheusIntelligenceMetrics(registry)
	require.NoError(t, err)

	_, err = NewPrometheusIntelligenceMetrics(registry)
	assert.Error(t, err)
}

func TestPrometheus_RecordInference(t *testing.T) {
	m, err := NewPrometheusIntelligenceMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordInference(ctx, &InferenceMetricParams{ModelName: "rf.json", Scheme: "ECFP", DurationMs: 10, Success: true, BatchSize: 3})
	m.RecordInference(ctx, &InferenceMetricParams{ModelName: "rf.json", Scheme: "ECFP", DurationMs: 30, Success: false})

	pm := m.(*prometheusIntelligenceMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.inferenceTotal.WithLabelValues("rf.json", "ECFP", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.inferenceRows.WithLabelValues("rf.json")))

	stats := m.GetCurrentStats()
	assert.Equal(t, int64(2), stats.TotalInferences)
	assert.Equal(t, int64(1), stats.FailedInferences)
	assert.InDelta(t, 20, stats.AvgInferenceLatencyMs, 1e-9)
}

func TestPrometheus_CacheAndEnrichment(t *testing.T) {
	m, err := NewPrometheusIntelligenceMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordCacheAccess(ctx, true, "local")
	m.RecordCacheAccess(ctx, false, "local")
	m.RecordCacheAccess(ctx, true, "redis")
	m.RecordEnrichment(ctx, EnrichmentFound, 120)
	m.RecordEnrichment(ctx, EnrichmentTimeout, 15000)
	m.RecordEnrichment(ctx, EnrichmentFound, 80)

	stats := m.GetCurrentStats()
	assert.InDelta(t, 2.0/3.0, stats.CacheHitRate, 1e-9)
	assert.Equal(t, map[string]int64{EnrichmentFound: 2, EnrichmentTimeout: 1}, stats.EnrichmentOutcomes)
}

func TestInMemory_Records(t *testing.T) {
	m := NewInMemoryIntelligenceMetrics()
	ctx := context.Background()

	m.RecordInference(ctx, &InferenceMetricParams{ModelName: "lr.json", DurationMs: 100, Success: true})
	m.RecordModelLoad(ctx, "lr.json", 5, true)
	m.RecordCacheAccess(ctx, false, "postgres")

	require.Len(t, m.Inferences(), 1)
	assert.Equal(t, "lr.json", m.Inferences()[0].ModelName)
	assert.Len(t, m.ModelLoads(), 1)
	assert.Equal(t, int64(1), m.CacheMisses())
	assert.Equal(t, int64(0), m.CacheHits())
	stats := m.GetCurrentStats()
	assert.Equal(t, int64(1), stats.TotalInferences)
	assert.Equal(t, 100.0, stats.P50LatencyMs)
	assert.Equal(t, 100.0, stats.AvgInferenceLatencyMs)
}

func TestNoop_AllMethods_NoPanic(t *testing.T) {
	m := NewNoopIntelligenceMetrics()
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordInference(ctx, &InferenceMetricParams{})
		m.RecordBatchProcessing(ctx, &BatchMetricParams{})
		m.RecordCacheAccess(ctx, true, "local")
		m.RecordEnrichment(ctx, EnrichmentError, 1)
		m.RecordModelLoad(ctx, "model", 100, true)
		m.GetCurrentStats()
	})
}

func TestLatencyHistogram_Percentile(t *testing.T) {
	h := newLatencyHistogram()
	assert.Zero(t, h.Percentile(50))
	for _, v := range []float64{5, 1, 4, 2, 3} {
		h.Observe(v)
	}
	assert.Equal(t, 1.0, h.Percentile(0))
	assert.Equal(t, 3.0, h.Percentile(50))
	assert.Equal(t, 5.0, h.Percentile(100))
	assert.InDelta(t, 4.6, h.Percentile(90), 1e-9)
	assert.Equal(t, 15.0, h.Sum())
	assert.Equal(t, int64(5), h.Count())
}

func TestLatencyHistogram_WindowIsBounded(t *testing.T) {
	h := newLatencyHistogram()
	for i := 0; i < latencyWindow; i++ {
		h.Observe(1000)
	}
	for i := 0; i < latencyWindow; i++ {
		h.Observe(1)
	}
	assert.Len(t, h.samples, latencyWindow)
	assert.Equal(t, 1.0, h.Percentile(99))
	assert.Equal(t, int64(2*latencyWindow), h.Count())
	assert.Equal(t, float64(1001*latencyWindow), h.Sum())
}
