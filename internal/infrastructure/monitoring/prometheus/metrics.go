package prometheus

import (
	"database/sql"
	"strconv"
	"time"
)

// AppMetrics holds the service-level metrics. Pipeline internals such as
// inference latency and cache hit rates are recorded by the intelligence
// layer on the same registry.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Prediction pipeline
	PredictionBatchesTotal   CounterVec
	PredictionBatchDuration  HistogramVec
	PredictionBatchSize      HistogramVec
	PredictionCategoriesTotal CounterVec

	// Models
	ModelsLoaded        GaugeVec
	ModelLifecycleTotal CounterVec

	// Infrastructure
	DBConnectionsOpen   GaugeVec
	DBConnectionsInUse  GaugeVec
	EventsPublishedTotal CounterVec

	// Health
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultBatchDurationBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	DefaultBatchSizeBuckets     = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	m.PredictionBatchesTotal = collector.RegisterCounter("prediction_batches_total", "Prediction batches by outcome", "method", "descriptor", "status")
	m.PredictionBatchDuration = collector.RegisterHistogram("prediction_batch_duration_seconds", "End-to-end prediction batch duration", DefaultBatchDurationBuckets, "method", "descriptor")
	m.PredictionBatchSize = collector.RegisterHistogram("prediction_batch_structures", "Structures per prediction batch after deduplication", DefaultBatchSizeBuckets, "source")
	m.PredictionCategoriesTotal = collector.RegisterCounter("prediction_results_total", "Composed prediction results by potency category", "category")

	m.ModelsLoaded = collector.RegisterGauge("models_loaded", "Estimators currently held by the model registry")
	m.ModelLifecycleTotal = collector.RegisterCounter("model_lifecycle_total", "Model lifecycle operations", "operation", "status")

	m.DBConnectionsOpen = collector.RegisterGauge("db_connections_open", "Open database connections", "db")
	m.DBConnectionsInUse = collector.RegisterGauge("db_connections_in_use", "Database connections in use", "db")
	m.EventsPublishedTotal = collector.RegisterCounter("events_published_total", "Domain events published", "topic", "status")

	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component and code", "component", "code")

	return m
}

// The helpers below accept a nil *AppMetrics so callers need no guards when
// metrics are disabled.

func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackActive increments the in-flight gauge and returns its decrement.
func TrackActive(m *AppMetrics, method string) func() {
	if m == nil {
		return func() {}
	}
	g := m.HTTPActiveRequests.WithLabelValues(method)
	g.Inc()
	return g.Dec
}

func RecordPredictionBatch(m *AppMetrics, method, descriptor, source string, structures int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.PredictionBatchesTotal.WithLabelValues(method, descriptor, status).Inc()
	m.PredictionBatchDuration.WithLabelValues(method, descriptor).Observe(duration.Seconds())
	if err == nil {
		m.PredictionBatchSize.WithLabelValues(source).Observe(float64(structures))
	}
}

func RecordCategories(m *AppMetrics, counts map[string]int) {
	if m == nil {
		return
	}
	for cat, n := range counts {
		m.PredictionCategoriesTotal.WithLabelValues(cat).Add(float64(n))
	}
}

func SetModelsLoaded(m *AppMetrics, n int) {
	if m == nil {
		return
	}
	m.ModelsLoaded.WithLabelValues().Set(float64(n))
}

func RecordModelOperation(m *AppMetrics, operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.ModelLifecycleTotal.WithLabelValues(operation, status).Inc()
}

func RecordEventPublish(m *AppMetrics, topic string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.EventsPublishedTotal.WithLabelValues(topic, status).Inc()
}

func RecordDBStats(m *AppMetrics, db string, stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.WithLabelValues(db).Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.WithLabelValues(db).Set(float64(stats.InUse))
}

func RecordHealth(m *AppMetrics, component string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

func RecordError(m *AppMetrics, component, code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}
