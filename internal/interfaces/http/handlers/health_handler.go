package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/prometheus"
	intelligence "github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/common"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

const readinessTimeout = 5 * time.Second

// HealthChecker is an interface for components that can report their health.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

type checkerFunc struct {
	name  string
	check func(ctx context.Context) error
}

func (c checkerFunc) Name() string                    { return c.name }
func (c checkerFunc) Check(ctx context.Context) error { return c.check(ctx) }

// CheckerFunc adapts a probe function, such as a DB or Redis ping, to a
// HealthChecker.
func CheckerFunc(name string, check func(ctx context.Context) error) HealthChecker {
	return checkerFunc{name: name, check: check}
}

// RegistryChecker reports unhealthy while no model is loaded.
func RegistryChecker(count func() int) HealthChecker {
	return CheckerFunc("model_registry", func(context.Context) error {
		if count() == 0 {
			return errors.New(errors.ErrCodeModelNotFound, "no models loaded")
		}
		return nil
	})
}

// HealthHandler handles health check HTTP requests.
type HealthHandler struct {
	checkers []HealthChecker
	version  string
	startAt  time.Time
	metrics  *prometheus.AppMetrics
	stats    func() *intelligence.IntelligenceStats
}

// NewHealthHandler creates a new HealthHandler. metrics may be nil.
func NewHealthHandler(version string, metrics *prometheus.AppMetrics, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		version:  version,
		startAt:  time.Now(),
		metrics:  metrics,
	}
}

// WithPipelineStats reports inference and enrichment counters on /readyz.
func (h *HealthHandler) WithPipelineStats(stats func() *intelligence.IntelligenceStats) *HealthHandler {
	h.stats = stats
	return h
}

// RegisterRoutes registers health check routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Liveness)
	r.Get("/readyz", h.Readiness)
}

// LivenessResponse is the response for liveness probe.
type LivenessResponse struct {
	Status  common.HealthStatus `json:"status"`
	Version string              `json:"version"`
	Uptime  string              `json:"uptime"`
}

// ReadinessResponse is the response for readiness probe.
type ReadinessResponse struct {
	Status     common.HealthStatus               `json:"status"`
	Components map[string]common.ComponentHealth `json:"components,omitempty"`
	Pipeline   *intelligence.IntelligenceStats   `json:"pipeline,omitempty"`
}

// Liveness handles GET /healthz. It never touches dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  common.HealthUp,
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness handles GET /readyz: 200 when every checker passes, 503
// otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{Status: common.HealthUp}
	if h.stats != nil {
		resp.Pipeline = h.stats()
	}
	if len(h.checkers) == 0 {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp.Components = h.checkAll(ctx)
	for _, c := range resp.Components {
		if c.Status != common.HealthUp {
			resp.Status = common.HealthDown
			break
		}
	}

	if resp.Status == common.HealthUp {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, resp)
}

// checkAll runs all health checkers concurrently and returns results.
func (h *HealthHandler) checkAll(ctx context.Context) map[string]common.ComponentHealth {
	results := make(map[string]common.ComponentHealth, len(h.checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, checker := range h.checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)
			ch := common.ComponentHealth{
				Name:    c.Name(),
				Status:  common.HealthUp,
				Latency: time.Since(start),
			}
			if err != nil {
				ch.Status = common.HealthDown
				ch.Message = err.Error()
			}
			prometheus.RecordHealth(h.metrics, c.Name(), err == nil)

			mu.Lock()
			results[c.Name()] = ch
			mu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}
