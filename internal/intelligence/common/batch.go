package common

import (
	"context"
	stdliberrors "errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// ---------------------------------------------------------------------------
// ItemStatus enumeration
// ---------------------------------------------------------------------------

// ItemStatus represents the outcome of a single batch item.
type ItemStatus int

const (
	ItemStatusSuccess   ItemStatus = iota // processing completed successfully
	ItemStatusFailed                      // processing returned an error or panicked
	ItemStatusTimeout                     // processing exceeded its timeout
	ItemStatusCancelled                   // the batch context was cancelled
)

// String returns the human-readable representation of an ItemStatus.
func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "SUCCESS"
	case ItemStatusFailed:
		return "FAILED"
	case ItemStatusTimeout:
		return "TIMEOUT"
	case ItemStatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ---------------------------------------------------------------------------
// Generic types
// ---------------------------------------------------------------------------

// ProcessFunc processes a single item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ItemResult holds the outcome of one item. Index is the item's position in
// the input slice.
type ItemResult[R any] struct {
	Index      int        `json:"index"`
	Result     R          `json:"result"`
	Error      error      `json:"error,omitempty"`
	DurationMs float64    `json:"duration_ms"`
	Status     ItemStatus `json:"status"`
}

// OK reports whether the item succeeded.
func (r *ItemResult[R]) OK() bool { return r.Status == ItemStatusSuccess }

// BatchResult aggregates a whole run. Results are in input order.
type BatchResult[R any] struct {
	Results           []*ItemResult[R] `json:"results"`
	TotalCount        int              `json:"total_count"`
	SuccessCount      int              `json:"success_count"`
	FailureCount      int              `json:"failure_count"`
	TotalDurationMs   float64          `json:"total_duration_ms"`
	AvgItemDurationMs float64          `json:"avg_item_duration_ms"`
}

// FirstError returns the error of the lowest-indexed failed item.
func (b *BatchResult[R]) FirstError() (int, error) {
	for _, r := range b.Results {
		if r.Status != ItemStatusSuccess {
			return r.Index, r.Error
		}
	}
	return -1, nil
}

// BatchProcessor runs a function over a slice on a bounded pool of
// goroutines.
type BatchProcessor[T, R any] interface {
	// Process executes fn for every item. Per-item failures, timeouts and
	// panics are reported in the returned results, never as the error.
	Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*BatchResult[R], error)
}

// ---------------------------------------------------------------------------
// RetryPolicy
// ---------------------------------------------------------------------------

// RetryPolicy governs how failed items are retried.
type RetryPolicy struct {
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	InitialBackoff    time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        time.Duration `json:"max_backoff" yaml:"max_backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	RetryableErrors   []error       `json:"-" yaml:"-"`
	// Retryable, when set, decides instead of RetryableErrors.
	Retryable         func(error) bool `json:"-" yaml:"-"`
}

// ShouldRetry decides whether err is eligible for another attempt. With no
// explicit list every error except cancellation is retryable.
func (p *RetryPolicy) ShouldRetry(err error) bool {
	if p == nil || err == nil {
		return false
	}
	if stdliberrors.Is(err, context.Canceled) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	if len(p.RetryableErrors) == 0 {
		return true
	}
	for _, re := range p.RetryableErrors {
		if stdliberrors.Is(err, re) {
			return true
		}
	}
	return false
}

// Backoff returns the delay before the attempt-th retry (0-based): exponential
// growth with ±25% jitter, capped at MaxBackoff.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if p == nil || p.InitialBackoff <= 0 {
		return 0
	}
	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	base := float64(p.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if p.MaxBackoff > 0 && base > float64(p.MaxBackoff) {
		base = float64(p.MaxBackoff)
	}
	jitter := base * 0.25 * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// ---------------------------------------------------------------------------
// BatchOption functional options
// ---------------------------------------------------------------------------

type batchConfig struct {
	name           string
	maxConcurrency int
	itemTimeout    time.Duration
	batchTimeout   time.Duration
	retryPolicy    *RetryPolicy
	metrics        IntelligenceMetrics
	logger         logging.Logger
}

func defaultBatchConfig() *batchConfig {
	return &batchConfig{
		name:           "batch",
		maxConcurrency: runtime.NumCPU(),
	}
}

// BatchOption configures a batchProcessor.
type BatchOption func(*batchConfig)

// WithBatchName labels the processor in metrics and logs.
func WithBatchName(name string) BatchOption {
	return func(c *batchConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithMaxConcurrency sets the maximum number of items processed concurrently.
func WithMaxConcurrency(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithItemTimeout bounds each attempt of each item. Zero means no bound.
func WithItemTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.itemTimeout = d
		}
	}
}

// WithBatchTimeout bounds the whole run. Zero means no bound.
func WithBatchTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.batchTimeout = d
		}
	}
}

// WithRetryPolicy configures exponential retries for failed items. A nil
// retryable retries every error except cancellation.
func WithRetryPolicy(maxRetries int, backoff time.Duration, retryable func(error) bool) BatchOption {
	return func(c *batchConfig) {
		if maxRetries > 0 {
			c.retryPolicy = &RetryPolicy{
				MaxRetries:        maxRetries,
				InitialBackoff:    backoff,
				MaxBackoff:        backoff * 16,
				BackoffMultiplier: 2.0,
				Retryable:         retryable,
			}
		}
	}
}

// WithBatchMetrics injects a metrics collector.
func WithBatchMetrics(m IntelligenceMetrics) BatchOption {
	return func(c *batchConfig) {
		c.metrics = m
	}
}

// WithBatchLogger injects a logger.
func WithBatchLogger(l logging.Logger) BatchOption {
	return func(c *batchConfig) {
		c.logger = l
	}
}

// ---------------------------------------------------------------------------
// batchProcessor implementation
// ---------------------------------------------------------------------------

type batchProcessor[T, R any] struct {
	cfg *batchConfig
}

// NewBatchProcessor creates a BatchProcessor with the supplied options.
func NewBatchProcessor[T, R any](opts ...BatchOption) BatchProcessor[T, R] {
	cfg := defaultBatchConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.metrics == nil {
		cfg.metrics = NewNoopIntelligenceMetrics()
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNopLogger()
	}
	return &batchProcessor[T, R]{cfg: cfg}
}

func (bp *batchProcessor[T, R]) Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*BatchResult[R], error) {
	if fn == nil {
		return nil, errors.New(errors.ErrCodeValidation, "process function must not be nil")
	}
	n := len(items)
	if n == 0 {
		return &BatchResult[R]{Results: []*ItemResult[R]{}}, nil
	}

	batchStart := time.Now()
	batchCtx := ctx
	if bp.cfg.batchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, bp.cfg.batchTimeout)
		defer cancel()
	}

	results := make([]*ItemResult[R], n)
	sem := semaphore.NewWeighted(int64(bp.cfg.maxConcurrency))
	var g errgroup.Group

	for i := range items {
		if err := sem.Acquire(batchCtx, 1); err != nil {
			for j := i; j < n; j++ {
				results[j] = &ItemResult[R]{Index: j, Error: batchCtx.Err(), Status: classifyCtxError(batchCtx.Err())}
			}
			break
		}
		idx, item := i, items[i]
		g.Go(func() error {
			defer sem.Release(1)
			results[idx] = bp.processOneItem(batchCtx, idx, item, fn)
			return nil
		})
	}
	_ = g.Wait()

	br := buildBatchResult(results, time.Since(batchStart))
	bp.record(ctx, results, br)
	return br, nil
}

func (bp *batchProcessor[T, R]) record(ctx context.Context, results []*ItemResult[R], br *BatchResult[R]) {
	p := &BatchMetricParams{
		BatchName:         bp.cfg.name,
		TotalItems:        br.TotalCount,
		TotalDurationMs:   br.TotalDurationMs,
		AvgItemDurationMs: br.AvgItemDurationMs,
		MaxConcurrency:    bp.cfg.maxConcurrency,
	}
	for _, r := range results {
		switch r.Status {
		case ItemStatusSuccess:
			p.SuccessItems++
		case ItemStatusTimeout:
			p.TimeoutItems++
		case ItemStatusCancelled:
			p.CancelledItems++
		default:
			p.FailedItems++
		}
	}
	bp.cfg.metrics.RecordBatchProcessing(ctx, p)
	if br.FailureCount > 0 {
		bp.cfg.logger.Debug("batch finished with failures",
			logging.String("batch", bp.cfg.name),
			logging.Int("total", br.TotalCount),
			logging.Int("failed", br.FailureCount))
	}
}

func (bp *batchProcessor[T, R]) processOneItem(batchCtx context.Context, idx int, item T, fn ProcessFunc[T, R]) *ItemResult[R] {
	itemStart := time.Now()

	maxAttempts := 1
	if bp.cfg.retryPolicy != nil && bp.cfg.retryPolicy.MaxRetries > 0 {
		maxAttempts = 1 + bp.cfg.retryPolicy.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if delay := bp.cfg.retryPolicy.Backoff(attempt - 1); delay > 0 {
				select {
				case <-batchCtx.Done():
					return &ItemResult[R]{
						Index:      idx,
						Error:      batchCtx.Err(),
						Status:     classifyCtxError(batchCtx.Err()),
						DurationMs: msSince(itemStart),
					}
				case <-time.After(delay):
				}
			}
		}

		result, err := bp.attempt(batchCtx, item, fn)
		if err == nil {
			return &ItemResult[R]{
				Index:      idx,
				Result:     result,
				Status:     ItemStatusSuccess,
				DurationMs: msSince(itemStart),
			}
		}
		lastErr = err
		if !bp.cfg.retryPolicy.ShouldRetry(err) {
			break
		}
	}

	return &ItemResult[R]{
		Index:      idx,
		Error:      lastErr,
		Status:     classifyError(batchCtx, lastErr),
		DurationMs: msSince(itemStart),
	}
}

// attempt runs fn once under the item timeout, converting a panic into an
// error.
func (bp *batchProcessor[T, R]) attempt(batchCtx context.Context, item T, fn ProcessFunc[T, R]) (result R, err error) {
	itemCtx := batchCtx
	if bp.cfg.itemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(batchCtx, bp.cfg.itemTimeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf(errors.ErrCodeInternal, "worker panic: %v", rec)
			bp.cfg.logger.Error("recovered panic in batch worker",
				logging.String("batch", bp.cfg.name),
				logging.Any("panic", rec))
		}
	}()
	return fn(itemCtx, item)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func buildBatchResult[R any](results []*ItemResult[R], totalDuration time.Duration) *BatchResult[R] {
	br := &BatchResult[R]{
		Results:         results,
		TotalCount:      len(results),
		TotalDurationMs: float64(totalDuration.Microseconds()) / 1000.0,
	}
	var sumItemMs float64
	for _, r := range results {
		if r.Status == ItemStatusSuccess {
			br.SuccessCount++
		} else {
			br.FailureCount++
		}
		sumItemMs += r.DurationMs
	}
	if br.TotalCount > 0 {
		br.AvgItemDurationMs = sumItemMs / float64(br.TotalCount)
	}
	return br
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

func classifyCtxError(err error) ItemStatus {
	switch {
	case err == nil:
		return ItemStatusSuccess
	case stdliberrors.Is(err, context.DeadlineExceeded):
		return ItemStatusTimeout
	default:
		return ItemStatusCancelled
	}
}

func classifyError(batchCtx context.Context, err error) ItemStatus {
	switch {
	case err == nil:
		return ItemStatusSuccess
	case stdliberrors.Is(err, context.DeadlineExceeded):
		return ItemStatusTimeout
	case stdliberrors.Is(err, context.Canceled):
		return ItemStatusCancelled
	case batchCtx.Err() != nil:
		return classifyCtxError(batchCtx.Err())
	}
	return ItemStatusFailed
}
