// Package potency scores batches of structures with a registered estimator.
package potency

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/common"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/featurize"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// Engine encodes a batch of structures and runs a single estimator call over
// the stacked feature matrix.
type Engine struct {
	encoder *featurize.Encoder
	models  *common.ModelRegistry
	metrics common.IntelligenceMetrics
	logger  logging.Logger
	workers int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEncodeWorkers bounds the number of structures encoded concurrently.
func WithEncodeWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithMetrics injects a metrics sink.
func WithMetrics(m common.IntelligenceMetrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger injects a logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine wires an Engine to its encoder and model registry.
func NewEngine(encoder *featurize.Encoder, models *common.ModelRegistry, opts ...EngineOption) *Engine {
	e := &Engine{
		encoder: encoder,
		models:  models,
		metrics: common.NewNoopIntelligenceMetrics(),
		logger:  logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.Named("potency")
	return e
}

// Predict returns one potency per structure, aligned with the input. A
// single structure that fails to encode aborts the whole batch with an error
// naming the first such structure.
func (e *Engine) Predict(ctx context.Context, structures []string, modelID string, scheme featurize.Scheme) ([]float64, error) {
	est, ok := e.models.Get(modelID)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeModelNotFound, "Model '%s' not found or failed to load.", modelID)
	}
	if !scheme.Valid() {
		return nil, errors.New(errors.ErrCodeEncodingUnavailable, "Unsupported model descriptor.").WithDetail(string(scheme))
	}
	if _, err := e.encoder.Masks().Mask(scheme); err != nil {
		return nil, err
	}
	if len(structures) == 0 {
		return []float64{}, nil
	}

	matrix, err := e.encodeAll(ctx, structures, scheme)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	y, err := e.infer(est, matrix)
	e.metrics.RecordInference(ctx, &common.InferenceMetricParams{
		ModelName:  modelID,
		Scheme:     scheme.String(),
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
		Success:    err == nil,
		BatchSize:  len(matrix),
	})
	if err != nil {
		e.logger.Error("inference failed", logging.String("model", modelID), logging.Err(err))
		return nil, err
	}
	return y, nil
}

func (e *Engine) encodeAll(ctx context.Context, structures []string, scheme featurize.Scheme) ([][]float64, error) {
	bp := common.NewBatchProcessor[string, []float64](
		common.WithBatchName("encode"),
		common.WithMaxConcurrency(e.workers),
		common.WithBatchMetrics(e.metrics),
		common.WithBatchLogger(e.logger),
	)
	res, err := bp.Process(ctx, structures, func(_ context.Context, smi string) ([]float64, error) {
		vec, ok := e.encoder.Encode(smi, scheme)
		if !ok {
			return nil, errors.New(errors.ErrCodeMoleculeInvalidSMILES, "Invalid SMILES input of "+smi)
		}
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	if idx, firstErr := res.FirstError(); idx >= 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.IsCode(firstErr, errors.ErrCodeMoleculeInvalidSMILES) {
			return nil, firstErr
		}
		return nil, errors.Wrap(firstErr, errors.ErrCodeMoleculeInvalidSMILES, "Invalid SMILES input of "+structures[idx])
	}

	matrix := make([][]float64, len(structures))
	for i, r := range res.Results {
		matrix[i] = r.Result
	}
	return matrix, nil
}

func (e *Engine) infer(est common.Estimator, matrix [][]float64) ([]float64, error) {
	width := len(matrix[0])
	if want := est.NumFeatures(); want != 0 && want != width {
		return nil, errors.Newf(errors.ErrCodeInferenceFailed,
			"model expects %d features but encoder produced %d", want, width)
	}
	y, err := est.Predict(matrix)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInferenceFailed, "estimator failed")
	}
	if len(y) != len(matrix) {
		return nil, errors.New(errors.ErrCodeInferenceFailed,
			fmt.Sprintf("estimator returned %d values for %d structures", len(y), len(matrix)))
	}
	if !common.AllFinite(y) {
		return nil, errors.New(errors.ErrCodeInferenceFailed, "estimator returned a non-finite value")
	}
	return y, nil
}
