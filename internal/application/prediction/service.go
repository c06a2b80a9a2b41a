package prediction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/mlmodel"
	domain "github.com/turtacn/AntiMalaria-Intelligence/internal/domain/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/featurize"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

// Service is the prediction use-case boundary used by the HTTP and CLI
// layers.
type Service interface {
	RunBatch(ctx context.Context, in *BatchInput) (*domain.Batch, error)
	ExportCSV(ctx context.Context, id uuid.UUID, requester Requester) ([]byte, error)
	List(ctx context.Context, requester Requester, page common.Pagination) (*common.PageResponse[*domain.Batch], error)
	Get(ctx context.Context, id uuid.UUID, requester Requester) (*domain.Batch, error)
	Delete(ctx context.Context, id uuid.UUID, requester Requester) error

	// ListResults pages through single results; a non-nil predictionID
	// restricts the page to one batch.
	ListResults(ctx context.Context, requester Requester, predictionID uuid.UUID, page common.Pagination) (*common.PageResponse[*domain.ResultRecord], error)
	GetResult(ctx context.Context, id uuid.UUID, requester Requester) (*domain.ResultRecord, error)
	DeleteResult(ctx context.Context, id uuid.UUID, requester Requester) error
	// Library lists the distinct structures the requester has predicted.
	Library(ctx context.Context, requester Requester, page common.Pagination) (*common.PageResponse[*compound.LibraryEntry], error)
}

// Requester identifies the caller of an ownership-scoped operation.
type Requester struct {
	UserID  string
	IsAdmin bool
}

// CanAccess reports whether r may see b.
func (r Requester) CanAccess(b *domain.Batch) bool {
	return r.IsAdmin || b.OwnedBy(r.UserID)
}

// CanAccessResult reports whether r may see rec.
func (r Requester) CanAccessResult(rec *domain.ResultRecord) bool {
	return r.IsAdmin || rec.OwnedBy(r.UserID)
}

// owner is the user filter for listings: empty for admins, the caller's id
// otherwise.
func (r Requester) owner() (string, error) {
	if r.IsAdmin {
		return "", nil
	}
	if r.UserID == "" {
		return "", errors.Unauthorized("authentication required")
	}
	return r.UserID, nil
}

// Predictor runs the estimator over a batch of structures.
type Predictor interface {
	Predict(ctx context.Context, structures []string, modelID string, scheme featurize.Scheme) ([]float64, error)
}

// Enricher attaches reference records to structures.
type Enricher interface {
	Enrich(ctx context.Context, structures []string) map[string]*compound.ReferenceRecord
}

// EventPublisher delivers domain events. Publishing is best effort.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ev common.DomainEvent) error
}

// Dependencies wires the service. Publisher and Metrics are optional.
type Dependencies struct {
	Models      mlmodel.Repository
	Predictions domain.Repository
	Compounds   compound.Repository
	Engine      Predictor
	Enricher    Enricher
	Composer    *Composer
	Publisher   EventPublisher
	Metrics     *prometheus.AppMetrics
	Logger      logging.Logger
	// MaxStructures caps a batch after deduplication; zero means no cap.
	MaxStructures int
	// MaxSMILESLength caps each structure string; zero means no cap.
	MaxSMILESLength int
}

type serviceImpl struct {
	models        mlmodel.Repository
	predictions   domain.Repository
	compounds     compound.Repository
	engine        Predictor
	enricher      Enricher
	composer      *Composer
	publisher     EventPublisher
	metrics       *prometheus.AppMetrics
	logger        logging.Logger
	maxStructures int
	maxLength     int
}

// NewService creates the prediction service.
func NewService(deps Dependencies) Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	composer := deps.Composer
	if composer == nil {
		composer = NewComposer(0, logger)
	}
	return &serviceImpl{
		models:        deps.Models,
		predictions:   deps.Predictions,
		compounds:     deps.Compounds,
		engine:        deps.Engine,
		enricher:      deps.Enricher,
		composer:      composer,
		publisher:     deps.Publisher,
		metrics:       deps.Metrics,
		logger:        logger.Named("prediction"),
		maxStructures: deps.MaxStructures,
		maxLength:     deps.MaxSMILESLength,
	}
}

// RunBatch validates the input, predicts, enriches and composes every
// structure, then persists the batch in one transaction. An invalid
// structure aborts the batch before anything is stored.
func (s *serviceImpl) RunBatch(ctx context.Context, in *BatchInput) (batch *domain.Batch, err error) {
	start := time.Now()
	var (
		source     domain.InputSource
		structures []string
	)
	defer func() {
		prometheus.RecordPredictionBatch(s.metrics, in.ModelMethod, in.ModelDescriptor, string(source), len(structures), time.Since(start), err)
		if err != nil {
			prometheus.RecordError(s.metrics, "prediction", string(errors.GetCode(err)))
		}
	}()

	if err = in.Validate(); err != nil {
		return nil, err
	}
	structures, source, err = in.Structures()
	if err != nil {
		return nil, err
	}
	if s.maxStructures > 0 && len(structures) > s.maxStructures {
		return nil, errors.Newf(errors.ErrCodePredictionTooLarge,
			"A batch may contain at most %d distinct SMILES strings.", s.maxStructures)
	}
	if err = CheckLength(structures, s.maxLength); err != nil {
		return nil, err
	}

	model, err := s.models.GetActive(ctx, in.ModelMethod, in.ModelDescriptor)
	if err != nil {
		return nil, err
	}
	scheme, err := featurize.ParseScheme(model.Descriptor)
	if err != nil {
		return nil, err
	}

	potencies, err := s.engine.Predict(ctx, structures, model.FileName, scheme)
	if err != nil {
		return nil, err
	}

	records := s.enricher.Enrich(ctx, structures)

	results, err := s.composer.ComposeAll(ctx, structures, potencies, records)
	if err != nil {
		return nil, err
	}

	batch = domain.NewBatch(in.UserID, model.ID, source)
	batch.Complete(results)
	if err = s.predictions.SaveBatch(ctx, batch); err != nil {
		return nil, err
	}

	ev := domain.NewCompletedEvent(batch)
	prometheus.RecordCategories(s.metrics, ev.Categories)
	s.publish(ctx, ev)

	s.logger.Info("prediction batch completed",
		logging.String("prediction_id", batch.ID.String()),
		logging.String("model", model.Name),
		logging.String("source", string(source)),
		logging.Int("structures", len(structures)),
		logging.Duration("elapsed", time.Since(start)))
	return batch, nil
}

func (s *serviceImpl) publish(ctx context.Context, ev *domain.CompletedEvent) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishEvent(ctx, domain.EventPredictionCompleted, ev)
	prometheus.RecordEventPublish(s.metrics, domain.EventPredictionCompleted, err)
	if err != nil {
		s.logger.Warn("failed to publish prediction event",
			logging.String("prediction_id", ev.AggregateID()),
			logging.Err(err))
	}
}

func (s *serviceImpl) List(ctx context.Context, requester Requester, page common.Pagination) (*common.PageResponse[*domain.Batch], error) {
	owner, err := requester.owner()
	if err != nil {
		return nil, err
	}
	page = page.Normalize()
	items, total, err := s.predictions.List(ctx, domain.ListFilter{UserID: owner, Pagination: page})
	if err != nil {
		return nil, err
	}
	resp := common.NewPageResponse(items, total, page)
	return &resp, nil
}

// Get returns the batch when the requester may see it. Batches owned by
// someone else are reported as missing.
func (s *serviceImpl) Get(ctx context.Context, id uuid.UUID, requester Requester) (*domain.Batch, error) {
	b, err := s.predictions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(b) {
		return nil, errors.New(errors.ErrCodePredictionNotFound, "Prediction not found.")
	}
	return b, nil
}

func (s *serviceImpl) Delete(ctx context.Context, id uuid.UUID, requester Requester) error {
	if _, err := s.Get(ctx, id, requester); err != nil {
		return err
	}
	if err := s.predictions.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("prediction deleted", logging.String("prediction_id", id.String()), logging.String("by", requester.UserID))
	return nil
}

func (s *serviceImpl) ListResults(ctx context.Context, requester Requester, predictionID uuid.UUID, page common.Pagination) (*common.PageResponse[*domain.ResultRecord], error) {
	owner, err := requester.owner()
	if err != nil {
		return nil, err
	}
	page = page.Normalize()
	items, total, err := s.predictions.ListResults(ctx, domain.ResultFilter{
		UserID:       owner,
		PredictionID: predictionID,
		Pagination:   page,
	})
	if err != nil {
		return nil, err
	}
	resp := common.NewPageResponse(items, total, page)
	return &resp, nil
}

// GetResult returns one stored result. Results of someone else's batch are
// reported as missing.
func (s *serviceImpl) GetResult(ctx context.Context, id uuid.UUID, requester Requester) (*domain.ResultRecord, error) {
	rec, err := s.predictions.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccessResult(rec) {
		return nil, errors.New(errors.ErrCodeResultNotFound, "Prediction compound not found.")
	}
	return rec, nil
}

func (s *serviceImpl) DeleteResult(ctx context.Context, id uuid.UUID, requester Requester) error {
	rec, err := s.GetResult(ctx, id, requester)
	if err != nil {
		return err
	}
	if err := s.predictions.DeleteResult(ctx, id); err != nil {
		return err
	}
	s.logger.Info("prediction compound deleted",
		logging.String("result_id", id.String()),
		logging.String("prediction_id", rec.PredictionID.String()),
		logging.String("by", requester.UserID))
	return nil
}

func (s *serviceImpl) Library(ctx context.Context, requester Requester, page common.Pagination) (*common.PageResponse[*compound.LibraryEntry], error) {
	owner, err := requester.owner()
	if err != nil {
		return nil, err
	}
	if s.compounds == nil {
		return nil, errors.New(errors.ErrCodeInternal, "compound library is not configured")
	}
	page = page.Normalize()
	items, total, err := s.compounds.Library(ctx, compound.LibraryFilter{UserID: owner, Pagination: page})
	if err != nil {
		return nil, err
	}
	resp := common.NewPageResponse(items, total, page)
	return &resp, nil
}
