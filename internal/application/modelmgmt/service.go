// Package modelmgmt manages the lifecycle of trained potency estimators:
// upload, activation, deletion, and keeping the local model directory in
// step with object storage and with other replicas.
package modelmgmt

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/mlmodel"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/common"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/featurize"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	types "github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

// Service is the model administration use-case boundary.
type Service interface {
	Upload(ctx context.Context, in *UploadInput) (*mlmodel.Model, error)
	Activate(ctx context.Context, id uuid.UUID) (*mlmodel.Model, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*ModelView, error)
	List(ctx context.Context) ([]*ModelView, error)
	// Sync pulls mirrored artifacts into the model directory and loads
	// everything found there. It returns the number of loaded models.
	Sync(ctx context.Context) (int, error)
}

// Registry is the subset of the in-memory model registry used here.
type Registry interface {
	Load(ctx context.Context, id string) error
	LoadAll(ctx context.Context) (int, error)
	Unload(id string) bool
	Entry(id string) (*common.ModelEntry, bool)
	Path(id string) string
	Dir() string
	Len() int
}

// EventPublisher delivers lifecycle events. Publishing is best effort.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ev types.DomainEvent) error
}

// UploadInput is a new artifact and the pair it serves.
type UploadInput struct {
	Method     string
	Descriptor string
	FileName   string
	Body       io.Reader
}

// ModelView is a model row joined with its registry state.
type ModelView struct {
	*mlmodel.Model
	Loaded   bool   `json:"loaded"`
	Kind     string `json:"kind,omitempty"`
	Features int    `json:"features,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// Dependencies wires the service. Mirror, Publisher and Metrics are
// optional.
type Dependencies struct {
	Models    mlmodel.Repository
	Registry  Registry
	Mirror    minio.ArtifactMirror
	Publisher EventPublisher
	Metrics   *prometheus.AppMetrics
	Logger    logging.Logger
}

type serviceImpl struct {
	models    mlmodel.Repository
	registry  Registry
	mirror    minio.ArtifactMirror
	publisher EventPublisher
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
}

// NewService creates the model administration service.
func NewService(deps Dependencies) Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{
		models:    deps.Models,
		registry:  deps.Registry,
		mirror:    deps.Mirror,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    logger.Named("modelmgmt"),
	}
}

// ArtifactName derives the on-disk name of an uploaded artifact. The model
// id keeps names unique across versions of the same pair.
func ArtifactName(m *mlmodel.Model, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	return fmt.Sprintf("%s_%s_%s%s",
		strings.ToLower(m.Method), strings.ToLower(m.Descriptor), m.ID.String()[:8], ext)
}

// Upload stores the artifact, proves it loads, records it inactive and
// mirrors it. Any failure before the row exists leaves no file behind.
func (s *serviceImpl) Upload(ctx context.Context, in *UploadInput) (m *mlmodel.Model, err error) {
	defer func() { s.recordOp("upload", err) }()

	method := strings.TrimSpace(in.Method)
	if method == "" || strings.TrimSpace(in.Descriptor) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "method and descriptor are required.")
	}
	scheme, err := featurize.ParseScheme(in.Descriptor)
	if err != nil {
		return nil, err
	}
	if in.Body == nil || in.FileName == "" {
		return nil, errors.New(errors.ErrCodeValidation, "A model file is required.")
	}
	if !common.SupportedArtifact(in.FileName) {
		return nil, errors.New(errors.ErrCodeModelFormatUnsupported, "Unsupported model format.").
			WithDetail(in.FileName)
	}

	m = mlmodel.NewModel(method, string(scheme), "")
	m.FileName = ArtifactName(m, in.FileName)

	if err = s.writeArtifact(m.FileName, in.Body); err != nil {
		return nil, err
	}
	if err = s.registry.Load(ctx, m.FileName); err != nil {
		s.removeArtifact(m.FileName)
		return nil, err
	}
	if err = s.models.Create(ctx, m); err != nil {
		s.registry.Unload(m.FileName)
		s.removeArtifact(m.FileName)
		return nil, err
	}

	if s.mirror != nil {
		if merr := s.mirror.Put(ctx, m.FileName, s.registry.Path(m.FileName)); merr != nil {
			s.logger.Warn("failed to mirror model artifact",
				logging.String("model", m.FileName), logging.Err(merr))
		}
	}
	prometheus.SetModelsLoaded(s.metrics, s.registry.Len())
	s.publish(ctx, mlmodel.NewLifecycleEvent(mlmodel.EventModelUploaded, m))

	s.logger.Info("model uploaded",
		logging.String("model_id", m.ID.String()),
		logging.String("name", m.Name),
		logging.String("file", m.FileName))
	return m, nil
}

func (s *serviceImpl) writeArtifact(name string, body io.Reader) error {
	dir := s.registry.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "create model directory")
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "create artifact file")
	}
	_, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(copyErr, errors.ErrCodeStorageError, "write artifact file")
	}
	if err := os.Rename(tmp.Name(), s.registry.Path(name)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, errors.ErrCodeStorageError, "install artifact file")
	}
	return nil
}

func (s *serviceImpl) removeArtifact(name string) {
	if err := os.Remove(s.registry.Path(name)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove model artifact", logging.String("model", name), logging.Err(err))
	}
}

// Activate makes id the active model of its pair. The artifact is loaded
// first when this replica has not seen it yet.
func (s *serviceImpl) Activate(ctx context.Context, id uuid.UUID) (m *mlmodel.Model, err error) {
	defer func() { s.recordOp("activate", err) }()

	current, err := s.models.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := s.registry.Entry(current.FileName); !ok {
		if err = s.registry.Load(ctx, current.FileName); err != nil {
			return nil, err
		}
	}
	m, err = s.models.Activate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, mlmodel.NewLifecycleEvent(mlmodel.EventModelActivated, m))
	s.logger.Info("model activated", logging.String("model_id", id.String()), logging.String("name", m.Name))
	return m, nil
}

// Delete removes every trace of id: registry entry, local file, mirrored
// object and row.
func (s *serviceImpl) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { s.recordOp("delete", err) }()

	m, err := s.models.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err = s.models.Delete(ctx, id); err != nil {
		return err
	}
	s.registry.Unload(m.FileName)
	s.removeArtifact(m.FileName)
	if s.mirror != nil {
		if merr := s.mirror.Remove(ctx, m.FileName); merr != nil {
			s.logger.Warn("failed to remove mirrored artifact",
				logging.String("model", m.FileName), logging.Err(merr))
		}
	}
	prometheus.SetModelsLoaded(s.metrics, s.registry.Len())
	s.publish(ctx, mlmodel.NewLifecycleEvent(mlmodel.EventModelDeleted, m))
	s.logger.Info("model deleted", logging.String("model_id", id.String()), logging.String("name", m.Name))
	return nil
}

func (s *serviceImpl) Get(ctx context.Context, id uuid.UUID) (*ModelView, error) {
	m, err := s.models.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(m), nil
}

func (s *serviceImpl) List(ctx context.Context) ([]*ModelView, error) {
	models, err := s.models.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*ModelView, len(models))
	for i, m := range models {
		out[i] = s.view(m)
	}
	return out, nil
}

func (s *serviceImpl) view(m *mlmodel.Model) *ModelView {
	v := &ModelView{Model: m}
	if e, ok := s.registry.Entry(m.FileName); ok {
		v.Loaded = true
		v.Kind = e.Kind
		v.Features = e.Features
		v.Checksum = e.Checksum
	}
	return v
}

// Sync tolerates an unreachable mirror: whatever is already on disk still
// gets loaded.
func (s *serviceImpl) Sync(ctx context.Context) (int, error) {
	if s.mirror != nil {
		if err := os.MkdirAll(s.registry.Dir(), 0o755); err != nil {
			return 0, errors.Wrap(err, errors.ErrCodeStorageError, "create model directory")
		}
		fetched, err := s.mirror.SyncTo(ctx, s.registry.Dir())
		if err != nil {
			s.logger.Warn("model mirror sync failed", logging.Err(err))
		} else if len(fetched) > 0 {
			s.logger.Info("fetched mirrored models", logging.Strings("models", fetched))
		}
	}
	n, err := s.registry.LoadAll(ctx)
	prometheus.SetModelsLoaded(s.metrics, s.registry.Len())
	return n, err
}

func (s *serviceImpl) publish(ctx context.Context, ev *mlmodel.LifecycleEvent) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishEvent(ctx, kafka.TopicModelLifecycle, ev)
	prometheus.RecordEventPublish(s.metrics, kafka.TopicModelLifecycle, err)
	if err != nil {
		s.logger.Warn("failed to publish model event",
			logging.String("event", ev.EventType()),
			logging.String("model_id", ev.AggregateID()),
			logging.Err(err))
	}
}

func (s *serviceImpl) recordOp(op string, err error) {
	prometheus.RecordModelOperation(s.metrics, op, err)
	if err != nil {
		prometheus.RecordError(s.metrics, "modelmgmt", string(errors.GetCode(err)))
	}
}
