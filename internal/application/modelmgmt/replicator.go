package modelmgmt

import (
	"context"
	"os"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/mlmodel"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/storage/minio"
)

// Replicator applies model lifecycle events published by other replicas to
// the local registry.
type Replicator struct {
	registry Registry
	mirror   minio.ArtifactMirror
	source   string
	logger   logging.Logger
}

// NewReplicator returns a Replicator that ignores events whose envelope
// source is source.
func NewReplicator(registry Registry, mirror minio.ArtifactMirror, source string, logger logging.Logger) *Replicator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Replicator{
		registry: registry,
		mirror:   mirror,
		source:   source,
		logger:   logger.Named("model-replicator"),
	}
}

// Handle is a kafka.MessageHandler for the model lifecycle topic. Malformed
// messages are dropped; load failures are returned so the consumer retries.
func (r *Replicator) Handle(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		r.logger.Warn("dropping malformed lifecycle message", logging.Err(err))
		return nil
	}
	if env.Source == r.source {
		return nil
	}
	var ev mlmodel.LifecycleEvent
	if err := env.DecodePayload(&ev); err != nil || ev.FileName == "" {
		r.logger.Warn("dropping lifecycle event without artifact",
			logging.String("event_id", env.EventID), logging.Err(err))
		return nil
	}

	switch env.EventType {
	case mlmodel.EventModelUploaded, mlmodel.EventModelActivated:
		if env.EventType == mlmodel.EventModelActivated {
			if _, ok := r.registry.Entry(ev.FileName); ok {
				return nil
			}
		}
		if err := r.fetch(ctx, ev.FileName); err != nil {
			return err
		}
		return r.registry.Load(ctx, ev.FileName)
	case mlmodel.EventModelDeleted:
		r.registry.Unload(ev.FileName)
		if err := os.Remove(r.registry.Path(ev.FileName)); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("failed to remove model artifact", logging.String("model", ev.FileName), logging.Err(err))
		}
		return nil
	default:
		r.logger.Debug("ignoring lifecycle event", logging.String("event_type", env.EventType))
		return nil
	}
}

func (r *Replicator) fetch(ctx context.Context, name string) error {
	if _, err := os.Stat(r.registry.Path(name)); err == nil || r.mirror == nil {
		return nil
	}
	fetched, err := r.mirror.SyncTo(ctx, r.registry.Dir())
	if err != nil {
		return err
	}
	r.logger.Info("fetched mirrored models", logging.Strings("models", fetched))
	return nil
}
