package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/application/enrichment"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/application/modelmgmt"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/application/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/config"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/auth/token"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/chemdb/pubchem"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/common"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/featurize"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/potency"
	httpserver "github.com/turtacn/AntiMalaria-Intelligence/internal/interfaces/http"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/interfaces/http/middleware"
)

// app owns every long-lived component of the server process.
type app struct {
	cfg    *config.Config
	logger logging.Logger

	collector prometheus.MetricsCollector
	metrics   *prometheus.AppMetrics

	conn     *postgres.Connection
	redis    *redis.Client
	minio    *minio.MinIOClient
	producer *kafka.Producer
	consumer *kafka.Consumer

	registry *common.ModelRegistry
	intel    common.IntelligenceMetrics
	server   *httpserver.Server

	checkers []handlers.HealthChecker
}

// newApp connects the infrastructure, loads masks and models, and builds
// the HTTP server. Optional backends (Redis, MinIO, Kafka) are skipped when
// disabled in cfg. On error everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	intel := common.NewNoopIntelligenceMetrics()
	if cfg.Metrics.Enabled {
		a.collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			Subsystem:            cfg.Metrics.Subsystem,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("metrics collector: %w", err)
		}
		a.metrics = prometheus.NewAppMetrics(a.collector)
		if intel, err = common.NewPrometheusIntelligenceMetrics(a.collector.Registerer()); err != nil {
			return nil, fmt.Errorf("pipeline metrics: %w", err)
		}
	}

	a.intel = intel

	if a.conn, err = postgres.NewConnection(cfg.Database, logger); err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err = a.conn.Migrate(); err != nil {
			return nil, err
		}
	}
	a.checkers = append(a.checkers, handlers.CheckerFunc("postgres", a.conn.HealthCheck))

	compoundRepo := repositories.NewPostgresCompoundRepo(a.conn, logger)
	modelRepo := repositories.NewPostgresModelRepo(a.conn, logger)
	predictionRepo := repositories.NewPostgresPredictionRepo(a.conn, logger)

	storeOpts := []enrichment.StoreOption{
		enrichment.WithLocalCache(cfg.Enrichment.LocalCacheSize, cfg.Enrichment.LocalCacheTTL),
		enrichment.WithStoreMetrics(intel),
		enrichment.WithStoreLogger(logger),
	}
	if cfg.Redis.Enabled {
		if a.redis, err = redis.NewClient(cfg.Redis, logger); err != nil {
			return nil, err
		}
		cache := redis.NewReferenceCache(a.redis, logger, redis.WithPrefix(cfg.Redis.KeyPrefix), redis.WithTTL(cfg.Redis.TTL))
		storeOpts = append(storeOpts, enrichment.WithRemoteCache(cache))
		a.checkers = append(a.checkers, handlers.CheckerFunc("redis", a.redis.Ping))
	}

	lookup, err := pubchem.NewClientFromConfig(cfg.Enrichment, logger)
	if err != nil {
		return nil, err
	}
	coordinator := enrichment.NewCoordinator(
		enrichment.NewTieredStore(compoundRepo, storeOpts...),
		lookup,
		append(enrichment.OptionsFromConfig(cfg.Enrichment), enrichment.WithMetrics(intel), enrichment.WithLogger(logger))...,
	)

	masks := featurize.NewMaskRegistry(logger)
	masks.LoadFiles(map[featurize.Scheme]string{
		featurize.SchemeECFP:      cfg.Model.ECFPFeaturesPath,
		featurize.SchemePubChemFP: cfg.Model.PubChemFPFeaturesPath,
	})

	if a.registry, err = common.NewModelRegistry(cfg.Model.Dir, intel, logger); err != nil {
		return nil, err
	}
	a.checkers = append(a.checkers, handlers.RegistryChecker(a.registry.Len))

	var mirror minio.ArtifactMirror
	if cfg.MinIO.Enabled {
		if a.minio, err = minio.NewMinIOClient(cfg.MinIO, logger); err != nil {
			return nil, err
		}
		mirror = minio.NewArtifactMirror(a.minio, logger)
		a.checkers = append(a.checkers, handlers.CheckerFunc("minio", a.minio.HealthCheck))
	}

	source := instanceID()
	var (
		predictionEvents prediction.EventPublisher
		modelEvents      modelmgmt.EventPublisher
	)
	if cfg.Kafka.Enabled {
		ensureTopics(ctx, cfg.Kafka, logger)
		if a.producer, err = kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka, source), logger); err != nil {
			return nil, err
		}
		predictionEvents = a.producer
		modelEvents = a.producer
	}

	models := modelmgmt.NewService(modelmgmt.Dependencies{
		Models:    modelRepo,
		Registry:  a.registry,
		Mirror:    mirror,
		Publisher: modelEvents,
		Metrics:   a.metrics,
		Logger:    logger,
	})
	loaded, err := models.Sync(ctx)
	if err != nil {
		return nil, err
	}
	prometheus.SetModelsLoaded(a.metrics, loaded)
	logger.Info("models loaded", logging.Int("count", loaded), logging.String("dir", a.registry.Dir()))

	if cfg.Kafka.Enabled {
		consumerCfg := kafka.ConsumerConfigFrom(cfg.Kafka, kafka.TopicModelLifecycle)
		// Every replica must see every lifecycle event.
		consumerCfg.GroupID = cfg.Kafka.GroupID + "-" + source
		if a.consumer, err = kafka.NewConsumer(consumerCfg, logger); err != nil {
			return nil, err
		}
		replicator := modelmgmt.NewReplicator(a.registry, mirror, source, logger)
		a.consumer.Subscribe(kafka.TopicName(cfg.Kafka.TopicPrefix, kafka.TopicModelLifecycle), replicator.Handle)
		if err = a.consumer.Start(ctx); err != nil {
			return nil, err
		}
	}

	engine := potency.NewEngine(featurize.NewEncoder(masks), a.registry,
		potency.WithEncodeWorkers(cfg.Model.EncodeWorkers),
		potency.WithMetrics(intel),
		potency.WithLogger(logger),
	)
	predictions := prediction.NewService(prediction.Dependencies{
		Models:          modelRepo,
		Predictions:     predictionRepo,
		Compounds:       compoundRepo,
		Engine:          engine,
		Enricher:        coordinator,
		Composer:        prediction.NewComposer(cfg.Pipeline.ComposeWorkers, logger),
		Publisher:       predictionEvents,
		Metrics:         a.metrics,
		Logger:          logger,
		MaxStructures:   cfg.Pipeline.MaxStructures,
		MaxSMILESLength: cfg.Pipeline.MaxSMILESLength,
	})

	handler, err := a.router(predictions, models)
	if err != nil {
		return nil, err
	}
	a.server = httpserver.NewServer(cfg.Server, handler, logger)
	return a, nil
}

func (a *app) router(predictions prediction.Service, models modelmgmt.Service) (http.Handler, error) {
	verifier, err := token.NewVerifierFromConfig(a.cfg.Auth)
	if err != nil {
		return nil, err
	}
	auth := token.NewAuthMiddleware(verifier, a.logger, token.WithSkipPaths(a.cfg.Auth.SkipPaths...))

	var cors *middleware.CORSConfig
	if len(a.cfg.Server.CORSAllowedOrigins) > 0 {
		c := middleware.DefaultCORSConfig()
		c.AllowedOrigins = a.cfg.Server.CORSAllowedOrigins
		cors = &c
	}
	var limiter middleware.RateLimiter
	if a.cfg.Server.RateLimitRPS > 0 {
		limiter = middleware.NewTokenBucketLimiter(a.cfg.Server.RateLimitRPS, a.cfg.Server.RateLimitBurst, 0)
	}
	logCfg := middleware.DefaultLoggingConfig()

	return httpserver.NewRouter(httpserver.RouterConfig{
		PredictionHandler:         handlers.NewPredictionHandler(predictions, a.cfg.Auth.AdminRole, a.cfg.Server.MaxUploadSize, a.logger),
		PredictionCompoundHandler: handlers.NewPredictionCompoundHandler(predictions, a.cfg.Auth.AdminRole, a.logger),
		ModelHandler:              handlers.NewModelHandler(models, token.RequireRole(a.cfg.Auth.AdminRole), a.cfg.Server.MaxUploadSize, a.logger),
		HealthHandler:             handlers.NewHealthHandler(Version, a.metrics, a.checkers...).WithPipelineStats(a.intel.GetCurrentStats),
		AuthMiddleware:            auth,
		CORS:                      cors,
		RateLimiter:               limiter,
		Logging:                   &logCfg,
		Logger:                    a.logger,
		Metrics:                   a.metrics,
		MetricsCollector:          a.collector,
	}), nil
}

// Close releases every component in reverse start order. Safe on a
// partially built app.
func (a *app) Close() {
	closeAll := []struct {
		name string
		fn   func() error
	}{
		{"kafka consumer", closerOf(a.consumer != nil, func() error { return a.consumer.Close() })},
		{"kafka producer", closerOf(a.producer != nil, func() error { return a.producer.Close() })},
		{"minio", closerOf(a.minio != nil, func() error { return a.minio.Close() })},
		{"redis", closerOf(a.redis != nil, func() error { return a.redis.Close() })},
		{"postgres", closerOf(a.conn != nil, func() error { return a.conn.Close() })},
	}
	for _, c := range closeAll {
		if c.fn == nil {
			continue
		}
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", logging.String("component", c.name), logging.Err(err))
		}
	}
}

func closerOf(open bool, fn func() error) func() error {
	if !open {
		return nil
	}
	return fn
}

// ensureTopics creates the service topics. Brokers with auto-creation
// enabled make this optional, so failures only warn.
func ensureTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		logger.Warn("kafka topic manager unavailable", logging.Err(err))
		return
	}
	defer func() { _ = tm.Close() }()
	if err := tm.EnsureTopics(ctx, kafka.DefaultTopics(cfg.TopicPrefix)); err != nil {
		logger.Warn("failed to ensure kafka topics", logging.Err(err))
	}
}

// instanceID names this process as an event source.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "apiserver"
	}
	return host + "-" + uuid.NewString()[:8]
}
