package config

import (
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort            = 8080
	DefaultServerMode            = "release"
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 120 * time.Second
	DefaultServerMaxUploadSize   = int64(32 << 20)
	DefaultServerShutdownTimeout = 15 * time.Second
	DefaultServerIdleTimeout     = 60 * time.Second
	DefaultServerRateLimitBurst  = 20

	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBName            = "antimalaria"
	DefaultDBSSLMode         = "disable"
	DefaultDBMaxConns        = 25
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 30 * time.Minute
	DefaultDBConnMaxIdleTime = 5 * time.Minute

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 20
	DefaultRedisKeyPrefix = "ami:"
	DefaultRedisTTL       = 24 * time.Hour

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaGroupID     = "ami-model-sync"
	DefaultKafkaTopicPrefix = "ami."
	DefaultKafkaOffsetReset = "latest"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "ami-models"

	DefaultAuthAdminRole = "admin"

	DefaultModelDir                 = "./ml_models"
	DefaultModelECFPFeatures        = "./ml_models/ecfp_features.json"
	DefaultModelPubChemFPFeatures   = "./ml_models/pubchemfp_features.json"
	DefaultModelEncodeWorkers       = 8
	DefaultEnrichmentBaseURL        = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"
	DefaultEnrichmentLookupTimeout  = 15 * time.Second
	DefaultEnrichmentDescTimeout    = 5 * time.Second
	DefaultEnrichmentWorkers        = 8
	DefaultEnrichmentRetryMax       = 2
	DefaultEnrichmentRetryBackoff   = 500 * time.Millisecond
	DefaultEnrichmentBatchTimeout   = 2 * time.Minute
	DefaultEnrichmentLocalCacheSize = 10000
	DefaultEnrichmentLocalCacheTTL  = time.Hour

	DefaultPipelineComposeWorkers = 8
	DefaultPipelineMaxStructures  = 5000
	DefaultPipelineMaxSMILESLen   = 2000

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "ami"
)

// ApplyDefaults fills every zero-value field in cfg with the service default.
// Fields that have already been set are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = DefaultServerMaxUploadSize
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultServerIdleTimeout
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = DefaultServerRateLimitBurst
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultDBConnMaxLifetime
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = DefaultDBConnMaxIdleTime
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.TopicPrefix == "" {
		cfg.Kafka.TopicPrefix = DefaultKafkaTopicPrefix
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = DefaultKafkaOffsetReset
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Auth ──────────────────────────────────────────────────────────────────
	if cfg.Auth.AdminRole == "" {
		cfg.Auth.AdminRole = DefaultAuthAdminRole
	}

	// ── Model ─────────────────────────────────────────────────────────────────
	if cfg.Model.Dir == "" {
		cfg.Model.Dir = DefaultModelDir
	}
	if cfg.Model.ECFPFeaturesPath == "" {
		cfg.Model.ECFPFeaturesPath = DefaultModelECFPFeatures
	}
	if cfg.Model.PubChemFPFeaturesPath == "" {
		cfg.Model.PubChemFPFeaturesPath = DefaultModelPubChemFPFeatures
	}
	if cfg.Model.EncodeWorkers == 0 {
		cfg.Model.EncodeWorkers = DefaultModelEncodeWorkers
	}

	// ── Enrichment ────────────────────────────────────────────────────────────
	if cfg.Enrichment.BaseURL == "" {
		cfg.Enrichment.BaseURL = DefaultEnrichmentBaseURL
	}
	if cfg.Enrichment.LookupTimeout == 0 {
		cfg.Enrichment.LookupTimeout = DefaultEnrichmentLookupTimeout
	}
	if cfg.Enrichment.DescriptionTimeout == 0 {
		cfg.Enrichment.DescriptionTimeout = DefaultEnrichmentDescTimeout
	}
	if cfg.Enrichment.Workers == 0 {
		cfg.Enrichment.Workers = DefaultEnrichmentWorkers
	}
	if cfg.Enrichment.RetryMax == 0 {
		cfg.Enrichment.RetryMax = DefaultEnrichmentRetryMax
	}
	if cfg.Enrichment.RetryBackoff == 0 {
		cfg.Enrichment.RetryBackoff = DefaultEnrichmentRetryBackoff
	}
	if cfg.Enrichment.BatchTimeout == 0 {
		cfg.Enrichment.BatchTimeout = DefaultEnrichmentBatchTimeout
	}
	if cfg.Enrichment.LocalCacheSize == 0 {
		cfg.Enrichment.LocalCacheSize = DefaultEnrichmentLocalCacheSize
	}
	if cfg.Enrichment.LocalCacheTTL == 0 {
		cfg.Enrichment.LocalCacheTTL = DefaultEnrichmentLocalCacheTTL
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	if cfg.Pipeline.ComposeWorkers == 0 {
		cfg.Pipeline.ComposeWorkers = DefaultPipelineComposeWorkers
	}
	if cfg.Pipeline.MaxStructures == 0 {
		cfg.Pipeline.MaxStructures = DefaultPipelineMaxStructures
	}
	if cfg.Pipeline.MaxSMILESLength == 0 {
		cfg.Pipeline.MaxSMILESLength = DefaultPipelineMaxSMILESLen
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// registerKeys declares every known key on v so that AutomaticEnv resolves
// nested settings even when no config file mentions them.
func registerKeys(v *viper.Viper) {
	d := &Config{}
	ApplyDefaults(d)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.max_upload_size", d.Server.MaxUploadSize)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.rate_limit_rps", d.Server.RateLimitRPS)
	v.SetDefault("server.rate_limit_burst", d.Server.RateLimitBurst)
	v.SetDefault("server.cors_allowed_origins", []string{})

	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", d.Database.DBName)
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.group_id", d.Kafka.GroupID)
	v.SetDefault("kafka.topic_prefix", d.Kafka.TopicPrefix)
	v.SetDefault("kafka.auto_offset_reset", d.Kafka.AutoOffsetReset)

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", d.MinIO.Endpoint)
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", d.MinIO.Bucket)
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.admin_role", d.Auth.AdminRole)

	v.SetDefault("model.dir", d.Model.Dir)
	v.SetDefault("model.ecfp_features_path", d.Model.ECFPFeaturesPath)
	v.SetDefault("model.pubchemfp_features_path", d.Model.PubChemFPFeaturesPath)
	v.SetDefault("model.encode_workers", d.Model.EncodeWorkers)

	v.SetDefault("enrichment.base_url", d.Enrichment.BaseURL)
	v.SetDefault("enrichment.lookup_timeout", d.Enrichment.LookupTimeout)
	v.SetDefault("enrichment.description_timeout", d.Enrichment.DescriptionTimeout)
	v.SetDefault("enrichment.workers", d.Enrichment.Workers)
	v.SetDefault("enrichment.retry_max", d.Enrichment.RetryMax)
	v.SetDefault("enrichment.retry_backoff", d.Enrichment.RetryBackoff)
	v.SetDefault("enrichment.batch_timeout", d.Enrichment.BatchTimeout)
	v.SetDefault("enrichment.local_cache_size", d.Enrichment.LocalCacheSize)
	v.SetDefault("enrichment.local_cache_ttl", d.Enrichment.LocalCacheTTL)

	v.SetDefault("pipeline.compose_workers", d.Pipeline.ComposeWorkers)
	v.SetDefault("pipeline.max_structures", d.Pipeline.MaxStructures)
	v.SetDefault("pipeline.max_smiles_length", d.Pipeline.MaxSMILESLength)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file.path", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}
