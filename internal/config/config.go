// Package config defines all configuration structures for the
// AntiMalaria-Intelligence service. No I/O or parsing logic lives in this
// file, only plain data types and validation.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	// CORSAllowedOrigins is empty for same-origin deployments.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	// RateLimitRPS is the per-caller request rate; zero disables limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection parameters for the reference cache tier.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	TTL          time.Duration `mapstructure:"ttl"`
}

// KafkaConfig holds Apache Kafka producer/consumer parameters.
type KafkaConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	TopicPrefix     string   `mapstructure:"topic_prefix"`
	AutoOffsetReset string   `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	TimeoutMS       int      `mapstructure:"timeout_ms"`
	ProducerRetries int      `mapstructure:"producer_retries"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters used to
// mirror uploaded model artifacts.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// AuthConfig holds bearer-token verification parameters.
type AuthConfig struct {
	JWTSecret string   `mapstructure:"jwt_secret"`
	Issuer    string   `mapstructure:"issuer"`
	AdminRole string   `mapstructure:"admin_role"`
	SkipPaths []string `mapstructure:"skip_paths"`
}

// ModelConfig locates estimator artifacts and feature masks.
type ModelConfig struct {
	Dir                   string `mapstructure:"dir"`
	ECFPFeaturesPath      string `mapstructure:"ecfp_features_path"`
	PubChemFPFeaturesPath string `mapstructure:"pubchemfp_features_path"`
	EncodeWorkers         int    `mapstructure:"encode_workers"`
}

// EnrichmentConfig tunes the PubChem lookup client and the reference cache.
type EnrichmentConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	LookupTimeout      time.Duration `mapstructure:"lookup_timeout"`
	DescriptionTimeout time.Duration `mapstructure:"description_timeout"`
	Workers            int           `mapstructure:"workers"`
	RetryMax           int           `mapstructure:"retry_max"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`
	// BatchTimeout bounds one run's lookups; unfinished structures degrade.
	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	LocalCacheSize     int           `mapstructure:"local_cache_size"`
	LocalCacheTTL      time.Duration `mapstructure:"local_cache_ttl"`
}

// PipelineConfig tunes the batch orchestrator.
type PipelineConfig struct {
	ComposeWorkers  int `mapstructure:"compose_workers"`
	MaxStructures   int `mapstructure:"max_structures"`
	// MaxSMILESLength rejects longer structure strings before parsing.
	MaxSMILESLength int `mapstructure:"max_smiles_length"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string        `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string        `mapstructure:"format"` // "json" | "console"
	OutputPaths []string      `mapstructure:"output_paths"`
	File        LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures the rotating log file.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Model      ModelConfig      `mapstructure:"model"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config and
// returns the first error encountered.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	if c.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("config: server.max_upload_size must be > 0, got %d", c.Server.MaxUploadSize)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.group_id is required")
		}
	}

	// MinIO
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("config: minio.endpoint and minio.bucket are required when minio is enabled")
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret is required")
	}

	// Model
	if c.Model.Dir == "" {
		return fmt.Errorf("config: model.dir is required")
	}
	if c.Model.EncodeWorkers < 1 {
		return fmt.Errorf("config: model.encode_workers must be >= 1, got %d", c.Model.EncodeWorkers)
	}

	// Enrichment
	if c.Enrichment.BaseURL == "" {
		return fmt.Errorf("config: enrichment.base_url is required")
	}
	if c.Enrichment.Workers < 1 {
		return fmt.Errorf("config: enrichment.workers must be >= 1, got %d", c.Enrichment.Workers)
	}
	if c.Enrichment.RetryMax < 0 {
		return fmt.Errorf("config: enrichment.retry_max must be >= 0, got %d", c.Enrichment.RetryMax)
	}
	if c.Enrichment.LookupTimeout <= 0 || c.Enrichment.DescriptionTimeout <= 0 {
		return fmt.Errorf("config: enrichment timeouts must be positive")
	}

	// Pipeline
	if c.Pipeline.ComposeWorkers < 1 {
		return fmt.Errorf("config: pipeline.compose_workers must be >= 1, got %d", c.Pipeline.ComposeWorkers)
	}
	if c.Pipeline.MaxSMILESLength < 0 {
		return fmt.Errorf("config: pipeline.max_smiles_length must be >= 0, got %d", c.Pipeline.MaxSMILESLength)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

// DSN renders the PostgreSQL connection string for lib/pq and golang-migrate.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}
