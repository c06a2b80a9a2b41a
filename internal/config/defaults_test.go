package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Enrichment.DescriptionTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Enrichment.RetryBackoff)
	assert.Equal(t, 2*time.Minute, cfg.Enrichment.BatchTimeout)
	assert.Equal(t, DefaultModelDir, cfg.Model.Dir)
	assert.Equal(t, "admin", cfg.Auth.AdminRole)
	assert.Equal(t, DefaultPipelineMaxSMILESLen, cfg.Pipeline.MaxSMILESLength)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Enrichment.Workers = 2
	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Enrichment.Workers)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
