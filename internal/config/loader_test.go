package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  port: 9090
  mode: debug
database:
  host: db.internal
  user: ami
  password: secret
  db_name: antimalaria
auth:
  jwt_secret: s3cr3t
model:
  dir: /srv/models
enrichment:
  workers: 4
  description_timeout: 5s
log:
  level: info
  format: console
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ValidFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "/srv/models", cfg.Model.Dir)
	assert.Equal(t, 4, cfg.Enrichment.Workers)
	assert.Equal(t, 5*time.Second, cfg.Enrichment.DescriptionTimeout)
	assert.Equal(t, DefaultEnrichmentBaseURL, cfg.Enrichment.BaseURL)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AMI_SERVER_PORT", "7070")
	t.Setenv("AMI_ENRICHMENT_WORKERS", "16")

	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Enrichment.Workers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidConfig(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AMI_DATABASE_USER", "ami")
	t.Setenv("AMI_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("AMI_MODEL_DIR", "/models")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "ami", cfg.Database.User)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "/models", cfg.Model.Dir)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "nope.yaml")) })
}

func TestWatch_InvokesOnChange(t *testing.T) {
	path := writeConfig(t, validConfigYAML)

	var mu sync.Mutex
	var got *Config
	require.NoError(t, Watch(path, func(c *Config) {
		mu.Lock()
		got = c
		mu.Unlock()
	}, nil))

	updated := strings.Replace(validConfigYAML, "level: info", "level: debug", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Log.Level == "debug"
	}, 5*time.Second, 50*time.Millisecond)
}
