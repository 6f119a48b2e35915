package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  driver: memory
  lab_bucket: labs
report:
  attachment_budget: 3s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "labs", cfg.Storage.LabBucket)
	assert.Equal(t, "profile-images", cfg.Storage.ProfileBucket)
	assert.Equal(t, 3*time.Second, cfg.Report.AttachmentBudget)
	assert.Equal(t, 4, cfg.Report.FetchConcurrency)
	assert.Equal(t, cfg.Report.FetchConcurrency, cfg.Storage.BreakerHalfOpenRequests)
	assert.Equal(t, "reports.generated", cfg.Redis.Channel)
	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  driver: memory
`)
	t.Setenv("REPORTS_SERVER_PORT", "7070")
	t.Setenv("REPORTS_STORAGE_DRIVER", "local")
	t.Setenv("REPORTS_STORAGE_LOCAL_SECRET", "s3cret")
	t.Setenv("REPORTS_STORAGE_URL_EXPIRY", "10m")
	t.Setenv("REPORTS_RATE_LIMIT_BURST", "3")
	t.Setenv("REPORTS_OUTBOX_BATCH_SIZE", "7")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, "s3cret", cfg.Storage.Local.Secret)
	assert.Equal(t, 10*time.Minute, cfg.Storage.URLExpiry)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, 7, cfg.Outbox.BatchSize)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: ftp\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")

	path = writeConfig(t, "storage:\n  driver: local\n")
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.local.secret")

	path = writeConfig(t, "storage:\n  driver: memory\n  url_expiry: 1m\n  signed_url_cache_ttl: 2m\n")
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signed_url_cache_ttl")
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
}
