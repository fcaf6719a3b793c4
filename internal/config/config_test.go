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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db
  port: 5432
  user: u
  password: p
  dbname: follow
  sslmode: disable
kafka:
  brokers: ["k1:9092", "k2:9092"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "follower-increase", cfg.Kafka.Topic("follower_increase", ""))
	assert.Equal(t, "follower-decrease", cfg.Kafka.Topic("follower_decrease", ""))
	assert.Equal(t, 3, cfg.Kafka.Consumer.Concurrency)
	assert.Equal(t, time.Second, cfg.Kafka.Consumer.RetryBackoffDuration())

	assert.Equal(t, 3, cfg.Reconcile.MaxRetryCount)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.PendingIntervalDuration())
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.CancelledIntervalDuration())
	assert.Equal(t, "03:00", cfg.Reconcile.CleanupAt)
	assert.Equal(t, 10*time.Second, cfg.Reconcile.MutationTimeoutDuration())

	assert.Equal(t, 3, cfg.Kafka.Consumer.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Reconcile.LockTTLDuration())

	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=follow sslmode=disable lock_timeout=5000 statement_timeout=30000",
		cfg.Database.DSN())
	assert.Same(t, cfg, Get())
}

func TestLoadOverridesReconcile(t *testing.T) {
	path := writeConfig(t, `
reconcile:
  max_retry_count: 5
  pending_interval: 60
  cleanup_at: "04:30"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Reconcile.MaxRetryCount)
	assert.Equal(t, time.Minute, cfg.Reconcile.PendingIntervalDuration())
	assert.Equal(t, "04:30", cfg.Reconcile.CleanupAt)
}

func TestLoadRejectsNonPositiveRetryCount(t *testing.T) {
	path := writeConfig(t, `
reconcile:
  max_retry_count: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_retry_count")
}

func TestLoadRejectsNonPositiveLockTTL(t *testing.T) {
	path := writeConfig(t, `
reconcile:
  lock_ttl: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock_ttl")
}

func TestDSNWithoutTimeouts(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", d.DSN())

	d.LockTimeout = 250
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable lock_timeout=250", d.DSN())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestTopicFallback(t *testing.T) {
	k := KafkaConfig{Topics: map[string]string{"a": ""}}
	assert.Equal(t, "fb", k.Topic("a", "fb"))
	assert.Equal(t, "fb", k.Topic("missing", "fb"))
}

func TestResolvePath(t *testing.T) {
	t.Setenv("FOLLOW_CONFIG", "")
	assert.Equal(t, DefaultPath, ResolvePath())

	t.Setenv("FOLLOW_CONFIG", "/etc/follow/config.yaml")
	assert.Equal(t, "/etc/follow/config.yaml", ResolvePath())
}
