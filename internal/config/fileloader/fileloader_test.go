package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoader_Load(t *testing.T) {
	raw := `
kafka:
  brokers: ["kafka-0:9092", "kafka-1:9092"]
  reports_topic: reports
  poison_topic: poison
  probe_topic: probes
  lifecycle_topic: formula-lifecycle
  group_id: dispatcher
  client_id: dispatcher-test
probe:
  interval: 5s
  rate_per_second: 50
  burst: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-0:9092", "kafka-1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "poison", cfg.Kafka.PoisonTopic)
	assert.Equal(t, "dispatcher", cfg.Kafka.GroupID)
	assert.Equal(t, 5*time.Second, cfg.Probe.Interval)
	assert.Equal(t, 50.0, cfg.Probe.RatePerSecond)
	assert.Equal(t, 5, cfg.Probe.Burst)
}

func TestFileLoader_DefaultsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kafka:\n  group_id: g\n"), 0o644))

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Probe.Interval)
	assert.Equal(t, 100.0, cfg.Probe.RatePerSecond)
	assert.Equal(t, 10, cfg.Probe.Burst)
}

func TestFileLoader_MissingFile(t *testing.T) {
	_, err := NewFileLoader("/nonexistent/config.yaml").Load(context.Background())
	assert.Error(t, err)
}

func TestFileLoader_InvalidYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kafka: ["), 0o644))

	_, err := NewFileLoader(path).Load(context.Background())
	assert.Error(t, err)
}
