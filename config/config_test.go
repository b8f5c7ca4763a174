package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Web.Port)
	assert.Equal(t, 5*time.Minute, cfg.Downtime.MicroStopThreshold)
	assert.Len(t, cfg.Shifts, 3)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
plant_id: plant-7
web:
  port: 9090
messaging:
  backend: kafka
  kafka_brokers: ["k1:9092", "k2:9092"]
downtime:
  micro_stop_threshold: 3m
shifts:
  - number: 1
    start: "07:00"
    end: "15:00"
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "plant-7", cfg.PlantID)
	assert.Equal(t, 9090, cfg.Web.Port)
	assert.Equal(t, "kafka", cfg.Messaging.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Messaging.KafkaBrokers)
	assert.Equal(t, 3*time.Minute, cfg.Downtime.MicroStopThreshold)
	require.Len(t, cfg.Shifts, 1)
	assert.Equal(t, "07:00", cfg.Shifts[0].Start)

	// Untouched sections keep their defaults.
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Telemetry.AlertDebounce)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Defaults()
	cfg.PlantID = "plant-9"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "plant-9", loaded.PlantID)
	assert.Equal(t, cfg.Messaging.TelemetryTopic, loaded.Messaging.TelemetryTopic)
}
