package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	p := write(t, `
dispatch:
  http_addr: ":8080"
  page_size: 20
  pickpoints: 100
  seed: 42
region:
  bbox: [30.1, 59.8, 30.5, 60.0]
  zoom: 10
  currency_rate: 2
geo:
  provider: "http"
  rate_limit_per_minute: 600
kafka:
  host: "localhost"
  port: 9092
  consume_positions: true
  positions_topic_name: "dispatch.driver.positions"
redis:
  host: "localhost"
  port: 6379
autoplay:
  drivers: false
  order_agents: 2
  stats_schedule: "@every 10s"
`)

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Dispatch.HTTPAddr)
	require.Equal(t, int64(42), cfg.Dispatch.Seed)
	require.Equal(t, []float64{30.1, 59.8, 30.5, 60.0}, cfg.Region.BBox)
	require.Equal(t, "http", cfg.Geo.Provider)
	require.EqualValues(t, 600, cfg.Geo.RateLimitPerMinute)
	require.True(t, cfg.Kafka.ConsumePositions)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.NotNil(t, cfg.Autoplay.Drivers)
	require.False(t, *cfg.Autoplay.Drivers)
	require.Nil(t, cfg.Autoplay.Orders)
	require.Equal(t, "@every 10s", cfg.Autoplay.StatsSchedule)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read config file")

	_, err = LoadConfig(write(t, "dispatch: [1, 2"))
	require.ErrorContains(t, err, "failed to unmarshal YAML")

	_, err = LoadConfig(write(t, "region:\n  bbox: [1, 2, 3]\n"))
	require.ErrorContains(t, err, "region.bbox")
}
