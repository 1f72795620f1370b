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
	path := filepath.Join(t.TempDir(), "worldmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("WORLDMAP_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Tiles.Bounds, cfg.Tiles.Bounds)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, 8088, cfg.Server.GetRESTPort())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  rest_port: 9090
  cors_origins: ["https://map.example.org"]
backend:
  base_url: http://backend:3000
  refresh_every: 45s
tiles:
  base_url: https://tiles.example.org
  bounds: {min_zoom: -3, max_zoom: 5, max_native_zoom: 1}
cluster:
  collapse_zoom: 1
  expanded_radius: 60
storage:
  backend: redis
  redis:
    addr: redis:6379
invalidation:
  enabled: true
  nats_url: nats://nats:4222
  subject: map.invalidate
eventbus:
  backend: jetstream
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.GetRESTPort())
	assert.Equal(t, []string{"https://map.example.org"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "http://backend:3000", cfg.Backend.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Backend.RefreshEvery)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout, "незаданное поле сохраняет значение по умолчанию")
	assert.Equal(t, 1, cfg.Tiles.Bounds.MaxNativeZoom)
	assert.Equal(t, 1, cfg.Cluster.CollapseZoom)
	assert.Equal(t, 60.0, cfg.Cluster.ExpandedRadius)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
	assert.True(t, cfg.Invalidation.Enabled)
	assert.Equal(t, "map.invalidate", cfg.Invalidation.Subject)
	assert.Equal(t, "jetstream", cfg.EventBus.Backend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WORLDMAP_BACKEND_TOKEN", "secret-token")
	t.Setenv("WORLDMAP_NATS_URL", "nats://env:4222")
	t.Setenv("WORLDMAP_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(writeConfig(t, "backend:\n  token: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.Backend.Token)
	assert.Equal(t, "nats://env:4222", cfg.EventBus.URL)
	assert.Equal(t, "nats://env:4222", cfg.Invalidation.NATSURL)
	assert.Len(t, cfg.Server.CORSOrigins, 2)
}

func TestGetRESTPort_EnvFallback(t *testing.T) {
	t.Setenv("WORLDMAP_REST_PORT", "7070")
	s := ServerConfig{}
	assert.Equal(t, 7070, s.GetRESTPort())

	t.Setenv("WORLDMAP_REST_PORT", "not-a-port")
	assert.Equal(t, 8088, s.GetRESTPort())
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "tiles:\n  bounds: {min_zoom: 3, max_zoom: 1, max_native_zoom: 2}\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "storage:\n  backend: mongo\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "eventbus: [broken"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
