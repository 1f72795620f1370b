package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/worldmap/internal/cache"
	"github.com/annel0/worldmap/internal/cluster"
	"github.com/annel0/worldmap/internal/storage"
	"github.com/annel0/worldmap/internal/tiles"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса карты.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Backend      BackendConfig      `yaml:"backend"`
	Tiles        TilesConfig        `yaml:"tiles"`
	Cache        cache.Config       `yaml:"cache"`
	Invalidation InvalidationConfig `yaml:"invalidation"`
	Storage      StorageConfig      `yaml:"storage"`
	EventBus     EventBusConfig     `yaml:"eventbus"`
	Cluster      cluster.Policy     `yaml:"cluster"`
	Regions      RegionsConfig      `yaml:"regions"`
	Logging      LoggingConfig      `yaml:"logging"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

type ServerConfig struct {
	RESTPort    int      `yaml:"rest_port"`
	CORSOrigins []string `yaml:"cors_origins"`
	// JWTSecret base64, не меньше 32 байт. Пусто — случайный ключ процесса.
	JWTSecret string `yaml:"jwt_secret"`
}

type BackendConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Token        string        `yaml:"token"`
	Timeout      time.Duration `yaml:"timeout"`
	RefreshEvery time.Duration `yaml:"refresh_every"`
	ListTTL      time.Duration `yaml:"list_ttl"`
}

type TilesConfig struct {
	BaseURL  string           `yaml:"base_url"`
	Bounds   tiles.ZoomBounds `yaml:"bounds"`
	CacheTTL time.Duration    `yaml:"cache_ttl"`
	Parallel int              `yaml:"parallel"`
	IconBase string           `yaml:"icon_base"`
}

type InvalidationConfig struct {
	cache.InvalidatorConfig `yaml:",inline"`

	Enabled bool   `yaml:"enabled"`
	NodeID  string `yaml:"node_id"`
}

type StorageConfig struct {
	storage.Config `yaml:",inline"`

	Redis storage.RedisConfig `yaml:"redis"`
}

type EventBusConfig struct {
	Backend   string `yaml:"backend"` // memory | jetstream
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Capacity  int    `yaml:"capacity"`
}

type RegionsConfig struct {
	File     string `yaml:"file"`
	CellSize int    `yaml:"cell_size"`
}

type LoggingConfig struct {
	Dir          string `yaml:"dir"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
	MaxSizeMB    int    `yaml:"max_size_mb"`
	MaxBackups   int    `yaml:"max_backups"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default возвращает конфигурацию, с которой сервис стартует без файла
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:      "http://localhost:3000",
			Timeout:      10 * time.Second,
			RefreshEvery: 30 * time.Second,
			ListTTL:      15 * time.Second,
		},
		Tiles: TilesConfig{
			BaseURL:  "http://localhost:8100/tiles",
			Bounds:   tiles.DefaultZoomBounds(),
			CacheTTL: 10 * time.Minute,
			Parallel: 8,
			IconBase: "/static/icons",
		},
		Cache: cache.Config{
			Backend:      "memory",
			MaxCostBytes: 64 << 20,
			DefaultTTL:   time.Minute,
			MaxTTL:       time.Hour,
		},
		Invalidation: InvalidationConfig{
			InvalidatorConfig: cache.InvalidatorConfig{
				NATSURL: "nats://localhost:4222",
				Subject: "worldmap.cache.invalidate",
			},
		},
		Storage: StorageConfig{
			Config: storage.Config{Backend: "badger", Path: "data"},
			Redis:  *storage.DefaultRedisConfig(),
		},
		EventBus: EventBusConfig{
			Backend:   "memory",
			URL:       "nats://localhost:4222",
			Stream:    "WORLDMAP_EVENTS",
			Retention: 24,
			Capacity:  1024,
		},
		Cluster: cluster.DefaultPolicy(),
		Regions: RegionsConfig{File: "regions.yaml"},
		Logging: LoggingConfig{
			Dir:          "logs",
			ConsoleLevel: "info",
			FileLevel:    "trace",
			MaxSizeMB:    10,
			MaxBackups:   3,
		},
		Telemetry: TelemetryConfig{ServiceName: "worldmap", SampleRatio: 1},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "WORLDMAP_REST_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

// Load читает .env (если есть) и YAML файл конфигурации поверх Default.
// Если path == "", берётся WORLDMAP_CONFIG; без файла используются значения
// по умолчанию. Переменные окружения применяются последними.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("WORLDMAP_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv переопределяет секреты и адреса из окружения
func (c *Config) applyEnv() {
	setString(&c.Backend.BaseURL, "WORLDMAP_BACKEND_URL")
	setString(&c.Backend.Token, "WORLDMAP_BACKEND_TOKEN")
	setString(&c.Tiles.BaseURL, "WORLDMAP_TILES_URL")
	setString(&c.Server.JWTSecret, "WORLDMAP_JWT_SECRET")
	setString(&c.Cache.RedisURL, "WORLDMAP_REDIS_URL")
	setString(&c.Cache.RedisPassword, "WORLDMAP_REDIS_PASSWORD")
	setString(&c.Storage.Redis.Addr, "WORLDMAP_REDIS_URL")
	setString(&c.Storage.Redis.Password, "WORLDMAP_REDIS_PASSWORD")
	setString(&c.EventBus.URL, "WORLDMAP_NATS_URL")
	setString(&c.Invalidation.NATSURL, "WORLDMAP_NATS_URL")
	setString(&c.Regions.File, "WORLDMAP_REGIONS_FILE")
	setString(&c.Logging.ConsoleLevel, "WORLDMAP_LOG_LEVEL")
	setString(&c.Telemetry.Endpoint, "WORLDMAP_OTLP_ENDPOINT")
	if v := os.Getenv("WORLDMAP_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
}

func setString(dst *string, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		*dst = v
	}
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	b := c.Tiles.Bounds
	if b.MinZoom > b.MaxZoom || b.MaxNativeZoom < b.MinZoom || b.MaxNativeZoom > b.MaxZoom {
		return fmt.Errorf("tiles.bounds: inconsistent zoom range %d..%d (native %d)", b.MinZoom, b.MaxZoom, b.MaxNativeZoom)
	}
	switch c.Storage.Backend {
	case "badger", "redis", "memory":
	default:
		return fmt.Errorf("storage.backend: unknown %q", c.Storage.Backend)
	}
	switch c.EventBus.Backend {
	case "memory", "jetstream":
	default:
		return fmt.Errorf("eventbus.backend: unknown %q", c.EventBus.Backend)
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	return nil
}
