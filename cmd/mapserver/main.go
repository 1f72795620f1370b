package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/worldmap/internal/api"
	"github.com/annel0/worldmap/internal/auth"
	"github.com/annel0/worldmap/internal/backend"
	"github.com/annel0/worldmap/internal/cache"
	"github.com/annel0/worldmap/internal/compositor"
	"github.com/annel0/worldmap/internal/config"
	"github.com/annel0/worldmap/internal/eventbus"
	"github.com/annel0/worldmap/internal/logging"
	"github.com/annel0/worldmap/internal/observability"
	"github.com/annel0/worldmap/internal/region"
	"github.com/annel0/worldmap/internal/storage"
	"github.com/annel0/worldmap/internal/tiles"
	"github.com/annel0/worldmap/internal/toggles"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $WORLDMAP_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.Configure(logging.Options{
		Dir:          cfg.Logging.Dir,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		ConsoleLevel: logging.ParseLevel(cfg.Logging.ConsoleLevel),
		FileLevel:    logging.ParseLevel(cfg.Logging.FileLevel),
	})
	if err := logging.InitDefaultLogger("mapserver"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	logging.Info("🗺️  Запуск сервера карты мира...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(ctx context.Context, cfg *config.Config) error {
	// === НАБЛЮДАЕМОСТЬ ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, observability.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			logging.Warn("OpenTelemetry недоступен: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}
	for _, register := range []func(prometheus.Registerer) error{
		backend.RegisterMetrics,
		compositor.RegisterMetrics,
		tiles.RegisterMetrics,
	} {
		if err := register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	if cfg.Server.JWTSecret != "" {
		if err := auth.SetJWTSecret(cfg.Server.JWTSecret); err != nil {
			return fmt.Errorf("jwt secret: %w", err)
		}
	} else {
		logging.Warn("jwt_secret не задан: токены редакторов действительны только до перезапуска")
	}

	// === КЕШ ===
	shared, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if cfg.Invalidation.Enabled {
		nodeID := cfg.Invalidation.NodeID
		if nodeID == "" {
			nodeID = uuid.NewString()
		}
		inv, err := cache.NewNATSInvalidator(&cfg.Invalidation.InvalidatorConfig, nodeID)
		if err != nil {
			logging.Warn("NATS недоступен, инвалидация кеша только локальная: %v", err)
		} else if wrapped, err := cache.WithInvalidation(ctx, shared, inv); err != nil {
			inv.Close()
			logging.Warn("подписка на инвалидации не удалась: %v", err)
		} else {
			shared = wrapped
		}
	}
	defer shared.Close()

	// === ШИНА СОБЫТИЙ ===
	bus, err := newEventBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()

	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		return fmt.Errorf("event logger: %w", err)
	}
	exporter, err := eventbus.NewMetricsExporter(bus, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("event metrics: %w", err)
	}
	exporter.Start(5 * time.Second)
	defer exporter.Stop()

	// === РЕГИОНЫ ===
	regionList, err := region.LoadFile(cfg.Regions.File)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("regions: %w", err)
		}
		logging.Warn("файл регионов %s не найден, карта без регионов", cfg.Regions.File)
	}
	regions, err := region.NewIndex(regionList, cfg.Regions.CellSize)
	if err != nil {
		return fmt.Errorf("regions: %w", err)
	}
	logging.Info("📐 %s", regions.GetStats())

	// === БЭКЕНД И КОМПОНОВЩИК ===
	source := backend.NewCachedSource(backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
	}), shared, cfg.Backend.ListTTL)

	loop := compositor.NewLoop(compositor.New(compositor.Options{
		Regions:  regions,
		Policy:   cfg.Cluster,
		IconBase: cfg.Tiles.IconBase,
		Bus:      bus,
	}), source)
	loop.OnSettle(func(s compositor.Settlement, err error) {
		if err != nil {
			logging.Warn("перенос %s отклонён: %v", s.EntityID, err)
		}
	})

	loopCtx, stopLoop := context.WithCancel(context.Background())
	go loop.Run(loopCtx, cfg.Backend.RefreshEvery)
	defer func() {
		loop.WaitPatches()
		stopLoop()
		<-loop.Done()
	}()
	if err := loop.Refresh(ctx); err != nil {
		logging.Warn("первичная загрузка сущностей не удалась: %v", err)
	}

	// === ПЕРЕКЛЮЧАТЕЛИ ===
	repo, err := storage.New(cfg.Storage.Config, &cfg.Storage.Redis)
	if err != nil {
		if repo == nil {
			return fmt.Errorf("toggle storage: %w", err)
		}
		logging.Warn("хранилище переключателей: %v", err)
	}
	defer repo.Close()

	// === REST API ===
	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	server := api.NewRestServer(api.Config{
		Addr:        fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		Loop:        loop,
		Toggles:     toggles.NewStore(repo),
		Regions:     regions,
		Tiles:       tiles.NewScheme(cfg.Tiles.BaseURL, cfg.Tiles.Bounds),
		Fetcher:     tiles.NewFetcher(httpClient, shared, cfg.Tiles.CacheTTL),
		Bus:         bus,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	logging.Info("✅ Сервер карты запущен")
	logging.Info("   🌐 REST API: http://localhost:%d", cfg.Server.GetRESTPort())
	logging.Info("   ❤️  Health check: http://localhost:%d/health", cfg.Server.GetRESTPort())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, остановка...")
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	return <-errCh
}

func newEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.Backend == "jetstream" {
		bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
		if err == nil {
			logging.Info("📨 Шина событий: JetStream %s (%s)", cfg.URL, cfg.Stream)
			return bus, nil
		}
		logging.Warn("JetStream недоступен, используется шина в памяти: %v", err)
	}
	return eventbus.NewMemoryBus(cfg.Capacity), nil
}
