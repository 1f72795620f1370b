package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/annel0/worldmap/internal/compositor"
	"github.com/annel0/worldmap/internal/eventbus"
	"github.com/annel0/worldmap/internal/logging"
	"github.com/annel0/worldmap/internal/middleware"
	"github.com/annel0/worldmap/internal/region"
	"github.com/annel0/worldmap/internal/tiles"
	"github.com/annel0/worldmap/internal/toggles"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer HTTP-поверхность карты: набор отрисовки, переключатели,
// перенос маркеров, правка регионов, прокси тайлов и поток событий.
type RestServer struct {
	router  *gin.Engine
	server  *http.Server
	loop    *compositor.Loop
	toggles *toggles.Store
	regions *region.Index
	scheme  *tiles.Scheme
	fetcher *tiles.Fetcher
	bus     eventbus.EventBus
	hub     *Hub
	metrics *ServerMetrics
	log     *logging.Logger
}

// Config содержит зависимости REST сервера
type Config struct {
	Addr        string // адрес для запуска сервера, по умолчанию ":8080"
	Loop        *compositor.Loop
	Toggles     *toggles.Store
	Regions     *region.Index
	Tiles       *tiles.Scheme
	Fetcher     *tiles.Fetcher
	Bus         eventbus.EventBus
	CORSOrigins []string // пусто — любые источники

	// Registry регистр HTTP-метрик и источник /metrics; nil — дефолтный
	Registry *prometheus.Registry
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Addr == "" {
		config.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("worldmap_api"))
	router.Use(middleware.NewRequestLogger("/tiles/", "/metrics", "/health").Handler())

	var (
		reg      prometheus.Registerer
		gatherer prometheus.Gatherer
	)
	if config.Registry != nil {
		reg, gatherer = config.Registry, config.Registry
	}
	promMw := middleware.NewPrometheusMiddleware("worldmap_api", reg)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	router.Use(cors.New(corsConfig(config.CORSOrigins)))

	rs := &RestServer{
		router:  router,
		loop:    config.Loop,
		toggles: config.Toggles,
		regions: config.Regions,
		scheme:  config.Tiles,
		fetcher: config.Fetcher,
		bus:     config.Bus,
		hub:     NewHub(),
		metrics: NewServerMetrics(),
		log:     logging.GetAPILogger(),
	}
	rs.server = &http.Server{
		Addr:              config.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rs.setupRoutes()
	return rs
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", clientIDHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)
	rs.router.GET("/ws", rs.handleWebSocket)
	rs.router.GET("/tiles/:layer/:zoom/:xb/:yb/:x/:y", rs.handleTile)

	api := rs.router.Group("/api")
	api.Use(rs.identityMiddleware())
	{
		api.GET("/render", rs.handleRender)
		api.GET("/stats", rs.handleStats)
		api.GET("/tiles/url", rs.handleTileURL)

		api.GET("/toggles", rs.handleGetToggles)
		api.PUT("/toggles/:key", rs.handlePutToggles)
		api.DELETE("/toggles/:key", rs.handleResetToggles)

		// Перенос проектов уходит в бэкенд с сервисным токеном, поэтому
		// доступен только владельцам токена editor
		markers := api.Group("/markers/:id")
		markers.Use(rs.editorMiddleware())
		{
			markers.POST("/drag", rs.handleBeginDrag)
			markers.POST("/drop", rs.handleDrop)
		}

		api.GET("/regions", rs.handleGetRegions)

		// Правка регионов (требует токен с правом editor)
		edit := api.Group("/regions/:id")
		edit.Use(rs.editorMiddleware())
		{
			edit.POST("/edit", rs.handleBeginEdit)
			edit.DELETE("/edit", rs.handleEndEdit)
			edit.POST("/vertices/:index/move", rs.handleVertexMove)
			edit.POST("/vertices/:index/end", rs.handleVertexEnd)
			edit.DELETE("/vertices/:index", rs.handleVertexRemove)
			edit.POST("/edges/click", rs.handleEdgeClick)
		}
	}
}

// GenericResponse общий формат ответа
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, GenericResponse{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, GenericResponse{Success: false, Message: message})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Handler возвращает HTTP-обработчик (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start подписывает поток событий на шину и запускает сервер.
// Блокирует до Stop; после корректной остановки возвращает nil.
func (rs *RestServer) Start(ctx context.Context) error {
	if err := rs.hub.Start(ctx, rs.bus); err != nil {
		return err
	}
	rs.log.Info("REST API слушает %s", rs.server.Addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop корректно останавливает сервер и закрывает websocket-клиентов
func (rs *RestServer) Stop(ctx context.Context) error {
	err := rs.server.Shutdown(ctx)
	rs.hub.Stop()
	return err
}
