package middleware

import (
	"strings"
	"time"

	"github.com/annel0/worldmap/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader возвращается клиенту карты, чтобы связать его запрос с логами
const TraceHeader = "X-Trace-ID"

// RequestLogger снабжает каждый HTTP-запрос trace-ID и пишет краткие логи в
// компонентный логгер api. Запросы с префиксами quiet (тайлы, /metrics, /health)
// идут на уровне Debug: карта запрашивает их сотнями.
type RequestLogger struct {
	log   *logging.Logger
	quiet []string
}

func NewRequestLogger(quiet ...string) *RequestLogger {
	return &RequestLogger{log: logging.GetAPILogger(), quiet: quiet}
}

func (rl *RequestLogger) isQuiet(path string) bool {
	for _, p := range rl.quiet {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// trace-id из OpenTelemetry, если otelgin уже открыл span
		span := trace.SpanFromContext(c.Request.Context())
		var traceID string
		if span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		} else {
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Header(TraceHeader, traceID)

		start := time.Now()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logf := rl.log.Info
		if rl.isQuiet(c.Request.URL.Path) {
			logf = rl.log.Debug
		}
		client := c.GetHeader("X-Client-ID")

		logf("[HTTP] ▶ %s %s ip=%s client=%q trace=%s", method, path, c.ClientIP(), client, traceID)

		c.Next()

		status := c.Writer.Status()
		if status >= 500 {
			logf = rl.log.Warn
		}
		if len(c.Errors) > 0 {
			logf("[HTTP] ◀ %s %s %d %s trace=%s err=%s", method, path, status, time.Since(start), traceID, c.Errors.String())
			return
		}
		logf("[HTTP] ◀ %s %s %d %s trace=%s", method, path, status, time.Since(start), traceID)
	}
}
