package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/upkeep/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	HeaderRequestID = "X-Request-Id"

	maxRequestIDLen = 64
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	// Logger defaults to the zap global.
	Logger *zap.Logger
	Debug  bool
	// ErrorClassifier maps the last handler error to (type, code).
	ErrorClassifier func(err error) (string, string)
	// QuietRoutes drop to debug level when they succeed. The public status
	// route is polled by every client site and would drown the log.
	QuietRoutes []string
}

// GinMiddleware stamps each request with an id, client address and user
// agent, then writes one http_request line when the chain returns.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	quiet := make(map[string]bool, len(cfg.QuietRoutes))
	for _, route := range cfg.QuietRoutes {
		quiet[strings.TrimSpace(route)] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(obscontext.WithClient(ctx, c.ClientIP(), c.Request.UserAgent()))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if code := c.GetString("client_code"); code != "" {
			fields = append(fields, zap.String("client_code", code))
		}
		if last := c.Errors.Last(); last != nil {
			fields = append(fields, errorFields(cfg, last.Err)...)
		}

		base := cfg.Logger
		if base == nil {
			base = zap.L()
		}
		WithContext(c.Request.Context(), base).Log(requestLevel(status, quiet[route]), "http_request", fields...)
	}
}

// requestIDFor reuses a sane caller-supplied id or mints a ULID.
func requestIDFor(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
	if !validRequestID(id) {
		id = ulid.Make().String()
	}
	c.Set("request_id", id)
	c.Header(HeaderRequestID, id)
	return id
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}

func errorFields(cfg MiddlewareConfig, err error) []zap.Field {
	var errType, errCode string
	if cfg.ErrorClassifier != nil {
		errType, errCode = cfg.ErrorClassifier(err)
	}
	fields := []zap.Field{zap.String("error_type", errType), zap.String("error_code", errCode)}
	if cfg.Debug {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

func requestLevel(status int, quiet bool) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case quiet && status < http.StatusBadRequest:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
