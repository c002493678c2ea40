package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rfp-backend/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RouterConfig wires the handlers into an engine
type RouterConfig struct {
	RFPs    *RFPHandler
	Files   *FileHandler
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Now is used by the health probe; defaults to time.Now
	Now func() time.Time
}

// NewRouter builds the gin engine with middleware and all routes
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r := gin.New()
	// observe wraps recovery so panics are counted as 500s
	r.Use(requestID(), requestLogger(logger), observe(cfg.Metrics), recovery(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ok":  true,
			"now": now().UTC().Format(time.RFC3339Nano),
		})
	})

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	if cfg.Files != nil {
		r.GET("/files/:name", cfg.Files.GetFile)
	}

	api := r.Group("/api")
	{
		api.POST("/rfps", cfg.RFPs.CreateRFP)
		api.GET("/rfps", cfg.RFPs.ListRFPs)
		api.GET("/rfps/:id", cfg.RFPs.GetRFP)
		api.PUT("/rfps/:id", cfg.RFPs.UpdateRFP)
		api.DELETE("/rfps/:id", cfg.RFPs.DeleteRFP)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("Route not found: %s %s", c.Request.Method, c.Request.URL.Path),
		})
	})

	return r
}

const requestIDHeader = "X-Request-Id"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", status,
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString("request_id"),
		}
		switch {
		case status >= 500:
			logger.Error("http request completed", fields...)
		case status >= 400:
			logger.Warn("http request completed", fields...)
		default:
			logger.Info("http request completed", fields...)
		}
	}
}

// recovery turns panics into a JSON 500 so callers never get an empty body
func recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		logger.Error("panic recovered",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", c.GetString("request_id"),
			"panic", rec)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

func observe(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
