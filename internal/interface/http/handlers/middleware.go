package handlers

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/drivetheory/theory-hub/pkg/logger"
)

const (
	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"

	ctxKeyRequestID = "request_id"
	ctxKeyLogger    = "request_logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST ID
// ══════════════════════════════════════════════════════════════════════════════

// RequestIDMiddleware assigns a request id and a request-scoped logger.
// An inbound X-Request-ID is kept when it is short and printable.
func RequestIDMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(HeaderRequestID, id)

		reqLog := log.WithRequestID(id)
		c.Set(ctxKeyLogger, reqLog)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), reqLog))
		c.Next()
	}
}

// RequestID returns the id assigned by RequestIDMiddleware.
func RequestID(c *gin.Context) string {
	return c.GetString(ctxKeyRequestID)
}

// RequestLogger returns the request-scoped logger, or fallback outside the middleware.
func RequestLogger(c *gin.Context, fallback *logger.Logger) *logger.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l.With(logger.Component("practice_http"))
		}
	}
	return fallback
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS LOG
// ══════════════════════════════════════════════════════════════════════════════

// AccessLogMiddleware writes one line per request.
func AccessLogMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", status),
			logger.Int64("duration_ms", elapsed.Milliseconds()),
			logger.Latency(elapsed),
			logger.String("ip", c.ClientIP()),
			logger.String(logger.RequestIDKey, RequestID(c)),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("http request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryMiddleware turns a handler panic into a 500 with the envelope body.
func RecoveryMiddleware(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.Error("panic recovered",
			logger.Any("error", recovered),
			logger.String("stack", string(debug.Stack())),
			logger.String("path", c.Request.URL.Path),
			logger.String(logger.RequestIDKey, RequestID(c)),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, Envelope{Error: "Internal server error"})
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CORS AND HEADERS
// ══════════════════════════════════════════════════════════════════════════════

// CORSMiddleware allows the configured origins. "*" or an empty list allows all.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", HeaderRequestID},
		ExposeHeaders: []string{HeaderRequestID, "X-Cache"},
		MaxAge:        12 * time.Hour,
	}
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

// BodyLimitMiddleware limits request bodies to maxBytes.
func BodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, Envelope{Error: "Request body too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
