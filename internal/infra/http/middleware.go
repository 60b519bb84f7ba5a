package http

import (
	"net/http"
	"strconv"
	"time"

	"castgate/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type, x-idempotency-key, x-account-id",
	"Access-Control-Allow-Methods": "POST, DELETE, OPTIONS",
}

// cors decorates every response and answers preflight requests before any
// authentication runs.
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		for k, v := range corsHeaders {
			c.Header(k, v)
		}
		if c.Request.Method == http.MethodOptions {
			c.String(http.StatusOK, "ok")
			c.Abort()
			return
		}
		c.Next()
	}
}

// observe records one metric sample and one log line per request.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		s.metrics.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(route, c.Request.Method).Observe(elapsed.Seconds())

		if route == "/healthz" || route == "/metrics" {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
		}
		if auth, ok := getAuthContext(c); ok {
			fields = append(fields, zap.String("user_id", auth.CallerID()))
		}
		if last := c.Errors.Last(); last != nil {
			fields = append(fields, zap.String("code", string(domain.CodeOf(last.Err))))
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warn("request", fields...)
			return
		}
		s.logger.Info("request", fields...)
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic while handling request",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
		)
		abortWithError(c, domain.NewError(domain.CodeInternal, "internal error"))
	})
}
