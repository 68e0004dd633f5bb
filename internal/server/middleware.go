package server

import (
	"fmt"
	"path"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/metrics"
	"github.com/raine/listing-analyzer/internal/workerpool"
	"github.com/rs/zerolog/log"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "requestId"
)

// requestID attaches a request ID to the context and response header.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// accessLog emits one structured log line per request.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("requestId", requestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("clientIP", c.ClientIP()).
			Msg("request")
	}
}

// recovery turns a panic in a handler into an INTERNAL reply.
func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Str("requestId", requestIDFrom(c)).
					Interface("panic", rec).
					Str("stack", string(debug.Stack())).
					Msg("panic while handling request")
				fail(c, fmt.Errorf("%w: panic: %v", faults.ErrInternalFault, rec))
			}
		}()
		c.Next()
	}
}

// instrument records request count and latency per RPC operation.
func instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		op := operationName(c)
		start := time.Now()
		// deferred so that panicking handlers are counted too
		defer func() {
			code := c.GetString(codeKey)
			if code == "" {
				code = CodeInternal
			}
			metrics.RequestsTotal.WithLabelValues(op, code).Inc()
			metrics.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}()
		c.Next()
	}
}

// withWorker holds a worker pool slot for the rest of the handler chain.
func withWorker(pool *workerpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := pool.Run(c.Request.Context(), func() error {
			c.Next()
			return nil
		})
		if err != nil {
			fail(c, err)
		}
	}
}

func operationName(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return path.Base(p)
	}
	return "unknown"
}
