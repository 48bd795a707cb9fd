package http

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ctxRequestID = "request_id"
	ctxSubject   = "subject"

	headerRequestID = "X-Request-ID"
)

// TokenVerifier checks a bearer token and returns its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Limiter allows or refuses one request per key.
type Limiter interface {
	Allow(key string) bool
}

type Middleware struct {
	tokens  TokenVerifier
	limiter Limiter
	logger  *zap.Logger
}

func NewMiddleware(tokens TokenVerifier, limiter Limiter, logger *zap.Logger) *Middleware {
	return &Middleware{
		tokens:  tokens,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "http")),
	}
}

// RequestID reuses an incoming X-Request-ID or assigns a new one.
func (m *Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Writer.Header().Set(headerRequestID, id)
		c.Next()
	}
}

// AccessLog writes one line per request after it completes.
func (m *Middleware) AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			m.logger.Error("request", fields...)
			return
		}
		m.logger.Info("request", fields...)
	}
}

// Recovery turns a panic into a 500 and logs the stack.
func (m *Middleware) Recovery() gin.HandlerFunc {
	return m.recoverWith(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

// WebhookRecovery answers a panic with ack, a success reply in the
// transport's format, so the delivery is not retried.
func (m *Middleware) WebhookRecovery(ack gin.HandlerFunc) gin.HandlerFunc {
	return m.recoverWith(func(c *gin.Context) {
		ack(c)
		c.Abort()
	})
}

func (m *Middleware) recoverWith(respond gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.FullPath()),
					zap.String("request_id", c.GetString(ctxRequestID)),
					zap.ByteString("stack", debug.Stack()),
				)
				respond(c)
			}
		}()
		c.Next()
	}
}

// AuthRequired accepts "Authorization: Bearer <jwt>" and stores the subject.
func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
			return
		}
		subject, err := m.tokens.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(ctxSubject, subject)
		c.Next()
	}
}

// RateLimit limits requests per authenticated subject, or per client IP
// before authentication.
func (m *Middleware) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(ctxSubject)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !m.limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// SecurityHeaders adds security headers to prevent common attacks
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// RequestSizeLimiter limits request body size to prevent DoS
func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
