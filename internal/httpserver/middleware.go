package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contentplanner/internal/handler"
	"contentplanner/internal/identity"
	"contentplanner/internal/session"
	"contentplanner/pkg/logger"
	"contentplanner/pkg/metrics"
	"contentplanner/pkg/trace"
	"contentplanner/pkg/util"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, *identity.Identity, error)
}

type SessionOpener interface {
	Open(ctx context.Context, sessionID string, who identity.Identity) (*session.Session, error)
}

// TraceMiddleware carries the caller's X-Trace-ID through the request
// context, minting one when absent, and echoes it back.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

// RequestLogger logs one line per request after it completes.
func RequestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if uid := c.GetString(handler.UserIDKey); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}

		rl := logger.WithTrace(c.Request.Context(), l)
		switch status := c.Writer.Status(); {
		case status >= 500:
			rl.Error("Request failed", fields...)
		case status >= 400:
			rl.Warn("Request rejected", fields...)
		default:
			rl.Info("Request handled", fields...)
		}
	}
}

// Metrics records request latency by matched route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// AuthMiddleware resolves the bearer token to a session and puts it on the
// context. EventSource clients cannot set headers, so the token may also come
// from the access_token query parameter.
func AuthMiddleware(auth Authenticator, sessions SessionOpener, l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		sessionID, who, err := auth.Authenticate(ctx, token)
		switch {
		case errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrSessionRevoked):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		case err != nil:
			logger.WithTrace(ctx, l).Error("Authentication unavailable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication unavailable"})
			c.Abort()
			return
		}

		s, err := sessions.Open(ctx, sessionID, *who)
		if errors.Is(err, session.ErrSessionClosed) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		if err != nil {
			logger.WithTrace(ctx, l).Error("Failed to open session",
				zap.String("session_id", sessionID),
				zap.String("user_id", who.UID),
				zap.Error(err),
			)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
			c.Abort()
			return
		}

		c.Set(handler.SessionKey, s)
		c.Set(handler.UserIDKey, who.UID)
		c.Next()
	}
}
