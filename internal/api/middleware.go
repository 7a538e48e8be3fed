package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/pkg/telemetry"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	viewerKey       = "viewer"
)

var errMissingBearer = errors.New("authorization bearer token missing")

// requestID tags each request with the caller's X-Request-ID or a new uuid
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(backend.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// accessLog logs every request once it finished, inside a server span
func (r *Router) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), "bff "+c.Request.Method)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		r.logger.Info("Request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)))
	}
}

// requireViewer resolves the bearer token into the caller's viewer
func (r *Router) requireViewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			r.sendError(c, NewError(CodeUnauthorized, errMissingBearer.Error()))
			return
		}
		vw, err := r.viewers.get(token)
		if err != nil {
			r.sendError(c, err)
			return
		}
		c.Set(viewerKey, vw)
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func viewerOf(c *gin.Context) *viewer {
	return c.MustGet(viewerKey).(*viewer)
}
