// Package api is the backend-for-frontend the Telegram web view talks to. It
// keeps one feed store per signed-in user and answers with rendered cards.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/cache"
	"github.com/Vanequal/ideafeed/internal/views"
	"github.com/Vanequal/ideafeed/pkg/config"
	"github.com/Vanequal/ideafeed/pkg/logging"
)

// Authenticator exchanges Telegram init data for a backend token
type Authenticator interface {
	AuthTelegram(ctx context.Context, initData string) (string, error)
}

// Router sets up API routes
type Router struct {
	cfg       *config.Config
	auth      Authenticator
	viewers   *viewers
	viewed    *views.Store
	snapshots *cache.Cache
	logger    *zap.Logger
}

// NewRouter creates a new API router. snapshots may be nil; viewed is
// required.
func NewRouter(cfg *config.Config, snapshots *cache.Cache, viewed *views.Store) (*Router, error) {
	logger := logging.WithComponent("api-router")

	auth, err := backend.New(&cfg.API, nil, backend.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &Router{
		cfg:       cfg,
		auth:      auth,
		viewers:   newViewers(&cfg.API, snapshots, logger),
		viewed:    viewed,
		snapshots: snapshots,
		logger:    logger,
	}, nil
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(requestID(), r.accessLog(), cors.New(r.corsConfig()))

	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	api.Use(r.rateLimit())
	api.POST("/auth/telegram", r.authTelegram)

	authed := api.Group("")
	authed.Use(r.requireViewer())
	authed.GET("/me", r.me)
	authed.GET("/feed/:section", r.feed)

	sections := authed.Group("/sections/:section")
	sections.GET("/posts/:id", r.thread)
	sections.POST("/posts", r.createPost)
	sections.POST("/posts/:id/comments", r.createComment)
	sections.POST("/posts/:id/reactions", r.react)
	sections.POST("/tasks/:id/accept", r.acceptTask)
	sections.POST("/tasks/:id/complete", r.completeTask)

	authed.GET("/views", r.listViews)
	authed.POST("/views/:id", r.markViewed)

	engine.NoRoute(func(c *gin.Context) {
		r.sendError(c, NewError(CodeNotFound, "api route not found"))
	})
}

func (r *Router) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := r.cfg.Server.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	status := gin.H{
		"status":  "OK",
		"service": "ideafeed-bff",
		"viewers": r.viewers.len(),
	}
	if r.snapshots.Enabled() {
		if err := r.snapshots.Health(c.Request.Context()); err != nil {
			status["redis"] = err.Error()
		} else {
			status["redis"] = "OK"
		}
	}
	c.JSON(http.StatusOK, status)
}
