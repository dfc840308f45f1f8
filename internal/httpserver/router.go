package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"contentplanner/internal/handler"
	"contentplanner/internal/identity"
	"contentplanner/pkg/otel"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Deps struct {
	Provider       *identity.Provider
	Auth           Authenticator
	Sessions       SessionOpener
	Readiness      map[string]ReadinessCheck
	AllowedOrigins []string
	Logger         *zap.Logger
}

type Router struct {
	Engine *gin.Engine
	cors   *cors.Cors
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), Metrics(), RequestLogger(d.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for name, check := range d.Readiness {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handler.NewAuthHandler(d.Provider, d.Logger)
	taskHandler := handler.NewTaskHandler(d.Logger)
	postHandler := handler.NewPostHandler(d.Logger)
	aiHandler := handler.NewAIHandler(d.Logger)
	viewHandler := handler.NewViewHandler()
	eventsHandler := handler.NewEventsHandler(d.Logger)

	// Public
	r.POST("/auth/register", authHandler.Register)
	r.POST("/auth/login", authHandler.Login)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(d.Auth, d.Sessions, d.Logger))
	{
		auth.POST("/auth/logout", authHandler.Logout)
		auth.GET("/auth/me", authHandler.Me)

		auth.GET("/tasks", taskHandler.ListTasks)
		auth.POST("/tasks", taskHandler.CreateTask)
		auth.PUT("/tasks/:id", taskHandler.UpdateTask)
		auth.DELETE("/tasks/:id", taskHandler.DeleteTask)

		auth.GET("/posts", postHandler.ListPosts)
		auth.POST("/posts", postHandler.CreatePost)
		auth.PUT("/posts/:id", postHandler.UpdatePost)
		auth.DELETE("/posts/:id", postHandler.DeletePost)

		auth.POST("/ai/prioritize", aiHandler.Prioritize)
		auth.GET("/ai/suggestions", aiHandler.Suggestions)
		auth.POST("/ai/suggestions/:taskId/apply", aiHandler.ApplySuggestion)
		auth.POST("/ai/suggestions/:taskId/dismiss", aiHandler.DismissSuggestion)
		auth.POST("/ai/posts/generate", aiHandler.GeneratePost)

		auth.GET("/dashboard", viewHandler.Dashboard)
		auth.GET("/calendar", viewHandler.CalendarMonth)
		auth.GET("/calendar/day", viewHandler.CalendarDay)

		auth.GET("/advisories", eventsHandler.Advisories)
		auth.GET("/events", eventsHandler.Stream)
	}

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Router{
		Engine: r,
		cors: cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Trace-ID"},
			ExposedHeaders: []string{"X-Trace-ID"},
		}),
	}
}

// Handler is the engine wrapped with CORS handling.
func (r *Router) Handler() http.Handler {
	return r.cors.Handler(r.Engine)
}
