// api/routes/router.go
package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "magicstream/docs"
	"magicstream/internal/audit"
	"magicstream/internal/auth"
	"magicstream/internal/shared/config"
	"magicstream/internal/shared/database"
	"magicstream/internal/tokens"
	"magicstream/internal/users"
	"magicstream/pkg/logger"
	"magicstream/pkg/metrics"
)

const serviceName = "magicstream-auth"

// HealthChecker is satisfied by *database.DB.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies are built once in main and shared by every route group.
type Dependencies struct {
	Users   users.Repository
	Tokens  *tokens.Service
	Hasher  *tokens.Hasher
	Audit   audit.Publisher
	Metrics *metrics.Recorder
	Logger  *logger.Logger
	Health  HealthChecker
}

// Router holds all route dependencies
type Router struct {
	config *config.Config
	deps   Dependencies
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, deps Dependencies) *Router {
	return &Router{
		config: cfg,
		deps:   deps,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	engine.GET("/metrics", gin.WrapH(r.deps.Metrics.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupAuthRoutes(api)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if r.deps.Health != nil {
			if err := r.deps.Health.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":    "unhealthy",
					"error":     err.Error(),
					"timestamp": time.Now(),
					"service":   serviceName,
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   serviceName,
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"token_store": r.config.JWT.TokenStore,
			"timestamp":   time.Now(),
		})
	})
}

// setupAuthRoutes configures authentication and admin routes
func (r *Router) setupAuthRoutes(rg *gin.RouterGroup) {
	authService := auth.NewService(r.deps.Users, r.deps.Tokens, r.deps.Hasher, r.deps.Audit, r.deps.Logger)
	authController := auth.NewController(authService, auth.CookieSettings{
		Domain:     r.config.Cookie.Domain,
		Secure:     r.config.Cookie.Secure,
		AccessTTL:  r.deps.Tokens.AccessTTL(),
		RefreshTTL: r.deps.Tokens.RefreshTTL(),
	}, r.deps.Logger)
	authRouter := auth.NewRouter(authController, r.deps.Tokens, r.deps.Logger)

	authRouter.SetupRoutes(rg)
}

var _ HealthChecker = (*database.DB)(nil)
