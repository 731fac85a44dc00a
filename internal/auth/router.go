package auth

import (
	"github.com/gin-gonic/gin"

	"magicstream/internal/shared/middleware"
	"magicstream/pkg/logger"
)

// Router handles auth-related routes
type Router struct {
	controller *Controller
	validator  middleware.AccessValidator
	log        *logger.Logger
}

// NewRouter creates a new auth router
func NewRouter(controller *Controller, validator middleware.AccessValidator, log *logger.Logger) *Router {
	return &Router{
		controller: controller,
		validator:  validator,
		log:        log,
	}
}

// SetupRoutes registers all auth routes
func (authRouter *Router) SetupRoutes(rg *gin.RouterGroup) {
	requireAuth := middleware.AuthMiddleware(authRouter.validator, authRouter.log)

	auth := rg.Group("/auth")
	{
		// Public routes (no authentication required)
		auth.POST("/register", authRouter.controller.Register)
		auth.POST("/login", authRouter.controller.Login)
		auth.POST("/refresh", authRouter.controller.RefreshToken)
		auth.POST("/logout", middleware.OptionalAuth(authRouter.validator), authRouter.controller.Logout)

		// Protected routes (authentication required)
		protected := auth.Group("")
		protected.Use(requireAuth)
		{
			protected.PUT("/change-password", authRouter.controller.ChangePassword)
			protected.GET("/me", authRouter.controller.GetMe)
		}
	}

	admin := rg.Group("/admin")
	admin.Use(requireAuth, middleware.RequireAdmin())
	{
		admin.DELETE("/users/:id/refresh-token", authRouter.controller.RevokeUserToken)
	}
}
