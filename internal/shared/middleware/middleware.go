package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"magicstream/internal/shared/utils/response"
	"magicstream/internal/tokens"
	"magicstream/internal/users"
	"magicstream/pkg/logger"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	RequestIDHeader = "X-Request-ID"
)

const (
	errNoToken      = "No token provided"
	errInvalidToken = "Invalid or expired token"
	errUnauthorized = "Unauthorized"
	errInsufficient = "Insufficient permissions"
)

// AccessValidator is the slice of the token service the middleware needs.
type AccessValidator interface {
	ValidateAccess(tokenString string) (*tokens.Claims, error)
}

// AuthMiddleware rejects requests without a valid access_token cookie and
// attaches the caller's Principal otherwise.
func AuthMiddleware(validator AccessValidator, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie(AccessTokenCookie)
		if err != nil || tokenString == "" {
			response.AbortWithError(c, http.StatusUnauthorized, errNoToken)
			return
		}

		claims, err := validator.ValidateAccess(tokenString)
		if err != nil {
			log.LogAuthFailure(c.Request.Context(), tokens.Reason(err), c.ClientIP())
			response.AbortWithError(c, http.StatusUnauthorized, errInvalidToken)
			return
		}

		setPrincipal(c, principalFromClaims(claims))
		c.Next()
	}
}

// OptionalAuth attaches a Principal when a valid access cookie is present and
// lets every request through.
func OptionalAuth(validator AccessValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie(AccessTokenCookie)
		if err == nil && tokenString != "" {
			if claims, err := validator.ValidateAccess(tokenString); err == nil {
				setPrincipal(c, principalFromClaims(claims))
			}
		}
		c.Next()
	}
}

func principalFromClaims(claims *tokens.Claims) Principal {
	return Principal{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   users.NormalizeRole(claims.Role),
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(requiredRole users.Role) gin.HandlerFunc {
	return RequireRoles(requiredRole)
}

// RequireAdmin middleware that requires admin role
func RequireAdmin() gin.HandlerFunc {
	return requirePrincipal(Principal.IsAdmin)
}

// RequireRoles lets the request through if the principal holds any of roles.
func RequireRoles(roles ...users.Role) gin.HandlerFunc {
	return requirePrincipal(func(p Principal) bool {
		for _, role := range roles {
			if p.Role == role {
				return true
			}
		}
		return false
	})
}

func requirePrincipal(allowed func(Principal) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			response.AbortWithError(c, http.StatusUnauthorized, errUnauthorized)
			return
		}
		if !allowed(p) {
			response.AbortWithError(c, http.StatusForbidden, errInsufficient)
			return
		}
		c.Next()
	}
}

// RequestID propagates X-Request-ID or assigns a fresh one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs every request once it has been served.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		l := log
		if id := c.GetString("request_id"); id != "" {
			l = l.WithRequestID(id)
		}
		if p, ok := PrincipalFrom(c); ok {
			l = l.WithUserID(p.UserID)
		}
		l.LogHTTPRequest(c, time.Since(start))
	}
}
