package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"magicstream/internal/users"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Email  string
	Role   users.Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == users.RoleAdmin
}

type principalKey struct{}

const ginPrincipalKey = "auth.principal"

// setPrincipal stores p on the gin context and on the request context so it
// is reachable from code that only sees a context.Context.
func setPrincipal(c *gin.Context, p Principal) {
	c.Set(ginPrincipalKey, p)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), principalKey{}, p))
}

// PrincipalFrom returns the principal set by AuthMiddleware or OptionalAuth.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ginPrincipalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
