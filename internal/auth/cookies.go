package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"magicstream/internal/shared/middleware"
	"magicstream/internal/tokens"
)

// CookieSettings are applied to both auth cookies.
type CookieSettings struct {
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (s CookieSettings) setTokens(c *gin.Context, pair *tokens.Pair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, pair.AccessToken, int(s.AccessTTL.Seconds()), "/", s.Domain, s.Secure, true)
	c.SetCookie(middleware.RefreshTokenCookie, pair.RefreshToken, int(s.RefreshTTL.Seconds()), "/", s.Domain, s.Secure, true)
}

func (s CookieSettings) clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", s.Domain, s.Secure, true)
	c.SetCookie(middleware.RefreshTokenCookie, "", -1, "/", s.Domain, s.Secure, true)
}
