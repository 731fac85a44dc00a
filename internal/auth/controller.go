package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"magicstream/internal/shared/middleware"
	"magicstream/internal/shared/utils/response"
	"magicstream/internal/tokens"
	"magicstream/internal/users"
	"magicstream/pkg/logger"
)

type Controller struct {
	service   Service
	cookies   CookieSettings
	validator *validator.Validate
	log       *logger.Logger
}

func NewController(service Service, cookies CookieSettings, log *logger.Logger) *Controller {
	return &Controller{
		service:   service,
		cookies:   cookies,
		validator: validator.New(),
		log:       log,
	}
}

// Register godoc
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      RegisterRequest  true  "Registration payload"
// @Success      201      {object}  response.StandardApiResponse{data=AuthResponse}
// @Failure      400      {object}  response.StandardApiResponse
// @Failure      409      {object}  response.StandardApiResponse
// @Router       /auth/register [post]
func (c *Controller) Register(ctx *gin.Context) {
	var req RegisterRequest
	if !c.bind(ctx, &req) {
		return
	}

	user, pair, err := c.service.Register(ctx.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserAlreadyExists):
			response.RespondJSON(ctx, "error", http.StatusConflict, "User with this email already exists", nil, nil)
		default:
			c.log.LogHTTPError(ctx, err, http.StatusInternalServerError)
			response.RespondJSON(ctx, "error", http.StatusInternalServerError, "Failed to register user", nil, nil)
		}
		return
	}

	c.cookies.setTokens(ctx, pair)
	response.RespondJSON(ctx, "success", http.StatusCreated, "User registered successfully", AuthResponse{
		User:             toUserResponse(user),
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil)
}

// Login godoc
// @Summary      Log in with email and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      LoginRequest  true  "Credentials"
// @Success      200      {object}  response.StandardApiResponse{data=AuthResponse}
// @Failure      401      {object}  response.StandardApiResponse
// @Router       /auth/login [post]
func (c *Controller) Login(ctx *gin.Context) {
	var req LoginRequest
	if !c.bind(ctx, &req) {
		return
	}

	user, pair, err := c.service.Login(ctx.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			c.log.LogAuthFailure(ctx.Request.Context(), "invalid_credentials", ctx.ClientIP())
			response.RespondJSON(ctx, "error", http.StatusUnauthorized, "Invalid email or password", nil, nil)
		default:
			c.log.LogHTTPError(ctx, err, http.StatusInternalServerError)
			response.RespondJSON(ctx, "error", http.StatusInternalServerError, "Failed to login", nil, nil)
		}
		return
	}

	c.cookies.setTokens(ctx, pair)
	response.RespondJSON(ctx, "success", http.StatusOK, "Login successful", AuthResponse{
		User:             toUserResponse(user),
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil)
}

// RefreshToken godoc
// @Summary      Rotate the refresh token and mint a new access token
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.StandardApiResponse{data=RefreshResponse}
// @Failure      401  {object}  response.StandardApiResponse
// @Failure      503  {object}  response.StandardApiResponse
// @Router       /auth/refresh [post]
func (c *Controller) RefreshToken(ctx *gin.Context) {
	refreshToken, err := ctx.Cookie(middleware.RefreshTokenCookie)
	if err != nil || refreshToken == "" {
		response.RespondError(ctx, http.StatusUnauthorized, "No refresh token provided")
		return
	}

	// Failed refreshes leave cookies alone: the loser of a concurrent refresh
	// must not wipe the winner's fresh cookies.
	pair, err := c.service.Refresh(ctx.Request.Context(), refreshToken)
	if err != nil {
		switch {
		case tokens.IsAuthFailure(err):
			response.RespondError(ctx, http.StatusUnauthorized, "Invalid or expired refresh token")
		case errors.Is(err, tokens.ErrStoreUnavailable):
			c.log.LogHTTPError(ctx, err, http.StatusServiceUnavailable)
			response.RespondError(ctx, http.StatusServiceUnavailable, "Token store unavailable")
		default:
			c.log.LogHTTPError(ctx, err, http.StatusInternalServerError)
			response.RespondError(ctx, http.StatusInternalServerError, "Failed to refresh token")
		}
		return
	}

	c.cookies.setTokens(ctx, pair)
	response.RespondJSON(ctx, "success", http.StatusOK, "Token refreshed successfully", RefreshResponse{
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil)
}

// Logout godoc
// @Summary      Log out and revoke the refresh token
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.StandardApiResponse
// @Router       /auth/logout [post]
func (c *Controller) Logout(ctx *gin.Context) {
	var principalID string
	if p, ok := middleware.PrincipalFrom(ctx); ok {
		principalID = p.UserID
	}
	refreshToken, _ := ctx.Cookie(middleware.RefreshTokenCookie)

	c.service.Logout(ctx.Request.Context(), principalID, refreshToken)

	c.cookies.clear(ctx)
	response.RespondJSON(ctx, "success", http.StatusOK, "Logged out successfully", nil, nil)
}

// ChangePassword godoc
// @Summary      Change the caller's password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      ChangePasswordRequest  true  "Passwords"
// @Success      200      {object}  response.StandardApiResponse
// @Failure      401      {object}  response.StandardApiResponse
// @Router       /auth/change-password [put]
func (c *Controller) ChangePassword(ctx *gin.Context) {
	p, ok := middleware.PrincipalFrom(ctx)
	if !ok {
		response.RespondError(ctx, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req ChangePasswordRequest
	if !c.bind(ctx, &req) {
		return
	}

	err := c.service.ChangePassword(ctx.Request.Context(), p.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			response.RespondJSON(ctx, "error", http.StatusUnauthorized, "Current password is incorrect", nil, nil)
		case errors.Is(err, users.ErrUserNotFound):
			response.RespondJSON(ctx, "error", http.StatusNotFound, "User not found", nil, nil)
		default:
			c.log.LogHTTPError(ctx, err, http.StatusInternalServerError)
			response.RespondJSON(ctx, "error", http.StatusInternalServerError, "Failed to change password", nil, nil)
		}
		return
	}

	c.cookies.clear(ctx)
	response.RespondJSON(ctx, "success", http.StatusOK, "Password changed successfully, please log in again", nil, nil)
}

// GetMe godoc
// @Summary      Current user profile
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.StandardApiResponse{data=UserResponse}
// @Failure      401  {object}  response.StandardApiResponse
// @Router       /auth/me [get]
func (c *Controller) GetMe(ctx *gin.Context) {
	p, ok := middleware.PrincipalFrom(ctx)
	if !ok {
		response.RespondError(ctx, http.StatusUnauthorized, "User not authenticated")
		return
	}

	user, err := c.service.Profile(ctx.Request.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			response.RespondJSON(ctx, "error", http.StatusNotFound, "User not found", nil, nil)
			return
		}
		c.log.LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, "Failed to load user", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "User data retrieved successfully", toUserResponse(user), nil)
}

// RevokeUserToken godoc
// @Summary      Revoke another user's refresh token
// @Tags         admin
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.StandardApiResponse
// @Failure      403  {object}  response.StandardApiResponse
// @Failure      404  {object}  response.StandardApiResponse
// @Router       /admin/users/{id}/refresh-token [delete]
func (c *Controller) RevokeUserToken(ctx *gin.Context) {
	userID := ctx.Param("id")

	err := c.service.RevokeUser(ctx.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrUserNotFound):
			response.RespondJSON(ctx, "error", http.StatusNotFound, "User not found", nil, nil)
		case errors.Is(err, tokens.ErrStoreUnavailable):
			c.log.LogHTTPError(ctx, err, http.StatusServiceUnavailable)
			response.RespondError(ctx, http.StatusServiceUnavailable, "Token store unavailable")
		default:
			c.log.LogHTTPError(ctx, err, http.StatusInternalServerError)
			response.RespondJSON(ctx, "error", http.StatusInternalServerError, "Failed to revoke token", nil, nil)
		}
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Refresh token revoked", nil, nil)
}

func (c *Controller) bind(ctx *gin.Context, req interface{}) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return false
	}
	if err := c.validator.Struct(req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return false
	}
	return true
}
