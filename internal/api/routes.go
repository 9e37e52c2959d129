package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wayfarerhq/wayfarer/server/domain/entities"
	"github.com/wayfarerhq/wayfarer/server/internal/auth"
	"github.com/wayfarerhq/wayfarer/server/internal/websocket"
)

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, authenticator *auth.Authenticator, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"service":     "wayfarer-concierge",
			"connections": hub.ActiveConnections(),
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/auth/token", func(c echo.Context) error {
		return issueUserToken(c, authenticator, logger)
	})
	v1.POST("/auth/guest", func(c echo.Context) error {
		return issueGuestToken(c, authenticator, logger)
	})

	// WebSocket endpoint; tokenless connections get an anonymous session
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(hub, c, authenticator, logger)
	})
}

// issueUserToken exchanges an identity asserted by the embedding site's
// backend for a session token. The endpoint trusts its caller; it is meant
// to sit behind the site's own authentication.
func issueUserToken(c echo.Context, authenticator *auth.Authenticator, logger *zap.Logger) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "user_id is required",
		})
	}

	token, err := authenticator.GenerateUserToken(req.UserID, req.DisplayName)
	if err != nil {
		logger.Error("Failed to generate user token",
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
		UserID:    req.UserID,
	})
}

// issueGuestToken mints a token for an anonymous visitor. Guest sessions
// stay in memory only.
func issueGuestToken(c echo.Context, authenticator *auth.Authenticator, logger *zap.Logger) error {
	guestID := "guest-" + uuid.NewString()

	token, err := authenticator.GenerateGuestToken(guestID)
	if err != nil {
		logger.Error("Failed to generate guest token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		UserID:    guestID,
	})
}

// websocketWithAuth resolves the connection's identity from its token and
// hands the socket to the hub. A missing token is not an error: the widget
// works signed out, with an ephemeral transcript.
func websocketWithAuth(hub *websocket.Hub, c echo.Context, authenticator *auth.Authenticator, logger *zap.Logger) error {
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}
	if token == "" {
		// Browsers cannot set headers on websocket upgrades, so the widget
		// passes the token as a query parameter.
		token = c.QueryParam("token")
	}

	identity := entities.Anonymous()
	if token != "" {
		claims, err := authenticator.ValidateToken(token)
		if err != nil {
			logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired session token",
			})
		}
		identity = claims.Identity()
	}

	logger.Info("WebSocket connection accepted",
		zap.String("identity", identity.ID),
		zap.Bool("anonymous", identity.IsAnonymous()))

	return websocket.HandleWebSocket(hub, c, identity, logger)
}
