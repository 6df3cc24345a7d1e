package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/foxxcyber/rappi-flow/internal/middleware"
	"github.com/foxxcyber/rappi-flow/internal/services"
)

type tokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueToken exchanges the bot client credentials for an access token
func (h *Handler) IssueToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.ClientID == "" || req.ClientSecret == "" {
		return Error(c, fiber.StatusBadRequest, "clientId and clientSecret are required")
	}

	if req.ClientID != h.cfg.BotClientID || !services.CheckClientSecret(h.cfg.BotClientSecretHash, req.ClientSecret) {
		return Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	expiresAt := time.Now().Add(h.cfg.JWTExpiry)
	token, err := h.generateToken(req.ClientID, expiresAt)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to generate token")
	}

	return Success(c, tokenResponse{Token: token, ExpiresAt: expiresAt.UTC()})
}

// generateToken creates a new JWT token for a bot client
func (h *Handler) generateToken(clientID string, expiresAt time.Time) (string, error) {
	claims := &middleware.JWTClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   clientID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.signingKey)
}
