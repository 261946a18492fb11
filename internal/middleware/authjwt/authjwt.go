package authjwt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/plumehq/plume/internal/types"
)

// Config defines the config for the JWT middleware.
type Config struct {
	// The shared secret for validating HS256 tokens.
	Secret string
	// The claim key where the UserContext is stored.
	ClaimKey string
	// The context key to store the UserContext.
	UserCtxName string
}

// New creates a new middleware handler. Tokens arrive as a bearer
// Authorization header; the identity claims live under cfg.ClaimKey.
func New(cfg Config) fiber.Handler {
	secret := []byte(cfg.Secret)

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Missing or invalid JWT")
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			return unauthorized(c, "Invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return unauthorized(c, "Invalid token")
		}
		if exp, ok := claims["exp"].(float64); ok && int64(exp) < time.Now().Unix() {
			return unauthorized(c, "Token has expired")
		}

		claimData, ok := claims[cfg.ClaimKey].(map[string]interface{})
		if !ok {
			return unauthorized(c, "Invalid token claim format")
		}

		userCtx, err := mapToUserContext(claimData)
		if err != nil {
			return unauthorized(c, "Invalid user context in token")
		}

		c.Locals(cfg.UserCtxName, userCtx)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}

// mapToUserContext converts claim data to UserContext
func mapToUserContext(claimData map[string]interface{}) (types.UserContext, error) {
	var userCtx types.UserContext

	switch id := claimData["user_id"].(type) {
	case float64:
		userCtx.UserID = int64(id)
	case string:
		parsed, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return userCtx, fmt.Errorf("invalid user_id: %v", err)
		}
		userCtx.UserID = parsed
	default:
		return userCtx, errors.New("missing or invalid user_id in claim")
	}

	if handle, ok := claimData["handle"].(string); ok {
		userCtx.Handle = handle
	}
	if displayName, ok := claimData["display_name"].(string); ok {
		userCtx.DisplayName = displayName
	}

	return userCtx, nil
}
