package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/loadway/Loadway/internal/pkg/cache"
	"github.com/loadway/Loadway/internal/pkg/upstream"
	"github.com/loadway/Loadway/internal/pkg/usercontext"
)

const (
	profileCacheKeyPrefix = "auth:profile:"
	profileCacheTTL       = 5 * time.Minute
)

// BearerAuthMiddleware resolves the caller's platform bearer token to a user
// context. 401/403 from the platform invalidate the token here; the signal is
// passed through, never swallowed.
func BearerAuthMiddleware(api *upstream.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing bearer token"})
		}

		profile, err := resolveProfile(c.Context(), api, token)
		if err != nil {
			if errors.Is(err, upstream.ErrAuthInvalid) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid or expired token"})
			}
			log.Errorf("profile lookup failed: %v", err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "bad_gateway", "message": "Identity verification unavailable"})
		}

		userCtx := usercontext.UserContext{
			UserID:     profile.ID,
			Name:       profile.Name,
			Email:      profile.Email,
			Phone:      profile.Phone,
			Role:       profile.Role,
			Token:      token,
			IsLoggedIn: true,
		}
		c.Locals(usercontext.KeyUserContext, userCtx)
		c.Locals(usercontext.KeyUserID, profile.ID)
		c.Locals(usercontext.KeyRole, profile.Role)

		return c.Next()
	}
}

// resolveProfile caches token lookups briefly so every request does not hit
// the platform API.
func resolveProfile(ctx context.Context, api *upstream.Client, token string) (*upstream.Profile, error) {
	key := profileCacheKeyPrefix + hashToken(token)
	if data, err := cache.Get(key); err == nil {
		var profile upstream.Profile
		if json.Unmarshal([]byte(data), &profile) == nil && profile.ID != "" {
			return &profile, nil
		}
	}

	profile, err := api.GetProfile(ctx, token)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(profile); err == nil {
		if err := cache.Set(key, data, profileCacheTTL); err != nil {
			log.Warnf("failed to cache profile for user %s: %v", profile.ID, err)
		}
	}
	return profile, nil
}

func extractBearerToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
