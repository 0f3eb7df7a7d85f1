package middleware

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/finitixhub/finitix_be/internal/utils"
)

const CookieName = "fh_token"

// RevocationChecker reports whether a session id was signed out, or whether
// every session of a user issued before some point was ended.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
	IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

// TokenFromRequest reads the session token from the cookie, the Authorization
// header or, for websocket upgrades, the token query parameter.
func TokenFromRequest(c *fiber.Ctx) string {
	if tok := c.Cookies(CookieName); tok != "" {
		return tok
	}
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

// SessionFromRequest validates the request's token and that neither the session
// nor the whole account was revoked.
func SessionFromRequest(c *fiber.Ctx, secret string, revoked RevocationChecker) (*utils.Claims, error) {
	tokenStr := TokenFromRequest(c)
	if tokenStr == "" {
		return nil, fiber.ErrUnauthorized
	}

	claims, err := utils.ParseJWT(secret, tokenStr)
	if err != nil {
		return nil, fiber.ErrUnauthorized
	}

	if revoked != nil {
		isRevoked, err := revoked.IsRevoked(c.UserContext(), claims.ID)
		if err != nil {
			log.Printf("[Auth] revocation check failed: %v", err)
			return nil, fiber.NewError(fiber.StatusServiceUnavailable, "session store unavailable")
		}
		if isRevoked {
			return nil, fiber.ErrUnauthorized
		}

		var issuedAt time.Time
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		isRevoked, err = revoked.IsUserRevoked(c.UserContext(), claims.UserID, issuedAt)
		if err != nil {
			log.Printf("[Auth] revocation check failed: %v", err)
			return nil, fiber.NewError(fiber.StatusServiceUnavailable, "session store unavailable")
		}
		if isRevoked {
			return nil, fiber.ErrUnauthorized
		}
	}
	return claims, nil
}

func JWTFromCookie(secret string, revoked RevocationChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := SessionFromRequest(c, secret, revoked)
		if err != nil {
			return err
		}
		c.Locals("user", claims)
		return c.Next()
	}
}

// OptionalJWT attaches the session like JWTFromCookie + AttachJWTLocals when
// a valid token is present and lets anonymous requests through otherwise.
func OptionalJWT(secret string, revoked RevocationChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if TokenFromRequest(c) == "" {
			return c.Next()
		}
		claims, err := SessionFromRequest(c, secret, revoked)
		if err != nil {
			return c.Next()
		}
		c.Locals("user", claims)
		c.Locals("userId", claims.UserID)
		c.Locals("role", strings.ToLower(claims.Role))
		return c.Next()
	}
}
