package middleware

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"pinetree/pkg/auth"
)

// Locals keys set by the auth middleware
const (
	LocalUserName = "user_name"
	LocalUserRole = "user_role"
)

const devUserName = "dev@localhost"

// LocalAuthMiddleware verifies local JWT access tokens from the
// Authorization header.
func LocalAuthMiddleware(jwtAuth *auth.LocalJWTAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if jwtAuth == nil {
			environment := os.Getenv("ENVIRONMENT")
			if environment == "production" {
				log.Fatal("❌ CRITICAL SECURITY ERROR: JWT auth not configured in production environment. Authentication is required.")
			}
			if environment != "development" && environment != "testing" && environment != "" {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "Authentication service unavailable",
				})
			}

			c.Locals(LocalUserName, devUserName)
			c.Locals(LocalUserRole, "user")
			return c.Next()
		}

		token, err := auth.ExtractToken(c.Get("Authorization"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid authorization token",
			})
		}

		principal, err := jwtAuth.VerifyAccessToken(token)
		if err != nil {
			log.Printf("❌ [AUTH] Token rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(LocalUserName, principal.UserName)
		c.Locals(LocalUserRole, principal.Role)
		return c.Next()
	}
}

// OptionalLocalAuthMiddleware sets the principal when a valid token is
// present and lets anonymous requests through otherwise.
func OptionalLocalAuthMiddleware(jwtAuth *auth.LocalJWTAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if jwtAuth == nil {
			return c.Next()
		}
		token, err := auth.ExtractToken(c.Get("Authorization"))
		if err != nil {
			return c.Next()
		}
		principal, err := jwtAuth.VerifyAccessToken(token)
		if err != nil {
			log.Printf("⚠️  [AUTH] Token validation failed: %v (continuing as anonymous)", err)
			return c.Next()
		}
		c.Locals(LocalUserName, principal.UserName)
		c.Locals(LocalUserRole, principal.Role)
		return c.Next()
	}
}

// UserName returns the authenticated user, or "" for anonymous requests.
func UserName(c *fiber.Ctx) string {
	name, _ := c.Locals(LocalUserName).(string)
	return name
}
