package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"pinetree/internal/models"
	"pinetree/internal/services"
	"pinetree/pkg/auth"
)

// LocalAuthHandler handles local JWT authentication endpoints
type LocalAuthHandler struct {
	jwtAuth     *auth.LocalJWTAuth
	userService *services.UserService
	tiers       *services.TierService
}

// NewLocalAuthHandler creates a new local auth handler
func NewLocalAuthHandler(jwtAuth *auth.LocalJWTAuth, userService *services.UserService, tiers *services.TierService) *LocalAuthHandler {
	return &LocalAuthHandler{
		jwtAuth:     jwtAuth,
		userService: userService,
		tiers:       tiers,
	}
}

// AuthResponse is the response for successful authentication
type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
	ExpiresIn    int          `json:"expires_in"` // seconds
}

func (h *LocalAuthHandler) setRefreshCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    token,
		Expires:  time.Now().Add(h.jwtAuth.RefreshTokenExpiry),
		HTTPOnly: true,
		Secure:   c.Protocol() == "https",
		SameSite: "Strict",
		Path:     "/api/auth",
	})
}

func (h *LocalAuthHandler) issue(c *fiber.Ctx, user *models.User, status int) error {
	accessToken, refreshToken, err := h.jwtAuth.GenerateTokens(user.UserName, user.Role, user.RefreshTokenVersion)
	if err != nil {
		log.Printf("❌ [AUTH] Failed to generate tokens: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate authentication tokens",
		})
	}
	h.setRefreshCookie(c, refreshToken)
	return c.Status(status).JSON(AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
		ExpiresIn:    int(h.jwtAuth.AccessTokenExpiry.Seconds()),
	})
}

// Register creates a new user account
// POST /api/auth/register
func (h *LocalAuthHandler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if msg := bindBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.UserContext()

	passwordHash, err := h.jwtAuth.HashPassword(req.Password)
	if err != nil {
		log.Printf("❌ [AUTH] Failed to hash password: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	// first user becomes admin
	role := "user"
	if count, err := h.userService.GetUserCount(ctx); err != nil {
		log.Printf("⚠️  [AUTH] Failed to get user count: %v", err)
	} else if count == 0 {
		role = "admin"
		log.Printf("🎉 [AUTH] Creating first user as admin: %s", req.Email)
	}

	user, err := h.userService.CreateUser(ctx, req.Email, passwordHash, role)
	if errors.Is(err, services.ErrUserExists) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "User with this email already exists",
		})
	}
	if err != nil {
		log.Printf("❌ [AUTH] Failed to create user: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	return h.issue(c, user, fiber.StatusCreated)
}

// Login authenticates a user
// POST /api/auth/login
func (h *LocalAuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if msg := bindBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	ctx := c.UserContext()

	user, err := h.userService.GetByUserName(ctx, req.Email)
	if err != nil {
		// slow down enumeration of unknown accounts
		time.Sleep(200 * time.Millisecond)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})
	}

	valid, err := h.jwtAuth.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil || !valid {
		log.Printf("⚠️  [AUTH] Failed login attempt for user: %s", user.UserName)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})
	}

	if err := h.userService.UpdateLastLogin(ctx, user.UserName); err != nil {
		log.Printf("⚠️  [AUTH] Failed to update last login time: %v", err)
	}

	log.Printf("✅ [AUTH] User logged in: %s", user.UserName)
	return h.issue(c, user, fiber.StatusOK)
}

// RefreshToken generates a new access token from a refresh token
// POST /api/auth/refresh
func (h *LocalAuthHandler) RefreshToken(c *fiber.Ctx) error {
	refreshToken := c.Cookies("refresh_token")
	if refreshToken == "" {
		var req models.RefreshRequest
		if err := c.BodyParser(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	}
	if refreshToken == "" {
		return badRequest(c, "Refresh token is required")
	}

	claims, err := h.jwtAuth.VerifyRefreshToken(refreshToken)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired refresh token",
		})
	}

	user, err := h.userService.GetByUserName(c.UserContext(), claims.Subject)
	if err != nil || user.RefreshTokenVersion != claims.Version {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Refresh token has been revoked",
		})
	}

	accessToken, _, err := h.jwtAuth.GenerateTokens(user.UserName, user.Role, user.RefreshTokenVersion)
	if err != nil {
		log.Printf("❌ [AUTH] Failed to generate new access token: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to refresh token",
		})
	}

	return c.JSON(fiber.Map{
		"access_token": accessToken,
		"expires_in":   int(h.jwtAuth.AccessTokenExpiry.Seconds()),
	})
}

// Logout revokes every refresh token of the user
// POST /api/auth/logout
func (h *LocalAuthHandler) Logout(c *fiber.Ctx) error {
	if userName := currentUser(c); userName != "" {
		if _, err := h.userService.BumpTokenVersion(c.UserContext(), userName); err != nil {
			log.Printf("⚠️  [AUTH] Failed to revoke tokens for %s: %v", userName, err)
		}
		log.Printf("✅ [AUTH] User logged out: %s", userName)
	}
	c.ClearCookie("refresh_token")
	return c.JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

// GetCurrentUser returns the currently authenticated user with plan limits
// GET /api/auth/me
func (h *LocalAuthHandler) GetCurrentUser(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	user, err := h.userService.GetByUserName(c.UserContext(), userName)
	if err != nil {
		return serviceError(c, err, "load user")
	}
	return c.JSON(fiber.Map{
		"user":   user,
		"limits": h.tiers.GetLimits(c.UserContext(), userName),
	})
}
