package handlers

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"pinetree/internal/middleware"
	"pinetree/internal/services"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// bindBody decodes the JSON body into dst and runs its validate tags. It
// returns a client-facing message, empty when the body is acceptable.
func bindBody(c *fiber.Ctx, dst any) string {
	if err := c.BodyParser(dst); err != nil {
		return "Invalid request body"
	}
	if err := validate.Struct(dst); err != nil {
		return validationMessage(err)
	}
	return ""
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return "Invalid request: " + strings.Join(msgs, "; ")
}

// guidParam parses a path parameter as a uuid.
func guidParam(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	g, err := uuid.Parse(c.Params(name))
	return g, err == nil
}

func badGuid(c *fiber.Ctx, name string) error {
	return badRequest(c, fmt.Sprintf("Invalid %s", name))
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Authentication required",
	})
}

// currentUser is the authenticated user name, empty for anonymous requests.
func currentUser(c *fiber.Ctx) string {
	return middleware.UserName(c)
}

// serviceError maps service errors onto HTTP responses.
func serviceError(c *fiber.Ctx, err error, action string) error {
	var limitErr *services.LimitExceededError
	switch {
	case errors.As(err, &limitErr):
		return c.Status(fiber.StatusTooManyRequests).JSON(limitErr)
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, services.ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied"})
	case errors.Is(err, services.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrQuotaExceeded):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":      err.Error(),
			"upgrade_to": "pro",
		})
	default:
		log.Printf("❌ [HTTP] Failed to %s: %v", action, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to %s", action),
		})
	}
}
