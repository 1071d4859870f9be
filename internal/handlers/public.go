package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"pinetree/internal/services"
)

// PublicHandler serves published notes to anonymous readers
type PublicHandler struct {
	pinecones *services.PineconeService
}

// NewPublicHandler creates a new public handler
func NewPublicHandler(pinecones *services.PineconeService) *PublicHandler {
	return &PublicHandler{pinecones: pinecones}
}

// Render returns a public note as an HTML page
// GET /public/:guid
func (h *PublicHandler) Render(c *fiber.Ctx) error {
	guid, ok := guidParam(c, "guid")
	if !ok {
		return c.Status(fiber.StatusNotFound).SendString("Not found")
	}
	page, err := h.pinecones.RenderPublic(c.UserContext(), guid)
	if errors.Is(err, services.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).SendString("Not found")
	}
	if err != nil {
		return serviceError(c, err, "render page")
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=60")
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(page)
}
