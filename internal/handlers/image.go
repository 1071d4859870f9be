package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"pinetree/internal/models"
	"pinetree/internal/services"
)

// ImageHandler handles image uploads attached to notes
type ImageHandler struct {
	images *services.ImageService
}

// NewImageHandler creates a new image handler
func NewImageHandler(images *services.ImageService) *ImageHandler {
	return &ImageHandler{images: images}
}

// Upload stores the multipart "file" field against a node
// POST /api/pinecones/:guid/images
func (h *ImageHandler) Upload(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	guid, ok := guidParam(c, "guid")
	if !ok {
		return badGuid(c, "guid")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file provided")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "Failed to read uploaded file")
	}
	defer file.Close()

	img, err := h.images.Upload(c.UserContext(), userName, guid, fileHeader.Filename, file)
	if err != nil {
		return serviceError(c, err, "upload image")
	}
	return c.Status(fiber.StatusCreated).JSON(models.ImageUploadResponse{
		ID:       img.ID,
		URL:      fmt.Sprintf("/api/images/%s", img.ID),
		Filename: img.Filename,
		MimeType: img.MimeType,
		Size:     img.Size,
	})
}

// Get serves an image to its owner, or to anyone when its note is public
// GET /api/images/:id
func (h *ImageHandler) Get(c *fiber.Ctx) error {
	id, ok := guidParam(c, "id")
	if !ok {
		return badGuid(c, "id")
	}
	img, err := h.images.Get(c.UserContext(), currentUser(c), id)
	if err != nil {
		return serviceError(c, err, "load image")
	}
	c.Set(fiber.HeaderContentType, img.MimeType)
	c.Set("X-Content-Type-Options", "nosniff")
	c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
	return c.SendFile(img.StoragePath)
}

// Delete removes an image
// DELETE /api/images/:id
func (h *ImageHandler) Delete(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	id, ok := guidParam(c, "id")
	if !ok {
		return badGuid(c, "id")
	}
	if err := h.images.Delete(c.UserContext(), userName, id); err != nil {
		return serviceError(c, err, "delete image")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
