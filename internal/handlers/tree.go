package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"pinetree/internal/models"
	"pinetree/internal/services"
	"pinetree/internal/tree"
)

// TreeHandler serves the tree lifecycle endpoints
type TreeHandler struct {
	pinecones *services.PineconeService
}

// NewTreeHandler creates a new tree handler
func NewTreeHandler(pinecones *services.PineconeService) *TreeHandler {
	return &TreeHandler{pinecones: pinecones}
}

// List returns the user's trees
// GET /api/trees
func (h *TreeHandler) List(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	trees, err := h.pinecones.ListTrees(c.UserContext(), userName)
	if err != nil {
		return serviceError(c, err, "list trees")
	}
	return c.JSON(fiber.Map{"trees": trees})
}

// ListTrash returns the user's trashed trees
// GET /api/trash
func (h *TreeHandler) ListTrash(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	trees, err := h.pinecones.ListTrash(c.UserContext(), userName)
	if err != nil {
		return serviceError(c, err, "list trash")
	}
	return c.JSON(fiber.Map{"trees": trees})
}

// Create starts a new tree
// POST /api/trees
func (h *TreeHandler) Create(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	var req models.CreateTreeRequest
	if msg := bindBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}

	root, err := h.pinecones.CreateTree(c.UserContext(), userName, req.Title, req.Content)
	if err != nil {
		return serviceError(c, err, "create tree")
	}
	return c.Status(fiber.StatusCreated).JSON(root)
}

// Get returns a tree as nested nodes
// GET /api/trees/:rootId
func (h *TreeHandler) Get(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	rootID, ok := guidParam(c, "rootId")
	if !ok {
		return badGuid(c, "rootId")
	}

	model, err := h.pinecones.LoadViewModel(c.UserContext(), userName, rootID)
	if err != nil {
		return serviceError(c, err, "load tree")
	}
	return c.JSON(tree.ToView(model))
}

// Save persists an edited tree
// PUT /api/trees/:rootId
func (h *TreeHandler) Save(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	var req models.SaveTreeRequest
	if msg := bindBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	rootID, ok := guidParam(c, "rootId")
	if !ok {
		return badGuid(c, "rootId")
	}
	if bodyRoot, err := uuid.Parse(req.RootID); err != nil || bodyRoot != rootID {
		return badRequest(c, "rootId in body does not match the URL")
	}

	result, err := h.pinecones.SaveTree(c.UserContext(), userName, &req)
	if err != nil {
		return serviceError(c, err, "save tree")
	}
	return c.JSON(result)
}

// Trash moves a tree to the trash
// DELETE /api/trees/:rootId
func (h *TreeHandler) Trash(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	rootID, ok := guidParam(c, "rootId")
	if !ok {
		return badGuid(c, "rootId")
	}
	if err := h.pinecones.TrashTree(c.UserContext(), userName, rootID); err != nil {
		return serviceError(c, err, "trash tree")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Restore takes a tree out of the trash
// POST /api/trees/:rootId/restore
func (h *TreeHandler) Restore(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	rootID, ok := guidParam(c, "rootId")
	if !ok {
		return badGuid(c, "rootId")
	}
	if err := h.pinecones.RestoreTree(c.UserContext(), userName, rootID); err != nil {
		return serviceError(c, err, "restore tree")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteNode removes one node and its subtree
// DELETE /api/pinecones/:guid
func (h *TreeHandler) DeleteNode(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	guid, ok := guidParam(c, "guid")
	if !ok {
		return badGuid(c, "guid")
	}
	parent, err := h.pinecones.DeleteNode(c.UserContext(), userName, guid)
	if err != nil {
		return serviceError(c, err, "delete node")
	}
	return c.JSON(fiber.Map{"parentGuid": parent})
}

// SetVisibility makes a node public or private
// PUT /api/pinecones/:guid/visibility
func (h *TreeHandler) SetVisibility(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	guid, ok := guidParam(c, "guid")
	if !ok {
		return badGuid(c, "guid")
	}
	var req models.VisibilityRequest
	if msg := bindBody(c, &req); msg != "" {
		return badRequest(c, msg)
	}

	node, err := h.pinecones.SetVisibility(c.UserContext(), userName, guid, req.IsPublic)
	if err != nil {
		return serviceError(c, err, "change visibility")
	}
	return c.JSON(node)
}
