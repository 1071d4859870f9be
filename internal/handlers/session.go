package handlers

import (
	"github.com/gofiber/fiber/v2"

	"pinetree/internal/services"
)

// SessionHandler exposes server-held edit sessions
type SessionHandler struct {
	sessions *services.EditSessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.EditSessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Open loads a tree into a new edit session
// POST /api/trees/:rootId/session
func (h *SessionHandler) Open(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	rootID, ok := guidParam(c, "rootId")
	if !ok {
		return badGuid(c, "rootId")
	}
	view, err := h.sessions.Open(c.UserContext(), userName, rootID)
	if err != nil {
		return serviceError(c, err, "open edit session")
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

// Apply runs one edit operation
// POST /api/trees/:rootId/session/ops
func (h *SessionHandler) Apply(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	rootID, ok := guidParam(c, "rootId")
	if !ok {
		return badGuid(c, "rootId")
	}
	var op services.EditOp
	if msg := bindBody(c, &op); msg != "" {
		return badRequest(c, msg)
	}

	result, err := h.sessions.Apply(c.UserContext(), userName, rootID, &op)
	if err != nil {
		return serviceError(c, err, "apply edit")
	}
	return c.JSON(result)
}

// Commit saves the session tree
// POST /api/trees/:rootId/session/commit
func (h *SessionHandler) Commit(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	rootID, ok := guidParam(c, "rootId")
	if !ok {
		return badGuid(c, "rootId")
	}
	result, err := h.sessions.Commit(c.UserContext(), userName, rootID)
	if err != nil {
		return serviceError(c, err, "save edit session")
	}
	return c.JSON(result)
}

// Discard drops the session without saving
// DELETE /api/trees/:rootId/session
func (h *SessionHandler) Discard(c *fiber.Ctx) error {
	userName := currentUser(c)
	if userName == "" {
		return unauthorized(c)
	}
	rootID, ok := guidParam(c, "rootId")
	if !ok {
		return badGuid(c, "rootId")
	}
	h.sessions.Discard(userName, rootID)
	return c.SendStatus(fiber.StatusNoContent)
}
