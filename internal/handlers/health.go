package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"pinetree/internal/database"
	"pinetree/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db    *database.DB
	redis *services.RedisService
	mongo *database.MongoDB
}

// NewHealthHandler creates a new health handler. redis and mongo may be nil.
func NewHealthHandler(db *database.DB, redis *services.RedisService, mongo *database.MongoDB) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, mongo: mongo}
}

// Handle responds with server health status
// GET /health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{"database": "ok"}
	status := "healthy"
	code := fiber.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = err.Error()
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	}
	// optional backends degrade rather than fail
	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			if status == "healthy" {
				status = "degraded"
			}
		}
	}
	if h.mongo != nil {
		checks["mongodb"] = "ok"
		if err := h.mongo.Ping(ctx); err != nil {
			checks["mongodb"] = err.Error()
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
