package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"companion/internal/database"
	"companion/internal/services"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	db    *database.DB
	redis *services.RedisService // optional
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *database.DB, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Handle responds with server health status
// GET /health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	dbOK := h.db.PingContext(c.Context()) == nil
	if !dbOK {
		status = "degraded"
	}

	resp := fiber.Map{
		"status":    status,
		"database":  dbOK,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if h.redis != nil {
		resp["redis"] = h.redis.Ping(c.Context()) == nil
	}

	if !dbOK {
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}
