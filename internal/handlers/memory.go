package handlers

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"companion/internal/models"
	"companion/internal/services"
)

// MemoryHandler handles the user fact store.
type MemoryHandler struct {
	memoryService *services.MemoryService
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(memoryService *services.MemoryService) *MemoryHandler {
	return &MemoryHandler{memoryService: memoryService}
}

// Create stores a new fact
// POST /api/memories
func (h *MemoryHandler) Create(c *fiber.Ctx) error {
	var req models.CreateMemoryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "content is required",
		})
	}

	fact, err := h.memoryService.AddFact(c.Context(), req)
	if err != nil {
		log.Printf("❌ [MEMORY] Failed to store fact: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store fact",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fact)
}

// List returns all active facts
// GET /api/memories
func (h *MemoryHandler) List(c *fiber.Ctx) error {
	facts, err := h.memoryService.List(c.Context())
	if err != nil {
		log.Printf("❌ [MEMORY] Failed to list facts: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list facts",
		})
	}
	if facts == nil {
		facts = []models.MemoryFact{}
	}
	return c.JSON(fiber.Map{
		"memories": facts,
		"count":    len(facts),
	})
}

// Archive hides a fact from future decision context
// DELETE /api/memories/:id
func (h *MemoryHandler) Archive(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid memory ID",
		})
	}

	if err := h.memoryService.Archive(c.Context(), id); err != nil {
		if errors.Is(err, services.ErrMemoryNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Memory fact not found",
			})
		}
		log.Printf("❌ [MEMORY] Failed to archive fact %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to archive fact",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}
