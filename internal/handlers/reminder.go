package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"companion/internal/models"
	"companion/internal/services"
)

// ReminderHandler handles reminder CRUD requests.
type ReminderHandler struct {
	reminderService *services.ReminderService
	userID          string
}

// NewReminderHandler creates a new reminder handler.
func NewReminderHandler(reminderService *services.ReminderService, userID string) *ReminderHandler {
	return &ReminderHandler{
		reminderService: reminderService,
		userID:          userID,
	}
}

// Create creates a new reminder
// POST /api/reminders
func (h *ReminderHandler) Create(c *fiber.Ctx) error {
	var req models.CreateReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	triggerAt, err := req.Validate()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	reminder, err := h.reminderService.Create(c.Context(), h.userID, req.Message, triggerAt, req.Recurrence)
	if err != nil {
		log.Printf("❌ [REMINDER] Failed to create reminder: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	log.Printf("✅ [REMINDER] Created reminder %s (trigger: %s)", reminder.ID, reminder.TriggerAt)
	return c.Status(fiber.StatusCreated).JSON(reminder.ToResponse())
}

// List returns all reminders
// GET /api/reminders
func (h *ReminderHandler) List(c *fiber.Ctx) error {
	reminders, err := h.reminderService.List(c.Context(), h.userID)
	if err != nil {
		log.Printf("❌ [REMINDER] Failed to list reminders: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list reminders",
		})
	}

	responses := make([]*models.ReminderResponse, 0, len(reminders))
	for _, r := range reminders {
		responses = append(responses, r.ToResponse())
	}
	return c.JSON(fiber.Map{
		"reminders": responses,
		"count":     len(responses),
	})
}

// Get returns a single reminder
// GET /api/reminders/:id
func (h *ReminderHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	reminder, err := h.reminderService.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrReminderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Reminder not found",
			})
		}
		log.Printf("❌ [REMINDER] Failed to get reminder %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get reminder",
		})
	}
	return c.JSON(reminder.ToResponse())
}

// Cancel cancels a reminder
// DELETE /api/reminders/:id
func (h *ReminderHandler) Cancel(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.reminderService.Cancel(c.Context(), id); err != nil {
		if errors.Is(err, services.ErrReminderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Reminder not found",
			})
		}
		log.Printf("❌ [REMINDER] Failed to cancel reminder %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to cancel reminder",
		})
	}

	log.Printf("🗑️ [REMINDER] Cancelled reminder %s", id)
	return c.JSON(fiber.Map{
		"success": true,
	})
}
