package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"companion/internal/clock"
	"companion/internal/models"
	"companion/internal/services"
)

// ProactiveHandler exposes the proactive control surface: status, quiet-mode
// override, and the activity signals the spontaneous loop reasons about.
type ProactiveHandler struct {
	stateService    *services.StateService
	activityService *services.ActivityService
	spontaneous     *services.SpontaneousService
	cfg             models.ProactiveConfig
}

// NewProactiveHandler creates a new proactive handler.
func NewProactiveHandler(stateService *services.StateService, activityService *services.ActivityService, spontaneous *services.SpontaneousService, cfg models.ProactiveConfig) *ProactiveHandler {
	return &ProactiveHandler{
		stateService:    stateService,
		activityService: activityService,
		spontaneous:     spontaneous,
		cfg:             cfg,
	}
}

// Status reports the current proactive state and effective budgets
// GET /api/proactive/status
func (h *ProactiveHandler) Status(c *fiber.Ctx) error {
	st, err := h.stateService.Load(c.Context())
	if err != nil {
		log.Printf("❌ [PROACTIVE] Failed to load state: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load proactive state",
		})
	}

	now := time.Now()
	loc, _ := clock.LocationOrUTC(h.cfg.Timezone)
	hour, _, date := clock.LocalParts(now, loc)
	budget := services.EvaluateBudget(st, h.cfg, now, loc)

	return c.JSON(fiber.Map{
		"level":             h.cfg.Level,
		"timezone":          h.cfg.Timezone,
		"localDate":         date,
		"localHour":         hour,
		"quietHours":        services.IsWithinQuietHours(hour, h.cfg.QuietHoursStart, h.cfg.QuietHoursEnd),
		"quietModeUntil":    st.QuietModeUntil,
		"remainingThisHour": budget.RemainingThisHour,
		"remainingToday":    budget.RemainingToday,
		"cooldownActive":    budget.CooldownActive,
		"breakerTripped":    services.BreakerTripped(st, now),
		"breakerUntil":      st.BreakerTrippedUntil,
		"lastSpontaneousAt": st.LastSpontaneousAt,
		"lastReminderAt":    st.LastReminderAt,
		"lastUserMessageAt": st.LastUserMessageAt,
		"consecutiveSkips":  st.ConsecutiveMutexSkips,
	})
}

type quietRequest struct {
	Minutes int `json:"minutes"`
}

// Quiet silences the spontaneous loop for a while
// POST /api/proactive/quiet
func (h *ProactiveHandler) Quiet(c *fiber.Ctx) error {
	var req quietRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Minutes < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "minutes must not be negative",
		})
	}

	// Zero minutes clears the override.
	until := time.Time{}
	if req.Minutes > 0 {
		until = time.Now().Add(time.Duration(req.Minutes) * time.Minute)
	}

	if err := h.activityService.SetQuietMode(c.Context(), until); err != nil {
		log.Printf("❌ [PROACTIVE] Failed to set quiet mode: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to set quiet mode",
		})
	}

	if req.Minutes > 0 {
		log.Printf("🤫 [PROACTIVE] Quiet mode until %s", until.Format(time.RFC3339))
	} else {
		log.Printf("🔊 [PROACTIVE] Quiet mode cleared")
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"quietModeUntil": until,
	})
}

// RecordMessage stamps a user message
// POST /api/activity/message
func (h *ProactiveHandler) RecordMessage(c *fiber.Ctx) error {
	if err := h.activityService.RecordUserMessage(c.Context(), time.Now()); err != nil {
		log.Printf("❌ [PROACTIVE] Failed to record message: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record message",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// RecordPing stamps user presence without a message
// POST /api/activity/ping
func (h *ProactiveHandler) RecordPing(c *fiber.Ctx) error {
	if err := h.activityService.RecordUserActivity(c.Context(), time.Now()); err != nil {
		log.Printf("❌ [PROACTIVE] Failed to record activity: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record activity",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

type brainRequest struct {
	Busy bool `json:"busy"`
}

// Brain flags whether the conversational pipeline is mid-response
// POST /api/proactive/brain
func (h *ProactiveHandler) Brain(c *fiber.Ctx) error {
	var req brainRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	h.spontaneous.SetBrainProcessing(req.Busy)
	return c.JSON(fiber.Map{"success": true, "busy": req.Busy})
}
