package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"companion/internal/database"
	"companion/internal/models"
	"companion/internal/services"
)

func setupTestApp(t *testing.T) (*fiber.App, *database.DB) {
	t.Helper()
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	return fiber.New(), db
}

func TestHealthHandler(t *testing.T) {
	app, db := setupTestApp(t)
	handler := NewHealthHandler(db, nil)
	app.Get("/health", handler.Handle)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["database"] != true {
		t.Errorf("database = %v, want true", body["database"])
	}
}

func TestReminderHandlerCreateAndCancel(t *testing.T) {
	app, db := setupTestApp(t)
	reminderService := services.NewReminderService(db)
	handler := NewReminderHandler(reminderService, "user-1")
	app.Post("/api/reminders", handler.Create)
	app.Get("/api/reminders/:id", handler.Get)
	app.Delete("/api/reminders/:id", handler.Cancel)

	payload, _ := json.Marshal(models.CreateReminderRequest{
		Message:   "stand up",
		TriggerAt: time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	req := httptest.NewRequest("POST", "/api/reminders", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}

	var created models.ReminderResponse
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("Failed to parse created reminder: %v", err)
	}
	if created.Status != "pending" {
		t.Errorf("status = %s, want pending", created.Status)
	}

	req = httptest.NewRequest("DELETE", "/api/reminders/"+created.ID, nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("Failed to send cancel: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("cancel status = %d, want 200", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/api/reminders/"+created.ID, nil)
	resp, _ = app.Test(req)
	var got models.ReminderResponse
	data, _ = io.ReadAll(resp.Body)
	json.Unmarshal(data, &got)
	if !got.Cancelled {
		t.Error("reminder not cancelled after DELETE")
	}
}

func TestReminderHandlerRejectsBadPayload(t *testing.T) {
	app, db := setupTestApp(t)
	handler := NewReminderHandler(services.NewReminderService(db), "user-1")
	app.Post("/api/reminders", handler.Create)

	tests := []struct {
		name string
		body string
	}{
		{"missing message", `{"triggerAt":"2026-03-10T10:00:00Z"}`},
		{"bad time format", `{"message":"hi","triggerAt":"tomorrow"}`},
		{"not json", `not json at all`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/reminders", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Failed to send request: %v", err)
			}
			if resp.StatusCode != 400 {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestReminderHandlerNotFound(t *testing.T) {
	app, db := setupTestApp(t)
	handler := NewReminderHandler(services.NewReminderService(db), "user-1")
	app.Get("/api/reminders/:id", handler.Get)
	app.Delete("/api/reminders/:id", handler.Cancel)

	req := httptest.NewRequest("GET", "/api/reminders/does-not-exist", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != 404 {
		t.Errorf("get status = %d, want 404", resp.StatusCode)
	}

	req = httptest.NewRequest("DELETE", "/api/reminders/does-not-exist", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != 404 {
		t.Errorf("cancel status = %d, want 404", resp.StatusCode)
	}
}

func TestProactiveQuietHandler(t *testing.T) {
	app, db := setupTestApp(t)
	stateService := services.NewStateService(db)
	activityService := services.NewActivityService(stateService)
	cfg := models.ProactiveConfig{
		TickInterval:     5 * time.Minute,
		ReminderInterval: time.Minute,
		MaxPerHour:       2,
		MaxPerDay:        8,
		QuietHoursStart:  22,
		QuietHoursEnd:    8,
		BreakerThreshold: 5,
		DecisionTimeout:  30 * time.Second,
		Level:            models.ProactivityMedium,
		Timezone:         "UTC",
	}
	handler := NewProactiveHandler(stateService, activityService, nil, cfg)
	app.Post("/api/proactive/quiet", handler.Quiet)
	app.Get("/api/proactive/status", handler.Status)

	req := httptest.NewRequest("POST", "/api/proactive/quiet", bytes.NewReader([]byte(`{"minutes":60}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("quiet status = %d, want 200", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/api/proactive/status", nil)
	resp, _ = app.Test(req)
	var body map[string]interface{}
	data, _ := io.ReadAll(resp.Body)
	json.Unmarshal(data, &body)
	if body["quietModeUntil"] == nil {
		t.Error("quiet mode not reflected in status")
	}

	// Negative minutes are rejected.
	req = httptest.NewRequest("POST", "/api/proactive/quiet", bytes.NewReader([]byte(`{"minutes":-5}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != 400 {
		t.Errorf("negative minutes status = %d, want 400", resp.StatusCode)
	}
}

func TestMemoryHandler(t *testing.T) {
	app, db := setupTestApp(t)
	handler := NewMemoryHandler(services.NewMemoryService(db))
	app.Post("/api/memories", handler.Create)
	app.Get("/api/memories", handler.List)

	req := httptest.NewRequest("POST", "/api/memories", bytes.NewReader([]byte(`{"content":"prefers tea over coffee","relevance":0.8}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/api/memories", nil)
	resp, _ = app.Test(req)
	var body map[string]interface{}
	data, _ := io.ReadAll(resp.Body)
	json.Unmarshal(data, &body)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}
