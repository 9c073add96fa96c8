package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"companion/internal/config"
	"companion/internal/database"
	"companion/internal/handlers"
	"companion/internal/logging"
	"companion/internal/services"
)

func main() {
	// Load .env file if present (ignore errors in production)
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Redis is optional: without it the reminder loop simply runs without
	// cross-instance delivery dedup.
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Redis unavailable, continuing without delivery dedup: %v", err)
			redisService = nil
		} else {
			defer redisService.Close()
		}
	}

	metrics := services.InitMetrics()

	// Notification sink: Telegram when configured, console otherwise.
	var notifier services.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		notifier = services.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
		log.Println("📱 Telegram delivery enabled")
	} else {
		notifier = services.ConsoleNotifier{}
		log.Println("💬 No Telegram credentials, messages go to the log")
	}

	// Core services
	stateService := services.NewStateService(db)
	stateService.SetMetrics(metrics)
	reminderService := services.NewReminderService(db)
	memoryService := services.NewMemoryService(db)
	activityService := services.NewActivityService(stateService)
	contextBuilder := services.NewContextBuilder(memoryService)
	decider := services.NewLLMDecider(cfg.DeciderBaseURL, cfg.DeciderAPIKey, cfg.DeciderModel)

	// The two proactive loops
	reminderScheduler, err := services.NewReminderScheduler(reminderService, stateService, notifier, cfg.Proactive)
	if err != nil {
		log.Fatalf("❌ Failed to create reminder scheduler: %v", err)
	}
	reminderScheduler.SetMetrics(metrics)
	if redisService != nil {
		reminderScheduler.SetRedisService(redisService)
	}

	spontaneousService, err := services.NewSpontaneousService(stateService, contextBuilder, decider, notifier, cfg.Proactive, cfg.UserID)
	if err != nil {
		log.Fatalf("❌ Failed to create spontaneous service: %v", err)
	}
	spontaneousService.SetMetrics(metrics)

	// loopCtx cancels in-flight decision calls on shutdown; a decision that
	// outlives the cancel discards its result instead of delivering.
	loopCtx, cancelLoops := context.WithCancel(context.Background())
	defer cancelLoops()

	if err := reminderScheduler.Start(loopCtx); err != nil {
		log.Fatalf("❌ Failed to start reminder scheduler: %v", err)
	}
	if err := spontaneousService.Start(loopCtx); err != nil {
		log.Fatalf("❌ Failed to start spontaneous loop: %v", err)
	}

	// HTTP surface
	app := fiber.New(fiber.Config{
		AppName: "Companion v1.0",
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("companion")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins: getAllowedOrigins(),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	healthHandler := handlers.NewHealthHandler(db, redisService)
	reminderHandler := handlers.NewReminderHandler(reminderService, cfg.UserID)
	proactiveHandler := handlers.NewProactiveHandler(stateService, activityService, spontaneousService, cfg.Proactive)
	memoryHandler := handlers.NewMemoryHandler(memoryService)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	api.Post("/reminders", reminderHandler.Create)
	api.Get("/reminders", reminderHandler.List)
	api.Get("/reminders/:id", reminderHandler.Get)
	api.Delete("/reminders/:id", reminderHandler.Cancel)

	api.Get("/proactive/status", proactiveHandler.Status)
	api.Post("/proactive/quiet", proactiveHandler.Quiet)
	api.Post("/proactive/brain", proactiveHandler.Brain)
	api.Post("/activity/message", proactiveHandler.RecordMessage)
	api.Post("/activity/ping", proactiveHandler.RecordPing)

	api.Post("/memories", memoryHandler.Create)
	api.Get("/memories", memoryHandler.List)
	api.Delete("/memories/:id", memoryHandler.Archive)

	log.Printf("🚀 Companion server starting on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("⏰ Reminder poll: every %s", cfg.Proactive.ReminderInterval)
	log.Printf("💭 Spontaneous tick: every %s (level: %s, tz: %s)",
		cfg.Proactive.TickInterval, cfg.Proactive.Level, cfg.Proactive.Timezone)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Cancel the loops first so in-flight decisions are discarded, then
		// stop the schedulers.
		cancelLoops()
		if err := spontaneousService.Stop(); err != nil {
			log.Printf("⚠️ Error stopping spontaneous loop: %v", err)
		}
		if err := reminderScheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping reminder scheduler: %v", err)
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

func getAllowedOrigins() string {
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		return origins
	}
	return "http://localhost:5173,http://localhost:3000"
}
