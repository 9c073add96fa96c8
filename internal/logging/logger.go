package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithLoop returns a logger with loop context attached.
// Use this for all per-tick logging inside the two proactive loops.
func WithLoop(loop string) *slog.Logger {
	return slog.With("loop", loop)
}

// WithReminder returns a logger scoped to a single reminder delivery.
func WithReminder(logger *slog.Logger, reminderID string, attempt int) *slog.Logger {
	return logger.With(
		"reminder_id", reminderID,
		"attempt", attempt,
	)
}
