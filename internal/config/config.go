package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"companion/internal/models"
)

// Config holds all application configuration
type Config struct {
	Port         string
	DatabasePath string
	RedisURL     string
	UserID       string

	// Telegram delivery
	TelegramBotToken string
	TelegramChatID   int64

	// Decision maker (OpenAI-compatible endpoint)
	DeciderBaseURL string
	DeciderAPIKey  string
	DeciderModel   string

	// Proactive tuning overlay file (YAML, optional)
	ProactiveFile string

	Proactive models.ProactiveConfig
}

// Load loads configuration from environment variables with defaults.
// When PROACTIVE_CONFIG points at a YAML file, its values override the
// env-derived proactive tuning.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "3001"),
		DatabasePath: getEnv("DATABASE_PATH", "companion.db"),
		RedisURL:     getEnv("REDIS_URL", ""),
		UserID:       getEnv("USER_ID", "default"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getInt64Env("TELEGRAM_CHAT_ID", 0),

		DeciderBaseURL: getEnv("DECIDER_BASE_URL", "http://localhost:11434/v1"),
		DeciderAPIKey:  getEnv("DECIDER_API_KEY", ""),
		DeciderModel:   getEnv("DECIDER_MODEL", "llama3.1"),

		ProactiveFile: getEnv("PROACTIVE_CONFIG", ""),

		Proactive: models.ProactiveConfig{
			TickInterval:     getDurationEnv("PROACTIVE_TICK_INTERVAL", 5*time.Minute),
			ReminderInterval: getDurationEnv("REMINDER_POLL_INTERVAL", time.Minute),
			MinCooldown:      getDurationEnv("PROACTIVE_MIN_COOLDOWN", 45*time.Minute),
			MaxPerHour:       getIntEnv("PROACTIVE_MAX_PER_HOUR", 2),
			MaxPerDay:        getIntEnv("PROACTIVE_MAX_PER_DAY", 8),
			QuietHoursStart:  getIntEnv("QUIET_HOURS_START", 22),
			QuietHoursEnd:    getIntEnv("QUIET_HOURS_END", 8),
			BreakerThreshold: getIntEnv("PROACTIVE_BREAKER_THRESHOLD", 5),
			DecisionTimeout:  getDurationEnv("DECIDER_TIMEOUT", 30*time.Second),
			Level:            models.ProactivityLevel(getEnv("PROACTIVITY_LEVEL", "medium")),
			Timezone:         getEnv("USER_TIMEZONE", "UTC"),
			MorningWindow:    models.GreetingWindow{Start: 6, End: 11},
			AfternoonWindow:  models.GreetingWindow{Start: 12, End: 17},
			EveningWindow:    models.GreetingWindow{Start: 18, End: 22},
		},
	}

	if cfg.ProactiveFile != "" {
		if err := applyProactiveOverlay(&cfg.Proactive, cfg.ProactiveFile); err != nil {
			return nil, fmt.Errorf("failed to load proactive config overlay: %w", err)
		}
	}

	if err := cfg.Proactive.Validate(); err != nil {
		return nil, fmt.Errorf("invalid proactive config: %w", err)
	}

	return cfg, nil
}

// proactiveOverlay mirrors ProactiveConfig with optional fields so the YAML
// file only overrides what it mentions.
type proactiveOverlay struct {
	TickInterval     *time.Duration          `yaml:"tick_interval"`
	ReminderInterval *time.Duration          `yaml:"reminder_interval"`
	MinCooldown      *time.Duration          `yaml:"min_cooldown"`
	MaxPerHour       *int                    `yaml:"max_per_hour"`
	MaxPerDay        *int                    `yaml:"max_per_day"`
	QuietHoursStart  *int                    `yaml:"quiet_hours_start"`
	QuietHoursEnd    *int                    `yaml:"quiet_hours_end"`
	BreakerThreshold *int                    `yaml:"breaker_threshold"`
	DecisionTimeout  *time.Duration          `yaml:"decision_timeout"`
	Level            *models.ProactivityLevel `yaml:"level"`
	Timezone         *string                 `yaml:"timezone"`
	MorningWindow    *models.GreetingWindow  `yaml:"morning_window"`
	AfternoonWindow  *models.GreetingWindow  `yaml:"afternoon_window"`
	EveningWindow    *models.GreetingWindow  `yaml:"evening_window"`
}

func applyProactiveOverlay(p *models.ProactiveConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var overlay proactiveOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if overlay.TickInterval != nil {
		p.TickInterval = *overlay.TickInterval
	}
	if overlay.ReminderInterval != nil {
		p.ReminderInterval = *overlay.ReminderInterval
	}
	if overlay.MinCooldown != nil {
		p.MinCooldown = *overlay.MinCooldown
	}
	if overlay.MaxPerHour != nil {
		p.MaxPerHour = *overlay.MaxPerHour
	}
	if overlay.MaxPerDay != nil {
		p.MaxPerDay = *overlay.MaxPerDay
	}
	if overlay.QuietHoursStart != nil {
		p.QuietHoursStart = *overlay.QuietHoursStart
	}
	if overlay.QuietHoursEnd != nil {
		p.QuietHoursEnd = *overlay.QuietHoursEnd
	}
	if overlay.BreakerThreshold != nil {
		p.BreakerThreshold = *overlay.BreakerThreshold
	}
	if overlay.DecisionTimeout != nil {
		p.DecisionTimeout = *overlay.DecisionTimeout
	}
	if overlay.Level != nil {
		p.Level = *overlay.Level
	}
	if overlay.Timezone != nil {
		p.Timezone = *overlay.Timezone
	}
	if overlay.MorningWindow != nil {
		p.MorningWindow = *overlay.MorningWindow
	}
	if overlay.AfternoonWindow != nil {
		p.AfternoonWindow = *overlay.AfternoonWindow
	}
	if overlay.EveningWindow != nil {
		p.EveningWindow = *overlay.EveningWindow
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
