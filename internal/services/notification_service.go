package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/leonid-shevtsov/telegold"
	"github.com/yuin/goldmark"
)

// DeliveryMeta describes what kind of proactive message is being delivered.
type DeliveryMeta struct {
	Type       string // "reminder" or "spontaneous"
	ReminderID string
}

// Notifier is the notification sink consumed by both loops. Implementations
// must be safe for concurrent use.
type Notifier interface {
	Deliver(ctx context.Context, userID, message string, meta DeliveryMeta) error
}

// Telegram Markdown converter using telegold (goldmark with Telegram HTML renderer)
var telegramMarkdownConverter = goldmark.New(goldmark.WithRenderer(telegold.NewRenderer()))

// convertToTelegramHTML converts standard Markdown to Telegram-compatible HTML
func convertToTelegramHTML(text string) string {
	var buf bytes.Buffer
	if err := telegramMarkdownConverter.Convert([]byte(text), &buf); err != nil {
		log.Printf("⚠️ [TELEGRAM] Markdown conversion failed: %v", err)
		return text
	}
	return buf.String()
}

// TelegramNotifier delivers proactive messages via the Telegram Bot API.
type TelegramNotifier struct {
	botToken   string
	chatID     int64
	httpClient *http.Client
}

// NewTelegramNotifier creates a Telegram notifier for one bot + chat.
func NewTelegramNotifier(botToken string, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Deliver sends the message, chunking when it exceeds Telegram's size limit.
func (n *TelegramNotifier) Deliver(ctx context.Context, userID, message string, meta DeliveryMeta) error {
	const maxChunkSize = 4000 // Telegram caps messages at 4096 chars; leave margin

	if len(message) <= maxChunkSize {
		return n.sendMessage(ctx, message)
	}

	chunks := splitMessageIntoChunks(message, maxChunkSize)
	total := len(chunks)
	log.Printf("📨 [TELEGRAM] Splitting message (%d chars) into %d chunks", len(message), total)

	for i, chunk := range chunks {
		if total > 1 {
			chunk = fmt.Sprintf("**[Part %d/%d]**\n\n%s", i+1, total, chunk)
		}
		if err := n.sendMessage(ctx, chunk); err != nil {
			return fmt.Errorf("failed to send chunk %d/%d: %w", i+1, total, err)
		}
		if i < total-1 {
			time.Sleep(300 * time.Millisecond)
		}
	}
	return nil
}

// sendMessage sends one message. HTML format first (more reliable than
// MarkdownV2), plain text fallback when Telegram rejects the entities.
func (n *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)

	payload := map[string]interface{}{
		"chat_id":    n.chatID,
		"text":       convertToTelegramHTML(text),
		"parse_mode": "HTML",
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 200 {
		return nil
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	errStr := string(bodyBytes)

	if strings.Contains(errStr, "can't parse entities") {
		log.Printf("⚠️ [TELEGRAM] HTML parsing failed, retrying without parse_mode")

		payload = map[string]interface{}{
			"chat_id": n.chatID,
			"text":    stripMarkdown(text),
		}
		body, _ = json.Marshal(payload)

		req, _ = http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp2, err := n.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send Telegram message (plain): %w", err)
		}
		defer resp2.Body.Close()

		if resp2.StatusCode != 200 {
			bodyBytes2, _ := io.ReadAll(resp2.Body)
			return fmt.Errorf("Telegram API error (plain): %s", string(bodyBytes2))
		}
		return nil
	}

	return fmt.Errorf("Telegram API error: %s", errStr)
}

// stripMarkdown removes Markdown formatting for plain text fallback
func stripMarkdown(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	codeBlockPattern := regexp.MustCompile("```[a-zA-Z]*\\n([\\s\\S]*?)```")
	text = codeBlockPattern.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "`", "")
	text = strings.ReplaceAll(text, "~~", "")
	headerPattern := regexp.MustCompile(`(?m)^#{1,6}\s+`)
	text = headerPattern.ReplaceAllString(text, "")
	linkPattern := regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	text = linkPattern.ReplaceAllString(text, "$1 ($2)")
	return text
}

// splitMessageIntoChunks splits a message into chunks respecting boundaries
func splitMessageIntoChunks(text string, maxSize int) []string {
	if len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	remaining := text

	for len(remaining) > 0 {
		if len(remaining) <= maxSize {
			chunks = append(chunks, remaining)
			break
		}

		chunk := remaining[:maxSize]
		breakPoint := maxSize

		if idx := strings.LastIndex(chunk, "\n\n"); idx > maxSize/2 {
			breakPoint = idx + 2
		} else if idx := strings.LastIndex(chunk, "\n"); idx > maxSize/2 {
			breakPoint = idx + 1
		} else if idx := strings.LastIndex(chunk, ". "); idx > maxSize/2 {
			breakPoint = idx + 2
		} else if idx := strings.LastIndex(chunk, " "); idx > maxSize/2 {
			breakPoint = idx + 1
		}

		chunks = append(chunks, strings.TrimSpace(remaining[:breakPoint]))
		remaining = strings.TrimSpace(remaining[breakPoint:])
	}

	return chunks
}

// ConsoleNotifier logs deliveries instead of sending them. Used when no
// Telegram credentials are configured and in local development.
type ConsoleNotifier struct{}

// Deliver writes the message to the process log.
func (ConsoleNotifier) Deliver(ctx context.Context, userID, message string, meta DeliveryMeta) error {
	log.Printf("💬 [NOTIFY] user=%s type=%s message=%s", userID, meta.Type, message)
	return nil
}
