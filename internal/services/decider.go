package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"companion/internal/models"
)

// SpeakDecider decides whether the assistant speaks unprompted, and what it
// says. A decider error of any kind means the tick stays silent.
type SpeakDecider interface {
	Decide(ctx context.Context, sctx models.SpontaneousContext) (models.SpontaneousDecision, error)
}

const spontaneousSystemPrompt = `You decide whether a personal assistant should send an unprompted message right now.
You receive a JSON snapshot of the user's local time, recent activity, remaining message budget, and known facts about them.
Reply with a single JSON object: {"should_speak": bool, "reason": string, "message_type": "greeting"|"checkin"|"contextual"|"none", "message": string}.
Only speak when there is a genuinely good reason. Silence is always acceptable.`

// LLMDecider asks an OpenAI-compatible chat completion endpoint for the
// speak decision. Calls are rate limited independently of the tick cadence
// so a misconfigured short tick cannot hammer the provider.
type LLMDecider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewLLMDecider creates a decider against an OpenAI-compatible API.
func NewLLMDecider(baseURL, apiKey, model string) *LLMDecider {
	return &LLMDecider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		limiter: rate.NewLimiter(rate.Every(30*time.Second), 2),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Decide calls the model and parses its JSON verdict. The caller bounds ctx
// with the decision timeout; a deadline hit maps to ErrDecisionTimeout.
func (d *LLMDecider) Decide(ctx context.Context, sctx models.SpontaneousContext) (models.SpontaneousDecision, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return models.SpontaneousDecision{}, mapDecisionErr(err)
	}

	snapshot, err := json.Marshal(sctx)
	if err != nil {
		return models.SpontaneousDecision{}, fmt.Errorf("failed to encode decision context: %w", err)
	}

	reqBody := chatRequest{
		Model: d.model,
		Messages: []chatMessage{
			{Role: "system", Content: spontaneousSystemPrompt},
			{Role: "user", Content: string(snapshot)},
		},
		Temperature: 0.7,
		ResponseFormat: &struct {
			Type string `json:"type"`
		}{Type: "json_object"},
	}
	body, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return models.SpontaneousDecision{}, fmt.Errorf("failed to build decision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return models.SpontaneousDecision{}, mapDecisionErr(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.SpontaneousDecision{}, mapDecisionErr(err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.SpontaneousDecision{}, fmt.Errorf("decision API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return models.SpontaneousDecision{}, fmt.Errorf("failed to parse decision response: %w", err)
	}
	if parsed.Error != nil {
		return models.SpontaneousDecision{}, fmt.Errorf("decision API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return models.SpontaneousDecision{}, fmt.Errorf("decision response had no choices")
	}

	return ParseDecision(parsed.Choices[0].Message.Content)
}

// ParseDecision decodes the model's JSON verdict, tolerating a markdown code
// fence around it. A malformed verdict is an error, never a speak.
func ParseDecision(content string) (models.SpontaneousDecision, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	var decision models.SpontaneousDecision
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return models.SpontaneousDecision{}, fmt.Errorf("malformed decision verdict: %w", err)
	}
	if decision.MessageType == "" {
		decision.MessageType = models.MessageTypeNone
	}
	if !decision.MessageType.Valid() {
		return models.SpontaneousDecision{}, fmt.Errorf("unknown message type %q in decision", decision.MessageType)
	}
	if decision.ShouldSpeak && strings.TrimSpace(decision.Message) == "" {
		return models.SpontaneousDecision{}, fmt.Errorf("decision wants to speak but carries no message")
	}
	return decision, nil
}

func mapDecisionErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrDecisionTimeout
	}
	return err
}
