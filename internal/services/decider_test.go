package services

import (
	"testing"

	"companion/internal/models"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    models.SpontaneousDecision
		wantErr bool
	}{
		{
			name:    "plain verdict",
			content: `{"should_speak": true, "reason": "morning", "message_type": "greeting", "message": "good morning!"}`,
			want: models.SpontaneousDecision{
				ShouldSpeak: true,
				Reason:      "morning",
				MessageType: models.MessageTypeGreeting,
				Message:     "good morning!",
			},
		},
		{
			name:    "fenced verdict",
			content: "```json\n{\"should_speak\": false, \"message_type\": \"none\"}\n```",
			want:    models.SpontaneousDecision{MessageType: models.MessageTypeNone},
		},
		{
			name:    "missing type defaults to none",
			content: `{"should_speak": false}`,
			want:    models.SpontaneousDecision{MessageType: models.MessageTypeNone},
		},
		{
			name:    "malformed JSON is an error",
			content: `should I speak? yes!`,
			wantErr: true,
		},
		{
			name:    "unknown message type is an error",
			content: `{"should_speak": true, "message_type": "poem", "message": "roses"}`,
			wantErr: true,
		},
		{
			name:    "speak without a message is an error",
			content: `{"should_speak": true, "message_type": "checkin", "message": "  "}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("decision = %+v, want %+v", got, tt.want)
			}
		})
	}
}
