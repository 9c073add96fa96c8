package models

import "time"

// MemoryFact is a short user fact surfaced to the decision maker as context.
// Extraction and similarity search live outside this core; this node only
// stores and ranks what it is given.
type MemoryFact struct {
	ID         int64      `json:"id"`
	Content    string     `json:"content"`
	Category   string     `json:"category,omitempty"`
	Relevance  float64    `json:"relevance"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	Archived   bool       `json:"archived"`
}

// CreateMemoryRequest is the API payload for storing a fact.
type CreateMemoryRequest struct {
	Content   string  `json:"content"`
	Category  string  `json:"category,omitempty"`
	Relevance float64 `json:"relevance,omitempty"`
}
