package models

import "time"

// ApiUsage is an append-only ledger entry recording LLM token spend.
type ApiUsage struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Model          string    `json:"model"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	TotalTokens    int       `json:"total_tokens"`
	EstimatedCost  string    `json:"estimated_cost"`
	CreatedAt      time.Time `json:"created_at"`
}
