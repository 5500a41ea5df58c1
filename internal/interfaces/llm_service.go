package interfaces

import "context"

// Message is a single turn in a chat conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// LLMService provides chat completions for answer synthesis. The query engine
// treats an absent or failing service as "no synthesized answer", never an error.
type LLMService interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	ModelName() string
	HealthCheck(ctx context.Context) error
}
