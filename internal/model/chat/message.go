package chat

import "time"

// Sender values stored with each transcript entry.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message persists individual turns of a knowledge-base session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
