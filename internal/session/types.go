package session

import "time"

// Session is the durable record of one conversation.
type Session struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
	MessageCount int       `json:"message_count"`
}

// Message is one conversation turn. Content is stored redacted; raw
// text never reaches the store.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Roles used in stored conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
