package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeRedaction represents a PII redaction event
	EventTypeRedaction EventType = "redaction"
	// EventTypeTurn represents a completed conversation turn
	EventTypeTurn EventType = "turn"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// RedactionEvent reports that PII was tokenized for storage. It carries
// category counts only, never the matched values.
type RedactionEvent struct {
	SessionID       string         `json:"session_id"`
	Method          string         `json:"method"`
	TotalRedactions int            `json:"total_redactions"`
	ByType          map[string]int `json:"by_type"`
}

// TurnEvent reports a completed conversation turn.
type TurnEvent struct {
	SessionID  string        `json:"session_id"`
	ToolUsed   string        `json:"tool_used,omitempty"`
	Duration   time.Duration `json:"duration"`
	StatusCode int           `json:"status_code"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalTurns       int64  `json:"total_turns"`
	TotalRedactions  int64  `json:"total_redactions"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
