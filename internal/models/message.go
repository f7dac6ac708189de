package models

import "time"

// IntentMessage is one classified user action delivered by the UI gateway
// over the intents queue. Kind matches the conversation event kinds.
type IntentMessage struct {
	ChatID int64     `json:"chat_id"`
	Kind   string    `json:"kind"`
	Text   string    `json:"text,omitempty"`
	Method string    `json:"method,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// NotificationMessage is one outbound message for the UI gateway to render.
// Phone is set when the sender only knows the customer identity (payment
// watchers); ChatID when replying inside a conversation. Broadcast messages
// carry neither and go to every registered chat.
type NotificationMessage struct {
	ChatID    int64      `json:"chat_id,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Text      string     `json:"text"`
	Choices   [][]string `json:"choices,omitempty"`
	Document  string     `json:"document,omitempty"`
	Broadcast bool       `json:"broadcast,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
