package models

import "time"

// Message kinds
const (
	MessageSuccess = "success"
	MessageError   = "error"
	MessageInfo    = "info"
)

// Message is a user-facing notification queued for a session. The core
// produces plain text; presentation belongs to the calling layer.
type Message struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
