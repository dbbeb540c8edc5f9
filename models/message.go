package models

import "time"

const (
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
)

// Message is a direct message between two users. A message never changes
// after creation except for its delivery status, which is informational.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
}

// Between reports whether the message belongs to the conversation between
// the two given users, in either direction.
func (m Message) Between(a, b int64) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}

// Before orders messages by timestamp ascending, ties broken by id.
func (m Message) Before(other Message) bool {
	if m.Timestamp.Equal(other.Timestamp) {
		return m.ID < other.ID
	}
	return m.Timestamp.Before(other.Timestamp)
}
