package models

import "encoding/json"

const EventNewMessage = "new_message"

// Event is the frame exchanged over the live connection.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
