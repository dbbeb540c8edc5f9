package models

import "time"

// FriendStatus describes the relationship between the current user and a
// candidate user; it drives which action the search screen offers.
type FriendStatus string

const (
	StatusNotFriends      FriendStatus = "notFriends"
	StatusRequestSent     FriendStatus = "requestSent"
	StatusRequestReceived FriendStatus = "requestReceived"
	StatusFriends         FriendStatus = "friends"
)

// FriendRequest is a pending request addressed to the current user.
type FriendRequest struct {
	ID           int64     `json:"id"`
	SenderID     int64     `json:"sender_id"`
	Username     string    `json:"username"`
	ProfileImage string    `json:"profileImage"`
	CreatedAt    time.Time `json:"created_at"`
}
