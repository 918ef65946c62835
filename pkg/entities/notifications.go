package entities

import "time"

type Notification struct {
	ID                  string     `json:"id"`
	Recipient           string     `json:"recipient"`
	Sender              string     `json:"sender"`
	Type                string     `json:"type"`
	Title               string     `json:"title"`
	Message             string     `json:"message"`
	RelatedConversation string     `json:"related_conversation,omitempty"`
	RelatedGroup        string     `json:"related_group,omitempty"`
	IsRead              bool       `json:"is_read"`
	ReadAt              *time.Time `json:"read_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// NotificationEvent describes the action a notification fan-out derives its
// records from.
type NotificationEvent struct {
	Type           string
	Actor          string
	Title          string
	Message        string
	ConversationID string
	GroupID        string
}

// FanOutTarget is a participant considered by a fan-out.
type FanOutTarget struct {
	UserID  string
	IsMuted bool
}

type NotificationCount struct {
	Unread int `json:"unread"`
}
