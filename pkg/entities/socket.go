package entities

import "encoding/json"

// SocketEvent is a frame read from a gateway connection.
type SocketEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ack_id,omitempty"`
}

// SocketEnvelope is a frame written to a gateway connection.
type SocketEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
	AckID string      `json:"ack_id,omitempty"`
}

type SocketAck struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type SocketRoomRequest struct {
	ConversationID string `json:"conversation_id"`
}

type SocketSendMessage struct {
	ConversationID string `json:"conversation_id"`
	SendMessageRequest
}

type SocketTyping struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type SocketMessagesRead struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Count          int    `json:"count"`
}
