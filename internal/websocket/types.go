package websocket

import "support-desk-backend/internal/dto"

type Room struct {
	Id      string               `json:"id"`
	Clients map[string]*WSClient `json:"clients"`
}

// RoomEvent wraps a typed case event with its destination room.
type RoomEvent struct {
	Event     dto.CaseEvent `json:"event"`
	RoomID    string        `json:"roomId"`
	Timestamp int64         `json:"timestamp"`
}

type RoomRes struct {
	ID string `json:"id"`
}

// TypingSignal is the only payload accepted from a connected client over the
// websocket itself. Durable events always arrive through the REST surface.
type TypingSignal struct {
	Type        string `json:"type"`
	DisplayName string `json:"displayName,omitempty"`
}
