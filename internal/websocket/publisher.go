package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"support-desk-backend/internal/dto"
)

// Publish sends a typed event to a room's Redis channel so every server
// instance subscribed to that room fans it out to its local clients. The
// publisher is not special-cased: it receives its own event back like any
// other subscriber.
func Publish(roomID string, event dto.CaseEvent) error {
	if roomID == "" {
		return fmt.Errorf("websocket publish: roomID required")
	}
	if redisClient == nil {
		return fmt.Errorf("websocket publish: redis client not initialised")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("websocket publish: marshal event: %w", err)
	}

	if err := redisClient.Publish(context.Background(), roomID, string(payload)).Err(); err != nil {
		return fmt.Errorf("websocket publish: redis publish: %w", err)
	}
	return nil
}
