package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"support-desk-backend/internal/dto"

	"github.com/gorilla/websocket"
)

type WSClient struct {
	Conn     *websocket.Conn
	Message  chan *RoomEvent
	ID       string
	RoomID   string
	done     chan struct{} // Signal for coordinating goroutine shutdown
	mu       sync.Mutex    // Mutex for connection access
	isClosed bool          // Flag to track connection state
}

func (cl *WSClient) keepAlive() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteMessage(websocket.PingMessage, nil)
			cl.mu.Unlock()

			if err != nil {
				log.Printf("Ping error for client %s: %v", cl.ID, err)
				return
			}
		}
	}
}

func (cl *WSClient) writeEvents() {
	defer func() {
		cl.mu.Lock()
		cl.isClosed = true
		cl.Conn.Close()
		cl.mu.Unlock()
	}()

	for {
		select {
		case <-cl.done:
			return
		case event, ok := <-cl.Message:
			if !ok {
				log.Printf("Client %s event channel closed", cl.ID)
				return
			}

			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteJSON(event.Event)
			cl.mu.Unlock()

			if err != nil {
				log.Printf("Error sending event to client %s: %v", cl.ID, err)
				return
			}
		}
	}
}

// readTyping is the client's inbound pump. The only thing a viewer may push
// over the socket is a typing signal; everything durable goes through REST.
func (cl *WSClient) readTyping(hub *Hub) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in readTyping: %v", r)
		}

		if cl.done != nil {
			close(cl.done)
		}

		hub.Unregister <- cl
		log.Printf("Client %s disconnected from room %s", cl.ID, cl.RoomID)
	}()

	cl.Conn.SetReadLimit(512 * 1024)

	for {
		_, payload, err := cl.Conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if closeErr.Code == websocket.CloseNormalClosure ||
					closeErr.Code == websocket.CloseGoingAway ||
					closeErr.Code == websocket.CloseNoStatusReceived {
					break
				}
			}
			log.Printf("Error reading message from client %s: %v", cl.ID, err)
			break
		}

		var signal TypingSignal
		if err := json.Unmarshal(payload, &signal); err != nil {
			log.Printf("Ignoring malformed payload from client %s: %v", cl.ID, err)
			continue
		}

		event := dto.CaseEvent{
			CaseID:      cl.RoomID,
			UserID:      cl.ID,
			DisplayName: signal.DisplayName,
			BroadcastAt: time.Now().UTC().Format(time.RFC3339),
		}
		switch dto.EventType(signal.Type) {
		case dto.EventTypingStarted:
			event.Type = dto.EventTypingStarted
		case dto.EventTypingStopped:
			event.Type = dto.EventTypingStopped
		default:
			continue
		}

		if err := Publish(cl.RoomID, event); err != nil {
			// Redis is down; deliver to the local hub so viewers on this
			// instance still see the indicator.
			log.Printf("typing publish failed for room %s: %v", cl.RoomID, err)
			hub.Broadcast <- &RoomEvent{
				Event:     event,
				RoomID:    cl.RoomID,
				Timestamp: time.Now().Unix(),
			}
		}
	}
}
