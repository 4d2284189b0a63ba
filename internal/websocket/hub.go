package websocket

type Hub struct {
	Rooms      map[string]*Room
	Register   chan *WSClient
	Unregister chan *WSClient
	Leave      chan leaveRequest
	Broadcast  chan *RoomEvent
}

// leaveRequest detaches a viewer from a room by ID. The lookup happens
// inside the run loop so it cannot race with registrations or broadcasts.
type leaveRequest struct {
	RoomID   string
	ClientID string
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Leave:      make(chan leaveRequest),
		Broadcast:  make(chan *RoomEvent),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			room, ok := h.Rooms[client.RoomID]
			if !ok {
				continue
			}
			// Joining twice replaces the previous registration for the
			// same viewer, which keeps joinRoom idempotent.
			if prev, ok := room.Clients[client.ID]; ok && prev != client {
				close(prev.Message)
				decConnections()
			}
			room.Clients[client.ID] = client
			incConnections()

		case client := <-h.Unregister:
			room, ok := h.Rooms[client.RoomID]
			if !ok {
				continue
			}
			if current, ok := room.Clients[client.ID]; ok && current == client {
				delete(room.Clients, client.ID)
				close(client.Message)
				decConnections()
			}

		case req := <-h.Leave:
			room, ok := h.Rooms[req.RoomID]
			if !ok {
				continue
			}
			if client, ok := room.Clients[req.ClientID]; ok {
				delete(room.Clients, req.ClientID)
				close(client.Message)
				decConnections()
			}

		case event := <-h.Broadcast:
			room, ok := h.Rooms[event.RoomID]
			if !ok {
				continue
			}
			delivered := 0
			for _, client := range room.Clients {
				select {
				case client.Message <- event:
					delivered++
				default:
					// Outbound queue is full. Typing presence is
					// ephemeral and safe to drop; a subscriber too slow
					// for durable events is cut off and must reconcile
					// from the case store after reconnecting.
					if event.Event.Ephemeral() {
						addDroppedTyping(1)
						continue
					}
					close(client.Message)
					delete(room.Clients, client.ID)
					decConnections()
				}
			}
			if delivered > 0 {
				addDelivered(delivered)
			}
		}
	}
}
