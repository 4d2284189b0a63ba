package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"support-desk-backend/internal/dto"
	"support-desk-backend/internal/env"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var (
	upgrader    websocket.Upgrader
	redisClient *redis.Client
)

func init() {
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	redisClient = redis.NewClient(&redis.Options{
		Addr:     env.Get(env.ChatRedisURL),
		Password: env.Get(env.ChatRedisPass),
		DB:       0,
	})
}

type Handler struct {
	hub         *Hub
	redisClient *redis.Client
	mu          sync.Mutex
}

func NewHandler(h *Hub) *Handler {
	return &Handler{
		hub:         h,
		redisClient: redisClient,
	}
}

// subscribeToRoomChannel bridges one Redis channel into the local hub. Redis
// preserves publish order per channel, and the hub's single broadcast loop
// preserves it on fan-out, which gives the per-room total order viewers rely
// on.
func (h *Handler) subscribeToRoomChannel(roomID string) {
	if _, exists := h.hub.Rooms[roomID]; !exists {
		log.Printf("Room %s not found for subscription", roomID)
		return
	}

	subscriber := h.redisClient.Subscribe(context.Background(), roomID)
	defer subscriber.Close()

	ch := subscriber.Channel()
	for msg := range ch {
		var event dto.CaseEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("Discarding malformed event on channel %s: %v", roomID, err)
			continue
		}

		h.hub.Broadcast <- &RoomEvent{
			Event:     event,
			RoomID:    roomID,
			Timestamp: time.Now().Unix(),
		}
	}
	log.Printf("Unsubscribed from Redis channel: %s", roomID)
}

func (h *Handler) CreateRoom(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.hub.Rooms[id]; exists {
		return
	}

	room := &Room{
		Id:      id,
		Clients: make(map[string]*WSClient),
	}

	h.hub.Rooms[id] = room
	setRooms(len(h.hub.Rooms))

	go h.subscribeToRoomChannel(id)
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request, roomId, viewerId string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if conn == nil {
		http.Error(w, "Error conn", http.StatusBadRequest)
		return
	}

	cl := &WSClient{
		Conn:     conn,
		Message:  make(chan *RoomEvent, 16),
		ID:       viewerId,
		RoomID:   roomId,
		done:     make(chan struct{}),
		isClosed: false,
	}

	h.hub.Register <- cl

	go cl.keepAlive()
	go cl.writeEvents()
	go cl.readTyping(h.hub)
}

// LeaveRoom detaches a viewer's registration by ID. Safe to call when the
// viewer was never subscribed; the lookup runs inside the hub loop.
func (h *Handler) LeaveRoom(roomId, viewerId string) {
	h.hub.Leave <- leaveRequest{RoomID: roomId, ClientID: viewerId}
}

// NotifyRoom feeds an event straight into the local hub, bypassing Redis.
// Used as the degraded path when a publish fails.
func (h *Handler) NotifyRoom(roomID string, event dto.CaseEvent) {
	if roomID == "" {
		return
	}
	h.hub.Broadcast <- &RoomEvent{
		Event:     event,
		RoomID:    roomID,
		Timestamp: time.Now().Unix(),
	}
}

func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	rooms := make([]RoomRes, 0, len(h.hub.Rooms))
	for _, room := range h.hub.Rooms {
		rooms = append(rooms, RoomRes{
			ID: room.Id,
		})
	}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(rooms)
}

func (h *Handler) SubscribeToRedisChannels() {
	for _, room := range h.hub.Rooms {
		go h.subscribeToRoomChannel(room.Id)
	}
}
