package websocket

import (
	"testing"

	"support-desk-backend/internal/dto"
)

func newTestHub(roomIDs ...string) *Hub {
	hub := NewHub()
	for _, id := range roomIDs {
		hub.Rooms[id] = &Room{Id: id, Clients: make(map[string]*WSClient)}
	}
	return hub
}

func newTestClient(id, roomID string, buffer int) *WSClient {
	return &WSClient{
		Message: make(chan *RoomEvent, buffer),
		ID:      id,
		RoomID:  roomID,
		done:    make(chan struct{}),
	}
}

// sync blocks until the hub has finished processing everything sent before
// it. All hub channels are unbuffered, so a send to a room the hub does not
// know about acts as a barrier.
func syncHub(hub *Hub) {
	hub.Broadcast <- &RoomEvent{RoomID: "no-such-room"}
}

func messageEvent(caseID, body string) *RoomEvent {
	return &RoomEvent{
		Event: dto.CaseEvent{
			Type:    dto.EventMessageAppended,
			CaseID:  caseID,
			Message: &dto.MessageResponse{CaseID: caseID, Body: body},
		},
		RoomID: caseID,
	}
}

func typingEvent(caseID, userID string) *RoomEvent {
	return &RoomEvent{
		Event: dto.CaseEvent{
			Type:   dto.EventTypingStarted,
			CaseID: caseID,
			UserID: userID,
		},
		RoomID: caseID,
	}
}

func TestHubRoomIsolation(t *testing.T) {
	hub := newTestHub("case-a", "case-b")
	go hub.Run()

	a1 := newTestClient("viewer-1", "case-a", 8)
	a2 := newTestClient("viewer-2", "case-a", 8)
	b1 := newTestClient("viewer-3", "case-b", 8)

	hub.Register <- a1
	hub.Register <- a2
	hub.Register <- b1

	hub.Broadcast <- messageEvent("case-a", "only for room a")
	syncHub(hub)

	for _, cl := range []*WSClient{a1, a2} {
		select {
		case event := <-cl.Message:
			if event.RoomID != "case-a" {
				t.Errorf("client %s got event for room %s", cl.ID, event.RoomID)
			}
		default:
			t.Errorf("client %s in room a should have received the event", cl.ID)
		}
	}

	if len(b1.Message) != 0 {
		t.Error("client in room b must not receive room a's event")
	}
}

func TestHubPreservesPerRoomOrder(t *testing.T) {
	hub := newTestHub("case-a")
	go hub.Run()

	cl := newTestClient("viewer-1", "case-a", 8)
	hub.Register <- cl

	bodies := []string{"first", "second", "third"}
	for _, body := range bodies {
		hub.Broadcast <- messageEvent("case-a", body)
	}
	syncHub(hub)

	for i, want := range bodies {
		select {
		case event := <-cl.Message:
			if event.Event.Message.Body != want {
				t.Errorf("event %d: got %q, want %q", i, event.Event.Message.Body, want)
			}
		default:
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestHubDropsTypingForSlowClient(t *testing.T) {
	hub := newTestHub("case-a")
	go hub.Run()

	cl := newTestClient("viewer-1", "case-a", 1)
	hub.Register <- cl

	// Fill the outbound queue.
	hub.Broadcast <- messageEvent("case-a", "fills the buffer")
	syncHub(hub)

	// Typing presence is best-effort: the full queue drops it and the
	// subscription survives.
	hub.Broadcast <- typingEvent("case-a", "viewer-2")
	syncHub(hub)

	if len(cl.Message) != 1 {
		t.Fatalf("typing event should be dropped, queue has %d", len(cl.Message))
	}
	if _, ok := hub.Rooms["case-a"].Clients["viewer-1"]; !ok {
		t.Fatal("dropping typing must not evict the client")
	}
}

func TestHubEvictsSlowClientOnDurableEvent(t *testing.T) {
	hub := newTestHub("case-a")
	go hub.Run()

	cl := newTestClient("viewer-1", "case-a", 1)
	hub.Register <- cl

	hub.Broadcast <- messageEvent("case-a", "fills the buffer")
	syncHub(hub)

	// A durable event that cannot be queued cuts the client off; it must
	// reconcile over REST after reconnecting.
	hub.Broadcast <- messageEvent("case-a", "cannot be queued")
	syncHub(hub)

	if _, ok := hub.Rooms["case-a"].Clients["viewer-1"]; ok {
		t.Fatal("slow client should be evicted on a durable event")
	}

	// Buffered event is still readable, then the channel reports closed.
	if event := <-cl.Message; event.Event.Message.Body != "fills the buffer" {
		t.Errorf("unexpected buffered event: %+v", event.Event)
	}
	if _, ok := <-cl.Message; ok {
		t.Error("evicted client's channel should be closed")
	}
}

func TestHubRejoinReplacesRegistration(t *testing.T) {
	hub := newTestHub("case-a")
	go hub.Run()

	first := newTestClient("viewer-1", "case-a", 8)
	second := newTestClient("viewer-1", "case-a", 8)

	hub.Register <- first
	hub.Register <- second
	syncHub(hub)

	if _, ok := <-first.Message; ok {
		t.Error("replaced registration's channel should be closed")
	}
	if current := hub.Rooms["case-a"].Clients["viewer-1"]; current != second {
		t.Error("rejoin should leave the newest registration in place")
	}

	hub.Broadcast <- messageEvent("case-a", "after rejoin")
	syncHub(hub)

	if len(second.Message) != 1 {
		t.Error("newest registration should keep receiving events")
	}
}

func TestHubLeaveDetachesViewerByID(t *testing.T) {
	hub := newTestHub("case-a")
	go hub.Run()

	cl := newTestClient("viewer-1", "case-a", 8)
	hub.Register <- cl

	hub.Leave <- leaveRequest{RoomID: "case-a", ClientID: "viewer-1"}
	syncHub(hub)

	if _, ok := hub.Rooms["case-a"].Clients["viewer-1"]; ok {
		t.Fatal("leave should remove the viewer's registration")
	}
	if _, ok := <-cl.Message; ok {
		t.Error("left client's channel should be closed")
	}

	// Leaving again, or leaving an unknown room, is a no-op.
	hub.Leave <- leaveRequest{RoomID: "case-a", ClientID: "viewer-1"}
	hub.Leave <- leaveRequest{RoomID: "no-such-room", ClientID: "viewer-1"}
	syncHub(hub)
}

func TestHubStaleUnregisterIsIgnored(t *testing.T) {
	hub := newTestHub("case-a")
	go hub.Run()

	current := newTestClient("viewer-1", "case-a", 8)
	stale := newTestClient("viewer-1", "case-a", 8)

	hub.Register <- current
	hub.Unregister <- stale
	syncHub(hub)

	if _, ok := hub.Rooms["case-a"].Clients["viewer-1"]; !ok {
		t.Error("unregistering a stale client must not drop the live one")
	}

	hub.Broadcast <- messageEvent("case-a", "still here")
	syncHub(hub)

	if len(current.Message) != 1 {
		t.Error("live client should still receive events")
	}
}
