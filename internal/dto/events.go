package dto

type EventType string

const (
	EventCaseCreated     EventType = "case-created"
	EventMessageAppended EventType = "message-appended"
	EventCaseClosed      EventType = "case-closed"
	EventSeenUpdated     EventType = "seen-updated"
	EventTypingStarted   EventType = "typing"
	EventTypingStopped   EventType = "stop-typing"
)

// CaseEvent is the single wire shape pushed over case and notification rooms.
// Exactly one payload group is populated depending on Type.
type CaseEvent struct {
	Type   EventType `json:"type"`
	CaseID string    `json:"caseId"`

	// case-created, case-closed and message-appended carry the full case
	// snapshot so viewers can move cases between pools atomically.
	Case    *CaseMetadata    `json:"case,omitempty"`
	Message *MessageResponse `json:"message,omitempty"`

	// seen-updated
	ViewerRole string `json:"viewerRole,omitempty"`

	// typing / stop-typing
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`

	BroadcastAt string `json:"broadcastAt,omitempty"`
}

// Ephemeral reports whether the event may be dropped for a slow subscriber.
// Only typing presence is droppable; durable events never are.
func (e CaseEvent) Ephemeral() bool {
	return e.Type == EventTypingStarted || e.Type == EventTypingStopped
}
