package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"support-desk-backend/internal/dto"
)

// typingTTL is how long a typing indicator stays visible without a refresh
// signal from the author.
const typingTTL = 4 * time.Second

// defaultPendingTimeout is how long an optimistic message may wait for its
// server echo before the whole case view is refetched.
const defaultPendingTimeout = 10 * time.Second

// Store is the durable side the controller reconciles against, usually a
// thin client over the REST surface.
type Store interface {
	FetchCase(ctx context.Context, caseID string) (dto.CaseMetadata, []dto.MessageResponse, error)
	MarkSeen(ctx context.Context, caseID string) error
}

type CaseView struct {
	Case     dto.CaseMetadata
	Messages []dto.MessageResponse
}

type pendingMessage struct {
	caseID   string
	authorID string
	body     string
	queuedAt time.Time
}

type typingState struct {
	displayName string
	deadline    time.Time
}

// Controller keeps one viewer's local picture of their cases consistent with
// the server. Local appends are optimistic; the server echo confirms them,
// and if the echo never arrives the server copy wins via a full refetch.
type Controller struct {
	store Store
	now   func() time.Time

	viewerID       string
	pendingTimeout time.Duration

	mu       sync.Mutex
	active   map[string]*CaseView
	history  map[string]*CaseView
	selected string
	pending  []pendingMessage
	typing   map[string]map[string]typingState
}

func NewController(store Store, viewerID string, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{
		store:          store,
		now:            now,
		viewerID:       viewerID,
		pendingTimeout: defaultPendingTimeout,
		active:         make(map[string]*CaseView),
		history:        make(map[string]*CaseView),
		typing:         make(map[string]map[string]typingState),
	}
}

// Load pulls a case from the store into the local view. The case lands in
// active or history based on its status.
func (c *Controller) Load(ctx context.Context, caseID string) error {
	meta, messages, err := c.store.FetchCase(ctx, caseID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.place(&CaseView{Case: meta, Messages: messages})
	return nil
}

// Select makes a case the focused view and marks everything in it seen.
// Selecting works on history cases too.
func (c *Controller) Select(ctx context.Context, caseID string) error {
	c.mu.Lock()
	c.selected = caseID
	c.mu.Unlock()

	return c.store.MarkSeen(ctx, caseID)
}

// AppendOptimistic shows the viewer's own message immediately, before the
// server confirms it. The provisional copy has no sequence number yet.
func (c *Controller) AppendOptimistic(caseID, body string) {
	now := c.now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	view, ok := c.active[caseID]
	if !ok {
		return
	}

	view.Messages = append(view.Messages, dto.MessageResponse{
		CaseID:   caseID,
		AuthorID: c.viewerID,
		Body:     body,
		SentAt:   now.Format(time.RFC3339),
	})
	c.pending = append(c.pending, pendingMessage{
		caseID:   caseID,
		authorID: c.viewerID,
		body:     body,
		queuedAt: now,
	})
}

// HandleEvent applies one real-time event to the local view.
func (c *Controller) HandleEvent(ctx context.Context, event dto.CaseEvent) {
	c.mu.Lock()

	refreshSeen := false

	switch event.Type {
	case dto.EventCaseCreated:
		if event.Case != nil {
			// The creator gets its own case-created back through the
			// notification room. A view we already hold only takes the
			// metadata, so the loaded messages survive the echo.
			if view := c.view(event.CaseID); view != nil {
				view.Case = *event.Case
			} else {
				view := &CaseView{Case: *event.Case}
				if event.Message != nil {
					view.Messages = []dto.MessageResponse{*event.Message}
				}
				c.place(view)
			}
		}

	case dto.EventMessageAppended:
		c.applyMessage(event)

	case dto.EventCaseClosed:
		c.closeCase(event)

	case dto.EventSeenUpdated:
		if view := c.view(event.CaseID); view != nil {
			if event.Case != nil {
				view.Case = *event.Case
			}
			// The event carries only the case snapshot; per-message
			// flags come from a refetch.
			refreshSeen = true
		}

	case dto.EventTypingStarted:
		if event.UserID != c.viewerID {
			peers, ok := c.typing[event.CaseID]
			if !ok {
				peers = make(map[string]typingState)
				c.typing[event.CaseID] = peers
			}
			peers[event.UserID] = typingState{
				displayName: event.DisplayName,
				deadline:    c.now().Add(typingTTL),
			}
		}

	case dto.EventTypingStopped:
		if peers, ok := c.typing[event.CaseID]; ok {
			delete(peers, event.UserID)
		}
	}

	selected := c.selected == event.CaseID && event.Type == dto.EventMessageAppended
	c.mu.Unlock()

	// Viewing the case counts as reading it, so a message landing on the
	// focused case is acknowledged right away.
	if selected {
		_ = c.store.MarkSeen(ctx, event.CaseID)
	}
	if refreshSeen {
		_ = c.Load(ctx, event.CaseID)
	}
}

func (c *Controller) applyMessage(event dto.CaseEvent) {
	if event.Message == nil {
		return
	}
	msg := *event.Message

	view := c.view(event.CaseID)
	if view == nil {
		return
	}
	if event.Case != nil {
		view.Case = *event.Case
	}

	// Exact echo of a message we already hold.
	for _, existing := range view.Messages {
		if existing.Seq > 0 && existing.MessageID == msg.MessageID {
			return
		}
		if existing.Seq > 0 && existing.AuthorID == msg.AuthorID &&
			existing.SentAt == msg.SentAt && existing.Body == msg.Body {
			return
		}
	}

	// Confirmation of our own optimistic append: swap the provisional copy
	// for the server's authoritative one.
	if msg.AuthorID == c.viewerID {
		for i, p := range c.pending {
			if p.caseID == event.CaseID && p.body == msg.Body {
				c.pending = append(c.pending[:i], c.pending[i+1:]...)
				for j := len(view.Messages) - 1; j >= 0; j-- {
					m := view.Messages[j]
					if m.Seq == 0 && m.AuthorID == msg.AuthorID && m.Body == msg.Body {
						view.Messages[j] = msg
						return
					}
				}
				break
			}
		}
	}

	view.Messages = append(view.Messages, msg)
	sortConfirmed(view.Messages)
}

func (c *Controller) closeCase(event dto.CaseEvent) {
	view, ok := c.active[event.CaseID]
	if !ok {
		return
	}
	if event.Case != nil {
		view.Case = *event.Case
	} else {
		view.Case.Status = "closed"
	}
	delete(c.active, event.CaseID)
	c.history[event.CaseID] = view
	delete(c.typing, event.CaseID)
}

// Reconcile drops optimistic messages whose confirmation never arrived and
// refetches the affected cases. The server copy replaces the local one
// entirely.
func (c *Controller) Reconcile(ctx context.Context) error {
	now := c.now()

	c.mu.Lock()
	stale := make(map[string]bool)
	kept := c.pending[:0]
	for _, p := range c.pending {
		if now.Sub(p.queuedAt) >= c.pendingTimeout {
			stale[p.caseID] = true
			continue
		}
		kept = append(kept, p)
	}
	c.pending = kept
	c.mu.Unlock()

	for caseID := range stale {
		if err := c.Load(ctx, caseID); err != nil {
			return err
		}
	}
	return nil
}

// TypingPeers returns who is currently typing in a case, pruning indicators
// that were not refreshed within the deadline.
func (c *Controller) TypingPeers(caseID string) []string {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	peers, ok := c.typing[caseID]
	if !ok {
		return nil
	}

	names := make([]string, 0, len(peers))
	for id, state := range peers {
		if now.After(state.deadline) {
			delete(peers, id)
			continue
		}
		names = append(names, state.displayName)
	}
	sort.Strings(names)
	return names
}

func (c *Controller) ActiveCase(caseID string) (CaseView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if view, ok := c.active[caseID]; ok {
		return cloneView(view), true
	}
	return CaseView{}, false
}

func (c *Controller) HistoryCase(caseID string) (CaseView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if view, ok := c.history[caseID]; ok {
		return cloneView(view), true
	}
	return CaseView{}, false
}

func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Controller) view(caseID string) *CaseView {
	if view, ok := c.active[caseID]; ok {
		return view
	}
	return c.history[caseID]
}

func (c *Controller) place(view *CaseView) {
	if view.Case.Status == "closed" {
		delete(c.active, view.Case.CaseID)
		c.history[view.Case.CaseID] = view
		return
	}
	delete(c.history, view.Case.CaseID)
	c.active[view.Case.CaseID] = view
}

// sortConfirmed orders confirmed messages by sequence while keeping
// still-provisional ones (seq 0) at the tail.
func sortConfirmed(messages []dto.MessageResponse) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Seq == 0 || messages[j].Seq == 0 {
			return messages[j].Seq == 0 && messages[i].Seq != 0
		}
		return messages[i].Seq < messages[j].Seq
	})
}

func cloneView(view *CaseView) CaseView {
	out := CaseView{Case: view.Case}
	out.Messages = make([]dto.MessageResponse, len(view.Messages))
	copy(out.Messages, view.Messages)
	return out
}
