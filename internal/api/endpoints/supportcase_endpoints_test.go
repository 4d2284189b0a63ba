package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"support-desk-backend/internal/api"
	"support-desk-backend/internal/api/middleware"
	"support-desk-backend/internal/dto"
	internaljwt "support-desk-backend/internal/jwt"
	"support-desk-backend/internal/model"
	"support-desk-backend/internal/queue"
	supportcaseservice "support-desk-backend/internal/service/supportcase"
	"support-desk-backend/internal/websocket"
)

type memoryRepository struct {
	mu       sync.Mutex
	cases    map[string]model.SupportCaseItem
	messages map[string][]model.CaseMessageItem
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		cases:    make(map[string]model.SupportCaseItem),
		messages: make(map[string][]model.CaseMessageItem),
	}
}

func (m *memoryRepository) CreateCase(ctx context.Context, item model.SupportCaseItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[item.CaseID] = item
	return nil
}

func (m *memoryRepository) GetCase(ctx context.Context, caseID string) (model.SupportCaseItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.cases[caseID]
	if !ok {
		return model.SupportCaseItem{}, supportcaseservice.ErrNotFound
	}
	return item, nil
}

func (m *memoryRepository) UpdateCaseActivity(ctx context.Context, caseID, updatedAt, lastMessageAt string, nextSeq int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.cases[caseID]
	if !ok {
		return supportcaseservice.ErrNotFound
	}
	item.UpdatedAt = updatedAt
	item.LastMessageAt = lastMessageAt
	item.NextSeq = nextSeq
	m.cases[caseID] = item
	return nil
}

func (m *memoryRepository) CloseCase(ctx context.Context, caseID, closedBy, closedAt, updatedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.cases[caseID]
	if !ok {
		return supportcaseservice.ErrNotFound
	}
	item.Status = model.CaseStatusClosed
	item.ClosedBy = closedBy
	item.ClosedAt = closedAt
	item.UpdatedAt = updatedAt
	m.cases[caseID] = item
	return nil
}

func (m *memoryRepository) UpdateCaseLabels(ctx context.Context, caseID, ownerName, supporterName, updatedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.cases[caseID]
	if !ok {
		return supportcaseservice.ErrNotFound
	}
	item.OwnerName = ownerName
	item.SupporterName = supporterName
	item.UpdatedAt = updatedAt
	m.cases[caseID] = item
	return nil
}

func (m *memoryRepository) ListCases(ctx context.Context, pool model.Pool, status model.CaseStatus, viewerID string, limit int) ([]model.SupportCaseItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SupportCaseItem, 0)
	for _, c := range m.cases {
		if c.Pool != pool || c.Status != status {
			continue
		}
		if viewerID != "" && !c.HasParticipant(viewerID) {
			continue
		}
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepository) CreateMessage(ctx context.Context, message model.CaseMessageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[message.CaseID] = append(m.messages[message.CaseID], message)
	return nil
}

func (m *memoryRepository) ListMessages(ctx context.Context, caseID string, limit int) ([]model.CaseMessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]model.CaseMessageItem, len(m.messages[caseID]))
	copy(msgs, m.messages[caseID])
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *memoryRepository) MarkMessageSeen(ctx context.Context, caseID, messageID string, role model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[caseID]
	for i := range msgs {
		if msgs[i].MessageID == messageID {
			msgs[i].MarkSeen(role)
			return nil
		}
	}
	return supportcaseservice.ErrNotFound
}

// The APIServer registers its Prometheus collectors with the global default
// registry, so it can only be constructed once per test binary.
var (
	sharedServerOnce sync.Once
	sharedServer     *api.APIServer
)

func sharedAPIServer() *api.APIServer {
	sharedServerOnce.Do(func() {
		queueManager := queue.NewRequestQueueManager(10, 1)
		sharedServer = api.NewAPIServer(":0", queueManager, nil, nil)
	})
	return sharedServer
}

func setupSupportCaseTestHandler(t *testing.T) (http.Handler, *supportcaseservice.Service, *memoryRepository) {
	t.Helper()

	for role, secret := range map[internaljwt.Role]string{
		internaljwt.RoleCustomer: "customer-test-secret",
		internaljwt.RoleSeller:   "seller-test-secret",
		internaljwt.RoleAdmin:    "admin-test-secret",
	} {
		original := internaljwt.RoleSecrets[role]
		internaljwt.RoleSecrets[role] = secret
		role := role
		t.Cleanup(func() {
			internaljwt.RoleSecrets[role] = original
		})
	}

	repo := newMemoryRepository()
	svc := supportcaseservice.NewWithRepository(repo, time.Now)

	hub := websocket.NewHub()
	go hub.Run()
	handler := websocket.NewHandler(hub)

	server := sharedAPIServer()

	endpoints := NewSupportCaseEndpoints(svc, handler, "/api/support/v1")
	mux := http.NewServeMux()
	mux.HandleFunc("/api/support/v1/cases", server.MakeHTTPHandleFunc(endpoints.Cases, middleware.ValidateViewerJWT))
	mux.HandleFunc("/api/support/v1/cases/", server.MakeHTTPHandleFunc(endpoints.CaseActions, middleware.ValidateViewerJWT))
	mux.HandleFunc("/api/support/v1/notifications/unseen", server.MakeHTTPHandleFunc(endpoints.UnseenCount, middleware.ValidateViewerJWT))
	mux.HandleFunc("/api/support/v1/notifications/cases", server.MakeHTTPHandleFunc(endpoints.UnseenCases, middleware.ValidateViewerJWT))
	mux.HandleFunc("/api/support/v1/ws/cases/", server.MakeHTTPHandleFunc(endpoints.Websocket))

	return mux, svc, repo
}

func viewerToken(t *testing.T, id, name string, role internaljwt.Role) string {
	t.Helper()
	token, err := internaljwt.CreateToken(internaljwt.Viewer{Id: id, DisplayName: name}, role, time.Now().Add(time.Hour).Unix())
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	return token
}

func seedCase(t *testing.T, svc *supportcaseservice.Service) supportcaseservice.CaseResult {
	t.Helper()
	result, err := svc.CreateCase(context.Background(), supportcaseservice.CreateCaseParams{
		OpenedBy:    model.RoleCustomer,
		OwnerID:     "cust-1",
		SupporterID: "sell-1",
		OwnerName:   "Customer One",
		Message:     "my parcel never arrived",
	})
	if err != nil {
		t.Fatalf("CreateCase error: %v", err)
	}
	return result
}

func TestCreateCaseEndpoint(t *testing.T) {
	handler, _, _ := setupSupportCaseTestHandler(t)

	payload := dto.CreateCaseRequest{
		SupporterID: "sell-1",
		Message:     "my parcel never arrived",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/support/v1/cases", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+viewerToken(t, "cust-1", "Customer One", internaljwt.RoleCustomer))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	var resp dto.CreateCaseResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Case.CaseID == "" {
		t.Fatal("expected case id")
	}
	if resp.Case.Status != "open" || resp.Case.Pool != "b2c" {
		t.Fatalf("unexpected case state: %+v", resp.Case)
	}
	if resp.Message.Seq != 1 || !resp.Message.SeenByCustomer {
		t.Fatalf("unexpected seed message: %+v", resp.Message)
	}
}

func TestCreateCaseRequiresAuth(t *testing.T) {
	handler, _, _ := setupSupportCaseTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/support/v1/cases", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestPostMessageToClosedCaseConflicts(t *testing.T) {
	handler, svc, _ := setupSupportCaseTestHandler(t)
	result := seedCase(t, svc)
	if _, err := svc.CloseCase(context.Background(), result.Case.CaseID, "sell-1"); err != nil {
		t.Fatalf("CloseCase error: %v", err)
	}

	payload := dto.PostMessageRequest{Body: "one more thing"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/support/v1/cases/"+result.Case.CaseID+"/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+viewerToken(t, "sell-1", "Seller", internaljwt.RoleSeller))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
}

func TestCloseCaseEndpointIsIdempotent(t *testing.T) {
	handler, svc, _ := setupSupportCaseTestHandler(t)
	result := seedCase(t, svc)

	closeCase := func() dto.CloseCaseResponse {
		req := httptest.NewRequest(http.MethodPost, "/api/support/v1/cases/"+result.Case.CaseID+"/close", nil)
		req.Header.Set("Authorization", "Bearer "+viewerToken(t, "sell-1", "Seller", internaljwt.RoleSeller))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var resp dto.CloseCaseResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return resp
	}

	first := closeCase()
	if first.AlreadyClosed {
		t.Fatal("first close should not report alreadyClosed")
	}

	second := closeCase()
	if !second.AlreadyClosed {
		t.Fatal("second close should report alreadyClosed")
	}
}

func TestMarkSeenClearsBadge(t *testing.T) {
	handler, svc, _ := setupSupportCaseTestHandler(t)
	result := seedCase(t, svc)

	sellerAuth := "Bearer " + viewerToken(t, "sell-1", "Seller", internaljwt.RoleSeller)

	countReq := httptest.NewRequest(http.MethodGet, "/api/support/v1/notifications/unseen?pool=b2c", nil)
	countReq.Header.Set("Authorization", sellerAuth)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, countReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var count dto.UnseenCountResponse
	if err := json.NewDecoder(rec.Body).Decode(&count); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if count.Unseen != 1 {
		t.Fatalf("expected 1 unseen before marking, got %d", count.Unseen)
	}

	seenReq := httptest.NewRequest(http.MethodPost, "/api/support/v1/cases/"+result.Case.CaseID+"/seen", nil)
	seenReq.Header.Set("Authorization", sellerAuth)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, seenReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var seen dto.MarkSeenResponse
	if err := json.NewDecoder(rec.Body).Decode(&seen); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if seen.Updated != 1 {
		t.Fatalf("expected 1 updated message, got %d", seen.Updated)
	}

	rec = httptest.NewRecorder()
	countReq = httptest.NewRequest(http.MethodGet, "/api/support/v1/notifications/unseen?pool=b2c", nil)
	countReq.Header.Set("Authorization", sellerAuth)
	handler.ServeHTTP(rec, countReq)
	if err := json.NewDecoder(rec.Body).Decode(&count); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if count.Unseen != 0 {
		t.Fatalf("expected badge to clear, got %d", count.Unseen)
	}
}

func TestCustomerCannotTouchForeignCase(t *testing.T) {
	handler, svc, _ := setupSupportCaseTestHandler(t)
	result := seedCase(t, svc)

	payload := dto.PostMessageRequest{Body: "let me in"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/support/v1/cases/"+result.Case.CaseID+"/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+viewerToken(t, "stranger", "Stranger", internaljwt.RoleCustomer))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestCustomerCannotRenameLabels(t *testing.T) {
	handler, svc, _ := setupSupportCaseTestHandler(t)
	result := seedCase(t, svc)

	payload := dto.UpdateLabelsRequest{OwnerName: "Someone Else"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/support/v1/cases/"+result.Case.CaseID+"/labels", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+viewerToken(t, "cust-1", "Customer One", internaljwt.RoleCustomer))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestLeaveCaseRoomEndpoint(t *testing.T) {
	handler, svc, _ := setupSupportCaseTestHandler(t)
	result := seedCase(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/support/v1/ws/cases/"+result.Case.CaseID+"/leave", nil)
	req.Header.Set("Authorization", "Bearer "+viewerToken(t, "cust-1", "Customer One", internaljwt.RoleCustomer))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	// Leaving is safe even when the viewer never joined the room.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestListCasesEndpoint(t *testing.T) {
	handler, svc, _ := setupSupportCaseTestHandler(t)
	seedCase(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/support/v1/cases?pool=b2c&status=open", nil)
	req.Header.Set("Authorization", "Bearer "+viewerToken(t, "cust-1", "Customer One", internaljwt.RoleCustomer))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp dto.ListCasesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Cases) != 1 {
		t.Fatalf("expected 1 case, got %d", len(resp.Cases))
	}
}

func TestListMessagesEndpoint(t *testing.T) {
	handler, svc, _ := setupSupportCaseTestHandler(t)
	result := seedCase(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/support/v1/cases/"+result.Case.CaseID+"/messages", nil)
	req.Header.Set("Authorization", "Bearer "+viewerToken(t, "cust-1", "Customer One", internaljwt.RoleCustomer))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp dto.ListMessagesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Body != "my parcel never arrived" {
		t.Fatalf("unexpected messages: %+v", resp.Messages)
	}
}
