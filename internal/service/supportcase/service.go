package supportcase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"support-desk-backend/internal/database"
	internaljwt "support-desk-backend/internal/jwt"
	"support-desk-backend/internal/model"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeCaseClosed   ErrorCode = "case_closed"
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeInternal     ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Identity is the authenticated viewer acting on a case.
type Identity struct {
	UserID      string
	Role        model.Role
	DisplayName string
}

type CreateCaseParams struct {
	OpenedBy      model.Role
	OwnerID       string
	SupporterID   string
	OwnerName     string
	SupporterName string
	Message       string
}

type AppendMessageParams struct {
	AuthorID   string
	AuthorRole model.Role
	AuthorName string
	Body       string
}

type CaseResult struct {
	Case    model.SupportCaseItem
	Message model.CaseMessageItem
}

type CloseCaseResult struct {
	Case          model.SupportCaseItem
	AlreadyClosed bool
}

type MarkSeenResult struct {
	Case    model.SupportCaseItem
	Updated int
}

type ListCasesResult struct {
	Cases []model.SupportCaseItem
}

type ListMessagesResult struct {
	Case     model.SupportCaseItem
	Messages []model.CaseMessageItem
}

// Service is the case lifecycle engine and read-state tracker. All durable
// writes to one case are serialized through a per-case mutex; distinct cases
// mutate in parallel.
type Service struct {
	repo Repository
	now  func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *database.Database) *Service {
	return NewWithRepository(NewDynamoRepository(db), time.Now)
}

func NewWithRepository(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:  repo,
		now:   now,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockCase(caseID string) func() {
	s.mu.Lock()
	lock, ok := s.locks[caseID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[caseID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (s *Service) CreateCase(ctx context.Context, params CreateCaseParams) (CaseResult, error) {
	ownerID := strings.TrimSpace(params.OwnerID)
	supporterID := strings.TrimSpace(params.SupporterID)
	body := strings.TrimSpace(params.Message)

	if !params.OpenedBy.Valid() {
		return CaseResult{}, newError(ErrorCodeValidation, "openedBy must be customer, seller or admin", nil)
	}
	if ownerID == "" || supporterID == "" {
		return CaseResult{}, newError(ErrorCodeValidation, "ownerId and supporterId are required", nil)
	}
	if ownerID == supporterID {
		return CaseResult{}, newError(ErrorCodeValidation, "ownerId and supporterId must differ", nil)
	}
	if body == "" {
		return CaseResult{}, newError(ErrorCodeValidation, "message body is required", nil)
	}

	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339)
	caseID := uuid.NewString()

	item := model.SupportCaseItem{
		CaseID:        caseID,
		OpenedBy:      params.OpenedBy,
		OwnerID:       ownerID,
		SupporterID:   supporterID,
		OwnerName:     strings.TrimSpace(params.OwnerName),
		SupporterName: strings.TrimSpace(params.SupporterName),
		Status:        model.CaseStatusOpen,
		Pool:          model.PoolFor(params.OpenedBy),
		CreatedAt:     nowStr,
		UpdatedAt:     nowStr,
		LastMessageAt: nowStr,
		NextSeq:       2,
	}

	if err := s.repo.CreateCase(ctx, item); err != nil {
		return CaseResult{}, newError(ErrorCodeInternal, "failed to create case", err)
	}

	message := newCaseMessage(caseID, 1, params.OpenedBy, ownerID, item.OwnerName, body, nowStr)
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return CaseResult{}, newError(ErrorCodeInternal, "failed to store message", err)
	}

	return CaseResult{Case: item, Message: message}, nil
}

func (s *Service) AppendMessage(ctx context.Context, caseID string, params AppendMessageParams) (CaseResult, error) {
	caseID = strings.TrimSpace(caseID)
	body := strings.TrimSpace(params.Body)

	if caseID == "" {
		return CaseResult{}, newError(ErrorCodeValidation, "caseId is required", nil)
	}
	if body == "" {
		return CaseResult{}, newError(ErrorCodeValidation, "message body is required", nil)
	}
	if !params.AuthorRole.Valid() {
		return CaseResult{}, newError(ErrorCodeValidation, "authorRole must be customer, seller or admin", nil)
	}

	unlock := s.lockCase(caseID)
	defer unlock()

	item, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CaseResult{}, newError(ErrorCodeNotFound, "case not found", err)
		}
		return CaseResult{}, newError(ErrorCodeInternal, "failed to fetch case", err)
	}

	if item.Status == model.CaseStatusClosed {
		return CaseResult{}, newError(ErrorCodeCaseClosed, "case is closed", nil)
	}

	now := s.now().UTC()
	// sentAt never goes backwards within a case, even if the wall clock does.
	if last := parseTime(item.LastMessageAt); now.Before(last) {
		now = last
	}
	nowStr := now.Format(time.RFC3339)

	seq := item.NextSeq
	if seq < 1 {
		seq = 1
	}

	// Advance the allocator before persisting the message. If the message
	// write then fails the sequence number is burned, which leaves a gap
	// but can never hand the same number to two messages.
	if err := s.repo.UpdateCaseActivity(ctx, caseID, nowStr, nowStr, seq+1); err != nil {
		return CaseResult{}, newError(ErrorCodeInternal, "failed to update case", err)
	}

	message := newCaseMessage(caseID, seq, params.AuthorRole, strings.TrimSpace(params.AuthorID), strings.TrimSpace(params.AuthorName), body, nowStr)
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return CaseResult{}, newError(ErrorCodeInternal, "failed to store message", err)
	}

	item.UpdatedAt = nowStr
	item.LastMessageAt = nowStr
	item.NextSeq = seq + 1

	return CaseResult{Case: item, Message: message}, nil
}

func (s *Service) CloseCase(ctx context.Context, caseID, closedBy string) (CloseCaseResult, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return CloseCaseResult{}, newError(ErrorCodeValidation, "caseId is required", nil)
	}

	unlock := s.lockCase(caseID)
	defer unlock()

	item, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CloseCaseResult{}, newError(ErrorCodeNotFound, "case not found", err)
		}
		return CloseCaseResult{}, newError(ErrorCodeInternal, "failed to fetch case", err)
	}

	// Closing twice is a benign no-op so callers can retry safely.
	if item.Status == model.CaseStatusClosed {
		return CloseCaseResult{Case: item, AlreadyClosed: true}, nil
	}

	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339)

	if err := s.repo.CloseCase(ctx, caseID, strings.TrimSpace(closedBy), nowStr, nowStr); err != nil {
		return CloseCaseResult{}, newError(ErrorCodeInternal, "failed to close case", err)
	}

	item.Status = model.CaseStatusClosed
	item.ClosedBy = strings.TrimSpace(closedBy)
	item.ClosedAt = nowStr
	item.UpdatedAt = nowStr

	return CloseCaseResult{Case: item}, nil
}

// MarkAllSeen flips the viewer role's flag on every message authored by a
// different role. It is idempotent and monotonic, so concurrent calls from
// multiple devices of the same role converge on the same state. Closed cases
// are allowed: opening a case from history still updates read state.
func (s *Service) MarkAllSeen(ctx context.Context, caseID string, viewerRole model.Role) (MarkSeenResult, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return MarkSeenResult{}, newError(ErrorCodeValidation, "caseId is required", nil)
	}
	if !viewerRole.Valid() {
		return MarkSeenResult{}, newError(ErrorCodeValidation, "viewerRole must be customer, seller or admin", nil)
	}

	unlock := s.lockCase(caseID)
	defer unlock()

	item, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return MarkSeenResult{}, newError(ErrorCodeNotFound, "case not found", err)
		}
		return MarkSeenResult{}, newError(ErrorCodeInternal, "failed to fetch case", err)
	}

	messages, err := s.repo.ListMessages(ctx, caseID, 0)
	if err != nil {
		return MarkSeenResult{}, newError(ErrorCodeInternal, "failed to list messages", err)
	}

	updated := 0
	for _, msg := range messages {
		if msg.AuthorRole == viewerRole || msg.SeenBy(viewerRole) {
			continue
		}
		if err := s.repo.MarkMessageSeen(ctx, caseID, msg.MessageID, viewerRole); err != nil {
			return MarkSeenResult{}, newError(ErrorCodeInternal, "failed to update read state", err)
		}
		updated++
	}

	return MarkSeenResult{Case: item, Updated: updated}, nil
}

// UpdateDisplayNames renames the human-facing party labels. Only the
// agent-side party may rename, and only while the case is open.
func (s *Service) UpdateDisplayNames(ctx context.Context, caseID string, byRole model.Role, ownerName, supporterName string) (model.SupportCaseItem, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return model.SupportCaseItem{}, newError(ErrorCodeValidation, "caseId is required", nil)
	}
	if byRole == model.RoleCustomer || !byRole.Valid() {
		return model.SupportCaseItem{}, newError(ErrorCodeForbidden, "only the agent-side party may rename labels", nil)
	}

	unlock := s.lockCase(caseID)
	defer unlock()

	item, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.SupportCaseItem{}, newError(ErrorCodeNotFound, "case not found", err)
		}
		return model.SupportCaseItem{}, newError(ErrorCodeInternal, "failed to fetch case", err)
	}

	if item.Status == model.CaseStatusClosed {
		return model.SupportCaseItem{}, newError(ErrorCodeCaseClosed, "case is closed", nil)
	}

	ownerName = strings.TrimSpace(ownerName)
	supporterName = strings.TrimSpace(supporterName)
	if ownerName == "" {
		ownerName = item.OwnerName
	}
	if supporterName == "" {
		supporterName = item.SupporterName
	}

	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339)

	if err := s.repo.UpdateCaseLabels(ctx, caseID, ownerName, supporterName, nowStr); err != nil {
		return model.SupportCaseItem{}, newError(ErrorCodeInternal, "failed to update labels", err)
	}

	item.OwnerName = ownerName
	item.SupporterName = supporterName
	item.UpdatedAt = nowStr

	return item, nil
}

func (s *Service) GetCase(ctx context.Context, caseID string) (model.SupportCaseItem, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return model.SupportCaseItem{}, newError(ErrorCodeValidation, "caseId is required", nil)
	}

	item, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.SupportCaseItem{}, newError(ErrorCodeNotFound, "case not found", err)
		}
		return model.SupportCaseItem{}, newError(ErrorCodeInternal, "failed to fetch case", err)
	}
	return item, nil
}

func (s *Service) ListCaseMessages(ctx context.Context, caseID string, limit int) (ListMessagesResult, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return ListMessagesResult{}, newError(ErrorCodeValidation, "caseId is required", nil)
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}

	item, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ListMessagesResult{}, newError(ErrorCodeNotFound, "case not found", err)
		}
		return ListMessagesResult{}, newError(ErrorCodeInternal, "failed to fetch case", err)
	}

	messages, err := s.repo.ListMessages(ctx, caseID, limit)
	if err != nil {
		return ListMessagesResult{}, newError(ErrorCodeInternal, "failed to list messages", err)
	}

	return ListMessagesResult{Case: item, Messages: messages}, nil
}

func (s *Service) ListActiveCases(ctx context.Context, pool model.Pool, viewerID string, limit int) (ListCasesResult, error) {
	return s.listCases(ctx, pool, model.CaseStatusOpen, viewerID, limit)
}

func (s *Service) ListHistoryCases(ctx context.Context, pool model.Pool, viewerID string, limit int) (ListCasesResult, error) {
	return s.listCases(ctx, pool, model.CaseStatusClosed, viewerID, limit)
}

func (s *Service) listCases(ctx context.Context, pool model.Pool, status model.CaseStatus, viewerID string, limit int) (ListCasesResult, error) {
	if pool != model.PoolB2C && pool != model.PoolB2B {
		return ListCasesResult{}, newError(ErrorCodeValidation, "pool must be b2c or b2b", nil)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	cases, err := s.repo.ListCases(ctx, pool, status, strings.TrimSpace(viewerID), limit)
	if err != nil {
		return ListCasesResult{}, newError(ErrorCodeInternal, "failed to list cases", err)
	}

	return ListCasesResult{Cases: cases}, nil
}

func (s *Service) IdentityFromAuthorizationHeader(header string) (Identity, error) {
	authHeader := strings.TrimSpace(header)
	if authHeader == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "missing authorization header", nil)
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid authorization header format", nil)
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return s.IdentityFromToken(token)
}

func (s *Service) IdentityFromToken(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "empty token", nil)
	}

	claims, jwtRole, err := internaljwt.ParseAnyRole(token)
	if err != nil {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid token", err)
	}

	userID, _ := claims["id"].(string)
	name, _ := claims["name"].(string)
	if userID == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "token missing identifiers", nil)
	}

	var role model.Role
	switch jwtRole {
	case internaljwt.RoleCustomer:
		role = model.RoleCustomer
	case internaljwt.RoleSeller:
		role = model.RoleSeller
	case internaljwt.RoleAdmin:
		role = model.RoleAdmin
	default:
		return Identity{}, newError(ErrorCodeUnauthorized, "unknown role", nil)
	}

	return Identity{
		UserID:      userID,
		Role:        role,
		DisplayName: name,
	}, nil
}

func newCaseMessage(caseID string, seq int, role model.Role, authorID, authorName, body, sentAt string) model.CaseMessageItem {
	messageID := uuid.NewString()
	msg := model.CaseMessageItem{
		PK:         model.MessagePK(caseID, messageID),
		CaseID:     caseID,
		MessageID:  messageID,
		Seq:        seq,
		AuthorID:   authorID,
		AuthorRole: role,
		AuthorName: authorName,
		Body:       body,
		SentAt:     sentAt,
	}
	// The author has seen their own message by definition.
	msg.MarkSeen(role)
	return msg
}
