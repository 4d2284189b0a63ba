package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"support-desk-backend/internal/api"
	"support-desk-backend/internal/dto"
	"support-desk-backend/internal/model"
	supportcaseservice "support-desk-backend/internal/service/supportcase"
	"support-desk-backend/internal/websocket"
)

type SupportCaseEndpoints interface {
	Cases(http.ResponseWriter, *http.Request) error
	CaseActions(http.ResponseWriter, *http.Request) error
	UnseenCount(http.ResponseWriter, *http.Request) error
	UnseenCases(http.ResponseWriter, *http.Request) error
	Websocket(http.ResponseWriter, *http.Request) error
	NotificationsWebsocket(http.ResponseWriter, *http.Request) error
}

type SupportCasePaths struct {
	CasesPath                 string
	CasePrefix                string
	UnseenCountPath           string
	UnseenCasesPath           string
	WebsocketPrefix           string
	NotificationWebsocketPath string
}

type supportCaseEndpoints struct {
	service *supportcaseservice.Service
	handler *websocket.Handler
	paths   SupportCasePaths
}

func NewSupportCaseEndpoints(service *supportcaseservice.Service, handler *websocket.Handler, prefix string) SupportCaseEndpoints {
	base := strings.TrimRight(prefix, "/")
	return NewSupportCaseEndpointsWithPaths(service, handler, SupportCasePaths{
		CasesPath:                 base + "/cases",
		CasePrefix:                base + "/cases/",
		UnseenCountPath:           base + "/notifications/unseen",
		UnseenCasesPath:           base + "/notifications/cases",
		WebsocketPrefix:           base + "/ws/cases/",
		NotificationWebsocketPath: base + "/ws/notifications",
	})
}

func NewSupportCaseEndpointsWithPaths(service *supportcaseservice.Service, handler *websocket.Handler, paths SupportCasePaths) SupportCaseEndpoints {
	return &supportCaseEndpoints{
		service: service,
		handler: handler,
		paths:   paths,
	}
}

func (h *supportCaseEndpoints) Cases(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleCreateCase,
		http.MethodGet:  h.handleListCases,
	})
}

func (h *supportCaseEndpoints) CaseActions(w http.ResponseWriter, r *http.Request) error {
	_, action, err := h.extractCaseAction(r.URL.Path)
	if err != nil {
		return err
	}

	switch action {
	case "messages":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet:  h.handleListMessages,
			http.MethodPost: h.handlePostMessage,
		})
	case "close":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: h.handleCloseCase,
		})
	case "seen":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: h.handleMarkSeen,
		})
	case "labels":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: h.handleUpdateLabels,
		})
	default:
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Case not found",
			ErrorLog:   fmt.Errorf("unknown case action: %s", action),
		}
	}
}

func (h *supportCaseEndpoints) UnseenCount(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleUnseenCount,
	})
}

func (h *supportCaseEndpoints) UnseenCases(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleUnseenCases,
	})
}

func (h *supportCaseEndpoints) handleCreateCase(w http.ResponseWriter, r *http.Request) error {
	identity, err := h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	var req dto.CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode create case request: %w", err),
		}
	}

	result, err := h.service.CreateCase(r.Context(), supportcaseservice.CreateCaseParams{
		OpenedBy:      identity.Role,
		OwnerID:       identity.UserID,
		SupporterID:   strings.TrimSpace(req.SupporterID),
		OwnerName:     identity.DisplayName,
		SupporterName: strings.TrimSpace(req.SupporterName),
		Message:       req.Message,
	})
	if err != nil {
		return h.serviceError(err)
	}

	h.ensureRoom(result.Case.CaseID)
	h.broadcastEvent(result.Case, dto.CaseEvent{
		Type:    dto.EventCaseCreated,
		CaseID:  result.Case.CaseID,
		Case:    caseMetadataPtr(result.Case),
		Message: messageResponsePtr(result.Message),
	})

	resp := dto.CreateCaseResponse{
		Case:    toCaseMetadata(result.Case),
		Message: toMessageResponse(result.Message),
	}
	return api.WriteJSON(w, http.StatusCreated, resp)
}

func (h *supportCaseEndpoints) handleListCases(w http.ResponseWriter, r *http.Request) error {
	identity, err := h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	pool := model.Pool(strings.TrimSpace(r.URL.Query().Get("pool")))
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	var result supportcaseservice.ListCasesResult
	switch status {
	case "", "open":
		result, err = h.service.ListActiveCases(r.Context(), pool, h.viewerFilter(identity), 0)
	case "closed":
		result, err = h.service.ListHistoryCases(r.Context(), pool, h.viewerFilter(identity), 0)
	default:
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid status parameter",
			ErrorLog:   fmt.Errorf("list cases status invalid: %s", status),
		}
	}
	if err != nil {
		return h.serviceError(err)
	}

	resp := dto.ListCasesResponse{Cases: make([]dto.CaseMetadata, len(result.Cases))}
	for i, c := range result.Cases {
		resp.Cases[i] = toCaseMetadata(c)
	}
	return api.WriteJSON(w, http.StatusOK, resp)
}

func (h *supportCaseEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request) error {
	caseID, _, err := h.extractCaseAction(r.URL.Path)
	if err != nil {
		return err
	}

	identity, err := h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	result, err := h.service.ListCaseMessages(r.Context(), caseID, 200)
	if err != nil {
		return h.serviceError(err)
	}
	if err := h.requireParticipant(identity, result.Case); err != nil {
		return err
	}

	resp := dto.ListMessagesResponse{
		Case:     toCaseMetadata(result.Case),
		Messages: make([]dto.MessageResponse, len(result.Messages)),
	}
	for i, msg := range result.Messages {
		resp.Messages[i] = toMessageResponse(msg)
	}
	return api.WriteJSON(w, http.StatusOK, resp)
}

func (h *supportCaseEndpoints) handlePostMessage(w http.ResponseWriter, r *http.Request) error {
	caseID, _, err := h.extractCaseAction(r.URL.Path)
	if err != nil {
		return err
	}

	identity, err := h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	if err := h.requireCaseAccess(r, identity, caseID); err != nil {
		return err
	}

	var req dto.PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode post message request: %w", err),
		}
	}

	result, err := h.service.AppendMessage(r.Context(), caseID, supportcaseservice.AppendMessageParams{
		AuthorID:   identity.UserID,
		AuthorRole: identity.Role,
		AuthorName: identity.DisplayName,
		Body:       req.Body,
	})
	if err != nil {
		return h.serviceError(err)
	}

	h.ensureRoom(result.Case.CaseID)
	h.broadcastEvent(result.Case, dto.CaseEvent{
		Type:    dto.EventMessageAppended,
		CaseID:  result.Case.CaseID,
		Case:    caseMetadataPtr(result.Case),
		Message: messageResponsePtr(result.Message),
	})

	return api.WriteJSON(w, http.StatusCreated, toMessageResponse(result.Message))
}

func (h *supportCaseEndpoints) handleCloseCase(w http.ResponseWriter, r *http.Request) error {
	caseID, _, err := h.extractCaseAction(r.URL.Path)
	if err != nil {
		return err
	}

	identity, err := h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	if err := h.requireCaseAccess(r, identity, caseID); err != nil {
		return err
	}

	result, err := h.service.CloseCase(r.Context(), caseID, identity.UserID)
	if err != nil {
		return h.serviceError(err)
	}

	if !result.AlreadyClosed {
		h.broadcastEvent(result.Case, dto.CaseEvent{
			Type:   dto.EventCaseClosed,
			CaseID: result.Case.CaseID,
			Case:   caseMetadataPtr(result.Case),
			UserID: identity.UserID,
		})
	}

	resp := dto.CloseCaseResponse{
		Case:          toCaseMetadata(result.Case),
		AlreadyClosed: result.AlreadyClosed,
	}
	return api.WriteJSON(w, http.StatusOK, resp)
}

func (h *supportCaseEndpoints) handleMarkSeen(w http.ResponseWriter, r *http.Request) error {
	caseID, _, err := h.extractCaseAction(r.URL.Path)
	if err != nil {
		return err
	}

	identity, err := h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	if err := h.requireCaseAccess(r, identity, caseID); err != nil {
		return err
	}

	result, err := h.service.MarkAllSeen(r.Context(), caseID, identity.Role)
	if err != nil {
		return h.serviceError(err)
	}

	if result.Updated > 0 {
		h.broadcastEvent(result.Case, dto.CaseEvent{
			Type:       dto.EventSeenUpdated,
			CaseID:     result.Case.CaseID,
			Case:       caseMetadataPtr(result.Case),
			ViewerRole: string(identity.Role),
			UserID:     identity.UserID,
		})
	}

	resp := dto.MarkSeenResponse{
		Case:    toCaseMetadata(result.Case),
		Updated: result.Updated,
	}
	return api.WriteJSON(w, http.StatusOK, resp)
}

func (h *supportCaseEndpoints) handleUpdateLabels(w http.ResponseWriter, r *http.Request) error {
	caseID, _, err := h.extractCaseAction(r.URL.Path)
	if err != nil {
		return err
	}

	identity, err := h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	var req dto.UpdateLabelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode update labels request: %w", err),
		}
	}

	item, err := h.service.UpdateDisplayNames(r.Context(), caseID, identity.Role, req.OwnerName, req.SupporterName)
	if err != nil {
		return h.serviceError(err)
	}

	resp := dto.UpdateLabelsResponse{Case: toCaseMetadata(item)}
	return api.WriteJSON(w, http.StatusOK, resp)
}

func (h *supportCaseEndpoints) handleUnseenCount(w http.ResponseWriter, r *http.Request) error {
	identity, err := h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	pool := model.Pool(strings.TrimSpace(r.URL.Query().Get("pool")))
	result, err := h.service.UnseenCountFor(r.Context(), identity.Role, pool, h.viewerFilter(identity))
	if err != nil {
		return h.serviceError(err)
	}

	resp := dto.UnseenCountResponse{
		Pool:   string(result.Pool),
		Unseen: result.Unseen,
	}
	return api.WriteJSON(w, http.StatusOK, resp)
}

func (h *supportCaseEndpoints) handleUnseenCases(w http.ResponseWriter, r *http.Request) error {
	identity, err := h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	entries, err := h.service.UnseenCasesFor(r.Context(), identity.Role, h.viewerFilter(identity))
	if err != nil {
		return h.serviceError(err)
	}

	resp := dto.UnseenCasesResponse{Cases: make([]dto.UnseenCaseEntry, len(entries))}
	for i, entry := range entries {
		resp.Cases[i] = dto.UnseenCaseEntry{
			Case:   toCaseMetadata(entry.Case),
			Unseen: entry.Unseen,
		}
	}
	return api.WriteJSON(w, http.StatusOK, resp)
}

func (h *supportCaseEndpoints) Websocket(w http.ResponseWriter, r *http.Request) error {
	raw, err := h.extractFromPath(r.URL.Path, h.paths.WebsocketPrefix)
	if err != nil {
		return err
	}

	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) == 2 && parts[1] == "leave" {
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleLeaveCase(w, r, parts[0])
			},
		})
	}
	if len(parts) != 1 || parts[0] == "" {
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Case not found",
			ErrorLog:   fmt.Errorf("invalid websocket path: %s", r.URL.Path),
		}
	}
	caseID := parts[0]

	identity, err := h.websocketIdentity(r)
	if err != nil {
		return err
	}

	item, err := h.service.GetCase(r.Context(), caseID)
	if err != nil {
		return h.serviceError(err)
	}
	if err := h.requireParticipant(identity, item); err != nil {
		return err
	}

	h.ensureRoom(caseID)
	h.handler.JoinRoom(w, r, caseID, identity.UserID)
	return nil
}

// handleLeaveCase drops the viewer's room registration without waiting for
// the socket to close on its own. Leaving a room the viewer never joined is
// a no-op.
func (h *supportCaseEndpoints) handleLeaveCase(w http.ResponseWriter, r *http.Request, caseID string) error {
	identity, err := h.websocketIdentity(r)
	if err != nil {
		return err
	}

	if h.handler != nil {
		h.handler.LeaveRoom(caseID, identity.UserID)
	}
	return WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *supportCaseEndpoints) NotificationsWebsocket(w http.ResponseWriter, r *http.Request) error {
	if h.handler == nil {
		return &HTTPError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "Websocket not available",
			ErrorLog:   fmt.Errorf("notification websocket handler missing"),
		}
	}

	identity, err := h.websocketIdentity(r)
	if err != nil {
		return err
	}

	roomID := viewerNotificationRoomID(identity.UserID)
	h.ensureRoom(roomID)
	h.handler.JoinRoom(w, r, roomID, identity.UserID)
	return nil
}

func (h *supportCaseEndpoints) websocketIdentity(r *http.Request) (supportcaseservice.Identity, error) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token != "" {
		identity, err := h.service.IdentityFromToken(token)
		if err != nil {
			return supportcaseservice.Identity{}, h.serviceError(err)
		}
		return identity, nil
	}

	identity, err := h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return supportcaseservice.Identity{}, h.serviceError(err)
	}
	return identity, nil
}

// viewerFilter scopes list and badge queries. Customers only ever see cases
// they take part in; the agent side works pool-wide.
func (h *supportCaseEndpoints) viewerFilter(identity supportcaseservice.Identity) string {
	if identity.Role == model.RoleCustomer {
		return identity.UserID
	}
	return ""
}

func (h *supportCaseEndpoints) requireParticipant(identity supportcaseservice.Identity, item model.SupportCaseItem) error {
	if identity.Role != model.RoleCustomer {
		return nil
	}
	if item.HasParticipant(identity.UserID) {
		return nil
	}
	return &HTTPError{
		StatusCode: http.StatusForbidden,
		Message:    "Forbidden",
		ErrorLog:   fmt.Errorf("viewer %s is not a participant of case %s", identity.UserID, item.CaseID),
	}
}

func (h *supportCaseEndpoints) requireCaseAccess(r *http.Request, identity supportcaseservice.Identity, caseID string) error {
	if identity.Role != model.RoleCustomer {
		return nil
	}
	item, err := h.service.GetCase(r.Context(), caseID)
	if err != nil {
		return h.serviceError(err)
	}
	return h.requireParticipant(identity, item)
}

func (h *supportCaseEndpoints) extractCaseAction(path string) (string, string, error) {
	prefix := h.paths.CasePrefix
	if prefix == "" {
		return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Case not found", ErrorLog: fmt.Errorf("case routes not configured")}
	}
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == path {
		return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Case not found", ErrorLog: fmt.Errorf("case path mismatch: %s", path)}
	}
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Case not found", ErrorLog: fmt.Errorf("invalid case path: %s", path)}
	}
	return parts[0], parts[1], nil
}

func (h *supportCaseEndpoints) extractFromPath(path, prefix string) (string, error) {
	if prefix == "" {
		return "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Case not found", ErrorLog: fmt.Errorf("websocket not configured")}
	}
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == path {
		return "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Case not found", ErrorLog: fmt.Errorf("path mismatch: %s", path)}
	}
	return trimmed, nil
}

func (h *supportCaseEndpoints) ensureRoom(roomID string) {
	if roomID == "" || h.handler == nil {
		return
	}
	h.handler.CreateRoom(roomID)
}

// broadcastEvent fans an event out to the case room and to both parties'
// notification rooms. Redis is the primary path so every server instance
// sees the event exactly once; the local hub is only used when the publish
// fails outright.
func (h *supportCaseEndpoints) broadcastEvent(item model.SupportCaseItem, event dto.CaseEvent) {
	event.BroadcastAt = time.Now().UTC().Format(time.RFC3339)

	h.publishToRoom(item.CaseID, event)
	h.publishToRoom(viewerNotificationRoomID(item.OwnerID), event)
	h.publishToRoom(viewerNotificationRoomID(item.SupporterID), event)
}

func (h *supportCaseEndpoints) publishToRoom(roomID string, event dto.CaseEvent) {
	if roomID == "" {
		return
	}

	if err := websocket.Publish(roomID, event); err != nil {
		fmt.Printf("failed to publish event for room %s: %v\n", roomID, err)
		if h.handler != nil {
			h.handler.NotifyRoom(roomID, event)
		}
	}
}

func (h *supportCaseEndpoints) serviceError(err error) error {
	if err == nil {
		return nil
	}

	svcErr, ok := err.(*supportcaseservice.Error)
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("supportcase service: %w", err),
		}
	}

	var logErr error
	if svcErr.Err != nil {
		logErr = fmt.Errorf("%s: %w", svcErr.Message, svcErr.Err)
	} else {
		logErr = svcErr
	}

	switch svcErr.Code {
	case supportcaseservice.ErrorCodeValidation:
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: svcErr.Message, ErrorLog: logErr}
	case supportcaseservice.ErrorCodeUnauthorized:
		return &HTTPError{StatusCode: http.StatusUnauthorized, Message: svcErr.Message, ErrorLog: logErr}
	case supportcaseservice.ErrorCodeForbidden:
		return &HTTPError{StatusCode: http.StatusForbidden, Message: svcErr.Message, ErrorLog: logErr}
	case supportcaseservice.ErrorCodeNotFound:
		return &HTTPError{StatusCode: http.StatusNotFound, Message: svcErr.Message, ErrorLog: logErr}
	case supportcaseservice.ErrorCodeCaseClosed, supportcaseservice.ErrorCodeConflict:
		return &HTTPError{StatusCode: http.StatusConflict, Message: svcErr.Message, ErrorLog: logErr}
	default:
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", ErrorLog: logErr}
	}
}

func toCaseMetadata(item model.SupportCaseItem) dto.CaseMetadata {
	return dto.CaseMetadata{
		CaseID:        item.CaseID,
		OpenedBy:      string(item.OpenedBy),
		OwnerID:       item.OwnerID,
		SupporterID:   item.SupporterID,
		OwnerName:     item.OwnerName,
		SupporterName: item.SupporterName,
		Status:        string(item.Status),
		Pool:          string(item.Pool),
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
		LastMessageAt: item.LastMessageAt,
		ClosedAt:      item.ClosedAt,
		ClosedBy:      item.ClosedBy,
	}
}

func toMessageResponse(item model.CaseMessageItem) dto.MessageResponse {
	return dto.MessageResponse{
		MessageID:      item.MessageID,
		CaseID:         item.CaseID,
		Seq:            item.Seq,
		AuthorID:       item.AuthorID,
		AuthorRole:     string(item.AuthorRole),
		AuthorName:     item.AuthorName,
		Body:           item.Body,
		SentAt:         item.SentAt,
		SeenByCustomer: item.SeenByCustomer,
		SeenBySeller:   item.SeenBySeller,
		SeenByAdmin:    item.SeenByAdmin,
	}
}

func caseMetadataPtr(item model.SupportCaseItem) *dto.CaseMetadata {
	meta := toCaseMetadata(item)
	return &meta
}

func messageResponsePtr(item model.CaseMessageItem) *dto.MessageResponse {
	resp := toMessageResponse(item)
	return &resp
}

func viewerNotificationRoomID(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ""
	}
	return fmt.Sprintf("user:%s:notifications", userID)
}
