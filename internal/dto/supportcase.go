package dto

type CaseMetadata struct {
	CaseID        string `json:"caseId"`
	OpenedBy      string `json:"openedBy"`
	OwnerID       string `json:"ownerId"`
	SupporterID   string `json:"supporterId"`
	OwnerName     string `json:"ownerName,omitempty"`
	SupporterName string `json:"supporterName,omitempty"`
	Status        string `json:"status"`
	Pool          string `json:"pool"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
	LastMessageAt string `json:"lastMessageAt"`
	ClosedAt      string `json:"closedAt,omitempty"`
	ClosedBy      string `json:"closedBy,omitempty"`
}

type MessageResponse struct {
	MessageID      string `json:"messageId"`
	CaseID         string `json:"caseId"`
	Seq            int    `json:"seq"`
	AuthorID       string `json:"authorId"`
	AuthorRole     string `json:"authorRole"`
	AuthorName     string `json:"authorName,omitempty"`
	Body           string `json:"body"`
	SentAt         string `json:"sentAt"`
	SeenByCustomer bool   `json:"seenByCustomer"`
	SeenBySeller   bool   `json:"seenBySeller"`
	SeenByAdmin    bool   `json:"seenByAdmin"`
}

type CreateCaseRequest struct {
	SupporterID   string `json:"supporterId"`
	SupporterName string `json:"supporterName,omitempty"`
	Message       string `json:"message"`
}

type CreateCaseResponse struct {
	Case    CaseMetadata    `json:"case"`
	Message MessageResponse `json:"message"`
}

type PostMessageRequest struct {
	Body string `json:"body"`
}

type CloseCaseResponse struct {
	Case          CaseMetadata `json:"case"`
	AlreadyClosed bool         `json:"alreadyClosed"`
}

type MarkSeenResponse struct {
	Case    CaseMetadata `json:"case"`
	Updated int          `json:"updated"`
}

type UpdateLabelsRequest struct {
	OwnerName     string `json:"ownerName,omitempty"`
	SupporterName string `json:"supporterName,omitempty"`
}

type UpdateLabelsResponse struct {
	Case CaseMetadata `json:"case"`
}

type ListCasesResponse struct {
	Cases []CaseMetadata `json:"cases"`
}

type ListMessagesResponse struct {
	Case     CaseMetadata      `json:"case"`
	Messages []MessageResponse `json:"messages"`
}

type UnseenCountResponse struct {
	Pool   string `json:"pool"`
	Unseen int    `json:"unseen"`
}

type UnseenCaseEntry struct {
	Case   CaseMetadata `json:"case"`
	Unseen int          `json:"unseen"`
}

type UnseenCasesResponse struct {
	Cases []UnseenCaseEntry `json:"cases"`
}
