package model

import "fmt"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

type CaseStatus string

const (
	CaseStatusOpen   CaseStatus = "open"
	CaseStatusClosed CaseStatus = "closed"
)

type Pool string

const (
	PoolB2C Pool = "b2c"
	PoolB2B Pool = "b2b"
)

// PoolFor derives pool membership from the opening role. Customer-opened
// cases land in the B2C pool, seller- or admin-opened cases in B2B.
func PoolFor(openedBy Role) Pool {
	if openedBy == RoleCustomer {
		return PoolB2C
	}
	return PoolB2B
}

func MessagePK(caseID, messageID string) string {
	return fmt.Sprintf("%s#%s", caseID, messageID)
}

type SupportCaseItem struct {
	CaseID        string     `dynamodbav:"caseId"`
	OpenedBy      Role       `dynamodbav:"openedBy"`
	OwnerID       string     `dynamodbav:"ownerId"`
	SupporterID   string     `dynamodbav:"supporterId"`
	OwnerName     string     `dynamodbav:"ownerName,omitempty"`
	SupporterName string     `dynamodbav:"supporterName,omitempty"`
	Status        CaseStatus `dynamodbav:"status"`
	Pool          Pool       `dynamodbav:"pool"`
	CreatedAt     string     `dynamodbav:"createdAt"`
	UpdatedAt     string     `dynamodbav:"updatedAt"`
	LastMessageAt string     `dynamodbav:"lastMessageAt"`
	ClosedAt      string     `dynamodbav:"closedAt,omitempty"`
	ClosedBy      string     `dynamodbav:"closedBy,omitempty"`
	NextSeq       int        `dynamodbav:"nextSeq"`
}

// HasParticipant reports whether the viewer is one of the two case parties.
func (c SupportCaseItem) HasParticipant(viewerID string) bool {
	return viewerID != "" && (c.OwnerID == viewerID || c.SupporterID == viewerID)
}

type CaseMessageItem struct {
	PK             string `dynamodbav:"pk"`
	CaseID         string `dynamodbav:"caseId"`
	MessageID      string `dynamodbav:"messageId"`
	Seq            int    `dynamodbav:"seq"`
	AuthorID       string `dynamodbav:"authorId"`
	AuthorRole     Role   `dynamodbav:"authorRole"`
	AuthorName     string `dynamodbav:"authorName,omitempty"`
	Body           string `dynamodbav:"body"`
	SentAt         string `dynamodbav:"sentAt"`
	SeenByCustomer bool   `dynamodbav:"seenByCustomer"`
	SeenBySeller   bool   `dynamodbav:"seenBySeller"`
	SeenByAdmin    bool   `dynamodbav:"seenByAdmin"`
}

func (m CaseMessageItem) SeenBy(role Role) bool {
	switch role {
	case RoleCustomer:
		return m.SeenByCustomer
	case RoleSeller:
		return m.SeenBySeller
	case RoleAdmin:
		return m.SeenByAdmin
	}
	return false
}

// MarkSeen flips one role's flag true. Flags never go back to false.
func (m *CaseMessageItem) MarkSeen(role Role) {
	switch role {
	case RoleCustomer:
		m.SeenByCustomer = true
	case RoleSeller:
		m.SeenBySeller = true
	case RoleAdmin:
		m.SeenByAdmin = true
	}
}

func SeenAttribute(role Role) string {
	switch role {
	case RoleCustomer:
		return "seenByCustomer"
	case RoleSeller:
		return "seenBySeller"
	case RoleAdmin:
		return "seenByAdmin"
	}
	return ""
}
