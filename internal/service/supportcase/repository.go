package supportcase

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"support-desk-backend/internal/database"
	"support-desk-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("supportcase repository: not found")

type Repository interface {
	CreateCase(ctx context.Context, item model.SupportCaseItem) error
	GetCase(ctx context.Context, caseID string) (model.SupportCaseItem, error)
	UpdateCaseActivity(ctx context.Context, caseID, updatedAt, lastMessageAt string, nextSeq int) error
	CloseCase(ctx context.Context, caseID, closedBy, closedAt, updatedAt string) error
	UpdateCaseLabels(ctx context.Context, caseID, ownerName, supporterName, updatedAt string) error
	ListCases(ctx context.Context, pool model.Pool, status model.CaseStatus, viewerID string, limit int) ([]model.SupportCaseItem, error)
	CreateMessage(ctx context.Context, message model.CaseMessageItem) error
	ListMessages(ctx context.Context, caseID string, limit int) ([]model.CaseMessageItem, error)
	MarkMessageSeen(ctx context.Context, caseID, messageID string, role model.Role) error
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) CreateCase(ctx context.Context, item model.SupportCaseItem) error {
	return r.db.Client.PutItem(ctx, model.SupportCasesTable, item)
}

func (r *DynamoRepository) GetCase(ctx context.Context, caseID string) (model.SupportCaseItem, error) {
	var item model.SupportCaseItem
	err := r.db.Client.GetItem(
		ctx,
		model.SupportCasesTable,
		map[string]types.AttributeValue{
			"caseId": &types.AttributeValueMemberS{Value: caseID},
		},
		&item,
	)
	if err != nil {
		if isNotFound(err) {
			return model.SupportCaseItem{}, ErrNotFound
		}
		return model.SupportCaseItem{}, err
	}
	return item, nil
}

func (r *DynamoRepository) UpdateCaseActivity(ctx context.Context, caseID, updatedAt, lastMessageAt string, nextSeq int) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.SupportCasesTable,
		map[string]types.AttributeValue{
			"caseId": &types.AttributeValueMemberS{Value: caseID},
		},
		"SET #updatedAt = :updatedAt, #lastMessageAt = :lastMessageAt, #nextSeq = :nextSeq",
		map[string]types.AttributeValue{
			":updatedAt":     &types.AttributeValueMemberS{Value: updatedAt},
			":lastMessageAt": &types.AttributeValueMemberS{Value: lastMessageAt},
			":nextSeq":       &types.AttributeValueMemberN{Value: formatInt(nextSeq)},
		},
		map[string]string{
			"#updatedAt":     "updatedAt",
			"#lastMessageAt": "lastMessageAt",
			"#nextSeq":       "nextSeq",
		},
		nil,
	)
}

func (r *DynamoRepository) CloseCase(ctx context.Context, caseID, closedBy, closedAt, updatedAt string) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.SupportCasesTable,
		map[string]types.AttributeValue{
			"caseId": &types.AttributeValueMemberS{Value: caseID},
		},
		"SET #status = :closed, #closedBy = :closedBy, #closedAt = :closedAt, #updatedAt = :updatedAt",
		map[string]types.AttributeValue{
			":closed":    &types.AttributeValueMemberS{Value: string(model.CaseStatusClosed)},
			":closedBy":  &types.AttributeValueMemberS{Value: closedBy},
			":closedAt":  &types.AttributeValueMemberS{Value: closedAt},
			":updatedAt": &types.AttributeValueMemberS{Value: updatedAt},
		},
		map[string]string{
			"#status":    "status",
			"#closedBy":  "closedBy",
			"#closedAt":  "closedAt",
			"#updatedAt": "updatedAt",
		},
		nil,
	)
}

func (r *DynamoRepository) UpdateCaseLabels(ctx context.Context, caseID, ownerName, supporterName, updatedAt string) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.SupportCasesTable,
		map[string]types.AttributeValue{
			"caseId": &types.AttributeValueMemberS{Value: caseID},
		},
		"SET #ownerName = :ownerName, #supporterName = :supporterName, #updatedAt = :updatedAt",
		map[string]types.AttributeValue{
			":ownerName":     &types.AttributeValueMemberS{Value: ownerName},
			":supporterName": &types.AttributeValueMemberS{Value: supporterName},
			":updatedAt":     &types.AttributeValueMemberS{Value: updatedAt},
		},
		map[string]string{
			"#ownerName":     "ownerName",
			"#supporterName": "supporterName",
			"#updatedAt":     "updatedAt",
		},
		nil,
	)
}

func (r *DynamoRepository) ListCases(ctx context.Context, pool model.Pool, status model.CaseStatus, viewerID string, limit int) ([]model.SupportCaseItem, error) {
	scanForward := false
	items, err := r.db.Client.QueryItems(
		ctx,
		model.SupportCasesTable,
		aws.String("byPool"),
		"pool = :pool",
		map[string]types.AttributeValue{
			":pool": &types.AttributeValueMemberS{Value: string(pool)},
		},
		nil,
		&scanForward,
	)
	if err != nil && !isIndexNotFound(err) {
		return nil, err
	}

	if (err != nil && isIndexNotFound(err)) || items == nil {
		items, err = r.db.Client.ScanItems(
			ctx,
			model.SupportCasesTable,
			"pool = :pool",
			map[string]types.AttributeValue{
				":pool": &types.AttributeValueMemberS{Value: string(pool)},
			},
			nil,
		)
		if err != nil {
			return nil, err
		}
	}

	cases := make([]model.SupportCaseItem, 0, len(items))
	for _, item := range items {
		var c model.SupportCaseItem
		if err := attributevalue.UnmarshalMap(item, &c); err != nil {
			return nil, err
		}
		if c.Status != status {
			continue
		}
		if viewerID != "" && !c.HasParticipant(viewerID) {
			continue
		}
		cases = append(cases, c)
	}

	sort.Slice(cases, func(i, j int) bool {
		return cases[i].LastMessageAt > cases[j].LastMessageAt
	})

	if limit > 0 && len(cases) > limit {
		cases = cases[:limit]
	}

	return cases, nil
}

func (r *DynamoRepository) CreateMessage(ctx context.Context, message model.CaseMessageItem) error {
	return r.db.Client.PutItem(ctx, model.CaseMessagesTable, message)
}

func (r *DynamoRepository) ListMessages(ctx context.Context, caseID string, limit int) ([]model.CaseMessageItem, error) {
	scanForward := true
	items, err := r.db.Client.QueryItems(
		ctx,
		model.CaseMessagesTable,
		aws.String("byCase"),
		"caseId = :caseId",
		map[string]types.AttributeValue{
			":caseId": &types.AttributeValueMemberS{Value: caseID},
		},
		nil,
		&scanForward,
	)
	if err != nil && !isIndexNotFound(err) {
		return nil, err
	}

	if (err != nil && isIndexNotFound(err)) || items == nil {
		items, err = r.db.Client.ScanItems(
			ctx,
			model.CaseMessagesTable,
			"caseId = :caseId",
			map[string]types.AttributeValue{
				":caseId": &types.AttributeValueMemberS{Value: caseID},
			},
			nil,
		)
		if err != nil {
			return nil, err
		}
	}

	messages := make([]model.CaseMessageItem, 0, len(items))
	for _, item := range items {
		var msg model.CaseMessageItem
		if err := attributevalue.UnmarshalMap(item, &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Seq < messages[j].Seq
	})

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	return messages, nil
}

// MarkMessageSeen flips a single role flag to true. The write is absolute,
// so replaying it is harmless and the flag can never revert.
func (r *DynamoRepository) MarkMessageSeen(ctx context.Context, caseID, messageID string, role model.Role) error {
	attr := model.SeenAttribute(role)
	if attr == "" {
		return errors.New("supportcase repository: unknown role")
	}

	return r.db.Client.UpdateItem(
		ctx,
		model.CaseMessagesTable,
		map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: model.MessagePK(caseID, messageID)},
		},
		"SET #seen = :seen",
		map[string]types.AttributeValue{
			":seen": &types.AttributeValueMemberBOOL{Value: true},
		},
		map[string]string{
			"#seen": attr,
		},
		nil,
	)
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}

func isIndexNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "index") && strings.Contains(msg, "not") && strings.Contains(msg, "found")
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}

func parseTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
