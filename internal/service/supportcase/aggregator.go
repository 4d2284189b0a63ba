package supportcase

import (
	"context"
	"sort"

	"support-desk-backend/internal/model"
)

type UnseenCount struct {
	Pool   model.Pool
	Unseen int
}

type UnseenCase struct {
	Case   model.SupportCaseItem
	Unseen int
}

// UnseenCountFor computes the badge number for a role over one pool: the
// total count of open-case messages authored by other roles that the viewer
// role has not seen. It is a pure read model derived from the seen flags, so
// a restart or refetch always reproduces the same number.
func (s *Service) UnseenCountFor(ctx context.Context, role model.Role, pool model.Pool, viewerID string) (UnseenCount, error) {
	if !role.Valid() {
		return UnseenCount{}, newError(ErrorCodeValidation, "role must be customer, seller or admin", nil)
	}
	if pool != model.PoolB2C && pool != model.PoolB2B {
		return UnseenCount{}, newError(ErrorCodeValidation, "pool must be b2c or b2b", nil)
	}

	cases, err := s.repo.ListCases(ctx, pool, model.CaseStatusOpen, viewerID, 0)
	if err != nil {
		return UnseenCount{}, newError(ErrorCodeInternal, "failed to list cases", err)
	}

	total := 0
	for _, c := range cases {
		n, err := s.unseenInCase(ctx, c.CaseID, role)
		if err != nil {
			return UnseenCount{}, err
		}
		total += n
	}

	return UnseenCount{Pool: pool, Unseen: total}, nil
}

// UnseenCasesFor lists the viewer role's open cases that carry at least one
// unseen message, most recently active first.
func (s *Service) UnseenCasesFor(ctx context.Context, role model.Role, viewerID string) ([]UnseenCase, error) {
	if !role.Valid() {
		return nil, newError(ErrorCodeValidation, "role must be customer, seller or admin", nil)
	}

	entries := make([]UnseenCase, 0)
	for _, pool := range []model.Pool{model.PoolB2C, model.PoolB2B} {
		cases, err := s.repo.ListCases(ctx, pool, model.CaseStatusOpen, viewerID, 0)
		if err != nil {
			return nil, newError(ErrorCodeInternal, "failed to list cases", err)
		}
		for _, c := range cases {
			n, err := s.unseenInCase(ctx, c.CaseID, role)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				continue
			}
			entries = append(entries, UnseenCase{Case: c, Unseen: n})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Case.LastMessageAt > entries[j].Case.LastMessageAt
	})

	return entries, nil
}

func (s *Service) unseenInCase(ctx context.Context, caseID string, role model.Role) (int, error) {
	messages, err := s.repo.ListMessages(ctx, caseID, 0)
	if err != nil {
		return 0, newError(ErrorCodeInternal, "failed to list messages", err)
	}

	n := 0
	for _, msg := range messages {
		if msg.AuthorRole == role {
			continue
		}
		if !msg.SeenBy(role) {
			n++
		}
	}
	return n, nil
}
