package modkit

import (
	"context"
)

// ============================================================================
// AUDIT LOG
// ============================================================================

// GetAction returns the audit entry with the given id.
func (s *Service) GetAction(ctx context.Context, id int64) (*AuditEntry, error) {
	return s.store.GetAudit(ctx, id)
}

// GetActions retrieves audit log entries matching filter, oldest first.
func (s *Service) GetActions(ctx context.Context, filter ActionFilter) ([]AuditEntry, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, NewError(ErrInvalidRequest, "unknown action kind "+string(filter.Kind)).WithOp("GetActions")
	}
	return s.store.ListAudit(ctx, filter)
}

// GetUserActions returns a page of the audit entries whose subject is accountID.
func (s *Service) GetUserActions(ctx context.Context, accountID int64, page Page) ([]AuditEntry, error) {
	return s.store.ListAudit(ctx, NewActionFilter().WithAccount(accountID).WithPage(page))
}
