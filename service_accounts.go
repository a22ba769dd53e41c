package modkit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// ============================================================================
// ACCOUNT REGISTRY
// ============================================================================

// Register records an account seen by the bot. New accounts get the role chosen
// by the service's RolePolicy. See UpsertAccount.
func (s *Service) Register(ctx context.Context, id int64, handle *string, displayName string) (*Account, error) {
	acc, _, err := s.UpsertAccount(ctx, id, s.policy(id), handle, displayName)
	return acc, err
}

// UpsertAccount creates the account with roleIfNew if id is unknown and appends
// a create_user audit entry. For an existing account only the handle and the
// display name are refreshed; role and warnings are left untouched. A handle
// already held by another account moves to this one.
func (s *Service) UpsertAccount(ctx context.Context, id int64, roleIfNew Role, handle *string, displayName string) (acc *Account, created bool, err error) {
	const op = "UpsertAccount"
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()

	if !roleIfNew.Valid() {
		return nil, false, NewError(ErrInvalidRole, "unknown initial role "+string(roleIfNew)).WithOp(op).WithAccount(id)
	}
	if handle != nil {
		h := strings.TrimPrefix(strings.TrimSpace(*handle), "@")
		if h == "" {
			handle = nil
		} else {
			handle = &h
		}
	}

	acc = &Account{
		ID:          id,
		Role:        roleIfNew,
		DisplayName: displayName,
		Handle:      handle,
		CreatedAt:   s.timestamp(),
	}
	created, err = s.store.UpsertAccount(ctx, acc)
	if err != nil {
		return nil, false, withOp(op, err)
	}

	if created {
		s.recordAudit(ctx, id, ActionCreateUser, map[string]any{"role": string(acc.Role)})
		s.logger.InfoContext(ctx, "account registered",
			slog.Int64("account_id", id),
			slog.String("role", string(acc.Role)),
		)
	}
	return acc, created, nil
}

// GetAccount returns the account with the given id.
func (s *Service) GetAccount(ctx context.Context, id int64) (*Account, error) {
	return s.store.GetAccount(ctx, id)
}

// FindAccountByHandle returns the account holding handle. A leading "@" is ignored.
func (s *Service) FindAccountByHandle(ctx context.Context, handle string) (*Account, error) {
	return s.store.FindAccountByHandle(ctx, strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// ChangeNickname sets the target's display name. Accounts may rename themselves;
// Moderators may rename anyone.
func (s *Service) ChangeNickname(ctx context.Context, actorID, targetID int64, name string) (target *Account, err error) {
	const op = "ChangeNickname"
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()

	actor, target, err := s.loadPair(ctx, actorID, targetID)
	if err != nil {
		return nil, withOp(op, err)
	}
	if err := NewChecker(actor).CanChangeNickname(target); err != nil {
		return nil, deny(op, err, actorID, targetID)
	}

	rows, err := s.store.UpdateDisplayName(ctx, targetID, name)
	if err != nil {
		return nil, withOp(op, err)
	}
	if rows == 0 {
		return nil, NewError(ErrNotFound, "").WithOp(op).WithAccount(targetID)
	}
	target.DisplayName = name
	return target, nil
}

// ============================================================================
// ROLE TRANSITIONS
// ============================================================================

// Block moves a User to Blocked. The actor must be a Moderator or above.
func (s *Service) Block(ctx context.Context, actorID, targetID int64) (*Account, error) {
	return s.transition(ctx, "Block", actorID, targetID, (*Checker).CanBlock, RoleBlocked, ActionBlockUser)
}

// Unblock moves a Blocked account back to User. The actor must be a Moderator or above.
func (s *Service) Unblock(ctx context.Context, actorID, targetID int64) (*Account, error) {
	return s.transition(ctx, "Unblock", actorID, targetID, (*Checker).CanUnblock, RoleUser, ActionUnblockUser)
}

// Promote moves a User to Moderator. Only the Creator may promote.
func (s *Service) Promote(ctx context.Context, actorID, targetID int64) (*Account, error) {
	return s.transition(ctx, "Promote", actorID, targetID, (*Checker).CanPromote, RoleModerator, ActionPromoteUser)
}

// Demote moves a Moderator back to User. Only the Creator may demote.
func (s *Service) Demote(ctx context.Context, actorID, targetID int64) (*Account, error) {
	return s.transition(ctx, "Demote", actorID, targetID, (*Checker).CanDemote, RoleUser, ActionDemoteUser)
}

func (s *Service) transition(
	ctx context.Context,
	op string,
	actorID, targetID int64,
	check func(*Checker, *Account) error,
	to Role,
	kind ActionKind,
) (target *Account, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()

	actor, target, err := s.loadPair(ctx, actorID, targetID)
	if err != nil {
		return nil, withOp(op, err)
	}
	if err := check(NewChecker(actor), target); err != nil {
		return nil, deny(op, err, actorID, targetID)
	}

	from := target.Role
	if err := s.casAccount(ctx, target, AccountChange{Role: &to}); err != nil {
		return nil, withOp(op, err)
	}

	s.recordAudit(ctx, targetID, kind, map[string]any{"by": actorID})
	s.logger.InfoContext(ctx, "role changed",
		slog.String("op", op),
		slog.Int64("actor_id", actorID),
		slog.Int64("account_id", targetID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return target, nil
}

// ============================================================================
// WARNINGS
// ============================================================================

// Warn adds one warning to the target. When a User reaches the configured
// threshold the same conditional update also blocks it, and a block_user entry
// by the same actor follows the warn_user entry. autoBlocked reports that case.
// Warning an already blocked account only raises its count.
func (s *Service) Warn(ctx context.Context, actorID, targetID int64) (target *Account, autoBlocked bool, err error) {
	const op = "Warn"
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()

	actor, target, err := s.loadPair(ctx, actorID, targetID)
	if err != nil {
		return nil, false, withOp(op, err)
	}
	if err := NewChecker(actor).CanWarn(target); err != nil {
		return nil, false, deny(op, err, actorID, targetID)
	}

	next := target.Warnings + 1
	change := AccountChange{Warnings: &next}
	if target.Role == RoleUser && next >= s.maxWarns {
		blocked := RoleBlocked
		change.Role = &blocked
		autoBlocked = true
	}
	if err := s.casAccount(ctx, target, change); err != nil {
		return nil, false, withOp(op, err)
	}

	s.recordAudit(ctx, targetID, ActionWarnUser, map[string]any{"by": actorID, "warns": next})
	if autoBlocked {
		s.recordAudit(ctx, targetID, ActionBlockUser, map[string]any{"by": actorID, "reason": "max_warns"})
		s.metrics.autoBlocked()
		s.logger.InfoContext(ctx, "account blocked after reaching warning limit",
			slog.Int64("actor_id", actorID),
			slog.Int64("account_id", targetID),
			slog.Int64("warns", next),
		)
	}
	return target, autoBlocked, nil
}

// UnWarn removes one warning from the target. It fails with ErrNotAllowed when
// the target has none. The role is never changed.
func (s *Service) UnWarn(ctx context.Context, actorID, targetID int64) (target *Account, err error) {
	const op = "UnWarn"
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()

	actor, target, err := s.loadPair(ctx, actorID, targetID)
	if err != nil {
		return nil, withOp(op, err)
	}
	if err := NewChecker(actor).CanUnWarn(target); err != nil {
		return nil, deny(op, err, actorID, targetID)
	}

	next := target.Warnings - 1
	if err := s.casAccount(ctx, target, AccountChange{Warnings: &next}); err != nil {
		return nil, withOp(op, err)
	}

	s.recordAudit(ctx, targetID, ActionUnWarnUser, map[string]any{"by": actorID, "warns": next})
	return target, nil
}
