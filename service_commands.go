package modkit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// ============================================================================
// COMMANDS
// ============================================================================

// CreateCommand stores a new command owned by the actor. Blocked actors are
// refused; a taken name fails with ErrAlreadyExists and leaves the existing
// command untouched.
func (s *Service) CreateCommand(ctx context.Context, actorID int64, name, action string) (cmd *Command, err error) {
	const op = "CreateCommand"
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()

	if strings.TrimSpace(name) == "" {
		return nil, NewError(ErrInvalidRequest, "command name is required").WithOp(op).WithActor(actorID)
	}

	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, withOp(op, err)
	}
	if err := NewChecker(actor).CanCreateCommand(); err != nil {
		return nil, deny(op, err, actorID, 0)
	}

	cmd = &Command{
		Name:      name,
		Action:    action,
		CreatorID: actorID,
		CreatedAt: s.timestamp(),
	}
	if err := s.store.InsertCommand(ctx, cmd); err != nil {
		return nil, commandErr(op, err, name)
	}

	s.recordAudit(ctx, actorID, ActionCreateCommand, map[string]any{"command": name, "action": action})
	return cmd, nil
}

// UpdateCommand replaces the action of a command. The command's creator and
// any Moderator may edit it; blocked actors may not.
func (s *Service) UpdateCommand(ctx context.Context, actorID int64, name, action string) (cmd *Command, err error) {
	const op = "UpdateCommand"
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()

	actor, cmd, err := s.loadActorAndCommand(ctx, actorID, name)
	if err != nil {
		return nil, commandErr(op, err, name)
	}
	if err := NewChecker(actor).CanEditCommand(cmd); err != nil {
		return nil, commandErr(op, deny(op, err, actorID, cmd.CreatorID), name)
	}

	rows, err := s.store.UpdateCommandAction(ctx, name, cmd.CreatorID, action)
	if err != nil {
		return nil, commandErr(op, err, name)
	}
	if rows == 0 {
		return nil, commandErr(op, s.commandConflict(ctx, name), name)
	}
	cmd.Action = action

	s.recordAudit(ctx, actorID, ActionEditCommand, map[string]any{"command": name, "action": action})
	return cmd, nil
}

// DeleteCommand removes a command. The command's creator and any Moderator may
// delete it.
func (s *Service) DeleteCommand(ctx context.Context, actorID int64, name string) (err error) {
	const op = "DeleteCommand"
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()

	actor, cmd, err := s.loadActorAndCommand(ctx, actorID, name)
	if err != nil {
		return commandErr(op, err, name)
	}
	if err := NewChecker(actor).CanDeleteCommand(cmd); err != nil {
		return commandErr(op, deny(op, err, actorID, cmd.CreatorID), name)
	}

	rows, err := s.store.DeleteCommand(ctx, name, cmd.CreatorID)
	if err != nil {
		return commandErr(op, err, name)
	}
	if rows == 0 {
		return commandErr(op, s.commandConflict(ctx, name), name)
	}

	s.recordAudit(ctx, actorID, ActionDeleteCommand, map[string]any{"command": name})
	return nil
}

// UseCommand counts one use of a command and returns it. The counter is
// incremented in the store, never read-modify-write. When the command cannot be
// read back after the use was counted, only Name is set on the result.
func (s *Service) UseCommand(ctx context.Context, actorID int64, name string) (cmd *Command, err error) {
	const op = "UseCommand"
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()

	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, withOp(op, err)
	}
	if err := NewChecker(actor).CanUseCommand(); err != nil {
		return nil, commandErr(op, deny(op, err, actorID, 0), name)
	}

	rows, err := s.store.IncrementCommandUses(ctx, name)
	if err != nil {
		return nil, commandErr(op, err, name)
	}
	if rows == 0 {
		return nil, NewError(ErrCommandNotFound, "").WithOp(op).WithActor(actorID).WithCommand(name)
	}

	s.recordAudit(ctx, actorID, ActionUseCommand, map[string]any{"command": name})

	// The use is committed from here on. A failed reload must not invite a
	// retry that would count it twice.
	cmd, rerr := s.store.GetCommand(ctx, name)
	if rerr != nil {
		s.logger.WarnContext(ctx, "command used but reload failed",
			slog.String("command", name),
			slog.Int64("actor_id", actorID),
			slog.Any("error", rerr),
		)
		return &Command{Name: name}, nil
	}
	return cmd, nil
}

// GetCommand returns the command with the given name.
func (s *Service) GetCommand(ctx context.Context, name string) (*Command, error) {
	return s.store.GetCommand(ctx, name)
}

// ListCommands returns a page of all commands ordered by name.
func (s *Service) ListCommands(ctx context.Context, page Page) ([]Command, error) {
	return s.store.ListCommands(ctx, CommandFilter{Page: page})
}

// GetUserCommands returns a page of the commands created by accountID.
func (s *Service) GetUserCommands(ctx context.Context, accountID int64, page Page) ([]Command, error) {
	return s.store.ListCommands(ctx, CommandFilter{CreatorID: &accountID, Page: page})
}

func commandErr(op string, err error, name string) error {
	var modErr *Error
	if errors.As(err, &modErr) {
		if modErr.Op == "" {
			modErr.Op = op
		}
		if modErr.Command == "" {
			modErr.Command = name
		}
	}
	return err
}
