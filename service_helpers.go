package modkit

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
)

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

// loadActor reads the acting account. A missing actor is reported as
// ErrForbidden: unknown callers may not act at all.
func (s *Service) loadActor(ctx context.Context, actorID int64) (*Account, error) {
	actor, err := s.store.GetAccount(ctx, actorID)
	if err != nil {
		if IsNotFound(err) {
			return nil, NewError(ErrForbidden, "unknown actor").WithActor(actorID)
		}
		return nil, err
	}
	return actor, nil
}

// loadPair reads the actor and the target concurrently. When both reads fail
// the actor's error wins, so an unknown actor is always reported as forbidden.
func (s *Service) loadPair(ctx context.Context, actorID, targetID int64) (*Account, *Account, error) {
	var (
		g                   errgroup.Group
		actor, target       *Account
		actorErr, targetErr error
	)
	g.Go(func() error {
		actor, actorErr = s.loadActor(ctx, actorID)
		return actorErr
	})
	g.Go(func() error {
		target, targetErr = s.store.GetAccount(ctx, targetID)
		if IsNotFound(targetErr) {
			targetErr = NewError(ErrNotFound, "").WithAccount(targetID)
		}
		return targetErr
	})
	_ = g.Wait()
	if actorErr != nil {
		return nil, nil, actorErr
	}
	if targetErr != nil {
		return nil, nil, targetErr
	}
	return actor, target, nil
}

// loadActorAndCommand reads the actor and a command concurrently, with the same
// error precedence as loadPair.
func (s *Service) loadActorAndCommand(ctx context.Context, actorID int64, name string) (*Account, *Command, error) {
	var (
		g                errgroup.Group
		actor            *Account
		cmd              *Command
		actorErr, cmdErr error
	)
	g.Go(func() error {
		actor, actorErr = s.loadActor(ctx, actorID)
		return actorErr
	})
	g.Go(func() error {
		cmd, cmdErr = s.store.GetCommand(ctx, name)
		return cmdErr
	})
	_ = g.Wait()
	if actorErr != nil {
		return nil, nil, actorErr
	}
	if cmdErr != nil {
		return nil, nil, cmdErr
	}
	return actor, cmd, nil
}

// casAccount applies change to target only if the stored row still matches the
// state target was read with. On success target reflects the change.
func (s *Service) casAccount(ctx context.Context, target *Account, change AccountChange) error {
	rows, err := s.store.UpdateAccount(ctx, target.ID, target.State(), change)
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.accountConflict(ctx, target.ID)
	}
	change.apply(target)
	return nil
}

// accountConflict tells a vanished account apart from a lost race.
func (s *Service) accountConflict(ctx context.Context, id int64) error {
	if _, err := s.store.GetAccount(ctx, id); err != nil {
		return err
	}
	return NewError(ErrNotModified, "account changed concurrently").WithAccount(id)
}

// commandConflict tells a vanished command apart from a lost race.
func (s *Service) commandConflict(ctx context.Context, name string) error {
	if _, err := s.store.GetCommand(ctx, name); err != nil {
		return err
	}
	return NewError(ErrNotModified, "command changed concurrently").WithCommand(name)
}

// recordAudit appends an audit entry after its mutation committed. A failed
// append is logged and counted; the mutation stands.
func (s *Service) recordAudit(ctx context.Context, subjectID int64, kind ActionKind, payload map[string]any) {
	entry := &AuditEntry{
		AccountID: subjectID,
		Kind:      kind,
		Payload:   GetAuditContext(ctx).decorate(payload),
		CreatedAt: s.timestamp(),
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		s.monitor.recordAuditFailure()
		s.metrics.auditFailed()
		s.logger.ErrorContext(ctx, "audit append failed",
			slog.String("kind", string(kind)),
			slog.Int64("account_id", subjectID),
			slog.String("request_id", GetRequestID(ctx)),
			slog.Any("error", err),
		)
	}
}

// observe records the outcome of one mutation.
func (s *Service) observe(ctx context.Context, op string, start time.Time, err error) {
	d := time.Since(start)
	outcome := outcomeOf(err)
	s.monitor.record(d, outcome)
	s.metrics.observe(op, outcome, d)

	switch outcome {
	case OutcomeError:
		s.logger.ErrorContext(ctx, "operation failed",
			slog.String("op", op),
			slog.Duration("duration", d),
			slog.Any("error", err),
		)
	case OutcomeOK:
		s.logger.DebugContext(ctx, "operation completed",
			slog.String("op", op),
			slog.Duration("duration", d),
		)
	default:
		s.logger.InfoContext(ctx, "operation rejected",
			slog.String("op", op),
			slog.String("outcome", outcome),
			slog.Any("error", err),
		)
	}
}

// withOp stamps the operation name on a modkit error that has none yet.
func withOp(op string, err error) error {
	var modErr *Error
	if errors.As(err, &modErr) && modErr.Op == "" {
		modErr.Op = op
	}
	return err
}

// deny stamps an authorization failure with the operation and the parties.
func deny(op string, err error, actorID, targetID int64) error {
	var modErr *Error
	if errors.As(err, &modErr) {
		modErr.Op = op
		modErr.ActorID = actorID
		modErr.AccountID = targetID
	}
	return err
}

// ============================================================================
// RETRY
// ============================================================================

// DefaultRetryAttempts is the attempt budget used by callers that retry
// conflicting operations.
const DefaultRetryAttempts = 3

// Retry runs fn until it succeeds, fails with a non-retryable error, or
// maxAttempts is exhausted. The service never retries by itself; callers opt in
// here. Attempts back off exponentially with jitter and stop early when ctx ends.
//
// Example:
//
//	err := modkit.Retry(ctx, modkit.DefaultRetryAttempts, func(ctx context.Context) error {
//	    _, _, err := service.Warn(ctx, moderatorID, userID)
//	    return err
//	})
func Retry(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond
		jitter := time.Duration(float64(backoff) * 0.1 * (0.5 + rand.Float64()))
		timer := time.NewTimer(backoff + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}
