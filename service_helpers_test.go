package modkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRetry tests the caller-side retry loop
func TestRetry(t *testing.T) {
	ctx := context.Background()
	conflict := NewError(ErrNotModified, "")

	t.Run("succeeds after conflicts", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, func(context.Context) error {
			calls++
			if calls < 3 {
				return conflict
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 5, func(context.Context) error {
			calls++
			return NewError(ErrForbidden, "")
		})
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 2, func(context.Context) error {
			calls++
			return conflict
		})
		assert.ErrorIs(t, err, ErrNotModified)
		assert.Equal(t, 2, calls)
	})

	t.Run("runs at least once", func(t *testing.T) {
		calls := 0
		_ = Retry(ctx, 0, func(context.Context) error {
			calls++
			return conflict
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when context ends", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		calls := 0
		start := time.Now()
		err := Retry(cancelled, 10, func(context.Context) error {
			calls++
			return conflict
		})
		assert.ErrorIs(t, err, ErrNotModified)
		assert.Equal(t, 1, calls)
		assert.Less(t, time.Since(start), time.Second)
	})
}

// TestServiceLoadPair tests error precedence between actor and target reads
func TestServiceLoadPair(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleModerator)
	h.Account(2, RoleUser)

	actor, target, err := h.service.loadPair(h.ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), actor.ID)
	assert.Equal(t, int64(2), target.ID)

	_, _, err = h.service.loadPair(h.ctx, 1, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = h.service.loadPair(h.ctx, 3, 2)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, _, err = h.service.loadPair(h.ctx, 3, 4)
	assert.ErrorIs(t, err, ErrForbidden)
}

// TestServiceLoadActorAndCommand tests error precedence between actor and command reads
func TestServiceLoadActorAndCommand(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleUser)

	_, _, err := h.service.loadActorAndCommand(h.ctx, 1, "ping")
	assert.ErrorIs(t, err, ErrCommandNotFound)

	_, _, err = h.service.loadActorAndCommand(h.ctx, 9, "ping")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.service.CreateCommand(h.ctx, 1, "ping", "pong")
	require.NoError(t, err)

	actor, cmd, err := h.service.loadActorAndCommand(h.ctx, 1, "ping")
	require.NoError(t, err)
	assert.Equal(t, int64(1), actor.ID)
	assert.Equal(t, "pong", cmd.Action)
}

// TestWithOpAndDeny tests stamping context onto modkit errors
func TestWithOpAndDeny(t *testing.T) {
	err := withOp("Block", NewError(ErrNotFound, ""))
	var modErr *Error
	require.True(t, errors.As(err, &modErr))
	assert.Equal(t, "Block", modErr.Op)

	err = withOp("Other", err)
	require.True(t, errors.As(err, &modErr))
	assert.Equal(t, "Block", modErr.Op)

	plain := errors.New("plain")
	assert.Same(t, plain, withOp("Block", plain))

	err = deny("Warn", NewError(ErrForbidden, ""), 1, 2)
	require.True(t, errors.As(err, &modErr))
	assert.Equal(t, "Warn", modErr.Op)
	assert.Equal(t, int64(1), modErr.ActorID)
	assert.Equal(t, int64(2), modErr.AccountID)
}

// TestCommandErr tests stamping command context onto modkit errors
func TestCommandErr(t *testing.T) {
	err := commandErr("UseCommand", NewError(ErrCommandNotFound, ""), "ping")
	var modErr *Error
	require.True(t, errors.As(err, &modErr))
	assert.Equal(t, "UseCommand", modErr.Op)
	assert.Equal(t, "ping", modErr.Command)
}
