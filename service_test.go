package modkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServiceRegistration tests registration through the role policy
func TestServiceRegistration(t *testing.T) {
	creator := int64(1)
	h := newTestHelper(t, WithRolePolicy(CreatorPolicy(&creator)))

	acc, err := h.service.Register(h.ctx, 1, nil, "owner")
	require.NoError(t, err)
	assert.Equal(t, RoleCreator, acc.Role)

	acc, err = h.service.Register(h.ctx, 2, nil, "guest")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, acc.Role)
	assert.Equal(t, int64(0), acc.Warnings)

	assert.Equal(t, 1, h.CountActions(1, ActionCreateUser))
	assert.Equal(t, 1, h.CountActions(2, ActionCreateUser))
}

// TestServiceUpsertIdempotent tests that a second upsert only refreshes profile fields
func TestServiceUpsertIdempotent(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleModerator)

	acc, created, err := h.service.UpsertAccount(h.ctx, 2, RoleUser, nil, "bob")
	require.NoError(t, err)
	assert.True(t, created)

	_, _, err = h.service.Warn(h.ctx, 1, 2)
	require.NoError(t, err)

	acc, created, err = h.service.UpsertAccount(h.ctx, 2, RoleModerator, nil, "bobby")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, RoleUser, acc.Role)
	assert.Equal(t, int64(1), acc.Warnings)
	assert.Equal(t, "bobby", acc.DisplayName)

	assert.Equal(t, 1, h.CountActions(2, ActionCreateUser))
}

// TestServiceUpsertInvalidRole tests rejecting an unknown initial role
func TestServiceUpsertInvalidRole(t *testing.T) {
	h := newTestHelper(t)

	_, _, err := h.service.UpsertAccount(h.ctx, 1, Role("admin"), nil, "x")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = h.service.GetAccount(h.ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestServiceHandles tests handle normalization and handle moves
func TestServiceHandles(t *testing.T) {
	h := newTestHelper(t)

	alice := " @alice "
	_, _, err := h.service.UpsertAccount(h.ctx, 1, RoleUser, &alice, "Alice")
	require.NoError(t, err)

	found, err := h.service.FindAccountByHandle(h.ctx, "@alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.ID)

	moved := "alice"
	_, _, err = h.service.UpsertAccount(h.ctx, 2, RoleUser, &moved, "Alice 2")
	require.NoError(t, err)

	found, err = h.service.FindAccountByHandle(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), found.ID)
	assert.Nil(t, h.Reload(1).Handle)

	blank := "  "
	acc, _, err := h.service.UpsertAccount(h.ctx, 3, RoleUser, &blank, "Nobody")
	require.NoError(t, err)
	assert.Nil(t, acc.Handle)

	_, err = h.service.FindAccountByHandle(h.ctx, "carol")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestServiceChangeNickname tests self rename and moderator rename
func TestServiceChangeNickname(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleModerator)
	h.Account(2, RoleUser)
	h.Account(3, RoleUser)

	acc, err := h.service.ChangeNickname(h.ctx, 2, 2, "me")
	require.NoError(t, err)
	assert.Equal(t, "me", acc.DisplayName)

	_, err = h.service.ChangeNickname(h.ctx, 1, 3, "renamed")
	require.NoError(t, err)
	assert.Equal(t, "renamed", h.Reload(3).DisplayName)

	_, err = h.service.ChangeNickname(h.ctx, 2, 3, "nope")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "renamed", h.Reload(3).DisplayName)

	_, err = h.service.ChangeNickname(h.ctx, 1, 99, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestServiceUnknownParties tests that an unknown actor is forbidden and an unknown target is not found
func TestServiceUnknownParties(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleModerator)
	h.Account(2, RoleUser)

	_, err := h.service.Block(h.ctx, 42, 2)
	assert.ErrorIs(t, err, ErrForbidden)
	h.AssertRole(2, RoleUser)

	_, err = h.service.Block(h.ctx, 1, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.service.Block(h.ctx, 41, 42)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.service.CreateCommand(h.ctx, 42, "ping", "pong")
	assert.ErrorIs(t, err, ErrForbidden)
}

// TestServiceRoleTransitions tests the concrete promote/demote/warn scenario
func TestServiceRoleTransitions(t *testing.T) {
	h := newTestHelper(t, WithMaxWarns(5))
	h.Account(1, RoleCreator)
	h.Account(2, RoleUser)

	acc, err := h.service.Promote(h.ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, RoleModerator, acc.Role)
	h.AssertRole(2, RoleModerator)

	acc, err = h.service.Demote(h.ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, acc.Role)
	h.AssertRole(2, RoleUser)

	for i := 1; i <= 5; i++ {
		_, blocked, err := h.service.Warn(h.ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, i == 5, blocked, "warn %d", i)
	}

	acc = h.Reload(2)
	assert.Equal(t, RoleBlocked, acc.Role)
	assert.Equal(t, int64(5), acc.Warnings)
	assert.Equal(t, 5, h.CountActions(2, ActionWarnUser))
	assert.Equal(t, 1, h.CountActions(2, ActionBlockUser))
	assert.Equal(t, 1, h.CountActions(2, ActionPromoteUser))
	assert.Equal(t, 1, h.CountActions(2, ActionDemoteUser))
}

// TestServicePromoteInvalidRole tests that promote outside the transition table never mutates
func TestServicePromoteInvalidRole(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleCreator)
	h.Account(2, RoleModerator)
	h.Account(3, RoleBlocked)

	for _, id := range []int64{2, 3} {
		before := h.Reload(id)
		_, err := h.service.Promote(h.ctx, 1, id)
		assert.ErrorIs(t, err, ErrInvalidRole)
		assert.Equal(t, before.State(), h.Reload(id).State())
		assert.Equal(t, 0, h.CountActions(id, ActionPromoteUser))
	}

	_, err := h.service.Demote(h.ctx, 1, 3)
	assert.ErrorIs(t, err, ErrInvalidRole)
	h.AssertRole(3, RoleBlocked)
}

// TestServiceBlockUnblock tests the block and unblock transitions and their audit
func TestServiceBlockUnblock(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleModerator)
	h.Account(2, RoleUser)
	h.Account(3, RoleModerator)

	_, err := h.service.Unblock(h.ctx, 1, 2)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = h.service.Block(h.ctx, 1, 2)
	require.NoError(t, err)
	h.AssertRole(2, RoleBlocked)

	_, err = h.service.Block(h.ctx, 1, 3)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = h.service.Unblock(h.ctx, 1, 2)
	require.NoError(t, err)
	h.AssertRole(2, RoleUser)

	blocks, err := h.service.GetActions(h.ctx, NewActionFilter().WithAccount(2).WithKind(ActionBlockUser))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, map[string]any{"by": int64(1)}, blocks[0].Payload)
	assert.Equal(t, 1, h.CountActions(2, ActionUnblockUser))
}

// TestServiceWarnThreshold tests that the block happens exactly on the call reaching the threshold
func TestServiceWarnThreshold(t *testing.T) {
	for _, threshold := range []int64{1, 3, 5} {
		t.Run(fmt.Sprintf("threshold %d", threshold), func(t *testing.T) {
			h := newTestHelper(t, WithMaxWarns(threshold))
			h.Account(1, RoleModerator)
			h.Account(2, RoleUser)

			for i := int64(1); i <= threshold; i++ {
				acc, blocked, err := h.service.Warn(h.ctx, 1, 2)
				require.NoError(t, err)
				assert.Equal(t, i, acc.Warnings)
				assert.Equal(t, i == threshold, blocked)
				if i < threshold {
					assert.Equal(t, RoleUser, acc.Role)
					assert.Equal(t, 0, h.CountActions(2, ActionBlockUser))
				}
			}

			h.AssertRole(2, RoleBlocked)
			assert.Equal(t, int(threshold), h.CountActions(2, ActionWarnUser))
			assert.Equal(t, 1, h.CountActions(2, ActionBlockUser))

			blocks, err := h.service.GetActions(h.ctx, NewActionFilter().WithAccount(2).WithKind(ActionBlockUser))
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"by": int64(1), "reason": "max_warns"}, blocks[0].Payload)
		})
	}
}

// TestServiceWarnBlocked tests warning an account that is already blocked
func TestServiceWarnBlocked(t *testing.T) {
	h := newTestHelper(t, WithMaxWarns(1))
	h.Account(1, RoleModerator)
	h.Account(2, RoleBlocked)

	acc, blocked, err := h.service.Warn(h.ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Equal(t, int64(1), acc.Warnings)
	assert.Equal(t, RoleBlocked, acc.Role)
	assert.Equal(t, 0, h.CountActions(2, ActionBlockUser))

	_, _, err = h.service.Warn(h.ctx, 2, 1)
	assert.ErrorIs(t, err, ErrForbidden)
}

// TestServiceUnWarn tests that warnings never go below zero and un-warn keeps the role
func TestServiceUnWarn(t *testing.T) {
	h := newTestHelper(t, WithMaxWarns(2))
	h.Account(1, RoleModerator)
	h.Account(2, RoleUser)

	_, err := h.service.UnWarn(h.ctx, 1, 2)
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.Equal(t, int64(0), h.Reload(2).Warnings)

	for range 2 {
		_, _, err = h.service.Warn(h.ctx, 1, 2)
		require.NoError(t, err)
	}
	h.AssertRole(2, RoleBlocked)

	acc, err := h.service.UnWarn(h.ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.Warnings)
	assert.Equal(t, RoleBlocked, acc.Role)

	entries, err := h.service.GetActions(h.ctx, NewActionFilter().WithAccount(2).WithKind(ActionUnWarnUser))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, map[string]any{"by": int64(1), "warns": int64(1)}, entries[0].Payload)

	_, err = h.service.UnWarn(h.ctx, 1, 2)
	require.NoError(t, err)
	_, err = h.service.UnWarn(h.ctx, 1, 2)
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.Equal(t, int64(0), h.Reload(2).Warnings)
}

// TestServiceCommandScenario tests create, use and a foreign delete attempt
func TestServiceCommandScenario(t *testing.T) {
	h := newTestHelper(t)
	h.Account(2, RoleUser)
	h.Account(3, RoleUser)

	cmd, err := h.service.CreateCommand(h.ctx, 2, "ping", "pong")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cmd.CreatorID)
	assert.Equal(t, int64(0), cmd.UseCount)

	cmd, err = h.service.UseCommand(h.ctx, 3, "ping")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cmd.UseCount)
	assert.Equal(t, "pong", cmd.Action)

	err = h.service.DeleteCommand(h.ctx, 3, "ping")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.service.GetCommand(h.ctx, "ping")
	assert.NoError(t, err)

	assert.Equal(t, 1, h.CountActions(2, ActionCreateCommand))
	assert.Equal(t, 1, h.CountActions(3, ActionUseCommand))
}

// TestServiceCommandUniqueness tests that a taken name leaves the original untouched
func TestServiceCommandUniqueness(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleUser)
	h.Account(2, RoleUser)

	_, err := h.service.CreateCommand(h.ctx, 1, "ping", "pong")
	require.NoError(t, err)
	_, err = h.service.UseCommand(h.ctx, 2, "ping")
	require.NoError(t, err)

	_, err = h.service.CreateCommand(h.ctx, 2, "ping", "other")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.True(t, IsAlreadyExists(err))

	cmd, err := h.service.GetCommand(h.ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", cmd.Action)
	assert.Equal(t, int64(1), cmd.CreatorID)
	assert.Equal(t, int64(1), cmd.UseCount)
	assert.Equal(t, 0, h.CountActions(2, ActionCreateCommand))

	_, err = h.service.CreateCommand(h.ctx, 1, "  ", "x")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

// TestServiceCommandOwnership tests who may edit and delete a command
func TestServiceCommandOwnership(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleUser)
	h.Account(2, RoleUser)
	h.Account(3, RoleModerator)

	_, err := h.service.CreateCommand(h.ctx, 1, "ping", "pong")
	require.NoError(t, err)

	_, err = h.service.UpdateCommand(h.ctx, 2, "ping", "hijack")
	assert.ErrorIs(t, err, ErrForbidden)
	err = h.service.DeleteCommand(h.ctx, 2, "ping")
	assert.ErrorIs(t, err, ErrForbidden)

	cmd, err := h.service.UpdateCommand(h.ctx, 1, "ping", "pong!")
	require.NoError(t, err)
	assert.Equal(t, "pong!", cmd.Action)

	cmd, err = h.service.UpdateCommand(h.ctx, 3, "ping", "moderated")
	require.NoError(t, err)
	assert.Equal(t, "moderated", cmd.Action)
	assert.Equal(t, int64(1), cmd.CreatorID)

	require.NoError(t, h.service.DeleteCommand(h.ctx, 3, "ping"))
	_, err = h.service.GetCommand(h.ctx, "ping")
	assert.ErrorIs(t, err, ErrCommandNotFound)

	_, err = h.service.UpdateCommand(h.ctx, 1, "ping", "gone")
	assert.ErrorIs(t, err, ErrCommandNotFound)
	err = h.service.DeleteCommand(h.ctx, 1, "ping")
	assert.ErrorIs(t, err, ErrCommandNotFound)

	assert.Equal(t, 2, h.CountActions(1, ActionEditCommand)+h.CountActions(3, ActionEditCommand))
	assert.Equal(t, 1, h.CountActions(3, ActionDeleteCommand))
}

// TestServiceBlockedCommandOwner tests what a blocked owner can still do
func TestServiceBlockedCommandOwner(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleUser)
	h.Account(2, RoleModerator)

	_, err := h.service.CreateCommand(h.ctx, 1, "ping", "pong")
	require.NoError(t, err)
	_, err = h.service.Block(h.ctx, 2, 1)
	require.NoError(t, err)

	_, err = h.service.CreateCommand(h.ctx, 1, "pong", "ping")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.service.UseCommand(h.ctx, 1, "ping")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.service.UpdateCommand(h.ctx, 1, "ping", "x")
	assert.ErrorIs(t, err, ErrForbidden)

	assert.NoError(t, h.service.DeleteCommand(h.ctx, 1, "ping"))
}

// TestServiceUseMissingCommand tests using an unknown command
func TestServiceUseMissingCommand(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleUser)

	_, err := h.service.UseCommand(h.ctx, 1, "nope")
	assert.ErrorIs(t, err, ErrCommandNotFound)
	assert.True(t, IsCommandNotFound(err))
	assert.Equal(t, 0, h.CountActions(1, ActionUseCommand))
}

// TestServiceCommandListings tests paging over all commands and per-creator commands
func TestServiceCommandListings(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleUser)
	h.Account(2, RoleUser)

	for _, name := range []string{"delta", "alpha", "charlie"} {
		_, err := h.service.CreateCommand(h.ctx, 1, name, name)
		require.NoError(t, err)
	}
	_, err := h.service.CreateCommand(h.ctx, 2, "bravo", "b")
	require.NoError(t, err)

	all, err := h.service.ListCommands(h.ctx, NewPage(0, 3))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, []string{all[0].Name, all[1].Name, all[2].Name})

	rest, err := h.service.ListCommands(h.ctx, NewPage(1, 3))
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "delta", rest[0].Name)

	mine, err := h.service.GetUserCommands(h.ctx, 2, Page{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "bravo", mine[0].Name)

	none, err := h.service.GetUserCommands(h.ctx, 1, NewPage(5, 10))
	require.NoError(t, err)
	assert.Empty(t, none)
}

// TestServiceActions tests audit lookups and filtering
func TestServiceActions(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newTestHelper(t, WithClock(func() time.Time { return fixed }))
	h.Account(1, RoleModerator)
	h.Account(2, RoleUser)

	ctx := WithRequestID(h.ctx, "req-42")
	_, _, err := h.service.Warn(ctx, 1, 2)
	require.NoError(t, err)

	first, err := h.service.GetAction(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ActionCreateUser, first.Kind)
	assert.Equal(t, int64(1), first.AccountID)
	assert.Equal(t, fixed, first.CreatedAt)

	_, err = h.service.GetAction(h.ctx, 999)
	assert.ErrorIs(t, err, ErrActionNotFound)

	entries, err := h.service.GetUserActions(h.ctx, 2, Page{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionCreateUser, entries[0].Kind)
	assert.Equal(t, ActionWarnUser, entries[1].Kind)
	assert.Equal(t, "req-42", entries[1].Payload["request_id"])
	assert.Equal(t, int64(1), entries[1].Payload["warns"])

	_, err = h.service.GetActions(h.ctx, NewActionFilter().WithKind(ActionKind("ban_user")))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	window, err := h.service.GetActions(h.ctx, NewActionFilter().WithTimeRange(fixed.Add(time.Second), time.Time{}))
	require.NoError(t, err)
	assert.Empty(t, window)
}

// racingStore changes the account between the service's read and its conditional update, once.
type racingStore struct {
	*MemoryStore
	once sync.Once
}

func (r *racingStore) UpdateAccount(ctx context.Context, id int64, expect AccountState, change AccountChange) (int64, error) {
	r.once.Do(func() {
		bumped := expect.Warnings + 1
		_, _ = r.MemoryStore.UpdateAccount(ctx, id, expect, AccountChange{Warnings: &bumped})
	})
	return r.MemoryStore.UpdateAccount(ctx, id, expect, change)
}

// TestServiceConflict tests that a lost race is reported as retryable and not applied
func TestServiceConflict(t *testing.T) {
	store := &racingStore{MemoryStore: NewMemoryStore()}
	service := NewService(store, WithLogger(testLogger()))
	ctx := context.Background()

	_, _, err := service.UpsertAccount(ctx, 1, RoleModerator, nil, "mod")
	require.NoError(t, err)
	_, _, err = service.UpsertAccount(ctx, 2, RoleUser, nil, "user")
	require.NoError(t, err)

	_, _, err = service.Warn(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrNotModified)
	assert.True(t, IsRetryable(err))

	entries, err := service.GetActions(ctx, NewActionFilter().WithKind(ActionWarnUser))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int64(1), service.GetOperationMetrics().Conflicts)

	err = Retry(ctx, DefaultRetryAttempts, func(ctx context.Context) error {
		_, _, err := service.Warn(ctx, 1, 2)
		return err
	})
	require.NoError(t, err)

	acc, err := service.GetAccount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acc.Warnings)
}

// vanishingStore deletes a command right before its conditional update.
type vanishingStore struct {
	*MemoryStore
}

func (v vanishingStore) UpdateCommandAction(ctx context.Context, name string, creatorID int64, action string) (int64, error) {
	_, _ = v.MemoryStore.DeleteCommand(ctx, name, creatorID)
	return v.MemoryStore.UpdateCommandAction(ctx, name, creatorID, action)
}

// TestServiceVanishedCommand tests that a row deleted under a race is reported as missing
func TestServiceVanishedCommand(t *testing.T) {
	service := NewService(vanishingStore{NewMemoryStore()}, WithLogger(testLogger()))
	ctx := context.Background()

	_, _, err := service.UpsertAccount(ctx, 1, RoleUser, nil, "owner")
	require.NoError(t, err)
	_, err = service.CreateCommand(ctx, 1, "ping", "pong")
	require.NoError(t, err)

	_, err = service.UpdateCommand(ctx, 1, "ping", "new")
	assert.ErrorIs(t, err, ErrCommandNotFound)
	assert.False(t, IsRetryable(err))
}

// failingAuditStore refuses every audit append.
type failingAuditStore struct {
	*MemoryStore
}

func (failingAuditStore) AppendAudit(context.Context, *AuditEntry) error {
	return errors.New("disk full")
}

// TestServiceAuditFailure tests that a failed audit append does not undo the mutation
func TestServiceAuditFailure(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()
	_, err := mem.UpsertAccount(ctx, &Account{ID: 1, Role: RoleModerator})
	require.NoError(t, err)
	_, err = mem.UpsertAccount(ctx, &Account{ID: 2, Role: RoleUser})
	require.NoError(t, err)

	service := NewService(failingAuditStore{mem}, WithLogger(testLogger()))

	acc, err := service.Block(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, RoleBlocked, acc.Role)

	stored, err := mem.GetAccount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, RoleBlocked, stored.Role)

	metrics := service.GetOperationMetrics()
	assert.Equal(t, int64(1), metrics.AuditFailures)
	assert.Equal(t, int64(1), metrics.Succeeded)
	assert.True(t, service.IsOperationHealthy())
}

// reloadTimeoutStore times out every command read once a use has been counted.
type reloadTimeoutStore struct {
	*MemoryStore
	used atomic.Bool
}

func (r *reloadTimeoutStore) IncrementCommandUses(ctx context.Context, name string) (int64, error) {
	rows, err := r.MemoryStore.IncrementCommandUses(ctx, name)
	r.used.Store(true)
	return rows, err
}

func (r *reloadTimeoutStore) GetCommand(ctx context.Context, name string) (*Command, error) {
	if r.used.Load() {
		return nil, classify("GetCommand", context.DeadlineExceeded, ErrCommandNotFound)
	}
	return r.MemoryStore.GetCommand(ctx, name)
}

// TestServiceUseCommandReloadFailure tests that a use counted before a failed reload is not retried
func TestServiceUseCommandReloadFailure(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()
	_, err := mem.UpsertAccount(ctx, &Account{ID: 1, Role: RoleUser})
	require.NoError(t, err)
	require.NoError(t, mem.InsertCommand(ctx, &Command{Name: "ping", Action: "pong", CreatorID: 1}))

	store := &reloadTimeoutStore{MemoryStore: mem}
	_, err = store.GetCommand(ctx, "ping")
	require.NoError(t, err)

	service := NewService(store, WithLogger(testLogger()))

	var cmd *Command
	attempts := 0
	err = Retry(ctx, DefaultRetryAttempts, func(ctx context.Context) error {
		attempts++
		var err error
		cmd, err = service.UseCommand(ctx, 1, "ping")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	require.NotNil(t, cmd)
	assert.Equal(t, "ping", cmd.Name)

	stored, err := mem.GetCommand(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.UseCount)

	uses, err := mem.ListAudit(ctx, NewActionFilter().WithAccount(1).WithKind(ActionUseCommand))
	require.NoError(t, err)
	assert.Len(t, uses, 1)
}

// TestServiceConcurrentWarns tests that retried concurrent warns are all counted
func TestServiceConcurrentWarns(t *testing.T) {
	h := newTestHelper(t, WithMaxWarns(100))
	h.Account(1, RoleModerator)
	h.Account(2, RoleUser)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- Retry(h.ctx, workers+2, func(ctx context.Context) error {
				_, _, err := h.service.Warn(ctx, 1, 2)
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(workers), h.Reload(2).Warnings)
	assert.Equal(t, workers, h.CountActions(2, ActionWarnUser))
}

// TestServiceOperationMetrics tests outcome counting
func TestServiceOperationMetrics(t *testing.T) {
	h := newTestHelper(t)
	h.Account(1, RoleUser)
	h.Account(2, RoleUser)
	h.service.ResetOperationMetrics()

	_, err := h.service.Block(h.ctx, 1, 2)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.service.ChangeNickname(h.ctx, 1, 1, "x")
	require.NoError(t, err)

	metrics := h.service.GetOperationMetrics()
	assert.Equal(t, int64(2), metrics.TotalOperations)
	assert.Equal(t, int64(1), metrics.Denied)
	assert.Equal(t, int64(1), metrics.Succeeded)
	assert.Equal(t, int64(0), metrics.Failed)
	assert.Equal(t, float64(0), metrics.FailureRate())
}

// TestServiceOptions tests option defaults and overrides
func TestServiceOptions(t *testing.T) {
	s := NewService(NewMemoryStore())
	assert.Equal(t, int64(DefaultMaxWarns), s.MaxWarns())

	s = NewService(NewMemoryStore(), WithMaxWarns(0), WithLogger(nil), WithRolePolicy(nil), WithClock(nil))
	assert.Equal(t, int64(DefaultMaxWarns), s.MaxWarns())
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.policy)
	assert.NotNil(t, s.now)

	s = NewService(NewMemoryStore(), WithMaxWarns(3))
	assert.Equal(t, int64(3), s.MaxWarns())
	assert.NotNil(t, s.Store())
}
