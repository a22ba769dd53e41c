package modkit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// BunStore is the production Store, backed by any bun database handle
// (Postgres through dbkit, or SQLite).
type BunStore struct {
	db      bun.IDB
	timeout time.Duration
}

var _ Store = (*BunStore)(nil)

// BunStoreOption configures a BunStore.
type BunStoreOption func(*BunStore)

// WithQueryTimeout bounds every store call. Zero disables the bound.
func WithQueryTimeout(d time.Duration) BunStoreOption {
	return func(s *BunStore) {
		s.timeout = d
	}
}

// NewBunStore creates a Store over db.
func NewBunStore(db bun.IDB, opts ...BunStoreOption) *BunStore {
	s := &BunStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying bun handle.
func (s *BunStore) DB() bun.IDB {
	return s.db
}

func (s *BunStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// ============================================================================
// ACCOUNTS
// ============================================================================

// GetAccount implements AccountStore.
func (s *BunStore) GetAccount(ctx context.Context, id int64) (*Account, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	acc := new(Account)
	if err := s.db.NewSelect().Model(acc).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, classify("GetAccount", err, ErrNotFound)
	}
	return acc, nil
}

// FindAccountByHandle implements AccountStore.
func (s *BunStore) FindAccountByHandle(ctx context.Context, handle string) (*Account, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	acc := new(Account)
	if err := s.db.NewSelect().Model(acc).Where("handle = ?", handle).Limit(1).Scan(ctx); err != nil {
		return nil, classify("FindAccountByHandle", err, ErrNotFound)
	}
	return acc, nil
}

// UpsertAccount implements AccountStore. The handle release, the insert and the
// profile refresh run in one transaction.
func (s *BunStore) UpsertAccount(ctx context.Context, acc *Account) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var created bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if acc.Handle != nil {
			_, err := tx.NewUpdate().Table("accounts").
				Set("handle = NULL").
				Where("handle = ?", *acc.Handle).
				Where("id <> ?", acc.ID).
				Exec(ctx)
			if err != nil {
				return err
			}
		}

		result, err := tx.NewInsert().Model(acc).
			On("CONFLICT (id) DO NOTHING").
			Returning("NULL").
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		created = rows > 0

		if !created {
			_, err := tx.NewUpdate().Table("accounts").
				Set("display_name = ?", acc.DisplayName).
				Set("handle = ?", acc.Handle).
				Where("id = ?", acc.ID).
				Exec(ctx)
			if err != nil {
				return err
			}
		}

		return tx.NewSelect().Model(acc).Where("id = ?", acc.ID).Limit(1).Scan(ctx)
	})
	if err != nil {
		return false, classify("UpsertAccount", err, ErrNotFound)
	}
	return created, nil
}

// UpdateDisplayName implements AccountStore.
func (s *BunStore) UpdateDisplayName(ctx context.Context, id int64, name string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	result, err := s.db.NewUpdate().Table("accounts").
		Set("display_name = ?", name).
		Where("id = ?", id).
		Exec(ctx)
	return affected("UpdateDisplayName", result, err, ErrNotFound)
}

// UpdateAccount implements AccountStore.
func (s *BunStore) UpdateAccount(ctx context.Context, id int64, expect AccountState, change AccountChange) (int64, error) {
	if change.IsZero() {
		return 0, NewError(ErrInternal, "empty account change").WithOp("UpdateAccount").WithAccount(id)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	q := s.db.NewUpdate().Table("accounts").
		Where("id = ?", id).
		Where("role = ?", expect.Role).
		Where("warnings = ?", expect.Warnings)
	if change.Role != nil {
		q = q.Set("role = ?", *change.Role)
	}
	if change.Warnings != nil {
		q = q.Set("warnings = ?", *change.Warnings)
	}
	result, err := q.Exec(ctx)
	return affected("UpdateAccount", result, err, ErrNotFound)
}

// ============================================================================
// COMMANDS
// ============================================================================

// GetCommand implements CommandStore.
func (s *BunStore) GetCommand(ctx context.Context, name string) (*Command, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	cmd := new(Command)
	if err := s.db.NewSelect().Model(cmd).Where("name = ?", name).Limit(1).Scan(ctx); err != nil {
		return nil, classify("GetCommand", err, ErrCommandNotFound)
	}
	return cmd, nil
}

// InsertCommand implements CommandStore.
func (s *BunStore) InsertCommand(ctx context.Context, cmd *Command) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.NewInsert().Model(cmd).Returning("NULL").Exec(ctx)
	return classify("InsertCommand", err, ErrCommandNotFound)
}

// UpdateCommandAction implements CommandStore.
func (s *BunStore) UpdateCommandAction(ctx context.Context, name string, creatorID int64, action string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	result, err := s.db.NewUpdate().Table("commands").
		Set("action = ?", action).
		Where("name = ?", name).
		Where("creator_id = ?", creatorID).
		Exec(ctx)
	return affected("UpdateCommandAction", result, err, ErrCommandNotFound)
}

// DeleteCommand implements CommandStore.
func (s *BunStore) DeleteCommand(ctx context.Context, name string, creatorID int64) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	result, err := s.db.NewDelete().Table("commands").
		Where("name = ? AND creator_id = ?", name, creatorID).
		Exec(ctx)
	return affected("DeleteCommand", result, err, ErrCommandNotFound)
}

// IncrementCommandUses implements CommandStore.
func (s *BunStore) IncrementCommandUses(ctx context.Context, name string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	result, err := s.db.NewUpdate().Table("commands").
		Set("use_count = use_count + 1").
		Where("name = ?", name).
		Exec(ctx)
	return affected("IncrementCommandUses", result, err, ErrCommandNotFound)
}

// ListCommands implements CommandStore.
func (s *BunStore) ListCommands(ctx context.Context, filter CommandFilter) ([]Command, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	commands := make([]Command, 0)
	q := s.db.NewSelect().Model(&commands)
	if filter.CreatorID != nil {
		q = q.Where("creator_id = ?", *filter.CreatorID)
	}
	q = q.Order("name ASC").
		Limit(filter.Page.Limit()).
		Offset(filter.Page.Offset())
	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, classify("ListCommands", err, ErrCommandNotFound)
	}
	return commands, nil
}

// ============================================================================
// AUDIT LOG
// ============================================================================

// AppendAudit implements AuditStore.
func (s *BunStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if entry.Payload == nil {
		entry.Payload = map[string]any{}
	}
	_, err := s.db.NewInsert().Model(entry).Exec(ctx)
	return classify("AppendAudit", err, ErrActionNotFound)
}

// GetAudit implements AuditStore.
func (s *BunStore) GetAudit(ctx context.Context, id int64) (*AuditEntry, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	entry := new(AuditEntry)
	if err := s.db.NewSelect().Model(entry).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, classify("GetAudit", err, ErrActionNotFound)
	}
	return entry, nil
}

// ListAudit implements AuditStore.
func (s *BunStore) ListAudit(ctx context.Context, filter ActionFilter) ([]AuditEntry, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	entries := make([]AuditEntry, 0)
	q := s.db.NewSelect().Model(&entries)
	if filter.AccountID != nil {
		q = q.Where("account_id = ?", *filter.AccountID)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until.UTC())
	}
	q = q.Order("id ASC").
		Limit(filter.Page.Limit()).
		Offset(filter.Page.Offset())
	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, classify("ListAudit", err, ErrActionNotFound)
	}
	return entries, nil
}

// Ping implements Store.
func (s *BunStore) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var one int
	err := s.db.NewSelect().ColumnExpr("1").Scan(ctx, &one)
	return classify("Ping", err, ErrInternal)
}

func affected(op string, result sql.Result, err error, missing error) (int64, error) {
	if err != nil {
		return 0, classify(op, err, missing)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, classify(op, err, missing)
	}
	return rows, nil
}
