package modkit

import (
	"context"
)

// AccountStore persists accounts.
type AccountStore interface {
	// GetAccount returns ErrNotFound when the id is unknown.
	GetAccount(ctx context.Context, id int64) (*Account, error)
	// FindAccountByHandle returns ErrNotFound when no account holds the handle.
	FindAccountByHandle(ctx context.Context, handle string) (*Account, error)
	// UpsertAccount inserts acc if its id is new, otherwise refreshes only the
	// handle and display name. A handle held by another account is released
	// first. acc is overwritten with the stored row; created reports an insert.
	UpsertAccount(ctx context.Context, acc *Account) (created bool, err error)
	// UpdateDisplayName sets the display name and returns the rows affected.
	UpdateDisplayName(ctx context.Context, id int64, name string) (int64, error)
	// UpdateAccount applies change only while the row still matches expect and
	// returns the rows affected.
	UpdateAccount(ctx context.Context, id int64, expect AccountState, change AccountChange) (int64, error)
}

// CommandStore persists commands.
type CommandStore interface {
	// GetCommand returns ErrCommandNotFound when the name is unknown.
	GetCommand(ctx context.Context, name string) (*Command, error)
	// InsertCommand returns ErrAlreadyExists when the name is taken.
	InsertCommand(ctx context.Context, cmd *Command) error
	// UpdateCommandAction sets the action while the creator still matches.
	UpdateCommandAction(ctx context.Context, name string, creatorID int64, action string) (int64, error)
	// DeleteCommand removes the command while the creator still matches.
	DeleteCommand(ctx context.Context, name string, creatorID int64) (int64, error)
	// IncrementCommandUses adds one to use_count in a single statement.
	IncrementCommandUses(ctx context.Context, name string) (int64, error)
	// ListCommands returns commands ordered by name.
	ListCommands(ctx context.Context, filter CommandFilter) ([]Command, error)
}

// AuditStore persists audit entries.
type AuditStore interface {
	// AppendAudit inserts entry and sets its ID.
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	// GetAudit returns ErrActionNotFound when the id is unknown.
	GetAudit(ctx context.Context, id int64) (*AuditEntry, error)
	// ListAudit returns entries ordered by id.
	ListAudit(ctx context.Context, filter ActionFilter) ([]AuditEntry, error)
}

// Store is the capability set the service needs from its backing storage.
type Store interface {
	AccountStore
	CommandStore
	AuditStore

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// HealthMonitor defines the health monitoring interface
type HealthMonitor interface {
	Health(ctx context.Context) HealthReport
	IsHealthy(ctx context.Context) bool
	Ping(ctx context.Context) error
}

// OperationMonitor defines the operation monitoring interface
type OperationMonitor interface {
	GetOperationMetrics() OperationMetrics
	ResetOperationMetrics()
	IsOperationHealthy() bool
}
