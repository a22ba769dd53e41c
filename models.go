package modkit

import (
	"time"

	"github.com/uptrace/bun"
)

// Account is a chat user known to the registry. IDs are assigned by the chat
// platform, never generated here.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID          int64     `bun:"id,pk" json:"id"`
	Role        Role      `bun:"role,notnull" json:"role"`
	Warnings    int64     `bun:"warnings,notnull" json:"warnings"`
	DisplayName string    `bun:"display_name,notnull" json:"display_name"`
	Handle      *string   `bun:"handle,unique" json:"handle,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

// State returns the fields guarded by conditional updates.
func (a *Account) State() AccountState {
	return AccountState{Role: a.Role, Warnings: a.Warnings}
}

func (a *Account) clone() *Account {
	c := *a
	if a.Handle != nil {
		h := *a.Handle
		c.Handle = &h
	}
	return &c
}

// Command is a named text macro shared by all accounts.
type Command struct {
	bun.BaseModel `bun:"table:commands,alias:c"`

	Name      string    `bun:"name,pk" json:"name"`
	Action    string    `bun:"action,notnull" json:"action"`
	CreatorID int64     `bun:"creator_id,notnull" json:"creator_id"`
	UseCount  int64     `bun:"use_count,notnull" json:"use_count"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// AuditEntry records one completed mutation. Entries are append-only.
type AuditEntry struct {
	bun.BaseModel `bun:"table:audit_log,alias:al"`

	ID        int64          `bun:"id,pk,autoincrement" json:"id"`
	AccountID int64          `bun:"account_id,notnull" json:"account_id"`
	Kind      ActionKind     `bun:"kind,notnull" json:"kind"`
	Payload   map[string]any `bun:"payload,type:jsonb" json:"payload"`
	CreatedAt time.Time      `bun:"created_at,notnull" json:"created_at"`
}

func (e *AuditEntry) clone() *AuditEntry {
	c := *e
	if e.Payload != nil {
		c.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

// ActionKind names the mutation an AuditEntry records.
type ActionKind string

const (
	ActionCreateUser    ActionKind = "create_user"
	ActionBlockUser     ActionKind = "block_user"
	ActionUnblockUser   ActionKind = "unblock_user"
	ActionPromoteUser   ActionKind = "promote_user"
	ActionDemoteUser    ActionKind = "demote_user"
	ActionWarnUser      ActionKind = "warn_user"
	ActionUnWarnUser    ActionKind = "un_warn_user"
	ActionCreateCommand ActionKind = "create_command"
	ActionEditCommand   ActionKind = "edit_command"
	ActionDeleteCommand ActionKind = "delete_command"
	ActionUseCommand    ActionKind = "use_command"
)

// Valid reports whether k is one of the defined action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionCreateUser, ActionBlockUser, ActionUnblockUser, ActionPromoteUser,
		ActionDemoteUser, ActionWarnUser, ActionUnWarnUser, ActionCreateCommand,
		ActionEditCommand, ActionDeleteCommand, ActionUseCommand:
		return true
	}
	return false
}

// AccountState is the part of an account a conditional update compares against.
type AccountState struct {
	Role     Role
	Warnings int64
}

// AccountChange lists the fields a conditional update assigns. Nil fields are left alone.
type AccountChange struct {
	Role     *Role
	Warnings *int64
}

// IsZero reports whether the change assigns nothing.
func (c AccountChange) IsZero() bool {
	return c.Role == nil && c.Warnings == nil
}

func (c AccountChange) apply(a *Account) {
	if c.Role != nil {
		a.Role = *c.Role
	}
	if c.Warnings != nil {
		a.Warnings = *c.Warnings
	}
}
