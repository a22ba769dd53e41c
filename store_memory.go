package modkit

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. It honors the same conditional-update
// semantics as BunStore and is intended for tests and local experiments.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[int64]*Account
	commands map[string]*Command
	audit    []*AuditEntry
	nextID   int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[int64]*Account),
		commands: make(map[string]*Command),
	}
}

// GetAccount implements AccountStore.
func (m *MemoryStore) GetAccount(ctx context.Context, id int64) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("GetAccount", err, ErrNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return nil, NewError(ErrNotFound, "").WithOp("GetAccount").WithAccount(id)
	}
	return acc.clone(), nil
}

// FindAccountByHandle implements AccountStore.
func (m *MemoryStore) FindAccountByHandle(ctx context.Context, handle string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("FindAccountByHandle", err, ErrNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, acc := range m.accounts {
		if acc.Handle != nil && *acc.Handle == handle {
			return acc.clone(), nil
		}
	}
	return nil, NewError(ErrNotFound, "no account with handle "+handle).WithOp("FindAccountByHandle")
}

// UpsertAccount implements AccountStore.
func (m *MemoryStore) UpsertAccount(ctx context.Context, acc *Account) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, classify("UpsertAccount", err, ErrNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc.Handle != nil {
		for id, other := range m.accounts {
			if id != acc.ID && other.Handle != nil && *other.Handle == *acc.Handle {
				other.Handle = nil
			}
		}
	}

	existing, ok := m.accounts[acc.ID]
	if !ok {
		stored := acc.clone()
		m.accounts[acc.ID] = stored
		*acc = *stored.clone()
		return true, nil
	}

	existing.DisplayName = acc.DisplayName
	existing.Handle = acc.clone().Handle
	*acc = *existing.clone()
	return false, nil
}

// UpdateDisplayName implements AccountStore.
func (m *MemoryStore) UpdateDisplayName(ctx context.Context, id int64, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, classify("UpdateDisplayName", err, ErrNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return 0, nil
	}
	acc.DisplayName = name
	return 1, nil
}

// UpdateAccount implements AccountStore.
func (m *MemoryStore) UpdateAccount(ctx context.Context, id int64, expect AccountState, change AccountChange) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, classify("UpdateAccount", err, ErrNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok || acc.State() != expect {
		return 0, nil
	}
	if change.Warnings != nil && *change.Warnings < 0 {
		return 0, NewError(ErrInternal, "warnings cannot be negative").WithOp("UpdateAccount").WithAccount(id)
	}
	change.apply(acc)
	return 1, nil
}

// GetCommand implements CommandStore.
func (m *MemoryStore) GetCommand(ctx context.Context, name string) (*Command, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("GetCommand", err, ErrCommandNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd, ok := m.commands[name]
	if !ok {
		return nil, NewError(ErrCommandNotFound, "").WithOp("GetCommand").WithCommand(name)
	}
	c := *cmd
	return &c, nil
}

// InsertCommand implements CommandStore.
func (m *MemoryStore) InsertCommand(ctx context.Context, cmd *Command) error {
	if err := ctx.Err(); err != nil {
		return classify("InsertCommand", err, ErrCommandNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.commands[cmd.Name]; ok {
		return NewError(ErrAlreadyExists, "").WithOp("InsertCommand").WithCommand(cmd.Name)
	}
	c := *cmd
	m.commands[cmd.Name] = &c
	return nil
}

// UpdateCommandAction implements CommandStore.
func (m *MemoryStore) UpdateCommandAction(ctx context.Context, name string, creatorID int64, action string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, classify("UpdateCommandAction", err, ErrCommandNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd, ok := m.commands[name]
	if !ok || cmd.CreatorID != creatorID {
		return 0, nil
	}
	cmd.Action = action
	return 1, nil
}

// DeleteCommand implements CommandStore.
func (m *MemoryStore) DeleteCommand(ctx context.Context, name string, creatorID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, classify("DeleteCommand", err, ErrCommandNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd, ok := m.commands[name]
	if !ok || cmd.CreatorID != creatorID {
		return 0, nil
	}
	delete(m.commands, name)
	return 1, nil
}

// IncrementCommandUses implements CommandStore.
func (m *MemoryStore) IncrementCommandUses(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, classify("IncrementCommandUses", err, ErrCommandNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd, ok := m.commands[name]
	if !ok {
		return 0, nil
	}
	cmd.UseCount++
	return 1, nil
}

// ListCommands implements CommandStore.
func (m *MemoryStore) ListCommands(ctx context.Context, filter CommandFilter) ([]Command, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("ListCommands", err, ErrCommandNotFound)
	}
	m.mu.Lock()
	matched := make([]Command, 0, len(m.commands))
	for _, cmd := range m.commands {
		if filter.CreatorID != nil && cmd.CreatorID != *filter.CreatorID {
			continue
		}
		matched = append(matched, *cmd)
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return window(matched, filter.Page), nil
}

// AppendAudit implements AuditStore.
func (m *MemoryStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return classify("AppendAudit", err, ErrActionNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry.ID = m.nextID
	m.audit = append(m.audit, entry.clone())
	return nil
}

// GetAudit implements AuditStore.
func (m *MemoryStore) GetAudit(ctx context.Context, id int64) (*AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("GetAudit", err, ErrActionNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// ids are assigned sequentially from 1
	if id < 1 || id > int64(len(m.audit)) {
		return nil, NewError(ErrActionNotFound, "").WithOp("GetAudit")
	}
	return m.audit[id-1].clone(), nil
}

// ListAudit implements AuditStore.
func (m *MemoryStore) ListAudit(ctx context.Context, filter ActionFilter) ([]AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("ListAudit", err, ErrActionNotFound)
	}
	m.mu.Lock()
	matched := make([]AuditEntry, 0, len(m.audit))
	for _, e := range m.audit {
		if filter.matches(e) {
			matched = append(matched, *e.clone())
		}
	}
	m.mu.Unlock()

	return window(matched, filter.Page), nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func window[T any](items []T, page Page) []T {
	offset := page.Offset()
	if offset < 0 || offset >= len(items) {
		return []T{}
	}
	end := offset + page.Limit()
	if end > len(items) || end < offset {
		end = len(items)
	}
	return items[offset:end]
}
