package modkit

import (
	"context"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// Migrations returns the Postgres migrations for the modkit schema.
// Run them with dbkit.Migrate(ctx, modkit.Migrations()).
func Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "modkit-001",
			Description: "Create accounts table",
			SQL: `
                CREATE TABLE IF NOT EXISTS accounts (
                    id BIGINT PRIMARY KEY,
                    role TEXT NOT NULL CHECK (role IN ('blocked', 'user', 'moderator', 'creator')),
                    warnings BIGINT NOT NULL DEFAULT 0 CHECK (warnings >= 0),
                    display_name TEXT NOT NULL,
                    handle TEXT UNIQUE,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "modkit-002",
			Description: "Create commands table",
			SQL: `
                CREATE TABLE IF NOT EXISTS commands (
                    name TEXT PRIMARY KEY CHECK (name <> ''),
                    action TEXT NOT NULL,
                    creator_id BIGINT NOT NULL REFERENCES accounts (id)
                        ON DELETE RESTRICT ON UPDATE CASCADE,
                    use_count BIGINT NOT NULL DEFAULT 0 CHECK (use_count >= 0),
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "modkit-003",
			Description: "Create audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS audit_log (
                    id BIGSERIAL PRIMARY KEY,
                    account_id BIGINT NOT NULL REFERENCES accounts (id)
                        ON DELETE RESTRICT ON UPDATE CASCADE,
                    kind TEXT NOT NULL,
                    payload JSONB NOT NULL DEFAULT '{}',
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "modkit-004",
			Description: "Index commands by creator",
			SQL:         `CREATE INDEX IF NOT EXISTS idx_commands_creator ON commands (creator_id)`,
		},
		{
			ID:          "modkit-005",
			Description: "Index audit_log by subject account",
			SQL:         `CREATE INDEX IF NOT EXISTS idx_audit_log_account ON audit_log (account_id, id)`,
		},
	}
}

// CreateSchema creates the modkit tables from the bun models. It is meant for
// SQLite and tests; Postgres deployments use Migrations.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().
		Model((*Account)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateTable().
		Model((*Command)(nil)).
		IfNotExists().
		ForeignKey(`("creator_id") REFERENCES "accounts" ("id") ON DELETE RESTRICT ON UPDATE CASCADE`).
		Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateTable().
		Model((*AuditEntry)(nil)).
		IfNotExists().
		ForeignKey(`("account_id") REFERENCES "accounts" ("id") ON DELETE RESTRICT ON UPDATE CASCADE`).
		Exec(ctx)
	return err
}
