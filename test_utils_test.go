package modkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// TestDataHelper provides utilities for setting up test data
type TestDataHelper struct {
	service *Service
	ctx     context.Context
	t       *testing.T
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHelper creates a helper over an in-memory store.
func newTestHelper(t *testing.T, opts ...ServiceOption) *TestDataHelper {
	t.Helper()
	opts = append([]ServiceOption{WithLogger(testLogger())}, opts...)
	return &TestDataHelper{
		service: NewService(NewMemoryStore(), opts...),
		ctx:     context.Background(),
		t:       t,
	}
}

// newSQLiteHelper creates a helper over a private in-memory SQLite database.
func newSQLiteHelper(t *testing.T, opts ...ServiceOption) *TestDataHelper {
	t.Helper()
	db := newSQLiteDB(t)
	opts = append([]ServiceOption{WithLogger(testLogger())}, opts...)
	return &TestDataHelper{
		service: NewService(NewBunStore(db), opts...),
		ctx:     context.Background(),
		t:       t,
	}
}

func newSQLiteDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := OpenSQLite(context.Background(), MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Account registers an account with the given role.
func (h *TestDataHelper) Account(id int64, role Role) *Account {
	h.t.Helper()
	acc, _, err := h.service.UpsertAccount(h.ctx, id, role, nil, fmt.Sprintf("account-%d", id))
	require.NoError(h.t, err)
	return acc
}

// Reload reads an account back from the store.
func (h *TestDataHelper) Reload(id int64) *Account {
	h.t.Helper()
	acc, err := h.service.GetAccount(h.ctx, id)
	require.NoError(h.t, err)
	return acc
}

// CountActions counts the audit entries of kind whose subject is accountID.
func (h *TestDataHelper) CountActions(accountID int64, kind ActionKind) int {
	h.t.Helper()
	entries, err := h.service.GetActions(h.ctx, NewActionFilter().
		WithAccount(accountID).
		WithKind(kind).
		WithPage(NewPage(0, MaxPageSize)))
	require.NoError(h.t, err)
	return len(entries)
}

// AssertRole verifies the stored role of an account
func (h *TestDataHelper) AssertRole(id int64, role Role) {
	h.t.Helper()
	require.Equal(h.t, role, h.Reload(id).Role)
}

var idCounter atomic.Int64

// uniqueID returns an account id that does not collide across test runs
// against a shared database.
func uniqueID() int64 {
	return time.Now().UnixNano()/1000*100 + idCounter.Add(1)%100
}

// RequireDatabase skips the test if the Postgres test database is not available.
// Use this as: if !RequireDatabase(t) { return }
func RequireDatabase(t testing.TB) bool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set - skipping Postgres test")
		return false
	}

	db, err := dbkit.New(dbkit.Config{URL: url})
	if err != nil {
		t.Skipf("database not available: %v", err)
		return false
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Bun().PingContext(ctx); err != nil {
		t.Skipf("database not available: %v", err)
		return false
	}
	return true
}

// SetupTestDatabase connects to TEST_DATABASE_URL, runs migrations and returns
// a service over it.
func SetupTestDatabase(t *testing.T) (*Service, *dbkit.DBKit) {
	t.Helper()
	ctx := context.Background()

	kit, err := OpenPostgres(ctx, os.Getenv("TEST_DATABASE_URL"), DefaultPoolConfig(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kit.Close() })

	service := NewService(NewBunStore(kit.Bun(), WithQueryTimeout(5*time.Second)), WithLogger(testLogger()))
	return service, kit
}
