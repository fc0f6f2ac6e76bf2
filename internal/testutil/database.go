package testutil

import (
	"path/filepath"
	"testing"

	"repute-go/internal/database"
	"repute-go/internal/database/migrations"
	"repute-go/internal/ledger"
	"repute-go/internal/store"
)

// NewTestSQLiteStore creates an in-memory SQLite store with migrations applied.
// The store is closed when the test completes.
func NewTestSQLiteStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	s := database.NewSQLiteStoreFromDB(db)
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// NewTestBoltStore creates a bolt store in a temporary directory.
func NewTestBoltStore(t *testing.T) *store.BoltStore {
	t.Helper()

	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "ledger.bolt"))
	if err != nil {
		t.Fatalf("failed to open bolt store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// NewTestMemoryStore creates an in-memory store.
func NewTestMemoryStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// StoreFactory opens a fresh, empty store for one test.
type StoreFactory func(t *testing.T) ledger.Store

// Backends lists a factory for every ledger.Store implementation, keyed by
// the database type name used in config.
func Backends() map[string]StoreFactory {
	return map[string]StoreFactory{
		"memory": func(t *testing.T) ledger.Store { return NewTestMemoryStore(t) },
		"bolt":   func(t *testing.T) ledger.Store { return NewTestBoltStore(t) },
		"sqlite": func(t *testing.T) ledger.Store { return NewTestSQLiteStore(t) },
	}
}

// NewTestLedger creates a Ledger over s with the given params, a FixedClock
// and sequential event IDs.
func NewTestLedger(t *testing.T, s ledger.Store, params ledger.Params) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(s, params, FixedClock(), NewStubIDGenerator())
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	return l
}
