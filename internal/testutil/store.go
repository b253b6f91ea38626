package testutil

import (
	"context"
	"testing"

	"ttrack/internal/model"
	"ttrack/internal/store"
	"ttrack/internal/store/migrations"
	"ttrack/internal/timer"
)

// NewTestStore creates a new in-memory SQLite store with schema applied.
// clock and idgen may be nil for the real implementations. The store is
// automatically closed when the test completes.
func NewTestStore(t *testing.T, clock timer.Clock, idgen timer.IDGenerator) *store.SQLiteStore {
	t.Helper()

	sqlDB, err := store.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.MigrateUp(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	s := store.NewSQLiteStoreFromDB(sqlDB, clock, idgen)

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// FailingEntryStore wraps an EntryStore and fails selected operations.
// Zero-value fields leave the underlying behavior untouched.
type FailingEntryStore struct {
	timer.EntryStore
	CreateErr     error
	UpdateErr     error
	DeleteErr     error
	DeleteMissing bool // Delete reports false without touching the row
}

func (f *FailingEntryStore) Create(ctx context.Context, fields timer.EntryCreate) (*model.TimeEntry, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	return f.EntryStore.Create(ctx, fields)
}

func (f *FailingEntryStore) Update(ctx context.Context, patch timer.EntryUpdate) (*model.TimeEntry, error) {
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	return f.EntryStore.Update(ctx, patch)
}

func (f *FailingEntryStore) Delete(ctx context.Context, id string) (bool, error) {
	if f.DeleteErr != nil {
		return false, f.DeleteErr
	}
	if f.DeleteMissing {
		return false, nil
	}
	return f.EntryStore.Delete(ctx, id)
}
