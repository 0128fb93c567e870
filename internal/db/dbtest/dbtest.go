// Package dbtest provides database fixtures for tests.
package dbtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"recipebook/internal/db"
)

// New opens a migrated in-memory SQLite database for a single test.
// The pool is pinned to one connection so every query sees the same memory
// database.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	gormDB, err := db.Open("sqlite", "file::memory:")
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}
