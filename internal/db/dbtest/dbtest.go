// Package dbtest provides a migrated in-memory database for tests.
package dbtest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"helpdesk-mail-go/internal/db"
)

// New returns a fresh, migrated SQLite database that lives as long as t.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := db.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"))
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// Every pooled connection would get its own empty in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(conn))
	return conn
}
