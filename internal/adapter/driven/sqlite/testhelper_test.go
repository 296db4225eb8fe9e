package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
)

// setupTestDB opens a named shared in-memory database with the same dual-pool
// layout production uses (single-connection writer, small reader pool) and
// the full migration set applied. Naming the database after the test keeps
// concurrently running tests from seeing each other's rows.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Subtest names contain slashes; escape so the name stays a plain URI
	// filename and cannot bleed into the query parameters.
	name := url.PathEscape(t.Name())
	// In-memory databases ignore WAL, so unlike NewDB no journal_mode
	// pragma is set. foreign_keys must be ON for the credential
	// ON DELETE SET NULL behavior the repos rely on.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		name,
	)

	db := &DB{
		Writer: openTestPool(t, dsn, 1),
		Reader: openTestPool(t, dsn, 4),
		path:   dsn,
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunMigrations(db.Writer); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}

// openTestPool opens one pool against the shared in-memory DSN. The ping
// forces the connection open so the database exists before the second pool
// attaches to it.
func openTestPool(t *testing.T, dsn string, maxConns int) *sql.DB {
	t.Helper()

	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	pool.SetMaxOpenConns(maxConns)
	if err := pool.PingContext(context.Background()); err != nil {
		t.Fatalf("ping test db: %v", err)
	}

	return pool
}
