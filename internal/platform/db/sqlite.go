package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// sqlitePragmas are applied to every connection through the DSN so that
// foreign-key cascades are always enforced.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// SQLiteDSN builds a modernc.org/sqlite DSN for path. ":memory:" yields a
// private in-memory database.
func SQLiteDSN(path string) string {
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// OpenSQLite opens the embedded database. A single connection is kept so that
// the handle behaves like one on-device database file (and so ":memory:"
// databases are not split across connections).
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return db, nil
}

// SQLiteHandle opens the embedded database on first use and applies pending
// migrations. Every later call returns the same *sql.DB.
type SQLiteHandle struct {
	path string

	once sync.Once
	db   *sql.DB
	err  error
}

func NewSQLiteHandle(path string) *SQLiteHandle {
	return &SQLiteHandle{path: path}
}

// DB returns the process-wide database handle, opening it if needed. A failed
// open is sticky: the same error is returned on every call.
func (h *SQLiteHandle) DB(ctx context.Context) (*sql.DB, error) {
	h.once.Do(func() {
		db, err := OpenSQLite(ctx, h.path)
		if err != nil {
			h.err = err
			return
		}
		if _, err := NewSQLiteMigrator(db).Up(ctx); err != nil {
			db.Close()
			h.err = fmt.Errorf("migrate sqlite %s: %w", h.path, err)
			return
		}
		h.db = db
	})
	return h.db, h.err
}

// Close releases the handle if it was ever opened.
func (h *SQLiteHandle) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}
