package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/buzzdrop/internal/filex"
	"github.com/dmitrijs2005/buzzdrop/internal/server/repositories/artifacts"
	_ "modernc.org/sqlite"
)

// SQLiteRepositoryManager vends repositories backed by a SQLite file.
type SQLiteRepositoryManager struct{}

func NewSQLiteRepositoryManager() *SQLiteRepositoryManager {
	return &SQLiteRepositoryManager{}
}

// Open opens the database file, creating its directory when needed. The
// pool is limited to one connection so writes never see SQLITE_BUSY from
// a sibling connection.
func (m *SQLiteRepositoryManager) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if path := sqlitePath(dsn); path != "" {
		if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("db dir error: %w", err)
		}
	}

	db, err := sqlOpen("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db, "sqlite3", "sqlite")
}

func (m *SQLiteRepositoryManager) Artifacts(db *sql.DB) artifacts.Repository {
	return artifacts.NewSQLiteRepository(db)
}

// sqlitePath returns the filesystem path of a plain file DSN, or "" for
// in-memory and URI DSNs.
func sqlitePath(dsn string) string {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return ""
	}
	path, _, _ := strings.Cut(dsn, "?")
	return path
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
