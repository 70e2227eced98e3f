package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/buzzdrop/internal/server/config"
	"github.com/dmitrijs2005/buzzdrop/internal/server/repositories/artifacts"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestNew(t *testing.T) {
	tests := []struct {
		driver string
		want   any
	}{
		{config.DatabasePostgres, &PostgresRepositoryManager{}},
		{config.DatabaseSQLite, &SQLiteRepositoryManager{}},
		{config.DatabaseMemory, &InMemoryRepositoryManager{}},
	}
	for _, tt := range tests {
		m, err := New(tt.driver)
		require.NoError(t, err)
		assert.IsType(t, tt.want, m)
	}

	_, err := New("oracle")
	assert.Error(t, err)
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	assert.IsType(t, &artifacts.PostgresRepository{}, NewPostgresRepositoryManager().Artifacts(db))
	assert.IsType(t, &artifacts.SQLiteRepository{}, NewSQLiteRepositoryManager().Artifacts(db))

	mem := NewInMemoryRepositoryManager()
	assert.Same(t, mem.Artifacts(nil), mem.Artifacts(db))
}

func TestPostgres_Open(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })

	db, mock := newDB(t)
	mock.ExpectPing()
	var gotDriver, gotDSN string
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return db, nil
	}

	got, err := NewPostgresRepositoryManager().Open(context.Background(), "postgres://db/buzzdrop")
	require.NoError(t, err)
	assert.Same(t, db, got)
	assert.Equal(t, "pgx", gotDriver)
	assert.Equal(t, "postgres://db/buzzdrop", gotDSN)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_OpenErrors(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })

	sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("bad dsn") }
	_, err := NewPostgresRepositoryManager().Open(context.Background(), "x")
	assert.ErrorContains(t, err, "db open error")

	db, mock := newDB(t)
	mock.ExpectPing().WillReturnError(errors.New("refused"))
	mock.ExpectClose()
	sqlOpen = func(string, string) (*sql.DB, error) { return db, nil }
	_, err = NewPostgresRepositoryManager().Open(context.Background(), "x")
	assert.ErrorContains(t, err, "db ping error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_UsesDialectDirectory(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var dirs []string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		dirs = append(dirs, dir)
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}

	require.NoError(t, NewPostgresRepositoryManager().RunMigrations(context.Background(), db))
	require.NoError(t, NewSQLiteRepositoryManager().RunMigrations(context.Background(), db))
	require.NoError(t, NewInMemoryRepositoryManager().RunMigrations(context.Background(), nil))
	assert.Equal(t, []string{"postgres", "sqlite"}, dirs)
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	err := NewPostgresRepositoryManager().RunMigrations(context.Background(), db)
	require.Error(t, err)
	assert.ErrorContains(t, err, "boom")
}

func TestSQLite_OpenMigrateAndUse(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "nested", "dir", "buzzdrop.db")

	m := NewSQLiteRepositoryManager()
	db, err := m.Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, m.RunMigrations(ctx, db))
	require.NoError(t, m.RunMigrations(ctx, db), "migrations are idempotent")

	var fk int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	repo := m.Artifacts(db)
	got, err := repo.FindByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInMemory_OpenReturnsNoHandle(t *testing.T) {
	db, err := NewInMemoryRepositoryManager().Open(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestSQLiteDSNHelpers(t *testing.T) {
	assert.Equal(t, "", sqlitePath(":memory:"))
	assert.Equal(t, "", sqlitePath("file:test.db?mode=memory"))
	assert.Equal(t, "data/b.db", sqlitePath("data/b.db?cache=shared"))

	assert.Equal(t, "a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withPragmas("a.db"))
	assert.Equal(t, "a.db?x=1&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withPragmas("a.db?x=1"))
}
