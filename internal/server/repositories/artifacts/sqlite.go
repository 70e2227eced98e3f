package artifacts

import (
	"database/sql"
	"time"
)

// SQLiteRepository stores artifacts in a SQLite file through
// modernc.org/sqlite. The handle should be limited to one open connection;
// the conditional updates then serialize on it.
type SQLiteRepository struct {
	sqlRepository
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{sqlRepository{
		db: db,
		d: dialect{
			name:    "sqlite",
			bind:    bindQuestion,
			timeArg: func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
		},
	}}
}
