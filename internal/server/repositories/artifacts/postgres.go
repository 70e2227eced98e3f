package artifacts

import (
	"database/sql"
	"time"
)

// PostgresRepository stores artifacts in PostgreSQL through the pgx
// database/sql driver.
type PostgresRepository struct {
	sqlRepository
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{sqlRepository{
		db: db,
		d: dialect{
			name:    "postgres",
			bind:    bindDollar,
			timeArg: func(t time.Time) any { return t.UTC() },
		},
	}}
}
