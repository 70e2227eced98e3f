package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
	"github.com/dmitrijs2005/buzzdrop/internal/dbx"
	"github.com/dmitrijs2005/buzzdrop/internal/server/models"
)

// dialect captures what differs between the SQL record stores.
type dialect struct {
	name string
	// bind rewrites "?" placeholders into the driver's syntax.
	bind func(query string) string
	// timeArg converts a timestamp into a query argument.
	timeArg func(t time.Time) any
}

// sqlRepository implements Repository over database/sql. Queries are
// written with "?" placeholders and rebound per dialect.
type sqlRepository struct {
	db *sql.DB
	d  dialect
}

const artifactColumns = `id, kind, original_name, owner, location, size, created_at, expires_at,
	consumed_at, consumed_by, expired_at, decryption_reported, purged`

func (r *sqlRepository) q(query string) string {
	return r.d.bind(query)
}

func (r *sqlRepository) nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return r.d.timeArg(*t)
}

func (r *sqlRepository) Insert(ctx context.Context, a *models.Artifact) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `INSERT INTO artifacts (` + artifactColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		var reported any
		if a.DecryptionReported != nil {
			reported = *a.DecryptionReported
		}
		_, err := tx.ExecContext(ctx, r.q(query),
			a.ID, a.Kind.String(), a.OriginalName, a.Owner, a.Location, a.Size,
			r.d.timeArg(a.CreatedAt), r.nullableTime(a.ExpiresAt),
			r.nullableTime(a.ConsumedAt), a.ConsumedBy, r.nullableTime(a.ExpiredAt),
			reported, a.Purged,
		)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return r.insertShares(ctx, tx, a.ID, a.SharedWith)
	})
}

func (r *sqlRepository) insertShares(ctx context.Context, tx dbx.DBTX, id string, shares []string) error {
	seen := make(map[string]bool, len(shares))
	pos := 0
	for _, identity := range shares {
		if seen[identity] {
			continue
		}
		seen[identity] = true
		_, err := tx.ExecContext(ctx,
			r.q(`INSERT INTO artifact_shares (artifact_id, identity, position) VALUES (?, ?, ?)`),
			id, identity, pos)
		if err != nil {
			return fmt.Errorf("insert share: %w", err)
		}
		pos++
	}
	return nil
}

func (r *sqlRepository) GetByID(ctx context.Context, id string) (*models.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE id = ?`
	a, err := scanArtifact(r.db.QueryRowContext(ctx, r.q(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := r.loadShares(ctx, []*models.Artifact{a}); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *sqlRepository) FindByOwner(ctx context.Context, owner string) ([]*models.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE owner = ? ORDER BY created_at, id`
	return r.selectMany(ctx, query, owner)
}

func (r *sqlRepository) FindSharedWith(ctx context.Context, identity string) ([]*models.Artifact, error) {
	query := `SELECT ` + prefixed("a.", artifactColumns) + `
		FROM artifacts a JOIN artifact_shares s ON s.artifact_id = a.id
		WHERE s.identity = ? AND a.owner <> ?
		ORDER BY a.created_at, a.id`
	return r.selectMany(ctx, query, identity, identity)
}

func (r *sqlRepository) FindUnpurged(ctx context.Context, now, consumedBefore time.Time, after Cursor, limit int) ([]*models.Artifact, error) {
	args := []any{false, r.d.timeArg(now), r.d.timeArg(consumedBefore)}
	page := ""
	if !after.IsZero() {
		page = ` AND (created_at > ? OR (created_at = ? AND id > ?))`
		at := r.d.timeArg(after.CreatedAt)
		args = append(args, at, at, after.ID)
	}
	query := `SELECT ` + artifactColumns + ` FROM artifacts
		WHERE purged = ? AND (
			expired_at IS NOT NULL
			OR (consumed_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ?)
			OR (consumed_at IS NOT NULL AND consumed_at <= ?)
		)` + page + `
		ORDER BY created_at, id
		LIMIT ?`
	return r.selectMany(ctx, query, append(args, limit)...)
}

func (r *sqlRepository) ListLocations(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT location FROM artifacts WHERE purged = ?`), false)
	if err != nil {
		return nil, fmt.Errorf("failed to select locations: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, err
		}
		result = append(result, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// selectMany reads all rows before loading shares: a single-connection
// pool cannot run a second query while rows are open.
func (r *sqlRepository) selectMany(ctx context.Context, query string, args ...any) ([]*models.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select artifacts: %w", err)
	}

	var result []*models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := r.loadShares(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *sqlRepository) loadShares(ctx context.Context, list []*models.Artifact) error {
	for _, a := range list {
		rows, err := r.db.QueryContext(ctx,
			r.q(`SELECT identity FROM artifact_shares WHERE artifact_id = ? ORDER BY position`), a.ID)
		if err != nil {
			return fmt.Errorf("failed to select shares: %w", err)
		}
		var shares []string
		for rows.Next() {
			var identity string
			if err := rows.Scan(&identity); err != nil {
				rows.Close()
				return err
			}
			shares = append(shares, identity)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
		a.SharedWith = shares
	}
	return nil
}

func (r *sqlRepository) Update(ctx context.Context, id string, p models.Patch) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var sets []string
		var args []any
		if p.ExpiresAt != nil {
			sets = append(sets, "expires_at = ?")
			args = append(args, r.d.timeArg(*p.ExpiresAt))
		}
		if p.DecryptionReported != nil {
			sets = append(sets, "decryption_reported = ?")
			args = append(args, *p.DecryptionReported)
		}
		if p.Purged != nil {
			sets = append(sets, "purged = ?")
			args = append(args, *p.Purged)
		}

		if len(sets) > 0 {
			query := `UPDATE artifacts SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
			res, err := tx.ExecContext(ctx, r.q(query), append(args, id)...)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			ok, err := dbx.AffectedOne(res)
			if err != nil {
				return err
			}
			if !ok {
				return common.ErrorNotFound
			}
		} else {
			var one int
			err := tx.QueryRowContext(ctx, r.q(`SELECT 1 FROM artifacts WHERE id = ?`), id).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return common.ErrorNotFound
			}
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}

		if p.SharedWith != nil {
			if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM artifact_shares WHERE artifact_id = ?`), id); err != nil {
				return fmt.Errorf("delete shares: %w", err)
			}
			return r.insertShares(ctx, tx, id, *p.SharedWith)
		}
		return nil
	})
}

func (r *sqlRepository) MarkConsumed(ctx context.Context, id string, at time.Time, address string) (bool, error) {
	query := `UPDATE artifacts SET consumed_at = ?, consumed_by = ?
		WHERE id = ? AND consumed_at IS NULL AND expired_at IS NULL`
	return r.conditional(ctx, query, r.d.timeArg(at), address, id)
}

func (r *sqlRepository) MarkExpired(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE artifacts SET expired_at = ?
		WHERE id = ? AND expired_at IS NULL AND consumed_at IS NULL`
	return r.conditional(ctx, query, r.d.timeArg(at), id)
}

func (r *sqlRepository) ReportDecryption(ctx context.Context, id string, success bool) (bool, error) {
	query := `UPDATE artifacts SET decryption_reported = ?
		WHERE id = ? AND decryption_reported IS NULL`
	return r.conditional(ctx, query, success, id)
}

func (r *sqlRepository) conditional(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return dbx.AffectedOne(res)
}

func (r *sqlRepository) Remove(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM artifact_shares WHERE artifact_id = ?`), id); err != nil {
			return fmt.Errorf("delete shares: %w", err)
		}
		res, err := tx.ExecContext(ctx, r.q(`DELETE FROM artifacts WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		ok, err := dbx.AffectedOne(res)
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrorNotFound
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*models.Artifact, error) {
	var (
		a                          models.Artifact
		kind                       string
		created                    flexTime
		expires, consumed, expired flexTime
		reported                   sql.NullBool
	)
	if err := row.Scan(
		&a.ID, &kind, &a.OriginalName, &a.Owner, &a.Location, &a.Size,
		&created, &expires, &consumed, &a.ConsumedBy, &expired, &reported, &a.Purged,
	); err != nil {
		return nil, err
	}

	k, err := models.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	a.Kind = k
	if created.t == nil {
		return nil, fmt.Errorf("artifact %s has no created_at", a.ID)
	}
	a.CreatedAt = *created.t
	a.ExpiresAt = expires.t
	a.ConsumedAt = consumed.t
	a.ExpiredAt = expired.t
	if reported.Valid {
		v := reported.Bool
		a.DecryptionReported = &v
	}
	return &a, nil
}

// sqliteTimeLayout is fixed width so stored values order lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// flexTime scans a nullable timestamp stored either natively or as text.
type flexTime struct {
	t *time.Time
}

func (f *flexTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		f.t = nil
		return nil
	case time.Time:
		t := v.UTC()
		f.t = &t
		return nil
	case string:
		return f.parse(v)
	case []byte:
		return f.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (f *flexTime) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	t = t.UTC()
	f.t = &t
	return nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// bindDollar rewrites "?" placeholders into $1, $2, ...
func bindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func bindQuestion(query string) string { return query }
