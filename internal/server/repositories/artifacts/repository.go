// Package artifacts persists artifact records. Every lifecycle transition
// is a conditional write that reports whether this caller won it, which is
// what keeps retrieval at-most-once under concurrency.
package artifacts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/buzzdrop/internal/server/models"
)

type Repository interface {
	// Insert stores a new record. A duplicate id is an error.
	Insert(ctx context.Context, a *models.Artifact) error
	// GetByID returns common.ErrorNotFound when no record has id.
	GetByID(ctx context.Context, id string) (*models.Artifact, error)
	FindByOwner(ctx context.Context, owner string) ([]*models.Artifact, error)
	// FindSharedWith returns records shared with identity that identity
	// does not own.
	FindSharedWith(ctx context.Context, identity string) ([]*models.Artifact, error)
	// Update writes only the fields named by p.
	Update(ctx context.Context, id string, p models.Patch) error

	// MarkConsumed sets the consumed fields iff the record is neither
	// consumed nor expired. It reports whether this call made the change.
	MarkConsumed(ctx context.Context, id string, at time.Time, address string) (bool, error)
	// MarkExpired sets expired_at iff the record is neither consumed nor
	// expired.
	MarkExpired(ctx context.Context, id string, at time.Time) (bool, error)
	// ReportDecryption records the outcome iff none was recorded before.
	ReportDecryption(ctx context.Context, id string, success bool) (bool, error)

	// Remove deletes the record; common.ErrorNotFound if it is absent.
	Remove(ctx context.Context, id string) error

	// FindUnpurged returns records whose bytes may still be stored although
	// they can never be served again: expired records, records due at now,
	// and records consumed before consumedBefore. Results are ordered by
	// (CreatedAt, ID) and start strictly after the cursor.
	FindUnpurged(ctx context.Context, now, consumedBefore time.Time, after Cursor, limit int) ([]*models.Artifact, error)
	// ListLocations returns the storage locations of all unpurged records.
	ListLocations(ctx context.Context) ([]string, error)
}

// Cursor is a position in (CreatedAt, ID) order. The zero Cursor is the
// start.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorAfter returns the position just past a.
func CursorAfter(a *models.Artifact) Cursor {
	return Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
}

// IsZero reports whether c is the start.
func (c Cursor) IsZero() bool { return c.ID == "" }

// Before reports whether a sorts after c.
func (c Cursor) Before(a *models.Artifact) bool {
	if c.IsZero() {
		return true
	}
	if !a.CreatedAt.Equal(c.CreatedAt) {
		return a.CreatedAt.After(c.CreatedAt)
	}
	return a.ID > c.ID
}
