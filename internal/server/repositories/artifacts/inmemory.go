package artifacts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
	"github.com/dmitrijs2005/buzzdrop/internal/server/models"
)

// InMemoryRepository keeps records in a map behind one mutex. Records are
// cloned on the way in and out.
type InMemoryRepository struct {
	mu      sync.Mutex
	records map[string]*models.Artifact
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*models.Artifact)}
}

func (r *InMemoryRepository) Insert(_ context.Context, a *models.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[a.ID]; ok {
		return fmt.Errorf("duplicate artifact id %s", a.ID)
	}
	c := a.Clone()
	c.SharedWith = dedupe(c.SharedWith)
	r.records[a.ID] = c
	return nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return a.Clone(), nil
}

func (r *InMemoryRepository) FindByOwner(_ context.Context, owner string) ([]*models.Artifact, error) {
	return r.filter(func(a *models.Artifact) bool { return a.Owner == owner }, 0), nil
}

func (r *InMemoryRepository) FindSharedWith(_ context.Context, identity string) ([]*models.Artifact, error) {
	return r.filter(func(a *models.Artifact) bool {
		return a.Owner != identity && a.SharedWithIdentity(identity)
	}, 0), nil
}

func (r *InMemoryRepository) FindUnpurged(_ context.Context, now, consumedBefore time.Time, after Cursor, limit int) ([]*models.Artifact, error) {
	return r.filter(func(a *models.Artifact) bool {
		if a.Purged || !after.Before(a) {
			return false
		}
		switch a.Status() {
		case models.StatusExpired:
			return true
		case models.StatusConsumed:
			return !a.ConsumedAt.After(consumedBefore)
		default:
			return a.Due(now)
		}
	}, limit), nil
}

func (r *InMemoryRepository) ListLocations(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.records))
	for _, a := range r.records {
		if !a.Purged {
			out = append(out, a.Location)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *InMemoryRepository) filter(keep func(a *models.Artifact) bool, limit int) []*models.Artifact {
	r.mu.Lock()
	var out []*models.Artifact
	for _, a := range r.records {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *InMemoryRepository) Update(_ context.Context, id string, p models.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.Apply(a)
	if p.SharedWith != nil {
		a.SharedWith = dedupe(a.SharedWith)
	}
	return nil
}

func (r *InMemoryRepository) MarkConsumed(_ context.Context, id string, at time.Time, address string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	if !ok || a.ConsumedAt != nil || a.ExpiredAt != nil {
		return false, nil
	}
	t := at
	a.ConsumedAt = &t
	a.ConsumedBy = address
	return true, nil
}

func (r *InMemoryRepository) MarkExpired(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	if !ok || a.ConsumedAt != nil || a.ExpiredAt != nil {
		return false, nil
	}
	t := at
	a.ExpiredAt = &t
	return true, nil
}

func (r *InMemoryRepository) ReportDecryption(_ context.Context, id string, success bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	if !ok || a.DecryptionReported != nil {
		return false, nil
	}
	a.DecryptionReported = &success
	return true, nil
}

func (r *InMemoryRepository) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.records, id)
	return nil
}

func dedupe(in []string) []string {
	if in == nil {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
