package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
	"github.com/dmitrijs2005/buzzdrop/internal/logging"
	"github.com/dmitrijs2005/buzzdrop/internal/server/access"
	"github.com/dmitrijs2005/buzzdrop/internal/server/models"
	"github.com/dmitrijs2005/buzzdrop/internal/server/repositories/artifacts"
	"github.com/dmitrijs2005/buzzdrop/internal/server/storage"
	"github.com/dmitrijs2005/buzzdrop/internal/timex"
	"github.com/google/uuid"
)

// DefaultConsumedGrace is how long Reap leaves the bytes of a consumed
// artifact alone, so an in-flight download can finish and clean up itself.
const DefaultConsumedGrace = time.Hour

// DefaultReapBatch is the page size Reap uses when none is given.
const DefaultReapBatch = 100

// NoteName is the display name of text notes.
const NoteName = "note"

// Options configures an ArtifactService.
type Options struct {
	// MaxSize is the largest accepted artifact in bytes; 0 means no limit.
	MaxSize int64
	// AllowedExtensions lists lower-case extensions accepted for files.
	AllowedExtensions []string
	// BaseURL prefixes share links.
	BaseURL string
	// Location renders display timestamps; nil means UTC.
	Location *time.Location
	// Now is the clock; nil means time.Now.
	Now func() time.Time
	// ConsumedGrace defaults to DefaultConsumedGrace.
	ConsumedGrace time.Duration
}

// ArtifactService runs the artifact lifecycle: create, lazy expiry,
// one-time retrieval, deletion and decryption reports. The repository's
// conditional updates decide every race; bytes in the backend follow the
// record state through best-effort deletes.
type ArtifactService struct {
	repo    artifacts.Repository
	backend storage.Backend
	logger  logging.Logger
	policy  access.Policy
	opts    Options
	allowed map[string]bool
	newID   func() string
}

func NewArtifactService(repo artifacts.Repository, backend storage.Backend, logger logging.Logger, opts Options) *ArtifactService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ConsumedGrace <= 0 {
		opts.ConsumedGrace = DefaultConsumedGrace
	}
	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, e := range opts.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return &ArtifactService{
		repo:    repo,
		backend: backend,
		logger:  logger.With("module", "artifacts"),
		opts:    opts,
		allowed: allowed,
		newID:   uuid.NewString,
	}
}

// Options returns the effective options.
func (s *ArtifactService) Options() Options { return s.opts }

func (s *ArtifactService) now() time.Time { return s.opts.Now().UTC() }

// ShareLink returns the public view URL for id.
func (s *ArtifactService) ShareLink(id string) string {
	return strings.TrimRight(s.opts.BaseURL, "/") + "/view/" + id
}

// CreateRequest describes an upload. Size is the declared length, -1 when
// unknown. Expiry wins over ExpiryRaw when both are set.
type CreateRequest struct {
	Owner      string
	Kind       models.Kind
	Filename   string
	Body       io.Reader
	Size       int64
	Expiry     *time.Time
	ExpiryRaw  string
	SharedWith []string
}

type CreateResult struct {
	ID        string
	ShareLink string
}

// Create validates req, stores the bytes and inserts the record. When the
// insert fails the stored bytes are deleted before the error is returned.
func (s *ArtifactService) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Owner == "" {
		return nil, common.ErrorUnauthorized
	}
	if req.Body == nil {
		return nil, fmt.Errorf("%w: empty body", common.ErrValidation)
	}

	var name string
	switch req.Kind {
	case models.KindFile:
		name = SanitizeFilename(req.Filename)
		if name == "" {
			return nil, fmt.Errorf("%w: no selected file", common.ErrValidation)
		}
		if !s.allowedFile(name) {
			return nil, fmt.Errorf("%w: file type not allowed", common.ErrValidation)
		}
	case models.KindNote:
		name = NoteName
	default:
		return nil, fmt.Errorf("%w: unknown kind %v", common.ErrValidation, req.Kind)
	}

	if s.opts.MaxSize > 0 && req.Size > s.opts.MaxSize {
		return nil, common.ErrTooLarge
	}

	expiry := req.Expiry
	if expiry == nil && strings.TrimSpace(req.ExpiryRaw) != "" {
		t, err := timex.ParseExpiry(strings.TrimSpace(req.ExpiryRaw), s.opts.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		expiry = &t
	}
	if expiry != nil {
		t := expiry.UTC()
		expiry = &t
	}

	id := s.newID()
	guard := newSizeGuard(req.Body, s.opts.MaxSize)
	location, err := s.backend.Save(ctx, id, guard, req.Size)
	if guard.exceeded() {
		if err == nil {
			s.deleteBytes(ctx, id, location)
		}
		return nil, common.ErrTooLarge
	}
	if err != nil {
		return nil, err
	}

	a := &models.Artifact{
		ID:           id,
		Kind:         req.Kind,
		OriginalName: name,
		Owner:        req.Owner,
		Location:     location,
		Size:         guard.count(),
		CreatedAt:    s.now(),
		ExpiresAt:    expiry,
		SharedWith:   normalizeIdentities(req.SharedWith),
	}
	if err := s.repo.Insert(ctx, a); err != nil {
		s.deleteBytes(ctx, id, location)
		return nil, fmt.Errorf("insert artifact: %w", err)
	}

	s.logger.Info(ctx, "artifact created", "id", id, "kind", a.Kind.String(), "owner", a.Owner, "size", a.Size)
	return &CreateResult{ID: id, ShareLink: s.ShareLink(id)}, nil
}

func (s *ArtifactService) allowedFile(name string) bool {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return false
	}
	return s.allowed[strings.ToLower(name[i+1:])]
}

// CheckAndReapExpiry reports whether a is expired, committing the
// transition when a is due. Only the caller whose conditional update wins
// deletes the bytes. a is refreshed in place.
func (s *ArtifactService) CheckAndReapExpiry(ctx context.Context, a *models.Artifact) (bool, error) {
	switch a.Status() {
	case models.StatusExpired:
		return true, nil
	case models.StatusConsumed:
		return false, nil
	}

	now := s.now()
	if !a.Due(now) {
		return false, nil
	}

	won, err := s.repo.MarkExpired(ctx, a.ID, now)
	if err != nil {
		return false, fmt.Errorf("mark expired: %w", err)
	}
	if !won {
		fresh, err := s.repo.GetByID(ctx, a.ID)
		if err != nil {
			return false, err
		}
		*a = *fresh
		return a.Status() == models.StatusExpired, nil
	}

	a.ExpiredAt = &now
	s.logger.Info(ctx, "artifact expired", "id", a.ID)
	s.purge(ctx, a)
	return true, nil
}

// Download is a won retrieval. Closing Body deletes the stored bytes,
// whether or not they were read to the end.
type Download struct {
	Artifact *models.Artifact
	Body     io.ReadCloser
}

// Retrieve consumes the artifact and opens its bytes. The consumption is
// committed before the stream is opened; a caller that loses the race gets
// common.ErrAlreadyConsumed (or common.ErrExpired) and never sees bytes.
func (s *ArtifactService) Retrieve(ctx context.Context, id, requesterAddress string) (*Download, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	expired, err := s.CheckAndReapExpiry(ctx, a)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, common.ErrExpired
	}
	if a.Status() == models.StatusConsumed {
		return nil, common.ErrAlreadyConsumed
	}

	now := s.now()
	won, err := s.repo.MarkConsumed(ctx, id, now, requesterAddress)
	if err != nil {
		return nil, fmt.Errorf("mark consumed: %w", err)
	}
	if !won {
		fresh, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if fresh.Status() == models.StatusExpired {
			return nil, common.ErrExpired
		}
		return nil, common.ErrAlreadyConsumed
	}
	a.ConsumedAt = &now
	a.ConsumedBy = requesterAddress

	rc, err := s.backend.Retrieve(ctx, a.Location)
	if err != nil {
		s.purge(ctx, a)
		return nil, fmt.Errorf("open artifact %s: %w", id, err)
	}

	s.logger.Info(ctx, "artifact consumed", "id", id, "address", requesterAddress)
	return &Download{
		Artifact: a,
		Body:     &consumedBody{ReadCloser: rc, onClose: func() { s.purge(ctx, a) }},
	}, nil
}

type consumedBody struct {
	io.ReadCloser
	once    sync.Once
	onClose func()
}

func (b *consumedBody) Close() error {
	var err error
	b.once.Do(func() {
		err = b.ReadCloser.Close()
		b.onClose()
	})
	return err
}

// Peek returns display metadata without consuming the artifact.
func (s *ArtifactService) Peek(ctx context.Context, id string) (*models.Display, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	expired, err := s.CheckAndReapExpiry(ctx, a)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, common.ErrExpired
	}
	if a.Status() == models.StatusConsumed {
		return nil, common.ErrAlreadyConsumed
	}
	return s.display(a), nil
}

// Delete removes an artifact on behalf of its owner. Stored bytes are
// deleted best-effort; the record is always removed.
func (s *ArtifactService) Delete(ctx context.Context, id string, p access.Principal) error {
	if err := s.policy.RequireIdentity(p); err != nil {
		return err
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.CanDelete(p, a); err != nil {
		return err
	}

	if !a.Purged {
		s.deleteBytes(ctx, a.ID, a.Location)
	}
	if err := s.repo.Remove(ctx, id); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("remove artifact: %w", err)
	}

	s.logger.Info(ctx, "artifact deleted", "id", id, "owner", a.Owner)
	return nil
}

// ReportDecryption records the client-side decryption outcome. Only the
// first report is kept; the result says whether this one was.
func (s *ArtifactService) ReportDecryption(ctx context.Context, id string, success bool) (bool, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return false, err
	}
	recorded, err := s.repo.ReportDecryption(ctx, id, success)
	if err != nil {
		return false, fmt.Errorf("report decryption: %w", err)
	}
	if !recorded {
		// the row may have been removed after the lookup
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	s.logger.Info(ctx, "decryption reported", "id", id, "success", success)
	return true, nil
}

// ListOwned lists the artifacts owned by identity, applying lazy expiry.
func (s *ArtifactService) ListOwned(ctx context.Context, p access.Principal, identity string) ([]*models.Display, error) {
	if err := s.policy.CanListOwned(p, identity); err != nil {
		return nil, err
	}
	list, err := s.repo.FindByOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.displayAll(ctx, list)
}

// ListShared lists artifacts others shared with the caller.
func (s *ArtifactService) ListShared(ctx context.Context, p access.Principal) ([]*models.Display, error) {
	if err := s.policy.RequireIdentity(p); err != nil {
		return nil, err
	}
	list, err := s.repo.FindSharedWith(ctx, p.Identity)
	if err != nil {
		return nil, err
	}
	return s.displayAll(ctx, list)
}

func (s *ArtifactService) displayAll(ctx context.Context, list []*models.Artifact) ([]*models.Display, error) {
	out := make([]*models.Display, 0, len(list))
	for _, a := range list {
		if _, err := s.CheckAndReapExpiry(ctx, a); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, s.display(a))
	}
	return out, nil
}

func (s *ArtifactService) display(a *models.Artifact) *models.Display {
	return models.NewDisplay(a, s.opts.Location, s.ShareLink(a.ID))
}

// Reap expires due artifacts and deletes the bytes of terminal artifacts
// that still have them. It walks every candidate in pages of batch
// records, so records whose purge keeps failing never hide newer ones. It
// returns how many records were purged.
func (s *ArtifactService) Reap(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = DefaultReapBatch
	}
	now := s.now()
	consumedBefore := now.Add(-s.opts.ConsumedGrace)

	n := 0
	var cursor artifacts.Cursor
	for {
		list, err := s.repo.FindUnpurged(ctx, now, consumedBefore, cursor, batch)
		if err != nil {
			return n, fmt.Errorf("find unpurged: %w", err)
		}
		for _, a := range list {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			if s.reapOne(ctx, a) {
				n++
			}
		}
		if len(list) < batch {
			return n, nil
		}
		cursor = artifacts.CursorAfter(list[len(list)-1])
	}
}

func (s *ArtifactService) reapOne(ctx context.Context, a *models.Artifact) bool {
	if a.Status() == models.StatusActive {
		expired, err := s.CheckAndReapExpiry(ctx, a)
		if err != nil {
			if !errors.Is(err, common.ErrorNotFound) {
				s.logger.Warn(ctx, "reap expiry failed", "id", a.ID, "error", err)
			}
			return false
		}
		// a retrieval may have won the race; its download cleans up
		if !expired {
			return false
		}
		if a.Purged {
			return true
		}
	}
	return s.purge(ctx, a)
}

// CleanupOrphans deletes stored objects that no unpurged record points
// to. It must run before the service accepts uploads: bytes saved by an
// in-flight Create have no record yet.
func (s *ArtifactService) CleanupOrphans(ctx context.Context) (int, error) {
	locations, err := s.repo.ListLocations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list locations: %w", err)
	}
	known := make(map[string]bool, len(locations))
	for _, l := range locations {
		known[l] = true
	}

	stored, err := s.backend.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list storage: %w", err)
	}

	n := 0
	for _, loc := range stored {
		if known[loc] {
			continue
		}
		if err := s.backend.Delete(ctx, loc); err != nil {
			s.logger.Warn(ctx, "cannot remove orphaned object", "location", loc, "error", err)
			continue
		}
		s.logger.Info(ctx, "removed orphaned object", "location", loc)
		n++
	}
	return n, nil
}

// purge deletes the bytes of a terminal artifact and records that they are
// gone. Failures are logged; the reaper retries later. It runs detached
// from ctx cancellation so a dropped client still triggers cleanup.
func (s *ArtifactService) purge(ctx context.Context, a *models.Artifact) bool {
	ctx = context.WithoutCancel(ctx)
	if err := s.backend.Delete(ctx, a.Location); err != nil {
		s.logger.Warn(ctx, "best-effort delete failed", "id", a.ID, "location", a.Location, "error", err)
		return false
	}
	purged := true
	if err := s.repo.Update(ctx, a.ID, models.Patch{Purged: &purged}); err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Warn(ctx, "cannot mark artifact purged", "id", a.ID, "error", err)
		return false
	}
	a.Purged = true
	return true
}

func (s *ArtifactService) deleteBytes(ctx context.Context, id, location string) {
	if err := s.backend.Delete(context.WithoutCancel(ctx), location); err != nil {
		s.logger.Warn(ctx, "best-effort delete failed", "id", id, "location", location, "error", err)
	}
}

func normalizeIdentities(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
