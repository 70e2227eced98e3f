package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
	"github.com/dmitrijs2005/buzzdrop/internal/filex"
)

const tmpPrefix = ".tmp-"

// LocalBackend keeps artifacts as files directly under a root directory.
// The location of an object is its bare file name, resolved against the
// root on every call, so records survive a renamed or remounted root.
type LocalBackend struct {
	root string
}

func NewLocalBackend(dir string) (*LocalBackend, error) {
	root, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	return &LocalBackend{root: root}, nil
}

func (b *LocalBackend) Type() string { return "local" }

// Root returns the absolute storage directory.
func (b *LocalBackend) Root() string { return b.root }

// Save streams r into a temp file and renames it into place, so a reader
// never sees a partial object.
func (b *LocalBackend) Save(ctx context.Context, id string, r io.Reader, _ int64) (string, error) {
	if err := validID(id); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStorageWrite, err)
	}

	tmp, err := os.CreateTemp(b.root, tmpPrefix+id+"-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp: %v", common.ErrStorageWrite, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(tmp, readerWithContext(ctx, r), buf); err != nil {
		return "", fmt.Errorf("%w: write: %v", common.ErrStorageWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("%w: sync: %v", common.ErrStorageWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close: %v", common.ErrStorageWrite, err)
	}

	if err := os.Rename(tmpName, filepath.Join(b.root, id)); err != nil {
		return "", fmt.Errorf("%w: rename: %v", common.ErrStorageWrite, err)
	}
	committed = true
	return id, nil
}

// path resolves a location to a file under the root. Locations with
// separators or dot segments are rejected.
func (b *LocalBackend) path(location string) (string, error) {
	if err := validID(location); err != nil {
		return "", err
	}
	p := filepath.Join(b.root, location)
	if !filex.Within(b.root, p) {
		return "", fmt.Errorf("location %q outside storage root", location)
	}
	return p, nil
}

func (b *LocalBackend) Retrieve(_ context.Context, location string) (io.ReadCloser, error) {
	p, err := b.path(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageRead, err)
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.ErrStorageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageRead, err)
	}
	return f, nil
}

func (b *LocalBackend) Delete(_ context.Context, location string) error {
	p, err := b.path(location)
	if err != nil {
		return fmt.Errorf("refusing to delete: %w", err)
	}
	err = os.Remove(p)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (b *LocalBackend) Exists(_ context.Context, location string) (bool, error) {
	p, err := b.path(location)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List skips in-flight temp files.
func (b *LocalBackend) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

func (b *LocalBackend) Ping(_ context.Context) error {
	info, err := os.Stat(b.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", b.root)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
