// Package storage holds the blob backends that keep artifact bytes. A
// backend knows nothing about lifecycle: it saves, streams and deletes
// opaque objects addressed by the location it handed out on save.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/dmitrijs2005/buzzdrop/internal/server/config"
)

// ChunkSize is the read granularity for streamed artifacts.
const ChunkSize = 8 * 1024

// Backend stores artifact bytes.
//
// Save returns an error wrapping common.ErrStorageWrite on failure.
// Retrieve returns common.ErrStorageNotFound for a missing object and
// common.ErrStorageRead for other failures. Delete of a missing object
// succeeds.
type Backend interface {
	Type() string
	Save(ctx context.Context, id string, r io.Reader, size int64) (string, error)
	Retrieve(ctx context.Context, location string) (io.ReadCloser, error)
	Delete(ctx context.Context, location string) error
	Exists(ctx context.Context, location string) (bool, error)
	// List returns the locations of every stored object.
	List(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// New builds the backend selected by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal:
		return NewLocalBackend(cfg.UploadDir)
	case config.StorageS3:
		return NewS3Backend(ctx, S3Options{
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	case config.StorageMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// Chunks yields r in pieces of at most ChunkSize bytes. The yielded slice
// is reused between iterations. A read error is yielded once and ends the
// sequence; io.EOF is not reported.
func Chunks(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		buf := make([]byte, ChunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				if !yield(buf[:n], nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

func validID(id string) error {
	if id == "" {
		return errors.New("empty object id")
	}
	for _, c := range id {
		if c == '/' || c == '\\' || c == 0 {
			return fmt.Errorf("invalid object id %q", id)
		}
	}
	if id == "." || id == ".." {
		return fmt.Errorf("invalid object id %q", id)
	}
	return nil
}
