package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
)

const memoryPrefix = "mem://"

// MemoryBackend keeps objects in a map. Bytes are copied in and out so
// callers never share a buffer with the store.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

func (b *MemoryBackend) Type() string { return "memory" }

func (b *MemoryBackend) Save(ctx context.Context, id string, r io.Reader, size int64) (string, error) {
	if err := validID(id); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStorageWrite, err)
	}
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.CopyBuffer(&buf, readerWithContext(ctx, r), make([]byte, ChunkSize)); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStorageWrite, err)
	}

	location := memoryPrefix + id
	b.mu.Lock()
	b.objects[location] = buf.Bytes()
	b.mu.Unlock()
	return location, nil
}

func (b *MemoryBackend) Retrieve(_ context.Context, location string) (io.ReadCloser, error) {
	b.mu.RLock()
	data, ok := b.objects[location]
	b.mu.RUnlock()
	if !ok {
		return nil, common.ErrStorageNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (b *MemoryBackend) Delete(_ context.Context, location string) error {
	b.mu.Lock()
	delete(b.objects, location)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Exists(_ context.Context, location string) (bool, error) {
	b.mu.RLock()
	_, ok := b.objects[location]
	b.mu.RUnlock()
	return ok, nil
}

func (b *MemoryBackend) List(_ context.Context) ([]string, error) {
	b.mu.RLock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (b *MemoryBackend) Ping(context.Context) error { return nil }

// Len returns the number of stored objects.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

