// Package memory implements an in-memory content store.
//
// Useful for tests and ephemeral caches. With no filesystem atomicity to
// lean on, a mutex stands in for the rename: a blob appears in the map
// only as a complete value at commit time.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/hoardfs/hoard/pkg/content"
	"github.com/hoardfs/hoard/pkg/integrity"
)

// MemoryContentStore keeps blobs in a map keyed by the canonical digest
// string. Safe for concurrent use within one process.
type MemoryContentStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryContentStore returns an empty in-memory store.
func NewMemoryContentStore(ctx context.Context) (*MemoryContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &MemoryContentStore{blobs: make(map[string][]byte)}, nil
}

// Writer opens a write handle buffering into memory.
func (s *MemoryContentStore) Writer(ctx context.Context, algo integrity.Algorithm) (content.WriteHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hasher, err := integrity.NewHasher(algo)
	if err != nil {
		return nil, err
	}
	return &memWriteHandle{store: s, hasher: hasher}, nil
}

type memWriteHandle struct {
	store  *MemoryContentStore
	buf    bytes.Buffer
	hasher *integrity.Hasher
	done   bool
}

func (w *memWriteHandle) Write(p []byte) (int, error) {
	w.hasher.Write(p)
	return w.buf.Write(p)
}

func (w *memWriteHandle) Written() int64 {
	return int64(w.buf.Len())
}

func (w *memWriteHandle) Commit(ctx context.Context) (integrity.Integrity, error) {
	if w.done {
		return integrity.Integrity{}, fmt.Errorf("commit on closed write handle: %w", content.ErrStoreWrite)
	}
	if err := ctx.Err(); err != nil {
		return integrity.Integrity{}, err
	}
	w.done = true
	sri := w.hasher.Sum()

	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	// Identical content may already be present; either way the stored
	// bytes are the same, so last writer wins is a no-op.
	w.store.blobs[sri.String()] = w.buf.Bytes()
	return sri, nil
}

func (w *memWriteHandle) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}

// Read returns the verified blob for a digest.
func (s *MemoryContentStore) Read(ctx context.Context, sri integrity.Integrity, expectedSize int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateIntegrity(sri); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.blobs[sri.String()]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("content %s: %w", sri, content.ErrContentNotFound)
	}
	if expectedSize >= 0 && int64(len(data)) != expectedSize {
		return nil, fmt.Errorf("content %s: got %d bytes, expected %d: %w",
			sri, len(data), expectedSize, content.ErrSizeMismatch)
	}
	actual, err := integrity.FromData(sri.Algorithm, data)
	if err != nil {
		return nil, err
	}
	if !integrity.Matches(sri, actual) {
		return nil, fmt.Errorf("content %s: recomputed digest %s: %w",
			sri, actual, content.ErrIntegrityMismatch)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Open returns a streaming verifying reader over the stored bytes.
func (s *MemoryContentStore) Open(ctx context.Context, sri integrity.Integrity) (content.ReadHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateIntegrity(sri); err != nil {
		return nil, err
	}
	hasher, err := integrity.NewHasher(sri.Algorithm)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.blobs[sri.String()]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("content %s: %w", sri, content.ErrContentNotFound)
	}
	return &memReadHandle{reader: bytes.NewReader(data), hasher: hasher, expected: sri}, nil
}

type memReadHandle struct {
	reader   *bytes.Reader
	hasher   *integrity.Hasher
	expected integrity.Integrity
}

func (r *memReadHandle) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.hasher.Write(p[:n])
	return n, err
}

func (r *memReadHandle) Close() error {
	return nil
}

func (r *memReadHandle) Verify() error {
	actual := r.hasher.Sum()
	if !integrity.Matches(r.expected, actual) {
		return fmt.Errorf("content %s: recomputed digest %s: %w",
			r.expected, actual, content.ErrIntegrityMismatch)
	}
	return nil
}

// Exists reports presence of a digest.
func (s *MemoryContentStore) Exists(ctx context.Context, sri integrity.Integrity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := content.ValidateIntegrity(sri); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[sri.String()]
	return ok, nil
}

// Remove deletes a blob; idempotent.
func (s *MemoryContentStore) Remove(ctx context.Context, sri integrity.Integrity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateIntegrity(sri); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, sri.String())
	return nil
}

// RemoveAll drops every blob.
func (s *MemoryContentStore) RemoveAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = make(map[string][]byte)
	return nil
}

// Close implements content.ContentStore.
func (s *MemoryContentStore) Close() error {
	return nil
}

var _ content.ContentStore = (*MemoryContentStore)(nil)
