// Package cache composes a content store and an index into the public
// key/value facade.
//
// The composition rule is strict ordering: content commits before the
// index references it, so an index entry never points at a digest that
// was not fully stored. The failure modes fall out of that ordering: a
// write that fails at the content stage leaves no index entry, and a
// write that stores content but fails the index append leaves valid,
// unreferenced content that a retry can claim.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/hoardfs/hoard/pkg/content"
	contentfs "github.com/hoardfs/hoard/pkg/content/fs"
	"github.com/hoardfs/hoard/pkg/index"
	indexfile "github.com/hoardfs/hoard/pkg/index/file"
	"github.com/hoardfs/hoard/pkg/integrity"
)

// RemoveMode selects how much Remove deletes.
type RemoveMode int

const (
	// RemoveIndexOnly tombstones the key and leaves content in place.
	// The safe default: other keys may reference the same digest and the
	// engine does not reference-count.
	RemoveIndexOnly RemoveMode = iota

	// RemoveContentAndIndex additionally deletes the content blob,
	// unconditionally. Any other key still referencing the digest will
	// read as ErrContentNotFound afterwards.
	RemoveContentAndIndex
)

// WriteOpts tunes a single write. The zero value (and a nil pointer)
// uses the default algorithm, skips the size check, and attaches no
// metadata.
type WriteOpts struct {
	// Algorithm addresses the content. Zero means
	// integrity.DefaultAlgorithm, or the expected Integrity's algorithm
	// when one is given.
	Algorithm integrity.Algorithm

	// Size is the declared content length. When positive, a commit whose
	// byte count disagrees fails with ErrSizeMismatch and stores nothing.
	// Zero or negative skips the check.
	Size int64

	// Integrity is an expected digest. When set, the committed content is
	// compared against it; on disagreement the blob stays stored under
	// its computed address but no index entry is written and the write
	// fails with ErrIntegrityMismatch.
	Integrity integrity.Integrity

	// Metadata is an opaque value stored on the index entry.
	Metadata json.RawMessage

	// Time overrides the entry timestamp (unix milliseconds). Zero means
	// now.
	Time int64
}

// Cache is the facade over one content store and one index.
// Safe for concurrent use whenever its two halves are.
type Cache struct {
	store   content.ContentStore
	index   index.Index
	metrics Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics attaches an operation metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New builds a cache from explicit backends. The cache takes ownership:
// Close closes both.
func New(store content.ContentStore, idx index.Index, opts ...Option) *Cache {
	c := &Cache{store: store, index: idx, metrics: nopMetrics{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open builds a cache on the canonical on-disk layout under root: the
// filesystem content store and the append-only file index sharing one
// directory.
func Open(ctx context.Context, root string, opts ...Option) (*Cache, error) {
	store, err := contentfs.NewFSContentStore(ctx, root)
	if err != nil {
		return nil, err
	}
	idx, err := indexfile.NewFileIndex(ctx, root)
	if err != nil {
		return nil, err
	}
	return New(store, idx, opts...), nil
}

// Write stores data under key and returns the content address.
func (c *Cache) Write(ctx context.Context, key string, data []byte, opts *WriteOpts) (integrity.Integrity, error) {
	w, err := c.OpenWriter(ctx, key, opts)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Abort()
		return integrity.Integrity{}, err
	}
	return w.Commit(ctx)
}

// WriteHash stores data by content address only, without touching the
// index. The original key-less write surface for callers that track
// digests themselves.
func (c *Cache) WriteHash(ctx context.Context, data []byte, opts *WriteOpts) (integrity.Integrity, error) {
	w, err := c.openWriter(ctx, "", true, opts)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Abort()
		return integrity.Integrity{}, err
	}
	return w.Commit(ctx)
}

// Read returns the verified bytes for key.
func (c *Cache) Read(ctx context.Context, key string) ([]byte, error) {
	entry, err := c.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := c.store.Read(ctx, entry.Integrity, entry.Size)
	if err != nil {
		if errors.Is(err, content.ErrIntegrityMismatch) || errors.Is(err, content.ErrSizeMismatch) {
			c.metrics.VerifyFailed()
		}
		return nil, err
	}
	c.metrics.ReadServed(int64(len(data)))
	return data, nil
}

// ReadHash returns the verified bytes for a content address, bypassing
// the index. No size check is applied; only the digest is verified.
func (c *Cache) ReadHash(ctx context.Context, sri integrity.Integrity) ([]byte, error) {
	data, err := c.store.Read(ctx, sri, -1)
	if err != nil {
		if errors.Is(err, content.ErrIntegrityMismatch) {
			c.metrics.VerifyFailed()
		}
		return nil, err
	}
	c.metrics.ReadServed(int64(len(data)))
	return data, nil
}

// ExistsHash reports whether content for the digest is stored, without
// reading or verifying it.
func (c *Cache) ExistsHash(ctx context.Context, sri integrity.Integrity) (bool, error) {
	return c.store.Exists(ctx, sri)
}

// RemoveHash deletes the content for a digest, bypassing the index.
// Idempotent. Keys still referencing the digest are left dangling and
// read as ErrContentNotFound afterwards; the engine does not
// reference-count.
func (c *Cache) RemoveHash(ctx context.Context, sri integrity.Integrity) error {
	return c.store.Remove(ctx, sri)
}

// Metadata returns the current index entry for key without touching
// content, or (nil, nil) when the key is absent. Useful for freshness
// checks that do not need the bytes.
func (c *Cache) Metadata(ctx context.Context, key string) (*index.Entry, error) {
	return c.index.Find(ctx, key)
}

// Remove deletes key according to mode. Idempotent: removing an absent
// key succeeds.
func (c *Cache) Remove(ctx context.Context, key string, mode RemoveMode) error {
	entry, err := c.index.Find(ctx, key)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	if err := c.index.Delete(ctx, key); err != nil {
		return err
	}
	c.metrics.EntryRemoved()
	if mode == RemoveContentAndIndex {
		if err := c.store.Remove(ctx, entry.Integrity); err != nil {
			return err
		}
	}
	return nil
}

// Copy points newKey at key's content. No bytes move; the two keys share
// one blob afterwards.
func (c *Cache) Copy(ctx context.Context, key, newKey string) (integrity.Integrity, error) {
	entry, err := c.lookup(ctx, key)
	if err != nil {
		return integrity.Integrity{}, err
	}
	err = c.index.Insert(ctx, &index.Entry{
		Key:       newKey,
		Integrity: entry.Integrity,
		Size:      entry.Size,
		Metadata:  entry.Metadata,
	})
	if err != nil {
		return integrity.Integrity{}, err
	}
	return entry.Integrity, nil
}

// CopyFile exports key's content to destPath, verifying the bytes on the
// way out. A verification failure removes the destination file.
func (c *Cache) CopyFile(ctx context.Context, key, destPath string) error {
	r, err := c.OpenReader(ctx, key)
	if err != nil {
		return err
	}
	defer r.Close()

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create destination %s: %w", destPath, err)
	}
	_, copyErr := io.Copy(dest, r)
	closeErr := dest.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil {
		copyErr = r.Verify()
	}
	if copyErr != nil {
		_ = os.Remove(destPath)
		return copyErr
	}
	return nil
}

// Clear removes all content and index state. Best-effort: both trees are
// attempted and failures are joined.
func (c *Cache) Clear(ctx context.Context) error {
	return errors.Join(c.store.RemoveAll(ctx), c.index.RemoveAll(ctx))
}

// List lazily yields the current entry for every live key.
func (c *Cache) List(ctx context.Context) iter.Seq2[*index.Entry, error] {
	return c.index.List(ctx)
}

// Close closes both backends.
func (c *Cache) Close() error {
	return errors.Join(c.store.Close(), c.index.Close())
}

// lookup resolves key to its current entry, mapping absence to
// ErrEntryNotFound.
func (c *Cache) lookup(ctx context.Context, key string) (*index.Entry, error) {
	entry, err := c.index.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		c.metrics.Miss()
		return nil, fmt.Errorf("no entry for key %q: %w", key, ErrEntryNotFound)
	}
	return entry, nil
}
