package cache

import (
	"context"
	"fmt"

	"github.com/hoardfs/hoard/pkg/content"
)

// Reader streams a key's content while re-hashing it. Consume to EOF,
// then call Verify; until Verify succeeds the bytes read are
// unconfirmed.
type Reader struct {
	handle content.ReadHandle
	cache  *Cache

	// size is the entry's recorded length, checked alongside the digest.
	size int64
	read int64
}

// OpenReader starts a streaming read for key. The large-content
// counterpart to Read.
func (c *Cache) OpenReader(ctx context.Context, key string) (*Reader, error) {
	entry, err := c.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	handle, err := c.store.Open(ctx, entry.Integrity)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle, cache: c, size: entry.Size}, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.handle.Read(p)
	r.read += int64(n)
	return n, err
}

// Verify checks the recomputed digest and the byte count against the
// index entry. Only meaningful after the stream is fully consumed.
func (r *Reader) Verify() error {
	if r.size >= 0 && r.read != r.size {
		r.cache.metrics.VerifyFailed()
		return fmt.Errorf("entry records %d bytes but read %d: %w",
			r.size, r.read, content.ErrSizeMismatch)
	}
	if err := r.handle.Verify(); err != nil {
		r.cache.metrics.VerifyFailed()
		return err
	}
	r.cache.metrics.ReadServed(r.read)
	return nil
}

// Close releases the underlying stream.
func (r *Reader) Close() error {
	return r.handle.Close()
}
