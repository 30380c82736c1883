package cache

import (
	"context"
	"fmt"

	"github.com/hoardfs/hoard/pkg/content"
	"github.com/hoardfs/hoard/pkg/index"
	"github.com/hoardfs/hoard/pkg/integrity"
)

// Writer is a streaming cache write. Bytes are hashed and spooled as
// they arrive; Commit publishes the content and, for keyed writes,
// appends the index entry. Nothing is observable until Commit returns.
type Writer struct {
	cache    *Cache
	key      string
	hashOnly bool // set by WriteHash: commit content, skip the index
	opts     WriteOpts
	handle   content.WriteHandle

	// expectHasher re-hashes the stream under the expected digest's
	// algorithm when it differs from the storage algorithm, so the
	// expectation can be checked in the same pass.
	expectHasher *integrity.Hasher
}

// OpenWriter starts a streaming write for key. The large-content
// counterpart to Write: callers stream with io.Writer and finish with
// Commit, or discard with Abort.
func (c *Cache) OpenWriter(ctx context.Context, key string, opts *WriteOpts) (*Writer, error) {
	return c.openWriter(ctx, key, false, opts)
}

func (c *Cache) openWriter(ctx context.Context, key string, hashOnly bool, opts *WriteOpts) (*Writer, error) {
	var o WriteOpts
	if opts != nil {
		o = *opts
	}
	algo := o.Algorithm
	if algo == "" {
		if !o.Integrity.IsZero() {
			algo = o.Integrity.Algorithm
		} else {
			algo = integrity.DefaultAlgorithm
		}
	}

	handle, err := c.store.Writer(ctx, algo)
	if err != nil {
		return nil, err
	}
	w := &Writer{cache: c, key: key, hashOnly: hashOnly, opts: o, handle: handle}
	if !o.Integrity.IsZero() && o.Integrity.Algorithm != algo {
		w.expectHasher, err = integrity.NewHasher(o.Integrity.Algorithm)
		if err != nil {
			_ = handle.Abort()
			return nil, err
		}
	}
	return w, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.handle.Write(p)
	if err != nil {
		return n, err
	}
	if w.expectHasher != nil {
		w.expectHasher.Write(p[:n])
	}
	return n, nil
}

// Written returns the number of bytes accepted so far.
func (w *Writer) Written() int64 {
	return w.handle.Written()
}

// Commit finalizes the write and returns the content address.
//
// Check order matters: a declared-size mismatch aborts before anything
// is published; an expected-digest mismatch is only detectable after the
// content commit, so the blob stays stored under its computed address
// while the key gets no entry.
func (w *Writer) Commit(ctx context.Context) (integrity.Integrity, error) {
	if w.opts.Size > 0 && w.handle.Written() != w.opts.Size {
		written := w.handle.Written()
		_ = w.handle.Abort()
		w.cache.metrics.VerifyFailed()
		return integrity.Integrity{}, fmt.Errorf(
			"declared size %d but wrote %d bytes: %w",
			w.opts.Size, written, content.ErrSizeMismatch)
	}

	sri, err := w.handle.Commit(ctx)
	if err != nil {
		return integrity.Integrity{}, err
	}

	if !w.opts.Integrity.IsZero() {
		actual := sri
		if w.expectHasher != nil {
			actual = w.expectHasher.Sum()
		}
		if !integrity.Matches(w.opts.Integrity, actual) {
			w.cache.metrics.VerifyFailed()
			return integrity.Integrity{}, fmt.Errorf(
				"content hashed to %s, expected %s: %w",
				actual, w.opts.Integrity, content.ErrIntegrityMismatch)
		}
	}

	if !w.hashOnly {
		err := w.cache.index.Insert(ctx, &index.Entry{
			Key:       w.key,
			Integrity: sri,
			Size:      w.handle.Written(),
			Time:      w.opts.Time,
			Metadata:  w.opts.Metadata,
		})
		if err != nil {
			// Content is already stored and valid; only the key mapping
			// failed. Retrying the write reuses the blob.
			return integrity.Integrity{}, fmt.Errorf("content stored as %s but index append failed: %w", sri, err)
		}
	}
	w.cache.metrics.WriteCommitted(w.handle.Written())
	return sri, nil
}

// Abort discards the write. Idempotent; safe after a failed Commit.
func (w *Writer) Abort() error {
	return w.handle.Abort()
}
