// Package content defines the content store contract for hoard.
//
// A content store maps an integrity digest to an immutable blob. Backends
// (filesystem, memory, S3) differ in where bytes live, but all share the
// same guarantees:
//
//   - Content becomes visible under its address only once it is complete.
//     The filesystem backend commits with a single atomic rename; readers
//     either see nothing or the whole blob, never a partial write.
//   - Identical bytes converge to one stored object regardless of how many
//     writers raced to store them (deduplication by digest).
//   - Every read re-hashes the bytes and fails rather than return data
//     that does not match the requested digest.
//
// The store knows nothing about keys; mapping keys to digests is the
// index's job (pkg/index), and composing the two is the cache facade's
// (pkg/cache).
package content

import (
	"context"
	"fmt"
	"io"

	"github.com/hoardfs/hoard/pkg/integrity"
)

// ValidateIntegrity rejects digests that cannot address content: zero
// values, unknown algorithms, or digests whose length does not match
// their algorithm. Stores call this before deriving a path or key from
// the digest, so a hand-built Integrity fails with a typed error rather
// than producing a bogus address.
func ValidateIntegrity(sri integrity.Integrity) error {
	if !sri.Algorithm.Valid() || len(sri.Digest) != sri.Algorithm.Size() {
		return fmt.Errorf("content address %q: %w", sri.String(), integrity.ErrMalformedIntegrity)
	}
	return nil
}

// WriteHandle is an in-flight content write.
//
// Bytes written are hashed incrementally. Nothing is visible in the store
// until Commit returns; a handle that is never committed (crash, Abort)
// leaves at most an orphaned temp object, never a partial blob under a
// content address.
type WriteHandle interface {
	io.Writer

	// Commit finalizes the digest and publishes the blob under it.
	// Committing content that already exists is a success (dedup).
	// On failure the temp object is removed and ErrStoreWrite returned.
	Commit(ctx context.Context) (integrity.Integrity, error)

	// Abort discards the write. Safe to call after a failed Commit;
	// idempotent.
	Abort() error

	// Written returns the number of bytes accepted so far.
	Written() int64
}

// ReadHandle streams a blob while re-hashing it.
//
// Callers that consume the stream must call Verify after reaching EOF;
// until then the bytes read are unconfirmed.
type ReadHandle interface {
	io.ReadCloser

	// Verify compares the recomputed digest against the requested one.
	// Returns ErrIntegrityMismatch on disagreement. Only meaningful once
	// the whole stream has been consumed.
	Verify() error
}

// ContentStore is the storage half of the cache engine.
//
// Implementations must be safe for concurrent use from multiple
// goroutines and, for the filesystem backend, multiple processes sharing
// the same directory.
type ContentStore interface {
	// Writer opens a write handle hashing with the given algorithm.
	Writer(ctx context.Context, algo integrity.Algorithm) (WriteHandle, error)

	// Read returns the whole verified blob. expectedSize >= 0 is checked
	// against the actual byte count (ErrSizeMismatch); pass -1 to skip.
	// A verification failure never returns partial data.
	Read(ctx context.Context, sri integrity.Integrity, expectedSize int64) ([]byte, error)

	// Open returns a streaming, self-verifying reader for the blob.
	Open(ctx context.Context, sri integrity.Integrity) (ReadHandle, error)

	// Exists reports presence without reading content.
	Exists(ctx context.Context, sri integrity.Integrity) (bool, error)

	// Remove deletes the blob. Removing an absent digest is not an error.
	Remove(ctx context.Context, sri integrity.Integrity) error

	// RemoveAll deletes every blob in the store, including in-flight
	// temp objects. Best-effort; not safe against concurrent writers.
	RemoveAll(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
