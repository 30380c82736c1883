package content

import "errors"

// Standard content store errors.
//
// Implementations wrap these with the offending digest or path so callers
// can both dispatch on the class (errors.Is) and log something useful:
//
//	data, err := store.Read(ctx, sri, -1)
//	if errors.Is(err, content.ErrContentNotFound) { ... }

var (
	// ErrContentNotFound indicates no blob exists for the digest.
	// Expected in normal operation (a key may outlive its content).
	ErrContentNotFound = errors.New("content not found")

	// ErrStoreWrite indicates an I/O failure while writing or committing
	// content (disk full, permissions, backend outage). Fatal to that
	// write only; no partial blob is left under a content address.
	ErrStoreWrite = errors.New("content store write failed")

	// ErrIntegrityMismatch indicates the recomputed digest disagrees with
	// the expected one. Corruption or tampering; never silently swallowed
	// and never accompanied by partial data.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrSizeMismatch indicates the byte count disagrees with the
	// recorded or declared size. Same severity class as
	// ErrIntegrityMismatch.
	ErrSizeMismatch = errors.New("size mismatch")
)
