// Package index defines the key index contract for hoard.
//
// The index maps arbitrary keys to content digests plus metadata. The
// canonical backend (pkg/index/file) is an append-only, crash-tolerant
// log; pkg/index/badger offers an embedded-KV alternative with the same
// contract. The index never touches content: a key may point at a digest
// whose blob has been removed, and content may exist with no key at all.
package index

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	"github.com/hoardfs/hoard/pkg/integrity"
)

// Entry is one key-to-digest mapping.
//
// Metadata is an opaque caller-supplied JSON value; the engine stores and
// returns it without interpreting it. A zero Integrity marks a tombstone:
// the key is logically deleted until a later non-tombstone entry
// supersedes it.
type Entry struct {
	// Key is the arbitrary cache key.
	Key string `json:"key"`

	// Integrity is the content address the key points at. Zero on
	// tombstones.
	Integrity integrity.Integrity `json:"integrity"`

	// Size is the expected content length in bytes, checked at read time.
	Size int64 `json:"size"`

	// Time is the creation timestamp in unix milliseconds.
	Time int64 `json:"time"`

	// Metadata is an opaque caller-supplied value, passed through
	// unexamined.
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Tombstone reports whether the entry marks a logical deletion.
func (e *Entry) Tombstone() bool {
	return e.Integrity.IsZero()
}

// Now returns the current time in the index's unix-millisecond convention.
func Now() int64 {
	return time.Now().UnixMilli()
}

// Index is the key-lookup half of the cache engine.
//
// Implementations must be safe for concurrent use; the file backend is
// additionally safe across processes sharing one directory.
type Index interface {
	// Insert records an entry for entry.Key. A zero entry.Time is filled
	// with the current time. Entries are never edited in place; a later
	// insert for the same key supersedes earlier ones.
	Insert(ctx context.Context, entry *Entry) error

	// Find returns the latest valid entry for key, or (nil, nil) when the
	// key is absent or tombstoned. Structurally invalid log lines (crash
	// artifacts) are skipped silently, never surfaced.
	Find(ctx context.Context, key string) (*Entry, error)

	// Delete records a tombstone for key. Logical delete only: history
	// stays on disk until external compaction.
	Delete(ctx context.Context, key string) error

	// List lazily yields the latest valid non-tombstoned entry per key.
	// A fresh call re-derives state from disk; entries inserted during
	// enumeration may or may not be observed.
	List(ctx context.Context) iter.Seq2[*Entry, error]

	// RemoveAll deletes the whole index. Best-effort.
	RemoveAll(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
