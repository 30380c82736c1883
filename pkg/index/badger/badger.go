// Package badger implements the index on an embedded BadgerDB.
//
// An alternative to the append-only file log for single-process caches
// that want faster lookups over large key sets. Crash tolerance is
// delegated to Badger's write-ahead log instead of per-line checksums.
// A tombstone is stored as the key's current value, mirroring the file
// log; superseded history lives in Badger's LSM tree rather than in an
// append-only bucket.
//
// Entries are stored as JSON values under the raw key, the same
// debuggability-over-density trade the rest of the engine makes for its
// on-disk formats.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/hoardfs/hoard/pkg/index"
)

// BadgerIndex implements index.Index on a Badger database. Safe for
// concurrent use within one process; unlike the file backend it must not
// be shared across processes (Badger holds a directory lock).
type BadgerIndex struct {
	db *badgerdb.DB
}

// BadgerIndexConfig configures the Badger backend.
type BadgerIndexConfig struct {
	// Path is the database directory (required).
	Path string

	// InMemory runs Badger without touching disk; for tests.
	InMemory bool
}

// NewBadgerIndex opens (creating if needed) the database.
func NewBadgerIndex(ctx context.Context, cfg BadgerIndexConfig) (*BadgerIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger index: path is required")
	}
	opts := badgerdb.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger index at %q: %w", cfg.Path, err)
	}
	return &BadgerIndex{db: db}, nil
}

// Insert stores the entry as the key's current value.
func (idx *BadgerIndex) Insert(ctx context.Context, entry *index.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.Time == 0 {
		entry.Time = index.Now()
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize index entry: %w", err)
	}
	err = idx.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(entry.Key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to insert index entry for key %q: %w", entry.Key, err)
	}
	return nil
}

// Find returns the current entry for key, or (nil, nil) when absent or
// tombstoned.
func (idx *BadgerIndex) Find(ctx context.Context, key string) (*index.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entry *index.Entry
	err := idx.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			var e index.Entry
			if err := json.Unmarshal(value, &e); err != nil {
				return fmt.Errorf("failed to deserialize index entry for key %q: %w", key, err)
			}
			entry = &e
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up key %q: %w", key, err)
	}
	if entry.Tombstone() {
		return nil, nil
	}
	return entry, nil
}

// Delete records a tombstone for the key; Badger keeps superseded
// versions in its own log, so this is a plain overwrite.
func (idx *BadgerIndex) Delete(ctx context.Context, key string) error {
	return idx.Insert(ctx, &index.Entry{Key: key})
}

// List lazily yields every current non-tombstoned entry.
func (idx *BadgerIndex) List(ctx context.Context) iter.Seq2[*index.Entry, error] {
	return func(yield func(*index.Entry, error) bool) {
		err := idx.db.View(func(txn *badgerdb.Txn) error {
			opts := badgerdb.DefaultIteratorOptions
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				var entry index.Entry
				err := it.Item().Value(func(value []byte) error {
					return json.Unmarshal(value, &entry)
				})
				if err != nil {
					// Skip undecodable values, matching the file
					// backend's treatment of invalid lines.
					continue
				}
				if entry.Tombstone() {
					continue
				}
				if !yield(&entry, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(nil, fmt.Errorf("failed to enumerate index: %w", err))
		}
	}
}

// RemoveAll drops every key.
func (idx *BadgerIndex) RemoveAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := idx.db.DropAll(); err != nil {
		return fmt.Errorf("failed to clear badger index: %w", err)
	}
	return nil
}

// Close closes the database. Required for Badger to flush its WAL.
func (idx *BadgerIndex) Close() error {
	return idx.db.Close()
}

var _ index.Index = (*BadgerIndex)(nil)
