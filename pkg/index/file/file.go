// Package file implements the canonical append-only index backend.
//
// Layout under the cache root:
//
//	<root>/index/<aa>/<bb>/<rest-of-hex>   one bucket file per key hash
//
// A bucket is an append-only log: one line per entry, each line carrying
// a checksum of its own payload. Appends are a single write to a file
// opened in append mode, so concurrent writers (threads or processes)
// never interleave bytes within a line. Crash tolerance falls out of the
// format: a process killed mid-append leaves a trailing partial line that
// fails its checksum and is skipped on the next scan. No compaction is
// performed here; history accumulates until compacted externally.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/hoardfs/hoard/pkg/index"
)

const (
	indexDirName = "index"
	dirPerm      = 0o755
	filePerm     = 0o644
)

// FileIndex is the append-only log index. The zero coordination design
// matches the content store: all correctness flows from filesystem
// append atomicity plus per-line checksums.
type FileIndex struct {
	root string
}

// NewFileIndex creates the index directory under root and returns the
// index. The root is the cache root; the index owns only its index/
// subtree.
func NewFileIndex(ctx context.Context, root string) (*FileIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := &FileIndex{root: root}
	if err := os.MkdirAll(idx.indexDir(), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	return idx, nil
}

func (idx *FileIndex) indexDir() string {
	return filepath.Join(idx.root, indexDirName)
}

// bucketPath returns the sharded bucket file for a key. Buckets are
// addressed by the hash of the key, not its content, so distinct keys can
// collide into one bucket; scans filter by exact key.
func (idx *FileIndex) bucketPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(idx.indexDir(), h[0:2], h[2:4], h[4:])
}

// formatLine serializes an entry as "<checksum>\t<json>\n". The checksum
// is the hex sha256 of the JSON payload and is what lets a scan tell a
// complete line from a truncated or bit-flipped one.
func formatLine(entry *index.Entry) ([]byte, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize index entry: %w", err)
	}
	sum := sha256.Sum256(payload)
	line := make([]byte, 0, len(payload)+sha256.Size*2+2)
	line = append(line, hex.EncodeToString(sum[:])...)
	line = append(line, '\t')
	line = append(line, payload...)
	line = append(line, '\n')
	return line, nil
}

// parseLine decodes one log line, returning nil for anything structurally
// invalid: missing separator, checksum disagreement, or JSON that does
// not parse. Invalid lines are expected crash artifacts, not errors.
func parseLine(line string) *index.Entry {
	checksum, payload, ok := strings.Cut(line, "\t")
	if !ok {
		return nil
	}
	sum := sha256.Sum256([]byte(payload))
	if checksum != hex.EncodeToString(sum[:]) {
		return nil
	}
	var entry index.Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil
	}
	return &entry
}

// Insert appends one entry line to the key's bucket. The whole line goes
// through a single write on an O_APPEND descriptor; that is the atomic
// append discipline the crash-tolerance claims rest on.
func (idx *FileIndex) Insert(ctx context.Context, entry *index.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.Time == 0 {
		entry.Time = index.Now()
	}
	line, err := formatLine(entry)
	if err != nil {
		return err
	}

	bucket := idx.bucketPath(entry.Key)
	if err := os.MkdirAll(filepath.Dir(bucket), dirPerm); err != nil {
		return fmt.Errorf("failed to create bucket directory for key %q: %w", entry.Key, err)
	}
	f, err := os.OpenFile(bucket, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open bucket for key %q: %w", entry.Key, err)
	}
	_, writeErr := f.Write(line)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to append index entry for key %q: %w", entry.Key, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close bucket for key %q: %w", entry.Key, closeErr)
	}
	return nil
}

// Find scans the key's bucket and returns the last structurally valid
// entry whose key matches exactly, or (nil, nil) when the key is absent
// or its latest entry is a tombstone.
func (idx *FileIndex) Find(ctx context.Context, key string) (*index.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(idx.bucketPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read bucket for key %q: %w", key, err)
	}

	var latest *index.Entry
	for line := range strings.Lines(string(data)) {
		entry := parseLine(strings.TrimSuffix(line, "\n"))
		if entry == nil || entry.Key != key {
			continue
		}
		latest = entry
	}
	if latest == nil || latest.Tombstone() {
		return nil, nil
	}
	return latest, nil
}

// Delete appends a tombstone for the key.
func (idx *FileIndex) Delete(ctx context.Context, key string) error {
	return idx.Insert(ctx, &index.Entry{Key: key})
}

// List walks every bucket and yields the latest valid non-tombstoned
// entry per key. Lazy: buckets are read as the consumer advances, so the
// result is snapshot-ish, not transactional.
func (idx *FileIndex) List(ctx context.Context) iter.Seq2[*index.Entry, error] {
	return func(yield func(*index.Entry, error) bool) {
		walkErr := filepath.WalkDir(idx.indexDir(), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				return nil
			}
			latest, bucketErr := listBucket(path)
			if bucketErr != nil {
				if !yield(nil, bucketErr) {
					return errStopIteration
				}
				return nil
			}
			for _, entry := range latest {
				if entry.Tombstone() {
					continue
				}
				if !yield(entry, nil) {
					return errStopIteration
				}
			}
			return nil
		})
		if walkErr != nil && !errors.Is(walkErr, errStopIteration) {
			yield(nil, fmt.Errorf("failed to walk index tree: %w", walkErr))
		}
	}
}

// errStopIteration aborts a WalkDir once the consumer stops taking
// values.
var errStopIteration = errors.New("stop iteration")

// RemoveAll deletes the whole index tree and recreates the empty root.
func (idx *FileIndex) RemoveAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(idx.indexDir()); err != nil {
		return fmt.Errorf("failed to clear index tree: %w", err)
	}
	if err := os.MkdirAll(idx.indexDir(), dirPerm); err != nil {
		return fmt.Errorf("failed to recreate index directory: %w", err)
	}
	return nil
}

// Close implements index.Index. The file index holds no resources
// between operations.
func (idx *FileIndex) Close() error {
	return nil
}

var _ index.Index = (*FileIndex)(nil)

// listBucket reduces one bucket file to its latest entry per key.
func listBucket(path string) (map[string]*index.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bucket %s: %w", path, err)
	}
	latest := make(map[string]*index.Entry)
	for line := range strings.Lines(string(data)) {
		entry := parseLine(strings.TrimSuffix(line, "\n"))
		if entry == nil {
			continue
		}
		latest[entry.Key] = entry
	}
	return latest, nil
}
