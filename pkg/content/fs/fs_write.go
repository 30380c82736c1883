package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hoardfs/hoard/pkg/content"
	"github.com/hoardfs/hoard/pkg/integrity"
)

// Writer opens a write handle backed by a temp file in the store's .tmp
// area. Bytes are hashed as they are written; the blob is published by a
// single atomic rename at Commit.
func (s *FSContentStore) Writer(ctx context.Context, algo integrity.Algorithm) (content.WriteHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hasher, err := integrity.NewHasher(algo)
	if err != nil {
		return nil, err
	}
	tmpPath := filepath.Join(s.tmpDir(), uuid.NewString())
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %v: %w", err, content.ErrStoreWrite)
	}
	return &fsWriteHandle{store: s, file: file, tmpPath: tmpPath, hasher: hasher}, nil
}

type fsWriteHandle struct {
	store   *FSContentStore
	file    *os.File
	tmpPath string
	hasher  *integrity.Hasher
	written int64
	done    bool
}

func (w *fsWriteHandle) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.hasher.Write(p[:n])
	w.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("failed to write content: %w", err)
	}
	return n, nil
}

func (w *fsWriteHandle) Written() int64 {
	return w.written
}

// Commit finalizes the digest and renames the temp file into the sharded
// destination. If the destination already exists the rename simply
// replaces an identical file, so concurrent writers of the same bytes
// both succeed; that is the deduplication mechanism. Any failure removes
// the temp file and surfaces as ErrStoreWrite, leaving nothing visible
// under the content address.
func (w *fsWriteHandle) Commit(ctx context.Context) (integrity.Integrity, error) {
	if w.done {
		return integrity.Integrity{}, fmt.Errorf("commit on closed write handle: %w", content.ErrStoreWrite)
	}
	if err := ctx.Err(); err != nil {
		_ = w.Abort()
		return integrity.Integrity{}, err
	}
	if err := w.file.Close(); err != nil {
		_ = w.Abort()
		return integrity.Integrity{}, fmt.Errorf("failed to close temp file: %v: %w", err, content.ErrStoreWrite)
	}
	w.done = true

	sri := w.hasher.Sum()
	dest := w.store.blobPath(sri)
	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		_ = os.Remove(w.tmpPath)
		return integrity.Integrity{}, fmt.Errorf("failed to create shard directory for %s: %v: %w", sri, err, content.ErrStoreWrite)
	}
	if err := os.Rename(w.tmpPath, dest); err != nil {
		_ = os.Remove(w.tmpPath)
		// A concurrent writer of the same content may have won the
		// rename. If the destination exists the commit still succeeded.
		if _, statErr := os.Stat(dest); statErr == nil {
			return sri, nil
		}
		return integrity.Integrity{}, fmt.Errorf("failed to commit content %s: %v: %w", sri, err, content.ErrStoreWrite)
	}
	return sri, nil
}

// Abort discards the write and its temp file. Idempotent.
func (w *fsWriteHandle) Abort() error {
	if !w.done {
		_ = w.file.Close()
		w.done = true
	}
	if err := os.Remove(w.tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp file: %w", err)
	}
	return nil
}
