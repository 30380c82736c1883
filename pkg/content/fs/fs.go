// Package fs implements the canonical filesystem content store.
//
// Layout under the cache root:
//
//	<root>/content/<aa>/<bb>/<rest-of-hex-digest>   one file per digest
//	<root>/content/.tmp/<uuid>                      in-flight writes
//
// The two-level shard keeps per-directory fan-out bounded. The temp area
// lives inside the content tree so a commit is always a same-volume
// rename, which is the single atomicity primitive the whole design
// leans on: a blob is either absent or complete, never half-written.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hoardfs/hoard/pkg/content"
	"github.com/hoardfs/hoard/pkg/integrity"
)

const (
	contentDirName = "content"
	tmpDirName     = ".tmp"
	dirPerm        = 0o755
	filePerm       = 0o644
)

// FSContentStore stores blobs as plain files addressed by their digest.
//
// No in-process locks are held: concurrent writers of the same digest
// race harmlessly to an identical final file, and readers never observe
// an in-flight write (it only exists under .tmp until the rename).
// Multiple processes may share the same root.
type FSContentStore struct {
	root string
}

// NewFSContentStore creates the content and temp directories under root
// and returns the store. The root is the cache root; the store owns only
// its content/ subtree.
func NewFSContentStore(ctx context.Context, root string) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &FSContentStore{root: root}
	if err := os.MkdirAll(s.tmpDir(), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create content directories: %w", err)
	}
	return s, nil
}

func (s *FSContentStore) contentDir() string {
	return filepath.Join(s.root, contentDirName)
}

func (s *FSContentStore) tmpDir() string {
	return filepath.Join(s.contentDir(), tmpDirName)
}

// blobPath returns the sharded path for a digest:
// content/<hex[0:2]>/<hex[2:4]>/<hex[4:]>.
func (s *FSContentStore) blobPath(sri integrity.Integrity) string {
	h := sri.Hex()
	return filepath.Join(s.contentDir(), h[0:2], h[2:4], h[4:])
}

// Exists reports whether a blob is present, without reading it.
func (s *FSContentStore) Exists(ctx context.Context, sri integrity.Integrity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := content.ValidateIntegrity(sri); err != nil {
		return false, err
	}
	_, err := os.Stat(s.blobPath(sri))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat content %s: %w", sri, err)
	}
	return true, nil
}

// Remove deletes the blob for a digest. Idempotent: removing an absent
// digest succeeds.
func (s *FSContentStore) Remove(ctx context.Context, sri integrity.Integrity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateIntegrity(sri); err != nil {
		return err
	}
	if err := os.Remove(s.blobPath(sri)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove content %s: %w", sri, err)
	}
	return nil
}

// RemoveAll deletes the entire content tree, temp area included, and
// recreates the empty directories so the store stays usable.
func (s *FSContentStore) RemoveAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.contentDir()); err != nil {
		return fmt.Errorf("failed to clear content tree: %w", err)
	}
	if err := os.MkdirAll(s.tmpDir(), dirPerm); err != nil {
		return fmt.Errorf("failed to recreate content directories: %w", err)
	}
	return nil
}

// Close implements content.ContentStore. The filesystem store holds no
// resources between operations.
func (s *FSContentStore) Close() error {
	return nil
}

var _ content.ContentStore = (*FSContentStore)(nil)
