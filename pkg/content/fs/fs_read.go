package fs

import (
	"context"
	"fmt"
	"os"

	"github.com/hoardfs/hoard/pkg/content"
	"github.com/hoardfs/hoard/pkg/integrity"
)

// Read returns the whole blob for a digest after re-verifying it.
//
// The file is read fully, re-hashed, and compared against the requested
// digest before a single byte is returned; silent corruption (bit rot,
// filesystem bugs, manual tampering) surfaces as ErrIntegrityMismatch,
// never as corrupted data. expectedSize >= 0 is additionally checked
// against the byte count.
func (s *FSContentStore) Read(ctx context.Context, sri integrity.Integrity, expectedSize int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateIntegrity(sri); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.blobPath(sri))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("content %s: %w", sri, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to read content %s: %w", sri, err)
	}
	if expectedSize >= 0 && int64(len(data)) != expectedSize {
		return nil, fmt.Errorf("content %s: got %d bytes, expected %d: %w",
			sri, len(data), expectedSize, content.ErrSizeMismatch)
	}
	actual, err := integrity.FromData(sri.Algorithm, data)
	if err != nil {
		return nil, err
	}
	if !integrity.Matches(sri, actual) {
		return nil, fmt.Errorf("content %s: recomputed digest %s: %w",
			sri, actual, content.ErrIntegrityMismatch)
	}
	return data, nil
}

// Open returns a streaming reader that re-hashes as it goes. The caller
// must drain the stream and then call Verify.
func (s *FSContentStore) Open(ctx context.Context, sri integrity.Integrity) (content.ReadHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateIntegrity(sri); err != nil {
		return nil, err
	}
	hasher, err := integrity.NewHasher(sri.Algorithm)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(s.blobPath(sri))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("content %s: %w", sri, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to open content %s: %w", sri, err)
	}
	return &fsReadHandle{file: file, hasher: hasher, expected: sri}, nil
}

type fsReadHandle struct {
	file     *os.File
	hasher   *integrity.Hasher
	expected integrity.Integrity
}

func (r *fsReadHandle) Read(p []byte) (int, error) {
	n, err := r.file.Read(p)
	r.hasher.Write(p[:n])
	return n, err
}

func (r *fsReadHandle) Close() error {
	return r.file.Close()
}

// Verify compares the digest of everything read so far against the
// requested one. Call after EOF.
func (r *fsReadHandle) Verify() error {
	actual := r.hasher.Sum()
	if !integrity.Matches(r.expected, actual) {
		return fmt.Errorf("content %s: recomputed digest %s: %w",
			r.expected, actual, content.ErrIntegrityMismatch)
	}
	return nil
}
