package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoardfs/hoard/pkg/content"
	"github.com/hoardfs/hoard/pkg/integrity"
)

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	root := t.TempDir()
	c, err := Open(context.Background(), root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, root
}

// blobFiles returns every committed blob path under the content tree,
// excluding the temp area.
func blobFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(filepath.Join(root, "content"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, path)
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestWriteReadRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	data := []byte("some cached value")
	meta := json.RawMessage(`{"url":"https://example.com/pkg.tgz"}`)
	sri, err := c.Write(ctx, "my-key", data, &WriteOpts{Metadata: meta})
	require.NoError(t, err)
	assert.Equal(t, integrity.SHA256, sri.Algorithm)

	got, err := c.Read(ctx, "my-key")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	entry, err := c.Metadata(ctx, "my-key")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, sri.Equal(entry.Integrity))
	assert.Equal(t, int64(len(data)), entry.Size)
	assert.JSONEq(t, string(meta), string(entry.Metadata))
}

/// The empty string is an ordinary key: it hashes to a bucket like any
// other and must round-trip.
func TestEmptyKeyRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	data := []byte("keyed by nothing")
	sri, err := c.Write(ctx, "", data, nil)
	require.NoError(t, err)

	got, err := c.Read(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	entry, err := c.Metadata(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "", entry.Key)
	assert.True(t, sri.Equal(entry.Integrity))

	keys := 0
	for entry, err := range c.List(ctx) {
		require.NoError(t, err)
		assert.Equal(t, "", entry.Key)
		keys++
	}
	assert.Equal(t, 1, keys)
}

// The canonical worked example: "hello" under sha256 lands at a known
// address and a known sharded path.
func TestKnownDigestAndLayout(t *testing.T) {
	c, root := newTestCache(t)
	ctx := context.Background()

	sri, err := c.Write(ctx, "greeting", []byte("hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, "sha256-LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=", sri.String())

	blob := filepath.Join(root, "content", "2c", "f2",
		"4dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	data, err := os.ReadFile(blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestMissingKey(t *testing.T) {
	c, _ := newTestCache(t)

	_, err := c.Read(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	entry, err := c.Metadata(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestDeduplication(t *testing.T) {
	c, root := newTestCache(t)
	ctx := context.Background()

	data := []byte("shared payload")
	sri1, err := c.Write(ctx, "key-one", data, nil)
	require.NoError(t, err)
	sri2, err := c.Write(ctx, "key-two", data, nil)
	require.NoError(t, err)

	assert.True(t, sri1.Equal(sri2))
	assert.Len(t, blobFiles(t, root), 1, "identical bytes converge to one blob")

	got, err := c.Read(ctx, "key-two")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCorruptionDetected(t *testing.T) {
	c, root := newTestCache(t)
	ctx := context.Background()

	_, err := c.Write(ctx, "k", []byte("pristine bytes"), nil)
	require.NoError(t, err)

	blobs := blobFiles(t, root)
	require.Len(t, blobs, 1)
	raw, err := os.ReadFile(blobs[0])
	require.NoError(t, err)
	raw[0] ^= 0x01
	require.NoError(t, os.WriteFile(blobs[0], raw, 0o644))

	_, err = c.Read(ctx, "k")
	assert.ErrorIs(t, err, content.ErrIntegrityMismatch)

	// The streaming path reports the same failure via Verify.
	r, err := c.OpenReader(ctx, "k")
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, r)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Verify(), content.ErrIntegrityMismatch)
	require.NoError(t, r.Close())
}

func TestRemoveIndexOnly(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	sri, err := c.Write(ctx, "k", []byte("data"), nil)
	require.NoError(t, err)
	require.NoError(t, c.Remove(ctx, "k", RemoveIndexOnly))

	_, err = c.Read(ctx, "k")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	// Content survives and stays addressable by digest.
	got, err := c.ReadHash(ctx, sri)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	// Removing an absent key is a no-op.
	require.NoError(t, c.Remove(ctx, "k", RemoveIndexOnly))
	require.NoError(t, c.Remove(ctx, "never existed", RemoveContentAndIndex))
}

func TestRemoveContentAndIndex(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	sri, err := c.Write(ctx, "k", []byte("data"), nil)
	require.NoError(t, err)
	require.NoError(t, c.Remove(ctx, "k", RemoveContentAndIndex))

	exists, err := c.ExistsHash(ctx, sri)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriteAfterRemoveResurrectsKey(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.Write(ctx, "k", []byte("first"), nil)
	require.NoError(t, err)
	require.NoError(t, c.Remove(ctx, "k", RemoveIndexOnly))
	_, err = c.Write(ctx, "k", []byte("second"), nil)
	require.NoError(t, err)

	got, err := c.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestCopySharesContent(t *testing.T) {
	c, root := newTestCache(t)
	ctx := context.Background()

	original, err := c.Write(ctx, "src", []byte("payload"), nil)
	require.NoError(t, err)

	copied, err := c.Copy(ctx, "src", "dst")
	require.NoError(t, err)
	assert.True(t, original.Equal(copied))
	assert.Len(t, blobFiles(t, root), 1)

	got, err := c.Read(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	_, err = c.Copy(ctx, "absent", "whatever")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

// No reference counting: deleting content under one key leaves the
// other key's entry dangling, surfaced at read time.
func TestDanglingEntryAfterContentRemoval(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.Write(ctx, "src", []byte("payload"), nil)
	require.NoError(t, err)
	_, err = c.Copy(ctx, "src", "dst")
	require.NoError(t, err)
	require.NoError(t, c.Remove(ctx, "src", RemoveContentAndIndex))

	_, err = c.Read(ctx, "dst")
	assert.ErrorIs(t, err, content.ErrContentNotFound)
}

func TestExpectedIntegrityMismatch(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	wrong, err := integrity.FromData(integrity.SHA256, []byte("different content"))
	require.NoError(t, err)

	_, err = c.Write(ctx, "k", []byte("actual content"), &WriteOpts{Integrity: wrong})
	assert.ErrorIs(t, err, content.ErrIntegrityMismatch)

	// The blob is stored under its real address, but the key got no entry.
	actual, err := integrity.FromData(integrity.SHA256, []byte("actual content"))
	require.NoError(t, err)
	exists, err := c.ExistsHash(ctx, actual)
	require.NoError(t, err)
	assert.True(t, exists)

	entry, err := c.Metadata(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestExpectedIntegrityMatch(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	expected, err := integrity.FromData(integrity.SHA512, []byte("payload"))
	require.NoError(t, err)

	// Expectation under sha512 while storing under sha256: both digests
	// come from one pass over the stream.
	sri, err := c.Write(ctx, "k", []byte("payload"), &WriteOpts{
		Algorithm: integrity.SHA256,
		Integrity: expected,
	})
	require.NoError(t, err)
	assert.Equal(t, integrity.SHA256, sri.Algorithm)

	got, err := c.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestDeclaredSizeMismatch(t *testing.T) {
	c, root := newTestCache(t)
	ctx := context.Background()

	_, err := c.Write(ctx, "k", []byte("only ten b"), &WriteOpts{Size: 999})
	assert.ErrorIs(t, err, content.ErrSizeMismatch)

	// Nothing was published and the key has no entry.
	assert.Empty(t, blobFiles(t, root))
	entry, err := c.Metadata(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestDeclaredSizeMatch(t *testing.T) {
	c, _ := newTestCache(t)

	data := []byte("exactly 20 bytes....")
	_, err := c.Write(context.Background(), "k", data, &WriteOpts{Size: int64(len(data))})
	require.NoError(t, err)
}

func TestStreamingWriter(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	w, err := c.OpenWriter(ctx, "streamed", nil)
	require.NoError(t, err)
	var want bytes.Buffer
	for i := 0; i < 100; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, 1024)
		_, err := w.Write(chunk)
		require.NoError(t, err)
		want.Write(chunk)
	}
	assert.Equal(t, int64(want.Len()), w.Written())
	sri, err := w.Commit(ctx)
	require.NoError(t, err)

	got, err := c.ReadHash(ctx, sri)
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), got)
}

func TestWriterAbort(t *testing.T) {
	c, root := newTestCache(t)
	ctx := context.Background()

	w, err := c.OpenWriter(ctx, "aborted", nil)
	require.NoError(t, err)
	_, err = w.Write([]byte("discard me"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	assert.Empty(t, blobFiles(t, root))
	entry, err := c.Metadata(ctx, "aborted")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestHashOnlySurface(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	sri, err := c.WriteHash(ctx, []byte("anonymous blob"), nil)
	require.NoError(t, err)

	exists, err := c.ExistsHash(ctx, sri)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := c.ReadHash(ctx, sri)
	require.NoError(t, err)
	assert.Equal(t, []byte("anonymous blob"), got)

	// Hash-only writes never create keys.
	count := 0
	for _, err := range c.List(ctx) {
		require.NoError(t, err)
		count++
	}
	assert.Zero(t, count)
}

func TestRemoveHash(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	sri, err := c.WriteHash(ctx, []byte("transient blob"), nil)
	require.NoError(t, err)

	require.NoError(t, c.RemoveHash(ctx, sri))

	exists, err := c.ExistsHash(ctx, sri)
	require.NoError(t, err)
	assert.False(t, exists)

	// Idempotent, like the store it delegates to.
	require.NoError(t, c.RemoveHash(ctx, sri))
}

func TestCopyFile(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	data := []byte("exported bytes")
	_, err := c.Write(ctx, "k", data, nil)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, c.CopyFile(ctx, "k", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	err = c.CopyFile(ctx, "absent", dest)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestCopyFileRemovesDestOnCorruption(t *testing.T) {
	c, root := newTestCache(t)
	ctx := context.Background()

	_, err := c.Write(ctx, "k", []byte("will be damaged"), nil)
	require.NoError(t, err)
	blobs := blobFiles(t, root)
	require.Len(t, blobs, 1)
	raw, err := os.ReadFile(blobs[0])
	require.NoError(t, err)
	raw[2] ^= 0xFF
	require.NoError(t, os.WriteFile(blobs[0], raw, 0o644))

	dest := filepath.Join(t.TempDir(), "out.bin")
	err = c.CopyFile(ctx, "k", dest)
	assert.ErrorIs(t, err, content.ErrIntegrityMismatch)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "a failed export must not leave partial output")
}

func TestList(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.Write(ctx, "a", []byte("1"), nil)
	require.NoError(t, err)
	_, err = c.Write(ctx, "b", []byte("2"), nil)
	require.NoError(t, err)
	require.NoError(t, c.Remove(ctx, "b", RemoveIndexOnly))

	keys := map[string]bool{}
	for entry, err := range c.List(ctx) {
		require.NoError(t, err)
		keys[entry.Key] = true
	}
	assert.Equal(t, map[string]bool{"a": true}, keys)
}

func TestClear(t *testing.T) {
	c, root := newTestCache(t)
	ctx := context.Background()

	_, err := c.Write(ctx, "a", []byte("1"), nil)
	require.NoError(t, err)
	_, err = c.Write(ctx, "b", []byte("2"), nil)
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx))
	assert.Empty(t, blobFiles(t, root))
	_, err = c.Read(ctx, "a")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	// The cache stays usable after a clear.
	_, err = c.Write(ctx, "c", []byte("3"), nil)
	require.NoError(t, err)
	got, err := c.Read(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), got)
}
