package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoardfs/hoard/pkg/content"
	contenttesting "github.com/hoardfs/hoard/pkg/content/testing"
	"github.com/hoardfs/hoard/pkg/integrity"
)

func TestFSContentStoreSuite(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.ContentStore {
			store, err := NewFSContentStore(context.Background(), t.TempDir())
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}

func newStore(t *testing.T) (*FSContentStore, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewFSContentStore(context.Background(), root)
	require.NoError(t, err)
	return store, root
}

func writeBlob(t *testing.T, store *FSContentStore, data []byte) integrity.Integrity {
	t.Helper()
	ctx := context.Background()
	w, err := store.Writer(ctx, integrity.SHA256)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	sri, err := w.Commit(ctx)
	require.NoError(t, err)
	return sri
}

func TestShardedLayout(t *testing.T) {
	store, root := newStore(t)
	sri := writeBlob(t, store, []byte("hello"))

	h := sri.Hex()
	want := filepath.Join(root, "content", h[0:2], h[2:4], h[4:])
	data, err := os.ReadFile(want)
	require.NoError(t, err, "blob must live at the sharded digest path")
	assert.Equal(t, []byte("hello"), data)
}

func TestCorruptionDetected(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	sri := writeBlob(t, store, []byte("pristine bytes"))

	// Flip one bit in the committed file.
	path := store.blobPath(sri)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = store.Read(ctx, sri, -1)
	assert.ErrorIs(t, err, content.ErrIntegrityMismatch)

	handle, err := store.Open(ctx, sri)
	require.NoError(t, err)
	buf := make([]byte, 64)
	for {
		if _, readErr := handle.Read(buf); readErr != nil {
			break
		}
	}
	assert.ErrorIs(t, handle.Verify(), content.ErrIntegrityMismatch)
	require.NoError(t, handle.Close())
}

func TestCommitIsIdempotent(t *testing.T) {
	store, root := newStore(t)
	ctx := context.Background()

	// Two writers race the same content; both must succeed and exactly
	// one file must exist.
	w1, err := store.Writer(ctx, integrity.SHA256)
	require.NoError(t, err)
	w2, err := store.Writer(ctx, integrity.SHA256)
	require.NoError(t, err)

	_, err = w1.Write([]byte("identical"))
	require.NoError(t, err)
	_, err = w2.Write([]byte("identical"))
	require.NoError(t, err)

	sri1, err := w1.Commit(ctx)
	require.NoError(t, err)
	sri2, err := w2.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, sri1.Equal(sri2))

	count := 0
	err = filepath.WalkDir(filepath.Join(root, "content"), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count, "identical content must converge to one file")
}

func TestTempFilesLiveUnderContentTmp(t *testing.T) {
	store, root := newStore(t)
	ctx := context.Background()

	w, err := store.Writer(ctx, integrity.SHA256)
	require.NoError(t, err)
	_, err = w.Write([]byte("in flight"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "content", ".tmp"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "in-flight write must spool under content/.tmp")

	require.NoError(t, w.Abort())
	entries, err = os.ReadDir(filepath.Join(root, "content", ".tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries, "abort must remove the temp file")
}

func TestWrittenTracksBytes(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	w, err := store.Writer(ctx, integrity.SHA256)
	require.NoError(t, err)
	_, err = w.Write([]byte("12345"))
	require.NoError(t, err)
	_, err = w.Write([]byte("678"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), w.Written())
	_, err = w.Commit(ctx)
	require.NoError(t, err)
}
