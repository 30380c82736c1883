// Package testing provides a reusable contract test suite for
// content.ContentStore implementations. It exercises the interface
// guarantees, not backend internals, so every backend runs the same
// suite from its own _test.go.
package testing

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoardfs/hoard/pkg/content"
	"github.com/hoardfs/hoard/pkg/integrity"
)

// StoreTestSuite runs the ContentStore contract against a backend.
type StoreTestSuite struct {
	// NewStore returns a fresh, empty store for each test.
	NewStore func(t *testing.T) content.ContentStore
}

// Run executes all contract tests.
func (s *StoreTestSuite) Run(t *testing.T) {
	t.Run("WriteAndRead", s.testWriteAndRead)
	t.Run("StreamingRead", s.testStreamingRead)
	t.Run("Deduplication", s.testDeduplication)
	t.Run("MissingContent", s.testMissingContent)
	t.Run("MalformedAddress", s.testMalformedAddress)
	t.Run("SizeMismatch", s.testSizeMismatch)
	t.Run("RemoveIdempotent", s.testRemoveIdempotent)
	t.Run("AbortLeavesNothing", s.testAbortLeavesNothing)
	t.Run("RemoveAll", s.testRemoveAll)
	t.Run("Algorithms", s.testAlgorithms)
}

func (s *StoreTestSuite) write(t *testing.T, store content.ContentStore, data []byte, algo integrity.Algorithm) integrity.Integrity {
	t.Helper()
	ctx := context.Background()

	w, err := store.Writer(ctx, algo)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	sri, err := w.Commit(ctx)
	require.NoError(t, err)
	return sri
}

func (s *StoreTestSuite) testWriteAndRead(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	payload := []byte("hello world")
	sri := s.write(t, store, payload, integrity.SHA256)

	expected, err := integrity.FromData(integrity.SHA256, payload)
	require.NoError(t, err)
	assert.True(t, expected.Equal(sri), "commit must return the digest of the written bytes")

	data, err := store.Read(ctx, sri, int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	ok, err := store.Exists(ctx, sri)
	require.NoError(t, err)
	assert.True(t, ok)
}

func (s *StoreTestSuite) testStreamingRead(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	payload := []byte("stream me in small pieces")
	sri := s.write(t, store, payload, integrity.SHA256)

	handle, err := store.Open(ctx, sri)
	require.NoError(t, err)
	defer func() { _ = handle.Close() }()

	data, err := io.ReadAll(handle)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.NoError(t, handle.Verify())
}

func (s *StoreTestSuite) testDeduplication(t *testing.T) {
	store := s.NewStore(t)

	first := s.write(t, store, []byte("same bytes"), integrity.SHA256)
	second := s.write(t, store, []byte("same bytes"), integrity.SHA256)

	assert.True(t, first.Equal(second), "identical content must converge to one digest")
}

func (s *StoreTestSuite) testMissingContent(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	absent, err := integrity.FromData(integrity.SHA256, []byte("never written"))
	require.NoError(t, err)

	_, err = store.Read(ctx, absent, -1)
	assert.ErrorIs(t, err, content.ErrContentNotFound)

	_, err = store.Open(ctx, absent)
	assert.ErrorIs(t, err, content.ErrContentNotFound)

	ok, err := store.Exists(ctx, absent)
	require.NoError(t, err)
	assert.False(t, ok)
}

func (s *StoreTestSuite) testMalformedAddress(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	// Zero value and a digest too short for its algorithm: neither can
	// address content, and both must fail typed instead of panicking.
	for _, sri := range []integrity.Integrity{
		{},
		{Algorithm: integrity.SHA256, Digest: []byte{0x01, 0x02}},
	} {
		_, err := store.Read(ctx, sri, -1)
		assert.ErrorIs(t, err, integrity.ErrMalformedIntegrity)

		_, err = store.Open(ctx, sri)
		assert.ErrorIs(t, err, integrity.ErrMalformedIntegrity)

		_, err = store.Exists(ctx, sri)
		assert.ErrorIs(t, err, integrity.ErrMalformedIntegrity)

		err = store.Remove(ctx, sri)
		assert.ErrorIs(t, err, integrity.ErrMalformedIntegrity)
	}
}

func (s *StoreTestSuite) testSizeMismatch(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	sri := s.write(t, store, []byte("eleven byte"), integrity.SHA256)

	_, err := store.Read(ctx, sri, 5)
	assert.ErrorIs(t, err, content.ErrSizeMismatch)

	// -1 skips the size check.
	_, err = store.Read(ctx, sri, -1)
	assert.NoError(t, err)
}

func (s *StoreTestSuite) testRemoveIdempotent(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	sri := s.write(t, store, []byte("removable"), integrity.SHA256)

	require.NoError(t, store.Remove(ctx, sri))
	require.NoError(t, store.Remove(ctx, sri), "removing absent content is not an error")

	ok, err := store.Exists(ctx, sri)
	require.NoError(t, err)
	assert.False(t, ok)
}

func (s *StoreTestSuite) testAbortLeavesNothing(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	payload := []byte("abandoned write")
	w, err := store.Writer(ctx, integrity.SHA256)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	sri, err := integrity.FromData(integrity.SHA256, payload)
	require.NoError(t, err)
	ok, err := store.Exists(ctx, sri)
	require.NoError(t, err)
	assert.False(t, ok, "aborted writes must not publish content")
}

func (s *StoreTestSuite) testRemoveAll(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	a := s.write(t, store, []byte("one"), integrity.SHA256)
	b := s.write(t, store, []byte("two"), integrity.SHA256)

	require.NoError(t, store.RemoveAll(ctx))

	for _, sri := range []integrity.Integrity{a, b} {
		ok, err := store.Exists(ctx, sri)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	// The store stays usable after a clear.
	again := s.write(t, store, []byte("three"), integrity.SHA256)
	ok, err := store.Exists(ctx, again)
	require.NoError(t, err)
	assert.True(t, ok)
}

func (s *StoreTestSuite) testAlgorithms(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	payload := []byte("multi-algorithm payload")
	for _, algo := range []integrity.Algorithm{integrity.SHA1, integrity.SHA256, integrity.SHA512, integrity.BLAKE3} {
		sri := s.write(t, store, payload, algo)
		assert.Equal(t, algo, sri.Algorithm)

		data, err := store.Read(ctx, sri, int64(len(payload)))
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	}
}
