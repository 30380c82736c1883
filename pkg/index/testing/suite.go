// Package testing provides a reusable contract test suite for
// index.Index implementations, run by each backend's _test.go.
package testing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoardfs/hoard/pkg/index"
	"github.com/hoardfs/hoard/pkg/integrity"
)

// IndexTestSuite runs the Index contract against a backend.
type IndexTestSuite struct {
	// NewIndex returns a fresh, empty index for each test.
	NewIndex func(t *testing.T) index.Index
}

// Run executes all contract tests.
func (s *IndexTestSuite) Run(t *testing.T) {
	t.Run("InsertAndFind", s.testInsertAndFind)
	t.Run("MissingKey", s.testMissingKey)
	t.Run("LastWriteWins", s.testLastWriteWins)
	t.Run("DeleteTombstones", s.testDeleteTombstones)
	t.Run("ReinsertAfterDelete", s.testReinsertAfterDelete)
	t.Run("MetadataOpaque", s.testMetadataOpaque)
	t.Run("List", s.testList)
	t.Run("RemoveAll", s.testRemoveAll)
}

func sriOf(t *testing.T, data string) integrity.Integrity {
	t.Helper()
	sri, err := integrity.FromData(integrity.SHA256, []byte(data))
	require.NoError(t, err)
	return sri
}

func (s *IndexTestSuite) testInsertAndFind(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	sri := sriOf(t, "blob")
	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "a", Integrity: sri, Size: 4}))

	entry, err := idx.Find(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "a", entry.Key)
	assert.True(t, sri.Equal(entry.Integrity))
	assert.Equal(t, int64(4), entry.Size)
	assert.NotZero(t, entry.Time, "insert must stamp the entry time")
}

func (s *IndexTestSuite) testMissingKey(t *testing.T) {
	idx := s.NewIndex(t)

	entry, err := idx.Find(context.Background(), "never inserted")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func (s *IndexTestSuite) testLastWriteWins(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	old := sriOf(t, "old")
	new_ := sriOf(t, "new")
	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "a", Integrity: old, Size: 3}))
	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "a", Integrity: new_, Size: 3}))

	entry, err := idx.Find(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, new_.Equal(entry.Integrity))
}

func (s *IndexTestSuite) testDeleteTombstones(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "a", Integrity: sriOf(t, "blob"), Size: 4}))
	require.NoError(t, idx.Delete(ctx, "a"))

	entry, err := idx.Find(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, entry, "tombstone must make the key absent")

	// Deleting an absent key is fine too.
	require.NoError(t, idx.Delete(ctx, "never inserted"))
}

func (s *IndexTestSuite) testReinsertAfterDelete(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	sri := sriOf(t, "blob")
	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "a", Integrity: sri, Size: 4}))
	require.NoError(t, idx.Delete(ctx, "a"))
	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "a", Integrity: sri, Size: 4}))

	entry, err := idx.Find(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, entry, "a later insert must supersede the tombstone")
	assert.True(t, sri.Equal(entry.Integrity))
}

func (s *IndexTestSuite) testMetadataOpaque(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	meta := json.RawMessage(`{"source":"registry","nested":{"n":1}}`)
	require.NoError(t, idx.Insert(ctx, &index.Entry{
		Key:       "a",
		Integrity: sriOf(t, "blob"),
		Size:      4,
		Metadata:  meta,
	}))

	entry, err := idx.Find(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.JSONEq(t, string(meta), string(entry.Metadata))
}

func (s *IndexTestSuite) testList(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "a", Integrity: sriOf(t, "1"), Size: 1}))
	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "b", Integrity: sriOf(t, "2"), Size: 1}))
	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "c", Integrity: sriOf(t, "3"), Size: 1}))
	require.NoError(t, idx.Delete(ctx, "b"))
	// Supersede a so only the latest shows up.
	latest := sriOf(t, "4")
	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "a", Integrity: latest, Size: 1}))

	seen := make(map[string]*index.Entry)
	for entry, err := range idx.List(ctx) {
		require.NoError(t, err)
		seen[entry.Key] = entry
	}

	require.Len(t, seen, 2, "tombstoned keys are not enumerated")
	assert.True(t, latest.Equal(seen["a"].Integrity))
	assert.NotNil(t, seen["c"])
}

func (s *IndexTestSuite) testRemoveAll(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "a", Integrity: sriOf(t, "1"), Size: 1}))
	require.NoError(t, idx.RemoveAll(ctx))

	entry, err := idx.Find(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, entry)

	// The index stays usable after a clear.
	require.NoError(t, idx.Insert(ctx, &index.Entry{Key: "b", Integrity: sriOf(t, "2"), Size: 1}))
	entry, err = idx.Find(ctx, "b")
	require.NoError(t, err)
	assert.NotNil(t, entry)
}
