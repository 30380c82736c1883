package integrity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha256("hello"), well-known vector.
const (
	helloHex    = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	helloBase64 = "LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ="
)

func TestFromData(t *testing.T) {
	sri, err := FromData(SHA256, []byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, SHA256, sri.Algorithm)
	assert.Equal(t, helloHex, sri.Hex())
	assert.Equal(t, "sha256-"+helloBase64, sri.String())
}

func TestParseNormalizesEncodings(t *testing.T) {
	fromBase64, err := Parse("sha256-" + helloBase64)
	require.NoError(t, err)

	fromHex, err := Parse("sha256-" + helloHex)
	require.NoError(t, err)

	fromUpper, err := Parse("SHA256-" + helloBase64)
	require.NoError(t, err)

	assert.True(t, fromBase64.Equal(fromHex))
	assert.True(t, fromBase64.Equal(fromUpper))
}

func TestParseRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"sha256",
		"sha256-",
		"-deadbeef",
		"sha256-!!!not-an-encoding!!!",
		// Valid base64, wrong digest length for the algorithm.
		"sha256-aGVsbG8=",
	}
	for _, c := range cases {
		_, err := Parse(c)
		assert.ErrorIs(t, err, ErrMalformedIntegrity, "input %q", c)
	}

	_, err := Parse("md5-" + helloBase64)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestMatchesRequiresSameAlgorithm(t *testing.T) {
	a, err := FromData(SHA256, []byte("hello"))
	require.NoError(t, err)
	b, err := FromData(SHA512, []byte("hello"))
	require.NoError(t, err)

	assert.True(t, Matches(a, a))
	assert.False(t, Matches(a, b))
	assert.False(t, Matches(a, Integrity{Algorithm: SHA512, Digest: a.Digest}))
}

func TestAlgorithmSizes(t *testing.T) {
	assert.Equal(t, 20, SHA1.Size())
	assert.Equal(t, 32, SHA256.Size())
	assert.Equal(t, 64, SHA512.Size())
	assert.Equal(t, 32, BLAKE3.Size())
	assert.False(t, Algorithm("md5").Valid())
}

func TestHasherChunkingIsIrrelevant(t *testing.T) {
	whole, err := FromData(SHA512, []byte("hello world"))
	require.NoError(t, err)

	h, err := NewHasher(SHA512)
	require.NoError(t, err)
	h.Write([]byte("hello"))
	h.Write([]byte(" "))
	h.Write([]byte("world"))

	assert.True(t, whole.Equal(h.Sum()))
}

func TestMultiHasher(t *testing.T) {
	m, err := NewMultiHasher(SHA256, BLAKE3, SHA256)
	require.NoError(t, err)
	m.Write([]byte("hello"))

	sums := m.Sums()
	require.Len(t, sums, 2, "duplicate algorithms collapse")
	assert.Equal(t, helloHex, sums[0].Hex())

	b3, ok := m.Sum(BLAKE3)
	require.True(t, ok)
	assert.Equal(t, BLAKE3, b3.Algorithm)
	assert.Len(t, b3.Digest, 32)

	_, ok = m.Sum(SHA1)
	assert.False(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	sri, err := FromData(SHA256, []byte("hello"))
	require.NoError(t, err)

	raw, err := json.Marshal(sri)
	require.NoError(t, err)
	assert.JSONEq(t, `"sha256-`+helloBase64+`"`, string(raw))

	var back Integrity
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, sri.Equal(back))

	// Tombstones serialize as the empty string and come back as zero.
	raw, err = json.Marshal(Integrity{})
	require.NoError(t, err)
	assert.Equal(t, `""`, string(raw))

	var zero Integrity
	require.NoError(t, json.Unmarshal(raw, &zero))
	assert.True(t, zero.IsZero())
}
