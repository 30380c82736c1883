// Package integrity implements algorithm-tagged cryptographic digests in
// the Subresource Integrity textual form ("<algorithm>-<base64 digest>").
//
// An Integrity value serves two purposes in hoard: it is the deduplication
// key under which content is stored, and it is the proof checked when that
// content is read back. Values are immutable once constructed.
package integrity

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm identifies the hash function behind an Integrity value.
//
// The set is open-ended: adding an algorithm means adding a constant, its
// digest size, and its hash constructor. Stored content written with older
// algorithms remains readable.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	BLAKE3 Algorithm = "blake3"
)

// DefaultAlgorithm is used when a caller does not pick one explicitly.
const DefaultAlgorithm = SHA256

// Size returns the digest length in bytes, or 0 for unknown algorithms.
func (a Algorithm) Size() int {
	switch a {
	case SHA1:
		return sha1.Size
	case SHA256:
		return sha256.Size
	case SHA512:
		return sha512.Size
	case BLAKE3:
		return 32
	default:
		return 0
	}
}

// Valid reports whether the algorithm is one this package can compute.
func (a Algorithm) Valid() bool {
	return a.Size() != 0
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("algorithm %q: %w", string(a), ErrUnsupportedAlgorithm)
	}
}

// Integrity is a digest tagged with the algorithm that produced it.
//
// The zero value is "no digest"; the index uses it to mark tombstones.
type Integrity struct {
	Algorithm Algorithm
	Digest    []byte
}

// FromData computes the digest of data in one shot.
func FromData(algo Algorithm, data []byte) (Integrity, error) {
	h, err := NewHasher(algo)
	if err != nil {
		return Integrity{}, err
	}
	h.Write(data)
	return h.Sum(), nil
}

// Parse decodes the canonical "<algorithm>-<digest>" form. The digest part
// may be standard base64 (with or without padding) or hex; both normalize
// to the same Integrity. Anything else fails with ErrMalformedIntegrity.
func Parse(s string) (Integrity, error) {
	algoPart, digestPart, ok := strings.Cut(s, "-")
	if !ok || algoPart == "" || digestPart == "" {
		return Integrity{}, fmt.Errorf("%q: %w", s, ErrMalformedIntegrity)
	}
	algo := Algorithm(strings.ToLower(algoPart))
	if !algo.Valid() {
		return Integrity{}, fmt.Errorf("%q: algorithm %q: %w", s, algoPart, ErrUnsupportedAlgorithm)
	}
	digest, ok := decodeDigest(digestPart, algo.Size())
	if !ok {
		return Integrity{}, fmt.Errorf("%q: digest must be %d bytes of base64 or hex: %w",
			s, algo.Size(), ErrMalformedIntegrity)
	}
	return Integrity{Algorithm: algo, Digest: digest}, nil
}

// decodeDigest tries each accepted encoding and keeps the one producing a
// digest of the right length. Length-aware on purpose: a hex sha256
// digest is also 64 valid base64 characters, so encoding alone cannot
// disambiguate.
func decodeDigest(s string, want int) ([]byte, bool) {
	if b, err := hex.DecodeString(s); err == nil && len(b) == want {
		return b, true
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == want {
		return b, true
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == want {
		return b, true
	}
	return nil, false
}

// String renders the canonical SRI form. The zero value renders as "".
func (i Integrity) String() string {
	if i.IsZero() {
		return ""
	}
	return string(i.Algorithm) + "-" + base64.StdEncoding.EncodeToString(i.Digest)
}

// Hex returns the lowercase hex encoding of the digest bytes. Content and
// index shard paths are derived from this form.
func (i Integrity) Hex() string {
	return hex.EncodeToString(i.Digest)
}

// IsZero reports whether the value carries no digest.
func (i Integrity) IsZero() bool {
	return i.Algorithm == "" && len(i.Digest) == 0
}

// Equal compares algorithm and digest bytes. Textual encoding plays no
// part: two values parsed from hex and base64 forms of the same digest
// are equal.
func (i Integrity) Equal(other Integrity) bool {
	return i.Algorithm == other.Algorithm && bytes.Equal(i.Digest, other.Digest)
}

// Matches reports whether actual satisfies expected. Digests produced by
// different algorithms never match, even if their bytes happen to agree.
func Matches(expected, actual Integrity) bool {
	if expected.Algorithm != actual.Algorithm {
		return false
	}
	return bytes.Equal(expected.Digest, actual.Digest)
}

// MarshalText implements encoding.TextMarshaler using the canonical form.
// The zero value marshals to the empty string so index tombstones survive
// a JSON round trip.
func (i Integrity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The empty string
// decodes to the zero value; everything else goes through Parse.
func (i *Integrity) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*i = Integrity{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
