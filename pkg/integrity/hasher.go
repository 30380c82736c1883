package integrity

import "hash"

// Hasher computes an Integrity over a stream of byte chunks.
//
// It is a plain io.Writer wrapper: feed it chunks in any granularity and
// call Sum when the stream ends. Sum may be called more than once.
type Hasher struct {
	algo Algorithm
	h    hash.Hash
}

// NewHasher returns a streaming hasher for the given algorithm.
func NewHasher(algo Algorithm) (*Hasher, error) {
	h, err := algo.newHash()
	if err != nil {
		return nil, err
	}
	return &Hasher{algo: algo, h: h}, nil
}

// Algorithm returns the algorithm the hasher computes.
func (h *Hasher) Algorithm() Algorithm {
	return h.algo
}

// Write implements io.Writer. It never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum finalizes the running hash into an Integrity value.
func (h *Hasher) Sum() Integrity {
	return Integrity{Algorithm: h.algo, Digest: h.h.Sum(nil)}
}

// MultiHasher computes several algorithms over a single pass of a stream.
//
// A write that supplies an expected digest under a different algorithm
// than the one it stores under needs both digests without re-reading the
// content; this is the mechanism for that.
type MultiHasher struct {
	hashers []*Hasher
}

// NewMultiHasher returns a hasher for each distinct algorithm given, in
// order. Duplicates are collapsed.
func NewMultiHasher(algos ...Algorithm) (*MultiHasher, error) {
	m := &MultiHasher{}
	seen := make(map[Algorithm]bool, len(algos))
	for _, algo := range algos {
		if seen[algo] {
			continue
		}
		seen[algo] = true
		h, err := NewHasher(algo)
		if err != nil {
			return nil, err
		}
		m.hashers = append(m.hashers, h)
	}
	return m, nil
}

// Write implements io.Writer, feeding every underlying hasher.
func (m *MultiHasher) Write(p []byte) (int, error) {
	for _, h := range m.hashers {
		h.Write(p)
	}
	return len(p), nil
}

// Sums finalizes all digests in the order their algorithms were given.
func (m *MultiHasher) Sums() []Integrity {
	out := make([]Integrity, len(m.hashers))
	for i, h := range m.hashers {
		out[i] = h.Sum()
	}
	return out
}

// Sum finalizes the digest for one algorithm, if it was requested.
func (m *MultiHasher) Sum(algo Algorithm) (Integrity, bool) {
	for _, h := range m.hashers {
		if h.algo == algo {
			return h.Sum(), true
		}
	}
	return Integrity{}, false
}
