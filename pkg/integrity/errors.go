package integrity

import "errors"

var (
	// ErrMalformedIntegrity indicates an externally supplied digest string
	// does not parse as "<algorithm>-<digest>".
	ErrMalformedIntegrity = errors.New("malformed integrity string")

	// ErrUnsupportedAlgorithm indicates an algorithm this build cannot
	// compute. Retrying won't help; the caller picked a bad algorithm.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
)
