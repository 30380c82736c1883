package cache

import "errors"

// ErrEntryNotFound is returned when a key has no current index entry.
// Expected in normal operation, unlike the verification failures
// re-exported from pkg/content.
var ErrEntryNotFound = errors.New("cache entry not found")
