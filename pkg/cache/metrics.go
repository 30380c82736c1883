package cache

// Metrics receives operation counts from the facade. Implementations
// must be safe for concurrent use. pkg/metrics provides a Prometheus
// implementation; the default is a no-op.
type Metrics interface {
	// WriteCommitted is called after a successful Write/WriteHash commit.
	WriteCommitted(bytes int64)

	// ReadServed is called after a verified Read/ReadHash.
	ReadServed(bytes int64)

	// Miss is called when a lookup finds no entry for a key.
	Miss()

	// VerifyFailed is called when a read or write fails integrity or
	// size verification.
	VerifyFailed()

	// EntryRemoved is called after Remove tombstones a key.
	EntryRemoved()
}

type nopMetrics struct{}

func (nopMetrics) WriteCommitted(int64) {}
func (nopMetrics) ReadServed(int64)     {}
func (nopMetrics) Miss()                {}
func (nopMetrics) VerifyFailed()        {}
func (nopMetrics) EntryRemoved()        {}
