package stats

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector is implemented by anything that accepts block I/O statistics
type Collector interface {
	Provider

	// TrackOperation records a single operation
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackError increments the counter for the specified error type
	TrackError(errorType string)

	// TrackBytes adds wire bytes to the read or write counter
	TrackBytes(isWrite bool, bytes uint64)

	// TrackChain records the block count of a stored or deleted chain
	TrackChain(stored bool, blocks uint64)
}

var _ Collector = (*AtomicCollector)(nil)
