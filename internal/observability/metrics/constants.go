// Package metrics provides constants used across metric definitions.
package metrics

// Label values shared by the metric sets.
const (
	// StatusSuccess marks a delivery or operation that completed.
	StatusSuccess = "success"
	// StatusFailure marks a delivery or operation that failed.
	StatusFailure = "failure"
	// OutcomeHit is a validator cache hit.
	OutcomeHit = "hit"
	// OutcomeMiss is a validator cache miss.
	OutcomeMiss = "miss"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart100B is the starting bucket for byte size histograms (100B to ~10MB range).
	BucketStart100B = 100.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketFactor10 is the exponential growth factor of 10 for larger ranges.
	BucketFactor10 = 10

	// BucketCount6 defines 6 exponential buckets.
	BucketCount6 = 6
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)

// PercentageFactor is the multiplier to convert ratio to percentage.
const PercentageFactor = 100.0
