package sync

import (
	"math"
	"time"
)

// computeBackoff returns the retry delay after the given retry count:
// min(base * multiplier^(retryCount-1), max). Monotonically non-decreasing
// in retryCount.
func computeBackoff(retryCount int, base, max time.Duration, multiplier float64) time.Duration {
	if retryCount <= 1 {
		if base > max {
			return max
		}
		return base
	}
	d := float64(base) * math.Pow(multiplier, float64(retryCount-1))
	if d > float64(max) {
		return max
	}
	return time.Duration(d)
}
