package verify

import (
	"math"
	"time"
)

// nextDelay returns the wait before retry attempt N (2-based; the first
// attempt never waits). A configured schedule wins, reusing its last entry
// when attempts outnumber it; with no schedule the delay doubles from one
// second, capped at capDelay.
func nextDelay(schedule []time.Duration, attempt int, capDelay time.Duration) time.Duration {
	if attempt <= 1 {
		return 0
	}
	if len(schedule) > 0 {
		idx := attempt - 2
		if idx >= len(schedule) {
			idx = len(schedule) - 1
		}
		return schedule[idx]
	}
	delay := float64(time.Second) * math.Pow(2, float64(attempt-2))
	if capDelay > 0 && delay > float64(capDelay) {
		delay = float64(capDelay)
	}
	return time.Duration(delay)
}
