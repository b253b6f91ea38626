package timer

import (
	"math"
	"time"
)

// Quarter is the billing unit reported durations are rounded to.
const Quarter = 15 * time.Minute

// Round rounds d to the nearest quarter hour, half away from zero.
// Non-positive durations round to zero.
func Round(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	quarters := math.Round(float64(d) / float64(Quarter))
	return time.Duration(quarters) * Quarter
}

// RoundBillable rounds d to the nearest quarter hour for billing.
// When allowZero is false any span that would round to zero (including
// non-positive inputs) is billed as one full quarter instead.
func RoundBillable(d time.Duration, allowZero bool) time.Duration {
	if d <= 0 {
		if allowZero {
			return 0
		}
		return Quarter
	}
	rounded := Round(d)
	if rounded == 0 && !allowZero {
		return Quarter
	}
	return rounded
}
