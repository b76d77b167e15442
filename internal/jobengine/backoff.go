package jobengine

import (
	"math/rand"
	"time"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffMax  = 30 * time.Second
)

// backoffDuration computes an exponential delay with full jitter for the
// given attempt (1-indexed), per the retry policy in spec.md §4.1.
func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := backoffBase * time.Duration(uint64(1)<<uint(attempt-1))
	if exp <= 0 || exp > backoffMax {
		exp = backoffMax
	}
	return time.Duration(rand.Int63n(int64(exp) + 1))
}
