package dispatch

import (
	"math"
	"math/rand/v2"
	"time"
)

// defaultBackoffBase is used when the retry policy leaves the base unset.
const defaultBackoffBase = 2.0

// backoffDelay computes the wait before a retry: base^retryCount seconds
// plus uniform jitter in [0, JitterMax). retryCount is the count before
// the retry being scheduled, so the first retry waits base^0 = 1s
// (+jitter), the second base^1, and so on.
func backoffDelay(cfg RetryConfig, retryCount int) time.Duration {
	base := cfg.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}

	delay := time.Duration(math.Pow(base, float64(retryCount)) * float64(time.Second))
	if cfg.JitterMax > 0 {
		delay += rand.N(cfg.JitterMax)
	}
	return delay
}
