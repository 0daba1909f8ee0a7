package queue

import (
	"math/rand"
	"time"
)

type BackoffConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		BaseDelay: time.Second,
		MaxDelay:  time.Minute,
	}
}

// NextAttemptAt computes when a retried event becomes eligible again:
// exponential growth on the attempt count with full jitter, capped at
// MaxDelay. attempts is 1-based (1 => within BaseDelay).
func NextAttemptAt(now time.Time, attempts int, cfg BackoffConfig, rng *rand.Rand) time.Time {
	if attempts < 1 {
		attempts = 1
	}
	if cfg.BaseDelay <= 0 {
		return now
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Minute
	}

	delay := cfg.BaseDelay
	// shift overflows past ~62 doublings; cap wins long before that
	for i := 1; i < attempts && delay < cfg.MaxDelay; i++ {
		delay *= 2
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	jitter := time.Duration(rng.Int63n(int64(delay) + 1))

	return now.Add(jitter).UTC()
}
