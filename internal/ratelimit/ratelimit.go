// Package ratelimit paces outbound adapter calls with a jittered token
// bucket. A single Limiter may be shared by every adapter that targets the
// same endpoint; all sharers acquire against the same bucket.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter is a token bucket. Capacity is the burst size; tokens refill at
// requestsPerMinute/60 per second based on monotonic elapsed time.
type Limiter struct {
	mu sync.Mutex

	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	last       time.Time

	jitterMax time.Duration
	rng       *rand.Rand

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter admitting requestsPerMinute requests with the given
// burst capacity. burst < 1 is treated as 1.
func New(requestsPerMinute float64, burst int) (*Limiter, error) {
	if requestsPerMinute <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %v", requestsPerMinute)
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		capacity:   float64(burst),
		tokens:     float64(burst),
		refillRate: requestsPerMinute / 60.0,
		last:       time.Now(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      sleepCtx,
	}, nil
}

// NewFromString parses a rate string such as "30/min", "2/sec" or "100/hour".
func NewFromString(rate string, burst int) (*Limiter, error) {
	rpm, err := ParseRate(rate)
	if err != nil {
		return nil, err
	}
	return New(rpm, burst)
}

// WithJitter adds a uniform random delay in [0, max] to every blocking
// acquire. Used by the stealth scheduler to avoid a detectable cadence.
func (l *Limiter) WithJitter(max time.Duration) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jitterMax = max
	return l
}

// ParseRate converts "N/min", "N/sec" or "N/hour" into requests per minute.
func ParseRate(rate string) (float64, error) {
	parts := strings.SplitN(strings.TrimSpace(rate), "/", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid rate %q: want N/min, N/sec or N/hour", rate)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", rate, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid rate %q: must be positive", rate)
	}
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "min", "minute":
		return n, nil
	case "sec", "second", "s":
		return n * 60, nil
	case "hour", "hr", "h":
		return n / 60, nil
	default:
		return 0, fmt.Errorf("invalid rate unit %q: want min, sec or hour", parts[1])
	}
}

// refillLocked tops up tokens from monotonic elapsed time. Caller holds mu.
func (l *Limiter) refillLocked(now time.Time) {
	elapsed := now.Sub(l.last).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now
}

// TryAcquire consumes a token if one is available, without blocking.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked(time.Now())
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Acquire blocks until a token is available or ctx is cancelled. The wait is
// deficit/refillRate plus the optional jitter.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.refillLocked(time.Now())
	if l.tokens >= 1 {
		l.tokens--
		jitter := l.jitterLocked()
		l.mu.Unlock()
		if jitter > 0 {
			return l.sleep(ctx, jitter)
		}
		return nil
	}
	deficit := 1 - l.tokens
	wait := time.Duration(deficit / l.refillRate * float64(time.Second))
	wait += l.jitterLocked()
	// Spend the token now; by the time the sleep elapses it has refilled.
	l.tokens--
	l.last = time.Now()
	l.mu.Unlock()

	return l.sleep(ctx, wait)
}

func (l *Limiter) jitterLocked() time.Duration {
	if l.jitterMax <= 0 {
		return 0
	}
	return time.Duration(l.rng.Int63n(int64(l.jitterMax) + 1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
