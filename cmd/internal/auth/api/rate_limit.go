package authapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// KeyedLimiter is a per-key sliding-window failure counter used to
// throttle login attempts. Failures are recorded with Note; Blocked
// reports whether the key has exhausted its budget inside the window.
type KeyedLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[string][]time.Time
}

// NewKeyedLimiter constructs a KeyedLimiter with safe defaults when inputs are invalid.
func NewKeyedLimiter(limit int, window time.Duration) *KeyedLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &KeyedLimiter{
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
	}
}

// Note records a failure for key at time "now".
func (l *KeyedLimiter) Note(key string, now time.Time) {
	if l == nil || key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events[key] = append(l.prune(key, now), now)
}

// Blocked reports whether key is throttled at time "now" and, when it is,
// how long until the oldest failure leaves the window.
func (l *KeyedLimiter) Blocked(key string, now time.Time) (bool, time.Duration) {
	if l == nil || key == "" {
		return false, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(key, now)
	if len(kept) == 0 {
		delete(l.events, key)
		return false, 0
	}
	l.events[key] = kept

	if len(kept) < l.limit {
		return false, 0
	}
	retryAfter := kept[0].Add(l.window).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return true, retryAfter
}

// prune drops events outside the window. Caller holds the lock.
func (l *KeyedLimiter) prune(key string, now time.Time) []time.Time {
	cut := now.Add(-l.window)
	events := l.events[key]
	dst := events[:0]
	for _, t := range events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	return dst
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeErr(w, http.StatusTooManyRequests, "Too many attempts. Please try again later.")
}
