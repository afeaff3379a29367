package security

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultThrottleMaxEntries bounds the number of issuers tracked at once
	DefaultThrottleMaxEntries = 1000

	defaultCleanupInterval = 5 * time.Minute
	defaultIdleTimeout     = 30 * time.Minute
)

// ErrThrottled is returned by Wait when the wait would outlast the context
// deadline.
var ErrThrottled = errors.New("request rate to issuer exceeded")

// throttleEntry tracks a limiter and its last access time
type throttleEntry struct {
	key        string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Throttle limits outbound operations per key (the issuer host) using a
// token bucket per key, with LRU eviction to bound memory.
type Throttle struct {
	limiters        map[string]*list.Element // key -> list element
	lruList         *list.List               // LRU list of *throttleEntry
	mu              sync.Mutex
	rate            rate.Limit
	burst           int
	maxEntries      int
	logger          *slog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	// Statistics
	totalEvictions int64
	totalCleanups  int64
}

// NewThrottle creates a throttle allowing perSecond operations per key with
// the given burst. A burst below 1 is raised to 1. maxEntries <= 0 uses
// DefaultThrottleMaxEntries. Stop must be called to end the cleanup
// goroutine.
func NewThrottle(perSecond float64, burst, maxEntries int, logger *slog.Logger) *Throttle {
	if logger == nil {
		logger = slog.Default()
	}
	if burst < 1 {
		burst = 1
	}
	if maxEntries <= 0 {
		maxEntries = DefaultThrottleMaxEntries
	}

	t := &Throttle{
		limiters:        make(map[string]*list.Element),
		lruList:         list.New(),
		rate:            rate.Limit(perSecond),
		burst:           burst,
		maxEntries:      maxEntries,
		logger:          logger,
		cleanupInterval: defaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go t.cleanupLoop()

	return t
}

// limiter returns the limiter for key, creating it if needed.
func (t *Throttle) limiter(key string) *rate.Limiter {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, exists := t.limiters[key]; exists {
		t.lruList.MoveToFront(elem)
		entry := elem.Value.(*throttleEntry)
		entry.lastAccess = now
		return entry.limiter
	}

	if len(t.limiters) >= t.maxEntries {
		t.evictLRU()
	}

	entry := &throttleEntry{
		key:        key,
		limiter:    rate.NewLimiter(t.rate, t.burst),
		lastAccess: now,
	}
	t.limiters[key] = t.lruList.PushFront(entry)

	return entry.limiter
}

// Allow reports whether an operation for key may proceed now.
func (t *Throttle) Allow(key string) bool {
	return t.limiter(key).Allow()
}

// Wait blocks until an operation for key may proceed or ctx ends. It reports
// whether the caller had to wait. If the required wait exceeds ctx's
// deadline, Wait returns immediately with an error wrapping ErrThrottled.
func (t *Throttle) Wait(ctx context.Context, key string) (waited bool, err error) {
	lim := t.limiter(key)
	if lim.Allow() {
		return false, nil
	}

	if err := lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return true, ctxErr
		}
		return true, fmt.Errorf("%w: %v", ErrThrottled, err)
	}
	return true, nil
}

// evictLRU removes the least recently used entry.
// Must be called with mutex locked.
func (t *Throttle) evictLRU() {
	elem := t.lruList.Back()
	if elem == nil {
		return
	}

	entry := elem.Value.(*throttleEntry)
	delete(t.limiters, entry.key)
	t.lruList.Remove(elem)
	t.totalEvictions++

	t.logger.Debug("Throttle LRU eviction",
		"key", entry.key,
		"total_evictions", t.totalEvictions,
		"current_entries", len(t.limiters))
}

// cleanupLoop periodically removes idle limiters
func (t *Throttle) cleanupLoop() {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Cleanup(defaultIdleTimeout)
		case <-t.stopCleanup:
			return
		}
	}
}

// Cleanup removes limiters that haven't been accessed for maxIdleTime.
func (t *Throttle) Cleanup(maxIdleTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	removed := 0

	var next *list.Element
	for elem := t.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*throttleEntry)

		if now.Sub(entry.lastAccess) > maxIdleTime {
			delete(t.limiters, entry.key)
			t.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		t.totalCleanups++
		t.logger.Debug("Throttle cleanup completed",
			"removed", removed,
			"remaining", len(t.limiters),
			"total_cleanups", t.totalCleanups)
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (t *Throttle) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCleanup)
	})
}

// ThrottleStats holds throttle statistics for monitoring
type ThrottleStats struct {
	CurrentEntries int   // Current number of tracked keys
	MaxEntries     int   // Maximum allowed entries
	TotalEvictions int64 // Total number of LRU evictions
	TotalCleanups  int64 // Total number of cleanup operations
}

// Stats returns current throttle statistics.
func (t *Throttle) Stats() ThrottleStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return ThrottleStats{
		CurrentEntries: len(t.limiters),
		MaxEntries:     t.maxEntries,
		TotalEvictions: t.totalEvictions,
		TotalCleanups:  t.totalCleanups,
	}
}
