package ratelimiter //nolint:testpackage // drives the limiter clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCleanupDropsIdleKeys(t *testing.T) {
	var (
		mu    sync.Mutex
		clock = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	)
	limiter := NewKeyedLimiter(&Config{RequestsPerSecond: 1, BurstSize: 1, EntryTTL: time.Minute})
	t.Cleanup(func() { _ = limiter.Close() })
	limiter.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	mu.Lock()
	clock = clock.Add(2 * time.Minute)
	mu.Unlock()
	limiter.cleanupExpired()
	assert.Zero(t, limiter.Len())

	assert.True(t, limiter.Allow("10.0.0.1"))
}
