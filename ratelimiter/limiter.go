package ratelimiter

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tjddyd55-crypto/global-audition/config"
)

const (
	defaultRequestsPerSecond = 2
	defaultBurstSize         = 10
	defaultCleanupInterval   = 5 * time.Minute
	defaultEntryTTL          = 10 * time.Minute
	defaultMaxEntries        = 100000
)

// Config holds the token bucket settings shared by every key.
type Config struct {
	RequestsPerSecond int
	BurstSize         int
	CleanupInterval   time.Duration
	EntryTTL          time.Duration
	MaxEntries        int
}

// DefaultConfig returns the credential endpoint defaults: a slow refill with room for typos.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond: defaultRequestsPerSecond,
		BurstSize:         defaultBurstSize,
		CleanupInterval:   defaultCleanupInterval,
		EntryTTL:          defaultEntryTTL,
		MaxEntries:        defaultMaxEntries,
	}
}

// FromConfig reads the login rate from cfg, keeping the defaults for unset values.
func FromConfig(cfg config.ConfigurationRateLimit) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.RequestsPerSecond, c.BurstSize = cfg.LoginRate()
	return c
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64
}

// KeyedLimiter keeps an independent token bucket per key, here the caller IP.
type KeyedLimiter struct {
	mu      sync.RWMutex
	entries map[string]*limiterEntry
	config  Config
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewKeyedLimiter creates a limiter and starts dropping keys unused for EntryTTL.
func NewKeyedLimiter(cfg *Config) *KeyedLimiter {
	kl := &KeyedLimiter{
		entries: make(map[string]*limiterEntry),
		config:  normalizeConfig(cfg),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go kl.cleanupLoop()
	return kl
}

// Allow consumes a token for key.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.AllowN(key, 1)
}

// AllowN consumes n tokens for key.
func (k *KeyedLimiter) AllowN(key string, n int) bool {
	if n <= 0 {
		return true
	}

	now := k.now()
	entry := k.getOrCreateEntry(normalizeKey(key), now)
	entry.lastAccess.Store(now.UnixNano())
	return entry.limiter.AllowN(now, n)
}

// RetryAfter is how long a rejected caller should wait for one token.
func (k *KeyedLimiter) RetryAfter() time.Duration {
	return time.Duration(float64(time.Second) / float64(k.config.RequestsPerSecond))
}

// Burst reports the bucket size.
func (k *KeyedLimiter) Burst() int {
	return k.config.BurstSize
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.entries)
}

// Close stops the cleanup goroutine.
func (k *KeyedLimiter) Close() error {
	k.stopOnce.Do(func() {
		close(k.stopCh)
	})
	return nil
}

func normalizeConfig(cfg *Config) Config {
	if cfg == nil {
		return *DefaultConfig()
	}

	result := *cfg
	if result.RequestsPerSecond <= 0 {
		result.RequestsPerSecond = defaultRequestsPerSecond
	}
	if result.BurstSize <= 0 {
		result.BurstSize = defaultBurstSize
	}
	if result.CleanupInterval <= 0 {
		result.CleanupInterval = defaultCleanupInterval
	}
	if result.EntryTTL <= 0 {
		result.EntryTTL = defaultEntryTTL
	}
	if result.MaxEntries <= 0 {
		result.MaxEntries = defaultMaxEntries
	}
	return result
}

func normalizeKey(key string) string {
	if key == "" {
		return "unknown"
	}
	return key
}

func (k *KeyedLimiter) getOrCreateEntry(key string, now time.Time) *limiterEntry {
	k.mu.RLock()
	entry, found := k.entries[key]
	k.mu.RUnlock()
	if found {
		return entry
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	entry, found = k.entries[key]
	if found {
		return entry
	}

	entry = &limiterEntry{
		limiter: rate.NewLimiter(rate.Limit(float64(k.config.RequestsPerSecond)), k.config.BurstSize),
	}
	entry.lastAccess.Store(now.UnixNano())
	k.entries[key] = entry

	k.evictOldestLocked()
	return entry
}

func (k *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(k.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.cleanupExpired()
		case <-k.stopCh:
			return
		}
	}
}

func (k *KeyedLimiter) cleanupExpired() {
	cutoff := k.now().Add(-k.config.EntryTTL).UnixNano()

	k.mu.Lock()
	defer k.mu.Unlock()

	for key, entry := range k.entries {
		if entry.lastAccess.Load() < cutoff {
			delete(k.entries, key)
		}
	}
}

func (k *KeyedLimiter) evictOldestLocked() {
	for len(k.entries) > k.config.MaxEntries {
		oldestKey := ""
		var oldest int64
		for key, entry := range k.entries {
			last := entry.lastAccess.Load()
			if oldestKey == "" || last < oldest {
				oldest = last
				oldestKey = key
			}
		}
		if oldestKey == "" {
			return
		}
		delete(k.entries, oldestKey)
	}
}
