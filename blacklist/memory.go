package blacklist

import (
	"context"
	"sync"
	"time"
)

// MemoryConfig configures the in-process backend.
type MemoryConfig struct {
	// SweepInterval is how often expired entries are removed. Zero disables
	// the background sweep; Sweep can still be called directly.
	SweepInterval time.Duration
	Now           func() time.Time
}

// Memory is a process-local Cache for single-instance deployments and tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemory creates a Memory cache and starts its sweeper when configured.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Memory{
		entries: make(map[string]time.Time),
		now:     cfg.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go m.run(cfg.SweepInterval)
	} else {
		close(m.done)
	}
	return m
}

// Add revokes token until expiresAt.
func (m *Memory) Add(_ context.Context, token string, expiresAt time.Time) error {
	if !expiresAt.After(m.now()) {
		expiresAt = m.now().Add(minTTL)
	}

	m.mu.Lock()
	m.entries[tokenDigest(token)] = expiresAt
	m.mu.Unlock()
	return nil
}

// IsBlacklisted reports whether token has an entry whose expiry is still ahead.
func (m *Memory) IsBlacklisted(_ context.Context, token string) (bool, error) {
	m.mu.RLock()
	expiresAt, ok := m.entries[tokenDigest(token)]
	m.mu.RUnlock()

	return ok && m.now().Before(expiresAt), nil
}

// Sweep removes every entry whose expiry is at or before now and returns the
// number removed.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, expiresAt := range m.entries {
		if !now.Before(expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the sweeper and waits for it to exit.
func (m *Memory) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
}

func (m *Memory) run(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stop:
			return
		}
	}
}
