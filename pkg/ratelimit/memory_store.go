package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const shardCount = 64

// MemoryStore keeps buckets in process memory. Keys are spread over shards,
// each with its own mutex, so unrelated keys never contend on one lock.
type MemoryStore struct {
	shards [shardCount]*shard

	clock           clock.Clock
	cleanupInterval time.Duration
	gracePeriod     time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
	cleanupOnce     sync.Once
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	start  time.Time // caller's clock, anchors the window
	count  int64
	window time.Duration
	// created is the store clock reading when the window opened. Staleness is
	// measured on this clock alone, so an offset between the caller's clock
	// and the store's never evicts a live bucket.
	created time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often stale buckets are swept.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// WithGracePeriod sets how long past its window a bucket is kept before the
// sweeper may evict it.
func WithGracePeriod(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if d >= 0 {
			s.gracePeriod = d
		}
	}
}

// WithStoreClock sets the clock the sweeper ticks and measures bucket age on.
func WithStoreClock(c clock.Clock) MemoryStoreOption {
	return func(s *MemoryStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewMemoryStore creates a new in-memory store with automatic cleanup.
// Close stops the cleanup goroutine.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		clock:           clock.New(),
		cleanupInterval: time.Minute,
		gracePeriod:     time.Minute,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}

	for _, opt := range opts {
		opt(s)
	}

	// The ticker exists before NewMemoryStore returns, so clock advances made
	// right after construction are observed.
	go s.cleanupLoop(s.clock.Ticker(s.cleanupInterval))

	return s
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[key]
	if !ok || now.Sub(b.start) >= window {
		b = &bucket{start: now, count: 1, window: window, created: s.clock.Now()}
		sh.buckets[key] = b
		return b.count, b.start, nil
	}

	b.count++
	b.window = window
	return b.count, b.start, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.buckets, key)
	sh.mu.Unlock()
	return nil
}

// Len returns the number of buckets held, stale ones included.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.buckets)
		sh.mu.Unlock()
	}
	return n
}

// Sweep evicts buckets older than their window plus grace period, measured on
// the store clock, and returns how many were removed. An evicted bucket would have been restarted by the
// next Hit anyway, so eviction never admits more than a fresh window would.
func (s *MemoryStore) Sweep() int {
	now := s.clock.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, b := range sh.buckets {
			if now.Sub(b.created) >= b.window+s.gracePeriod {
				delete(sh.buckets, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Close stops the cleanup goroutine and waits for it to exit.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	<-s.cleanupDone
	return nil
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) cleanupLoop(ticker *clock.Ticker) {
	defer close(s.cleanupDone)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCleanup:
			return
		}
	}
}
