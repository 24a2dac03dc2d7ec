package memory

import (
	"sync"
	"time"
)

// sweepInterval bounds how often writes scan the arena for expired items.
const sweepInterval = time.Minute

// Arena is an in-process key → value → expiry store standing in for Redis.
// Expired items are dropped when read and by a sweep that writes trigger at most
// once per sweepInterval.
type Arena struct {
	mu        sync.Mutex
	clock     func() time.Time
	items     map[string]arenaItem
	nextSweep time.Time
}

type arenaItem struct {
	value     []byte
	counter   int64
	expiresAt time.Time // zero means no expiry
}

func NewArena() *Arena {
	return NewArenaWithClock(time.Now)
}

// NewArenaWithClock allows deterministic expiry in tests.
func NewArenaWithClock(now func() time.Time) *Arena {
	return &Arena{clock: now, items: make(map[string]arenaItem), nextSweep: now().Add(sweepInterval)}
}

func (a *Arena) Get(key string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.liveLocked(key)
	if !ok {
		return nil, false
	}
	return item.value, true
}

func (a *Arena) Set(key string, value []byte, ttl time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maybeSweepLocked()
	a.items[key] = arenaItem{value: value, expiresAt: a.expiry(ttl)}
}

// SetNX stores value only when key is absent and reports whether it did.
func (a *Arena) SetNX(key string, value []byte, ttl time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maybeSweepLocked()
	if _, ok := a.liveLocked(key); ok {
		return false
	}
	a.items[key] = arenaItem{value: value, expiresAt: a.expiry(ttl)}
	return true
}

// Incr increments the counter at key. ttl is only applied when the key is created.
func (a *Arena) Incr(key string, ttl time.Duration) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maybeSweepLocked()
	item, ok := a.liveLocked(key)
	if !ok {
		item = arenaItem{expiresAt: a.expiry(ttl)}
	}
	item.counter++
	a.items[key] = item
	return item.counter
}

// Update stores the value returned by fn when fn reports true. fn sees the live value
// of key, if any, under the arena lock.
func (a *Arena) Update(key string, ttl time.Duration, fn func(cur []byte, ok bool) ([]byte, bool)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maybeSweepLocked()
	item, ok := a.liveLocked(key)
	value, store := fn(item.value, ok)
	if !store {
		return false
	}
	a.items[key] = arenaItem{value: value, expiresAt: a.expiry(ttl)}
	return true
}

// Counter returns the live counter at key, zero when absent.
func (a *Arena) Counter(key string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, _ := a.liveLocked(key)
	return item.counter
}

// SetIfCounter stores value at key only while the counter at counterKey equals want.
func (a *Arena) SetIfCounter(counterKey string, want int64, key string, value []byte, ttl time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maybeSweepLocked()
	counter, _ := a.liveLocked(counterKey)
	if counter.counter != want {
		return false
	}
	a.items[key] = arenaItem{value: value, expiresAt: a.expiry(ttl)}
	return true
}

func (a *Arena) Delete(keys ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, key := range keys {
		delete(a.items, key)
	}
}

func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for key := range a.items {
		if _, ok := a.liveLocked(key); ok {
			n++
		}
	}
	return n
}

// Sweep drops every expired item and returns how many it removed.
func (a *Arena) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sweepLocked()
}

func (a *Arena) maybeSweepLocked() {
	if a.clock().Before(a.nextSweep) {
		return
	}
	a.sweepLocked()
}

func (a *Arena) sweepLocked() int {
	now := a.clock()
	removed := 0
	for key, item := range a.items {
		if !item.expiresAt.IsZero() && !now.Before(item.expiresAt) {
			delete(a.items, key)
			removed++
		}
	}
	a.nextSweep = now.Add(sweepInterval)
	return removed
}

func (a *Arena) liveLocked(key string) (arenaItem, bool) {
	item, ok := a.items[key]
	if !ok {
		return arenaItem{}, false
	}
	if !item.expiresAt.IsZero() && !a.clock().Before(item.expiresAt) {
		delete(a.items, key)
		return arenaItem{}, false
	}
	return item, true
}

func (a *Arena) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return a.clock().Add(ttl)
}
