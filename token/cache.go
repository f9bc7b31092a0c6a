package token

import (
	"sync"
	"time"
)

// Entry is one immutable snapshot of the cached credential.
type Entry struct {
	AccessToken string
	ExpiresAt   time.Time // zero when the provider did not report an expiry
}

// Empty reports whether the entry carries no token.
func (e Entry) Empty() bool {
	return e.AccessToken == ""
}

// Stale reports whether the token expires within skew of now. Tokens without
// a known expiry are never stale.
func (e Entry) Stale(now time.Time, skew time.Duration) bool {
	if e.Empty() || e.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(e.ExpiresAt)
}

// Cache is the in-memory credential shared by the state machine and the HTTP
// transport. Construct one per process (or per test) and inject it into both;
// there is no package-level instance.
type Cache struct {
	entry  Entry
	loaded bool
	mu     sync.RWMutex
}

func NewCache() *Cache {
	return &Cache{}
}

// Get returns the current entry.
func (c *Cache) Get() Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry
}

// Token returns the current access token, or "".
func (c *Cache) Token() string {
	return c.Get().AccessToken
}

// Set replaces the entry and marks the cache as loaded.
func (c *Cache) Set(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = e
	c.loaded = true
}

// Clear drops the token. The cache stays loaded, so a cleared token is never
// resurrected from storage by a lazy load.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = Entry{}
	c.loaded = true
}

// CompareAndSet replaces the entry only if the current token equals old.
func (c *Cache) CompareAndSet(old string, e Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry.AccessToken != old {
		return false
	}
	c.entry = e
	c.loaded = true
	return true
}

// EnsureLoaded runs load once, the first time the cache is read before any
// Set or Clear. A failed load leaves the cache unloaded so the next call retries.
func (c *Cache) EnsureLoaded(load func() (Entry, error)) (Entry, error) {
	c.mu.RLock()
	if c.loaded {
		e := c.entry
		c.mu.RUnlock()
		return e, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.entry, nil
	}
	e, err := load()
	if err != nil {
		return Entry{}, err
	}
	c.entry = e
	c.loaded = true
	return e, nil
}
