package ftpclient

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CacheEntry is a listing captured at CapturedAt.
type CacheEntry struct {
	CapturedAt time.Time
	Entries    []Entry
}

// listingCache maps an absolute remote path (as PWD reports it) to its last
// listing. Entries age out after ttl; nothing invalidates them on mutation.
// A nil *listingCache is a disabled cache.
type listingCache struct {
	ttl   time.Duration
	store *cache.Cache
}

func newListingCache(ttl time.Duration) *listingCache {
	if ttl <= 0 {
		return nil
	}
	return &listingCache{ttl: ttl, store: cache.New(ttl, 2*ttl)}
}

func (c *listingCache) get(path string) ([]Entry, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.store.Get(path)
	if !ok {
		return nil, false
	}
	ce := v.(CacheEntry)
	if time.Since(ce.CapturedAt) >= c.ttl {
		return nil, false
	}
	return append([]Entry(nil), ce.Entries...), true
}

func (c *listingCache) put(path string, entries []Entry) {
	if c == nil {
		return
	}
	c.store.SetDefault(path, CacheEntry{
		CapturedAt: time.Now(),
		Entries:    append([]Entry(nil), entries...),
	})
}

func (c *listingCache) invalidate(path string) {
	if c != nil {
		c.store.Delete(path)
	}
}

func (c *listingCache) flush() {
	if c != nil {
		c.store.Flush()
	}
}

// ListCurrentDirectory lists the working directory, serving a cached
// listing when one younger than the cache TTL exists. A mutation does not
// refresh the cache; use RefreshListing when the next read must see it.
func (m *Manager) ListCurrentDirectory(ctx context.Context) ([]Entry, error) {
	return Do(ctx, m, func(s *Session) ([]Entry, error) {
		pwd, err := s.CurrentDirectory()
		if err != nil {
			return nil, err
		}
		if entries, ok := m.cache.get(pwd); ok {
			m.metrics.RecordCacheLookup(true)
			return entries, nil
		}
		if m.cache != nil {
			m.metrics.RecordCacheLookup(false)
		}
		return m.listAndStore(s, pwd)
	})
}

// RefreshListing lists the working directory from the server and replaces
// its cache entry.
func (m *Manager) RefreshListing(ctx context.Context) ([]Entry, error) {
	return Do(ctx, m, func(s *Session) ([]Entry, error) {
		pwd, err := s.CurrentDirectory()
		if err != nil {
			return nil, err
		}
		return m.listAndStore(s, pwd)
	})
}

// InvalidateListing drops the cached listing for path.
func (m *Manager) InvalidateListing(path string) {
	m.cache.invalidate(path)
}

func (m *Manager) listAndStore(s *Session, pwd string) ([]Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	m.cache.put(pwd, entries)
	return entries, nil
}
