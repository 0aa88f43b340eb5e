package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"surveyboard/internal"
	"surveyboard/internal/columns"
)

// Entry is a parsed and renamed workbook ready for aggregation.
type Entry struct {
	Key        string
	Name       string
	Sheet      string
	Original   *internal.Table
	Table      *internal.Table
	Mapping    *columns.Mapping
	Report     columns.ApplyReport
	Dictionary []internal.MappingEntry
	LoadedAt   time.Time
}

// TableCache memoizes parsed tables by content. A new upload hashes to a new
// key; stale entries leave by Invalidate, Purge or LRU eviction.
type TableCache struct {
	entries *lru.Cache[string, *Entry]
	group   singleflight.Group
}

func New(maxEntries int) *TableCache {
	if maxEntries <= 0 {
		maxEntries = 16
	}
	entries, err := lru.NewWithEvict[string, *Entry](maxEntries, func(key string, _ *Entry) {
		internal.DefaultLogger.Debug("cache: evicted %s", key)
	})
	if err != nil {
		// only fails on a non-positive size
		panic(err)
	}
	return &TableCache{entries: entries}
}

// Key derives the cache key from the workbook bytes and the mapping applied
// to it. A session without mapping uses the "auto" digest.
func Key(raw []byte, m *columns.Mapping) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]) + ":" + MappingDigest(m)
}

// MappingDigest fingerprints a mapping by its entries, sorted by header.
func MappingDigest(m *columns.Mapping) string {
	if m.Len() == 0 {
		return "auto"
	}
	entries := m.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].OriginalHeader < entries[j].OriginalHeader })
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.OriginalHeader + "\x1f" + e.TechnicalName + "\x1f" + e.PublicLabel + "\x1f" + e.Category + "\x1e"))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (c *TableCache) Get(key string) (*Entry, bool) {
	return c.entries.Get(key)
}

func (c *TableCache) Put(e *Entry) {
	if e.LoadedAt.IsZero() {
		e.LoadedAt = time.Now().UTC()
	}
	c.entries.Add(e.Key, e)
}

// GetOrLoad returns the cached entry for key or runs load once, even when
// several callers ask for the same key concurrently. hit reports a cache hit.
func (c *TableCache) GetOrLoad(key string, load func() (*Entry, error)) (entry *Entry, hit bool, err error) {
	if e, ok := c.entries.Get(key); ok {
		return e, true, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if e, ok := c.entries.Get(key); ok {
			return e, nil
		}
		e, err := load()
		if err != nil {
			return nil, err
		}
		e.Key = key
		c.Put(e)
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Entry), false, nil
}

// Invalidate drops one key and reports whether it was cached.
func (c *TableCache) Invalidate(key string) bool {
	return c.entries.Remove(key)
}

func (c *TableCache) Purge() {
	c.entries.Purge()
}

func (c *TableCache) Len() int {
	return c.entries.Len()
}

// Keys lists cached keys from oldest to most recently used.
func (c *TableCache) Keys() []string {
	return c.entries.Keys()
}
