// Package cache implements a string keyed in-memory cache whose entries
// expire after a time to live. Hits, misses and evictions are counted, and
// the live entries may be saved to and loaded from a JSON file so that they
// survive a restart.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// DefaultTTL is the time to live of entries stored with Set.
const DefaultTTL = time.Hour

const shardCount = 16

// Cache maps keys to values of type V. Entries expire once their time to live
// has passed since they were stored. Expired entries are dropped when read or
// by Cleanup. A Cache is safe for concurrent use.
type Cache[V any] struct {
	ttl time.Duration
	now func() time.Time

	shards [shardCount]shard[V]

	hits, misses, evictions atomic.Uint64
}

type shard[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
}

type entry[V any] struct {
	Value   V         `json:"value"`
	Created time.Time `json:"created"`
	// TTL is the time to live of the entry. Zero or lower never expires.
	TTL time.Duration `json:"ttl"`
}

func (e entry[V]) expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.Created.Add(e.TTL))
}

// New returns an empty Cache. Set stores entries for ttl, or DefaultTTL if
// ttl is zero. now returns the current time; if nil, time.Now is used.
func New[V any](ttl time.Duration, now func() time.Time) *Cache[V] {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{ttl: ttl, now: now}
}

func (c *Cache[V]) shard(key string) *shard[V] {
	return &c.shards[xxhash.Sum64String(key)%shardCount]
}

// Set stores value under key with the default time to live of the Cache.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.ttl)
}

// SetTTL stores value under key for ttl. A ttl of zero or lower keeps the
// entry until it is deleted.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string]entry[V])
	}
	s.entries[key] = entry[V]{Value: value, Created: c.now(), TTL: ttl}
}

// Get returns the value stored under key. An expired entry is removed and
// counts as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	s := c.shard(key)
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && e.expired(c.now()) {
		delete(s.entries, key)
		c.evictions.Add(1)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.Value, true
}

// GetOrCompute returns the value under key, or stores and returns the result
// of compute if there is none.
func (c *Cache[V]) GetOrCompute(key string, compute func() V) V {
	if v, ok := c.Get(key); ok {
		return v
	}
	v := compute()
	c.Set(key, v)
	return v
}

// Contains reports if a live entry is stored under key. It does not count as
// a hit or a miss.
func (c *Cache[V]) Contains(key string) bool {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if ok && e.expired(c.now()) {
		delete(s.entries, key)
		c.evictions.Add(1)
		return false
	}
	return ok
}

// Delete removes the entry under key and reports if there was one.
func (c *Cache[V]) Delete(key string) bool {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// DeletePrefix removes every entry with a key starting with prefix and
// returns how many were removed.
func (c *Cache[V]) DeletePrefix(prefix string) int {
	return c.drop(func(key string, _ entry[V]) bool { return strings.HasPrefix(key, prefix) })
}

// Cleanup removes every expired entry and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	now := c.now()
	n := c.drop(func(_ string, e entry[V]) bool { return e.expired(now) })
	c.evictions.Add(uint64(n))
	return n
}

// Clear removes all entries. Statistics are kept.
func (c *Cache[V]) Clear() {
	c.drop(func(string, entry[V]) bool { return true })
}

func (c *Cache[V]) drop(match func(key string, e entry[V]) bool) int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for key, e := range s.entries {
			if match(key, e) {
				delete(s.entries, key)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// Len returns the number of entries stored, including expired entries not
// yet removed.
func (c *Cache[V]) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Stats holds the counters of a Cache.
type Stats struct {
	Hits, Misses, Evictions uint64
	Size                    int
}

// HitRate returns the percentage of lookups that were hits.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Stats returns a snapshot of the counters of the Cache.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
	}
}

// Save writes the live entries to the file at path as JSON. The file is
// replaced atomically.
func (c *Cache[V]) Save(path string) error {
	now := c.now()
	live := make(map[string]entry[V])
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for key, e := range s.entries {
			if !e.expired(now) {
				live[key] = e
			}
		}
		s.mu.Unlock()
	}
	data, err := json.MarshalIndent(live, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

// Load adds the entries saved in the file at path that have not expired yet
// and returns how many were added. A missing file is not an error.
func (c *Cache[V]) Load(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("read cache: %w", err)
	}
	var saved map[string]entry[V]
	if err := json.Unmarshal(data, &saved); err != nil {
		return 0, fmt.Errorf("decode cache: %w", err)
	}
	now, n := c.now(), 0
	for key, e := range saved {
		if e.expired(now) {
			continue
		}
		s := c.shard(key)
		s.mu.Lock()
		if s.entries == nil {
			s.entries = make(map[string]entry[V])
		}
		s.entries[key] = e
		s.mu.Unlock()
		n++
	}
	return n, nil
}

// PlayerPrefix returns the key prefix under which entries of a player are
// stored. The entries are dropped when the player leaves.
func PlayerPrefix(id uuid.UUID) string {
	return "player:" + id.String() + ":"
}

// PlayerKey returns the key of the entry name of a player.
func PlayerKey(id uuid.UUID, name string) string {
	return PlayerPrefix(id) + name
}
