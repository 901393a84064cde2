package cache

import (
	"sort"
	"time"
)

// scheduleSweepLocked arms the janitor unless a sweep is already pending.
// Caller must hold c.mutex.
func (c *Cache) scheduleSweepLocked() {
	if c.pending || c.closed {
		return
	}
	c.pending = true
	c.timer = time.AfterFunc(c.cfg.sweepDelay, c.runScheduled)
}

func (c *Cache) runScheduled() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.pending = false
	c.timer = nil
	if c.closed {
		return
	}
	expired, evicted := c.sweepLocked()
	if expired > 0 || evicted > 0 {
		c.cfg.logger.Debug("cache sweep removed %d expired and %d oldest entries, %d remain", expired, evicted, len(c.entries))
	}
}

// Sweep removes expired entries immediately and, if the cache is still over
// its size bound, evicts the oldest entries until half the bound remains.
func (c *Cache) Sweep() (expired int, evicted int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.sweepLocked()
}

func (c *Cache) sweepLocked() (expired int, evicted int) {
	now := c.cfg.now()
	for key, entry := range c.entries {
		if !entry.Valid(now) {
			delete(c.entries, key)
			expired++
		}
	}
	if len(c.entries) <= c.cfg.maxSize {
		return expired, 0
	}
	ordered := make([]*Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].InsertedAt.Equal(ordered[j].InsertedAt) {
			return ordered[i].Key < ordered[j].Key
		}
		return ordered[i].InsertedAt.Before(ordered[j].InsertedAt)
	})
	target := c.cfg.maxSize / 2
	for _, entry := range ordered {
		if len(c.entries) <= target {
			break
		}
		delete(c.entries, entry.Key)
		evicted++
	}
	return expired, evicted
}
