package storage

import "strings"

// cacheEntry is what the read cache knows about one key. present=false
// means the key is known to be absent.
type cacheEntry struct {
	value   string
	present bool
	local   bool // written or removed by this process
}

// clearMark records a prefix clear. Keys under the prefix without a newer
// entry are known absent, and readers that took their snapshot before the
// clear must not fill them.
type clearMark struct {
	prefix string
	gen    uint64
}

// readCache mirrors durable key/value data for synchronous reads. It is not
// safe for concurrent use; the Service mutex guards it.
type readCache struct {
	entries map[string]cacheEntry
	clears  []clearMark
	gen     uint64

	// complete is set once every durable key has been loaded, after which a
	// miss means the key does not exist.
	complete bool
}

func newReadCache() *readCache {
	return &readCache{entries: make(map[string]cacheEntry)}
}

// lookup reports what the cache knows about key. ok=false means unknown.
func (c *readCache) lookup(key string) (cacheEntry, bool) {
	if e, ok := c.entries[key]; ok {
		return e, true
	}
	if c.clearedSince(key, 0) {
		return cacheEntry{local: true}, true
	}
	if c.complete {
		return cacheEntry{}, true
	}
	return cacheEntry{}, false
}

// set records a local write.
func (c *readCache) set(key, value string) {
	c.entries[key] = cacheEntry{value: value, present: true, local: true}
}

// remove records a local delete.
func (c *readCache) remove(key string) {
	c.entries[key] = cacheEntry{local: true}
}

// restore puts back what lookup returned before a failed local write.
func (c *readCache) restore(key string, prev cacheEntry, known bool) {
	if known {
		c.entries[key] = prev
		return
	}
	delete(c.entries, key)
}

// fill records a value read from a backing store by a reader that captured
// gen before reading. It never overwrites an existing entry and ignores
// keys cleared after the reader's snapshot.
func (c *readCache) fill(key, value string, present bool, since uint64) {
	if _, ok := c.entries[key]; ok {
		return
	}
	if c.clearedSince(key, since) {
		return
	}
	c.entries[key] = cacheEntry{value: value, present: present}
}

// clearPrefix records a local clear of every key under prefix.
func (c *readCache) clearPrefix(prefix string) {
	c.gen++
	if prefix == "" {
		c.entries = make(map[string]cacheEntry)
		c.clears = []clearMark{{prefix: "", gen: c.gen}}
		return
	}
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.clears = append(c.clears, clearMark{prefix: prefix, gen: c.gen})
}

// touched reports whether this process wrote, removed or cleared key.
func (c *readCache) touched(key string) bool {
	if e, ok := c.entries[key]; ok && e.local {
		return true
	}
	return c.clearedSince(key, 0)
}

func (c *readCache) clearedSince(key string, since uint64) bool {
	for _, m := range c.clears {
		if m.gen > since && strings.HasPrefix(key, m.prefix) {
			return true
		}
	}
	return false
}

// keys returns the present keys under prefix.
func (c *readCache) keys(prefix string) []string {
	var out []string
	for k, e := range c.entries {
		if e.present && strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func (c *readCache) len() int {
	n := 0
	for _, e := range c.entries {
		if e.present {
			n++
		}
	}
	return n
}
