package feed

// DedupCache is a fixed-capacity recency filter over event keys. Once full,
// recording a new key evicts the oldest one, so it is an approximate filter:
// a repeat older than the capacity window will not be caught. That tradeoff
// keeps memory bounded at O(capacity).
//
// Not safe for concurrent use; the pipeline serializes access.
type DedupCache struct {
	cap  int
	ring []string
	next int
	full bool
	seen map[string]int // key -> refcount inside the ring
}

const DefaultDedupCapacity = 500

func NewDedupCache(capacity int) *DedupCache {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupCache{
		cap:  capacity,
		ring: make([]string, capacity),
		seen: make(map[string]int, capacity),
	}
}

// Seen reports whether key is still inside the recency window.
func (c *DedupCache) Seen(key string) bool {
	_, ok := c.seen[key]
	return ok
}

// Record inserts key, evicting the oldest entry when at capacity.
func (c *DedupCache) Record(key string) {
	if c.full {
		old := c.ring[c.next]
		if n := c.seen[old]; n <= 1 {
			delete(c.seen, old)
		} else {
			c.seen[old] = n - 1
		}
	}
	c.ring[c.next] = key
	c.seen[key]++
	c.next++
	if c.next == c.cap {
		c.next = 0
		c.full = true
	}
}

// Len returns the number of keys currently held.
func (c *DedupCache) Len() int {
	if c.full {
		return c.cap
	}
	return c.next
}
