package clusters

// CacheStats counts header cache lookups
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// headerCache maps cluster index to the last header read from or written to
// the stream for that index.
type headerCache struct {
	headers map[int64]Header
	hits    uint64
	misses  uint64
}

func newHeaderCache() *headerCache {
	return &headerCache{headers: map[int64]Header{}}
}

func (c *headerCache) get(i int64) (Header, bool) {
	h, ok := c.headers[i]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return h, ok
}

func (c *headerCache) put(i int64, h Header) {
	c.headers[i] = h
}

// refresh applies fn to the entry for i, if there is one
func (c *headerCache) refresh(i int64, fn func(h *Header)) {
	h, ok := c.headers[i]
	if !ok {
		return
	}
	fn(&h)
	c.headers[i] = h
}

func (c *headerCache) evict(i int64) {
	delete(c.headers, i)
}

// evictRange evicts the entries for [from, to)
func (c *headerCache) evictRange(from, to int64) {
	// whichever is cheaper to walk
	if to-from > int64(len(c.headers)) {
		for i := range c.headers {
			if i >= from && i < to {
				delete(c.headers, i)
			}
		}
		return
	}
	for i := from; i < to; i++ {
		delete(c.headers, i)
	}
}

func (c *headerCache) reset() {
	clear(c.headers)
}

func (c *headerCache) stats() CacheStats {
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.headers)}
}
