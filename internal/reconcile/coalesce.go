package reconcile

import "sync"

// flight is one in-flight price fetch. done is closed exactly once, by the
// owner, after price/ok are set.
type flight struct {
	done  chan struct{}
	price float64
	ok    bool
}

// coalescer deduplicates concurrent fetches per (asset, bucket) key. The
// first caller to claim a key owns its fetch; later callers get the same
// flight and wait on it instead of dialing upstream themselves.
type coalescer struct {
	mu       sync.Mutex
	inflight map[string]*flight
}

func newCoalescer() *coalescer {
	return &coalescer{inflight: make(map[string]*flight)}
}

// claim registers interest in keys. It returns the subset this caller now
// owns and a flight for every key, owned or not. The caller must complete
// every owned key, success or not.
func (c *coalescer) claim(keys []string) (owned []string, flights map[string]*flight) {
	flights = make(map[string]*flight, len(keys))
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if f, ok := c.inflight[key]; ok {
			flights[key] = f
			continue
		}
		f := &flight{done: make(chan struct{})}
		c.inflight[key] = f
		flights[key] = f
		owned = append(owned, key)
	}
	return owned, flights
}

// complete publishes the outcome for an owned key and releases its waiters.
func (c *coalescer) complete(key string, price float64, ok bool) {
	c.mu.Lock()
	f, exists := c.inflight[key]
	if exists {
		delete(c.inflight, key)
	}
	c.mu.Unlock()

	if exists {
		f.price = price
		f.ok = ok
		close(f.done)
	}
}
