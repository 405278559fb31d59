package proxy

import (
	"container/list"
	"sync"
)

// DefaultCertCacheSize bounds the number of leaf certificates kept in memory.
const DefaultCertCacheSize = 1000

type cachedCert struct {
	host string
	pair *CertPair
}

// certLRUCache keeps the most recently served leaf certificates, one per host.
type certLRUCache struct {
	mu      sync.Mutex
	byHost  map[string]*list.Element
	recency *list.List // front = most recently used
	maxSize int
}

func newCertLRUCache(maxSize int) *certLRUCache {
	if maxSize <= 0 {
		maxSize = DefaultCertCacheSize
	}
	return &certLRUCache{
		byHost:  make(map[string]*list.Element),
		recency: list.New(),
		maxSize: maxSize,
	}
}

func (c *certLRUCache) get(host string) (*CertPair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.byHost[host]
	if !ok {
		return nil, false
	}
	c.recency.MoveToFront(elem)
	return elem.Value.(*cachedCert).pair, true
}

func (c *certLRUCache) set(host string, pair *CertPair) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.byHost[host]; ok {
		elem.Value.(*cachedCert).pair = pair
		c.recency.MoveToFront(elem)
		return
	}

	for c.recency.Len() >= c.maxSize {
		oldest := c.recency.Back()
		delete(c.byHost, oldest.Value.(*cachedCert).host)
		c.recency.Remove(oldest)
	}
	c.byHost[host] = c.recency.PushFront(&cachedCert{host: host, pair: pair})
}

func (c *certLRUCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}
