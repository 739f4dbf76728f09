// Package bucketcache remembers, per bucket, the endpoint/region/hosting
// style a handle last adapted to after an AWS redirect response. Grounded on
// VSIS3UpdateParams and the static gsUpdateParams map it's stored in, in the
// original GDAL cpl_aws.cpp.
package bucketcache

import "sync"

// Params are the fields a Handle copies in before its first request, and
// copies back out after successfully adjusting to a redirect.
type Params struct {
	Region            string
	UseVirtualHosting bool
	Endpoint          string
}

// Cache is the process-wide per-bucket parameter map.
type Cache struct {
	mu sync.Mutex
	m  map[string]Params
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{m: make(map[string]Params)}
}

// Get returns the cached Params for bucket, if any.
func (c *Cache) Get(bucket string) (Params, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[bucket]
	return p, ok
}

// Update stores p as the current Params for bucket, overwriting any prior
// entry.
func (c *Cache) Update(bucket string, p Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[bucket] = p
}

// Clear erases every cached bucket entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]Params)
}
