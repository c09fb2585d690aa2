package tenants

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// HostCache memoizes host-to-tenant-id lookups on the hot resolution path.
// Entries expire so domain verification changes propagate without an
// explicit invalidation fan-out; Forget covers the cases where staleness
// matters immediately (domain displaced or unverified).
type HostCache struct {
	lru *expirable.LRU[string, int64]
}

// NewHostCache creates a host cache with the given capacity and entry TTL.
func NewHostCache(size int, ttl time.Duration) *HostCache {
	return &HostCache{lru: expirable.NewLRU[string, int64](size, nil, ttl)}
}

// Get returns the cached tenant id for a host.
func (c *HostCache) Get(host string) (int64, bool) {
	return c.lru.Get(host)
}

// Put records a host-to-tenant mapping.
func (c *HostCache) Put(host string, tenantID int64) {
	c.lru.Add(host, tenantID)
}

// Forget drops a host mapping.
func (c *HostCache) Forget(host string) {
	c.lru.Remove(host)
}

// Purge drops every cached mapping.
func (c *HostCache) Purge() {
	c.lru.Purge()
}
