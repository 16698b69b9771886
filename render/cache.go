package render

import (
	"time"

	"vlagserver/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlag_profile_cache_hits_total",
		Help: "Profile lookups answered from the renderer cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlag_profile_cache_misses_total",
		Help: "Profile lookups that went to the profile store.",
	})
)

// cachedProfile remembers misses too, so crawlers probing unknown codes don't hit the store every time.
type cachedProfile struct {
	profile models.Profile
	found   bool
}

// ProfileCache is a size-bounded LRU of profile lookups whose entries expire after a TTL.
type ProfileCache struct {
	cache *expirable.LRU[string, cachedProfile]
}

// NewProfileCache creates a cache holding at most maxSize entries for ttl each.
func NewProfileCache(maxSize int, ttl time.Duration) *ProfileCache {
	return &ProfileCache{cache: expirable.NewLRU[string, cachedProfile](maxSize, nil, ttl)}
}

// Get returns the cached lookup for code. ok is false on a cache miss;
// found is false when the code was cached as unknown.
func (c *ProfileCache) Get(code string) (profile models.Profile, found, ok bool) {
	entry, ok := c.cache.Get(code)
	if !ok {
		cacheMissesTotal.Inc()
		return models.Profile{}, false, false
	}
	cacheHitsTotal.Inc()
	return entry.profile, entry.found, true
}

// Set stores the result of a store lookup.
func (c *ProfileCache) Set(code string, profile models.Profile, found bool) {
	c.cache.Add(code, cachedProfile{profile: profile, found: found})
}

// Purge drops every entry, e.g. after the profile store was reloaded.
func (c *ProfileCache) Purge() {
	c.cache.Purge()
}

// Len returns the number of live entries.
func (c *ProfileCache) Len() int {
	return c.cache.Len()
}
