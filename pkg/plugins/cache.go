package plugins

import "sync"

// Release is a resolved release: its concrete tag and manifest.
type Release struct {
	Tag      string
	Manifest *Manifest
}

type releaseKey struct {
	owner, repo, version string
}

// ReleaseCache remembers releases for the duration of one run. A release
// fetched as "latest" is also stored under its concrete tag. It is safe for
// concurrent use.
type ReleaseCache struct {
	mu       sync.Mutex
	releases map[releaseKey]*Release
}

// NewReleaseCache creates an empty cache.
func NewReleaseCache() *ReleaseCache {
	return &ReleaseCache{releases: make(map[releaseKey]*Release)}
}

// Get returns the cached release for a version request.
func (c *ReleaseCache) Get(owner, repo, version string) (*Release, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.releases[releaseKey{owner, repo, version}]
	return r, ok
}

// Put stores a release under the requested version and its tag.
func (c *ReleaseCache) Put(owner, repo, version string, r *Release) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releases[releaseKey{owner, repo, version}] = r
	if r.Tag != version {
		c.releases[releaseKey{owner, repo, r.Tag}] = r
	}
}

// Len returns the number of cache entries.
func (c *ReleaseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.releases)
}
