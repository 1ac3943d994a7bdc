package navigator

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/probelab-dev/uiscout/pkg/logger"
	"github.com/probelab-dev/uiscout/pkg/similarity"
)

const (
	// cacheVersion guards the on-disk schema. A file with a different
	// version is discarded rather than reinterpreted.
	cacheVersion = 1

	// DefaultStaleness is how long a cached page location stays warm.
	DefaultStaleness = 24 * time.Hour

	// cacheMatchThreshold is the fuzzy-name similarity needed for a cache
	// hit. App names come back from OCR, so exact matching would miss.
	cacheMatchThreshold = 0.8
)

// Entry records where an app was last seen in the launcher grid.
type Entry struct {
	Page     int       `yaml:"page"`
	LastSeen time.Time `yaml:"lastSeen"`
}

// Stale reports whether the entry is older than the staleness window.
func (e Entry) Stale(window time.Duration) bool {
	return time.Since(e.LastSeen) > window
}

type cacheFile struct {
	Version int              `yaml:"version"`
	Apps    map[string]Entry `yaml:"apps"`
}

// Cache is the app-location cache, persisted as versioned YAML. Lookups
// match by text similarity rather than exact name.
type Cache struct {
	path       string
	staleAfter time.Duration
	matcher    *similarity.Matcher
	apps       map[string]Entry
}

// LoadCache reads the cache file at path, starting empty when the file is
// missing, unreadable, or carries an unknown schema version.
func LoadCache(path string, matcher *similarity.Matcher) *Cache {
	c := &Cache{
		path:       path,
		staleAfter: DefaultStaleness,
		matcher:    matcher,
		apps:       make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("navigator: could not read app cache %s: %v", path, err)
		}
		return c
	}

	var f cacheFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		logger.Warn("navigator: app cache %s is corrupt, starting fresh: %v", path, err)
		return c
	}
	if f.Version != cacheVersion {
		logger.Warn("navigator: app cache %s has schema version %d, expected %d, starting fresh",
			path, f.Version, cacheVersion)
		return c
	}

	if f.Apps != nil {
		c.apps = f.Apps
	}
	logger.Info("navigator: loaded app cache with %d entries", len(c.apps))
	return c
}

// Lookup returns the cached page for an app name. Stale entries and misses
// both report ok=false.
func (c *Cache) Lookup(name string) (page int, ok bool) {
	for cached, entry := range c.apps {
		if c.matcher.TextSimilarity(name, cached) <= cacheMatchThreshold {
			continue
		}
		if entry.Stale(c.staleAfter) {
			logger.Debug("navigator: cache entry for %q is stale", cached)
			return 0, false
		}
		return entry.Page, true
	}
	return 0, false
}

// Update records the page an app was seen on, replacing any fuzzy-matching
// older key with the freshly observed name.
func (c *Cache) Update(name string, page int) {
	for cached := range c.apps {
		if cached != name && c.matcher.TextSimilarity(name, cached) > cacheMatchThreshold {
			delete(c.apps, cached)
		}
	}
	c.apps[name] = Entry{Page: page, LastSeen: time.Now()}
	c.save()
}

// Entries returns a copy of the cache contents for inspection.
func (c *Cache) Entries() map[string]Entry {
	out := make(map[string]Entry, len(c.apps))
	for name, entry := range c.apps {
		out[name] = entry
	}
	return out
}

// Len returns the number of cached apps.
func (c *Cache) Len() int {
	return len(c.apps)
}

// save writes the cache back to disk. Persistence is best effort; a failed
// write only costs a menu scan on the next run.
func (c *Cache) save() {
	data, err := yaml.Marshal(cacheFile{Version: cacheVersion, Apps: c.apps})
	if err != nil {
		logger.Error("navigator: could not encode app cache: %v", err)
		return
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		logger.Warn("navigator: could not write app cache %s: %v", c.path, err)
	}
}
