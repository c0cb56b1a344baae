// Shared machinery for backends whose authoritative copy lives in a
// remote object store. A local cache directory mirrors recently used
// objects, keyed by the same hashed relative path the disk backend would
// use, so cache paths and local paths stay interchangeable.
package remote

import (
	"os"
	"path/filepath"
)

// CacheTarget is the local staging directory for a remote-backed store
// plus its capacity policy.
type CacheTarget struct {
	// Path is the cache root directory.
	Path string

	// Size is the cache capacity in bytes. <= 0 means unbounded.
	Size int64

	// Limit is the fraction of Size the cache may fill before pulls are
	// refused, 0 < Limit <= 1. Defaults to 0.9.
	Limit float64
}

const defaultCacheLimit = 0.9

// Usage walks the cache directory and returns the bytes currently held.
func (c CacheTarget) Usage() int64 {
	var used int64
	filepath.Walk(c.Path, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			used += info.Size()
		}
		return nil
	})
	return used
}

// FitsInCache reports whether an object of the given size can be pulled
// without pushing projected usage past Size * Limit.
func (c CacheTarget) FitsInCache(size int64) bool {
	if c.Size <= 0 {
		return true
	}
	limit := c.Limit
	if limit <= 0 || limit > 1 {
		limit = defaultCacheLimit
	}
	return float64(c.Usage()+size) < float64(c.Size)*limit
}

// UsagePercent reports how full the cache is relative to its capacity.
func (c CacheTarget) UsagePercent() float64 {
	if c.Size <= 0 {
		return 0
	}
	return 100 * float64(c.Usage()) / float64(c.Size)
}
