// Package cache provides a sharded, TTL-bounded LRU cache.
//
// The image proxy keeps fetched frame images here so that repeated exports
// of the same campaign do not refetch the frame from storage. Entries expire
// after a fixed time-to-live and the least recently used entries are evicted
// when a shard is full.
//
//	c := cache.New[string, []byte](cache.Config[string]{Capacity: 64, TTL: time.Hour})
//	c.Set(url, data)
//	if data, ok := c.Get(url); ok {
//	    ...
//	}
package cache
