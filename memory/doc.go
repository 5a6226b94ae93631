// Package memory implements the in-process backend of a warpcache
// engine: a single map guarded by one reader-writer lock, with a
// pluggable eviction strategy and a bounded deferred access log.
//
// Basic usage:
//
//	s := memory.New[string, int](memory.Options[string, int]{
//		Capacity: 1024,
//		Strategy: policy.LRU,
//		TTL:      time.Minute,
//	})
//	s.Put("k", 1)
//	v, status, err := s.Get("k")
package memory
