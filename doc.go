// Package warpcache is a function-result cache with pluggable eviction
// (LRU, MRU, FIFO, LFU), optional TTL, and a choice of two backends: an
// in-process map guarded by a reader-writer lock (package memory), or a
// memory-mapped region shared across processes (package shm).
//
// New selects the backend from Config.Backend and returns an
// Engine[K,V]; callers that only need one backend can construct
// memory.Store or shm.Engine directly instead.
package warpcache
