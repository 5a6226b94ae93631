// Package shm implements warpcache's shared-memory backend. See
// format.go for the on-disk/on-mmap layout, region.go for how a named
// region is created or attached to, lock.go for the seqlock/spinlock
// pair guarding concurrent access, and engine.go for the Get/Put/Clear
// operations built on top of them.
//
// The backend requires unix mmap/flock support; New returns
// ErrBackendUnavailable on other platforms.
package shm
