package memory

import "time"

// entry is one resident value together with the bookkeeping fields
// spec.md's data model attaches to every cached entry: when it was
// created (for TTL) and how many times it has been read. The frequency
// is counted on every hit but not read back; LFU ordering is tracked
// by the policy package.
type entry[V any] struct {
	value     V
	createdAt time.Time
	frequency uint64
}
