// Package shm implements the shared-memory backend: a memory-mapped
// region laid out as a fixed-offset header, a slot table (open
// addressing with tombstones), and a slab arena of fixed-size entry
// records. Multiple processes can open the same named region
// concurrently; readers use a seqlock, writers serialize through a
// test-and-test-and-set spinlock. An advisory lock file serializes
// only the create/open window (see region_unix.go).
//
// Layout (bit-for-bit, little-endian):
//
//	[0, headerSize)                          header
//	[headerSize, headerSize+capacity*16)      slot table (bucket entries)
//	[tableEnd, tableEnd+capacity*slotSize)     slab arena (entry records)
//
// Header field grouping follows the original implementation's rule:
// all 8-byte fields before all 4-byte fields, so the Go struct-free
// byte layout never needs implicit padding to stay self-describing.
package shm

import (
	"encoding/binary"
	"hash/crc32"
	"sync/atomic"
	"unsafe"

	"github.com/warpcache/warpcache/internal/util"
)

const (
	magic      = "WARPCH01"
	formatVersion uint32 = 1

	headerSize = 256

	// Header field byte offsets.
	offMagic            = 0  // [8]byte
	offTTLNanos         = 8  // int64
	offHits             = 16 // uint64 (atomic)
	offMisses           = 24 // uint64 (atomic)
	offOversizeSkips    = 32 // uint64 (atomic)
	offGeneration       = 40 // uint64 (atomic, seqlock)
	offVersion          = 48 // uint32
	offReserved0        = 52 // uint32, must be zero
	offCapacity         = 56 // uint32
	offSlotSize         = 60 // uint32
	offMaxKeySize       = 64 // uint32
	offMaxValueSize     = 68 // uint32
	offStrategyKind     = 72 // uint32
	offListHead         = 76 // int32
	offListTail         = 80 // int32
	offFreeHead         = 84  // int32
	offLiveCount        = 88  // uint32 (written under the writer spinlock)
	offState            = 92  // uint32
	offCRC32            = 96  // uint32
	offWriterLock       = 100 // uint32, TTAS spinlock word
	offReservedTailStart = 104 // zero-checked, [headerSize-104]byte

	stateNormal      uint32 = 0
	stateInvalidated uint32 = 1

	slotNone      int32 = -1
	bucketEmpty   int32 = -1
	bucketTomb    int32 = -2

	// bucketEntrySize is the fixed size of one slot-table entry.
	bucketEntrySize = 16 // hash uint64 + entryIndex int32 + pad int32

	// slotHeaderSize is the fixed size of a slab entry record's
	// metadata, before the variable-length key/value bytes.
	slotHeaderSize = 48 // keyHash u64 + createdAt i64 + freq u64 + occupied/keyLen/valLen/prev/next/pad u32*6
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func align8(n uint32) uint32 {
	return (n + 7) &^ 7
}

// slotSize computes the total per-slot size for the given max key/value
// sizes, aligned to 8 bytes.
func computeSlotSize(maxKeySize, maxValueSize uint32) uint32 {
	return align8(slotHeaderSize + maxKeySize + maxValueSize)
}

// nextPow2 rounds n up to the next power of two (minimum 1), via
// internal/util's bit-twiddling implementation.
func nextPow2(n uint32) uint32 {
	return uint32(util.NextPow2(uint64(n)))
}

// layout captures the per-region sizing derived from Config once at
// create/open time: capacity (shared by the slot table and the slab
// arena, per the tombstone-based design chosen over both the original
// implementation's 2x-oversized table and the pack's slotcache
// bucket_count=2x convention — see DESIGN.md) and the fixed slot size
// derived from the configured max key/value sizes.
type layout struct {
	capacity     uint32
	slotSize     uint32
	maxKeySize   uint32
	maxValueSize uint32
}

func newLayout(capacity, maxKeySize, maxValueSize uint32) layout {
	cap2 := nextPow2(capacity)
	return layout{
		capacity:     cap2,
		slotSize:     computeSlotSize(maxKeySize, maxValueSize),
		maxKeySize:   maxKeySize,
		maxValueSize: maxValueSize,
	}
}

func (l layout) tableOffset() int64 { return headerSize }

func (l layout) slabOffset() int64 {
	return l.tableOffset() + int64(l.capacity)*bucketEntrySize
}

func (l layout) bucketOffset(idx uint32) int64 {
	return l.tableOffset() + int64(idx)*bucketEntrySize
}

func (l layout) slotOffset(entryIndex int32) int64 {
	return l.slabOffset() + int64(entryIndex)*int64(l.slotSize)
}

func (l layout) totalSize() int64 {
	return l.slabOffset() + int64(l.capacity)*int64(l.slotSize)
}

// fnv1a64 hashes an already-serialized key with the standard 64-bit
// FNV-1a algorithm. It works on []byte directly, since shm always
// hashes the codec's byte output rather than a comparable Go value.
func fnv1a64(b []byte) uint64 {
	const offset64 = 1469598103934665603
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= prime64
	}
	return h
}

// ---- header field access ----

func headerPutMagic(data []byte) {
	copy(data[offMagic:offMagic+8], magic)
}

func headerCheckMagic(data []byte) bool {
	return string(data[offMagic:offMagic+8]) == magic
}

func headerPutUint32(data []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(data[off:off+4], v)
}

func headerGetUint32(data []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(data[off : off+4])
}

func headerPutInt32(data []byte, off int, v int32) {
	binary.LittleEndian.PutUint32(data[off:off+4], uint32(v))
}

func headerGetInt32(data []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(data[off : off+4]))
}

func headerPutInt64(data []byte, off int, v int64) {
	binary.LittleEndian.PutUint64(data[off:off+8], uint64(v))
}

func headerGetInt64(data []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(data[off : off+8]))
}

// atomicLoadUint64/atomicStoreUint64/atomicAddUint64 operate on an
// 8-byte-aligned field inside the mmap'd region via unsafe.Pointer, the
// same technique pkg/slotcache/format.go uses to make the seqlock
// generation counter and the hit/miss/oversize counters visible across
// process boundaries without a syscall.
func atomicLoadUint64(data []byte, off int) uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&data[off])).Load()
}

func atomicStoreUint64(data []byte, off int, v uint64) {
	(*atomic.Uint64)(unsafe.Pointer(&data[off])).Store(v)
}

func atomicAddUint64(data []byte, off int, delta uint64) uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&data[off])).Add(delta)
}

// computeHeaderCRC checksums only the fields fixed at creation time
// (magic, ttl, version, capacity, sizes, strategy). Everything else in
// the header — hits/misses/oversize_skips, generation, live_count,
// list/free-list heads, the writer lock word — mutates during normal
// operation, so including them would make the checksum go stale on the
// very first Put and force a false-positive reinit the next time a
// second engine attaches to the region.
func computeHeaderCRC(data []byte) uint32 {
	var buf []byte
	buf = append(buf, data[offMagic:offMagic+8]...)
	buf = append(buf, data[offTTLNanos:offTTLNanos+8]...)
	buf = append(buf, data[offVersion:offVersion+4]...)
	buf = append(buf, data[offCapacity:offCapacity+4]...)
	buf = append(buf, data[offSlotSize:offSlotSize+4]...)
	buf = append(buf, data[offMaxKeySize:offMaxKeySize+4]...)
	buf = append(buf, data[offMaxValueSize:offMaxValueSize+4]...)
	buf = append(buf, data[offStrategyKind:offStrategyKind+4]...)
	return crc32.Checksum(buf, crcTable)
}

func hasReservedBytesSet(data []byte) bool {
	if headerGetUint32(data, offReserved0) != 0 {
		return true
	}
	for _, b := range data[offReservedTailStart:headerSize] {
		if b != 0 {
			return true
		}
	}
	return false
}
