package shm

import "encoding/binary"

// Slab entry record layout, slotHeaderSize (48) bytes of fixed fields
// followed by key bytes (maxKeySize) then value bytes (maxValueSize):
//
//	 0  keyHash        uint64
//	 8  createdAtNanos int64
//	16  frequency      uint64
//	24  occupied       uint32 (0/1)
//	28  keyLen         uint32
//	32  valLen         uint32
//	36  prev           int32  (eviction list / free-list link)
//	40  next           int32  (eviction list / free-list link)
//	44  _pad           uint32
const (
	slotKeyHash        = 0
	slotCreatedAtNanos = 8
	slotFrequency      = 16
	slotOccupied       = 24
	slotKeyLen         = 28
	slotValLen         = 32
	slotPrev           = 36
	slotNext           = 40
)

func slotKeyHashGet(data []byte, off int64) uint64  { return leUint64(data[off+slotKeyHash:]) }
func slotKeyHashSet(data []byte, off int64, h uint64) { lePutUint64(data[off+slotKeyHash:], h) }

func slotCreatedAtGet(data []byte, off int64) int64 { return leInt64(data[off+slotCreatedAtNanos:]) }
func slotCreatedAtSet(data []byte, off int64, v int64) {
	lePutInt64(data[off+slotCreatedAtNanos:], v)
}

func slotFrequencyGet(data []byte, off int64) uint64 { return leUint64(data[off+slotFrequency:]) }
func slotFrequencySet(data []byte, off int64, v uint64) {
	lePutUint64(data[off+slotFrequency:], v)
}

func slotOccupiedGet(data []byte, off int64) bool {
	return leUint32(data[off+slotOccupied:]) != 0
}
func slotOccupiedSet(data []byte, off int64, v bool) {
	x := uint32(0)
	if v {
		x = 1
	}
	lePutUint32(data[off+slotOccupied:], x)
}

func slotKeyLenGet(data []byte, off int64) uint32   { return leUint32(data[off+slotKeyLen:]) }
func slotKeyLenSet(data []byte, off int64, v uint32) { lePutUint32(data[off+slotKeyLen:], v) }

func slotValLenGet(data []byte, off int64) uint32   { return leUint32(data[off+slotValLen:]) }
func slotValLenSet(data []byte, off int64, v uint32) { lePutUint32(data[off+slotValLen:], v) }

func slotPrevGet(data []byte, off int64) int32   { return leInt32(data[off+slotPrev:]) }
func slotPrevSet(data []byte, off int64, v int32) { lePutInt32(data[off+slotPrev:], v) }

func slotNextGet(data []byte, off int64) int32   { return leInt32(data[off+slotNext:]) }
func slotNextSet(data []byte, off int64, v int32) { lePutInt32(data[off+slotNext:], v) }

func slotKeyBytes(data []byte, off int64, l layout) []byte {
	start := off + slotHeaderSize
	return data[start : start+int64(slotKeyLenGet(data, off))]
}

func slotValueBytes(data []byte, off int64, l layout) []byte {
	start := off + slotHeaderSize + int64(l.maxKeySize)
	return data[start : start+int64(slotValLenGet(data, off))]
}

func slotKeyMatches(data []byte, off int64, key []byte) bool {
	n := slotKeyLenGet(data, off)
	if int(n) != len(key) {
		return false
	}
	stored := data[off+slotHeaderSize : off+slotHeaderSize+int64(n)]
	for i := range key {
		if stored[i] != key[i] {
			return false
		}
	}
	return true
}

// writeSlot installs key/value bytes and metadata into the slot at off.
// Callers must ensure len(key) <= l.maxKeySize and len(value) <=
// l.maxValueSize; that check happens at the engine level as the
// oversize policy, before writeSlot is ever called.
func writeSlot(data []byte, off int64, l layout, keyHash uint64, key, value []byte, createdAt int64) {
	slotKeyHashSet(data, off, keyHash)
	slotCreatedAtSet(data, off, createdAt)
	slotFrequencySet(data, off, 0)
	slotOccupiedSet(data, off, true)
	slotKeyLenSet(data, off, uint32(len(key)))
	slotValLenSet(data, off, uint32(len(value)))
	copy(data[off+slotHeaderSize:off+slotHeaderSize+int64(len(key))], key)
	copy(data[off+slotHeaderSize+int64(l.maxKeySize):off+slotHeaderSize+int64(l.maxKeySize)+int64(len(value))], value)
}

func clearSlot(data []byte, off int64) {
	slotOccupiedSet(data, off, false)
	slotKeyHashSet(data, off, 0)
	slotKeyLenSet(data, off, 0)
	slotValLenSet(data, off, 0)
	slotFrequencySet(data, off, 0)
	slotCreatedAtSet(data, off, 0)
}

// ---- little-endian primitives ----

func leUint32(b []byte) uint32   { return binary.LittleEndian.Uint32(b) }
func lePutUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

func leInt32(b []byte) int32   { return int32(binary.LittleEndian.Uint32(b)) }
func lePutInt32(b []byte, v int32) { binary.LittleEndian.PutUint32(b, uint32(v)) }

func leUint64(b []byte) uint64   { return binary.LittleEndian.Uint64(b) }
func lePutUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

func leInt64(b []byte) int64   { return int64(binary.LittleEndian.Uint64(b)) }
func lePutInt64(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }
