package shm

// bucket accessors. Each slot-table entry is bucketEntrySize bytes:
// hash (uint64) then entryIndex (int32) then a 4-byte pad.

func bucketHash(data []byte, off int64) uint64 {
	return leUint64(data[off : off+8])
}

func bucketSetHash(data []byte, off int64, h uint64) {
	lePutUint64(data[off:off+8], h)
}

func bucketEntryIndex(data []byte, off int64) int32 {
	return leInt32(data[off+8 : off+12])
}

func bucketSetEntryIndex(data []byte, off int64, idx int32) {
	lePutInt32(data[off+8:off+12], idx)
}

// htLookup finds the slab entry index for key/keyHash, or returns
// (0, false) if absent. It probes linearly starting at keyHash mod
// capacity, treating tombstones as occupied-but-skip and an empty
// bucket as the end of the probe sequence for this key — the standard
// open-addressing termination condition.
func htLookup(data []byte, l layout, keyHash uint64, key []byte) (int32, bool) {
	mask := l.capacity - 1
	idx := uint32(keyHash) & mask
	for i := uint32(0); i < l.capacity; i++ {
		off := l.bucketOffset(idx)
		entryIdx := bucketEntryIndex(data, off)
		if entryIdx == bucketEmpty {
			return 0, false
		}
		if entryIdx != bucketTomb && bucketHash(data, off) == keyHash {
			slotOff := l.slotOffset(entryIdx)
			if slotKeyMatches(data, slotOff, key) {
				return entryIdx, true
			}
		}
		idx = (idx + 1) & mask
	}
	return 0, false
}

// htInsert installs keyHash -> entryIndex at the first empty or
// tombstoned bucket found while probing from keyHash. Callers must
// have already confirmed the key is not already present.
func htInsert(data []byte, l layout, keyHash uint64, entryIndex int32) {
	mask := l.capacity - 1
	idx := uint32(keyHash) & mask
	for i := uint32(0); i < l.capacity; i++ {
		off := l.bucketOffset(idx)
		e := bucketEntryIndex(data, off)
		if e == bucketEmpty || e == bucketTomb {
			bucketSetHash(data, off, keyHash)
			bucketSetEntryIndex(data, off, entryIndex)
			return
		}
		idx = (idx + 1) & mask
	}
	// Unreachable in a correctly sized table: the table has as many
	// buckets as the slab has slots, and once the slab's free list is
	// exhausted Put tombstones a victim's bucket before inserting.
}

// htRemove writes a tombstone over the bucket matching keyHash/key.
// Tombstones are only ever visited during probing, never iteration.
func htRemove(data []byte, l layout, keyHash uint64, key []byte) bool {
	mask := l.capacity - 1
	idx := uint32(keyHash) & mask
	for i := uint32(0); i < l.capacity; i++ {
		off := l.bucketOffset(idx)
		entryIdx := bucketEntryIndex(data, off)
		if entryIdx == bucketEmpty {
			return false
		}
		if entryIdx != bucketTomb && bucketHash(data, off) == keyHash {
			slotOff := l.slotOffset(entryIdx)
			if slotKeyMatches(data, slotOff, key) {
				bucketSetHash(data, off, 0)
				bucketSetEntryIndex(data, off, bucketTomb)
				return true
			}
		}
		idx = (idx + 1) & mask
	}
	return false
}

func htClear(data []byte, l layout) {
	for i := uint32(0); i < l.capacity; i++ {
		off := l.bucketOffset(i)
		bucketSetHash(data, off, 0)
		bucketSetEntryIndex(data, off, bucketEmpty)
	}
}
