package shm

import "testing"

func TestNextPow2(t *testing.T) {
	t.Parallel()
	cases := map[uint32]uint32{
		0:   1,
		1:   1,
		2:   2,
		3:   4,
		5:   8,
		63:  64,
		64:  64,
		65:  128,
	}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Errorf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestLayoutOffsetsDoNotOverlap(t *testing.T) {
	t.Parallel()
	l := newLayout(10, 16, 32)

	if l.tableOffset() != headerSize {
		t.Fatalf("tableOffset() = %d, want %d", l.tableOffset(), headerSize)
	}
	wantSlab := l.tableOffset() + int64(l.capacity)*bucketEntrySize
	if l.slabOffset() != wantSlab {
		t.Fatalf("slabOffset() = %d, want %d", l.slabOffset(), wantSlab)
	}
	if l.slotOffset(0) != l.slabOffset() {
		t.Fatalf("slotOffset(0) = %d, want %d", l.slotOffset(0), l.slabOffset())
	}
	if l.slotOffset(1) != l.slabOffset()+int64(l.slotSize) {
		t.Fatalf("slotOffset(1) = %d, want slabOffset + slotSize", l.slotOffset(1))
	}
	if l.totalSize() != l.slabOffset()+int64(l.capacity)*int64(l.slotSize) {
		t.Fatalf("totalSize() inconsistent with slabOffset/capacity/slotSize")
	}
}

func TestHeaderCRCStableAcrossCounterMutation(t *testing.T) {
	t.Parallel()
	l := newLayout(4, 8, 8)
	data := make([]byte, l.totalSize())
	initRegion(data, l, Config{Capacity: 4, MaxKeySize: 8, MaxValueSize: 8})

	crcBefore := computeHeaderCRC(data)

	// Mutating runtime counters (as every Get/Put does) must not change
	// the checksum computed over the immutable config fields, or every
	// second process to attach would see a false-positive mismatch and
	// wipe a perfectly good region.
	atomicAddUint64(data, offHits, 1)
	atomicAddUint64(data, offMisses, 3)
	headerPutUint32(data, offLiveCount, 7)
	generationWord(data).Add(2)

	if got := computeHeaderCRC(data); got != crcBefore {
		t.Fatalf("header CRC changed after counter mutation: %d != %d", got, crcBefore)
	}
	if headerGetUint32(data, offCRC32) != crcBefore {
		t.Fatalf("stored CRC does not match recomputed CRC")
	}
}

func TestFnv1a64Deterministic(t *testing.T) {
	t.Parallel()
	a := fnv1a64([]byte("hello"))
	b := fnv1a64([]byte("hello"))
	c := fnv1a64([]byte("world"))
	if a != b {
		t.Fatalf("fnv1a64 not deterministic: %d != %d", a, b)
	}
	if a == c {
		t.Fatalf("fnv1a64 collided on distinct short inputs (suspicious, not necessarily wrong)")
	}
}
