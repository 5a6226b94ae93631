package shm

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/warpcache/warpcache/policy"
)

// Config describes the parameters that identify and size a shared-
// memory region. Two engines opening the same Name with matching
// Capacity/MaxKeySize/MaxValueSize/Strategy attach to the same
// mapping; a mismatch on any of those triggers a full reinitialization
// rather than an error, per the original implementation's
// open_or_create semantics.
type Config struct {
	Name         string
	Capacity     int
	MaxKeySize   int
	MaxValueSize int
	Strategy     policy.Kind
	TTL          int64 // nanoseconds, 0 means no TTL
}

// baseDir returns the directory shared-memory files live in: /dev/shm
// on Linux, otherwise the platform temp dir plus a 0700 application
// subdirectory, per SPEC_FULL.md section 6.4.
func baseDir() (string, error) {
	if runtime.GOOS == "linux" {
		if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
			return "/dev/shm", nil
		}
	}
	dir := filepath.Join(os.TempDir(), "warpcache")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func regionPaths(name string) (dataPath, lockPath string, err error) {
	dir, err := baseDir()
	if err != nil {
		return "", "", err
	}
	return filepath.Join(dir, name+".cache"), filepath.Join(dir, name+".lock"), nil
}

// headerMatches reports whether an on-disk header already matches the
// requested configuration closely enough to attach without
// reinitializing.
func headerMatches(hdr []byte, l layout, cfg Config) bool {
	if !headerCheckMagic(hdr) {
		return false
	}
	if headerGetUint32(hdr, offVersion) != formatVersion {
		return false
	}
	if hasReservedBytesSet(hdr) {
		return false
	}
	if headerGetUint32(hdr, offCapacity) != l.capacity {
		return false
	}
	if headerGetUint32(hdr, offSlotSize) != l.slotSize {
		return false
	}
	if headerGetUint32(hdr, offMaxKeySize) != l.maxKeySize {
		return false
	}
	if headerGetUint32(hdr, offMaxValueSize) != l.maxValueSize {
		return false
	}
	if headerGetUint32(hdr, offStrategyKind) != uint32(cfg.Strategy) {
		return false
	}
	if computeHeaderCRC(hdr) != headerGetUint32(hdr, offCRC32) {
		return false
	}
	return true
}

// initRegion writes a fresh header and zeroes the slot table and slab
// arena. Called only while holding the advisory create/open lock, so
// no in-region spinlock is needed here.
func initRegion(data []byte, l layout, cfg Config) {
	for i := range data {
		data[i] = 0
	}

	headerPutMagic(data)
	headerPutUint32(data, offVersion, formatVersion)
	headerPutUint32(data, offCapacity, l.capacity)
	headerPutUint32(data, offSlotSize, l.slotSize)
	headerPutUint32(data, offMaxKeySize, l.maxKeySize)
	headerPutUint32(data, offMaxValueSize, l.maxValueSize)
	headerPutUint32(data, offStrategyKind, uint32(cfg.Strategy))
	headerPutInt64(data, offTTLNanos, cfg.TTL)
	headerPutInt32(data, offListHead, slotNone)
	headerPutInt32(data, offListTail, slotNone)
	headerPutInt32(data, offFreeHead, 0)
	headerPutUint32(data, offState, stateNormal)

	htClear(data, l)
	initFreeList(data, l)

	headerPutUint32(data, offCRC32, computeHeaderCRC(data))
}

// initFreeList threads every slab slot into a singly linked free list
// via its next field, slot 0 through capacity-1, terminated by
// slotNone. The engine pops from freeHead on insert and pushes back on
// removal.
func initFreeList(data []byte, l layout) {
	for i := uint32(0); i < l.capacity; i++ {
		off := l.slotOffset(int32(i))
		next := int32(i) + 1
		if i == l.capacity-1 {
			next = slotNone
		}
		slotNextSet(data, off, next)
		slotPrevSet(data, off, slotNone)
	}
}
