package shm

import "errors"

// ErrNotSerializable and ErrCorruptPayload mirror the root package's
// sentinels of the same name; kept package-local (rather than imported
// from the root warpcache package) to avoid an import cycle, since the
// root package is the one that imports shm.
var (
	ErrNotSerializable = errors.New("shm: value is not serializable")
	ErrCorruptPayload  = errors.New("shm: stored payload is corrupt")

	// ErrBackendUnavailable is returned by New on platforms without the
	// mmap/process-shared-primitive support this package requires.
	ErrBackendUnavailable = errors.New("shm: backend unavailable on this platform")

	// errBusy signals the writer spinlock could not be acquired within
	// its spin budget. Internal only: callers retry a bounded number of
	// times before it ever surfaces, per the engine contract's ErrBusy
	// note (never returned to a caller of Get/Put).
	errBusy = errors.New("shm: writer spinlock busy")
)
