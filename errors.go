package warpcache

import "errors"

// Sentinel errors returned by Engine implementations and New. Callers
// should compare with errors.Is; wrapped variants carry additional
// context via fmt.Errorf("...: %w", ...).
var (
	// ErrNotHashable is returned when a key of type K = any holds a
	// dynamic value that is not runtime-comparable (a slice, map, or
	// function). Keys instantiated with a concrete comparable type can
	// never trigger this.
	ErrNotHashable = errors.New("warpcache: key is not hashable")

	// ErrNotSerializable is returned by the shared backend when a
	// configured Codec fails to encode a key or value.
	ErrNotSerializable = errors.New("warpcache: value is not serializable")

	// ErrCorruptPayload is returned by the shared backend when stored
	// bytes fail to decode back into the expected type.
	ErrCorruptPayload = errors.New("warpcache: stored payload is corrupt")

	// ErrBackendUnavailable is returned by New when the requested
	// backend cannot be constructed on the current platform (the shared
	// backend requires mmap and process-shared synchronization
	// primitives that are not available everywhere).
	ErrBackendUnavailable = errors.New("warpcache: backend unavailable on this platform")

	// ErrInvalidConfig is returned by New when a Config field is
	// invalid (e.g. Backend == BackendShared with no Name set).
	ErrInvalidConfig = errors.New("warpcache: invalid config")
)
