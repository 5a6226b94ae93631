package warpcache

import (
	"errors"
	"fmt"
	"time"

	"github.com/warpcache/warpcache/codec"
	"github.com/warpcache/warpcache/memory"
	"github.com/warpcache/warpcache/metrics"
	"github.com/warpcache/warpcache/policy"
	"github.com/warpcache/warpcache/shm"
)

// Status reports the outcome of a Get.
type Status int

const (
	Miss Status = iota
	Hit
	Expired
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case Expired:
		return "expired"
	default:
		return "miss"
	}
}

// PutStatus reports the outcome of a Put.
type PutStatus int

const (
	Ok PutStatus = iota
	OversizeSkipped
)

func (s PutStatus) String() string {
	if s == OversizeSkipped {
		return "oversize_skipped"
	}
	return "ok"
}

// Backend selects where an Engine's entries live.
type Backend int

const (
	// BackendMemory keeps entries in a single process behind a
	// reader-writer lock. This is the default.
	BackendMemory Backend = iota
	// BackendShared keeps entries in a named memory-mapped region that
	// any process on the same host can attach to by Config.Name.
	BackendShared
)

func (b Backend) String() string {
	if b == BackendShared {
		return "shared"
	}
	return "memory"
}

// Engine is the cache contract both backends satisfy. All methods are
// safe for concurrent use by multiple goroutines (and, for the shared
// backend, by multiple processes).
type Engine[K comparable, V any] interface {
	// Get looks up key, promoting it on a hit per the configured
	// eviction Strategy. err is non-nil only for ErrNotHashable (K = any
	// held an incomparable dynamic value) or, on the shared backend,
	// ErrNotSerializable (the key could not be encoded) or
	// ErrCorruptPayload.
	Get(key K) (V, Status, error)

	// Put inserts or overwrites key. err is non-nil only for
	// ErrNotHashable or, on the shared backend, ErrNotSerializable; an
	// oversize key/value is never an error, it reports OversizeSkipped.
	Put(key K, value V) (PutStatus, error)

	// Clear removes every entry.
	Clear()

	// Info reports current statistics.
	Info() metrics.Info

	// Close releases resources held by the engine. On the memory
	// backend, subsequent calls to Get/Put are safe no-ops. The shared
	// backend unmaps its region on Close and has no closed-state check,
	// so its Get/Put/Clear/Info are not safe to call after Close.
	Close() error
}

// Config configures New. Zero values are safe; New applies the
// documented defaults (Strategy: LRU, MaxSize: 128, Backend:
// BackendMemory; on the shared backend also MaxKeySize: 512 and
// MaxValueSize: 4096).
type Config[K comparable, V any] struct {
	// Strategy selects the eviction policy.
	Strategy policy.Kind

	// MaxSize is the maximum number of resident entries.
	MaxSize int

	// TTL is the default time-to-live applied to every entry (0 = no
	// expiration).
	TTL time.Duration

	// Backend selects where entries are stored.
	Backend Backend

	// MaxKeySize and MaxValueSize bound serialized key/value length on
	// the shared backend (0 = the package default). On the in-process
	// backend they bound string/[]byte-typed keys/values only, and 0
	// means unbounded.
	MaxKeySize   int
	MaxValueSize int

	// Name is the shared backend's region name: two processes (or two
	// Engine values in one process) that pass the same Name attach to
	// the same region. Required when Backend is BackendShared.
	Name string

	// KeyCodec and ValueCodec serialize keys/values for the shared
	// backend. Default to codec.GobCodec[T]{}. Unused by the in-process
	// backend, which stores values directly.
	KeyCodec   codec.Codec[K]
	ValueCodec codec.Codec[V]

	Metrics metrics.Metrics
	Clock   Clock
}

func (c *Config[K, V]) setDefaults() {
	if c.MaxSize <= 0 {
		c.MaxSize = 128
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NoopMetrics{}
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
}

// New constructs an Engine using the backend named by cfg.Backend.
// BackendShared returns ErrInvalidConfig if cfg.Name is empty, and
// ErrBackendUnavailable if the current platform has no process-shared
// mmap/flock support.
func New[K comparable, V any](cfg Config[K, V]) (Engine[K, V], error) {
	cfg.setDefaults()

	switch cfg.Backend {
	case BackendMemory:
		store := memory.New[K, V](memory.Options[K, V]{
			Capacity:     cfg.MaxSize,
			Strategy:     cfg.Strategy,
			TTL:          cfg.TTL,
			MaxKeySize:   cfg.MaxKeySize,
			MaxValueSize: cfg.MaxValueSize,
			Metrics:      cfg.Metrics,
			Clock:        cfg.Clock,
		})
		return &memoryEngine[K, V]{s: store}, nil

	case BackendShared:
		if cfg.Name == "" {
			return nil, fmt.Errorf("%w: Name is required for BackendShared", ErrInvalidConfig)
		}
		e, err := shm.New[K, V](shm.Options[K, V]{
			Name:         cfg.Name,
			Capacity:     cfg.MaxSize,
			Strategy:     cfg.Strategy,
			TTL:          cfg.TTL,
			MaxKeySize:   cfg.MaxKeySize,
			MaxValueSize: cfg.MaxValueSize,
			KeyCodec:     cfg.KeyCodec,
			ValueCodec:   cfg.ValueCodec,
			Metrics:      cfg.Metrics,
		})
		if err != nil {
			if errors.Is(err, shm.ErrBackendUnavailable) {
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			return nil, err
		}
		return &shmEngine[K, V]{e: e}, nil

	default:
		return nil, fmt.Errorf("%w: unknown Backend %v", ErrInvalidConfig, cfg.Backend)
	}
}

// memoryEngine adapts memory.Store to Engine, translating the memory
// package's local Status/PutStatus/error types to this package's.
type memoryEngine[K comparable, V any] struct {
	s *memory.Store[K, V]
}

func (m *memoryEngine[K, V]) Get(k K) (V, Status, error) {
	v, st, err := m.s.Get(k)
	if err != nil {
		return v, Miss, translateHashErr(err)
	}
	return v, translateMemoryStatus(st), nil
}

func (m *memoryEngine[K, V]) Put(k K, v V) (PutStatus, error) {
	ps, err := m.s.Put(k, v)
	if err != nil {
		return Ok, translateHashErr(err)
	}
	return translateMemoryPutStatus(ps), nil
}

func (m *memoryEngine[K, V]) Clear()             { m.s.Clear() }
func (m *memoryEngine[K, V]) Info() metrics.Info { return m.s.Info() }
func (m *memoryEngine[K, V]) Close() error       { return m.s.Close() }

func translateHashErr(err error) error {
	if errors.Is(err, memory.ErrNotHashable) {
		return ErrNotHashable
	}
	return err
}

func translateMemoryStatus(st memory.Status) Status {
	switch st {
	case memory.Hit:
		return Hit
	case memory.Expired:
		return Expired
	default:
		return Miss
	}
}

func translateMemoryPutStatus(ps memory.PutStatus) PutStatus {
	if ps == memory.OversizeSkipped {
		return OversizeSkipped
	}
	return Ok
}

// shmEngine adapts shm.Engine to Engine, translating the shm package's
// local Status/PutStatus/error types to this package's.
type shmEngine[K comparable, V any] struct {
	e *shm.Engine[K, V]
}

func (s *shmEngine[K, V]) Get(k K) (V, Status, error) {
	v, st, err := s.e.Get(k)
	if err != nil {
		return v, Miss, translateShmErr(err)
	}
	return v, translateShmStatus(st), nil
}

func (s *shmEngine[K, V]) Put(k K, v V) (PutStatus, error) {
	ps, err := s.e.Put(k, v)
	if err != nil {
		return Ok, translateShmErr(err)
	}
	return translateShmPutStatus(ps), nil
}

func (s *shmEngine[K, V]) Clear()             { s.e.Clear() }
func (s *shmEngine[K, V]) Info() metrics.Info { return s.e.Info() }
func (s *shmEngine[K, V]) Close() error       { return s.e.Close() }

func translateShmErr(err error) error {
	switch {
	case errors.Is(err, shm.ErrNotSerializable):
		return fmt.Errorf("%w: %v", ErrNotSerializable, err)
	case errors.Is(err, shm.ErrCorruptPayload):
		return fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	default:
		return err
	}
}

func translateShmStatus(st shm.Status) Status {
	switch st {
	case shm.Hit:
		return Hit
	case shm.Expired:
		return Expired
	default:
		return Miss
	}
}

func translateShmPutStatus(ps shm.PutStatus) PutStatus {
	if ps == shm.OversizeSkipped {
		return OversizeSkipped
	}
	return Ok
}
