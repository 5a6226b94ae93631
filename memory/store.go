package memory

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/warpcache/warpcache/internal/util"
	"github.com/warpcache/warpcache/metrics"
	"github.com/warpcache/warpcache/policy"
)

// ErrNotHashable is returned by Get and Put when K is instantiated as
// any (or another interface type) and the concrete key value stored in
// it is not runtime-comparable — a slice, map, or function. Keys typed
// with a concrete comparable type can never trigger this; Go's
// comparable constraint already rules it out at compile time.
var ErrNotHashable = errors.New("memory: key is not hashable")

// accessLogCapacity bounds the deferred promotion queue, matching the
// original implementation's ACCESS_LOG_CAPACITY.
const accessLogCapacity = 64

// Store is the in-process engine: a single map guarded by one
// reader-writer lock, plus a bounded deferred access log used to defer
// recency/frequency promotion off the read path. It is the concrete
// type behind the memory backend of Engine[K,V].
type Store[K comparable, V any] struct {
	opt Options[K, V]

	mu    sync.RWMutex
	m     map[K]*entry[V]
	strat *policy.Strategy[K]

	logMu  sync.Mutex
	log    []K
	logLen int

	hits          util.PaddedAtomicUint64
	misses        util.PaddedAtomicUint64
	oversizeSkips util.PaddedAtomicUint64

	closed atomic.Bool
}

// New constructs a Store. Panics if opt.Capacity <= 0, matching the
// teacher's own constructor contract.
func New[K comparable, V any](opt Options[K, V]) *Store[K, V] {
	if opt.Capacity <= 0 {
		panic("memory: Capacity must be > 0")
	}
	opt.setDefaults()
	return &Store[K, V]{
		opt:   opt,
		m:     make(map[K]*entry[V], opt.Capacity),
		strat: policy.New[K](opt.Strategy),
		log:   make([]K, accessLogCapacity),
	}
}

// Get looks up key, promoting it on a hit. The promotion itself is
// deferred to a bounded access log (pushed here under the read lock,
// drained later under the write lock) so concurrent readers never
// contend on the eviction strategy's internal structures.
func (s *Store[K, V]) Get(k K) (v V, st Status, err error) {
	if s.closed.Load() {
		var zero V
		return zero, Miss, nil
	}
	e, ok, expired, lookupErr := s.lookupLocked(k)
	if lookupErr != nil {
		var zero V
		return zero, Miss, lookupErr
	}

	if ok && !expired {
		atomic.AddUint64(&e.frequency, 1)
		s.pushAccessLog(k)
		s.hits.Add(1)
		s.opt.Metrics.Hit()
		return e.value, Hit, nil
	}

	// Miss or expired: take the write lock to drain pending promotions
	// and, if the entry had merely expired, purge it now — expired
	// entries are only ever physically removed on a write.
	if drainErr := s.drainAndPurgeLocked(k, ok); drainErr != nil {
		var zero V
		return zero, Miss, drainErr
	}

	s.misses.Add(1)
	s.opt.Metrics.Miss()
	var zero V
	if ok {
		return zero, Expired, nil
	}
	return zero, Miss, nil
}

// lookupLocked reads the entry for k under the read lock. The lock is
// always released, including when the map access panics because K=any
// holds a runtime-incomparable value.
func (s *Store[K, V]) lookupLocked(k K) (e *entry[V], ok bool, expired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrNotHashable
		}
	}()
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok = s.m[k]
	if ok {
		expired = s.expiredLocked(e)
	}
	return e, ok, expired, nil
}

// drainAndPurgeLocked drains the access log and, if wasPresent is true
// and the entry is still expired, removes it. The write lock is always
// released, including on a hashing panic.
func (s *Store[K, V]) drainAndPurgeLocked(k K, wasPresent bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrNotHashable
		}
	}()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainAccessLogLocked()
	if wasPresent {
		if e2, ok2 := s.m[k]; ok2 && s.expiredLocked(e2) {
			s.removeLocked(k, metrics.EvictTTL)
		}
	}
	return nil
}

// Put inserts or overwrites key with value. Keys/values exceeding the
// configured MaxKeySize/MaxValueSize are silently skipped and counted,
// never surfaced as an error.
func (s *Store[K, V]) Put(k K, v V) (PutStatus, error) {
	if s.closed.Load() {
		return Ok, nil
	}
	if s.oversizeLen(k, s.opt.MaxKeySize) || s.oversizeLen(v, s.opt.MaxValueSize) {
		s.oversizeSkips.Add(1)
		s.opt.Metrics.OversizeSkip()
		return OversizeSkipped, nil
	}
	if err := s.putLocked(k, v); err != nil {
		return Ok, err
	}
	return Ok, nil
}

// putLocked performs the write-lock-held insert/overwrite/evict
// sequence. The write lock is always released, including on a hashing
// panic triggered by the map operations below.
func (s *Store[K, V]) putLocked(k K, v V) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrNotHashable
		}
	}()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainAccessLogLocked()

	_, exists := s.m[k]
	s.m[k] = &entry[V]{value: v, createdAt: s.opt.Clock.Now()}
	if exists {
		// Overwrite without disturbing eviction order: FIFO's on_hit is
		// a no-op, LRU/MRU's moves the key to the back — Touch is the
		// one hook that already encodes both, matching the original
		// implementation's fifo.rs insert(), which replaces in place
		// rather than reinserting.
		s.strat.Touch(k)
	} else {
		s.strat.Record(k)
	}

	if len(s.m) > s.opt.Capacity {
		if victim, ok := s.strat.Victim(); ok {
			s.removeLocked(victim, metrics.EvictPolicy)
		}
	}

	s.opt.Metrics.Size(len(s.m))
	return nil
}

// Clear removes every entry.
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[K]*entry[V], s.opt.Capacity)
	s.strat.Clear()

	s.logMu.Lock()
	s.logLen = 0
	s.logMu.Unlock()

	s.opt.Metrics.Size(0)
}

// Close marks the store closed. Subsequent Get/Put calls are no-ops.
// Close never returns an error; the memory backend owns no external
// resource that could fail to release.
func (s *Store[K, V]) Close() error {
	s.closed.Store(true)
	return nil
}

// Info reports current statistics.
func (s *Store[K, V]) Info() metrics.Info {
	s.mu.RLock()
	size := len(s.m)
	s.mu.RUnlock()
	return metrics.Info{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Size:          size,
		MaxSize:       s.opt.Capacity,
		OversizeSkips: s.oversizeSkips.Load(),
	}
}

// -------------------- internals --------------------

func (s *Store[K, V]) expiredLocked(e *entry[V]) bool {
	if s.opt.TTL <= 0 {
		return false
	}
	return s.opt.Clock.Now().After(e.createdAt.Add(s.opt.TTL))
}

// removeLocked deletes key from the map and the strategy and reports
// the removal to metrics. Callers must hold s.mu for writing.
func (s *Store[K, V]) removeLocked(k K, reason metrics.EvictReason) {
	if _, ok := s.m[k]; !ok {
		return
	}
	delete(s.m, k)
	s.strat.Remove(k)
	s.opt.Metrics.Evict(reason)
}

// pushAccessLog best-effort records that key was read. If the log is
// currently full, the touch is dropped — the strategy's ordering will
// simply lag until the next drain, never block a reader.
func (s *Store[K, V]) pushAccessLog(k K) {
	s.logMu.Lock()
	if s.logLen < len(s.log) {
		s.log[s.logLen] = k
		s.logLen++
	}
	s.logMu.Unlock()
}

// drainAccessLogLocked replays every queued touch into the strategy.
// Callers must hold s.mu for writing.
func (s *Store[K, V]) drainAccessLogLocked() {
	s.logMu.Lock()
	n := s.logLen
	if n == 0 {
		s.logMu.Unlock()
		return
	}
	pending := append([]K(nil), s.log[:n]...)
	s.logLen = 0
	s.logMu.Unlock()

	for _, k := range pending {
		if _, ok := s.m[k]; ok {
			s.strat.Touch(k)
		}
	}
}

// oversizeLen reports whether v's byte length exceeds limit. Only
// string and []byte have a meaningful byte length without
// serialization; other types are never considered oversize by the
// memory backend (limit <= 0 also disables the check).
func (s *Store[K, V]) oversizeLen(v any, limit int) bool {
	if limit <= 0 {
		return false
	}
	switch x := v.(type) {
	case string:
		return len(x) > limit
	case []byte:
		return len(x) > limit
	default:
		return false
	}
}
