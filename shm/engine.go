package shm

import (
	"fmt"
	"time"

	"github.com/warpcache/warpcache/metrics"
	"github.com/warpcache/warpcache/policy"
)

// putRetries bounds how many times Put retries acquiring the writer
// spinlock before giving up. Each attempt already spins up to
// writerSpinBudget times internally, so exhausting all of these
// indicates sustained, extreme multi-writer contention rather than
// ordinary lock latency.
const putRetries = 3

// Engine is the shared-memory cache backend: a memory-mapped region
// attached by name, readable lock-free via a seqlock and mutated
// through a TTAS-protected writer section. Multiple Engine values in
// the same or different processes can attach to the same Name and see
// each other's writes.
type Engine[K comparable, V any] struct {
	opt Options[K, V]
	r   *region
}

// New attaches to (or creates) the named shared-memory region
// described by opt.
func New[K comparable, V any](opt Options[K, V]) (*Engine[K, V], error) {
	opt.setDefaults()

	r, err := openRegion(Config{
		Name:         opt.Name,
		Capacity:     opt.Capacity,
		MaxKeySize:   opt.MaxKeySize,
		MaxValueSize: opt.MaxValueSize,
		Strategy:     opt.Strategy,
		TTL:          int64(opt.TTL),
	})
	if err != nil {
		return nil, err
	}
	return &Engine[K, V]{opt: opt, r: r}, nil
}

func (e *Engine[K, V]) Get(k K) (V, Status, error) {
	var zero V

	kb, err := e.opt.KeyCodec.Encode(k)
	if err != nil {
		return zero, Miss, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	hash := fnv1a64(kb)
	data, l := e.r.data, e.r.l

	var found, expired bool
	var idx int32
	var valueBytes []byte

	withReadLock(data, func() {
		i, ok := htLookup(data, l, hash, kb)
		if !ok {
			found = false
			return
		}
		off := l.slotOffset(i)
		found = true
		idx = i

		// TTL is a property of the shared region, agreed on by whichever
		// handle created it, not of this handle's own Options — read it
		// from the header rather than e.opt.TTL so every attaching
		// process applies the same expiry.
		if ttlNanos := headerGetInt64(data, offTTLNanos); ttlNanos > 0 {
			createdAt := slotCreatedAtGet(data, off)
			if time.Now().UnixNano()-createdAt > ttlNanos {
				expired = true
				return
			}
		}
		valueBytes = append([]byte(nil), slotValueBytes(data, off, l)...)
	})

	if !found {
		atomicAddUint64(data, offMisses, 1)
		e.opt.Metrics.Miss()
		return zero, Miss, nil
	}
	if expired {
		e.purgeExpired(hash, kb, idx)
		atomicAddUint64(data, offMisses, 1)
		e.opt.Metrics.Miss()
		return zero, Expired, nil
	}

	atomicAddUint64(data, offHits, 1)
	e.opt.Metrics.Hit()

	if e.opt.Strategy != policy.FIFO {
		e.assistHitOrdering(hash, kb, idx)
	}

	v, err := e.opt.ValueCodec.Decode(valueBytes)
	if err != nil {
		return zero, Miss, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	return v, Hit, nil
}

// purgeExpired removes a lazily-discovered expired entry under the
// writer path, matching the in-process store's deferred-purge-on-miss
// design. Best-effort: if the slot changed underneath (already
// evicted, reused, or removed by a racing writer), it is left alone.
func (e *Engine[K, V]) purgeExpired(hash uint64, keyBytes []byte, idx int32) {
	data, l := e.r.data, e.r.l
	withWriteLock(data, func() {
		off := l.slotOffset(idx)
		if !slotOccupiedGet(data, off) || !slotKeyMatches(data, off, keyBytes) {
			return
		}
		e.removeSlotLocked(hash, keyBytes, idx)
	})
}

// assistHitOrdering re-verifies the slot under the writer spinlock and
// applies the policy's on-hit reordering, per SPEC_FULL.md's
// writer-assist step for LRU/MRU/LFU. If the slot no longer matches
// (evicted or overwritten concurrently), the update is skipped; the
// value already returned to the caller remains correct since it was
// copied out under a coherent seqlock snapshot.
func (e *Engine[K, V]) assistHitOrdering(hash uint64, keyBytes []byte, idx int32) {
	data, l := e.r.data, e.r.l
	withWriteLock(data, func() {
		off := l.slotOffset(idx)
		if !slotOccupiedGet(data, off) || !bucketHashMatchesSlot(data, off, hash) {
			return
		}
		if !slotKeyMatches(data, off, keyBytes) {
			return
		}
		head := headerGetInt32(data, offListHead)
		tail := headerGetInt32(data, offListTail)
		onAccess(data, l, e.opt.Strategy, &head, &tail, idx)
		headerPutInt32(data, offListHead, head)
		headerPutInt32(data, offListTail, tail)
	})
}

// bucketHashMatchesSlot is a defensive check comparing the slot's
// stored key hash against the hash a caller looked it up with; it
// exists to make assistHitOrdering's re-verification explicit rather
// than relying solely on slotKeyMatches.
func bucketHashMatchesSlot(data []byte, off int64, hash uint64) bool {
	return slotKeyHashGet(data, off) == hash
}

func (e *Engine[K, V]) Put(k K, v V) (PutStatus, error) {
	kb, err := e.opt.KeyCodec.Encode(k)
	if err != nil {
		return Ok, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	vb, err := e.opt.ValueCodec.Encode(v)
	if err != nil {
		return Ok, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}

	if len(kb) > e.opt.MaxKeySize || len(vb) > e.opt.MaxValueSize {
		atomicAddUint64(e.r.data, offOversizeSkips, 1)
		e.opt.Metrics.OversizeSkip()
		return OversizeSkipped, nil
	}

	hash := fnv1a64(kb)
	data := e.r.data
	now := time.Now().UnixNano()

	var lastErr error
	for attempt := 0; attempt < putRetries; attempt++ {
		ok := withWriteLock(data, func() {
			e.putLocked(hash, kb, vb, now)
		})
		if ok {
			lastErr = nil
			break
		}
		lastErr = errBusy
	}
	if lastErr != nil {
		return Ok, fmt.Errorf("shm: put: %w", lastErr)
	}
	e.opt.Metrics.Size(int(headerGetUint32(data, offLiveCount)))
	return Ok, nil
}

// putLocked performs the write-path steps from SPEC_FULL.md's
// write-path list, minus lock acquisition/release which the caller
// (withWriteLock) already handles.
func (e *Engine[K, V]) putLocked(hash uint64, keyBytes, valueBytes []byte, now int64) {
	data, l := e.r.data, e.r.l

	if idx, found := htLookup(data, l, hash, keyBytes); found {
		off := l.slotOffset(idx)
		freq := slotFrequencyGet(data, off)
		writeSlot(data, off, l, hash, keyBytes, valueBytes, now)
		slotFrequencySet(data, off, freq)

		head := headerGetInt32(data, offListHead)
		tail := headerGetInt32(data, offListTail)
		onAccess(data, l, e.opt.Strategy, &head, &tail, idx)
		headerPutInt32(data, offListHead, head)
		headerPutInt32(data, offListTail, tail)
		return
	}

	freeHead := headerGetInt32(data, offFreeHead)
	var idx int32
	evicted := false
	if freeHead != slotNone {
		idx = freeHead
		newFreeHead := slotNextGet(data, l.slotOffset(idx))
		headerPutInt32(data, offFreeHead, newFreeHead)
	} else {
		head := headerGetInt32(data, offListHead)
		tail := headerGetInt32(data, offListTail)
		victim := evictCandidate(e.opt.Strategy, head, tail)
		if victim == slotNone {
			// Capacity 0 or corrupt list state; nothing to evict into.
			return
		}
		voff := l.slotOffset(victim)
		htRemove(data, l, slotKeyHashGet(data, voff), slotKeyBytes(data, voff, l))
		listRemove(data, l, &head, &tail, victim)
		headerPutInt32(data, offListHead, head)
		headerPutInt32(data, offListTail, tail)
		e.opt.Metrics.Evict(metrics.EvictCapacity)
		idx = victim
		evicted = true
	}

	off := l.slotOffset(idx)
	writeSlot(data, off, l, hash, keyBytes, valueBytes, now)
	htInsert(data, l, hash, idx)

	head := headerGetInt32(data, offListHead)
	tail := headerGetInt32(data, offListTail)
	onInsert(data, l, e.opt.Strategy, &head, &tail, idx)
	headerPutInt32(data, offListHead, head)
	headerPutInt32(data, offListTail, tail)

	// Reusing an evicted victim's slot leaves the live count unchanged.
	if !evicted {
		live := headerGetUint32(data, offLiveCount)
		headerPutUint32(data, offLiveCount, live+1)
	}
	atomicAddUint64(data, offMisses, 1)
}

// removeSlotLocked detaches a slot from the hash table and eviction
// list and returns it to the free list. Callers must already hold the
// writer spinlock and have verified the slot's identity.
func (e *Engine[K, V]) removeSlotLocked(hash uint64, keyBytes []byte, idx int32) {
	data, l := e.r.data, e.r.l
	htRemove(data, l, hash, keyBytes)

	head := headerGetInt32(data, offListHead)
	tail := headerGetInt32(data, offListTail)
	listRemove(data, l, &head, &tail, idx)
	headerPutInt32(data, offListHead, head)
	headerPutInt32(data, offListTail, tail)

	off := l.slotOffset(idx)
	clearSlot(data, off)
	freeHead := headerGetInt32(data, offFreeHead)
	slotNextSet(data, off, freeHead)
	headerPutInt32(data, offFreeHead, idx)

	live := headerGetUint32(data, offLiveCount)
	if live > 0 {
		headerPutUint32(data, offLiveCount, live-1)
	}
	e.opt.Metrics.Evict(metrics.EvictTTL)
}

func (e *Engine[K, V]) Clear() {
	data, l := e.r.data, e.r.l
	withWriteLock(data, func() {
		htClear(data, l)
		initFreeList(data, l)
		headerPutInt32(data, offListHead, slotNone)
		headerPutInt32(data, offListTail, slotNone)
		headerPutUint32(data, offLiveCount, 0)
	})
	atomicStoreUint64(data, offHits, 0)
	atomicStoreUint64(data, offMisses, 0)
	atomicStoreUint64(data, offOversizeSkips, 0)
	e.opt.Metrics.Size(0)
}

func (e *Engine[K, V]) Info() metrics.Info {
	data := e.r.data
	return metrics.Info{
		Hits:          atomicLoadUint64(data, offHits),
		Misses:        atomicLoadUint64(data, offMisses),
		OversizeSkips: atomicLoadUint64(data, offOversizeSkips),
		Size:          int(headerGetUint32(data, offLiveCount)),
		MaxSize:       int(e.r.l.capacity),
	}
}

func (e *Engine[K, V]) Close() error {
	return e.r.close()
}
