package shm

import "github.com/warpcache/warpcache/policy"

// Intrusive doubly-linked eviction list maintained directly inside the
// slab arena via each slot's prev/next fields, with the list's head and
// tail stored in the header. This mirrors the original implementation's
// shm/ordering.rs almost line for line: the algorithm, not the
// language, is what's being carried over. LRU and MRU share identical
// list mechanics (touch always moves to the tail); they differ only in
// which end evictCandidate reads from. FIFO never reorders. LFU keeps
// the list sorted ascending by (frequency, createdAtNanos): ties within
// a frequency band are broken by the slot's immutable creation time, not
// by how recently it was touched, so the head is always the coldest
// entry — least frequent, and oldest among equals.

func listRemove(data []byte, l layout, head, tail *int32, index int32) {
	off := l.slotOffset(index)
	prev := slotPrevGet(data, off)
	next := slotNextGet(data, off)

	if prev != slotNone {
		slotNextSet(data, l.slotOffset(prev), next)
	} else {
		*head = next
	}
	if next != slotNone {
		slotPrevSet(data, l.slotOffset(next), prev)
	} else {
		*tail = prev
	}
	slotPrevSet(data, off, slotNone)
	slotNextSet(data, off, slotNone)
}

func listPushTail(data []byte, l layout, head, tail *int32, index int32) {
	off := l.slotOffset(index)
	slotPrevSet(data, off, *tail)
	slotNextSet(data, off, slotNone)
	if *tail != slotNone {
		slotNextSet(data, l.slotOffset(*tail), index)
	} else {
		*head = index
	}
	*tail = index
}

func listMoveToTail(data []byte, l layout, head, tail *int32, index int32) {
	if *tail == index {
		return
	}
	listRemove(data, l, head, tail, index)
	listPushTail(data, l, head, tail, index)
}

// listInsertLFU inserts index into the (frequency, createdAt)-ordered
// list, scanning from the tail backward and inserting after the first
// slot that sorts at or before index — i.e. ascending frequency
// overall, with ties within a frequency band broken by ascending
// creation time (oldest first). createdAt is a slot's immutable
// insertion timestamp, never updated by a later touch, so repeated
// accesses can never reorder two entries that are already tied on
// frequency.
func listInsertLFU(data []byte, l layout, head, tail *int32, index int32) {
	off := l.slotOffset(index)
	freq := slotFrequencyGet(data, off)
	createdAt := slotCreatedAtGet(data, off)

	cur := *tail
	for cur != slotNone {
		curOff := l.slotOffset(cur)
		curFreq := slotFrequencyGet(data, curOff)
		if curFreq < freq {
			break
		}
		if curFreq == freq && slotCreatedAtGet(data, curOff) <= createdAt {
			break
		}
		cur = slotPrevGet(data, curOff)
	}

	if cur == slotNone {
		// index becomes the new head.
		slotPrevSet(data, off, slotNone)
		slotNextSet(data, off, *head)
		if *head != slotNone {
			slotPrevSet(data, l.slotOffset(*head), index)
		} else {
			*tail = index
		}
		*head = index
		return
	}

	next := slotNextGet(data, l.slotOffset(cur))
	slotPrevSet(data, off, cur)
	slotNextSet(data, off, next)
	slotNextSet(data, l.slotOffset(cur), index)
	if next != slotNone {
		slotPrevSet(data, l.slotOffset(next), index)
	} else {
		*tail = index
	}
}

// evictCandidate returns the slot index the given strategy would evict
// next, or slotNone if the list is empty.
func evictCandidate(kind policy.Kind, head, tail int32) int32 {
	switch kind {
	case policy.MRU:
		return tail
	default: // LRU, FIFO, LFU
		return head
	}
}

// onInsert links a freshly written slot into the eviction list.
func onInsert(data []byte, l layout, kind policy.Kind, head, tail *int32, index int32) {
	switch kind {
	case policy.LFU:
		listInsertLFU(data, l, head, tail, index)
	default: // LRU, MRU, FIFO
		listPushTail(data, l, head, tail, index)
	}
}

// onAccess repositions an already-resident slot in response to a hit.
func onAccess(data []byte, l layout, kind policy.Kind, head, tail *int32, index int32) {
	switch kind {
	case policy.LRU, policy.MRU:
		listMoveToTail(data, l, head, tail, index)
	case policy.FIFO:
		// FIFO never reorders on access.
	case policy.LFU:
		off := l.slotOffset(index)
		slotFrequencySet(data, off, slotFrequencyGet(data, off)+1)
		listRemove(data, l, head, tail, index)
		listInsertLFU(data, l, head, tail, index)
	}
}
