//go:build unix

package shm

import (
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warpcache/warpcache/policy"
)

func uniqueName(t *testing.T) string {
	return fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
}

func newTestEngine[K comparable, V any](t *testing.T, opt Options[K, V]) *Engine[K, V] {
	t.Helper()
	if opt.Name == "" {
		opt.Name = uniqueName(t)
	}
	e, err := New[K, V](opt)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine_BasicPutGet(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Options[string, string]{Capacity: 8, MaxKeySize: 32, MaxValueSize: 32})

	if _, st, _ := e.Get("missing"); st != Miss {
		t.Fatalf("Get(missing) = %v, want Miss", st)
	}
	if ps, err := e.Put("a", "1"); ps != Ok || err != nil {
		t.Fatalf("Put() = %v, %v; want Ok, nil", ps, err)
	}
	if v, st, err := e.Get("a"); st != Hit || v != "1" || err != nil {
		t.Fatalf("Get(a) = %v, %v, %v; want 1, Hit, nil", v, st, err)
	}
}

func TestEngine_OversizeSkip(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Options[string, string]{Capacity: 8, MaxKeySize: 32, MaxValueSize: 4})

	ps, err := e.Put("k", "way too long for four bytes")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ps != OversizeSkipped {
		t.Fatalf("Put() = %v, want OversizeSkipped", ps)
	}
	if _, st, _ := e.Get("k"); st != Miss {
		t.Fatalf("Get(k) = %v, want Miss", st)
	}
	if info := e.Info(); info.OversizeSkips != 1 {
		t.Fatalf("Info().OversizeSkips = %d, want 1", info.OversizeSkips)
	}
}

func TestEngine_CapacityEviction(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Options[string, string]{
		Capacity: 2, Strategy: policy.FIFO, MaxKeySize: 32, MaxValueSize: 32,
	})

	e.Put("a", "1")
	e.Put("b", "2")
	e.Put("c", "3")

	if _, st, _ := e.Get("a"); st != Miss {
		t.Fatalf("Get(a) = %v, want Miss (should be evicted, FIFO)", st)
	}
	if _, st, _ := e.Get("c"); st != Hit {
		t.Fatalf("Get(c) = %v, want Hit", st)
	}
}

func TestEngine_TTLExpiry(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Options[string, string]{
		Capacity: 8, TTL: 20 * time.Millisecond, MaxKeySize: 32, MaxValueSize: 32,
	})

	e.Put("a", "1")
	if _, st, _ := e.Get("a"); st != Hit {
		t.Fatalf("Get(a) before expiry = %v, want Hit", st)
	}

	time.Sleep(60 * time.Millisecond)

	if _, st, _ := e.Get("a"); st != Expired {
		t.Fatalf("Get(a) after expiry = %v, want Expired", st)
	}
}

func TestEngine_TwoHandlesShareState(t *testing.T) {
	t.Parallel()
	name := uniqueName(t)

	e1 := newTestEngine(t, Options[string, int]{Name: name, Capacity: 16, MaxKeySize: 32, MaxValueSize: 32})
	e2 := newTestEngine(t, Options[string, int]{Name: name, Capacity: 16, MaxKeySize: 32, MaxValueSize: 32})

	if _, err := e1.Put("shared", 42); err != nil {
		t.Fatalf("Put via e1: %v", err)
	}
	v, st, err := e2.Get("shared")
	if err != nil || st != Hit || v != 42 {
		t.Fatalf("Get via e2 = %v, %v, %v; want 42, Hit, nil", v, st, err)
	}
}

func TestEngine_ReopenWithDifferentParamsReinitializes(t *testing.T) {
	t.Parallel()
	name := uniqueName(t)

	e1 := newTestEngine(t, Options[string, int]{Name: name, Capacity: 64, MaxKeySize: 32, MaxValueSize: 32})
	e1.Put("a", 1)
	e1.Put("b", 2)
	if info := e1.Info(); info.Size != 2 {
		t.Fatalf("Info().Size before reopen = %d, want 2", info.Size)
	}
	if err := e1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening the same region name with a different Capacity must
	// truncate and reinitialize the file rather than attach to the
	// existing (now parameter-mismatched) data.
	e2 := newTestEngine(t, Options[string, int]{Name: name, Capacity: 128, MaxKeySize: 32, MaxValueSize: 32})
	if info := e2.Info(); info.Size != 0 {
		t.Fatalf("Info().Size after reopen with different Capacity = %d, want 0 (reinitialized)", info.Size)
	}
	if _, st, _ := e2.Get("a"); st != Miss {
		t.Fatalf("Get(a) after reinit = %v, want Miss", st)
	}
}

func TestEngine_TTLIsSharedRegionPropertyNotPerHandle(t *testing.T) {
	t.Parallel()
	name := uniqueName(t)

	// e1 creates the region and fixes its TTL at 30ms. e2 attaches with a
	// much shorter local TTL, which must have no effect: expiry is
	// governed by the header's ttl_ns, agreed on at creation, not by
	// whichever handle happens to read a slot.
	e1 := newTestEngine(t, Options[string, string]{
		Name: name, Capacity: 8, TTL: 30 * time.Millisecond, MaxKeySize: 32, MaxValueSize: 32,
	})
	e2 := newTestEngine(t, Options[string, string]{
		Name: name, Capacity: 8, TTL: 1 * time.Millisecond, MaxKeySize: 32, MaxValueSize: 32,
	})

	if _, err := e1.Put("a", "1"); err != nil {
		t.Fatalf("Put via e1: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	// e2's own TTL (1ms) has long since elapsed, but the header's TTL
	// (30ms) has not: e2 must still see a hit.
	if _, st, _ := e2.Get("a"); st != Hit {
		t.Fatalf("Get(a) via e2 at 10ms = %v, want Hit (header TTL is 30ms)", st)
	}

	time.Sleep(40 * time.Millisecond)
	// Now the header's 30ms TTL has elapsed; both handles must agree.
	if _, st, _ := e1.Get("a"); st != Expired {
		t.Fatalf("Get(a) via e1 after 50ms = %v, want Expired", st)
	}
}

func TestEngine_ConcurrentAccess(t *testing.T) {
	e := newTestEngine(t, Options[int, int]{
		Capacity: 64, Strategy: policy.LFU, MaxKeySize: 32, MaxValueSize: 32,
	})

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				k := (w*997 + i) % 100
				if _, err := e.Put(k, k); err != nil {
					return err
				}
				e.Get(k)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup: %v", err)
	}

	if info := e.Info(); info.Size > 64 {
		t.Fatalf("Info().Size = %d, want <= 64", info.Size)
	}
}

func TestEngine_Clear(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Options[string, int]{Capacity: 8, MaxKeySize: 32, MaxValueSize: 32})

	e.Put("a", 1)
	e.Put("b", 2)
	e.Clear()

	if info := e.Info(); info.Size != 0 {
		t.Fatalf("Info().Size after Clear = %d, want 0", info.Size)
	}
	if _, st, _ := e.Get("a"); st != Miss {
		t.Fatalf("Get(a) after Clear = %v, want Miss", st)
	}
}
