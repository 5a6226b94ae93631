package memory

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warpcache/warpcache/policy"
)

// fakeClock is a test double for Clock, letting TTL tests advance time
// deterministically instead of sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestStore_BasicPutGet(t *testing.T) {
	t.Parallel()
	s := New[string, int](Options[string, int]{Capacity: 8})

	if _, st, _ := s.Get("missing"); st != Miss {
		t.Fatalf("Get(missing) = %v, want Miss", st)
	}

	if ps, err := s.Put("a", 1); ps != Ok || err != nil {
		t.Fatalf("Put() = %v, %v; want Ok, nil", ps, err)
	}

	if v, st, err := s.Get("a"); st != Hit || v != 1 || err != nil {
		t.Fatalf("Get(a) = %v, %v, %v; want 1, Hit, nil", v, st, err)
	}
}

func TestStore_TTL_FakeClock(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	s := New[string, int](Options[string, int]{
		Capacity: 8,
		TTL:      time.Minute,
		Clock:    clk,
	})

	s.Put("a", 1)
	if _, st, _ := s.Get("a"); st != Hit {
		t.Fatalf("Get(a) before expiry = %v, want Hit", st)
	}

	clk.advance(2 * time.Minute)

	if _, st, _ := s.Get("a"); st != Expired {
		t.Fatalf("Get(a) after expiry = %v, want Expired", st)
	}
	// Physically removed by the miss-triggered purge; a second Get
	// reports a plain Miss now, not Expired again.
	if _, st, _ := s.Get("a"); st != Miss {
		t.Fatalf("Get(a) after purge = %v, want Miss", st)
	}
}

func TestStore_LRUEviction(t *testing.T) {
	t.Parallel()
	s := New[string, int](Options[string, int]{Capacity: 2, Strategy: policy.LRU})

	s.Put("a", 1)
	s.Put("b", 2)
	s.Get("a") // a is now most recently used; b is the LRU victim
	s.Put("c", 3)

	if _, st, _ := s.Get("b"); st != Miss {
		t.Fatalf("Get(b) = %v, want Miss (should have been evicted)", st)
	}
	if _, st, _ := s.Get("a"); st != Hit {
		t.Fatalf("Get(a) = %v, want Hit", st)
	}
	if _, st, _ := s.Get("c"); st != Hit {
		t.Fatalf("Get(c) = %v, want Hit", st)
	}
}

func TestStore_FIFOEviction(t *testing.T) {
	t.Parallel()
	s := New[string, int](Options[string, int]{Capacity: 2, Strategy: policy.FIFO})

	s.Put("a", 1)
	s.Put("b", 2)
	s.Get("a") // FIFO never reorders on access
	s.Put("c", 3)

	if _, st, _ := s.Get("a"); st != Miss {
		t.Fatalf("Get(a) = %v, want Miss (oldest inserted, must be evicted)", st)
	}
}

func TestStore_FIFOOverwritePutDoesNotReorder(t *testing.T) {
	t.Parallel()
	s := New[string, int](Options[string, int]{Capacity: 2, Strategy: policy.FIFO})

	s.Put("a", 1)
	s.Put("b", 2)
	s.Put("a", 99) // overwrite; FIFO order must stay a, b
	s.Put("c", 3)  // capacity exceeded; a (oldest) must be evicted, not b

	if _, st, _ := s.Get("a"); st != Miss {
		t.Fatalf("Get(a) = %v, want Miss (oldest insertion, overwrite must not reorder it)", st)
	}
	if v, st, _ := s.Get("b"); st != Hit || v != 2 {
		t.Fatalf("Get(b) = %v, %v; want 2, Hit", v, st)
	}
	if v, st, _ := s.Get("c"); st != Hit || v != 3 {
		t.Fatalf("Get(c) = %v, %v; want 3, Hit", v, st)
	}
}

func TestStore_OversizeSkip(t *testing.T) {
	t.Parallel()
	s := New[string, string](Options[string, string]{Capacity: 8, MaxValueSize: 4})

	ps, err := s.Put("k", "toolong")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ps != OversizeSkipped {
		t.Fatalf("Put() = %v, want OversizeSkipped", ps)
	}
	if _, st, _ := s.Get("k"); st != Miss {
		t.Fatalf("Get(k) = %v, want Miss (oversize put must not be stored)", st)
	}

	info := s.Info()
	if info.OversizeSkips != 1 {
		t.Fatalf("Info().OversizeSkips = %d, want 1", info.OversizeSkips)
	}
}

func TestStore_NotHashable(t *testing.T) {
	t.Parallel()
	s := New[any, int](Options[any, int]{Capacity: 8})

	// A slice is not comparable; storing it as a map key panics at
	// runtime, which Store must convert into ErrNotHashable.
	if _, err := s.Put([]int{1, 2, 3}, 1); err != ErrNotHashable {
		t.Fatalf("Put() err = %v, want ErrNotHashable", err)
	}
	if _, _, err := s.Get([]int{1, 2, 3}); err != ErrNotHashable {
		t.Fatalf("Get() err = %v, want ErrNotHashable", err)
	}

	// The store must remain usable after recovering from the panic.
	if ps, err := s.Put("k", 1); ps != Ok || err != nil {
		t.Fatalf("Put(k) after panic recovery = %v, %v; want Ok, nil", ps, err)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	s := New[int, int](Options[int, int]{Capacity: 64, Strategy: policy.LFU})

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 500; i++ {
				k := (w*997 + i) % 100
				s.Put(k, k)
				s.Get(k)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup: %v", err)
	}

	info := s.Info()
	if info.Size > 64 {
		t.Fatalf("Info().Size = %d, want <= 64", info.Size)
	}
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()
	s := New[string, int](Options[string, int]{Capacity: 8})
	s.Put("a", 1)
	s.Put("b", 2)
	s.Clear()

	if info := s.Info(); info.Size != 0 {
		t.Fatalf("Info().Size after Clear = %d, want 0", info.Size)
	}
	if _, st, _ := s.Get("a"); st != Miss {
		t.Fatalf("Get(a) after Clear = %v, want Miss", st)
	}
}

func TestStore_CloseIsIdempotentAndDisablesOps(t *testing.T) {
	t.Parallel()
	s := New[string, int](Options[string, int]{Capacity: 8})
	s.Put("a", 1)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if ps, _ := s.Put("b", 2); ps != Ok {
		t.Fatalf("Put after Close should be a silent no-op")
	}
	if _, st, _ := s.Get("b"); st != Miss {
		t.Fatalf("Get(b) after Close = %v, want Miss", st)
	}
}
