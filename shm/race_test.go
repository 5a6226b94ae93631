//go:build unix

package shm

import (
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"
)

// A mixed workload of concurrent Put/Get/Clear on random keys, driven
// through two independent Engine handles attached to a single region to
// exercise cross-handle contention on the same region. Should pass
// under -race without detector reports.
func TestRace_Basic(t *testing.T) {
	name := uniqueName(t)
	e1 := newTestEngine(t, Options[string, string]{Name: name, Capacity: 4096, MaxKeySize: 32, MaxValueSize: 32})
	e2 := newTestEngine(t, Options[string, string]{Name: name, Capacity: 4096, MaxKeySize: 32, MaxValueSize: 32})

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 20_000
	deadline := time.Now().Add(500 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			e := e1
			if id%2 == 1 {
				e = e2
			}
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0: // ~1% — Clear
					e.Clear()
				case 1, 2, 3, 4, 5, 6, 7, 8, 9, 10: // ~10% — Put
					e.Put(k, "x")
				default: // ~89% — Get
					e.Get(k)
				}
			}
		}(w)
	}
	wg.Wait()
}
