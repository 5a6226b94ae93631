package memory

import (
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"
)

// A mixed workload of concurrent Put/Get/Clear on random keys.
// Should pass under -race without detector reports.
func TestRace_Basic(t *testing.T) {
	s := New[string, []byte](Options[string, []byte]{Capacity: 8_192, TTL: 20 * time.Millisecond})
	t.Cleanup(func() { _ = s.Close() })

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 50_000
	deadline := time.Now().Add(500 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0: // ~1% — Clear
					s.Clear()
				case 1, 2, 3, 4, 5, 6, 7, 8, 9, 10: // ~10% — Put
					s.Put(k, []byte("x"))
				default: // ~89% — Get
					s.Get(k)
				}
			}
		}(w)
	}
	wg.Wait()
}
