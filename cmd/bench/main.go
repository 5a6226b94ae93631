// Command bench runs a synthetic Zipf-distributed workload against a
// warpcache Engine and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warpcache/warpcache"
	pmet "github.com/warpcache/warpcache/metrics/prom"
	"github.com/warpcache/warpcache/policy"
)

func main() {
	// ---- Flags ----
	var (
		capacity = flag.Int("cap", 100_000, "cache capacity (entries)")
		strategy = flag.String("policy", "lru", "eviction policy: lru | mru | fifo | lfu")
		backend  = flag.String("backend", "memory", "storage backend: memory | shared")
		name     = flag.String("name", "warpcache-bench", "region name (backend=shared only)")
		ttl      = flag.Duration("ttl", 0, "entry TTL (0 = no expiry)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = cap/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	strat, err := parseStrategy(*strategy)
	if err != nil {
		log.Fatal(err)
	}
	be, err := parseBackend(*backend)
	if err != nil {
		log.Fatal(err)
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	met := pmet.New(nil, "warpcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build cache ----
	c, err := warpcache.New[string, string](warpcache.Config[string, string]{
		Strategy: strat,
		MaxSize:  *capacity,
		TTL:      *ttl,
		Backend:  be,
		Name:     *name,
		Metrics:  met,
	})
	if err != nil {
		log.Fatalf("warpcache.New: %v", err)
	}
	defer func() { _ = c.Close() }()

	// ---- Preload half capacity to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = *capacity / 2
	}
	for i := 0; i < pl; i++ {
		k := "k:" + strconv.Itoa(i)
		if _, err := c.Put(k, "v"+strconv.Itoa(i)); err != nil {
			log.Fatalf("preload Put: %v", err)
		}
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, hits, misses, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					if _, st, err := c.Get(keyByZipf()); err == nil && st == warpcache.Hit {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				} else {
					atomic.AddUint64(&writes, 1)
					k := keyByZipf()
					if _, err := c.Put(k, "v"+strconv.Itoa(localR.Int())); err != nil {
						log.Printf("worker %d: Put: %v", id, err)
					}
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	info := c.Info()
	fmt.Printf("backend=%s policy=%s cap=%d workers=%d keys=%d dur=%v seed=%d\n",
		be, strat, *capacity, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
	fmt.Printf("Info: size=%d max_size=%d oversize_skips=%d\n", info.Size, info.MaxSize, info.OversizeSkips)
}

func parseStrategy(s string) (policy.Kind, error) {
	switch s {
	case "lru":
		return policy.LRU, nil
	case "mru":
		return policy.MRU, nil
	case "fifo":
		return policy.FIFO, nil
	case "lfu":
		return policy.LFU, nil
	default:
		return 0, fmt.Errorf("unknown policy: %q (use lru, mru, fifo, or lfu)", s)
	}
}

func parseBackend(s string) (warpcache.Backend, error) {
	switch s {
	case "memory":
		return warpcache.BackendMemory, nil
	case "shared":
		return warpcache.BackendShared, nil
	default:
		return 0, fmt.Errorf("unknown backend: %q (use memory or shared)", s)
	}
}
