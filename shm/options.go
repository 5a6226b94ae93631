package shm

import (
	"time"

	"github.com/warpcache/warpcache/codec"
	"github.com/warpcache/warpcache/metrics"
	"github.com/warpcache/warpcache/policy"
)

// Options configures a shared-memory Engine. Name is the deterministic
// file name two engines use to attach to the same region; Capacity,
// Strategy, MaxKeySize and MaxValueSize must match an existing region's
// header or the region is reinitialized from scratch (see region.go's
// headerMatches). TTL is not compared: an attaching engine uses the TTL
// stored in the region's header by its creator.
type Options[K comparable, V any] struct {
	Name         string
	Capacity     int
	Strategy     policy.Kind
	TTL          time.Duration
	MaxKeySize   int
	MaxValueSize int

	KeyCodec   codec.Codec[K]
	ValueCodec codec.Codec[V]
	Metrics    metrics.Metrics
}

func (o *Options[K, V]) setDefaults() {
	if o.Capacity <= 0 {
		o.Capacity = 128
	}
	if o.MaxKeySize <= 0 {
		o.MaxKeySize = 512
	}
	if o.MaxValueSize <= 0 {
		o.MaxValueSize = 4096
	}
	if o.KeyCodec == nil {
		o.KeyCodec = codec.GobCodec[K]{}
	}
	if o.ValueCodec == nil {
		o.ValueCodec = codec.GobCodec[V]{}
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NoopMetrics{}
	}
}
