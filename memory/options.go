package memory

import (
	"time"

	"github.com/warpcache/warpcache/metrics"
	"github.com/warpcache/warpcache/policy"
)

// Clock provides the current time; overriding it makes TTL behavior
// deterministic in tests. Defined locally (rather than imported from
// the root package) so this package has no dependency on its caller,
// matching the teacher's own per-package Clock interface.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configures a memory Store. Zero values are safe for every
// field except Capacity, which New requires to be > 0; New applies the
// documented defaults.
type Options[K comparable, V any] struct {
	// Capacity is the maximum number of resident entries. Must be > 0.
	Capacity int

	// Strategy selects the eviction policy. Defaults to policy.LRU.
	Strategy policy.Kind

	// TTL is the default time-to-live applied to every entry (0 = no
	// expiration). spec.md's memory backend has no per-entry TTL
	// override; every entry shares this one.
	TTL time.Duration

	// MaxKeySize and MaxValueSize bound the byte length of string- or
	// []byte-typed keys/values (0 = unbounded). Keys/values of other
	// types have no meaningful byte length without serialization and
	// are never treated as oversize.
	MaxKeySize   int
	MaxValueSize int

	Metrics metrics.Metrics
	Clock   Clock
}

func (o *Options[K, V]) setDefaults() {
	if o.Metrics == nil {
		o.Metrics = metrics.NoopMetrics{}
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
}
