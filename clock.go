package warpcache

import "time"

// Clock provides the current time. Overriding it with a fake makes TTL
// behavior deterministic in tests, matching the teacher's cache.Clock.
type Clock interface {
	Now() time.Time
}

// systemClock is the default Clock, backed by time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
