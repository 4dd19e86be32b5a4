package hybridcache

import "time"

const (
	DefaultExpiration            = 5 * time.Minute
	DefaultLocalExpiration       = time.Minute
	DefaultMaxKeyLength          = 1024
	DefaultDistributedTimeout    = 5 * time.Second
	DefaultInvalidateConcurrency = 8

	defaultGenRetention = 24 * time.Hour
	defaultSweep        = 10 * time.Minute
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
