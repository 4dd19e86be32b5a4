package hybridcache

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/hybridcache/codec"
)

var (
	// ErrPayloadTooLarge: the encoded value exceeds MaxPayloadBytes. GetOrCreate
	// still returns the value; only Set surfaces this error.
	ErrPayloadTooLarge = codec.ErrPayloadTooLarge
	// ErrCorruptPayload: stored bytes failed to decode. Treated as a miss.
	ErrCorruptPayload = codec.ErrCorruptPayload
	// ErrDistributedUnavailable marks distributed tier failures. Never returned
	// by GetOrCreate; seen by Hooks and the logger.
	ErrDistributedUnavailable = errors.New("hybridcache: distributed tier unavailable")
	// ErrLoaderFailed marks errors produced by the loader (including panics).
	// errors.Is also matches the loader's original error.
	ErrLoaderFailed = errors.New("hybridcache: loader failed")
	// ErrTimeout marks a deadline hit while waiting for a load.
	ErrTimeout = errors.New("hybridcache: timeout")
	// ErrKeyEmpty is returned for an empty key.
	ErrKeyEmpty = errors.New("hybridcache: empty key")
	// ErrNilLoader is returned by GetOrCreate without a loader.
	ErrNilLoader = errors.New("hybridcache: nil loader")
)

// RemoveError is returned when a key could not be deleted from any tier.
// A failure of only one tier is logged and reported, not returned.
type RemoveError struct {
	Key            string
	LocalErr       error
	DistributedErr error
}

func (e *RemoveError) Error() string {
	switch {
	case e.LocalErr != nil && e.DistributedErr != nil:
		return fmt.Sprintf("remove %q failed: local and distributed delete failed: local=%v; distributed=%v",
			e.Key, e.LocalErr, e.DistributedErr)
	case e.LocalErr != nil:
		return fmt.Sprintf("remove %q: local delete failed: %v", e.Key, e.LocalErr)
	case e.DistributedErr != nil:
		return fmt.Sprintf("remove %q: distributed delete failed: %v", e.Key, e.DistributedErr)
	default:
		return fmt.Sprintf("remove %q: unknown error", e.Key)
	}
}

func (e *RemoveError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.LocalErr != nil {
		errs = append(errs, e.LocalErr)
	}
	if e.DistributedErr != nil {
		errs = append(errs, e.DistributedErr)
	}
	return errs
}
