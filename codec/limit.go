package codec

import "fmt"

// DefaultMaxPayload is the payload cap used when none is configured (1 MiB).
const DefaultMaxPayload = 1 << 20

// SizeError carries the offending size. It matches ErrPayloadTooLarge under errors.Is.
type SizeError struct {
	Size int
	Max  int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("hybridcache: payload too large: %d > %d bytes", e.Size, e.Max)
}

func (e *SizeError) Is(target error) bool { return target == ErrPayloadTooLarge }

// Limit wraps Inner with a byte cap.
//
// Encode fails with a *SizeError when the encoded form exceeds Max.
// Decode rejects inputs above Max without invoking Inner, and wraps every Inner
// failure in ErrCorruptPayload. Max <= 0 disables the cap.
type Limit[V any] struct {
	Inner Codec[V]
	Max   int
}

var _ Codec[struct{}] = Limit[struct{}]{}

// NewLimit returns Limit{Inner: inner, Max: max}.
func NewLimit[V any](inner Codec[V], max int) Limit[V] {
	return Limit[V]{Inner: inner, Max: max}
}

func (c Limit[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.Max > 0 && len(b) > c.Max {
		return nil, &SizeError{Size: len(b), Max: c.Max}
	}
	return b, nil
}

func (c Limit[V]) Decode(b []byte) (V, error) {
	var zero V
	if c.Max > 0 && len(b) > c.Max {
		return zero, fmt.Errorf("%w: %d > %d bytes", ErrCorruptPayload, len(b), c.Max)
	}
	v, err := c.Inner.Decode(b)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrCorruptPayload, err)
	}
	return v, nil
}
