// Package codec turns cached values into bytes and back.
//
// Every codec handed to hybridcache is wrapped in Limit, which enforces the
// payload cap on Encode and classifies any Decode failure as ErrCorruptPayload.
package codec

import "errors"

var (
	// ErrPayloadTooLarge reports an encoded value above the configured cap.
	ErrPayloadTooLarge = errors.New("hybridcache: payload too large")
	// ErrCorruptPayload reports bytes that cannot be decoded back into a value.
	ErrCorruptPayload = errors.New("hybridcache: corrupt payload")
)

// Codec encodes/decodes values V to []byte for storage.
// Encode must be deterministic enough that Decode(Encode(v)) is equivalent to v.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
