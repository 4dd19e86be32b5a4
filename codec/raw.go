package codec

// Bytes is an identity codec for []byte values, for loaders that already
// produce serialized output (rendered JSON responses and the like).
type Bytes struct{}

var _ Codec[[]byte] = Bytes{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }

// Decode copies so callers may mutate the result without touching tier memory.
func (Bytes) Decode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

// String is a trivial codec for Go strings. No UTF-8 validation is done.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
