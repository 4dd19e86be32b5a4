// Package keys builds canonical cache keys from a namespace and parameters.
//
//	keys.Encode("products", keys.P("page", 1), keys.P("limit", 20), keys.P("cat", "all"))
//	// products:page:1:limit:20:cat:all
//
// Components are separated by ':'. Any ':' or '\' inside a component is escaped
// with '\', so distinct parameter lists never encode to the same key.
package keys

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const sep = ':'

// Param is one named key component. Order is preserved by Encode.
type Param struct {
	Name  string
	Value any
}

// P is shorthand for Param{Name: name, Value: value}.
func P(name string, value any) Param { return Param{Name: name, Value: value} }

// Encode joins namespace and params as ns:name:value:name:value...
func Encode(namespace string, params ...Param) string {
	var b strings.Builder
	b.Grow(len(namespace) + 16*len(params))
	writeEscaped(&b, namespace)
	for _, p := range params {
		b.WriteByte(sep)
		writeEscaped(&b, p.Name)
		b.WriteByte(sep)
		writeEscaped(&b, format(p.Value))
	}
	return b.String()
}

// EncodeMap is Encode with params sorted by name, for callers holding an
// unordered parameter set.
func EncodeMap(namespace string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	ps := make([]Param, len(names))
	for i, n := range names {
		ps[i] = Param{Name: n, Value: params[n]}
	}
	return Encode(namespace, ps...)
}

// Hash shortens key to prefix:#<16 hex digits of xxhash64>.
func Hash(prefix, key string) string {
	return prefix + ":#" + fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

func writeEscaped(b *strings.Builder, s string) {
	if !strings.ContainsAny(s, `:\`) {
		b.WriteString(s)
		return
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == sep || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
