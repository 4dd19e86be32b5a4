// Package wire frames cache entries for storage in either tier.
//
// Entry: magic(4) | ver(1) | flags(1) | created(i64 be, unix nano) | expires(i64 be, unix nano)
//
//	| ntags(u16 be) | [tagLen(u16 be) | tag(tagLen)] * ntags | vlen(u32 be) | payload(vlen)
//
// expires == 0 means the entry carries no absolute expiry of its own.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version byte = 1

	maxTags   = 0xFFFF
	maxTagLen = 0xFFFF
	fixedHdr  = 4 + 1 + 1 + 8 + 8 + 2
)

var (
	ErrCorrupt    = errors.New("hybridcache: corrupt entry")
	ErrInvalidTag = errors.New("hybridcache: invalid tag")
	magic4        = [...]byte{'H', 'Y', 'B', 'C'}
)

// Entry is one tier copy of a cached value.
type Entry struct {
	CreatedAt time.Time
	ExpiresAt time.Time // zero => no frame-level expiry
	Tags      []string
	Payload   []byte
}

// Expired reports whether the entry is past its frame expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Remaining is the lifetime left at now; 0 when expired, and max when unbounded.
func (e Entry) Remaining(now time.Time, max time.Duration) time.Duration {
	if e.ExpiresAt.IsZero() {
		return max
	}
	d := e.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Encode frames e. Tags must be non-empty and at most 0xFFFF bytes each.
func Encode(e Entry) ([]byte, error) {
	if len(e.Tags) > maxTags {
		return nil, ErrInvalidTag
	}
	total := fixedHdr + 4 + len(e.Payload)
	for _, t := range e.Tags {
		if l := len(t); l == 0 || l > maxTagLen {
			return nil, ErrInvalidTag
		}
		total += 2 + len(t)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(0) // flags, reserved

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(unixNano(e.CreatedAt)))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(unixNano(e.ExpiresAt)))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Tags)))
	buf.Write(u2[:])
	for _, t := range e.Tags {
		binary.BigEndian.PutUint16(u2[:], uint16(len(t)))
		buf.Write(u2[:])
		buf.WriteString(t)
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
	return buf.Bytes(), nil
}

// Decode parses a frame. Trailing bytes are rejected. Payload aliases b.
func Decode(b []byte) (Entry, error) {
	if len(b) < fixedHdr+4 || !hasMagic(b) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	off := 6

	created := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	expires := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2

	// each tag needs at least 3 bytes; reject absurd counts before allocating
	if n*3 > len(b)-off {
		return Entry{}, ErrCorrupt
	}
	var tags []string
	if n > 0 {
		tags = make([]string, 0, n)
	}
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return Entry{}, ErrCorrupt
		}
		tl := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if tl == 0 || tl > len(b)-off {
			return Entry{}, ErrCorrupt
		}
		tags = append(tags, string(b[off:off+tl]))
		off += tl
	}

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	return Entry{
		CreatedAt: fromUnixNano(created),
		ExpiresAt: fromUnixNano(expires),
		Tags:      tags,
		Payload:   b[off : off+vlen],
	}, nil
}
