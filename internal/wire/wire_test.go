package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func mustEncode(t *testing.T, e Entry) []byte {
	t.Helper()
	b, err := Encode(e)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return b
}

func mustDecode(t *testing.T, b []byte) Entry {
	t.Helper()
	e, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return e
}

func TestEntryRoundTrip(t *testing.T) {
	cases := []Entry{
		{},
		{CreatedAt: t0, ExpiresAt: t0.Add(time.Minute), Payload: []byte("hello")},
		{CreatedAt: t0, ExpiresAt: t0.Add(5 * time.Minute), Tags: []string{"products", "stats"}, Payload: []byte{0, 1, 2}},
		{CreatedAt: t0, Tags: []string{"dup", "dup"}},
	}
	for i, in := range cases {
		got := mustDecode(t, mustEncode(t, in))
		if !got.CreatedAt.Equal(in.CreatedAt) || !got.ExpiresAt.Equal(in.ExpiresAt) {
			t.Fatalf("case %d: time mismatch got=(%v,%v) want=(%v,%v)", i, got.CreatedAt, got.ExpiresAt, in.CreatedAt, in.ExpiresAt)
		}
		if len(got.Tags) != len(in.Tags) {
			t.Fatalf("case %d: tags len %d want %d", i, len(got.Tags), len(in.Tags))
		}
		for j := range in.Tags {
			if got.Tags[j] != in.Tags[j] {
				t.Fatalf("case %d: tag %d = %q want %q", i, j, got.Tags[j], in.Tags[j])
			}
		}
		if !bytes.Equal(got.Payload, in.Payload) {
			t.Fatalf("case %d: payload %x want %x", i, got.Payload, in.Payload)
		}
	}
}

func TestZeroTimesStayZero(t *testing.T) {
	got := mustDecode(t, mustEncode(t, Entry{Payload: []byte("x")}))
	if !got.CreatedAt.IsZero() || !got.ExpiresAt.IsZero() {
		t.Fatalf("zero times not preserved: %+v", got)
	}
	if got.Expired(t0.Add(100 * 365 * 24 * time.Hour)) {
		t.Fatalf("entry without expiry reported expired")
	}
}

func TestExpiredAndRemaining(t *testing.T) {
	e := Entry{ExpiresAt: t0.Add(10 * time.Millisecond)}
	if e.Expired(t0) {
		t.Fatalf("fresh entry reported expired")
	}
	if !e.Expired(t0.Add(10 * time.Millisecond)) {
		t.Fatalf("entry at its expiry instant must be expired")
	}
	if got := e.Remaining(t0.Add(4*time.Millisecond), time.Minute); got != 6*time.Millisecond {
		t.Fatalf("Remaining = %v want 6ms", got)
	}
	if got := e.Remaining(t0, 3*time.Millisecond); got != 3*time.Millisecond {
		t.Fatalf("Remaining should cap at max, got %v", got)
	}
	if got := e.Remaining(t0.Add(time.Second), time.Minute); got != 0 {
		t.Fatalf("Remaining past expiry = %v want 0", got)
	}
	if got := (Entry{}).Remaining(t0, time.Minute); got != time.Minute {
		t.Fatalf("unbounded entry Remaining = %v want max", got)
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := mustEncode(t, Entry{CreatedAt: t0, Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD)
	if _, err := Decode(enc); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt on trailing bytes, got %v", err)
	}
}

func TestCorruptHeadersAndLengths(t *testing.T) {
	enc := mustEncode(t, Entry{CreatedAt: t0, Tags: []string{"k"}, Payload: []byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// tag length announces more than available
	// header: 4 magic +1 ver +1 flags +8 created +8 expires +2 ntags = 24
	badTag := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badTag[24:26], 0xFFFF)
	if _, err := Decode(badTag); err == nil {
		t.Fatalf("expected error on tag length beyond buffer")
	}

	// vlen beyond remaining: 24 + 2 + len("k") = 27
	badVlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badVlen[27:31], uint32(len("abc")+1))
	if _, err := Decode(badVlen); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}

	if _, err := Decode([]byte("not-wire-format")); err == nil {
		t.Fatalf("expected error on foreign bytes")
	}
}

func TestBogusTagCountNotPrealloc(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(0)
	buf.Write(make([]byte, 16))
	var u2 [2]byte
	binary.BigEndian.PutUint16(u2[:], 0xFFFF)
	buf.Write(u2[:])
	buf.Write(make([]byte, 4))
	if _, err := Decode(buf.Bytes()); err == nil {
		t.Fatalf("expected error on tag count with insufficient bytes")
	}
}

func TestTagValidation(t *testing.T) {
	if _, err := Encode(Entry{Tags: []string{""}}); !errors.Is(err, ErrInvalidTag) {
		t.Fatalf("expected ErrInvalidTag on empty tag, got %v", err)
	}
	if _, err := Encode(Entry{Tags: []string{strings.Repeat("a", 0x10000)}}); !errors.Is(err, ErrInvalidTag) {
		t.Fatalf("expected ErrInvalidTag on tag > 0xFFFF, got %v", err)
	}
	if _, err := Encode(Entry{Tags: []string{strings.Repeat("b", 0xFFFF)}}); err != nil {
		t.Fatalf("boundary tag length should succeed: %v", err)
	}
}

func TestZeroCopyPayload(t *testing.T) {
	enc := mustEncode(t, Entry{Payload: []byte("Z")})
	e := mustDecode(t, enc)
	e.Payload[0] = 'Q'
	if mustDecode(t, enc).Payload[0] != 'Q' {
		t.Fatalf("expected payload to alias the encoded buffer")
	}
}
