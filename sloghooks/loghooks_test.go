package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/hybridcache"
)

func newTest(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestKeysAreRedacted(t *testing.T) {
	h, buf := newTest(Options{})
	h.DistributedError("get", "hc:users:alice@example.com", errors.New("refused"))

	out := buf.String()
	if strings.Contains(out, "alice@example.com") {
		t.Fatalf("raw key leaked: %s", out)
	}
	if !strings.Contains(out, "hybridcache.distributed_error") || !strings.Contains(out, "op=get") {
		t.Fatalf("unexpected record: %s", out)
	}
}

func TestCustomRedactor(t *testing.T) {
	h, buf := newTest(Options{Redact: func(string) string { return "REDACTED" }})
	h.SelfHeal(hybridcache.TierLocal, "hc:p:1", "corrupt")
	if !strings.Contains(buf.String(), "key=REDACTED") || !strings.Contains(buf.String(), "tier=local") {
		t.Fatalf("got %s", buf.String())
	}
}

func TestSampling(t *testing.T) {
	h, buf := newTest(Options{HitEvery: 10})
	for i := 0; i < 30; i++ {
		h.Hit("products", hybridcache.TierLocal)
	}
	if n := strings.Count(buf.String(), "hybridcache.hit"); n != 3 {
		t.Fatalf("logged %d hits, want 3", n)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	h := New(nil, Options{})
	h.Miss("products")
	h.Loaded("products", 0, errors.New("x"))
	h.TagIndexError("keys", "t", errors.New("x"))
}
