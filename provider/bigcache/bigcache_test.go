package bigcache

import (
	"context"
	"testing"
	"time"
)

func newTest(t *testing.T) *Provider {
	t.Helper()
	p, err := New(context.Background(), Config{LifeWindow: time.Hour, Shards: 8, MaxEntriesInWindow: 100})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTest(t)

	if _, ok, err := p.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("miss expected, got ok=%v err=%v", ok, err)
	}
	if ok, err := p.Set(ctx, "k", []byte("v"), 1, time.Second); !ok || err != nil {
		t.Fatalf("set ok=%v err=%v", ok, err)
	}
	b, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(b) != "v" {
		t.Fatalf("get %q %v %v", b, ok, err)
	}
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	p := newTest(t)

	_, _ = p.Set(ctx, "a", []byte("1"), 1, 0)
	_, _ = p.Set(ctx, "b", []byte("2"), 1, 0)
	if err := p.Del(ctx, "missing"); err != nil {
		t.Fatalf("del absent: %v", err)
	}
	if err := p.DelMany(ctx, []string{"a", "b", "c"}); err != nil {
		t.Fatalf("delmany: %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("len=%d", p.Len())
	}
}
