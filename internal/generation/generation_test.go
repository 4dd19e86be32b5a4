package generation

import (
	"testing"
	"time"

	"github.com/unkn0wn-root/hybridcache/clock"
)

func TestSnapshotManyIncludesAllAndZeroForMissing(t *testing.T) {
	s := New(clock.NewFake(time.Time{}), 0, 0)
	t.Cleanup(s.Close)

	s.Bump("b")
	s.Bump("b")

	got := s.SnapshotMany([]string{"a", "b", "c"})
	if got[0] != 0 || got[1] != 2 || got[2] != 0 {
		t.Fatalf("got=%v want [0 2 0]", got)
	}
}

func TestUnchangedDetectsBump(t *testing.T) {
	s := New(nil, 0, 0)
	t.Cleanup(s.Close)

	ks := []string{"k:products:1", "t:products"}
	obs := s.SnapshotMany(ks)
	if !s.Unchanged(ks, obs) {
		t.Fatalf("fresh snapshot must be unchanged")
	}
	s.BumpMany([]string{"t:products"})
	if s.Unchanged(ks, obs) {
		t.Fatalf("tag bump must invalidate snapshot")
	}
	if !s.Unchanged([]string{"k:products:1"}, obs[:1]) {
		t.Fatalf("untouched key must stay unchanged")
	}
}

func TestCleanupPrunesOld(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	s := New(clk, 0, time.Second)
	t.Cleanup(s.Close)

	s.Bump("old")
	clk.Advance(1200 * time.Millisecond)
	s.Bump("fresh")

	if n := s.Cleanup(time.Second); n != 1 {
		t.Fatalf("Cleanup removed %d, want 1", n)
	}
	if g := s.Snapshot("old"); g != 0 {
		t.Fatalf("expected pruned -> 0, got %d", g)
	}
	if g := s.Snapshot("fresh"); g != 1 {
		t.Fatalf("fresh entry pruned, got %d", g)
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := New(nil, time.Millisecond, time.Hour)
	s.Close()
	s.Close()
}

func TestDeletePending(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	s := New(clk, 0, time.Second)
	t.Cleanup(s.Close)

	if s.DeletePending("k") {
		t.Fatalf("unknown key reported pending")
	}
	s.Bump("k")
	s.MarkDeletePending("k", "j")
	if !s.DeletePending("k") || !s.DeletePending("j") {
		t.Fatalf("mark not recorded")
	}
	if g := s.Snapshot("k"); g != 1 {
		t.Fatalf("mark changed generation: %d", g)
	}

	s.ClearDeletePending("k")
	if s.DeletePending("k") || !s.DeletePending("j") {
		t.Fatalf("clear affected the wrong key")
	}

	clk.Advance(2 * time.Second)
	s.Cleanup(time.Second)
	if s.DeletePending("j") {
		t.Fatalf("pending mark outlived retention")
	}
}
