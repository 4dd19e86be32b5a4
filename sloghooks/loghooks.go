// Package sloghooks reports hybridcache events through log/slog.
// Storage keys are redacted; noisy events can be sampled.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/hybridcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery      uint64
	MissEvery     uint64
	SelfHealEvery uint64
	DistErrEvery  uint64
	// Slow loads are logged at Info; 0 logs every load at Debug only.
	SlowLoad time.Duration
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr      atomic.Uint64
	missCtr     atomic.Uint64
	selfHealCtr atomic.Uint64
	distErrCtr  atomic.Uint64
}

var _ hybridcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(ns string, tier hybridcache.Tier) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("hybridcache.hit", "ns", ns, "tier", tier.String())
}

func (h *Hooks) Miss(ns string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("hybridcache.miss", "ns", ns)
}

func (h *Hooks) Loaded(ns string, took time.Duration, err error) {
	if h.l == nil {
		return
	}
	switch {
	case err != nil:
		h.l.Warn("hybridcache.load_failed", "ns", ns, "took", took, "err", err)
	case h.opts.SlowLoad > 0 && took >= h.opts.SlowLoad:
		h.l.Info("hybridcache.slow_load", "ns", ns, "took", took)
	default:
		h.l.Debug("hybridcache.loaded", "ns", ns, "took", took)
	}
}

func (h *Hooks) Collapsed(ns, key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("hybridcache.collapsed", "ns", ns, "key", h.redact(key))
}

func (h *Hooks) SelfHeal(tier hybridcache.Tier, storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("hybridcache.self_heal",
		"tier", tier.String(),
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) PayloadRejected(storageKey string, size, max int) {
	if h.l == nil {
		return
	}
	h.l.Warn("hybridcache.payload_rejected",
		"key", h.redact(storageKey),
		"size", size,
		"max", max)
}

func (h *Hooks) ProviderSetRejected(tier hybridcache.Tier, storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("hybridcache.provider_set_rejected",
		"tier", tier.String(),
		"key", h.redact(storageKey))
}

func (h *Hooks) DistributedError(op, storageKey string, err error) {
	if h.l == nil || !sample(h.opts.DistErrEvery, &h.distErrCtr) {
		return
	}
	h.l.Warn("hybridcache.distributed_error",
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) TagIndexError(op, tag string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("hybridcache.tag_index_error",
		"op", op,
		"tag", tag,
		"err", err)
}

func (h *Hooks) StaleWriteSkipped(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("hybridcache.stale_write_skipped", "key", h.redact(storageKey))
}

func (h *Hooks) KeyRejected(ns string, length int) {
	if h.l == nil {
		return
	}
	h.l.Warn("hybridcache.key_rejected", "ns", ns, "length", length)
}
