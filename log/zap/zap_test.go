package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/hybridcache"
)

func TestZapLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var l hybridcache.Logger = ZapLogger{L: zap.New(core)}
	l = l.With(hybridcache.Fields{"namespace": "products"})

	l.Debug("d", nil)
	l.Info("i", hybridcache.Fields{"key": "hc:products:1"})
	l.Warn("w", hybridcache.Fields{"err": errors.New("boom")})
	l.Error("e", nil)

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("got %d entries", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Fatalf("entry %d level %v", i, e.Level)
		}
		if e.ContextMap()["namespace"] != "products" {
			t.Fatalf("entry %d lost With fields: %v", i, e.ContextMap())
		}
	}
	if entries[1].ContextMap()["key"] != "hc:products:1" {
		t.Fatalf("fields: %v", entries[1].ContextMap())
	}
	if entries[2].ContextMap()["err"] != "boom" {
		t.Fatalf("error field: %v", entries[2].ContextMap())
	}
}
