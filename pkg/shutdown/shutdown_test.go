package shutdown

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestShutdownRunsAllHooks(t *testing.T) {
	m := NewManager()
	var ran atomic.Int32
	m.OnShutdown("a", func(context.Context) { ran.Add(1) })
	m.OnShutdown("b", func(context.Context) { ran.Add(1) })
	m.OnShutdown("nil", nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(ctx)
	if ran.Load() != 2 {
		t.Errorf("应执行 2 个回调，实际 %d", ran.Load())
	}
}

func TestShutdownTimeoutDoesNotBlock(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	defer close(release)
	m.OnShutdown("stuck", func(context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	m.Shutdown(ctx)
	if time.Since(start) > time.Second {
		t.Error("超时后 Shutdown 应立即返回")
	}
}
