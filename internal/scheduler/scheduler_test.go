package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks, immediates atomic.Int32
	s := New()
	s.AddJob(Job{
		Name:     "tick",
		Interval: 20 * time.Millisecond,
		Run:      func(context.Context) { ticks.Add(1) },
	})
	s.AddJob(Job{
		Name:      "sync",
		Interval:  time.Hour,
		Immediate: true,
		Run:       func(context.Context) { immediates.Add(1) },
	})
	s.Start(ctx)

	time.Sleep(120 * time.Millisecond)
	cancel()
	s.Wait()

	if n := ticks.Load(); n < 2 {
		t.Errorf("周期任务应至少跑 2 次，实际 %d", n)
	}
	if n := immediates.Load(); n != 1 {
		t.Errorf("Immediate 任务应正好跑 1 次，实际 %d", n)
	}
}

func TestSchedulerRecoversPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	s := New()
	s.AddJob(Job{
		Name:     "panicky",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) {
			runs.Add(1)
			panic("boom")
		},
	})
	s.Start(ctx)

	time.Sleep(60 * time.Millisecond)
	cancel()
	s.Wait()

	if n := runs.Load(); n < 2 {
		t.Errorf("panic 后任务循环应继续，实际跑了 %d 次", n)
	}
}
