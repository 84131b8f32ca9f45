// Package scheduler 固定间隔驱动各类周期任务。
package scheduler

import (
	"context"
	"time"

	"github.com/perpbot/goperp/pkg/logger"
	"github.com/perpbot/goperp/pkg/syncgroup"
)

var log = logger.WithField("component", "scheduler")

// Job 一个周期任务。Run 自己负责防重入（比如 tick 重叠时跳过）。
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
	// Immediate 为 true 时启动后立刻跑一次，不等第一个间隔
	Immediate bool
}

// Scheduler 调度器：每个任务一个 goroutine，共享生命周期。
type Scheduler struct {
	jobs []Job
	sg   *syncgroup.SyncGroup
}

func New() *Scheduler {
	return &Scheduler{sg: syncgroup.NewSyncGroup()}
}

func (s *Scheduler) AddJob(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start 启动所有任务循环，ctx 取消后退出。
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		job := job
		s.sg.Add(func() { s.runLoop(ctx, job) })
	}
	s.sg.Run()
	log.Infof("调度器已启动，任务数 %d", len(s.jobs))
}

// Wait 阻塞到所有任务循环退出
func (s *Scheduler) Wait() {
	s.sg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	if job.Immediate {
		s.runOnce(ctx, job)
	}
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("任务 %s 退出", job.Name)
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("任务 %s panic: %v", job.Name, r)
		}
	}()
	start := time.Now()
	job.Run(ctx)
	if elapsed := time.Since(start); elapsed > job.Interval {
		log.Warnf("任务 %s 用时 %s 超过间隔 %s", job.Name, elapsed, job.Interval)
	}
}
